package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	DefaultMaxAttempts = 3
)

// ArtifactWriteError is a write that kept failing after every retry. Only that artifact is
// skipped.
type ArtifactWriteError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("failed to write artifact %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error {
	return e.Err
}

type Report struct {
	Written   []string
	Unchanged []string
	Failed    []*ArtifactWriteError
}

type Publisher struct {
	store       ArtifactStore
	concurrency int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func NewPublisher(store ArtifactStore, concurrency int) *Publisher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Publisher{
		store:       store,
		concurrency: concurrency,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
	}
}

// WithRetry replaces the default retry policy of three attempts backing off from one second.
func (p *Publisher) WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) *Publisher {
	p.maxAttempts = max(maxAttempts, 1)
	p.baseDelay = baseDelay
	p.maxDelay = maxDelay
	return p
}

// Publish writes the artifacts in parallel. Every artifact is attempted regardless of the
// others; the report lists what was written, what was already up to date and what failed.
func (p *Publisher) Publish(ctx context.Context, artifacts []Artifact) *Report {
	var (
		mu     sync.Mutex
		report = &Report{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, artifact := range artifacts {
		g.Go(func() error {
			written, err := p.write(gctx, artifact)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				report.Failed = append(report.Failed, err)
				slog.Error("Artifact write failed", "path", artifact.Path, "attempts", err.Attempts, "error", err.Err)
			case written:
				report.Written = append(report.Written, artifact.Path)
				slog.Debug("Artifact written", "path", artifact.Path, "bytes", len(artifact.Data))
			default:
				report.Unchanged = append(report.Unchanged, artifact.Path)
			}
			return nil
		})
	}
	g.Wait()

	return report
}

func (p *Publisher) write(ctx context.Context, artifact Artifact) (bool, *ArtifactWriteError) {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		written, err := p.store.Write(ctx, artifact.Path, artifact.Data)
		if err == nil {
			return written, nil
		}
		lastErr = err

		if attempt == p.maxAttempts || ctx.Err() != nil {
			return false, &ArtifactWriteError{Path: artifact.Path, Attempts: attempt, Err: lastErr}
		}

		delay := p.backoff(attempt)
		slog.Warn("Artifact write retry scheduled", "path", artifact.Path, "attempt", attempt, "max_attempts", p.maxAttempts, "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return false, &ArtifactWriteError{Path: artifact.Path, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	return false, &ArtifactWriteError{Path: artifact.Path, Attempts: p.maxAttempts, Err: lastErr}
}

func (p *Publisher) backoff(attempt int) time.Duration {
	delay := p.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}
