package augment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coct-data/service-alerts/app/alert"
)

const (
	DefaultConcurrency = 4
	cityHashtag        = "#CapeTown"
)

type Options struct {
	Concurrency       int
	GeocodeTimeout    time.Duration
	SummariseTimeout  time.Duration
	Hashtags          map[string]string
	ExcludedAreaTypes []string
}

// Augmenter fills the collaborator-owned fields of new and updated alerts. Either collaborator
// may be nil, in which case its fields stay empty.
type Augmenter struct {
	geocoder   Geocoder
	summariser Summariser
	opts       Options
	excluded   map[alert.AreaType]bool
}

func NewAugmenter(geocoder Geocoder, summariser Summariser, opts Options) *Augmenter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 5 * time.Second
	}
	if opts.SummariseTimeout <= 0 {
		opts.SummariseTimeout = 2 * time.Minute
	}

	excluded := make(map[alert.AreaType]bool, len(opts.ExcludedAreaTypes))
	for _, areaType := range opts.ExcludedAreaTypes {
		excluded[alert.AreaType(areaType)] = true
	}

	return &Augmenter{
		geocoder:   geocoder,
		summariser: summariser,
		opts:       opts,
		excluded:   excluded,
	}
}

// Augment updates the alerts in place and returns one Failure per collaborator call that did
// not produce a value. The returned error is only ever the context's.
func (a *Augmenter) Augment(ctx context.Context, alerts []*alert.Alert) ([]*Failure, error) {
	var (
		mu       sync.Mutex
		failures []*Failure
	)
	record := func(f *Failure) {
		slog.Warn("Collaborator call failed", "collaborator", f.Collaborator, "id", f.AlertID, "error", f.Err)
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for _, al := range alerts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if f := a.geocode(gctx, al); f != nil {
				record(f)
			}
			if f := a.summarise(gctx, al); f != nil {
				record(f)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failures, fmt.Errorf("failed to augment alerts: %w", err)
	}

	slog.Debug("Alerts augmented", "alerts", len(alerts), "failures", len(failures))
	return failures, nil
}

func (a *Augmenter) geocode(ctx context.Context, al *alert.Alert) *Failure {
	al.GeospatialFootprint = nil
	if a.geocoder == nil || al.Area == nil {
		return nil
	}
	if al.AreaType != nil && a.excluded[*al.AreaType] {
		return nil
	}

	wkt, err := call(ctx, a.opts.GeocodeTimeout, func(ctx context.Context) (string, error) {
		return a.geocoder.Geocode(ctx, al)
	})
	if err != nil {
		return &Failure{AlertID: al.ID, Collaborator: CollaboratorGeocoder, Err: err}
	}
	if wkt != "" {
		al.GeospatialFootprint = &wkt
	}
	return nil
}

func (a *Augmenter) summarise(ctx context.Context, al *alert.Alert) *Failure {
	al.Summary = nil
	al.TootText = nil
	if a.summariser == nil {
		return nil
	}

	summary, err := call(ctx, a.opts.SummariseTimeout, func(ctx context.Context) (string, error) {
		return a.summariser.Summarise(ctx, al)
	})
	if err != nil {
		return &Failure{AlertID: al.ID, Collaborator: CollaboratorSummariser, Err: err}
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	al.Summary = &summary
	al.TootText = TootText(summary, a.opts.Hashtags[string(al.ServiceArea)])
	return nil
}

// TootText appends the service area's hashtag and the city tag to a summary. Service areas
// without a hashtag get no toot text.
func TootText(summary, hashtag string) *string {
	if hashtag == "" {
		return nil
	}
	text := summary + "\n" + hashtag + " " + cityHashtag
	return &text
}

func call(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %w", ErrCollaboratorTimeout, timeout, err)
		}
		return "", err
	}
	return result, nil
}
