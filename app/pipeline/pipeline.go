package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/augment"
	"github.com/coct-data/service-alerts/app/bucket"
	"github.com/coct-data/service-alerts/app/metrics"
	"github.com/coct-data/service-alerts/app/notify"
	"github.com/coct-data/service-alerts/app/publish"
	"github.com/coct-data/service-alerts/app/reconcile"
	"github.com/coct-data/service-alerts/app/source"
)

type Options struct {
	// Augmenter, Notifier and Metrics are optional.
	Augmenter *augment.Augmenter
	Notifier  notify.Notifier
	Contract  notify.Contract
	Metrics   *metrics.Metrics
}

type Pipeline struct {
	source     source.Source
	reconciler *reconcile.Reconciler
	publisher  *publish.Publisher
	opts       Options

	mu   sync.RWMutex
	last *Report
}

func New(src source.Source, reconciler *reconcile.Reconciler, publisher *publish.Publisher, opts Options) *Pipeline {
	if opts.Contract == "" {
		opts.Contract = notify.ContractIDs
	}
	return &Pipeline{
		source:     src,
		reconciler: reconciler,
		publisher:  publisher,
		opts:       opts,
	}
}

// LastReport returns the report of the most recent run or republish, nil before the first.
func (p *Pipeline) LastReport() *Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run performs one reconciliation pass: pull, classify, augment, bucket, publish, commit and
// notify. The snapshot is committed only after artifacts are published, and the notification
// goes out only after the commit.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := newReport(KindRun)
	err := p.run(ctx, report)
	return p.finish(report, err)
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	run, err := p.reconciler.Begin(ctx)
	if err != nil {
		return stageError(StageLease, err)
	}
	defer run.Close()

	raws, err := p.source.Fetch(ctx)
	if err != nil {
		return stageError(StageFetch, fmt.Errorf("failed to fetch alerts: %w", err))
	}

	result := run.Classify(raws)
	for _, outcome := range reconcile.Outcomes {
		report.Outcomes[outcome] = result.Count(outcome)
	}
	report.HasChanges = result.HasChanges
	report.Invalid = result.Invalid
	report.Alerts = len(result.Alerts)

	slog.Info("Alerts reconciled", "run_id", report.RunID, "pulled", len(raws),
		"new", report.Outcomes[reconcile.OutcomeNew], "updated", report.Outcomes[reconcile.OutcomeUpdated],
		"unchanged", report.Outcomes[reconcile.OutcomeUnchanged], "expired", report.Outcomes[reconcile.OutcomeExpired],
		"invalid", len(result.Invalid), "has_changes", result.HasChanges)

	if p.opts.Augmenter != nil {
		failures, err := p.opts.Augmenter.Augment(ctx, result.NeedsAugmentation())
		report.CollaboratorFailures = failures
		if err != nil {
			return stageError(StageAugment, err)
		}
	}

	changed := result.Changed()
	buckets := bucket.Assign(result.Alerts, run.StartedAt())
	if err := p.publish(ctx, report, buckets, changed); err != nil {
		return err
	}

	if err := run.Commit(ctx); err != nil {
		return stageError(StageCommit, err)
	}

	if result.HasChanges {
		p.notify(ctx, report, changed)
	}
	return nil
}

// Republish rewrites every artifact from the stored state without pulling or notifying.
func (p *Pipeline) Republish(ctx context.Context) (*Report, error) {
	report := newReport(KindRepublish)
	err := p.republish(ctx, report)
	return p.finish(report, err)
}

func (p *Pipeline) republish(ctx context.Context, report *Report) error {
	run, err := p.reconciler.Begin(ctx)
	if err != nil {
		return stageError(StageLease, err)
	}
	defer run.Close()

	alerts := run.Baseline()
	report.Alerts = len(alerts)

	return p.publish(ctx, report, bucket.Assign(alerts, run.StartedAt()), alerts)
}

func (p *Pipeline) publish(ctx context.Context, report *Report, buckets []bucket.Bucket, singles []*alert.Alert) error {
	artifacts, renderFailures := publish.Render(buckets, singles)
	for _, f := range renderFailures {
		slog.Error("Artifact rendering failed", "run_id", report.RunID, "version", f.Version, "error", f.Err)
	}
	report.RenderFailures = renderFailures

	report.Artifacts = p.publisher.Publish(ctx, artifacts)

	slog.Info("Artifacts published", "run_id", report.RunID, "written", len(report.Artifacts.Written),
		"unchanged", len(report.Artifacts.Unchanged), "failed", len(report.Artifacts.Failed))

	// A cancelled run must not commit state the artifacts may not reflect.
	if err := ctx.Err(); err != nil {
		return stageError(StagePublish, err)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, report *Report, changed []*alert.Alert) {
	if p.opts.Notifier == nil {
		return
	}

	n, err := notify.Build(report.RunID, p.opts.Contract, changed)
	if err == nil {
		err = p.opts.Notifier.Notify(ctx, n)
	}

	if err != nil {
		report.NotificationError = err
		slog.Error("Change notification failed", "run_id", report.RunID, "error", err)
		return
	}

	report.Notified = true
}

func (p *Pipeline) finish(report *Report, err error) (*Report, error) {
	report.FinishedAt = time.Now().UTC()
	report.Err = err

	switch {
	case err == nil:
		slog.Info("Run completed", "run_id", report.RunID, "kind", report.Kind, "result", report.Result(),
			"duration", report.Duration(), "alerts", report.Alerts)
	case Refused(err):
		slog.Warn("Run refused", "run_id", report.RunID, "kind", report.Kind, "error", err)
	default:
		slog.Error("Run failed", "run_id", report.RunID, "kind", report.Kind, "error", err)
	}

	p.record(report)

	// A refused run leaves the previous report in place.
	if !Refused(err) {
		p.mu.Lock()
		p.last = report
		p.mu.Unlock()
	}

	return report, err
}

func (p *Pipeline) record(report *Report) {
	m := p.opts.Metrics
	if m == nil {
		return
	}

	m.ObserveRun(string(report.Kind), report.Result(), report.Duration())
	if report.Err != nil {
		return
	}

	for outcome, n := range report.Outcomes {
		m.AddOutcome(string(outcome), n)
	}
	m.AddInvalid(len(report.Invalid))
	m.AddArtifacts("written", len(report.Artifacts.Written))
	m.AddArtifacts("unchanged", len(report.Artifacts.Unchanged))
	m.AddArtifacts("failed", len(report.Artifacts.Failed))

	switch {
	case report.Notified:
		m.IncNotification("delivered")
	case report.NotificationError != nil:
		m.IncNotification("failed")
	}

	for _, f := range report.CollaboratorFailures {
		reason := "error"
		if errors.Is(f, augment.ErrCollaboratorTimeout) {
			reason = "timeout"
		}
		m.IncCollaboratorFailure(f.Collaborator, reason)
	}

	if report.Kind == KindRun {
		m.SetSnapshotEntries(report.Alerts)
	}
}
