package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/augment"
	"github.com/coct-data/service-alerts/app/publish"
	"github.com/coct-data/service-alerts/app/reconcile"
)

type Kind string

const (
	KindRun       Kind = "run"
	KindRepublish Kind = "republish"
)

// Report is the end-of-run summary.
type Report struct {
	RunID      string
	Kind       Kind
	StartedAt  time.Time
	FinishedAt time.Time

	Outcomes   map[reconcile.Outcome]int
	HasChanges bool
	Alerts     int

	Invalid              []*alert.ValidationError
	CollaboratorFailures []*augment.Failure
	RenderFailures       []*publish.RenderError
	Artifacts            *publish.Report

	Notified          bool
	NotificationError error

	Err error
}

func newReport(kind Kind) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		Outcomes:  make(map[reconcile.Outcome]int),
		Artifacts: &publish.Report{},
	}
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Degraded reports a run that completed but left something out.
func (r *Report) Degraded() bool {
	return r.Err == nil && (len(r.CollaboratorFailures) > 0 || len(r.RenderFailures) > 0 ||
		len(r.Artifacts.Failed) > 0 || r.NotificationError != nil)
}

func (r *Report) Result() string {
	switch {
	case r.Err != nil && Refused(r.Err):
		return "refused"
	case r.Err != nil:
		return "failed"
	case r.Degraded():
		return "degraded"
	}
	return "success"
}

// Summary is the report as served on /stats.
func (r *Report) Summary() map[string]any {
	outcomes := make(map[string]int, len(reconcile.Outcomes))
	for _, outcome := range reconcile.Outcomes {
		outcomes[string(outcome)] = r.Outcomes[outcome]
	}

	invalid := make([]map[string]any, 0, len(r.Invalid))
	for _, v := range r.Invalid {
		invalid = append(invalid, map[string]any{"id": v.ID, "field": v.Field, "reason": v.Reason})
	}

	collaborators := make([]string, 0, len(r.CollaboratorFailures))
	for _, f := range r.CollaboratorFailures {
		collaborators = append(collaborators, f.Error())
	}

	failedArtifacts := make([]string, 0, len(r.Artifacts.Failed)+len(r.RenderFailures))
	for _, f := range r.RenderFailures {
		failedArtifacts = append(failedArtifacts, f.Error())
	}
	for _, f := range r.Artifacts.Failed {
		failedArtifacts = append(failedArtifacts, f.Error())
	}

	summary := map[string]any{
		"run_id":      r.RunID,
		"kind":        r.Kind,
		"result":      r.Result(),
		"started_at":  r.StartedAt.Format(time.RFC3339),
		"duration":    r.Duration().String(),
		"outcomes":    outcomes,
		"has_changes": r.HasChanges,
		"alerts":      r.Alerts,
		"invalid":     invalid,
		"artifacts": map[string]any{
			"written":   len(r.Artifacts.Written),
			"unchanged": len(r.Artifacts.Unchanged),
			"failed":    failedArtifacts,
		},
		"collaborator_failures": collaborators,
		"notified":              r.Notified,
	}
	if r.NotificationError != nil {
		summary["notification_error"] = r.NotificationError.Error()
	}
	if r.Err != nil {
		summary["error"] = r.Err.Error()
	}
	return summary
}
