package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/snapshot"
)

// Reconciler is the only component that touches the snapshot store during a run. Access goes
// through a Run, which holds the lease from Begin until Close.
type Reconciler struct {
	repo  snapshot.Repository
	lease snapshot.Lease
	now   func() time.Time
}

func NewReconciler(repo snapshot.Repository, lease snapshot.Lease) *Reconciler {
	return &Reconciler{
		repo:  repo,
		lease: lease,
		now:   time.Now,
	}
}

type Run struct {
	repo      snapshot.Repository
	release   func()
	startedAt time.Time
	baseline  map[int64]*snapshot.Entry
	result    *Result
	committed bool
}

// Begin takes the lease and reads the baseline. It fails with snapshot.ErrRunInProgress when
// another run holds the lease and snapshot.ErrStoreUnavailable when the baseline cannot be read.
func (r *Reconciler) Begin(ctx context.Context) (*Run, error) {
	release, err := r.lease.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}

	baseline, err := r.repo.Baseline(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	return &Run{
		repo:      r.repo,
		release:   release,
		startedAt: r.now().UTC(),
		baseline:  baseline,
	}, nil
}

func (run *Run) StartedAt() time.Time {
	return run.startedAt
}

// Baseline returns the alerts as the store held them when the run began, ordered by id.
func (run *Run) Baseline() []*alert.Alert {
	alerts := make([]*alert.Alert, 0, len(run.baseline))
	for _, entry := range run.baseline {
		alerts = append(alerts, entry.Alert)
	}
	sortAlerts(alerts)
	return alerts
}

func (run *Run) Get(id int64) *alert.Alert {
	if entry, ok := run.baseline[id]; ok {
		return entry.Alert
	}
	return nil
}

// Classify compares the raw pull against the baseline. Records are collapsed by id first, the
// later record winning, and only then validated. An invalid record is dropped and reported; its
// id still counts as present so the stored alert is not expired.
func (run *Run) Classify(raws []alert.Raw) *Result {
	result := &Result{}

	present := make(map[int64]bool, len(raws))
	pulled := make(map[int64]*alert.Alert, len(raws))

	for _, raw := range latestByID(raws) {
		if raw.ID > 0 {
			present[raw.ID] = true
		}

		a, err := alert.Normalize(raw)
		if err != nil {
			var verr *alert.ValidationError
			if !errors.As(err, &verr) {
				verr = &alert.ValidationError{ID: raw.ID, Field: "record", Reason: err.Error()}
			}
			slog.Warn("Invalid alert excluded", "id", raw.ID, "field", verr.Field, "reason", verr.Reason)
			result.Invalid = append(result.Invalid, verr)
			continue
		}

		pulled[a.ID] = a
	}

	for id, a := range pulled {
		prev := run.baseline[id]

		switch {
		case prev == nil:
			result.Classified = append(result.Classified, Classified{Alert: a, Outcome: OutcomeNew})
		case prev.ContentHash != a.ContentHash || prev.Status != a.Status:
			result.Classified = append(result.Classified, Classified{
				Alert:         a,
				Outcome:       OutcomeUpdated,
				Previous:      prev,
				StatusChanged: prev.Status != a.Status,
			})
		default:
			a.CopyAugmentation(prev.Alert)
			result.Classified = append(result.Classified, Classified{Alert: a, Outcome: OutcomeUnchanged, Previous: prev})
		}

		result.Alerts = append(result.Alerts, a)
	}

	for id, prev := range run.baseline {
		if _, ok := pulled[id]; ok {
			continue
		}

		if present[id] || prev.Status.Terminal() {
			result.Alerts = append(result.Alerts, prev.Alert)
			continue
		}

		expired := prev.Alert.Clone()
		expired.Status = alert.StatusIssueResolved
		expired.ContentHash = expired.ComputeContentHash()

		result.Classified = append(result.Classified, Classified{
			Alert:         expired,
			Outcome:       OutcomeExpired,
			Previous:      prev,
			StatusChanged: true,
		})
		result.Alerts = append(result.Alerts, expired)
	}

	slices.SortFunc(result.Classified, func(a, b Classified) int {
		return compareID(a.Alert, b.Alert)
	})
	sortAlerts(result.Alerts)

	for _, c := range result.Classified {
		if c.Changed() {
			result.HasChanges = true
			break
		}
	}

	run.result = result
	return result
}

// Commit persists the classified result in one transaction. Alerts are written as they are at
// commit time, so collaborator fields filled in after Classify are stored too.
func (run *Run) Commit(ctx context.Context) error {
	if run.result == nil {
		return fmt.Errorf("failed to commit run: nothing classified")
	}
	if run.committed {
		return nil
	}

	batch := snapshot.Batch{SeenAt: run.startedAt}
	for _, c := range run.result.Classified {
		entry := snapshot.Entry{
			ID:          c.Alert.ID,
			ContentHash: c.Alert.ContentHash,
			Status:      c.Alert.Status,
			FirstSeenAt: run.startedAt,
			LastSeenAt:  run.startedAt,
			Alert:       c.Alert,
		}

		switch c.Outcome {
		case OutcomeNew:
		case OutcomeUpdated:
			entry.FirstSeenAt = c.Previous.FirstSeenAt
		case OutcomeExpired:
			entry.FirstSeenAt = c.Previous.FirstSeenAt
			entry.LastSeenAt = c.Previous.LastSeenAt
			expiredAt := run.startedAt
			entry.ExpiredAt = &expiredAt
		case OutcomeUnchanged:
			batch.Seen = append(batch.Seen, c.Alert.ID)
			continue
		}

		batch.Upserts = append(batch.Upserts, entry)
	}

	if err := run.repo.Commit(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	run.committed = true

	slog.Debug("Snapshot committed", "upserts", len(batch.Upserts), "seen", len(batch.Seen))
	return nil
}

// Close releases the lease. It is safe to call more than once.
func (run *Run) Close() {
	if run.release != nil {
		run.release()
		run.release = nil
	}
}

// latestByID keeps the last record for each id, in order of first appearance. Records without
// a usable id are kept as they are so validation can report them.
func latestByID(raws []alert.Raw) []alert.Raw {
	latest := make([]alert.Raw, 0, len(raws))
	index := make(map[int64]int, len(raws))

	for _, raw := range raws {
		if raw.ID <= 0 {
			latest = append(latest, raw)
			continue
		}
		if i, ok := index[raw.ID]; ok {
			latest[i] = raw
			continue
		}
		index[raw.ID] = len(latest)
		latest = append(latest, raw)
	}

	return latest
}

func sortAlerts(alerts []*alert.Alert) {
	slices.SortFunc(alerts, compareID)
}

func compareID(a, b *alert.Alert) int {
	return cmp.Compare(a.ID, b.ID)
}
