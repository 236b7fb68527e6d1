package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/snapshot"
)

func newTestReconciler(t *testing.T) (*Reconciler, *snapshot.Store) {
	t.Helper()

	store, err := snapshot.Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lease := snapshot.NewSQLiteLease(store.DB(), snapshot.DefaultLeaseName, time.Minute)
	return NewReconciler(store, lease), store
}

func raw(id int64, status string) alert.Raw {
	return alert.Raw{
		ID:            id,
		Title:         "Burst pipe",
		ServiceArea:   "Water & Sanitation",
		Description:   "Water outage",
		Planned:       "Unplanned",
		PublishDate:   "2024-02-13T22:00:00Z",
		EffectiveDate: "2024-02-13T22:00:00Z",
		StartTime:     "08:00",
		ExpiryDate:    "2024-02-14T22:00:00Z",
		Status:        status,
	}
}

// runOnce classifies raws against the store and commits the result.
func runOnce(t *testing.T, r *Reconciler, raws []alert.Raw) *Result {
	t.Helper()

	run, err := r.Begin(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin run: %v", err)
	}
	defer run.Close()

	result := run.Classify(raws)
	if err := run.Commit(context.Background()); err != nil {
		t.Fatalf("Failed to commit run: %v", err)
	}
	return result
}

func outcomeOf(result *Result, id int64) Outcome {
	for _, c := range result.Classified {
		if c.Alert.ID == id {
			return c.Outcome
		}
	}
	return ""
}

func TestReconcileNewAlert(t *testing.T) {
	r, store := newTestReconciler(t)

	result := runOnce(t, r, []alert.Raw{raw(23121, "Open")})

	if outcomeOf(result, 23121) != OutcomeNew {
		t.Errorf("Expected NEW, got %s", outcomeOf(result, 23121))
	}
	if !result.HasChanges {
		t.Error("Expected has_changes for a new alert")
	}

	entry, err := store.Get(context.Background(), 23121)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("Expected entry to be stored")
	}
	if entry.ContentHash != result.Alerts[0].ContentHash {
		t.Errorf("Expected stored hash %s, got %s", result.Alerts[0].ContentHash, entry.ContentHash)
	}
}

func TestReconcileUnchangedIsIdempotent(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	run, err := r.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first := run.Classify([]alert.Raw{raw(23121, "Open")})
	// Commit stores the alert as it is after augmentation
	first.NeedsAugmentation()[0].Summary = alert.Ptr("Water outage")
	if err := run.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	run.Close()

	second := runOnce(t, r, []alert.Raw{raw(23121, "Open")})

	if outcomeOf(second, 23121) != OutcomeUnchanged {
		t.Errorf("Expected UNCHANGED, got %s", outcomeOf(second, 23121))
	}
	if second.HasChanges {
		t.Error("Expected no changes on an identical pull")
	}
	if second.Alerts[0].Summary == nil || *second.Alerts[0].Summary != "Water outage" {
		t.Errorf("Expected summary to be carried forward, got %v", second.Alerts[0].Summary)
	}
	if len(second.NeedsAugmentation()) != 0 {
		t.Errorf("Expected no alerts to augment, got %d", len(second.NeedsAugmentation()))
	}
}

func TestReconcileStatusChangeIsUpdate(t *testing.T) {
	r, store := newTestReconciler(t)

	runOnce(t, r, []alert.Raw{raw(23121, "Open")})
	result := runOnce(t, r, []alert.Raw{raw(23121, "Closed")})

	if outcomeOf(result, 23121) != OutcomeUpdated {
		t.Errorf("Expected UPDATED, got %s", outcomeOf(result, 23121))
	}
	if !result.Classified[0].StatusChanged {
		t.Error("Expected status change to be flagged")
	}
	if !result.HasChanges {
		t.Error("Expected has_changes for an updated alert")
	}

	entry, err := store.Get(context.Background(), 23121)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != alert.StatusClosed {
		t.Errorf("Expected stored status Closed, got %s", entry.Status)
	}
}

func TestReconcileExpiresMissingAlert(t *testing.T) {
	r, store := newTestReconciler(t)

	runOnce(t, r, []alert.Raw{raw(999, "Assigned"), raw(1000, "Open")})
	result := runOnce(t, r, []alert.Raw{raw(1000, "Open")})

	if outcomeOf(result, 999) != OutcomeExpired {
		t.Errorf("Expected EXPIRED, got %s", outcomeOf(result, 999))
	}
	if !result.HasChanges {
		t.Error("Expected has_changes for a status-changing expiry")
	}

	if len(result.Alerts) != 2 {
		t.Fatalf("Expected expired alert to be retained, got %d alerts", len(result.Alerts))
	}
	if result.Alerts[0].ID != 999 || result.Alerts[0].Status != alert.StatusIssueResolved {
		t.Errorf("Expected alert 999 resolved, got %d %s", result.Alerts[0].ID, result.Alerts[0].Status)
	}

	entry, err := store.Get(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != alert.StatusIssueResolved {
		t.Errorf("Expected stored status Issue Resolved, got %s", entry.Status)
	}
	if entry.ExpiredAt == nil {
		t.Error("Expected expired_at to be set")
	}

	// Resolved alerts are not expired twice
	third := runOnce(t, r, []alert.Raw{raw(1000, "Open")})
	if outcomeOf(third, 999) != "" {
		t.Errorf("Expected terminal alert to be left alone, got %s", outcomeOf(third, 999))
	}
	if third.HasChanges {
		t.Error("Expected no changes once the expiry is recorded")
	}
	if len(third.Alerts) != 2 {
		t.Errorf("Expected history to be retained, got %d alerts", len(third.Alerts))
	}
}

func TestReconcileInvalidRecordKeepsBaseline(t *testing.T) {
	r, _ := newTestReconciler(t)

	runOnce(t, r, []alert.Raw{raw(5, "Open")})

	broken := raw(5, "Open")
	broken.Planned = "Unknown"
	result := runOnce(t, r, []alert.Raw{broken, raw(6, "Open")})

	if len(result.Invalid) != 1 || result.Invalid[0].ID != 5 {
		t.Fatalf("Expected alert 5 to be reported invalid, got %v", result.Invalid)
	}
	if outcomeOf(result, 5) != "" {
		t.Errorf("Expected invalid alert not to be classified, got %s", outcomeOf(result, 5))
	}
	if len(result.Alerts) != 2 || result.Alerts[0].Status != alert.StatusOpen {
		t.Errorf("Expected baseline payload for alert 5 to be retained")
	}
}

func TestReconcileIDOnlyRecordKeepsBaseline(t *testing.T) {
	r, _ := newTestReconciler(t)

	runOnce(t, r, []alert.Raw{raw(5, "Open")})
	result := runOnce(t, r, []alert.Raw{{ID: 5}})

	if outcomeOf(result, 5) != "" {
		t.Errorf("Expected stored alert 5 not to expire, got %s", outcomeOf(result, 5))
	}
	if len(result.Invalid) != 1 {
		t.Errorf("Expected 1 invalid record, got %d", len(result.Invalid))
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Status != alert.StatusOpen {
		t.Errorf("Expected stored payload for alert 5 to be retained, got %v", result.Alerts)
	}
}

func TestReconcileDeduplicatesLastWins(t *testing.T) {
	r, _ := newTestReconciler(t)

	result := runOnce(t, r, []alert.Raw{raw(7, "Open"), raw(7, "Crew on Site")})

	if len(result.Classified) != 1 {
		t.Fatalf("Expected 1 classified alert, got %d", len(result.Classified))
	}
	if result.Alerts[0].Status != alert.StatusCrewOnSite {
		t.Errorf("Expected last occurrence to win, got %s", result.Alerts[0].Status)
	}
}

func TestReconcileInvalidLaterDuplicateWins(t *testing.T) {
	r, _ := newTestReconciler(t)

	later := raw(7, "Crew on Site")
	later.ServiceArea = "Ministry of Magic"
	result := runOnce(t, r, []alert.Raw{raw(7, "Open"), later})

	if len(result.Classified) != 0 {
		t.Errorf("Expected no classified alerts, got %d", len(result.Classified))
	}
	if len(result.Invalid) != 1 || result.Invalid[0].ID != 7 {
		t.Fatalf("Expected alert 7 to be reported invalid, got %v", result.Invalid)
	}
	if outcomeOf(result, 7) != "" {
		t.Errorf("Expected earlier record not to be published, got %s", outcomeOf(result, 7))
	}
	if result.HasChanges {
		t.Error("Expected no changes when the only record is invalid")
	}
}

func TestReconcileInvalidLaterDuplicateKeepsStoredAlert(t *testing.T) {
	r, _ := newTestReconciler(t)

	runOnce(t, r, []alert.Raw{raw(7, "Assigned")})

	later := raw(7, "Crew on Site")
	later.ServiceArea = "Ministry of Magic"
	result := runOnce(t, r, []alert.Raw{raw(7, "Open"), later})

	if outcomeOf(result, 7) != "" {
		t.Errorf("Expected stored alert 7 to be left alone, got %s", outcomeOf(result, 7))
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Status != alert.StatusAssigned {
		t.Errorf("Expected stored payload for alert 7 to be retained, got %v", result.Alerts)
	}
}

func TestReconcileOrdersByID(t *testing.T) {
	r, _ := newTestReconciler(t)

	result := runOnce(t, r, []alert.Raw{raw(30, "Open"), raw(10, "Open"), raw(20, "Open")})

	for i, expected := range []int64{10, 20, 30} {
		if result.Classified[i].Alert.ID != expected {
			t.Errorf("Expected classified[%d] id %d, got %d", i, expected, result.Classified[i].Alert.ID)
		}
		if result.Alerts[i].ID != expected {
			t.Errorf("Expected alerts[%d] id %d, got %d", i, expected, result.Alerts[i].ID)
		}
	}
}

func TestReconcileRunInProgress(t *testing.T) {
	r, _ := newTestReconciler(t)

	run, err := r.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()

	_, err = r.Begin(context.Background())
	if !errors.Is(err, snapshot.ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got: %v", err)
	}
}

type failingRepo struct {
	snapshot.Repository
}

func (failingRepo) Baseline(ctx context.Context) (map[int64]*snapshot.Entry, error) {
	return nil, snapshot.ErrStoreUnavailable
}

type countingLease struct {
	acquired int
	released int
}

var _ snapshot.Lease = (*countingLease)(nil)

func (l *countingLease) Acquire(ctx context.Context) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

func TestReconcileStoreUnavailableReleasesLease(t *testing.T) {
	lease := &countingLease{}
	r := NewReconciler(failingRepo{}, lease)

	_, err := r.Begin(context.Background())
	if !errors.Is(err, snapshot.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got: %v", err)
	}
	if lease.released != lease.acquired {
		t.Errorf("Expected lease to be released, acquired %d released %d", lease.acquired, lease.released)
	}
}
