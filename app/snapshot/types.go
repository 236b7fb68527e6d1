package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
)

var (
	// ErrStoreUnavailable wraps every failure to read or write the store. A run that hits it
	// aborts before publishing anything.
	ErrStoreUnavailable = errors.New("snapshot store unavailable")

	// ErrRunInProgress is returned when another run holds the lease.
	ErrRunInProgress = errors.New("run already in progress")
)

// Entry is the last known state of one alert. Entries are never deleted.
type Entry struct {
	ID          int64
	ContentHash string
	Status      alert.Status
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	ExpiredAt   *time.Time

	// Alert is the payload as last published, collaborator fields included.
	Alert *alert.Alert
}

// Batch is everything one run writes, committed in a single transaction.
type Batch struct {
	// Upserts hold NEW, UPDATED and EXPIRED entries.
	Upserts []Entry
	// Seen lists UNCHANGED ids whose last_seen_at moves to SeenAt.
	Seen   []int64
	SeenAt time.Time
}

func (b Batch) Empty() bool {
	return len(b.Upserts) == 0 && len(b.Seen) == 0
}

type Repository interface {
	Get(ctx context.Context, id int64) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	AllIDs(ctx context.Context) ([]int64, error)
	Baseline(ctx context.Context) (map[int64]*Entry, error)
	Commit(ctx context.Context, batch Batch) error
	Count(ctx context.Context) (int, error)
}

// Lease grants exclusive store access to one run at a time. Acquire fails with
// ErrRunInProgress while another holder's lease is live.
type Lease interface {
	Acquire(ctx context.Context) (release func(), err error)
}
