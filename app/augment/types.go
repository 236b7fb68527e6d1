package augment

import (
	"context"
	"errors"
	"fmt"

	"github.com/coct-data/service-alerts/app/alert"
)

var ErrCollaboratorTimeout = errors.New("collaborator timed out")

// Geocoder resolves an alert's area and location to a WKT footprint (EPSG:4326). An empty
// result with a nil error means nothing was found.
type Geocoder interface {
	Geocode(ctx context.Context, a *alert.Alert) (string, error)
}

// Summariser drafts short social media text for an alert.
type Summariser interface {
	Summarise(ctx context.Context, a *alert.Alert) (string, error)
}

const (
	CollaboratorGeocoder   = "geocoder"
	CollaboratorSummariser = "summariser"
)

// Failure is a collaborator call that left its field empty. It never fails the run.
type Failure struct {
	AlertID      int64
	Collaborator string
	Err          error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed for alert %d: %v", f.Collaborator, f.AlertID, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Timeout() bool {
	return errors.Is(f.Err, ErrCollaboratorTimeout)
}
