package reconcile

import (
	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/snapshot"
)

type Outcome string

const (
	OutcomeNew       Outcome = "NEW"
	OutcomeUpdated   Outcome = "UPDATED"
	OutcomeUnchanged Outcome = "UNCHANGED"
	OutcomeExpired   Outcome = "EXPIRED"
)

var Outcomes = []Outcome{OutcomeNew, OutcomeUpdated, OutcomeUnchanged, OutcomeExpired}

type Classified struct {
	Alert   *alert.Alert
	Outcome Outcome
	// Previous is the baseline entry, nil for NEW.
	Previous *snapshot.Entry
	// StatusChanged is set when the classification moved the alert to a different status.
	StatusChanged bool
}

// Changed reports whether the alert belongs in a change notification.
func (c Classified) Changed() bool {
	switch c.Outcome {
	case OutcomeNew, OutcomeUpdated:
		return true
	case OutcomeExpired:
		return c.StatusChanged
	}
	return false
}

type Result struct {
	// Classified is ordered by alert id.
	Classified []Classified
	HasChanges bool
	Invalid    []*alert.ValidationError

	// Alerts is every alert the feed should know about: the valid part of the pull plus the
	// history retained from the store. Ordered by id.
	Alerts []*alert.Alert
}

func (r *Result) Count(outcome Outcome) int {
	n := 0
	for _, c := range r.Classified {
		if c.Outcome == outcome {
			n++
		}
	}
	return n
}

// Changed returns the alerts that make up the change notification, ordered by id.
func (r *Result) Changed() []*alert.Alert {
	var changed []*alert.Alert
	for _, c := range r.Classified {
		if c.Changed() {
			changed = append(changed, c.Alert)
		}
	}
	return changed
}

// NeedsAugmentation returns the alerts whose collaborator fields must be recomputed.
func (r *Result) NeedsAugmentation() []*alert.Alert {
	var alerts []*alert.Alert
	for _, c := range r.Classified {
		if c.Outcome == OutcomeNew || c.Outcome == OutcomeUpdated {
			alerts = append(alerts, c.Alert)
		}
	}
	return alerts
}
