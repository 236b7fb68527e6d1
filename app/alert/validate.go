package alert

import (
	"fmt"
	"strings"
)

// ValidationError marks a record that cannot be published. The record is excluded from the
// run; it never fails the run.
type ValidationError struct {
	ID     int64
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("invalid alert: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid alert %d: %s %s", e.ID, e.Field, e.Reason)
}

func (a *Alert) Validate() error {
	invalid := func(field, reason string) error {
		return &ValidationError{ID: a.ID, Field: field, Reason: reason}
	}

	if a.ID <= 0 {
		return invalid("id", "is required")
	}
	if !a.ServiceArea.Valid() {
		return invalid("service_area", fmt.Sprintf("has unrecognized value %q", a.ServiceArea))
	}
	if strings.TrimSpace(a.Title) == "" {
		return invalid("title", "is required")
	}
	if !a.Status.Valid() {
		return invalid("status", fmt.Sprintf("has unrecognized value %q", a.Status))
	}
	if a.AreaType != nil && !a.AreaType.Valid() {
		return invalid("area_type", fmt.Sprintf("has unrecognized value %q", *a.AreaType))
	}

	requiredDates := []struct {
		field string
		zero  bool
	}{
		{"publish_date", a.PublishDate.IsZero()},
		{"effective_date", a.EffectiveDate.IsZero()},
		{"expiry_date", a.ExpiryDate.IsZero()},
		{"start_timestamp", a.StartTimestamp.IsZero()},
	}
	for _, d := range requiredDates {
		if d.zero {
			return invalid(d.field, "is required")
		}
	}

	if a.EffectiveDate.After(a.ExpiryDate) {
		return invalid("effective_date", "is after expiry_date")
	}

	return nil
}
