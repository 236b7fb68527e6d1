package alert

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// hashField is encoded as a two-element JSON array. An absent value encodes as null, so it
// cannot collide with any string, and JSON quoting keeps separators inside values unambiguous.
type hashField struct {
	name  string
	value *string
}

func (f hashField) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.name, f.value})
}

// ComputeContentHash hashes every source-owned field except the ID. Fields are sorted by name
// before hashing so the result does not depend on declaration order, and text is NFC
// normalized so visually identical strings hash the same.
func (a *Alert) ComputeContentHash() string {
	fields := []hashField{
		{"service_area", Ptr(string(a.ServiceArea))},
		{"title", Ptr(a.Title)},
		{"description", Ptr(a.Description)},
		{"area_type", optional(a.AreaType, func(v AreaType) string { return string(v) })},
		{"area", optional(a.Area, identity)},
		{"location", optional(a.Location, identity)},
		{"publish_date", Ptr(formatTime(a.PublishDate))},
		{"effective_date", Ptr(formatTime(a.EffectiveDate))},
		{"expiry_date", Ptr(formatTime(a.ExpiryDate))},
		{"start_timestamp", Ptr(formatTime(a.StartTimestamp))},
		{"forecast_end_timestamp", optional(a.ForecastEndTimestamp, formatTime)},
		{"planned", Ptr(strconv.FormatBool(a.Planned))},
		{"request_number", optional(a.RequestNumber, identity)},
		{"status", Ptr(string(a.Status))},
	}

	slices.SortFunc(fields, func(x, y hashField) int {
		return cmp.Compare(x.name, y.name)
	})
	for i, f := range fields {
		if f.value != nil {
			fields[i].value = Ptr(norm.NFC.String(*f.value))
		}
	}

	// Marshalling strings and nil pointers cannot fail
	encoded, _ := json.Marshal(fields)

	hash := sha256.Sum256(encoded)
	return hex.EncodeToString(hash[:])
}

func optional[T any](p *T, format func(T) string) *string {
	if p == nil {
		return nil
	}
	return Ptr(format(*p))
}

func identity(s string) string {
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
