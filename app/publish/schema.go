package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/bucket"
)

type Version string

const (
	V0  Version = "v0"
	V1  Version = "v1"
	V11 Version = "v1.1"
	V12 Version = "v1.2"
)

// Versions lists the published schema versions, oldest first.
var Versions = []Version{V0, V1, V11, V12}

// Latest is the version single-alert payloads and notifications use.
const Latest = V12

const TimestampLayout = "2006-01-02T15:04:05.000Z"

type field struct {
	name  string
	value func(a *alert.Alert) any
}

var (
	v0Fields = []field{
		{"Id", func(a *alert.Alert) any { return a.ID }},
		{"service_area", func(a *alert.Alert) any { return string(a.ServiceArea) }},
		{"title", func(a *alert.Alert) any { return a.Title }},
		{"description", func(a *alert.Alert) any { return a.Description }},
		{"area", func(a *alert.Alert) any { return nullable(a.Area) }},
		{"location", func(a *alert.Alert) any { return nullable(a.Location) }},
		{"publish_date", func(a *alert.Alert) any { return timestamp(a.PublishDate) }},
		{"effective_date", func(a *alert.Alert) any { return timestamp(a.EffectiveDate) }},
		{"expiry_date", func(a *alert.Alert) any { return timestamp(a.ExpiryDate) }},
		{"start_timestamp", func(a *alert.Alert) any { return timestamp(a.StartTimestamp) }},
		{"forecast_end_timestamp", func(a *alert.Alert) any { return nullableTimestamp(a.ForecastEndTimestamp) }},
		{"planned", func(a *alert.Alert) any { return a.Planned }},
		{"request_number", func(a *alert.Alert) any { return nullable(a.RequestNumber) }},
	}

	v1Fields = extend(v0Fields,
		field{"tweet_text", func(a *alert.Alert) any { return nullable(a.Summary) }},
		field{"toot_text", func(a *alert.Alert) any { return nullable(a.TootText) }},
	)

	v11Fields = extend(v1Fields,
		field{"area_type", func(a *alert.Alert) any { return nullable(a.AreaType) }},
		field{"geospatial_footprint", func(a *alert.Alert) any { return nullable(a.GeospatialFootprint) }},
	)

	v12Fields = extend(v11Fields,
		field{"status", func(a *alert.Alert) any { return string(a.Status) }},
	)

	schemas = map[Version][]field{
		V0:  v0Fields,
		V1:  v1Fields,
		V11: v11Fields,
		V12: v12Fields,
	}
)

// extend builds a version from its predecessor, so every field of an older version is carried
// into the newer one unchanged.
func extend(base []field, added ...field) []field {
	return append(slices.Clip(base), added...)
}

// FieldNames lists a version's fields in output order.
func FieldNames(version Version) []string {
	fields := schemas[version]
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Project encodes one alert as a JSON object in the version's field order.
func Project(version Version, a *alert.Alert) ([]byte, error) {
	fields, ok := schemas[version]
	if !ok {
		return nil, fmt.Errorf("unknown schema version %q", version)
	}

	var buf bytes.Buffer
	if err := writeObject(&buf, fields, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProjectList encodes alerts as a JSON array, keeping their order.
func ProjectList(version Version, alerts []*alert.Alert) ([]byte, error) {
	fields, ok := schemas[version]
	if !ok {
		return nil, fmt.Errorf("unknown schema version %q", version)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, a := range alerts {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeObject(&buf, fields, a); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')

	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, fields []field, a *alert.Alert) error {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, _ := encode(f.name)
		buf.Write(name)
		buf.WriteByte(':')

		value, err := encode(f.value(a))
		if err != nil {
			return fmt.Errorf("failed to encode field %s of alert %d: %w", f.name, a.ID, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}

// encode marshals v without HTML escaping, so "Water & Sanitation" stays readable.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// BucketPath is where a version publishes a bucket.
func BucketPath(version Version, key bucket.Key) (string, error) {
	switch version {
	case V0:
		return fmt.Sprintf("coct-service_alerts-%s-%s.json", key.Timeframe, key.Planned), nil
	case V1:
		return fmt.Sprintf("v1/coct-service_alerts-%s-%s.json", key.Timeframe, key.Planned), nil
	case V11, V12:
		return fmt.Sprintf("%s/service-alerts/%s/%s", version, key.Timeframe, key.Planned), nil
	}
	return "", fmt.Errorf("unknown schema version %q", version)
}

// AlertPaths are where a version publishes a single alert. Versions before v1.1 have none, and
// the latest version also writes alerts/{id}.json.
func AlertPaths(version Version, id int64) []string {
	var paths []string
	switch version {
	case V11, V12:
		paths = append(paths, fmt.Sprintf("%s/service-alert/%d", version, id))
	}
	if version == Latest {
		paths = append(paths, fmt.Sprintf("alerts/%d.json", id))
	}
	return paths
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func nullableTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestamp(*t)
}
