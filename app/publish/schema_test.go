package publish

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/bucket"
)

func testAlert(id int64) *alert.Alert {
	a := &alert.Alert{
		ID:             id,
		ServiceArea:    "Water & Sanitation",
		Title:          "Burst pipe",
		Description:    "Water outage",
		Area:           alert.Ptr("GUGULETHU"),
		PublishDate:    time.Date(2024, 2, 13, 22, 0, 0, 0, time.UTC),
		EffectiveDate:  time.Date(2024, 2, 13, 22, 0, 0, 0, time.UTC),
		ExpiryDate:     time.Date(2024, 2, 15, 22, 0, 0, 0, time.UTC),
		StartTimestamp: time.Date(2024, 2, 14, 6, 0, 0, 0, time.UTC),
		Status:         alert.StatusOpen,
		Summary:        alert.Ptr("Water outage in Gugulethu"),
		AreaType:       alert.Ptr(alert.AreaType("Official Planning Suburb")),
	}
	a.ContentHash = a.ComputeContentHash()
	return a
}

func TestVersionsAreAdditive(t *testing.T) {
	a := testAlert(23121)

	for i := 1; i < len(Versions); i++ {
		older, newer := Versions[i-1], Versions[i]

		olderNames := FieldNames(older)
		newerNames := FieldNames(newer)
		if len(newerNames) <= len(olderNames) {
			t.Errorf("Expected %s to add fields to %s", newer, older)
		}
		for j, name := range olderNames {
			if newerNames[j] != name {
				t.Errorf("Expected %s field %d to be %s, got %s", newer, j, name, newerNames[j])
			}
		}

		var olderObj, newerObj map[string]json.RawMessage
		olderData, err := Project(older, a)
		if err != nil {
			t.Fatal(err)
		}
		newerData, err := Project(newer, a)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(olderData, &olderObj); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(newerData, &newerObj); err != nil {
			t.Fatal(err)
		}

		for name, value := range olderObj {
			if !bytes.Equal(newerObj[name], value) {
				t.Errorf("Expected %s.%s to equal %s.%s: %s != %s", newer, name, older, name, newerObj[name], value)
			}
		}
	}
}

func TestProjectFields(t *testing.T) {
	expected := map[Version][]string{
		V0:  {"Id", "service_area", "title", "description", "area", "location", "publish_date", "effective_date", "expiry_date", "start_timestamp", "forecast_end_timestamp", "planned", "request_number"},
		V12: {"tweet_text", "toot_text", "area_type", "geospatial_footprint", "status"},
	}

	names := FieldNames(V0)
	if strings.Join(names, ",") != strings.Join(expected[V0], ",") {
		t.Errorf("Unexpected v0 fields: %v", names)
	}

	names = FieldNames(V12)
	tail := names[len(names)-len(expected[V12]):]
	if strings.Join(tail, ",") != strings.Join(expected[V12], ",") {
		t.Errorf("Unexpected v1.2 additions: %v", tail)
	}
}

func TestProjectNullsAndFormatting(t *testing.T) {
	data, err := Project(V12, testAlert(23121))
	if err != nil {
		t.Fatal(err)
	}

	s := string(data)
	for _, fragment := range []string{
		`{"Id":23121,`,
		`"service_area":"Water & Sanitation"`,
		`"location":null`,
		`"forecast_end_timestamp":null`,
		`"request_number":null`,
		`"toot_text":null`,
		`"geospatial_footprint":null`,
		`"effective_date":"2024-02-13T22:00:00.000Z"`,
		`"tweet_text":"Water outage in Gugulethu"`,
		`"planned":false`,
		`"status":"Open"}`,
	} {
		if !strings.Contains(s, fragment) {
			t.Errorf("Expected %s in %s", fragment, s)
		}
	}
}

func TestProjectListIsByteStable(t *testing.T) {
	alerts := []*alert.Alert{testAlert(1), testAlert(2)}

	first, err := ProjectList(V11, alerts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ProjectList(V11, []*alert.Alert{alerts[0].Clone(), alerts[1].Clone()})
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("Expected identical bytes, got\n%s\n%s", first, second)
	}

	empty, err := ProjectList(V0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "[]" {
		t.Errorf("Expected empty list to render as [], got %s", empty)
	}
}

func TestPaths(t *testing.T) {
	key := bucket.Key{Timeframe: bucket.Timeframe7Days, Planned: bucket.PlannedNo}

	expected := map[Version]string{
		V0:  "coct-service_alerts-7days-unplanned.json",
		V1:  "v1/coct-service_alerts-7days-unplanned.json",
		V11: "v1.1/service-alerts/7days/unplanned",
		V12: "v1.2/service-alerts/7days/unplanned",
	}
	for version, want := range expected {
		got, err := BucketPath(version, key)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Expected %s path %s, got %s", version, want, got)
		}
	}

	if _, err := BucketPath("v9", key); err == nil {
		t.Error("Expected error for unknown version")
	}

	singles := map[Version][]string{
		V0:  nil,
		V1:  nil,
		V11: {"v1.1/service-alert/23121"},
		V12: {"v1.2/service-alert/23121", "alerts/23121.json"},
	}
	for version, want := range singles {
		got := AlertPaths(version, 23121)
		if !slices.Equal(got, want) {
			t.Errorf("Expected %s single-alert paths %v, got %v", version, want, got)
		}
	}
}

func TestRender(t *testing.T) {
	now := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)
	buckets := bucket.Assign([]*alert.Alert{testAlert(23121)}, now)

	artifacts, failures := Render(buckets, []*alert.Alert{testAlert(23121)})
	if len(failures) != 0 {
		t.Fatalf("Expected no render failures, got %v", failures)
	}

	// 6 buckets for each of 4 versions, plus single-alert artifacts for v1.1 and two for v1.2
	if len(artifacts) != 27 {
		t.Errorf("Expected 27 artifacts, got %d", len(artifacts))
	}

	paths := make(map[string]bool)
	byPath := make(map[string]Artifact)
	for _, a := range artifacts {
		if paths[a.Path] {
			t.Errorf("Duplicate artifact path %s", a.Path)
		}
		paths[a.Path] = true
		byPath[a.Path] = a
	}

	if !paths["v1.2/service-alerts/current/unplanned"] {
		t.Error("Expected v1.2 current/unplanned artifact")
	}
	if !paths["v1.1/service-alert/23121"] {
		t.Error("Expected v1.1 single-alert artifact")
	}

	single, ok := byPath["alerts/23121.json"]
	if !ok {
		t.Fatal("Expected alerts/23121.json artifact")
	}
	if single.Version != Latest {
		t.Errorf("Expected alerts/23121.json in %s, got %s", Latest, single.Version)
	}
	latest, err := Project(Latest, testAlert(23121))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(single.Data, latest) {
		t.Errorf("Expected alerts/23121.json to hold the %s projection, got %s", Latest, single.Data)
	}
	if !bytes.Equal(single.Data, byPath["v1.2/service-alert/23121"].Data) {
		t.Error("Expected alerts/23121.json to match v1.2/service-alert/23121")
	}
}
