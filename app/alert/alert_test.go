package alert

import (
	"errors"
	"testing"
	"time"
)

func testRaw() Raw {
	return Raw{
		ID:              23121,
		Title:           "Burst pipe",
		ServiceArea:     "Water & Sanitation",
		Description:     "Water outage affecting Gugulethu",
		Planned:         "Unplanned",
		AreaType:        "Official Planning Suburb",
		Area:            "GUGULETHU",
		Location:        "NY 1, Gugulethu",
		PublishDate:     "2024-02-13T22:00:00Z",
		EffectiveDate:   "2024-02-13T22:00:00Z",
		StartTime:       "08:00",
		ForecastEndTime: "16:60",
		ExpiryDate:      "2024-02-14T22:00:00Z",
		ReferenceNumber: "9123456789",
		Status:          "Open",
	}
}

func TestNormalize(t *testing.T) {
	a, err := Normalize(testRaw())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if a.ID != 23121 {
		t.Errorf("Expected id 23121, got %d", a.ID)
	}
	if a.Planned {
		t.Error("Expected unplanned alert")
	}
	if a.Status != StatusOpen {
		t.Errorf("Expected status Open, got %s", a.Status)
	}

	expectedExpiry := time.Date(2024, 2, 15, 22, 0, 0, 0, time.UTC)
	if !a.ExpiryDate.Equal(expectedExpiry) {
		t.Errorf("Expected expiry %v, got %v", expectedExpiry, a.ExpiryDate)
	}

	// 08:00 SAST on 14 Feb
	expectedStart := time.Date(2024, 2, 14, 6, 0, 0, 0, time.UTC)
	if !a.StartTimestamp.Equal(expectedStart) {
		t.Errorf("Expected start %v, got %v", expectedStart, a.StartTimestamp)
	}

	// 16:59 SAST on 15 Feb, the last day the alert applies
	expectedEnd := time.Date(2024, 2, 15, 14, 59, 0, 0, time.UTC)
	if a.ForecastEndTimestamp == nil {
		t.Fatal("Expected forecast end timestamp")
	}
	if !a.ForecastEndTimestamp.Equal(expectedEnd) {
		t.Errorf("Expected forecast end %v, got %v", expectedEnd, *a.ForecastEndTimestamp)
	}

	if a.RequestNumber == nil || *a.RequestNumber != "009123456789" {
		t.Errorf("Expected request number '009123456789', got %v", a.RequestNumber)
	}
	if a.Location == nil || *a.Location != "NY 1, Gugulethu" {
		t.Errorf("Expected location 'NY 1, Gugulethu', got %v", a.Location)
	}
	if a.AreaType == nil || *a.AreaType != "Official Planning Suburb" {
		t.Errorf("Expected area type 'Official Planning Suburb', got %v", a.AreaType)
	}
	if a.ContentHash == "" {
		t.Error("Expected content hash to be set")
	}
	if a.Summary != nil || a.GeospatialFootprint != nil || a.TootText != nil {
		t.Error("Expected collaborator fields to be nil after normalization")
	}
}

func TestNormalizeOptionalFields(t *testing.T) {
	raw := testRaw()
	raw.ForecastEndTime = "Select...:garbage"
	raw.ReferenceNumber = "n/a"
	raw.AreaType = ""
	raw.Area = "  "
	raw.Location = "Water outage"

	a, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if a.ForecastEndTimestamp != nil {
		t.Errorf("Expected nil forecast end, got %v", *a.ForecastEndTimestamp)
	}
	if a.RequestNumber != nil {
		t.Errorf("Expected nil request number, got %s", *a.RequestNumber)
	}
	if a.AreaType != nil {
		t.Errorf("Expected nil area type, got %s", *a.AreaType)
	}
	if a.Area != nil {
		t.Errorf("Expected nil area, got %s", *a.Area)
	}
	if a.Location != nil {
		t.Errorf("Expected location repeating the description to be dropped, got %s", *a.Location)
	}
}

func TestNormalizeStartTimePlaceholder(t *testing.T) {
	raw := testRaw()
	raw.StartTime = "09:Select..."

	a, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := time.Date(2024, 2, 14, 7, 0, 0, 0, time.UTC)
	if !a.StartTimestamp.Equal(expected) {
		t.Errorf("Expected start %v, got %v", expected, a.StartTimestamp)
	}
}

func TestNormalizeForecastEndRollsOver(t *testing.T) {
	raw := testRaw()
	raw.ExpiryDate = raw.EffectiveDate
	raw.StartTime = "22:00"
	raw.ForecastEndTime = "02:00"

	a, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if a.ForecastEndTimestamp == nil {
		t.Fatal("Expected forecast end timestamp")
	}
	if !a.ForecastEndTimestamp.After(a.StartTimestamp) {
		t.Errorf("Expected forecast end %v after start %v", *a.ForecastEndTimestamp, a.StartTimestamp)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Raw)
		field  string
	}{
		{"planned", func(r *Raw) { r.Planned = "Maybe" }, "planned"},
		{"status", func(r *Raw) { r.Status = "Pending" }, "status"},
		{"service area", func(r *Raw) { r.ServiceArea = "Ministry of Magic" }, "service_area"},
		{"area type", func(r *Raw) { r.AreaType = "Galaxy" }, "area_type"},
		{"title", func(r *Raw) { r.Title = "   " }, "title"},
		{"publish date", func(r *Raw) { r.PublishDate = "" }, "publish_date"},
		{"effective date", func(r *Raw) { r.EffectiveDate = "13/02/2024" }, "effective_date"},
		{"date order", func(r *Raw) { r.EffectiveDate = "2024-03-01T00:00:00Z" }, "effective_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := testRaw()
			tt.mutate(&raw)

			a, err := Normalize(raw)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if a != nil {
				t.Error("Expected nil alert for invalid record")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field '%s', got '%s'", tt.field, verr.Field)
			}
			if verr.ID != 23121 {
				t.Errorf("Expected id 23121, got %d", verr.ID)
			}
		})
	}
}

func TestContentHashIgnoresCollaboratorFields(t *testing.T) {
	a, err := Normalize(testRaw())
	if err != nil {
		t.Fatal(err)
	}

	b := a.Clone()
	b.Summary = Ptr("Water outage in Gugulethu")
	b.TootText = Ptr("Water outage in Gugulethu\n#WaterAndSanitation #CapeTown")
	b.GeospatialFootprint = Ptr("POLYGON((18.5 -33.9, 18.6 -33.9, 18.6 -34.0, 18.5 -33.9))")

	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Error("Expected collaborator fields to be excluded from the content hash")
	}
}

func TestContentHashDetectsChanges(t *testing.T) {
	a, err := Normalize(testRaw())
	if err != nil {
		t.Fatal(err)
	}

	closed := a.Clone()
	closed.Status = StatusClosed
	if a.ComputeContentHash() == closed.ComputeContentHash() {
		t.Error("Expected status change to change the content hash")
	}

	noArea := a.Clone()
	noArea.Area = nil
	emptyArea := a.Clone()
	emptyArea.Area = Ptr("")
	if noArea.ComputeContentHash() == emptyArea.ComputeContentHash() {
		t.Error("Expected absent and empty optional fields to hash differently")
	}
}

func TestContentHashUnambiguous(t *testing.T) {
	a, err := Normalize(testRaw())
	if err != nil {
		t.Fatal(err)
	}

	// The line break moves between adjacent fields; the joined text is the same
	injected := a.Clone()
	injected.Area = Ptr("LWANDLE\narea_type=Suburb")
	injected.AreaType = Ptr(AreaType("Town"))
	split := a.Clone()
	split.Area = Ptr("LWANDLE")
	split.AreaType = Ptr(AreaType("Suburb\narea_type=Town"))
	if injected.ComputeContentHash() == split.ComputeContentHash() {
		t.Error("Expected embedded separators not to collide with separate fields")
	}

	nul := a.Clone()
	nul.Area = Ptr("\x00")
	missing := a.Clone()
	missing.Area = nil
	if nul.ComputeContentHash() == missing.ComputeContentHash() {
		t.Error("Expected a NUL value to hash differently from an absent field")
	}
}

func TestContentHashNormalizesUnicode(t *testing.T) {
	a, err := Normalize(testRaw())
	if err != nil {
		t.Fatal(err)
	}

	composed := a.Clone()
	composed.Title = "Caf\u00e9 closed"
	decomposed := a.Clone()
	decomposed.Title = "Cafe\u0301 closed"

	if composed.ComputeContentHash() != decomposed.ComputeContentHash() {
		t.Error("Expected NFC-equivalent titles to hash the same")
	}
}

func TestCopyAugmentation(t *testing.T) {
	prev := &Alert{ID: 1, Summary: Ptr("summary"), TootText: Ptr("toot")}
	a := &Alert{ID: 1}

	a.CopyAugmentation(prev)
	if a.Summary == nil || *a.Summary != "summary" {
		t.Errorf("Expected summary to be carried forward, got %v", a.Summary)
	}

	*prev.Summary = "changed"
	if *a.Summary != "summary" {
		t.Error("Expected carried forward fields not to share memory with the previous alert")
	}

	a.CopyAugmentation(nil)
	if a.Summary == nil {
		t.Error("Expected nil previous alert to be a no-op")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusOpen:          false,
		StatusAssigned:      false,
		StatusCrewOnSite:    false,
		StatusIssueResolved: true,
		StatusClosed:        true,
	}

	for status, expected := range terminal {
		if status.Terminal() != expected {
			t.Errorf("Expected %s terminal=%v", status, expected)
		}
	}
}
