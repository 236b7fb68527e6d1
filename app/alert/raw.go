package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Raw is an alert as exported by the case-management list, before any cleaning.
// Empty strings stand for columns the export left out.
type Raw struct {
	ID              int64  `json:"id"`
	Title           string `json:"Title1"`
	ServiceArea     string `json:"Service_x0020_Area12"`
	Description     string `json:"Description12"`
	Planned         string `json:"Planned_x0020_Unplanned"`
	AreaType        string `json:"Areatype"`
	Area            string `json:"Area"`
	Location        string `json:"Address_x0020_Location_x0020_2"`
	PublishDate     string `json:"Publish_x0020_Date"`
	EffectiveDate   string `json:"Effective_x0020_Date"`
	StartTime       string `json:"Start_x0020_Time"`
	ForecastEndTime string `json:"Forecast_x0020_End_x0020_Time"`
	ExpiryDate      string `json:"Alert_x0020_Expiry_x0020_Date"`
	ReferenceNumber string `json:"Reference_x0020_No"`
	Status          string `json:"Status12"`
}

// SAST is the zone the case-management system captures wall-clock times in.
var SAST = time.FixedZone("SAST", 2*60*60)

var (
	referenceNumberRE = regexp.MustCompile(`^\d{10}$`)
	hourMinuteRE      = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Normalize cleans a raw record into the canonical model and validates it. The returned error
// is a *ValidationError whenever the record itself is at fault.
func Normalize(raw Raw) (*Alert, error) {
	invalid := func(field, reason string) error {
		return &ValidationError{ID: raw.ID, Field: field, Reason: reason}
	}

	a := &Alert{
		ID:          raw.ID,
		ServiceArea: ServiceArea(strings.TrimSpace(raw.ServiceArea)),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Area:        nonEmpty(raw.Area),
		Status:      Status(strings.TrimSpace(raw.Status)),
	}

	if areaType := nonEmpty(raw.AreaType); areaType != nil {
		a.AreaType = Ptr(AreaType(*areaType))
	}

	switch strings.TrimSpace(raw.Planned) {
	case "Planned":
		a.Planned = true
	case "Unplanned":
		a.Planned = false
	default:
		return nil, invalid("planned", fmt.Sprintf("has unrecognized value %q", raw.Planned))
	}

	var err error
	if a.PublishDate, err = parseDate(raw.PublishDate); err != nil {
		return nil, invalid("publish_date", err.Error())
	}
	if a.EffectiveDate, err = parseDate(raw.EffectiveDate); err != nil {
		return nil, invalid("effective_date", err.Error())
	}
	expiryDay, err := parseDate(raw.ExpiryDate)
	if err != nil {
		return nil, invalid("expiry_date", err.Error())
	}
	// The export holds the last day the alert applies; the alert expires the instant after.
	a.ExpiryDate = expiryDay.AddDate(0, 0, 1)

	startClock, ok := parseClock(raw.StartTime)
	if !ok {
		startClock = 0
	}
	a.StartTimestamp = atClock(a.EffectiveDate, startClock)

	if endClock, ok := parseClock(raw.ForecastEndTime); ok {
		end := atClock(expiryDay, endClock)
		if !end.After(a.StartTimestamp) {
			end = end.AddDate(0, 0, 1)
		}
		a.ForecastEndTimestamp = &end
	}

	if ref := strings.TrimSpace(raw.ReferenceNumber); referenceNumberRE.MatchString(ref) {
		n, _ := strconv.ParseInt(ref, 10, 64)
		a.RequestNumber = Ptr(fmt.Sprintf("%012d", n))
	}

	a.Location = cleanLocation(raw.Location, a.Description)

	if err := a.Validate(); err != nil {
		return nil, err
	}

	a.ContentHash = a.ComputeContentHash()
	return a, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("is not an RFC3339 timestamp: %q", s)
	}
	return t.UTC(), nil
}

// parseClock reads the list's HH:MM picker values. The picker allows a minute value of 60 and
// an unset "Select..." placeholder.
func parseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "60", "59")
	s = strings.ReplaceAll(s, "Select...", "00")
	if !hourMinuteRE.MatchString(s) {
		return 0, false
	}
	hours, _ := strconv.Atoi(s[:2])
	minutes, _ := strconv.Atoi(s[3:])
	if hours > 23 {
		return 0, false
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, true
}

// atClock returns the SAST wall-clock time on the SAST calendar day containing day.
func atClock(day time.Time, clock time.Duration) time.Time {
	local := day.In(SAST)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, SAST)
	return midnight.Add(clock).UTC()
}

// cleanLocation drops a location that only repeats the start of the description.
func cleanLocation(location, description string) *string {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil
	}
	n := min(len(location), len(description))
	if description != "" && location[:n] == description[:n] {
		return nil
	}
	return &location
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
