package alert

import (
	"time"
)

type Status string

const (
	StatusOpen          Status = "Open"
	StatusAssigned      Status = "Assigned"
	StatusCrewOnSite    Status = "Crew on Site"
	StatusIssueResolved Status = "Issue Resolved"
	StatusClosed        Status = "Closed"
)

var statuses = map[Status]bool{
	StatusOpen:          true,
	StatusAssigned:      true,
	StatusCrewOnSite:    true,
	StatusIssueResolved: true,
	StatusClosed:        true,
}

func (s Status) Valid() bool {
	return statuses[s]
}

// Terminal reports whether the source has finished with the alert. Terminal alerts are not
// expired again when they drop out of the pull.
func (s Status) Terminal() bool {
	return s == StatusIssueResolved || s == StatusClosed
}

type ServiceArea string

// ServiceAreas is the closed set of departments that publish alerts.
var ServiceAreas = []ServiceArea{
	"Water & Sanitation",
	"Electricity",
	"Refuse",
	"Drivers Licence Enquiries",
	"Motor Vehicle Registration",
	"Water Management",
	"Events",
	"City Health",
	"Roads & Stormwater",
	"Transport",
	"MyCiTi",
	"Traffic Services",
	"Fire & Rescue",
	"Disaster Risk Management",
	"Law Enforcement",
	"Recreation & Parks",
	"Libraries",
	"Cemeteries",
	"Human Settlements",
	"Informal Settlements",
	"Environmental Health",
	"Rates & Billing",
	"Customer Relations",
	"Solid Waste Management",
	"Scientific Services",
}

func (s ServiceArea) Valid() bool {
	for _, area := range ServiceAreas {
		if area == s {
			return true
		}
	}
	return false
}

type AreaType string

// AreaTypes names the GIS datasets an alert's area can be looked up against.
var AreaTypes = []AreaType{
	"Official Planning Suburb",
	"Solid Waste Regional Service Area",
	"Citywide",
	"Driving Licence Testing Centre",
	"Ward",
	"Electricity Service Area",
	"Water Service Area",
}

func (a AreaType) Valid() bool {
	for _, areaType := range AreaTypes {
		if areaType == a {
			return true
		}
	}
	return false
}

// Alert is the canonical record. Pointer fields are optional: nil means the source (or the
// collaborator that owns the field) had nothing to say.
type Alert struct {
	ID          int64       `json:"id"`
	ServiceArea ServiceArea `json:"service_area"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	AreaType    *AreaType   `json:"area_type"`
	Area        *string     `json:"area"`
	Location    *string     `json:"location"`

	PublishDate          time.Time  `json:"publish_date"`
	EffectiveDate        time.Time  `json:"effective_date"`
	ExpiryDate           time.Time  `json:"expiry_date"`
	StartTimestamp       time.Time  `json:"start_timestamp"`
	ForecastEndTimestamp *time.Time `json:"forecast_end_timestamp"`

	Planned       bool    `json:"planned"`
	RequestNumber *string `json:"request_number"`
	Status        Status  `json:"status"`

	// Collaborator-owned, excluded from ContentHash
	GeospatialFootprint *string `json:"geospatial_footprint"`
	Summary             *string `json:"summary"`
	TootText            *string `json:"toot_text"`

	ContentHash string `json:"content_hash"`
}

// Clone returns a copy that shares no pointers with a.
func (a *Alert) Clone() *Alert {
	c := *a
	c.AreaType = clonePtr(a.AreaType)
	c.Area = clonePtr(a.Area)
	c.Location = clonePtr(a.Location)
	c.ForecastEndTimestamp = clonePtr(a.ForecastEndTimestamp)
	c.RequestNumber = clonePtr(a.RequestNumber)
	c.GeospatialFootprint = clonePtr(a.GeospatialFootprint)
	c.Summary = clonePtr(a.Summary)
	c.TootText = clonePtr(a.TootText)
	return &c
}

// CopyAugmentation carries the collaborator-owned fields over from a previous version of the
// same alert.
func (a *Alert) CopyAugmentation(prev *Alert) {
	if prev == nil {
		return
	}
	a.GeospatialFootprint = clonePtr(prev.GeospatialFootprint)
	a.Summary = clonePtr(prev.Summary)
	a.TootText = clonePtr(prev.TootText)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func Ptr[T any](v T) *T {
	return &v
}
