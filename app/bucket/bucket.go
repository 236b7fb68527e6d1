package bucket

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
)

type Timeframe string

const (
	TimeframeCurrent Timeframe = "current"
	Timeframe7Days   Timeframe = "7days"
	TimeframeAll     Timeframe = "all"
)

var Timeframes = []Timeframe{TimeframeCurrent, Timeframe7Days, TimeframeAll}

const RecentWindow = 7 * 24 * time.Hour

// Includes reports whether the alert belongs in the timeframe at now. Only Closed removes an
// alert from current early; a resolved alert stays until its expiry date passes.
func (t Timeframe) Includes(a *alert.Alert, now time.Time) bool {
	switch t {
	case TimeframeCurrent:
		return !a.EffectiveDate.After(now) && !now.After(a.ExpiryDate) && a.Status != alert.StatusClosed
	case Timeframe7Days:
		windowStart := now.Add(-RecentWindow)
		return !a.EffectiveDate.After(now) && !a.ExpiryDate.Before(windowStart)
	case TimeframeAll:
		return true
	}
	return false
}

type Planned string

const (
	PlannedYes Planned = "planned"
	PlannedNo  Planned = "unplanned"
)

var PlannedValues = []Planned{PlannedYes, PlannedNo}

func PlannedOf(a *alert.Alert) Planned {
	if a.Planned {
		return PlannedYes
	}
	return PlannedNo
}

type Key struct {
	Timeframe Timeframe
	Planned   Planned
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Timeframe, k.Planned)
}

// Keys enumerates every bucket, timeframe-major.
func Keys() []Key {
	keys := make([]Key, 0, len(Timeframes)*len(PlannedValues))
	for _, timeframe := range Timeframes {
		for _, planned := range PlannedValues {
			keys = append(keys, Key{Timeframe: timeframe, Planned: planned})
		}
	}
	return keys
}

func ParseKey(timeframe, planned string) (Key, error) {
	key := Key{Timeframe: Timeframe(timeframe), Planned: Planned(planned)}
	if !slices.Contains(Timeframes, key.Timeframe) {
		return Key{}, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	if !slices.Contains(PlannedValues, key.Planned) {
		return Key{}, fmt.Errorf("unknown planned status %q", planned)
	}
	return key, nil
}

type Bucket struct {
	Key    Key
	Alerts []*alert.Alert
}

// Assign places every alert into each bucket whose rule it satisfies. Every bucket is present
// in the result, empty or not, and alerts in a bucket are ordered by id.
func Assign(alerts []*alert.Alert, now time.Time) []Bucket {
	sorted := slices.Clone(alerts)
	slices.SortStableFunc(sorted, func(a, b *alert.Alert) int {
		return cmp.Compare(a.ID, b.ID)
	})

	keys := Keys()
	buckets := make([]Bucket, len(keys))
	for i, key := range keys {
		buckets[i] = Bucket{Key: key, Alerts: []*alert.Alert{}}
		for _, a := range sorted {
			if PlannedOf(a) == key.Planned && key.Timeframe.Includes(a, now) {
				buckets[i].Alerts = append(buckets[i].Alerts, a)
			}
		}
	}

	return buckets
}
