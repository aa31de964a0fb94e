package session

import (
	"fmt"
	"time"
)

// ServiceDuration is a purchasable service period.
type ServiceDuration string

// Service durations.
const (
	Week       ServiceDuration = "week"
	Month      ServiceDuration = "month"
	Year       ServiceDuration = "year"
	TwoYears   ServiceDuration = "two-years"
	ThreeYears ServiceDuration = "three-years"
)

// ServiceDurations lists every ServiceDuration.
func ServiceDurations() []ServiceDuration {
	return []ServiceDuration{Week, Month, Year, TwoYears, ThreeYears}
}

// ActiveUntil returns when a service bought at from ends. Unknown durations
// return from unchanged.
func (d ServiceDuration) ActiveUntil(from time.Time) time.Time {
	switch d {
	case Week:
		return from.AddDate(0, 0, 7)
	case Month:
		return from.AddDate(0, 1, 0)
	case Year:
		return from.AddDate(1, 0, 0)
	case TwoYears:
		return from.AddDate(2, 0, 0)
	case ThreeYears:
		return from.AddDate(3, 0, 0)
	}
	return from
}

// ActiveUntilLayout formats the end of a service period for display.
const ActiveUntilLayout = "Jan 2, 2006"

// WillBeActiveUntil formats when a service bought at from ends.
func (d ServiceDuration) WillBeActiveUntil(from time.Time) string {
	return d.ActiveUntil(from).Format(ActiveUntilLayout)
}

// ParseServiceDuration parses s.
func ParseServiceDuration(s string) (ServiceDuration, error) {
	for _, d := range ServiceDurations() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown service duration %q", s)
}
