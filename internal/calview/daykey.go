// Package calview turns a flat list of sessions into calendar render models:
// month cells, week columns with pixel placement, and a chronological agenda.
// Everything here is a pure function of its inputs; nothing is persisted or
// shared between renders.
package calview

import (
	"fmt"
	"time"
)

// KeyLayout is the day-key format.
const KeyLayout = "2006-01-02"

// MinutesPerDay is the exclusive upper bound of a segment's minute range.
const MinutesPerDay = 24 * 60

// Policy selects which calendar a day key is taken from.
type Policy int

const (
	// PolicyLocal keys instants by the calendar date in the keyer's
	// location. All views use this.
	PolicyLocal Policy = iota
	// PolicyUTC keys instants by their UTC date, for storage-side keys that
	// must not move with the studio timezone.
	PolicyUTC
)

func (p Policy) String() string {
	if p == PolicyUTC {
		return "utc"
	}
	return "local"
}

// ParsePolicy accepts "local" or "utc"; anything else is an error.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "local":
		return PolicyLocal, nil
	case "utc":
		return PolicyUTC, nil
	}
	return PolicyLocal, fmt.Errorf("unknown day key policy %q", s)
}

// DayKeyer derives day keys and time-of-day offsets for a single zone.
type DayKeyer struct {
	loc    *time.Location
	policy Policy
}

// NewDayKeyer returns a keyer for loc. A nil loc means UTC.
func NewDayKeyer(loc *time.Location, policy Policy) DayKeyer {
	if loc == nil {
		loc = time.UTC
	}
	return DayKeyer{loc: loc, policy: policy}
}

// Location is the zone keys are computed in.
func (k DayKeyer) Location() *time.Location {
	if k.policy == PolicyUTC || k.loc == nil {
		return time.UTC
	}
	return k.loc
}

// In converts t to the keyer's zone.
func (k DayKeyer) In(t time.Time) time.Time {
	return t.In(k.Location())
}

// Key returns YYYY-MM-DD for the date t falls on in the keyer's zone.
func (k DayKeyer) Key(t time.Time) string {
	y, m, d := k.In(t).Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// StartOfDay returns local midnight of the day t falls on. On days where
// midnight does not exist (DST gap at 00:00) time.Date normalizes forward.
func (k DayKeyer) StartOfDay(t time.Time) time.Time {
	y, m, d := k.In(t).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, k.Location())
}

// MinutesSinceMidnight is the wall-clock minute of day of t, in [0, 1440).
func (k DayKeyer) MinutesSinceMidnight(t time.Time) int {
	lt := k.In(t)
	return lt.Hour()*60 + lt.Minute()
}

// ParseKey is the inverse of Key: it returns local midnight of key's date.
func (k DayKeyer) ParseKey(key string) (time.Time, error) {
	return time.ParseInLocation(KeyLayout, key, k.Location())
}
