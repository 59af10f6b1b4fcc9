package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studiocal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// Occurrence is one concrete instance of a feed event.
type Occurrence struct {
	Source    Source
	UID       string
	Summary   string
	Location  string
	Cancelled bool
	AllDay    bool
	Start     time.Time
	End       time.Time
	// InstanceKey distinguishes instances of a recurring UID.
	InstanceKey string
}

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location is the studio zone occurrences are converted to. Nil means UTC.
	Location *time.Location

	// RangeStart / RangeEnd bound the loaded session window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded occurrences and the UIDs whose recurrence
// was cut off by the cap.
type ExpandResult struct {
	Occurrences     []Occurrence
	TruncatedEvents []string
}

// ExpandOccurrences expands parsed events into the occurrences that overlap
// [RangeStart, RangeEnd). RRULEs go through rrule-go with EXDATEs removed and
// RECURRENCE-ID overrides replacing their instance. Occurrences are returned
// in cfg.Location, ordered by start.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var uids []string
	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	for _, uid := range uids {
		for _, ev := range bases[uid] {
			var occ []Occurrence
			var capped bool
			if ev.RawRRule == "" {
				occ = expandSingle(ev, overrides[uid], cfg)
			} else {
				occ, capped = expandRecurring(ev, overrides[uid], cfg)
			}
			result.Occurrences = append(result.Occurrences, occ...)
			if capped {
				result.TruncatedEvents = append(result.TruncatedEvents, uid)
				appLog.Warn("feed recurrence truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	inst, start, end := applyOverride(ev, overrides, ev.Start, ev.End)
	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{newOccurrence(inst, ev.Start, start, end, cfg.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("feed rrule invalid", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Instances starting up to one duration before the window still overlap it.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	capped := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		capped = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		e := s.Add(dur)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
			e = s.AddDate(0, 0, int(dur.Hours()/24+0.5))
		}
		inst, start, end := applyOverride(ev, overrides, s, e)
		if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, newOccurrence(inst, s, start, end, cfg.Location))
	}
	return out, capped
}

// applyOverride returns the override whose RECURRENCE-ID equals start, or
// the base event unchanged.
func applyOverride(base ParsedEvent, overrides []ParsedEvent, start, end time.Time) (ParsedEvent, time.Time, time.Time) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, ov.Start, ov.End
		}
	}
	return base, start, end
}

// newOccurrence keys the instance by its recurrence start, so an override
// moved onto a sibling's slot keeps its own identity.
func newOccurrence(ev ParsedEvent, recurrence, start, end time.Time, loc *time.Location) Occurrence {
	start, end = start.In(loc), end.In(loc)
	return Occurrence{
		Source:      ev.Source,
		UID:         ev.UID,
		Summary:     ev.Summary,
		Location:    ev.Location,
		Cancelled:   ev.Cancelled(),
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
		InstanceKey: recurrence.UTC().Format(time.RFC3339),
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd). A
// zero-length a counts when it lies inside b.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
