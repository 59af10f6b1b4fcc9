package calview

import "studiocal/internal/model"

// Segment is the part of one session that falls on one local calendar day.
// StartMinutes/EndMinutes are minutes since local midnight, 0 <= Start < End <= 1440.
type Segment struct {
	Session      *model.Session
	DateKey      string
	StartMinutes int
	EndMinutes   int
}

// Minutes is the segment's length.
func (s Segment) Minutes() int {
	return s.EndMinutes - s.StartMinutes
}

// Continuation reports whether this segment is on a later day than the
// session's start day.
func (s Segment) Continuation(k DayKeyer) bool {
	return s.DateKey != k.Key(s.Session.StartTime)
}

// SegmentSession splits s into one segment per local day its [start, end)
// interval touches. A session ending exactly at local midnight does not get a
// trailing empty segment, and a zero-length or inverted session yields none.
func SegmentSession(s *model.Session, k DayKeyer) []Segment {
	if !s.EndTime.After(s.StartTime) {
		return nil
	}

	startKey := k.Key(s.StartTime)
	endKey := k.Key(s.EndTime)

	var out []Segment
	cursor := k.StartOfDay(s.StartTime)
	for {
		key := k.Key(cursor)
		if key > endKey {
			break
		}

		segStart := 0
		if key == startKey {
			segStart = k.MinutesSinceMidnight(s.StartTime)
		}
		segEnd := MinutesPerDay
		if key == endKey {
			segEnd = k.MinutesSinceMidnight(s.EndTime)
		}
		if segEnd > segStart {
			out = append(out, Segment{
				Session:      s,
				DateKey:      key,
				StartMinutes: segStart,
				EndMinutes:   segEnd,
			})
		}

		if key == endKey {
			break
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return out
}

// SegmentAll segments every session, keeping input order.
func SegmentAll(sessions []model.Session, k DayKeyer) []Segment {
	out := make([]Segment, 0, len(sessions))
	for i := range sessions {
		out = append(out, SegmentSession(&sessions[i], k)...)
	}
	return out
}

// ByDay buckets segments by DateKey, preserving their relative order.
func ByDay(segments []Segment) map[string][]Segment {
	out := make(map[string][]Segment)
	for _, seg := range segments {
		out[seg.DateKey] = append(out[seg.DateKey], seg)
	}
	return out
}
