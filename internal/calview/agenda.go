package calview

import (
	"sort"

	"studiocal/internal/model"
)

// DayLabelLayout formats agenda headers.
const DayLabelLayout = "Monday, January 2, 2006"

// DayGroup is one agenda header and the sessions listed under it.
type DayGroup struct {
	DayKey   string
	DayLabel string
	Sessions []*model.Session
}

// GroupByDay stable-sorts sessions by start time and groups consecutive
// sessions sharing a local day. Multi-day sessions appear once, under
// their start day.
func GroupByDay(sessions []model.Session, k DayKeyer) []DayGroup {
	sorted := make([]*model.Session, len(sessions))
	for i := range sessions {
		sorted[i] = &sessions[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	var groups []DayGroup
	for _, s := range sorted {
		label := k.In(s.StartTime).Format(DayLabelLayout)
		if n := len(groups); n > 0 && groups[n-1].DayLabel == label {
			groups[n-1].Sessions = append(groups[n-1].Sessions, s)
			continue
		}
		groups = append(groups, DayGroup{
			DayKey:   k.Key(s.StartTime),
			DayLabel: label,
			Sessions: []*model.Session{s},
		})
	}
	return groups
}
