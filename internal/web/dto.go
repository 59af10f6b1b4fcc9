package web

import (
	"strconv"
	"time"

	"studiocal/internal/calview"
	"studiocal/internal/loader"
	"studiocal/internal/model"
)

type sessionDTO struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Source   string       `json:"source"`
	Status   model.Status `json:"status"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Client   string       `json:"client,omitempty"`
	Room     string       `json:"room,omitempty"`
	Engineer string       `json:"engineer,omitempty"`
}

func toSessionDTO(s *model.Session, loc *time.Location) sessionDTO {
	dto := sessionDTO{
		ID:       s.ID,
		Label:    s.Label(),
		Source:   s.Source,
		Status:   s.Status,
		Start:    s.StartTime.In(loc),
		End:      s.EndTime.In(loc),
		Room:     s.RoomName(),
		Engineer: s.Engineer.DisplayName(),
	}
	if s.Client != nil {
		dto.Client = s.Client.Name
	}
	return dto
}

func toSessionDTOs(sessions []*model.Session, loc *time.Location) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s, loc))
	}
	return out
}

type cellDTO struct {
	Date     string       `json:"date"`
	InMonth  bool         `json:"in_month"`
	Total    int          `json:"total"`
	Sessions []sessionDTO `json:"sessions"`
	Overflow int          `json:"overflow"`
}

type monthDTO struct {
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	FirstWeekday string    `json:"first_weekday"`
	Leading      int       `json:"leading"`
	DaysInMonth  int       `json:"days_in_month"`
	Cells        []cellDTO `json:"cells"`
}

func toMonthDTO(g *calview.MonthGrid, loc *time.Location) *monthDTO {
	dto := &monthDTO{
		Year:         g.Year,
		Month:        int(g.Month),
		FirstWeekday: g.FirstWeekday.String(),
		Leading:      g.Leading,
		DaysInMonth:  g.DaysInMonth,
		Cells:        make([]cellDTO, 0, len(g.Cells)),
	}
	for _, c := range g.Cells {
		dto.Cells = append(dto.Cells, cellDTO{
			Date:     c.DateKey,
			InMonth:  c.InMonth,
			Total:    len(c.Sessions),
			Sessions: toSessionDTOs(c.Visible(), loc),
			Overflow: c.Overflow(),
		})
	}
	return dto
}

type placementDTO struct {
	Session      sessionDTO `json:"session"`
	StartMinutes int        `json:"start_minutes"`
	EndMinutes   int        `json:"end_minutes"`
	TopPx        float64    `json:"top_px"`
	HeightPx     float64    `json:"height_px"`
	Continuation bool       `json:"continuation"`
	ShowDetails  bool       `json:"show_details"`
}

type columnDTO struct {
	Date       string         `json:"date"`
	Placements []placementDTO `json:"placements"`
}

type weekDTO struct {
	WeekStart   string      `json:"week_start"`
	RowHeightPx float64     `json:"row_height_px"`
	PxPerMinute float64     `json:"px_per_minute"`
	Hours       int         `json:"hours"`
	Columns     []columnDTO `json:"columns"`
}

func toWeekDTO(g *calview.WeekGrid, loc *time.Location) *weekDTO {
	dto := &weekDTO{
		WeekStart:   g.WeekStart.Format(calview.KeyLayout),
		RowHeightPx: g.RowHeightPx,
		PxPerMinute: g.PxPerMinute,
		Hours:       g.Hours,
		Columns:     make([]columnDTO, 0, len(g.Columns)),
	}
	for _, col := range g.Columns {
		c := columnDTO{Date: col.DateKey, Placements: make([]placementDTO, 0, len(col.Placements))}
		for _, p := range col.Placements {
			c.Placements = append(c.Placements, placementDTO{
				Session:      toSessionDTO(p.Session, loc),
				StartMinutes: p.StartMinutes,
				EndMinutes:   p.EndMinutes,
				TopPx:        p.TopPx,
				HeightPx:     p.HeightPx,
				Continuation: p.Continuation,
				ShowDetails:  p.ShowDetails,
			})
		}
		dto.Columns = append(dto.Columns, c)
	}
	return dto
}

type nowDTO struct {
	At      time.Time `json:"at"`
	Visible bool      `json:"visible"`
	Column  int       `json:"column"`
	TopPx   float64   `json:"top_px"`
}

func toNowDTO(n calview.NowIndicator, loc *time.Location) *nowDTO {
	return &nowDTO{At: n.At.In(loc), Visible: n.Visible, Column: n.Column, TopPx: n.TopPx}
}

type groupDTO struct {
	Date     string       `json:"date"`
	Label    string       `json:"label"`
	Sessions []sessionDTO `json:"sessions"`
}

type studioDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

type calendarResponse struct {
	Studio     studioDTO           `json:"studio"`
	View       calview.View        `json:"view"`
	Timezone   string              `json:"timezone"`
	Version    string              `json:"version"`
	RangeStart time.Time           `json:"range_start"`
	RangeEnd   time.Time           `json:"range_end"`
	Month      *monthDTO           `json:"month,omitempty"`
	Week       *weekDTO            `json:"week,omitempty"`
	Now        *nowDTO             `json:"now,omitempty"`
	Groups     []groupDTO          `json:"groups,omitempty"`
	Rejected   []calview.Rejection `json:"rejected,omitempty"`
}

func toCalendarResponse(snap *loader.Snapshot, rm *calview.RenderModel) calendarResponse {
	loc := snap.Location
	resp := calendarResponse{
		Studio: studioDTO{
			ID:       snap.Studio.ID,
			Name:     snap.Studio.Name,
			Timezone: loc.String(),
		},
		View:       rm.View,
		Timezone:   rm.Timezone,
		Version:    strconv.FormatUint(snap.Version, 16),
		RangeStart: snap.RangeStart,
		RangeEnd:   snap.RangeEnd,
		Rejected:   snap.Rejected,
	}
	if rm.Month != nil {
		resp.Month = toMonthDTO(rm.Month, loc)
	}
	if rm.Week != nil {
		resp.Week = toWeekDTO(rm.Week, loc)
	}
	if rm.Now != nil {
		resp.Now = toNowDTO(*rm.Now, loc)
	}
	if rm.View == calview.ViewSessions {
		resp.Groups = make([]groupDTO, 0, len(rm.Groups))
		for _, g := range rm.Groups {
			resp.Groups = append(resp.Groups, groupDTO{
				Date:     g.DayKey,
				Label:    g.DayLabel,
				Sessions: toSessionDTOs(g.Sessions, loc),
			})
		}
	}
	return resp
}

type layoutRequest struct {
	RowHeightPx float64 `json:"row_height_px"`
}

type layoutResponse struct {
	RowHeightPx float64 `json:"row_height_px"`
	PxPerMinute float64 `json:"px_per_minute"`
	Changed     bool    `json:"changed"`
}
