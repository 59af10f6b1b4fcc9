package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"studiocal/internal/calview"
	"studiocal/internal/loader"
	appLog "studiocal/internal/log"
	"studiocal/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(
	template.New("pages").Funcs(template.FuncMap{
		"px": func(v float64) string { return fmt.Sprintf("%.2fpx", v) },
	}).ParseFS(templateFS, "templates/*.html"),
)

type pageBase struct {
	Title     string
	StudioID  string
	Studio    string
	Timezone  string
	View      string
	PrevURL   string
	NextURL   string
	TodayURL  string
	Rejected  int
	Generated string
}

type hourRow struct {
	Label  string
	Height float64
}

type weekBlock struct {
	Top, Height float64
	Label       string
	Time        string
	Room        string
	Engineer    string
	Status      string
	ShowDetails bool
}

type weekColumn struct {
	DateKey string
	Weekday string
	Day     string
	Today   bool
	Blocks  []weekBlock
}

type weekPage struct {
	pageBase
	RowHeightPx float64
	GridHeight  float64
	Hours       []hourRow
	Columns     []weekColumn
	Now         calview.NowIndicator
	Anchor      string
}

type monthCell struct {
	Day      int
	DateKey  string
	InMonth  bool
	Today    bool
	Labels   []string
	Overflow int
}

type monthPage struct {
	pageBase
	Weekdays []string
	Rows     [][]monthCell
}

type agendaEntry struct {
	Time   string
	Label  string
	Room   string
	Status string
}

type agendaDay struct {
	Label   string
	Entries []agendaEntry
}

type sessionsPage struct {
	pageBase
	Days []agendaDay
}

func (s *Server) handleWeekPage(w http.ResponseWriter, r *http.Request) {
	snap, rm, err := s.render(r, calview.ViewWeek)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePage(w, "week.html", s.buildWeekPage(snap, rm))
}

func (s *Server) handleMonthPage(w http.ResponseWriter, r *http.Request) {
	snap, rm, err := s.render(r, calview.ViewMonth)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePage(w, "month.html", s.buildMonthPage(snap, rm))
}

func (s *Server) handleSessionsPage(w http.ResponseWriter, r *http.Request) {
	snap, rm, err := s.render(r, calview.ViewSessions)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writePage(w, "sessions.html", s.buildSessionsPage(snap, rm))
}

// writePage renders into a buffer first so a template error still yields a
// clean error response.
func (s *Server) writePage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("template render failed", err, "template", name)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) newPageBase(snap *loader.Snapshot, rm *calview.RenderModel, title string) pageBase {
	name := snap.Studio.Name
	if name == "" {
		name = snap.Studio.ID
	}
	return pageBase{
		Title:     title,
		StudioID:  snap.Studio.ID,
		Studio:    name,
		Timezone:  rm.Timezone,
		View:      string(rm.View),
		Rejected:  len(snap.Rejected),
		Generated: s.engine.Clock().Now().In(snap.Location).Format(time.RFC3339),
	}
}

func (s *Server) buildWeekPage(snap *loader.Snapshot, rm *calview.RenderModel) weekPage {
	g := rm.Week
	k := s.engine.Keyer(snap.Location)
	todayKey := k.Key(s.engine.Clock().Now())

	p := weekPage{
		pageBase:    s.newPageBase(snap, rm, "Week of "+g.WeekStart.Format("January 2, 2006")),
		RowHeightPx: g.RowHeightPx,
		GridHeight:  g.RowHeightPx * float64(g.Hours),
		Anchor:      g.WeekStart.Format(calview.KeyLayout),
	}
	if rm.Now != nil {
		p.Now = *rm.Now
	}
	p.PrevURL = "?anchor=" + g.WeekStart.AddDate(0, 0, -calview.DaysPerWeek).Format(calview.KeyLayout)
	p.NextURL = "?anchor=" + g.WeekStart.AddDate(0, 0, calview.DaysPerWeek).Format(calview.KeyLayout)
	p.TodayURL = "?"

	for h := 0; h < g.Hours; h++ {
		label := time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("3 PM")
		p.Hours = append(p.Hours, hourRow{Label: label, Height: g.RowHeightPx})
	}

	for _, col := range g.Columns {
		wc := weekColumn{
			DateKey: col.DateKey,
			Weekday: col.Date.Format("Mon"),
			Day:     col.Date.Format("1/2"),
			Today:   col.DateKey == todayKey,
		}
		for _, pl := range col.Placements {
			sess := pl.Session
			wc.Blocks = append(wc.Blocks, weekBlock{
				Top:         pl.TopPx,
				Height:      pl.HeightPx,
				Label:       sess.Label(),
				Time:        timeRange(sess, k),
				Room:        sess.RoomName(),
				Engineer:    sess.Engineer.DisplayName(),
				Status:      string(sess.Status),
				ShowDetails: pl.ShowDetails,
			})
		}
		p.Columns = append(p.Columns, wc)
	}
	return p
}

func (s *Server) buildMonthPage(snap *loader.Snapshot, rm *calview.RenderModel) monthPage {
	g := rm.Month
	k := s.engine.Keyer(snap.Location)
	todayKey := k.Key(s.engine.Clock().Now())
	first := time.Date(g.Year, g.Month, 1, 0, 0, 0, 0, time.UTC)

	p := monthPage{pageBase: s.newPageBase(snap, rm, first.Format("January 2006"))}
	prev, next := first.AddDate(0, -1, 0), first.AddDate(0, 1, 0)
	p.PrevURL = monthURL(prev)
	p.NextURL = monthURL(next)
	p.TodayURL = "?"

	for i := 0; i < calview.DaysPerWeek; i++ {
		p.Weekdays = append(p.Weekdays, time.Weekday((int(g.FirstWeekday)+i)%7).String()[:3])
	}
	for _, row := range g.Rows() {
		cells := make([]monthCell, 0, len(row))
		for _, c := range row {
			mc := monthCell{
				Day:      c.Date.Day(),
				DateKey:  c.DateKey,
				InMonth:  c.InMonth,
				Today:    c.DateKey == todayKey,
				Overflow: c.Overflow(),
			}
			for _, sess := range c.Visible() {
				mc.Labels = append(mc.Labels, k.In(sess.StartTime).Format("15:04")+" "+sess.Label())
			}
			cells = append(cells, mc)
		}
		p.Rows = append(p.Rows, cells)
	}
	return p
}

func (s *Server) buildSessionsPage(snap *loader.Snapshot, rm *calview.RenderModel) sessionsPage {
	k := s.engine.Keyer(snap.Location)
	p := sessionsPage{pageBase: s.newPageBase(snap, rm, "All sessions")}
	for _, g := range rm.Groups {
		day := agendaDay{Label: g.DayLabel}
		for _, sess := range g.Sessions {
			day.Entries = append(day.Entries, agendaEntry{
				Time:   timeRange(sess, k),
				Label:  sess.Label(),
				Room:   sess.RoomName(),
				Status: string(sess.Status),
			})
		}
		p.Days = append(p.Days, day)
	}
	return p
}

func timeRange(s *model.Session, k calview.DayKeyer) string {
	return k.In(s.StartTime).Format("15:04") + "–" + k.In(s.EndTime).Format("15:04")
}

func monthURL(t time.Time) string {
	v := url.Values{}
	v.Set("year", fmt.Sprint(t.Year()))
	v.Set("month", fmt.Sprint(int(t.Month())))
	return "?" + v.Encode()
}
