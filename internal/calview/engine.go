package calview

import (
	"fmt"
	"sync"
	"time"

	"studiocal/internal/apperror"
	"studiocal/internal/model"
)

// View selects which layout Render builds.
type View string

const (
	ViewMonth    View = "month"
	ViewWeek     View = "week"
	ViewSessions View = "sessions"
)

// ParseView validates a view name; empty means week.
func ParseView(s string) (View, error) {
	switch View(s) {
	case "":
		return ViewWeek, nil
	case ViewMonth, ViewWeek, ViewSessions:
		return View(s), nil
	}
	return "", apperror.NewValidation("unknown view %q (want month, week or sessions)", s)
}

// Snapshot is the immutable input of one render: a studio's sessions and the
// zone they are displayed in. Version changes whenever Sessions does.
type Snapshot struct {
	StudioID string
	Version  uint64
	Location *time.Location
	Sessions []model.Session
}

// Request is the navigation state of a render.
type Request struct {
	View View
	// Anchor is any instant in the week to show (week view) or, when Year
	// and Month are zero, in the month to show. Zero means now.
	Anchor time.Time
	Year   int
	Month  time.Month
	// Offset moves the anchor by whole weeks or months.
	Offset int
}

// RenderModel is what the rendering layer consumes. Exactly one of Month,
// Week and Groups is set.
type RenderModel struct {
	View     View
	Timezone string
	Month    *MonthGrid
	Week     *WeekGrid
	Now      *NowIndicator
	Groups   []DayGroup
}

// Config holds the engine's fixed options.
type Config struct {
	Policy       Policy
	FirstWeekday time.Weekday
	MaxVisible   int
	Clock        Clock
	// MemoSize bounds the render memo; 0 disables memoization.
	MemoSize int
}

// Engine renders snapshots. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	layout *Layout

	mu        sync.Mutex
	memo      map[string]*RenderModel
	memoRowPx float64
}

// New returns an engine placing week views against layout.
func New(cfg Config, layout *Layout) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if layout == nil {
		layout = NewLayout(0)
	}
	return &Engine{
		cfg:    cfg,
		layout: layout,
		memo:   make(map[string]*RenderModel),
	}
}

// Layout is the engine's shared week layout.
func (e *Engine) Layout() *Layout { return e.layout }

// Clock is the engine's time source.
func (e *Engine) Clock() Clock { return e.cfg.Clock }

// FirstWeekday is the leftmost column of week and month grids.
func (e *Engine) FirstWeekday() time.Weekday { return e.cfg.FirstWeekday }

// Keyer returns the day keyer for loc under the engine's policy.
func (e *Engine) Keyer(loc *time.Location) DayKeyer {
	return NewDayKeyer(loc, e.cfg.Policy)
}

// WeekStartFor resolves the week shown for anchor moved by offset weeks.
func (e *Engine) WeekStartFor(anchor time.Time, offset int, k DayKeyer) time.Time {
	if anchor.IsZero() {
		anchor = e.cfg.Clock.Now()
	}
	start := WeekStart(anchor, k, e.cfg.FirstWeekday)
	y, m, d := start.Date()
	return time.Date(y, m, d+7*offset, 0, 0, 0, 0, k.Location())
}

// Render builds the model for req from snap.
func (e *Engine) Render(snap Snapshot, req Request) (*RenderModel, error) {
	k := e.Keyer(snap.Location)
	if req.View == "" {
		req.View = ViewWeek
	}

	switch req.View {
	case ViewWeek:
		weekStart := e.WeekStartFor(req.Anchor, req.Offset, k)
		rm, err := e.memoized(snap, k, req.View, k.Key(weekStart), func() (*RenderModel, error) {
			week := BuildWeek(weekStart, SegmentAll(snap.Sessions, k), k, e.layout)
			return &RenderModel{View: ViewWeek, Timezone: k.Location().String(), Week: &week}, nil
		})
		if err != nil {
			return nil, err
		}
		// The now line moves every minute, so it is never memoized.
		out := *rm
		now := ComputeNow(e.cfg.Clock.Now(), weekStart, k, e.layout)
		out.Now = &now
		return &out, nil

	case ViewMonth:
		year, month := req.Year, req.Month
		if (year == 0) != (month == 0) {
			return nil, apperror.NewValidation("year and month must be given together")
		}
		if year == 0 && month == 0 {
			anchor := req.Anchor
			if anchor.IsZero() {
				anchor = e.cfg.Clock.Now()
			}
			year, month, _ = k.In(anchor).Date()
		}
		if month < time.January || month > time.December {
			return nil, apperror.NewValidation("month must be between 1 and 12, got %d", int(month))
		}
		first := time.Date(year, month+time.Month(req.Offset), 1, 0, 0, 0, 0, time.UTC)
		year, month = first.Year(), first.Month()
		return e.memoized(snap, k, req.View, fmt.Sprintf("%04d-%02d", year, int(month)), func() (*RenderModel, error) {
			grid, err := BuildMonth(year, month, snap.Sessions, k, MonthOptions{
				FirstWeekday: e.cfg.FirstWeekday,
				MaxVisible:   e.cfg.MaxVisible,
			})
			if err != nil {
				return nil, err
			}
			return &RenderModel{View: ViewMonth, Timezone: k.Location().String(), Month: &grid}, nil
		})

	case ViewSessions:
		return e.memoized(snap, k, req.View, "", func() (*RenderModel, error) {
			return &RenderModel{View: ViewSessions, Timezone: k.Location().String(), Groups: GroupByDay(snap.Sessions, k)}, nil
		})
	}
	return nil, apperror.NewValidation("unknown view %q", req.View)
}

// memoized caches build() under (studio, version, zone, view, anchor). The memo
// is dropped whenever the layout row height moves, since week placements
// depend on it.
func (e *Engine) memoized(snap Snapshot, k DayKeyer, view View, anchor string, build func() (*RenderModel, error)) (*RenderModel, error) {
	if e.cfg.MemoSize <= 0 || snap.Version == 0 {
		return build()
	}
	// Version only covers sessions; the zone changes keys and labels on its own.
	key := fmt.Sprintf("%s|%d|%s|%s|%s", snap.StudioID, snap.Version, k.Location(), view, anchor)
	rowPx := e.layout.RowHeightPx()

	e.mu.Lock()
	if e.memoRowPx != rowPx {
		e.memo = make(map[string]*RenderModel)
		e.memoRowPx = rowPx
	}
	if rm, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return rm, nil
	}
	e.mu.Unlock()

	rm, err := build()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.memo) >= e.cfg.MemoSize {
		e.memo = make(map[string]*RenderModel)
	}
	e.memo[key] = rm
	e.mu.Unlock()
	return rm, nil
}
