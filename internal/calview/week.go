package calview

import (
	"math"
	"sync"
	"time"
)

const (
	// HoursPerDay is the number of hour rows in the week grid.
	HoursPerDay = 24
	// DaysPerWeek is the number of day columns in the week grid.
	DaysPerWeek = 7

	// DefaultRowHeightPx is used when no measurement or configuration is set.
	DefaultRowHeightPx = 48.0

	// remeasureThresholdPx is the smallest row height change that triggers
	// a relayout.
	remeasureThresholdPx = 0.5

	// segmentGapPx separates vertically adjacent blocks.
	segmentGapPx = 1.0
	// minBlockPx keeps very short segments visible.
	minBlockPx = 1.0
)

// Layout holds the hour row height the week grid is placed against. It is
// safe for concurrent use; renders read it while a measurement may update it.
type Layout struct {
	mu          sync.RWMutex
	rowHeightPx float64
	changed     chan struct{}
}

// NewLayout returns a layout with the given row height, or the default if
// rowHeightPx is not positive.
func NewLayout(rowHeightPx float64) *Layout {
	if rowHeightPx <= 0 {
		rowHeightPx = DefaultRowHeightPx
	}
	return &Layout{rowHeightPx: rowHeightPx, changed: make(chan struct{})}
}

// Changed returns a channel that is closed the next time the row height
// changes. Call it again after it fires.
func (l *Layout) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// RowHeightPx is the current hour row height.
func (l *Layout) RowHeightPx() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rowHeightPx
}

// PxPerMinute is RowHeightPx / 60.
func (l *Layout) PxPerMinute() float64 {
	return l.RowHeightPx() / 60
}

// Remeasure adopts a freshly measured row height if it differs from the
// current one by at least half a pixel, and reports whether it did.
func (l *Layout) Remeasure(measuredPx float64) bool {
	if measuredPx <= 0 || math.IsNaN(measuredPx) || math.IsInf(measuredPx, 0) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if math.Abs(measuredPx-l.rowHeightPx) < remeasureThresholdPx {
		return false
	}
	l.rowHeightPx = measuredPx
	if l.changed != nil {
		close(l.changed)
	}
	l.changed = make(chan struct{})
	return true
}

// Placement is a segment positioned inside its day column.
type Placement struct {
	Segment
	TopPx    float64
	HeightPx float64
	// Continuation is true when the segment is not on the session's
	// start day; ShowDetails is its negation and gates the room/time labels.
	Continuation bool
	ShowDetails  bool
}

// Column is one day of the week grid.
type Column struct {
	Date       time.Time
	DateKey    string
	Placements []Placement
}

// WeekGrid is 7 day columns by 24 hour rows.
type WeekGrid struct {
	WeekStart   time.Time
	RowHeightPx float64
	PxPerMinute float64
	Hours       int
	Columns     []Column
}

// ColumnIndex returns the column for key, or -1.
func (g WeekGrid) ColumnIndex(key string) int {
	for i, c := range g.Columns {
		if c.DateKey == key {
			return i
		}
	}
	return -1
}

// WeekStart returns local midnight of the first-weekday on or before t.
func WeekStart(t time.Time, k DayKeyer, first time.Weekday) time.Time {
	day := k.StartOfDay(t)
	back := (int(day.Weekday()) - int(first) + 7) % 7
	y, m, d := day.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, k.Location())
}

// BuildWeek places every segment that lands in the 7 days from weekStart,
// keeping segment order within each column. weekStart is normalized to
// local midnight.
func BuildWeek(weekStart time.Time, segments []Segment, k DayKeyer, layout *Layout) WeekGrid {
	ppm := layout.PxPerMinute()
	start := k.StartOfDay(weekStart)

	grid := WeekGrid{
		WeekStart:   start,
		RowHeightPx: layout.RowHeightPx(),
		PxPerMinute: ppm,
		Hours:       HoursPerDay,
		Columns:     make([]Column, DaysPerWeek),
	}
	index := make(map[string]int, DaysPerWeek)
	y, m, d := start.Date()
	for i := 0; i < DaysPerWeek; i++ {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, k.Location())
		key := k.Key(date)
		grid.Columns[i] = Column{Date: date, DateKey: key}
		index[key] = i
	}

	for _, seg := range segments {
		col, ok := index[seg.DateKey]
		if !ok {
			continue
		}
		cont := seg.Continuation(k)
		grid.Columns[col].Placements = append(grid.Columns[col].Placements, Placement{
			Segment:      seg,
			TopPx:        float64(seg.StartMinutes) * ppm,
			HeightPx:     blockHeight(seg.Minutes(), ppm),
			Continuation: cont,
			ShowDetails:  !cont,
		})
	}
	return grid
}

// blockHeight is the drawn height of a segment: its length less the gap,
// never below minBlockPx.
func blockHeight(minutes int, ppm float64) float64 {
	return math.Max(float64(minutes)*ppm-segmentGapPx, minBlockPx)
}

// NowIndicator is the horizontal "current time" line of the week view.
type NowIndicator struct {
	At      time.Time
	Visible bool
	Column  int
	TopPx   float64
}

// ComputeNow positions the current time line for the week starting at
// weekStart. It is hidden when now falls outside that week.
func ComputeNow(now, weekStart time.Time, k DayKeyer, layout *Layout) NowIndicator {
	ind := NowIndicator{At: now, Column: -1}
	start := k.StartOfDay(weekStart)
	y, m, d := start.Date()
	key := k.Key(now)
	for i := 0; i < DaysPerWeek; i++ {
		if k.Key(time.Date(y, m, d+i, 0, 0, 0, 0, k.Location())) == key {
			ind.Visible = true
			ind.Column = i
			ind.TopPx = float64(k.MinutesSinceMidnight(now)) * layout.PxPerMinute()
			break
		}
	}
	return ind
}
