package calview

import (
	"time"

	"studiocal/internal/apperror"
	"studiocal/internal/model"
)

// DefaultMaxVisible is how many sessions a month cell lists before
// collapsing the rest into "+N more".
const DefaultMaxVisible = 3

// MonthOptions controls month grid construction.
type MonthOptions struct {
	// FirstWeekday is the leftmost grid column. Sunday by default.
	FirstWeekday time.Weekday
	MaxVisible   int
}

// Cell is one day of the month grid.
type Cell struct {
	Date    time.Time
	DateKey string
	// InMonth is false for leading padding days from the previous month.
	InMonth  bool
	Sessions []*model.Session

	maxVisible int
}

// Visible returns at most MaxVisible sessions, in input order.
func (c Cell) Visible() []*model.Session {
	if c.maxVisible <= 0 || len(c.Sessions) <= c.maxVisible {
		return c.Sessions
	}
	return c.Sessions[:c.maxVisible]
}

// Overflow is the "+N more" count.
func (c Cell) Overflow() int {
	return len(c.Sessions) - len(c.Visible())
}

// MonthGrid is a 7-wide grid starting on FirstWeekday. It contains the
// leading padding cells and one cell per day of the month; the final week is
// not padded out.
type MonthGrid struct {
	Year         int
	Month        time.Month
	FirstWeekday time.Weekday
	Leading      int
	DaysInMonth  int
	Cells        []Cell
}

// Rows splits the cells into weeks of 7; the last row may be short.
func (g MonthGrid) Rows() [][]Cell {
	var rows [][]Cell
	for i := 0; i < len(g.Cells); i += 7 {
		end := i + 7
		if end > len(g.Cells) {
			end = len(g.Cells)
		}
		rows = append(rows, g.Cells[i:end])
	}
	return rows
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BuildMonth lays out month/year and buckets sessions into cells by the day
// key of their start time. Multi-day sessions are listed on their start day
// only.
func BuildMonth(year int, month time.Month, sessions []model.Session, k DayKeyer, opts MonthOptions) (MonthGrid, error) {
	if month < time.January || month > time.December {
		return MonthGrid{}, apperror.NewValidation("month must be between 1 and 12, got %d", int(month))
	}
	if opts.MaxVisible == 0 {
		opts.MaxVisible = DefaultMaxVisible
	}

	loc := k.Location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	leading := (int(first.Weekday()) - int(opts.FirstWeekday) + 7) % 7
	days := DaysInMonth(year, month)

	byStart := make(map[string][]*model.Session)
	for i := range sessions {
		key := k.Key(sessions[i].StartTime)
		byStart[key] = append(byStart[key], &sessions[i])
	}

	grid := MonthGrid{
		Year:         year,
		Month:        month,
		FirstWeekday: opts.FirstWeekday,
		Leading:      leading,
		DaysInMonth:  days,
		Cells:        make([]Cell, 0, leading+days),
	}

	// Padding days are day 0, -1, -2, ... relative to the 1st.
	for i := leading; i > 0; i-- {
		date := time.Date(year, month, 1-i, 0, 0, 0, 0, loc)
		grid.Cells = append(grid.Cells, newCell(date, false, byStart, k, opts.MaxVisible))
	}
	for d := 1; d <= days; d++ {
		date := time.Date(year, month, d, 0, 0, 0, 0, loc)
		grid.Cells = append(grid.Cells, newCell(date, true, byStart, k, opts.MaxVisible))
	}
	return grid, nil
}

func newCell(date time.Time, inMonth bool, byStart map[string][]*model.Session, k DayKeyer, maxVisible int) Cell {
	key := k.Key(date)
	return Cell{
		Date:       date,
		DateKey:    key,
		InMonth:    inMonth,
		Sessions:   byStart[key],
		maxVisible: maxVisible,
	}
}
