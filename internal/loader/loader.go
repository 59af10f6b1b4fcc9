// Package loader assembles the session snapshot a calendar page renders
// from: the studio's zone, its database sessions in the loaded window, and
// sessions imported from external feeds.
package loader

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"sort"
	"time"

	"studiocal/internal/apperror"
	"studiocal/internal/calview"
	appLog "studiocal/internal/log"
	"studiocal/internal/model"
	"studiocal/internal/store"
)

// SessionSource is the studio database. store.PostgresSource implements it.
type SessionSource interface {
	Studio(ctx context.Context, id string) (*model.Studio, error)
	ListSessions(ctx context.Context, studioID string, from, to time.Time) ([]model.Session, error)
}

// Options configures a Loader.
type Options struct {
	// DefaultTimezone applies to studios without a timezone.
	DefaultTimezone string
	MonthsBack      int
	MonthsForward   int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Snapshot is one studio's loaded sessions.
type Snapshot struct {
	Studio     model.Studio
	Location   *time.Location
	Sessions   []model.Session
	Rejected   []calview.Rejection
	RangeStart time.Time
	RangeEnd   time.Time
	// Version fingerprints Sessions; equal versions mean equal sessions.
	Version  uint64
	LoadedAt time.Time
}

// View is the engine input for s.
func (s *Snapshot) View() calview.Snapshot {
	return calview.Snapshot{
		StudioID: s.Studio.ID,
		Version:  s.Version,
		Location: s.Location,
		Sessions: s.Sessions,
	}
}

// Loader builds snapshots. src may be nil when only feeds are configured.
type Loader struct {
	src   SessionSource
	feeds *FeedStore
	cache store.Cache
	opts  Options
}

func New(src SessionSource, feeds *FeedStore, cache store.Cache, opts Options) *Loader {
	if feeds == nil {
		feeds = NewFeedStore()
	}
	if cache == nil {
		cache = store.NewMemoryCache(30 * time.Second)
	}
	if opts.MonthsBack <= 0 {
		opts.MonthsBack = 3
	}
	if opts.MonthsForward <= 0 {
		opts.MonthsForward = 6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loader{src: src, feeds: feeds, cache: cache, opts: opts}
}

// Feeds is the store refresh writes imported sessions into.
func (l *Loader) Feeds() *FeedStore { return l.feeds }

// Window returns the loaded range for a studio in loc: from local midnight
// MonthsBack months ago to local midnight MonthsForward months ahead.
func (l *Loader) Window(loc *time.Location) (time.Time, time.Time) {
	now := l.opts.Now().In(loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return today.AddDate(0, -l.opts.MonthsBack, 0), today.AddDate(0, l.opts.MonthsForward, 0)
}

// Load returns the snapshot for studioID.
func (l *Loader) Load(ctx context.Context, studioID string) (*Snapshot, error) {
	if studioID == "" {
		return nil, apperror.NewValidation("studio id is required")
	}

	win, err := l.window(ctx, studioID)
	if err != nil {
		return nil, err
	}

	loc := l.resolveLocation(win.Studio.Timezone)
	merged := make([]model.Session, 0, len(win.Sessions))
	merged = append(merged, win.Sessions...)
	merged = append(merged, l.feeds.Sessions(studioID, win.RangeStart, win.RangeEnd)...)

	valid, rejected := calview.Validate(merged)
	for _, r := range rejected {
		appLog.Warn("session rejected", "studio", studioID, "session", r.SessionID, "reason", r.Reason)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].StartTime.Before(valid[j].StartTime)
	})

	return &Snapshot{
		Studio:     win.Studio,
		Location:   loc,
		Sessions:   valid,
		Rejected:   rejected,
		RangeStart: win.RangeStart,
		RangeEnd:   win.RangeEnd,
		Version:    fingerprint(valid),
		LoadedAt:   win.LoadedAt,
	}, nil
}

// Invalidate drops the cached window of studioID.
func (l *Loader) Invalidate(ctx context.Context, studioID string) {
	if err := l.cache.Invalidate(ctx, studioID); err != nil {
		appLog.Error("cache invalidate failed", err, "studio", studioID)
	}
}

// window returns the database part of the snapshot, from cache when the
// cached range still matches today's window.
func (l *Loader) window(ctx context.Context, studioID string) (*store.Window, error) {
	cached, ok, err := l.cache.Get(ctx, studioID)
	if err != nil {
		appLog.Error("cache read failed", err, "studio", studioID)
	}
	if ok {
		from, to := l.Window(l.resolveLocation(cached.Studio.Timezone))
		if cached.Covers(from, to) {
			return cached, nil
		}
	}

	studio, err := l.studio(ctx, studioID)
	if err != nil {
		return nil, err
	}
	loc := l.resolveLocation(studio.Timezone)
	from, to := l.Window(loc)

	var sessions []model.Session
	if l.src != nil {
		sessions, err = l.src.ListSessions(ctx, studioID, from, to)
		if err != nil {
			return nil, apperror.NewUnavailable("loading sessions failed", err)
		}
	}

	win := &store.Window{
		Studio:     *studio,
		Sessions:   sessions,
		RangeStart: from,
		RangeEnd:   to,
		LoadedAt:   l.opts.Now(),
	}
	if err := l.cache.Set(ctx, studioID, win); err != nil {
		appLog.Error("cache write failed", err, "studio", studioID)
	}
	appLog.Debug("session window loaded", "studio", studioID, "sessions", len(sessions),
		"from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))
	return win, nil
}

func (l *Loader) studio(ctx context.Context, studioID string) (*model.Studio, error) {
	if l.src == nil {
		if !l.feeds.Has(studioID) {
			return nil, apperror.NewNotFound("studio %q not found", studioID)
		}
		return &model.Studio{ID: studioID, Name: studioID}, nil
	}
	st, err := l.src.Studio(ctx, studioID)
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.NewUnavailable("loading studio failed", err)
	}
	return st, nil
}

// Location resolves the display zone of studioID without loading sessions.
func (l *Loader) Location(ctx context.Context, studioID string) *time.Location {
	if cached, ok, _ := l.cache.Get(ctx, studioID); ok {
		return l.resolveLocation(cached.Studio.Timezone)
	}
	if l.src != nil {
		if st, err := l.src.Studio(ctx, studioID); err == nil {
			return l.resolveLocation(st.Timezone)
		}
	}
	return l.resolveLocation("")
}

// resolveLocation loads name, falling back to the default timezone and then
// UTC.
func (l *Loader) resolveLocation(name string) *time.Location {
	for _, candidate := range []string{name, l.opts.DefaultTimezone} {
		if candidate == "" {
			continue
		}
		loc, err := time.LoadLocation(candidate)
		if err == nil {
			return loc
		}
		appLog.Error("failed to load timezone", err, "name", candidate)
	}
	return time.UTC
}

// fingerprint hashes everything a render depends on.
func fingerprint(sessions []model.Session) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	for i := range sessions {
		s := &sessions[i]
		write(s.ID)
		write(string(s.Status))
		write(s.Label())
		write(s.RoomName())
		write(s.Engineer.DisplayName())
		binary.LittleEndian.PutUint64(buf[:], uint64(s.StartTime.UnixNano()))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(s.EndTime.UnixNano()))
		_, _ = h.Write(buf[:])
	}
	// Zero means "unversioned" to the render memo.
	if v := h.Sum64(); v != 0 {
		return v
	}
	return 1
}
