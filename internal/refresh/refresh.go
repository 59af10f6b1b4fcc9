// Package refresh re-imports external calendar feeds on a cron schedule and
// drops cached session windows so database edits show up on the next load.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studiocal/internal/config"
	"studiocal/internal/ics"
	"studiocal/internal/loader"
	appLog "studiocal/internal/log"
)

// Report summarizes one refresh run.
type Report struct {
	Feeds    int
	Imported int
	Sessions int
	Errors   []error
}

// Refresher imports feeds into a loader's FeedStore.
type Refresher struct {
	fetcher *ics.Fetcher
	loader  *loader.Loader
	sources []ics.Source
	// studios are invalidated on every run even without feeds.
	studios []string

	// AfterRun, when set, runs after every refresh (preview capture).
	AfterRun func(ctx context.Context) error

	now func() time.Time
	mu  sync.Mutex
}

// New builds a Refresher for the configured feeds. extraStudios are studios
// whose cached windows are dropped on every run.
func New(fetcher *ics.Fetcher, l *loader.Loader, feeds []config.FeedConfig, extraStudios ...string) *Refresher {
	r := &Refresher{fetcher: fetcher, loader: l, now: time.Now}
	seen := make(map[string]bool)
	for _, f := range feeds {
		r.sources = append(r.sources, ics.Source{StudioID: f.StudioID, ID: f.ID, Name: f.Name, URL: f.URL})
		if !seen[f.StudioID] {
			seen[f.StudioID] = true
			r.studios = append(r.studios, f.StudioID)
		}
	}
	for _, id := range extraStudios {
		if id != "" && !seen[id] {
			seen[id] = true
			r.studios = append(r.studios, id)
		}
	}
	return r
}

// RunOnce fetches, parses and expands every feed, then invalidates cached
// windows. Overlapping calls are serialized.
func (r *Refresher) RunOnce(ctx context.Context) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.now()
	rep := Report{Feeds: len(r.sources)}

	results, errs := r.fetcher.FetchAll(ctx, r.sources)
	rep.Errors = append(rep.Errors, errs...)

	for _, res := range results {
		n, err := r.importFeed(ctx, res)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("feed %s: %w", res.Source.ID, err))
			continue
		}
		rep.Imported++
		rep.Sessions += n
	}

	for _, id := range r.studios {
		r.loader.Invalidate(ctx, id)
	}

	if r.AfterRun != nil {
		if err := r.AfterRun(ctx); err != nil {
			rep.Errors = append(rep.Errors, err)
			appLog.Error("refresh hook failed", err)
		}
	}

	appLog.Info("refresh completed",
		"feeds", rep.Feeds,
		"imported", rep.Imported,
		"sessions", rep.Sessions,
		"errors", len(rep.Errors),
		"took", time.Since(started).Round(time.Millisecond).String(),
	)
	return rep
}

func (r *Refresher) importFeed(ctx context.Context, res ics.FetchResult) (int, error) {
	src := res.Source
	loc := r.loader.Location(ctx, src.StudioID)
	from, to := r.loader.Window(loc)

	events, err := ics.ParseICS(src, res.Body, loc)
	if err != nil {
		return 0, err
	}
	expanded, err := ics.ExpandOccurrences(events, ics.ExpandConfig{
		Location:   loc,
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		return 0, err
	}

	sessions := ics.ToSessions(expanded.Occurrences)
	r.loader.Feeds().Replace(src.StudioID, src.ID, sessions, r.now())
	appLog.Debug("feed imported", "studio", src.StudioID, "feed", src.ID,
		"sessions", len(sessions), "from_cache", res.FromCache)
	return len(sessions), nil
}

// Start schedules RunOnce on schedule until ctx is cancelled. A run still in
// progress when the next one is due is skipped.
func (r *Refresher) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, errors.New("refresh schedule is empty")
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() { r.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	appLog.Info("refresh scheduled", "schedule", schedule, "feeds", len(r.sources))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("refresh scheduler stopped")
	}()
	return c, nil
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
