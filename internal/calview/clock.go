package calview

import (
	"context"
	"time"
)

// NowRefreshInterval is how often the current time line moves.
const NowRefreshInterval = time.Minute

// Ticker is the subset of *time.Ticker the engine uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock supplies the current time and tickers, so tests can drive the now
// indicator without waiting on wall-clock timers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// WatchNow calls emit with the now indicator for the week at weekStart:
// once immediately, then on every tick of interval and every layout change.
// It returns when ctx is done.
func WatchNow(ctx context.Context, clock Clock, interval time.Duration, weekStart time.Time, k DayKeyer, layout *Layout, emit func(NowIndicator)) {
	if interval <= 0 {
		interval = NowRefreshInterval
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	changed := layout.Changed()
	emit(ComputeNow(clock.Now(), weekStart, k, layout))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			emit(ComputeNow(clock.Now(), weekStart, k, layout))
		case <-changed:
			changed = layout.Changed()
			emit(ComputeNow(clock.Now(), weekStart, k, layout))
		}
	}
}
