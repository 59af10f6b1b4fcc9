package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiocal/internal/config"
	"studiocal/internal/ics"
	"studiocal/internal/loader"
)

const roomsFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:booking-1\r\n" +
	"DTSTAMP:20240301T000000Z\r\n" +
	"DTSTART:20240312T100000Z\r\n" +
	"DTEND:20240312T120000Z\r\n" +
	"SUMMARY:Drum tracking\r\n" +
	"LOCATION:Live Room\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken.ics") {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(roomsFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLoader(t *testing.T) *loader.Loader {
	now := time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)
	return loader.New(nil, nil, nil, loader.Options{
		DefaultTimezone: "UTC",
		Now:             func() time.Time { return now },
	})
}

func TestRunOnceImportsFeeds(t *testing.T) {
	srv := feedServer(t)
	l := newLoader(t)
	r := New(ics.NewFetcher(t.TempDir()), l, []config.FeedConfig{
		{StudioID: "studio-1", ID: "rooms", URL: srv.URL + "/rooms.ics"},
		{StudioID: "studio-1", ID: "broken", URL: srv.URL + "/broken.ics"},
	})

	hookCalls := 0
	r.AfterRun = func(context.Context) error {
		hookCalls++
		return errors.New("chromium missing")
	}

	rep := r.RunOnce(context.Background())
	assert.Equal(t, 2, rep.Feeds)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, 1, rep.Sessions)
	assert.Len(t, rep.Errors, 2, "broken feed and hook failure")
	assert.Equal(t, 1, hookCalls)

	snap, err := l.Load(context.Background(), "studio-1")
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	s := snap.Sessions[0]
	assert.Equal(t, "Drum tracking", s.Label())
	assert.Equal(t, "Live Room", s.RoomName())
	assert.Equal(t, "feed:rooms", s.Source)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := New(ics.NewFetcher(t.TempDir()), newLoader(t), nil)

	_, err := r.Start(context.Background(), "")
	assert.Error(t, err)

	_, err = r.Start(context.Background(), "every now and then")
	assert.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	r := New(ics.NewFetcher(t.TempDir()), newLoader(t), nil, "studio-1")
	ctx, cancel := context.WithCancel(context.Background())

	c, err := r.Start(ctx, "*/15 * * * *")
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	cancel()
}
