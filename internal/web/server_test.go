package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"studiocal/internal/apperror"
	"studiocal/internal/calview"
	"studiocal/internal/config"
	"studiocal/internal/loader"
	"studiocal/internal/model"
)

type stubTicker struct{ ch chan time.Time }

func (t stubTicker) C() <-chan time.Time { return t.ch }
func (t stubTicker) Stop()               {}

// fixedClock never ticks; tests drive updates through the layout.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
func (c fixedClock) NewTicker(time.Duration) calview.Ticker {
	return stubTicker{ch: make(chan time.Time)}
}

type stubLoader struct {
	snaps map[string]*loader.Snapshot
}

func (l stubLoader) Load(_ context.Context, studioID string) (*loader.Snapshot, error) {
	snap, ok := l.snaps[studioID]
	if !ok {
		return nil, apperror.NewNotFound("studio %q not found", studioID)
	}
	return snap, nil
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *calview.Engine) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	snap := &loader.Snapshot{
		Studio:   model.Studio{ID: "studio-1", Name: "Blue Room", Timezone: "UTC"},
		Location: time.UTC,
		Sessions: []model.Session{
			{
				ID: "a", StudioID: "studio-1", Source: model.SourceDB, Status: model.StatusScheduled,
				StartTime: mustTime(t, "2024-03-10T22:30:00Z"),
				EndTime:   mustTime(t, "2024-03-11T00:30:00Z"),
				Client:    &model.Client{ID: "c1", Name: "Ada"},
				Room:      &model.Room{ID: "r1", Name: "Live Room"},
			},
		},
		RangeStart: mustTime(t, "2023-12-11T00:00:00Z"),
		RangeEnd:   mustTime(t, "2024-09-11T00:00:00Z"),
		Version:    7,
		LoadedAt:   mustTime(t, "2024-03-11T00:00:00Z"),
	}
	engine := calview.New(calview.Config{
		Clock:    fixedClock{now: mustTime(t, "2024-03-11T00:15:00Z")},
		MemoSize: 16,
	}, calview.NewLayout(60))
	return NewServer(cfg, engine, stubLoader{snaps: map[string]*loader.Snapshot{"studio-1": snap}}), engine
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCalendarWeek(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/studios/studio-1/calendar?view=week&anchor=2024-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp calendarResponse
	decode(t, rec, &resp)
	assert.Equal(t, calview.ViewWeek, resp.View)
	assert.Equal(t, "Blue Room", resp.Studio.Name)
	assert.Equal(t, "7", resp.Version)
	require.NotNil(t, resp.Week)
	assert.Equal(t, "2024-03-10", resp.Week.WeekStart)
	require.Len(t, resp.Week.Columns, 7)

	sun := resp.Week.Columns[0].Placements
	require.Len(t, sun, 1)
	assert.Equal(t, 1350, sun[0].StartMinutes)
	assert.Equal(t, 1440, sun[0].EndMinutes)
	assert.True(t, sun[0].ShowDetails)
	assert.Equal(t, "Ada", sun[0].Session.Label)

	mon := resp.Week.Columns[1].Placements
	require.Len(t, mon, 1)
	assert.Equal(t, 0, mon[0].StartMinutes)
	assert.Equal(t, 30, mon[0].EndMinutes)
	assert.True(t, mon[0].Continuation)

	require.NotNil(t, resp.Now)
	assert.True(t, resp.Now.Visible)
	assert.Equal(t, 1, resp.Now.Column)
	assert.Equal(t, 15.0, resp.Now.TopPx)
}

func TestCalendarMonthAndSessions(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/studios/studio-1/calendar?view=month&year=2024&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var month calendarResponse
	decode(t, rec, &month)
	require.NotNil(t, month.Month)
	assert.Equal(t, 5, month.Month.Leading)
	assert.Len(t, month.Month.Cells, 5+31)
	assert.Nil(t, month.Week)

	var tenth cellDTO
	for _, c := range month.Month.Cells {
		if c.Date == "2024-03-10" {
			tenth = c
		}
	}
	assert.Equal(t, 1, tenth.Total)

	rec = do(t, s.Handler(), http.MethodGet, "/api/studios/studio-1/calendar?view=sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list calendarResponse
	decode(t, rec, &list)
	require.Len(t, list.Groups, 1)
	assert.Equal(t, "Sunday, March 10, 2024", list.Groups[0].Label)
}

func TestCalendarErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	cases := []struct {
		target string
		status int
		kind   apperror.Kind
	}{
		{"/api/studios/studio-1/calendar?view=year", http.StatusBadRequest, apperror.KindValidation},
		{"/api/studios/studio-1/calendar?anchor=03/10/2024", http.StatusBadRequest, apperror.KindValidation},
		{"/api/studios/studio-1/calendar?view=month&year=2024&month=13", http.StatusBadRequest, apperror.KindValidation},
		{"/api/studios/studio-1/calendar?view=month&year=2024", http.StatusBadRequest, apperror.KindValidation},
		{"/api/studios/studio-1/calendar?offset=soon", http.StatusBadRequest, apperror.KindValidation},
		{"/api/studios/nope/calendar", http.StatusNotFound, apperror.KindNotFound},
		{"/api/unknown", http.StatusNotFound, apperror.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tc.target, "")
			assert.Equal(t, tc.status, rec.Code)
			var resp errorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tc.kind, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLayoutRemeasure(t *testing.T) {
	s, engine := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/layout", `{"row_height_px": 120}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp layoutResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Changed)
	assert.Equal(t, 2.0, resp.PxPerMinute)
	assert.Equal(t, 120.0, engine.Layout().RowHeightPx())

	rec = do(t, h, http.MethodPost, "/api/layout", `{"row_height_px": 120.2}`)
	decode(t, rec, &resp)
	assert.False(t, resp.Changed)

	rec = do(t, h, http.MethodPost, "/api/layout", `{"row_height_px": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/layout", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/layout", "")
	decode(t, rec, &resp)
	assert.Equal(t, 120.0, resp.RowHeightPx)
}

func TestNow(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/studios/studio-1/now?anchor=2024-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var now nowDTO
	decode(t, rec, &now)
	assert.False(t, now.Visible)
	assert.Equal(t, -1, now.Column)
}

func TestNowStream(t *testing.T) {
	s, engine := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/studios/studio-1/now/stream?anchor=2024-03-10", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() nowDTO {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ind nowDTO
				require.NoError(t, json.Unmarshal([]byte(data), &ind))
				return ind
			}
		}
	}

	first := next()
	assert.Equal(t, 15.0, first.TopPx)

	require.True(t, engine.Layout().Remeasure(120))
	second := next()
	assert.Equal(t, 30.0, second.TopPx)
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/studios/studio-1/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Ada")
}

func TestPages(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/studios/studio-1/week?anchor=2024-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, 24, strings.Count(body, "<div data-hour-row"))
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Ada")
	assert.Contains(t, body, `id="now-line"`)
	assert.Contains(t, body, "?anchor=2024-03-17")

	rec = do(t, h, http.MethodGet, "/studios/studio-1/month?year=2024&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "March 2024")
	assert.Contains(t, rec.Body.String(), "22:30 Ada")

	rec = do(t, h, http.MethodGet, "/studios/studio-1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sunday, March 10, 2024")

	rec = do(t, h, http.MethodGet, "/studios/nope/week", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreview(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Capture.PreviewPath = filepath.Join(t.TempDir(), "preview.png")
	s, _ := newTestServer(t, cfg)

	rec := do(t, s.Handler(), http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(cfg.Capture.PreviewPath, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	rec = do(t, s.Handler(), http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: string(hash)}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/studios/studio-1/calendar", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	for _, tc := range []struct {
		user, pass string
		want       int
	}{
		{"admin", "s3cret", http.StatusOK},
		{"admin", "wrong", http.StatusUnauthorized},
		{"root", "s3cret", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/studios/studio-1/calendar", nil)
		req.SetBasicAuth(tc.user, tc.pass)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s:%s", tc.user, tc.pass)
	}
}

func TestBasicAuthPlainPassword(t *testing.T) {
	assert.True(t, checkPassword(config.BasicAuthConfig{Password: "pw"}, "pw"))
	assert.False(t, checkPassword(config.BasicAuthConfig{Password: "pw"}, "px"))
}
