package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"studiocal/internal/apperror"
	"studiocal/internal/calview"
	"studiocal/internal/ics"
	"studiocal/internal/loader"
	appLog "studiocal/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG. http.ServeFile answers 404
// when no capture has run yet.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.Capture.PreviewPath
	if _, err := os.Stat(path); err != nil {
		writeError(w, apperror.NewNotFound("no preview captured yet"))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// render loads the studio named in the route and renders the requested view.
func (s *Server) render(r *http.Request, forced calview.View) (*loader.Snapshot, *calview.RenderModel, error) {
	snap, err := s.loader.Load(r.Context(), mux.Vars(r)["studio"])
	if err != nil {
		return nil, nil, err
	}
	req, err := parseRequest(r, s.engine.Keyer(snap.Location).Location())
	if err != nil {
		return nil, nil, err
	}
	if forced != "" {
		req.View = forced
	}
	rm, err := s.engine.Render(snap.View(), req)
	if err != nil {
		return nil, nil, err
	}
	return snap, rm, nil
}

// handleCalendar returns the render model of one view.
//
// GET /api/studios/{studio}/calendar?view=week&anchor=2024-03-10&offset=1
//   - view:   month, week (default) or sessions
//   - anchor: YYYY-MM-DD in the studio timezone; defaults to today
//   - year, month: month view target, overrides anchor
//   - offset: whole weeks (week view) or months (month view) from the target
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	snap, rm, err := s.render(r, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarResponse(snap, rm))
}

// handleNow returns the current time line for the requested week.
func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loader.Load(r.Context(), mux.Vars(r)["studio"])
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := parseRequest(r, s.engine.Keyer(snap.Location).Location())
	if err != nil {
		writeError(w, err)
		return
	}
	k := s.engine.Keyer(snap.Location)
	weekStart := s.engine.WeekStartFor(req.Anchor, req.Offset, k)
	now := calview.ComputeNow(s.engine.Clock().Now(), weekStart, k, s.engine.Layout())
	writeJSON(w, http.StatusOK, toNowDTO(now, snap.Location))
}

// handleNowStream pushes the now line as server-sent events: once on
// connect, then every minute and whenever the row height is remeasured.
func (s *Server) handleNowStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperror.NewInternal(fmt.Errorf("response writer does not support flushing")))
		return
	}
	snap, err := s.loader.Load(r.Context(), mux.Vars(r)["studio"])
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := parseRequest(r, s.engine.Keyer(snap.Location).Location())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	k := s.engine.Keyer(snap.Location)
	weekStart := s.engine.WeekStartFor(req.Anchor, req.Offset, k)
	calview.WatchNow(r.Context(), s.engine.Clock(), calview.NowRefreshInterval, weekStart, k, s.engine.Layout(),
		func(ind calview.NowIndicator) {
			data, err := json.Marshal(toNowDTO(ind, snap.Location))
			if err != nil {
				appLog.Error("now stream encode failed", err)
				return
			}
			_, _ = fmt.Fprintf(w, "event: now\ndata: %s\n\n", data)
			flusher.Flush()
		})
}

// handleExport serves the loaded window as an ICS subscription feed.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loader.Load(r.Context(), mux.Vars(r)["studio"])
	if err != nil {
		writeError(w, err)
		return
	}
	body := ics.Export(snap.Studio, snap.Sessions, snap.LoadedAt)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="studio.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleLayout reports the week row height (GET) or applies a new
// measurement from the page (POST {"row_height_px": 52}).
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	layout := s.engine.Layout()
	changed := false

	if r.Method == http.MethodPost {
		var body layoutRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
			writeError(w, apperror.NewValidation("invalid JSON body: %v", err))
			return
		}
		if body.RowHeightPx <= 0 || body.RowHeightPx > 1000 {
			writeError(w, apperror.NewValidation("row_height_px must be between 0 and 1000"))
			return
		}
		changed = layout.Remeasure(body.RowHeightPx)
		if changed {
			appLog.Info("week row height remeasured", "row_height_px", body.RowHeightPx)
		}
	}

	writeJSON(w, http.StatusOK, layoutResponse{
		RowHeightPx: layout.RowHeightPx(),
		PxPerMinute: layout.PxPerMinute(),
		Changed:     changed,
	})
}

// parseRequest reads navigation query parameters. Dates are interpreted in
// loc.
func parseRequest(r *http.Request, loc *time.Location) (calview.Request, error) {
	q := r.URL.Query()
	var req calview.Request

	view, err := calview.ParseView(q.Get("view"))
	if err != nil {
		return req, err
	}
	req.View = view

	if v := q.Get("anchor"); v != "" {
		anchor, err := time.ParseInLocation(calview.KeyLayout, v, loc)
		if err != nil {
			return req, apperror.NewValidation("anchor must be YYYY-MM-DD, got %q", v)
		}
		// Noon keeps the anchor on the same date across DST shifts.
		req.Anchor = anchor.Add(12 * time.Hour)
	}

	year, err := intParam(q.Get("year"), "year")
	if err != nil {
		return req, err
	}
	month, err := intParam(q.Get("month"), "month")
	if err != nil {
		return req, err
	}
	if (year == 0) != (month == 0) {
		return req, apperror.NewValidation("year and month must be given together")
	}
	req.Year, req.Month = year, time.Month(month)

	if req.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.NewValidation("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error   apperror.Kind `json:"error"`
	Message string        `json:"message"`
}

// writeError renders err as {"error": kind, "message": msg}. Internal causes
// are logged, never sent.
func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.As(err)
	status := apperror.HTTPStatus(appErr.Kind)
	if status >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "kind", string(appErr.Kind))
	}
	writeJSON(w, status, errorResponse{Error: appErr.Kind, Message: appErr.Message})
}
