// Package web serves the calendar API and the server-rendered calendar
// pages.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"studiocal/internal/apperror"
	"studiocal/internal/calview"
	"studiocal/internal/config"
	"studiocal/internal/loader"
	appLog "studiocal/internal/log"
)

// SnapshotLoader loads a studio's sessions. loader.Loader implements it.
type SnapshotLoader interface {
	Load(ctx context.Context, studioID string) (*loader.Snapshot, error)
}

// Server provides the HTTP API and pages.
type Server struct {
	cfg    *config.Config
	engine *calview.Engine
	loader SnapshotLoader
	router *mux.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, engine *calview.Engine, l SnapshotLoader) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		loader: l,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "user", s.cfg.BasicAuth.Username)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/preview.png", s.handlePreview).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requestLogger)
	api.HandleFunc("/layout", s.handleLayout).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/studios/{studio}/calendar", s.handleCalendar).Methods(http.MethodGet)
	api.HandleFunc("/studios/{studio}/calendar.ics", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/studios/{studio}/now", s.handleNow).Methods(http.MethodGet)
	api.HandleFunc("/studios/{studio}/now/stream", s.handleNowStream).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, apperror.NewNotFound("no such endpoint"))
	})

	pages := r.PathPrefix("/studios/{studio}").Subrouter()
	pages.HandleFunc("/week", s.handleWeekPage).Methods(http.MethodGet)
	pages.HandleFunc("/month", s.handleMonthPage).Methods(http.MethodGet)
	pages.HandleFunc("/sessions", s.handleSessionsPage).Methods(http.MethodGet)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	ba := s.cfg.BasicAuth
	return ba.Username != "" && (ba.Password != "" || ba.PasswordHash != "")
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	ba := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !checkPassword(ba, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="studiocal", charset="UTF-8"`)
			writeError(w, apperror.NewUnauthorized("valid credentials are required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkPassword prefers the bcrypt hash over the plain password.
func checkPassword(ba config.BasicAuthConfig, given string) bool {
	if ba.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(ba.PasswordHash), []byte(given)) == nil
	}
	return secureCompare(given, ba.Password)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start).Round(time.Microsecond).String(),
		)
	})
}

// ListenAndServe runs the server on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}
