package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"studiocal/internal/calview"
	"studiocal/internal/capture"
	"studiocal/internal/config"
	"studiocal/internal/ics"
	"studiocal/internal/loader"
	appLog "studiocal/internal/log"
	"studiocal/internal/refresh"
	"studiocal/internal/store"
	"studiocal/internal/web"
)

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnvFile(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "env_file", flags.envFile)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("studiocal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"default_timezone", conf.DefaultTimezone,
		"refresh", conf.RefreshCron,
		"week_start", conf.Calendar.WeekStart,
		"day_key_policy", conf.Calendar.DayKeyPolicy,
		"database", conf.Database.URL != "",
		"redis", conf.Redis.URL != "",
		"feeds", len(conf.Feeds),
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("studiocal failed", err)
		os.Exit(1)
	}
	appLog.Info("studiocal exiting")
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	var src loader.SessionSource
	if conf.Database.URL != "" {
		db, err := store.Open(ctx, conf.Database.URL)
		if err != nil {
			return err
		}
		defer func(db *sql.DB) { _ = db.Close() }(db)
		if conf.Database.Migrate {
			if err := store.Migrate(db); err != nil {
				return err
			}
		}
		src = store.NewPostgresSource(db)
	} else {
		appLog.Warn("no database configured; serving feed sessions only")
	}

	ttl := time.Duration(conf.Redis.TTLSeconds) * time.Second
	var cache store.Cache = store.NewMemoryCache(ttl)
	if conf.Redis.URL != "" {
		client, err := store.NewRedis(ctx, conf.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cache = store.NewRedisCache(client, ttl)
	}

	policy, err := calview.ParsePolicy(conf.Calendar.DayKeyPolicy)
	if err != nil {
		return err
	}
	engine := calview.New(calview.Config{
		Policy:       policy,
		FirstWeekday: conf.FirstWeekday(),
		MaxVisible:   conf.Calendar.MaxVisible,
		MemoSize:     conf.Calendar.MemoSize,
	}, calview.NewLayout(conf.Calendar.RowHeightPx))

	l := loader.New(src, loader.NewFeedStore(), cache, loader.Options{
		DefaultTimezone: conf.DefaultTimezone,
		MonthsBack:      conf.Calendar.MonthsBack,
		MonthsForward:   conf.Calendar.MonthsForward,
	})

	refresher := refresh.New(ics.NewFetcher(filepath.Join(conf.CacheDir, "ics")), l, conf.Feeds, conf.Capture.StudioID)
	if conf.Capture.Enabled && conf.Capture.StudioID != "" {
		refresher.AfterRun = previewHook(conf, engine.Layout())
	}

	server := web.NewServer(conf, engine, l)
	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe(serveCtx) }()
	waitHealthy(ctx, "http://"+conf.Listen+"/health", 5*time.Second)

	report := refresher.RunOnce(ctx)
	if once {
		stopServer()
		if err := <-serveErr; err != nil {
			return err
		}
		if len(report.Errors) > 0 {
			return fmt.Errorf("refresh finished with %d error(s): %w", len(report.Errors), report.Errors[0])
		}
		return nil
	}

	c, err := refresher.Start(ctx, conf.RefreshCron)
	if err != nil {
		return err
	}
	defer c.Stop()

	return <-serveErr
}

// previewHook captures the configured studio's week page after each refresh
// and feeds the measured row height back into the layout.
func previewHook(conf *config.Config, layout *calview.Layout) func(context.Context) error {
	opts := capture.Options{
		URL:    fmt.Sprintf("http://%s/studios/%s/week", conf.Listen, conf.Capture.StudioID),
		Width:  conf.Capture.Width,
		Height: conf.Capture.Height,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}

	return func(ctx context.Context) error {
		rowPx, err := capture.CaptureCalendarPNG(ctx, opts, conf.Capture.PreviewPath)
		if err != nil {
			return err
		}
		if layout.Remeasure(rowPx) {
			appLog.Info("week row height remeasured", "row_height_px", rowPx)
		}
		appLog.Info("preview captured", "path", conf.Capture.PreviewPath)
		return nil
	}
}

// waitHealthy polls url until it answers 200 or timeout passes, so the
// first preview capture does not race the listener.
func waitHealthy(ctx context.Context, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	appLog.Warn("server did not become healthy", "url", url, "timeout", timeout.String())
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/studiocal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file loaded before the config")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one feed refresh (and preview capture) and exit")

	flag.Parse()

	return cfg
}
