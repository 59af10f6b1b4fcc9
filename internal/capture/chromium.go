// Package capture drives headless Chromium against the server's own week
// page: it measures the rendered hour row height and writes preview PNGs.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1400
	DefaultTimeout = 30 * time.Second

	// ReadySelector marks a calendar page that has finished rendering.
	ReadySelector = `[data-ready="true"]`
	// RowSelector matches one hour row of the week grid.
	RowSelector = `[data-hour-row]`
)

// Options describes one browser run against a calendar page.
type Options struct {
	// URL of the page, e.g. "http://127.0.0.1:8080/studios/abc/week".
	URL string

	// Width and Height are the viewport size. Zero uses the defaults.
	Width  int
	Height int

	// Username / Password are sent as HTTP Basic credentials when set.
	Username string
	Password string

	// Timeout bounds the whole run. Zero uses DefaultTimeout.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// Result is what one run observed.
type Result struct {
	// RowHeightPx is the rendered height of the first hour row; zero when no
	// row was found.
	RowHeightPx float64
	PNG         []byte
}

// RowHeightScript reads the height of the first element matching selector.
func RowHeightScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  return el ? el.getBoundingClientRect().height : 0;
})()`, selector)
}

// BasicAuthHeader builds the Authorization header value for user/pass.
func BasicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// Run navigates to opts.URL, waits for the page to signal data-ready,
// measures the hour row height and, when screenshot is set, captures a full
// page PNG.
func Run(parent context.Context, opts Options, screenshot bool) (Result, error) {
	var res Result
	if err := opts.normalize(); err != nil {
		return res, err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	tasks := chromedp.Tasks{network.Enable()}
	if opts.Username != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Authorization": BasicAuthHeader(opts.Username, opts.Password),
		}))
	}
	tasks = append(tasks,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.Evaluate(RowHeightScript(RowSelector), &res.RowHeightPx),
	)
	if screenshot {
		tasks = append(tasks,
			// Let the final paint settle.
			chromedp.Sleep(500*time.Millisecond),
			chromedp.FullScreenshot(&res.PNG, 100),
		)
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return res, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return res, nil
}

// MeasureRowHeight returns the rendered height in pixels of one week grid
// hour row.
func MeasureRowHeight(ctx context.Context, opts Options) (float64, error) {
	res, err := Run(ctx, opts, false)
	if err != nil {
		return 0, err
	}
	if res.RowHeightPx <= 0 {
		return 0, fmt.Errorf("capture: no %s element on %s", RowSelector, opts.URL)
	}
	return res.RowHeightPx, nil
}

// CaptureCalendarPNG writes a screenshot of the page to outputPath and
// returns the row height measured during the same run.
func CaptureCalendarPNG(ctx context.Context, opts Options, outputPath string) (float64, error) {
	if outputPath == "" {
		return 0, fmt.Errorf("capture: output path is required")
	}
	res, err := Run(ctx, opts, true)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return 0, fmt.Errorf("capture: %w", err)
	}
	if err := os.WriteFile(outputPath, res.PNG, 0o644); err != nil {
		return 0, fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return res.RowHeightPx, nil
}
