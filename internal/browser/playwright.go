// Package browser renders JavaScript-driven pages with a headless Chromium.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

const (
	DefaultSettle  = 2 * time.Second
	DefaultTimeout = 30 * time.Second
)

type RenderError struct {
	URL string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func (e *RenderError) ErrorKind() string {
	if errors.Is(e.Err, context.Canceled) {
		return observability.ErrorCanceled
	}
	return observability.ErrorRender
}

// PlaywrightRenderer starts a fresh browser for every Render call and always
// tears it down before returning.
type PlaywrightRenderer struct {
	Headless bool
	// Settle is the fixed wait after load for client-side scripts.
	Settle    time.Duration
	Timeout   time.Duration
	UserAgent string
	Logger    zerolog.Logger
}

func NewPlaywrightRenderer(headless bool, settle, timeout time.Duration, userAgent string, logger zerolog.Logger) *PlaywrightRenderer {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PlaywrightRenderer{
		Headless:  headless,
		Settle:    settle,
		Timeout:   timeout,
		UserAgent: userAgent,
		Logger:    logger,
	}
}

func (r *PlaywrightRenderer) Render(ctx context.Context, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &RenderError{URL: target, Err: err}
	}

	pw, err := playwright.Run()
	if err != nil {
		return "", &RenderError{URL: target, Err: fmt.Errorf("start playwright: %w", err)}
	}
	defer func() {
		if err := pw.Stop(); err != nil {
			r.Logger.Warn().Err(err).Msg("stop playwright")
		}
	}()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(r.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	})
	if err != nil {
		return "", &RenderError{URL: target, Err: fmt.Errorf("launch chromium: %w", err)}
	}
	defer func() {
		if err := browser.Close(); err != nil {
			r.Logger.Warn().Err(err).Msg("close browser")
		}
	}()

	pageOpts := playwright.BrowserNewPageOptions{}
	if r.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(r.UserAgent)
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		return "", &RenderError{URL: target, Err: fmt.Errorf("new page: %w", err)}
	}

	if _, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(gotoTimeout(ctx, r.Timeout).Milliseconds())),
	}); err != nil {
		return "", &RenderError{URL: target, Err: fmt.Errorf("goto: %w", err)}
	}

	if err := settle(ctx, r.Settle); err != nil {
		return "", &RenderError{URL: target, Err: err}
	}

	content, err := page.Content()
	if err != nil {
		return "", &RenderError{URL: target, Err: fmt.Errorf("read content: %w", err)}
	}
	observability.IncPagesRendered()
	r.Logger.Debug().Str("url", target).Int("bytes", len(content)).Msg("rendered page")
	return content, nil
}

// gotoTimeout shortens timeout to the context deadline when that is sooner.
func gotoTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			if left < time.Millisecond {
				left = time.Millisecond
			}
			return left
		}
	}
	return timeout
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
