// Package cdp implements browser.Driver on top of a headless Chrome
// instance driven over the DevTools protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/applyflow/applyflow/internal/browser"
)

// Config controls the allocated Chrome instance.
type Config struct {
	Headless      bool          `mapstructure:"headless"`
	OpTimeout     time.Duration `mapstructure:"op-timeout"`
	ScreenshotDir string        `mapstructure:"screenshot-dir"`
}

const defaultOpTimeout = 15 * time.Second

// Driver drives a single Chrome tab. Not safe for concurrent use.
type Driver struct {
	ctx           context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	opTimeout     time.Duration
	screenshotDir string
}

// New starts a Chrome instance and opens a tab. Close must be called to
// terminate it.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so a missing Chrome binary
	// surfaces here instead of on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	return &Driver{
		ctx:           tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		opTimeout:     opTimeout,
		screenshotDir: cfg.ScreenshotDir,
	}, nil
}

// Close terminates the tab and the browser process.
func (d *Driver) Close() {
	d.cancelTab()
	d.cancelAlloc()
}

// run executes actions under the per-operation timeout. The caller's ctx
// only gates cancellation; the tab context carries the browser session.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(d.ctx, d.opTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (d *Driver) Locate(ctx context.Context, locator string) (*browser.Element, error) {
	var count int
	err := d.run(ctx, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelectorAll(%q).length`, locator), &count))
	if err != nil {
		return nil, fmt.Errorf("locating %q: %w", locator, err)
	}
	if count == 0 {
		return nil, browser.ErrNotFound
	}
	return &browser.Element{Locator: locator}, nil
}

func (d *Driver) ReadValue(ctx context.Context, el *browser.Element) (string, error) {
	var value string
	err := d.run(ctx, chromedp.Value(el.Locator, &value, chromedp.ByQuery))
	if err != nil {
		return "", d.classify(err)
	}
	return value, nil
}

func (d *Driver) WriteValue(ctx context.Context, el *browser.Element, value string) error {
	err := d.run(ctx,
		chromedp.Clear(el.Locator, chromedp.ByQuery),
		chromedp.SendKeys(el.Locator, value, chromedp.ByQuery),
	)
	return d.classify(err)
}

// WriteValueDirect assigns the value property from script and dispatches
// input and change events, sidestepping synthetic keyboard input.
func (d *Driver) WriteValueDirect(ctx context.Context, el *browser.Element, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, el.Locator, value)

	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return d.classify(err)
	}
	if !ok {
		return browser.ErrStale
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, el *browser.Element) error {
	err := d.run(ctx, chromedp.Click(el.Locator, chromedp.ByQuery, chromedp.NodeVisible))
	return d.classify(err)
}

func (d *Driver) PageText(ctx context.Context) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("reading page text: %w", err)
	}
	return text, nil
}

// Screenshot captures the viewport to a timestamped PNG and returns its path.
func (d *Driver) Screenshot(ctx context.Context) (string, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}

	dir := d.screenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("failure-%s.png", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) Reload(ctx context.Context) error {
	err := d.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// ClearCookies drops all browser cookies for the session.
func (d *Driver) ClearCookies(ctx context.Context) error {
	if err := d.run(ctx, network.ClearBrowserCookies()); err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}
	return nil
}

// IsRequired reports the element's required attribute. Unknown elements
// report true so callers do not skip fields they must fill.
func (d *Driver) IsRequired(ctx context.Context, el *browser.Element) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return true;
		return el.required === true || el.getAttribute('aria-required') === 'true';
	})()`, el.Locator)

	var required bool
	if err := d.run(ctx, chromedp.Evaluate(script, &required)); err != nil {
		return true, d.classify(err)
	}
	return required, nil
}

// classify maps deadline expiry on element operations to the sentinel the
// recovery layer keys on. Chrome reports a missing or blocked element by
// never completing the action.
func (d *Driver) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return browser.ErrNotInteractable
	}
	return err
}
