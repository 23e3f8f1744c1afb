package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightOptions configures the browser used for captures.
type PlaywrightOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Timeout        time.Duration
	// Install downloads the driver and browsers on first use.
	Install bool
}

// PlaywrightProvider captures pages in headless Chromium. Locale and
// geolocation are applied per browser context so concurrent captures do not
// share state. The browser is started lazily and reused.
type PlaywrightProvider struct {
	opts PlaywrightOptions

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightProvider returns a provider; nothing is started until the
// first capture.
func NewPlaywrightProvider(opts PlaywrightOptions) *PlaywrightProvider {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 720
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &PlaywrightProvider{opts: opts}
}

func (p *PlaywrightProvider) start() (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil && p.browser.IsConnected() {
		return p.browser, nil
	}

	if p.pw == nil {
		runOpts := &playwright.RunOptions{Verbose: false, Stdout: io.Discard, Stderr: io.Discard}
		if p.opts.Install {
			if err := playwright.Install(runOpts); err != nil {
				return nil, fmt.Errorf("failed to install playwright: %w", err)
			}
		}
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		p.pw = pw
	}

	browser, err := p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	p.browser = browser
	return browser, nil
}

// contextOptions maps a capture request onto browser context options.
func (p *PlaywrightProvider) contextOptions(req Request) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.opts.ViewportWidth,
			Height: p.opts.ViewportHeight,
		},
	}
	if req.Language != "" {
		opts.Locale = playwright.String(req.Language)
		opts.ExtraHttpHeaders = map[string]string{"Accept-Language": acceptLanguage(req.Language)}
	}
	if g := req.Geolocation; g != nil {
		geo := &playwright.Geolocation{Latitude: g.Latitude, Longitude: g.Longitude}
		if g.Accuracy > 0 {
			geo.Accuracy = playwright.Float(g.Accuracy)
		}
		opts.Geolocation = geo
		opts.Permissions = []string{"geolocation"}
	}
	return opts
}

// Capture implements Provider.
func (p *PlaywrightProvider) Capture(ctx context.Context, req Request) (Artifacts, error) {
	var out Artifacts

	browser, err := p.start()
	if err != nil {
		return out, err
	}

	bctx, err := browser.NewContext(p.contextOptions(req))
	if err != nil {
		return out, fmt.Errorf("failed to create context: %w", err)
	}
	defer bctx.Close()

	// Closing the context aborts in-flight navigation when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = bctx.Close() })
	defer stop()

	page, err := bctx.NewPage()
	if err != nil {
		return out, fmt.Errorf("failed to create page: %w", err)
	}

	timeout := float64(p.opts.Timeout.Milliseconds())
	page.SetDefaultTimeout(timeout)

	resp, err := page.Goto(req.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeout),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return out, fmt.Errorf("failed to navigate: %w", err)
	}

	if resp != nil {
		status := resp.Status()
		out.HTTPStatus = &status
		headers, err := resp.AllHeaders()
		if err != nil {
			headers = resp.Headers()
		}
		out.Headers = headers
		for k, v := range headers {
			switch strings.ToLower(k) {
			case "content-type":
				ct := v
				out.ContentType = &ct
			case "content-length":
				out.ContentLength = parseLength(v)
			}
		}
	}

	if out.Title, err = page.Title(); err != nil {
		return out, fmt.Errorf("failed to read title: %w", err)
	}
	if out.HTML, err = page.Content(); err != nil {
		return out, fmt.Errorf("failed to read content: %w", err)
	}
	if out.ContentLength == nil {
		n := int64(len(out.HTML))
		out.ContentLength = &n
	}

	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return out, fmt.Errorf("failed to take screenshot: %w", err)
	}
	out.Screenshot = shot
	return out, nil
}

// Close shuts down the browser and the driver.
func (p *PlaywrightProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil {
		_ = p.browser.Close()
		p.browser = nil
	}
	if p.pw != nil {
		err := p.pw.Stop()
		p.pw = nil
		return err
	}
	return nil
}
