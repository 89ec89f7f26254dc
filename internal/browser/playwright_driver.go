package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// defaultPlaywrightTimeout applies when the caller's context has no deadline
const defaultPlaywrightTimeout = 30 * time.Second

// PlaywrightDriverConfig holds configuration for the Playwright driver
type PlaywrightDriverConfig struct {
	Engine    string // chromium, firefox or webkit
	Headless  bool
	UserAgent string
	Width     int
	Height    int
}

// PlaywrightDriver drives a browser through playwright-go. Each page gets its own browser context.
type PlaywrightDriver struct {
	config  PlaywrightDriverConfig
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  arbor.ILogger
	mu      sync.Mutex
}

// NewPlaywrightDriver starts playwright and launches the configured engine
func NewPlaywrightDriver(config PlaywrightDriverConfig, logger arbor.ILogger) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var engine playwright.BrowserType
	switch strings.ToLower(config.Engine) {
	case "firefox":
		engine = pw.Firefox
	case "webkit":
		engine = pw.WebKit
	default:
		engine = pw.Chromium
	}

	browser, err := engine.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", engine.Name(), err)
	}

	logger.Info().
		Str("engine", engine.Name()).
		Str("version", browser.Version()).
		Bool("headless", config.Headless).
		Msg("Playwright browser launched")

	return &PlaywrightDriver{
		config:  config,
		pw:      pw,
		browser: browser,
		logger:  logger,
	}, nil
}

// Name returns the driver name
func (d *PlaywrightDriver) Name() string { return DriverPlaywright }

// NewPage opens a page in a fresh browser context
func (d *PlaywrightDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(d.config.UserAgent),
		Viewport: &playwright.Size{
			Width:  d.config.Width,
			Height: d.config.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := &playwrightPage{page: page, bctx: bctx, logger: d.logger}
	page.OnPageError(func(err error) {
		p.errMu.Lock()
		p.errors = append(p.errors, err.Error())
		p.errMu.Unlock()
	})

	return p, nil
}

// Close shuts the browser and the playwright server down
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.browser.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close playwright browser")
	}
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.logger.Info().Msg("Playwright driver stopped")
	return nil
}

type playwrightPage struct {
	page   playwright.Page
	bctx   playwright.BrowserContext
	logger arbor.ILogger

	errMu  sync.Mutex
	errors []string
}

// timeoutMS converts the caller's deadline to a playwright timeout
func timeoutMS(ctx context.Context) *float64 {
	d := defaultPlaywrightTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
		if d < time.Millisecond {
			d = time.Millisecond
		}
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) (*models.NavigationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	result := &models.NavigationResult{URL: p.page.URL()}
	if resp != nil {
		result.StatusCode = resp.Status()
	}
	return result, nil
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Back(ctx context.Context) error {
	if _, err := p.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx),
	}); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

func (p *playwrightPage) Forward(ctx context.Context) error {
	if _, err := p.page.GoForward(playwright.PageGoForwardOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx),
	}); err != nil {
		return fmt.Errorf("failed to navigate forward: %w", err)
	}
	return nil
}

func (p *playwrightPage) SetViewport(ctx context.Context, width, height int) error {
	if err := p.page.SetViewportSize(width, height); err != nil {
		return fmt.Errorf("failed to set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

func (p *playwrightPage) Query(ctx context.Context, selector string) ([]models.Element, error) {
	raw, err := p.page.Evaluate(querySnapshotScript, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	s, _ := raw.(string)
	return decodeSnapshots(selector, s)
}

func (p *playwrightPage) BodyText(ctx context.Context) (string, error) {
	raw, err := p.page.Evaluate(bodyTextScript)
	if err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	s, _ := raw.(string)
	return s, nil
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	title, err := p.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return strings.TrimSpace(title), nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string, index int) error {
	if err := p.page.Locator(selector).Nth(index).Click(playwright.LocatorClickOptions{
		Timeout: timeoutMS(ctx),
	}); err != nil {
		return fmt.Errorf("failed to click %q[%d]: %w", selector, index, err)
	}
	// A click may start a navigation; wait for it to settle if it did
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeoutMS(ctx),
	})
	return nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector string, index int, value string) error {
	if err := p.page.Locator(selector).Nth(index).Fill(value, playwright.LocatorFillOptions{
		Timeout: timeoutMS(ctx),
	}); err != nil {
		return fmt.Errorf("failed to fill %q[%d]: %w", selector, index, err)
	}
	return nil
}

func (p *playwrightPage) InputValue(ctx context.Context, selector string, index int) (string, error) {
	value, err := p.page.Locator(selector).Nth(index).InputValue(playwright.LocatorInputValueOptions{
		Timeout: timeoutMS(ctx),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read value of %q[%d]: %w", selector, index, err)
	}
	return value, nil
}

func (p *playwrightPage) ScrollToBottom(ctx context.Context) error {
	if _, err := p.page.Evaluate(scrollToBottomScript); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Timeout: timeoutMS(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *playwrightPage) PageErrors() []string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]string(nil), p.errors...)
}

func (p *playwrightPage) Close() error {
	if err := p.page.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to close playwright page")
	}
	return p.bctx.Close()
}
