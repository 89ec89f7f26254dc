package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
)

// ChromeDriver manages a pool of headless Chrome processes. Pages are isolated
// browser contexts allocated round-robin across the processes.
type ChromeDriver struct {
	config           ChromeDriverConfig
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	currentIndex     int
	logger           arbor.ILogger
	started          bool
}

// ChromeDriverConfig holds configuration for the Chrome pool
type ChromeDriverConfig struct {
	Instances       int
	UserAgent       string
	Headless        bool
	DisableGPU      bool
	NoSandbox       bool
	Width           int
	Height          int
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// NewChromeDriver creates a Chrome driver; call Start before opening pages
func NewChromeDriver(config ChromeDriverConfig, logger arbor.ILogger) *ChromeDriver {
	return &ChromeDriver{
		config: config,
		logger: logger,
	}
}

// Name returns the driver name
func (d *ChromeDriver) Name() string { return DriverChromeDP }

// Start launches the browser processes
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("chrome driver already started")
	}

	if d.config.Instances <= 0 {
		return fmt.Errorf("instances must be greater than 0, got: %d", d.config.Instances)
	}
	if d.config.Instances > 20 {
		d.logger.Warn().
			Int("instances", d.config.Instances).
			Msg("Large browser pool size detected - this may consume significant memory")
	}
	if d.config.UserAgent == "" {
		d.config.UserAgent = DefaultUserAgent
	}

	d.logger.Info().
		Int("pool_size", d.config.Instances).
		Bool("headless", d.config.Headless).
		Msg("Starting Chrome browser pool")

	successCount := 0
	var lastErr error
	for i := 0; i < d.config.Instances; i++ {
		if err := ctx.Err(); err != nil {
			d.cleanupInstances()
			return fmt.Errorf("chrome startup cancelled: %w", err)
		}
		if err := d.createBrowserInstance(i); err != nil {
			lastErr = err
			d.logger.Warn().
				Err(err).
				Int("browser_index", i).
				Int("successful_instances", successCount).
				Msg("Failed to create browser instance")
			continue
		}
		successCount++
	}

	if successCount == 0 {
		d.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances, last error: %w", lastErr)
	}
	if successCount < d.config.Instances {
		d.logger.Warn().
			Int("requested", d.config.Instances).
			Int("created", successCount).
			Err(lastErr).
			Msg("Created fewer browser instances than requested")
	}

	d.started = true
	d.logger.Info().
		Int("browsers_created", len(d.browsers)).
		Msg("Chrome browser pool started")

	return nil
}

// createBrowserInstance launches one Chrome process and checks it responds (mutex held)
func (d *ChromeDriver) createBrowserInstance(index int) error {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.config.Headless),
		chromedp.Flag("disable-gpu", d.config.DisableGPU),
		chromedp.Flag("no-sandbox", d.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(d.config.UserAgent),
		chromedp.WindowSize(d.config.Width, d.config.Height),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	startupTimeout := d.config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = 30 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer testCancel()

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	d.browsers = append(d.browsers, browserCtx)
	d.browserCancels = append(d.browserCancels, browserCancel)
	d.allocatorCancels = append(d.allocatorCancels, allocatorCancel)

	d.logger.Debug().
		Int("browser_index", index).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created and tested successfully")

	return nil
}

// NewPage opens a new tab in a fresh browser context on the next browser in the pool
func (d *ChromeDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	d.mu.Lock()
	if !d.started || len(d.browsers) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("chrome driver not started")
	}
	index := d.currentIndex % len(d.browsers)
	d.currentIndex = (d.currentIndex + 1) % len(d.browsers)
	browserCtx := d.browsers[index]
	d.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	page := newChromePage(tabCtx, tabCancel, d.logger)

	if err := page.run(ctx, chromedp.EmulateViewport(int64(d.config.Width), int64(d.config.Height))); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open chrome tab: %w", err)
	}

	d.logger.Debug().
		Int("browser_index", index).
		Msg("Chrome page allocated")

	return page, nil
}

// Close shuts every browser process down. Pool state is cleared before the
// processes are cancelled, so a shutdown that overruns its timeout cannot touch
// the driver afterwards.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	startTime := time.Now()
	browserCount := len(d.browsers)
	cancels := d.detachInstances()
	d.started = false

	timeout := d.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		cancelAll(cancels)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn().
			Int("browser_count", browserCount).
			Dur("timeout", timeout).
			Msg("Browser pool shutdown timed out")
	}

	d.logger.Info().
		Int("browsers_shutdown", browserCount).
		Dur("shutdown_time", time.Since(startTime)).
		Msg("Chrome browser pool shut down")

	return nil
}

// cleanupInstances cancels all browser and allocator contexts (mutex held)
func (d *ChromeDriver) cleanupInstances() {
	cancelAll(d.detachInstances())
}

// detachInstances clears the pool and returns its cancel functions, browsers
// before allocators (mutex held)
func (d *ChromeDriver) detachInstances() []context.CancelFunc {
	cancels := make([]context.CancelFunc, 0, len(d.browserCancels)+len(d.allocatorCancels))
	cancels = append(cancels, d.browserCancels...)
	cancels = append(cancels, d.allocatorCancels...)

	d.browsers = nil
	d.browserCancels = nil
	d.allocatorCancels = nil
	d.currentIndex = 0
	return cancels
}

func cancelAll(cancels []context.CancelFunc) {
	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
}
