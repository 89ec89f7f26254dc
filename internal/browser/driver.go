package browser

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
)

// Driver names as used in configuration
const (
	DriverChromeDP   = "chromedp"
	DriverPlaywright = "playwright"
	DriverStatic     = "static"
)

// DefaultUserAgent identifies verification traffic in site access logs
const DefaultUserAgent = "SiteVerify/1.0 (+https://github.com/ternarybob/siteverify)"

// NewDriver creates and starts the configured browser driver
func NewDriver(ctx context.Context, config common.BrowserConfig, logger arbor.ILogger) (interfaces.BrowserDriver, error) {
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	logger.Debug().
		Str("driver", config.Driver).
		Bool("headless", config.Headless).
		Int("width", config.Width).
		Int("height", config.Height).
		Msg("Starting browser driver")

	switch config.Driver {
	case DriverChromeDP, "":
		driver := NewChromeDriver(ChromeDriverConfig{
			Instances:  config.Parallelism,
			UserAgent:  userAgent,
			Headless:   config.Headless,
			DisableGPU: config.DisableGPU,
			NoSandbox:  config.NoSandbox,
			Width:      config.Width,
			Height:     config.Height,
		}, logger)
		if err := driver.Start(ctx); err != nil {
			return nil, err
		}
		return driver, nil
	case DriverPlaywright:
		return NewPlaywrightDriver(PlaywrightDriverConfig{
			Engine:    config.Engine,
			Headless:  config.Headless,
			UserAgent: userAgent,
			Width:     config.Width,
			Height:    config.Height,
		}, logger)
	case DriverStatic:
		return NewStaticDriver(nil, userAgent, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver: %s", config.Driver)
	}
}
