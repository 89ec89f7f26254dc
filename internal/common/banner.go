package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective target
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("SiteVerify", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("base_url", config.Site.BaseURL).
		Str("driver", config.Browser.Driver).
		Bool("headless", config.Browser.Headless).
		Int("parallelism", config.Browser.Parallelism).
		Bool("content_sync", config.CMS.Enabled).
		Msg("Starting site verification")

	if config.CMS.Enabled {
		logger.Info().
			Str("cms_host", config.CMSHost()).
			Str("target_id", config.CMS.TargetID).
			Str("field", config.CMS.Field).
			Str("token", config.RedactedCMSToken()).
			Msg("Content sync enabled")
	}
}
