package common

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development", "staging" or "production"
	Site        SiteConfig     `toml:"site"`
	Browser     BrowserConfig  `toml:"browser"`
	Catalog     CatalogConfig  `toml:"catalog"`
	CMS         CMSConfig      `toml:"cms"`
	Flows       FlowsConfig    `toml:"flows"`
	Report      ReportConfig   `toml:"report"`
	Logging     LoggingConfig  `toml:"logging"`
	Schedule    ScheduleConfig `toml:"schedule"`
}

// SiteConfig describes the deployed site under test
type SiteConfig struct {
	BaseURL           string   `toml:"base_url" validate:"required,url"`
	NavigationTimeout string   `toml:"navigation_timeout" validate:"duration"` // e.g. "45s" - page load bound
	ActionTimeout     string   `toml:"action_timeout" validate:"duration"`     // e.g. "20s" - element wait bound
	ErrorMarkers      []string `toml:"error_markers"`                          // Literal body text substrings that mark an error page
	ImageSampleSize   int      `toml:"image_sample_size" validate:"gte=1"`     // Max images HEAD-checked per page
	ImageRateLimit    float64  `toml:"image_rate_limit" validate:"gte=0"`      // HEAD requests per second, 0 = unlimited
}

// BrowserConfig selects and tunes the browser driver
type BrowserConfig struct {
	Driver      string `toml:"driver" validate:"oneof=chromedp playwright static"`
	Headless    bool   `toml:"headless"`
	Width       int    `toml:"width" validate:"gt=0"`
	Height      int    `toml:"height" validate:"gt=0"`
	UserAgent   string `toml:"user_agent"`
	NoSandbox   bool   `toml:"no_sandbox"`
	DisableGPU  bool   `toml:"disable_gpu"`
	Parallelism int    `toml:"parallelism" validate:"gte=1,lte=20"`                       // Concurrent page batteries
	Engine      string `toml:"engine" validate:"omitempty,oneof=chromium firefox webkit"` // playwright only
}

// CatalogConfig points at an optional page catalog file (TOML or YAML).
// When Path is empty the built-in catalog is used.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// CMSConfig configures the content sync transaction against the CMS API
type CMSConfig struct {
	Enabled            bool   `toml:"enabled"`
	BaseURL            string `toml:"base_url" validate:"omitempty,url"`
	APIToken           string `toml:"api_token"`
	TargetID           string `toml:"target_id"`
	Field              string `toml:"field" validate:"required"`
	PriorValue         string `toml:"prior_value"`   // Value restored on revert
	CapturePrior       bool   `toml:"capture_prior"` // Read the prior value from the API before mutating
	TitlePrefix        string `toml:"title_prefix"`  // New value is "<prefix> <unix-ms>"
	ObserveRoute       string `toml:"observe_route" validate:"startswith=/"`
	ObserveSelector    string `toml:"observe_selector" validate:"required"`
	PropagationTimeout string `toml:"propagation_timeout" validate:"duration"`
	PollInterval       string `toml:"poll_interval" validate:"duration"`
	RevertTimeout      string `toml:"revert_timeout" validate:"duration"`
}

// FlowsConfig configures the navigation flows and site-wide checks
type FlowsConfig struct {
	Enabled      bool             `toml:"enabled"`
	SiteWide     bool             `toml:"site_wide"`
	Steps        []FlowStepConfig `toml:"steps" validate:"dive"`
	MobileWidth  int              `toml:"mobile_width" validate:"gt=0"`
	MobileHeight int              `toml:"mobile_height" validate:"gt=0"`
	TabletWidth  int              `toml:"tablet_width" validate:"gt=0"`
	TabletHeight int              `toml:"tablet_height" validate:"gt=0"`
	MaxLoadTime  string           `toml:"max_load_time" validate:"duration"`
}

// FlowStepConfig is one step of the sequential navigation flow
type FlowStepConfig struct {
	Route    string `toml:"route" validate:"required,startswith=/"`
	Fragment string `toml:"fragment" validate:"required"`
}

// ReportConfig controls run artifacts
type ReportConfig struct {
	ResultsDir           string   `toml:"results_dir" validate:"required"`
	Formats              []string `toml:"formats" validate:"dive,oneof=json markdown html"`
	ScreenshotsOnFailure bool     `toml:"screenshots_on_failure"`
}

// LoggingConfig controls the arbor logger
type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output" validate:"dive,oneof=stdout console file"`
	TimeFormat string   `toml:"time_format"`
}

// ScheduleConfig configures watch mode
type ScheduleConfig struct {
	Cron string `toml:"cron"` // 5-field cron expression, empty disables watch mode
}

// ValidationError represents a configuration validation error with multiple issues
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// NewDefaultConfig creates a configuration with default values
// targeting the TDT staging site.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "staging",
		Site: SiteConfig{
			BaseURL:           "https://tdt.akvotest.org",
			NavigationTimeout: "45s",
			ActionTimeout:     "20s",
			ErrorMarkers:      []string{"404", "Page Not Found", "Error"},
			ImageSampleSize:   5,
			ImageRateLimit:    5,
		},
		Browser: BrowserConfig{
			Driver:      "chromedp",
			Headless:    true,
			Width:       1280,
			Height:      720,
			UserAgent:   "",
			NoSandbox:   false,
			DisableGPU:  true,
			Parallelism: 2,
			Engine:      "chromium",
		},
		CMS: CMSConfig{
			Enabled:            false, // Writes to an external system - explicit opt-in
			TargetID:           "1",
			Field:              "title",
			PriorValue:         "Original Heading",
			TitlePrefix:        "Automated Test Title",
			ObserveRoute:       "/",
			ObserveSelector:    "h1",
			PropagationTimeout: "30s",
			PollInterval:       "2s",
			RevertTimeout:      "30s",
		},
		Flows: FlowsConfig{
			Enabled:  true,
			SiteWide: true,
			Steps: []FlowStepConfig{
				{Route: "/", Fragment: "TDT"},
				{Route: "/investment-profiles", Fragment: "Investment"},
				{Route: "/social-accountability", Fragment: "Accountability"},
				{Route: "/stakeholder-directory", Fragment: "Stakeholder"},
				{Route: "/knowledge-hub", Fragment: "Knowledge"},
				{Route: "/news-events", Fragment: "News"},
				{Route: "/contact-us", Fragment: "Contact"},
			},
			MobileWidth:  375,
			MobileHeight: 667,
			TabletWidth:  768,
			TabletHeight: 1024,
			MaxLoadTime:  "10s",
		},
		Report: ReportConfig{
			ResultsDir:           "./results",
			Formats:              []string{"json", "markdown", "html"},
			ScreenshotsOnFailure: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SITEVERIFY_ENV"); env != "" {
		config.Environment = env
	}

	// Site configuration
	if baseURL := os.Getenv("SITEVERIFY_BASE_URL"); baseURL != "" {
		config.Site.BaseURL = baseURL
	}
	if timeout := os.Getenv("SITEVERIFY_NAVIGATION_TIMEOUT"); timeout != "" {
		config.Site.NavigationTimeout = timeout
	}
	if timeout := os.Getenv("SITEVERIFY_ACTION_TIMEOUT"); timeout != "" {
		config.Site.ActionTimeout = timeout
	}
	if sample := os.Getenv("SITEVERIFY_IMAGE_SAMPLE_SIZE"); sample != "" {
		if n, err := strconv.Atoi(sample); err == nil {
			config.Site.ImageSampleSize = n
		}
	}

	// Browser configuration
	if driver := os.Getenv("SITEVERIFY_BROWSER_DRIVER"); driver != "" {
		config.Browser.Driver = driver
	}
	if headless := os.Getenv("SITEVERIFY_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if noSandbox := os.Getenv("SITEVERIFY_NO_SANDBOX"); noSandbox != "" {
		if ns, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = ns
		}
	}
	if parallelism := os.Getenv("SITEVERIFY_PARALLELISM"); parallelism != "" {
		if p, err := strconv.Atoi(parallelism); err == nil {
			config.Browser.Parallelism = p
		}
	}

	// Catalog configuration
	if catalog := os.Getenv("SITEVERIFY_CATALOG_PATH"); catalog != "" {
		config.Catalog.Path = catalog
	}

	// CMS configuration - SITEVERIFY_ names take priority over the STRAPI_ names
	if enabled := os.Getenv("SITEVERIFY_CMS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.CMS.Enabled = e
		}
	}
	if cmsURL := firstEnv("SITEVERIFY_CMS_URL", "STRAPI_URL"); cmsURL != "" {
		config.CMS.BaseURL = cmsURL
	}
	if token := firstEnv("SITEVERIFY_CMS_TOKEN", "STRAPI_TOKEN"); token != "" {
		config.CMS.APIToken = token
	}
	if targetID := firstEnv("SITEVERIFY_CMS_TARGET_ID", "STRAPI_CONTENT_ID"); targetID != "" {
		config.CMS.TargetID = targetID
	}
	if prior := os.Getenv("SITEVERIFY_CMS_PRIOR_VALUE"); prior != "" {
		config.CMS.PriorValue = prior
	}

	// Report configuration
	if resultsDir := os.Getenv("SITEVERIFY_RESULTS_DIR"); resultsDir != "" {
		config.Report.ResultsDir = resultsDir
	}

	// Logging configuration
	if level := os.Getenv("SITEVERIFY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SITEVERIFY_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Schedule configuration
	if schedule := os.Getenv("SITEVERIFY_SCHEDULE"); schedule != "" {
		config.Schedule.Cron = schedule
	}
}

// FlagOverrides carries command-line values that take priority over every other source.
// Zero values leave the config untouched.
type FlagOverrides struct {
	BaseURL    string
	Driver     string
	ResultsDir string
	Headful    bool
	LogLevel   string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.BaseURL != "" {
		config.Site.BaseURL = flags.BaseURL
	}
	if flags.Driver != "" {
		config.Browser.Driver = flags.Driver
	}
	if flags.ResultsDir != "" {
		config.Report.ResultsDir = flags.ResultsDir
	}
	if flags.Headful {
		config.Browser.Headless = false
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	var issues []string

	validate := validator.New()
	if err := validate.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validation: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			issues = append(issues, fmt.Sprintf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	if c.CMS.Enabled {
		if c.CMS.BaseURL == "" {
			issues = append(issues, "cms.base_url is required when cms.enabled = true (or set SITEVERIFY_CMS_URL)")
		}
		if c.CMS.APIToken == "" {
			issues = append(issues, "cms.api_token is required when cms.enabled = true (or set SITEVERIFY_CMS_TOKEN)")
		}
		if c.CMS.TargetID == "" {
			issues = append(issues, "cms.target_id is required when cms.enabled = true")
		}
		if c.CMS.PriorValue == "" && !c.CMS.CapturePrior {
			issues = append(issues, "cms.prior_value must be set unless cms.capture_prior = true")
		}
	}

	if c.Schedule.Cron != "" {
		if err := ValidateSchedule(c.Schedule.Cron); err != nil {
			issues = append(issues, fmt.Sprintf("schedule.cron: %v", err))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Errors: issues}
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := time.ParseDuration(value)
	return err == nil && d >= 0
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveURL joins a site route onto the configured base URL
func (c *Config) ResolveURL(route string) string {
	return JoinURL(c.Site.BaseURL, route)
}

// RedactedCMSToken returns the token with all but the last four characters masked
func (c *Config) RedactedCMSToken() string {
	t := c.CMS.APIToken
	if len(t) <= 4 {
		return strings.Repeat("*", len(t))
	}
	return strings.Repeat("*", len(t)-4) + t[len(t)-4:]
}

// CMSHost returns the host of the CMS base URL for logging
func (c *Config) CMSHost() string {
	u, err := url.Parse(c.CMS.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// NavigationTimeoutDuration returns the parsed page load bound
func (s SiteConfig) NavigationTimeoutDuration() time.Duration {
	return parseDurationOr(s.NavigationTimeout, 45*time.Second)
}

// ActionTimeoutDuration returns the parsed element wait bound
func (s SiteConfig) ActionTimeoutDuration() time.Duration {
	return parseDurationOr(s.ActionTimeout, 20*time.Second)
}

// PropagationTimeoutDuration returns how long the observe step waits for the new value
func (c CMSConfig) PropagationTimeoutDuration() time.Duration {
	return parseDurationOr(c.PropagationTimeout, 30*time.Second)
}

// PollIntervalDuration returns the delay between frontend polls
func (c CMSConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 2*time.Second)
}

// RevertTimeoutDuration returns the bound for the revert call
func (c CMSConfig) RevertTimeoutDuration() time.Duration {
	return parseDurationOr(c.RevertTimeout, 30*time.Second)
}

// MaxLoadTimeDuration returns the page load time bound for the performance check
func (f FlowsConfig) MaxLoadTimeDuration() time.Duration {
	return parseDurationOr(f.MaxLoadTime, 10*time.Second)
}

// HasFormat returns true if the report format is enabled
func (r ReportConfig) HasFormat(format string) bool {
	for _, f := range r.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
