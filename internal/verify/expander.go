// Package verify expands a page descriptor into its battery of checks and runs
// them against one browser page.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/locator"
	"github.com/ternarybob/siteverify/internal/models"
)

// Options configures the expander
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ErrorMarkers      []string // Literal, case-sensitive body substrings
	ImageSampleSize   int
}

// DefaultImageSampleSize bounds the images checked per page when none is configured
const DefaultImageSampleSize = 5

// DefaultErrorMarkers mark a page as an error page when found in its body text
var DefaultErrorMarkers = []string{"404", "Page Not Found", "Error"}

// OptionsFromConfig derives expander options from the application config
func OptionsFromConfig(config *common.Config) Options {
	markers := config.Site.ErrorMarkers
	if markers == nil {
		markers = DefaultErrorMarkers
	}
	return Options{
		BaseURL:           config.Site.BaseURL,
		NavigationTimeout: config.Site.NavigationTimeoutDuration(),
		ActionTimeout:     config.Site.ActionTimeoutDuration(),
		ErrorMarkers:      markers,
		ImageSampleSize:   config.Site.ImageSampleSize,
	}
}

// Expander runs the verification battery for page specs
type Expander struct {
	opts     Options
	resolver *locator.Resolver
	images   *ImageChecker
	logger   arbor.ILogger
}

// NewExpander creates an expander
func NewExpander(opts Options, resolver *locator.Resolver, images *ImageChecker, logger arbor.ILogger) *Expander {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 45 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 20 * time.Second
	}
	if opts.ImageSampleSize <= 0 {
		opts.ImageSampleSize = DefaultImageSampleSize
	}
	return &Expander{
		opts:     opts,
		resolver: resolver,
		images:   images,
		logger:   logger,
	}
}

// Checks lists the check kinds a spec expands to, in execution order
func Checks(spec models.PageSpec) []models.CheckKind {
	kinds := []models.CheckKind{models.CheckLoad, models.CheckLandmark, models.CheckContent}
	if spec.Capabilities.HasLayout {
		kinds = append(kinds, models.CheckLayout)
	}
	if spec.Capabilities.HasNavigation {
		kinds = append(kinds, models.CheckNavigation)
	}
	if spec.HeadingPattern != "" {
		kinds = append(kinds, models.CheckHeading)
	}
	if len(spec.ItemSelectors) > 0 {
		kinds = append(kinds, models.CheckItems)
	}
	kinds = append(kinds, models.CheckImages)
	if spec.Capabilities.HasForm {
		kinds = append(kinds, models.CheckForm)
	}
	if spec.TitlePattern != "" {
		kinds = append(kinds, models.CheckTitle)
	}
	return kinds
}

// Verify runs every check for spec against page and returns one result per check.
// Checks do not stop at the first failure. When the page cannot be loaded at all
// the remaining checks fail with the navigation error rather than inspecting a
// stale document. Every page call is bounded by the navigation or action timeout.
func (e *Expander) Verify(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) []models.CheckResult {
	page = browser.WithTimeouts(page, e.opts.NavigationTimeout, e.opts.ActionTimeout)
	kinds := Checks(spec)
	results := make([]models.CheckResult, 0, len(kinds))

	e.logger.Info().
		Str("page", spec.Name).
		Str("route", spec.Route).
		Int("checks", len(kinds)).
		Msg("Verifying page")

	load, navErr := e.checkLoad(ctx, spec, page)
	results = append(results, load)

	for _, kind := range kinds[1:] {
		start := time.Now()
		var result models.CheckResult

		if navErr != nil {
			result = models.Fail(spec.Name, kind, classify(navErr), expectationFor(spec, kind),
				"Not checked: page did not load: "+navErr.Error())
		} else {
			switch kind {
			case models.CheckLandmark:
				result = e.checkLandmark(ctx, spec, page)
			case models.CheckContent:
				result = e.checkContent(ctx, spec, page)
			case models.CheckLayout:
				result = e.checkLayout(ctx, spec, page)
			case models.CheckNavigation:
				result = e.checkNavigation(ctx, spec, page)
			case models.CheckHeading:
				result = e.checkHeading(ctx, spec, page)
			case models.CheckItems:
				result = e.checkItems(ctx, spec, page)
			case models.CheckImages:
				result = e.checkImages(ctx, spec, page)
			case models.CheckForm:
				result = e.checkForm(ctx, spec, page)
			case models.CheckTitle:
				result = e.checkTitle(ctx, spec, page)
			}
		}

		results = append(results, result.WithRoute(spec.Route).WithDuration(time.Since(start)))
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	e.logger.Info().
		Str("page", spec.Name).
		Int("passed", len(results)-failed).
		Int("failed", failed).
		Msg("Page verified")

	return results
}

// classify maps an error to a failure kind
func classify(err error) models.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	return models.FailureTransport
}
