// Package flow runs multi-step navigation sequences and site-wide UI checks.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/locator"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/verify"
)

// Page names used on flow results
const (
	FlowPageName = "Navigation Flow"
	SitePageName = "Site"
)

// Step is one visit of a sequential flow
type Step struct {
	Route    string
	Fragment string
}

// MobileMenuTrigger locates a hamburger or mobile menu button
var MobileMenuTrigger = models.MustParseStrategies(
	"role:button=menu",
	"text:button=Menu",
	"class:hamburger",
	"class:mobile-menu",
)

// Options configures the flow runner
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	DesktopWidth      int
	DesktopHeight     int
	MobileWidth       int
	MobileHeight      int
	TabletWidth       int
	TabletHeight      int
	MaxLoadTime       time.Duration
	// ErrorSettle is how long to wait for late script errors after a load
	ErrorSettle time.Duration
	SiteWide    SiteWideOptions
}

// OptionsFromConfig derives runner options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		BaseURL:           config.Site.BaseURL,
		NavigationTimeout: config.Site.NavigationTimeoutDuration(),
		ActionTimeout:     config.Site.ActionTimeoutDuration(),
		DesktopWidth:      config.Browser.Width,
		DesktopHeight:     config.Browser.Height,
		MobileWidth:       config.Flows.MobileWidth,
		MobileHeight:      config.Flows.MobileHeight,
		TabletWidth:       config.Flows.TabletWidth,
		TabletHeight:      config.Flows.TabletHeight,
		MaxLoadTime:       config.Flows.MaxLoadTimeDuration(),
		ErrorSettle:       min(2*time.Second, config.Site.ActionTimeoutDuration()),
		SiteWide:          DefaultSiteWideOptions(),
	}
}

// StepsFromConfig converts configured flow steps
func StepsFromConfig(config *common.Config) []Step {
	steps := make([]Step, 0, len(config.Flows.Steps))
	for _, s := range config.Flows.Steps {
		steps = append(steps, Step{Route: s.Route, Fragment: s.Fragment})
	}
	return steps
}

// Runner executes flows on a single page, strictly sequentially
type Runner struct {
	opts     Options
	resolver *locator.Resolver
	logger   arbor.ILogger
}

// NewRunner creates a flow runner
func NewRunner(opts Options, resolver *locator.Resolver, logger arbor.ILogger) *Runner {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 15 * time.Second
	}
	if opts.MobileWidth <= 0 || opts.MobileHeight <= 0 {
		opts.MobileWidth, opts.MobileHeight = 375, 667
	}
	if opts.TabletWidth <= 0 || opts.TabletHeight <= 0 {
		opts.TabletWidth, opts.TabletHeight = 768, 1024
	}
	if opts.MaxLoadTime <= 0 {
		opts.MaxLoadTime = 10 * time.Second
	}
	return &Runner{opts: opts, resolver: resolver, logger: logger}
}

// bounded gives every call on page the runner's navigation or action timeout
func (r *Runner) bounded(page interfaces.BrowserPage) interfaces.BrowserPage {
	return browser.WithTimeouts(page, r.opts.NavigationTimeout, r.opts.ActionTimeout)
}

// navigate loads a route under the navigation timeout
func (r *Runner) navigate(ctx context.Context, page interfaces.BrowserPage, route string) (*models.NavigationResult, error) {
	navCtx, cancel := context.WithTimeout(ctx, r.opts.NavigationTimeout)
	defer cancel()
	return page.Navigate(navCtx, common.JoinURL(r.opts.BaseURL, route))
}

// RunFlow visits each step in order and checks the URL and a case-insensitive
// body fragment. A failed step does not stop the flow.
func (r *Runner) RunFlow(ctx context.Context, page interfaces.BrowserPage, steps []Step) []models.CheckResult {
	page = r.bounded(page)
	results := make([]models.CheckResult, 0, len(steps))

	for i, step := range steps {
		start := time.Now()
		result := r.runStep(ctx, page, step)
		result = result.WithName(fmt.Sprintf("%d %s", i+1, step.Route)).WithRoute(step.Route).WithDuration(time.Since(start))

		r.logger.Debug().
			Int("step", i+1).
			Str("route", step.Route).
			Str("outcome", string(result.Outcome)).
			Msg("Flow step complete")

		results = append(results, result)
	}
	return results
}

func (r *Runner) runStep(ctx context.Context, page interfaces.BrowserPage, step Step) models.CheckResult {
	expectation := fmt.Sprintf("URL contains %s and body contains %q", step.Route, step.Fragment)

	nav, err := r.navigate(ctx, page, step.Route)
	if err != nil {
		return models.Fail(FlowPageName, models.CheckFlowStep, classify(err), expectation, err.Error())
	}
	if !strings.Contains(nav.URL, step.Route) {
		return models.Fail(FlowPageName, models.CheckFlowStep, models.FailureAssertion, expectation,
			fmt.Sprintf("landed on %s", nav.URL))
	}

	body, err := page.BodyText(ctx)
	if err != nil {
		return models.Fail(FlowPageName, models.CheckFlowStep, classify(err), expectation, err.Error())
	}
	if !strings.Contains(strings.ToLower(body), strings.ToLower(step.Fragment)) {
		return models.Fail(FlowPageName, models.CheckFlowStep, models.FailureAssertion, expectation,
			fmt.Sprintf("Expected to find %q on %s", step.Fragment, step.Route))
	}

	return models.Pass(FlowPageName, models.CheckFlowStep, fmt.Sprintf("found %q", step.Fragment))
}

// BackForward visits routeA then routeB, goes back expecting A's URL, then
// forward expecting B's URL
func (r *Runner) BackForward(ctx context.Context, page interfaces.BrowserPage, routeA, routeB string) []models.CheckResult {
	expectation := fmt.Sprintf("history moves between %s and %s", routeA, routeB)
	fail := func(name string, kind models.FailureKind, detail string) []models.CheckResult {
		return []models.CheckResult{models.Fail(FlowPageName, models.CheckHistory, kind, expectation, detail).WithName(name)}
	}
	page = r.bounded(page)

	navA, err := r.navigate(ctx, page, routeA)
	if err != nil {
		return fail("setup", classify(err), err.Error())
	}
	navB, err := r.navigate(ctx, page, routeB)
	if err != nil {
		return fail("setup", classify(err), err.Error())
	}

	results := make([]models.CheckResult, 0, 2)
	results = append(results, r.historyStep(ctx, page, "back", page.Back, navA.URL, expectation))
	results = append(results, r.historyStep(ctx, page, "forward", page.Forward, navB.URL, expectation))
	return results
}

func (r *Runner) historyStep(ctx context.Context, page interfaces.BrowserPage, name string, move func(context.Context) error, want, expectation string) models.CheckResult {
	moveCtx, cancel := context.WithTimeout(ctx, r.opts.NavigationTimeout)
	defer cancel()

	if err := move(moveCtx); err != nil {
		return models.Fail(FlowPageName, models.CheckHistory, classify(err), expectation, err.Error()).WithName(name)
	}
	got, err := page.URL(moveCtx)
	if err != nil {
		return models.Fail(FlowPageName, models.CheckHistory, classify(err), expectation, err.Error()).WithName(name)
	}
	if got != want {
		return models.Fail(FlowPageName, models.CheckHistory, models.FailureAssertion, expectation,
			fmt.Sprintf("expected %s, at %s", want, got)).WithName(name)
	}
	return models.Pass(FlowPageName, models.CheckHistory, "at "+got).WithName(name)
}

// MobileViewport loads route at width x height and checks the primary content
// is visible. If a mobile menu trigger is present it must be visible, and after
// a click its aria-expanded attribute, when it has one, must be "true".
func (r *Runner) MobileViewport(ctx context.Context, page interfaces.BrowserPage, route string, width, height int) []models.CheckResult {
	page = r.bounded(page)
	name := fmt.Sprintf("%dx%d", width, height)
	results := []models.CheckResult{r.viewportCheck(ctx, page, route, width, height).WithName(name).WithRoute(route)}
	if results[0].Failed() {
		return results
	}

	return append(results, r.mobileMenuCheck(ctx, page).WithName(name).WithRoute(route))
}

// viewportCheck resizes, loads route and requires visible main content
func (r *Runner) viewportCheck(ctx context.Context, page interfaces.BrowserPage, route string, width, height int) models.CheckResult {
	expectation := fmt.Sprintf("main content visible at %dx%d", width, height)

	if err := page.SetViewport(ctx, width, height); err != nil {
		return models.Fail(SitePageName, models.CheckViewport, classify(err), expectation, err.Error())
	}
	if _, err := r.navigate(ctx, page, route); err != nil {
		return models.Fail(SitePageName, models.CheckViewport, classify(err), expectation, err.Error())
	}

	located, err := r.resolver.Resolve(ctx, page, verify.MainLandmark, r.opts.ActionTimeout)
	if err != nil {
		return models.Fail(SitePageName, models.CheckViewport, classify(err), expectation, err.Error())
	}
	if !located.Found {
		return models.Fail(SitePageName, models.CheckViewport, models.FailureAssertion, expectation, "main content not visible")
	}
	return models.Pass(SitePageName, models.CheckViewport, "main content visible")
}

func (r *Runner) mobileMenuCheck(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "mobile menu trigger visible and expands when clicked"

	trigger, err := r.resolver.Resolve(ctx, page, MobileMenuTrigger, r.optionalTimeout())
	if err != nil {
		return models.Fail(SitePageName, models.CheckMobileMenu, classify(err), expectation, err.Error())
	}
	if !trigger.Found {
		return models.Skip(SitePageName, models.CheckMobileMenu, "no visible mobile menu trigger")
	}

	if err := page.Click(ctx, trigger.Selector, trigger.Index); err != nil {
		return models.Fail(SitePageName, models.CheckMobileMenu, classify(err), expectation, err.Error())
	}

	elements, err := page.Query(ctx, trigger.Selector)
	if err != nil {
		return models.Fail(SitePageName, models.CheckMobileMenu, classify(err), expectation, err.Error())
	}
	if trigger.Index >= len(elements) {
		return models.Pass(SitePageName, models.CheckMobileMenu, "menu trigger clicked")
	}

	expanded, ok := elements[trigger.Index].Attr("aria-expanded")
	if !ok {
		return models.Pass(SitePageName, models.CheckMobileMenu, "menu trigger clicked, no aria-expanded attribute")
	}
	if expanded != "true" {
		return models.Fail(SitePageName, models.CheckMobileMenu, models.FailureAssertion, expectation,
			fmt.Sprintf("aria-expanded is %q after click", expanded))
	}
	return models.Pass(SitePageName, models.CheckMobileMenu, "menu expanded via "+trigger.Strategy.String())
}

// optionalTimeout bounds lookups for elements a site may legitimately not have
func (r *Runner) optionalTimeout() time.Duration {
	if r.opts.ActionTimeout < 2*time.Second {
		return r.opts.ActionTimeout
	}
	return 2 * time.Second
}

func classify(err error) models.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	return models.FailureTransport
}
