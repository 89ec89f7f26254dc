package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/verify"
)

// SiteWideOptions names the routes each site-wide feature is checked on
type SiteWideOptions struct {
	HeaderRoutes     []string
	FooterRoutes     []string
	ActiveNavRoute   string
	BreadcrumbRoute  string
	SearchRoutes     []string
	MenuLinkText     string
	MenuLinkFragment string
	InternalLinks    int
}

// DefaultSiteWideOptions returns the routes used for the TDT site
func DefaultSiteWideOptions() SiteWideOptions {
	return SiteWideOptions{
		HeaderRoutes:     []string{"/", "/investment-profiles", "/stakeholder-directory", "/contact-us"},
		FooterRoutes:     []string{"/", "/investment-profiles", "/knowledge-hub"},
		ActiveNavRoute:   "/investment-profiles",
		BreadcrumbRoute:  "/knowledge-hub",
		SearchRoutes:     []string{"/", "/stakeholder-directory", "/knowledge-hub"},
		MenuLinkText:     "Investment",
		MenuLinkFragment: "investment",
		InternalLinks:    10,
	}
}

// Site-wide feature locators
var (
	HeaderLandmark = models.MustParseStrategies("header", "role:banner", "nav")
	FooterLandmark = verify.FooterLandmark
	Branding       = models.MustParseStrategies("header img", ".logo", "class:logo")
	ActiveNavItem  = models.MustParseStrategies("nav a[aria-current]", "nav .active", `nav [class*="active"]`)
	Breadcrumbs    = models.MustParseStrategies("role:navigation=breadcrumb", ".breadcrumb", "class:breadcrumb")
	SkipLink       = models.MustParseStrategies(`a[href="#main"]`, `a[href="#content"]`, ".skip-link", "class:skip")
	SearchInput    = models.MustParseStrategies(`input[type="search"]`, "role:textbox=search", `[role="search"] input`)
	InternalLink   = models.MustParseStrategies(`a[href^="/"]`, `a[href^="./"]`, `a[href^="../"]`)
	ExternalLink   = models.MustParseStrategies(`a[href^="http"]`)
)

// ignoredPageErrors are script errors that do not indicate a broken site
var ignoredPageErrors = []string{"favicon", "analytics"}

// SiteWide runs every site-wide feature check in order. Features a site may
// legitimately lack are skipped when absent.
func (r *Runner) SiteWide(ctx context.Context, page interfaces.BrowserPage) []models.CheckResult {
	checks := []struct {
		name string
		run  func(context.Context, interfaces.BrowserPage) models.CheckResult
	}{
		{"header", r.checkHeader},
		{"footer", r.checkFooter},
		{"branding", r.checkBranding},
		{"active_nav", r.checkActiveNav},
		{"breadcrumbs", r.checkBreadcrumbs},
		{"skip_link", r.checkSkipLink},
		{"search", r.checkSearch},
		{"internal_links", r.checkInternalLinks},
		{"external_links", r.checkExternalLinks},
		{"menu_click_through", r.checkMenuClickThrough},
		{"tablet", r.checkTablet},
		{"load_time", r.checkLoadTime},
		{"page_errors", r.checkPageErrors},
	}

	page = r.bounded(page)
	results := make([]models.CheckResult, 0, len(checks))
	for _, c := range checks {
		if ctx.Err() != nil {
			results = append(results, models.Fail(SitePageName, models.CheckSiteFeature, classify(ctx.Err()),
				c.name, ctx.Err().Error()).WithName(c.name))
			continue
		}

		start := time.Now()
		result := c.run(ctx, page)
		if result.Name == "" {
			result = result.WithName(c.name)
		}
		result = result.WithDuration(time.Since(start))

		r.logger.Debug().
			Str("feature", result.Name).
			Str("outcome", string(result.Outcome)).
			Msg("Site feature checked")

		results = append(results, result)
	}
	return results
}

func siteFail(kind models.FailureKind, expectation, detail string) models.CheckResult {
	return models.Fail(SitePageName, models.CheckSiteFeature, kind, expectation, detail)
}

func siteErr(expectation string, err error) models.CheckResult {
	return siteFail(classify(err), expectation, err.Error())
}

// checkHeader requires a visible header on every header route
func (r *Runner) checkHeader(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "header visible on " + strings.Join(r.opts.SiteWide.HeaderRoutes, ", ")

	for _, route := range r.opts.SiteWide.HeaderRoutes {
		if _, err := r.navigate(ctx, page, route); err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		located, err := r.resolver.Resolve(ctx, page, HeaderLandmark, r.opts.ActionTimeout)
		if err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if !located.Found {
			return siteFail(models.FailureAssertion, expectation, "no visible header on "+route).WithRoute(route)
		}
	}
	return models.Pass(SitePageName, models.CheckSiteFeature,
		fmt.Sprintf("header visible on %d pages", len(r.opts.SiteWide.HeaderRoutes))).WithCount(len(r.opts.SiteWide.HeaderRoutes))
}

// checkFooter scrolls each footer route to the bottom; a footer, when
// present, must be visible
func (r *Runner) checkFooter(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "footer visible when present"
	seen := 0

	for _, route := range r.opts.SiteWide.FooterRoutes {
		if _, err := r.navigate(ctx, page, route); err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if err := page.ScrollToBottom(ctx); err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}

		count, err := r.resolver.Count(ctx, page, FooterLandmark)
		if err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if count == 0 {
			continue
		}
		seen++

		located, err := r.resolver.Resolve(ctx, page, FooterLandmark, r.optionalTimeout())
		if err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if !located.Found {
			return siteFail(models.FailureAssertion, expectation, "footer present but not visible on "+route).WithRoute(route)
		}
	}

	if seen == 0 {
		return models.Skip(SitePageName, models.CheckSiteFeature, "no footer found")
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, fmt.Sprintf("footer visible on %d pages", seen)).WithCount(seen)
}

// optionalVisible loads route and, if any element matches strategies, requires
// one of them to be visible
func (r *Runner) optionalVisible(ctx context.Context, page interfaces.BrowserPage, route string, strategies []models.Strategy, what string) models.CheckResult {
	expectation := what + " visible when present"

	if _, err := r.navigate(ctx, page, route); err != nil {
		return siteErr(expectation, err).WithRoute(route)
	}
	count, err := r.resolver.Count(ctx, page, strategies)
	if err != nil {
		return siteErr(expectation, err).WithRoute(route)
	}
	if count == 0 {
		return models.Skip(SitePageName, models.CheckSiteFeature, "no "+what+" found").WithRoute(route)
	}

	located, err := r.resolver.Resolve(ctx, page, strategies, r.optionalTimeout())
	if err != nil {
		return siteErr(expectation, err).WithRoute(route)
	}
	if !located.Found {
		return siteFail(models.FailureAssertion, expectation, what+" present but not visible").WithRoute(route)
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, what+" visible via "+located.Strategy.String()).WithRoute(route)
}

func (r *Runner) checkBranding(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	return r.optionalVisible(ctx, page, "/", Branding, "site branding")
}

func (r *Runner) checkActiveNav(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	return r.optionalVisible(ctx, page, r.opts.SiteWide.ActiveNavRoute, ActiveNavItem, "active navigation item")
}

func (r *Runner) checkBreadcrumbs(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	return r.optionalVisible(ctx, page, r.opts.SiteWide.BreadcrumbRoute, Breadcrumbs, "breadcrumb trail")
}

// checkSkipLink requires a present skip link to carry an href. Skip links are
// usually visually hidden until focused, so visibility is not required.
func (r *Runner) checkSkipLink(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "skip link has an href when present"

	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}
	for _, strategy := range SkipLink {
		matches, err := r.resolver.Matches(ctx, page, strategy)
		if err != nil {
			return siteErr(expectation, err)
		}
		if len(matches) == 0 {
			continue
		}
		href, _ := matches[0].Attr("href")
		if strings.TrimSpace(href) == "" {
			return siteFail(models.FailureAssertion, expectation, "skip link has no href")
		}
		return models.Pass(SitePageName, models.CheckSiteFeature, "skip link targets "+href)
	}
	return models.Skip(SitePageName, models.CheckSiteFeature, "no skip link found")
}

// checkSearch fills the first visible search input it finds and reads the value back
func (r *Runner) checkSearch(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	const query = "test"
	expectation := fmt.Sprintf("search input accepts %q", query)

	for _, route := range r.opts.SiteWide.SearchRoutes {
		if _, err := r.navigate(ctx, page, route); err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		located, err := r.resolver.ResolveOnce(ctx, page, SearchInput)
		if err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if !located.Found {
			continue
		}

		if err := page.Fill(ctx, located.Selector, located.Index, query); err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		value, err := page.InputValue(ctx, located.Selector, located.Index)
		if err != nil {
			return siteErr(expectation, err).WithRoute(route)
		}
		if value != query {
			return siteFail(models.FailureAssertion, expectation, fmt.Sprintf("read back %q", value)).WithRoute(route)
		}
		return models.Pass(SitePageName, models.CheckSiteFeature, "search input accepts text").WithRoute(route)
	}
	return models.Skip(SitePageName, models.CheckSiteFeature, "no search input found")
}

// checkInternalLinks requires the first internal links on the home page to have an href
func (r *Runner) checkInternalLinks(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "internal links have a non-empty href"

	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}

	var links []models.Element
	for _, strategy := range InternalLink {
		matches, err := r.resolver.Matches(ctx, page, strategy)
		if err != nil {
			return siteErr(expectation, err)
		}
		links = append(links, matches...)
	}
	if len(links) == 0 {
		return models.Skip(SitePageName, models.CheckSiteFeature, "no internal links found")
	}
	if limit := r.opts.SiteWide.InternalLinks; limit > 0 && len(links) > limit {
		links = links[:limit]
	}

	for _, link := range links {
		href, _ := link.Attr("href")
		if strings.TrimSpace(href) == "" {
			return siteFail(models.FailureAssertion, expectation, fmt.Sprintf("link %q has an empty href", link.Text))
		}
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, fmt.Sprintf("%d internal links checked", len(links))).WithCount(len(links))
}

// checkExternalLinks requires the first off-site link, if it sets a target, to open in a new tab
func (r *Runner) checkExternalLinks(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := `external links open with target="_blank"`

	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}
	matches, err := r.resolver.Matches(ctx, page, ExternalLink[0])
	if err != nil {
		return siteErr(expectation, err)
	}

	for _, link := range matches {
		href, _ := link.Attr("href")
		if common.SameHost(href, r.opts.BaseURL) {
			continue
		}
		target, ok := link.Attr("target")
		if ok && target != "_blank" {
			return siteFail(models.FailureAssertion, expectation, fmt.Sprintf("%s has target %q", href, target))
		}
		return models.Pass(SitePageName, models.CheckSiteFeature, href+" opens in a new tab")
	}
	return models.Skip(SitePageName, models.CheckSiteFeature, "no external links found")
}

// checkMenuClickThrough clicks the menu link for the investment section and
// expects to land on it
func (r *Runner) checkMenuClickThrough(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	text := r.opts.SiteWide.MenuLinkText
	expectation := fmt.Sprintf("clicking %q lands on a URL containing %q", text, r.opts.SiteWide.MenuLinkFragment)

	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}
	located, err := r.resolver.ResolveOnce(ctx, page, []models.Strategy{models.ByText("a", text)})
	if err != nil {
		return siteErr(expectation, err)
	}
	if !located.Found {
		return models.Skip(SitePageName, models.CheckSiteFeature, fmt.Sprintf("no visible %q menu link", text))
	}

	clickCtx, cancel := context.WithTimeout(ctx, r.opts.NavigationTimeout)
	defer cancel()
	if err := page.Click(clickCtx, located.Selector, located.Index); err != nil {
		return siteErr(expectation, err)
	}
	current, err := page.URL(clickCtx)
	if err != nil {
		return siteErr(expectation, err)
	}
	if !strings.Contains(strings.ToLower(current), strings.ToLower(r.opts.SiteWide.MenuLinkFragment)) {
		return siteFail(models.FailureAssertion, expectation, "landed on "+current)
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, "landed on "+current)
}

// checkTablet verifies the home page at tablet size, then restores the desktop viewport
func (r *Runner) checkTablet(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	name := fmt.Sprintf("tablet %dx%d", r.opts.TabletWidth, r.opts.TabletHeight)
	result := r.viewportCheck(ctx, page, "/", r.opts.TabletWidth, r.opts.TabletHeight).WithName(name).WithRoute("/")

	if r.opts.DesktopWidth > 0 && r.opts.DesktopHeight > 0 {
		if err := page.SetViewport(ctx, r.opts.DesktopWidth, r.opts.DesktopHeight); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to restore desktop viewport")
		}
	}
	return result
}

// checkLoadTime times a full home page load against the configured maximum
func (r *Runner) checkLoadTime(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := fmt.Sprintf("home page loads within %s", r.opts.MaxLoadTime)

	start := time.Now()
	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}
	if _, err := r.resolver.Resolve(ctx, page, verify.MainLandmark, r.opts.ActionTimeout); err != nil {
		return siteErr(expectation, err)
	}
	elapsed := time.Since(start)

	if elapsed >= r.opts.MaxLoadTime {
		return siteFail(models.FailureAssertion, expectation, fmt.Sprintf("took %s", elapsed.Round(time.Millisecond)))
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, fmt.Sprintf("loaded in %s", elapsed.Round(time.Millisecond)))
}

// checkPageErrors loads the home page and fails on uncaught script errors,
// ignoring favicon and analytics noise
func (r *Runner) checkPageErrors(ctx context.Context, page interfaces.BrowserPage) models.CheckResult {
	expectation := "no uncaught script errors on load"

	before := len(page.PageErrors())
	if _, err := r.navigate(ctx, page, "/"); err != nil {
		return siteErr(expectation, err)
	}
	if r.opts.ErrorSettle > 0 {
		select {
		case <-ctx.Done():
			return siteErr(expectation, ctx.Err())
		case <-time.After(r.opts.ErrorSettle):
		}
	}

	var relevant []string
	all := page.PageErrors()
	if before > len(all) {
		before = 0
	}
	for _, msg := range all[before:] {
		if !isIgnoredPageError(msg) {
			relevant = append(relevant, msg)
		}
	}
	if len(relevant) > 0 {
		return siteFail(models.FailureAssertion, expectation, strings.Join(relevant, "; ")).WithCount(len(relevant))
	}
	return models.Pass(SitePageName, models.CheckSiteFeature, "no script errors")
}

func isIgnoredPageError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, ignored := range ignoredPageErrors {
		if strings.Contains(lower, ignored) {
			return true
		}
	}
	return false
}
