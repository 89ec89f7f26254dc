package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/testsite"
)

func featureResult(t *testing.T, results []models.CheckResult, name string) models.CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no %q result", name)
	return models.CheckResult{}
}

func TestSiteWide_HealthySite(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	runner := newTestRunner(site.URL)

	results := runner.SiteWide(context.Background(), newTestPage(t))
	require.Len(t, results, 13)

	for _, r := range results {
		assert.True(t, r.Kind == models.CheckSiteFeature || r.Kind == models.CheckViewport, r.Name)
		assert.Equal(t, SitePageName, r.PageName)
		assert.Equal(t, models.OutcomePass, r.Outcome, "%s: %s", r.Name, r.Detail)
	}

	assert.Contains(t, featureResult(t, results, "skip_link").Detail, "#main")
	assert.Equal(t, 4, featureResult(t, results, "header").Count)
	assert.Equal(t, "/knowledge-hub", featureResult(t, results, "search").Route)
	assert.Contains(t, featureResult(t, results, "menu_click_through").Detail, "/investment-profiles")
	assert.Contains(t, featureResult(t, results, "external_links").Detail, "example.org")
}

func TestSiteWide_LoadTimeExceeded(t *testing.T) {
	site := testsite.New(t, testsite.Options{SlowPage: 50 * time.Millisecond})
	runner := newTestRunner(site.URL)
	runner.opts.MaxLoadTime = 10 * time.Millisecond

	result := runner.checkLoadTime(context.Background(), newTestPage(t))
	assert.True(t, result.Failed())
	assert.Contains(t, result.Detail, "took")
}

func TestSiteWide_OptionalFeaturesSkipWhenAbsent(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	runner := newTestRunner(site.URL)
	runner.opts.SiteWide.SearchRoutes = []string{"/contact-us"}
	runner.opts.SiteWide.MenuLinkText = "Tourism"

	page := newTestPage(t)
	ctx := context.Background()

	assert.Equal(t, models.OutcomeSkipped, runner.checkSearch(ctx, page).Outcome)
	assert.Equal(t, models.OutcomeSkipped, runner.checkMenuClickThrough(ctx, page).Outcome)
}

func TestSiteWide_HeaderCountsRoutes(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	runner := newTestRunner(site.URL)
	runner.opts.SiteWide.HeaderRoutes = []string{"/", "/contact-us"}

	result := runner.checkHeader(context.Background(), newTestPage(t))
	assert.True(t, result.Passed(), result.Detail)
	assert.Equal(t, 2, result.Count)
}

// erroringPage reports script errors after each navigation
type erroringPage struct {
	interfaces.BrowserPage
	messages []string
	errs     []string
}

func (p *erroringPage) Navigate(ctx context.Context, url string) (*models.NavigationResult, error) {
	p.errs = append(p.errs, p.messages...)
	return p.BrowserPage.Navigate(ctx, url)
}

func (p *erroringPage) PageErrors() []string { return p.errs }

func TestSiteWide_PageErrors(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	runner := newTestRunner(site.URL)
	ctx := context.Background()

	t.Run("noise is ignored", func(t *testing.T) {
		page := &erroringPage{
			BrowserPage: newTestPage(t),
			messages:    []string{"GET /favicon.ico 404", "Analytics blocked"},
		}
		assert.True(t, runner.checkPageErrors(ctx, page).Passed())
	})

	t.Run("uncaught error fails", func(t *testing.T) {
		page := &erroringPage{
			BrowserPage: newTestPage(t),
			messages:    []string{"Uncaught Error: boom"},
		}
		result := runner.checkPageErrors(ctx, page)
		assert.True(t, result.Failed())
		assert.Equal(t, "Uncaught Error: boom", result.Detail)
		assert.Equal(t, 1, result.Count)
	})

	t.Run("errors before the load are not counted", func(t *testing.T) {
		page := &erroringPage{BrowserPage: newTestPage(t), errs: []string{"Uncaught Error: earlier"}}
		assert.True(t, runner.checkPageErrors(ctx, page).Passed())
	})
}

func TestSiteWide_CancelledContext(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	runner := newTestRunner(site.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := runner.SiteWide(ctx, newTestPage(t))
	require.Len(t, results, 13)
	for _, r := range results {
		assert.True(t, r.Failed(), r.Name)
	}
}

func TestIsIgnoredPageError(t *testing.T) {
	assert.True(t, isIgnoredPageError("Failed to load FAVICON"))
	assert.True(t, isIgnoredPageError("google-analytics timed out"))
	assert.False(t, isIgnoredPageError("TypeError: x is undefined"))
}
