package verify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/locator"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/pages"
	"github.com/ternarybob/siteverify/internal/testsite"
)

func newTestExpander(baseURL string) *Expander {
	logger := arbor.NewLogger()
	return NewExpander(Options{
		BaseURL:           baseURL,
		NavigationTimeout: 5 * time.Second,
		ActionTimeout:     200 * time.Millisecond,
		ErrorMarkers:      DefaultErrorMarkers,
		ImageSampleSize:   5,
	}, locator.NewResolver(logger), NewImageChecker(logger, WithImageRateLimit(0)), logger)
}

func newTestPage(t *testing.T) interfaces.BrowserPage {
	t.Helper()
	page, err := browser.NewStaticDriver(nil, "", arbor.NewLogger()).NewPage(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })
	return page
}

func catalogSpec(t *testing.T, route string) models.PageSpec {
	t.Helper()
	registry, err := pages.NewRegistry(pages.DefaultCatalog())
	require.NoError(t, err)
	spec, err := registry.Get(route)
	require.NoError(t, err)
	return spec
}

func resultFor(t *testing.T, results []models.CheckResult, kind models.CheckKind) models.CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Kind == kind {
			return r
		}
	}
	t.Fatalf("no %s result in %d results", kind, len(results))
	return models.CheckResult{}
}

func TestVerify_CatalogPassesAgainstHealthySite(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	expander := newTestExpander(site.URL)

	for _, spec := range pages.DefaultCatalog() {
		t.Run(spec.Name, func(t *testing.T) {
			results := expander.Verify(context.Background(), spec, newTestPage(t))
			require.Len(t, results, len(Checks(spec)))

			for _, r := range results {
				assert.NotEqual(t, models.OutcomeFail, r.Outcome, "%s: %s", r.Label(), r.Detail)
				assert.Equal(t, spec.Route, r.Route)
			}
		})
	}
}

func TestVerify_ContactFormScenario(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/contact-us")

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))

	kinds := make([]models.CheckKind, 0, len(results))
	for _, r := range results {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []models.CheckKind{
		models.CheckLoad, models.CheckLandmark, models.CheckContent, models.CheckLayout,
		models.CheckNavigation, models.CheckHeading, models.CheckImages, models.CheckForm,
		models.CheckTitle,
	}, kinds)

	form := resultFor(t, results, models.CheckForm)
	assert.True(t, form.Passed(), form.Detail)
	assert.Equal(t, 3, form.Count)
	assert.Contains(t, form.Detail, "2 filled and read back")

	nav := resultFor(t, results, models.CheckNavigation)
	assert.True(t, nav.Passed())
	assert.Greater(t, nav.Count, 0)
}

func TestVerify_ErrorPageFailsLoadButRunsOtherChecks(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := models.PageSpec{
		Name:              "Missing",
		Route:             "/missing-page",
		LandmarkSelectors: models.MustParseStrategies("main"),
		ExpectedContent:   []models.ContentMatcher{models.Literal("Page Not Found")},
		Capabilities:      models.Capabilities{HasNavigation: true},
	}

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))

	load := resultFor(t, results, models.CheckLoad)
	assert.True(t, load.Failed())
	assert.Equal(t, models.FailureAssertion, load.FailureKind)
	assert.Contains(t, load.Detail, "404")

	// The document loaded, so the remaining checks inspected it
	assert.True(t, resultFor(t, results, models.CheckLandmark).Passed())
	assert.True(t, resultFor(t, results, models.CheckContent).Passed())
	assert.True(t, resultFor(t, results, models.CheckNavigation).Passed())
}

func TestVerify_ErrorMarkerInBody(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/")

	expander := newTestExpander(site.URL)
	expander.opts.ErrorMarkers = []string{"Tanzania Investment"}

	results := expander.Verify(context.Background(), spec, newTestPage(t))
	load := resultFor(t, results, models.CheckLoad)
	assert.True(t, load.Failed())
	assert.Contains(t, load.Detail, `"Tanzania Investment"`)
}

func TestVerify_NavigationFailureFailsEveryCheck(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	baseURL := site.URL
	site.Close()

	spec := catalogSpec(t, "/contact-us")
	results := newTestExpander(baseURL).Verify(context.Background(), spec, newTestPage(t))

	require.Len(t, results, len(Checks(spec)))
	for _, r := range results {
		assert.True(t, r.Failed(), r.Label())
		assert.Equal(t, models.FailureTransport, r.FailureKind, r.Label())
		assert.NotEmpty(t, r.Expectation)
	}
	assert.Contains(t, results[1].Detail, "page did not load")
}

func TestVerify_NavigationTimeout(t *testing.T) {
	site := testsite.New(t, testsite.Options{SlowPage: 2 * time.Second})
	expander := newTestExpander(site.URL)
	expander.opts.NavigationTimeout = 100 * time.Millisecond

	results := expander.Verify(context.Background(), catalogSpec(t, "/"), newTestPage(t))
	load := resultFor(t, results, models.CheckLoad)
	assert.Equal(t, models.FailureTimeout, load.FailureKind)
}

func TestVerify_LandmarkFallsBackToMain(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/")
	spec.LandmarkSelectors = models.MustParseStrategies(".does-not-exist", "class:nothing-here")

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	landmark := resultFor(t, results, models.CheckLandmark)
	assert.True(t, landmark.Passed())
	assert.Contains(t, landmark.Detail, "verified <main> instead")
}

func TestVerify_ContentFailureMessage(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/news-events")
	spec.ExpectedContent = []models.ContentMatcher{models.Literal("Zanzibar"), models.Literal("Serengeti")}

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	content := resultFor(t, results, models.CheckContent)
	assert.True(t, content.Failed())
	assert.Equal(t, "Expected to find at least one of [Zanzibar, Serengeti] on News & Events", content.Detail)
}

func TestVerify_BrokenImage(t *testing.T) {
	site := testsite.New(t, testsite.Options{BrokenImage: true})

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/"), newTestPage(t))
	images := resultFor(t, results, models.CheckImages)
	assert.True(t, images.Failed())
	assert.Contains(t, images.Detail, "missing.png")
	assert.Contains(t, images.Detail, "status 404")
	// logo, hero and missing; the data: image is not requested
	assert.Equal(t, 3, images.Count)
}

func TestVerify_HeadRefusedFallsBackToGet(t *testing.T) {
	site := testsite.New(t, testsite.Options{RefuseHead: true})

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/"), newTestPage(t))
	images := resultFor(t, results, models.CheckImages)
	assert.True(t, images.Passed(), images.Detail)
	assert.Equal(t, 2, site.HeadCalls())
}

func TestVerify_ImageSampleSize(t *testing.T) {
	site := testsite.New(t, testsite.Options{BrokenImage: true})
	expander := newTestExpander(site.URL)
	expander.opts.ImageSampleSize = 2

	results := expander.Verify(context.Background(), catalogSpec(t, "/"), newTestPage(t))
	images := resultFor(t, results, models.CheckImages)
	assert.True(t, images.Passed(), "the broken image is outside the sample")
	assert.Equal(t, 2, images.Count)
	assert.Equal(t, 2, site.HeadCalls())
}

func TestVerify_TitlePattern(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/")

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	assert.True(t, resultFor(t, results, models.CheckTitle).Passed())

	spec.TitlePattern = "Kilimanjaro"
	results = newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	title := resultFor(t, results, models.CheckTitle)
	assert.True(t, title.Failed())
	assert.True(t, strings.HasPrefix(title.Detail, "title "))
}

func TestChecks(t *testing.T) {
	spec := models.PageSpec{Name: "Plain", Route: "/plain"}
	assert.Equal(t, []models.CheckKind{
		models.CheckLoad, models.CheckLandmark, models.CheckContent, models.CheckImages,
	}, Checks(spec))
}

func TestEligibleImageSource(t *testing.T) {
	assert.True(t, eligibleImageSource("/images/a.png"))
	assert.True(t, eligibleImageSource("https://cdn.example.org/a.png"))
	assert.False(t, eligibleImageSource(""))
	assert.False(t, eligibleImageSource("   "))
	assert.False(t, eligibleImageSource("data:image/png;base64,AAAA"))
	assert.False(t, eligibleImageSource("BLOB:https://x/y"))
}

// stalledTitlePage never answers Title until its context ends
type stalledTitlePage struct {
	interfaces.BrowserPage
}

func (stalledTitlePage) Title(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestVerify_StalledPageCallTimesOut(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	page := stalledTitlePage{BrowserPage: newTestPage(t)}
	spec := catalogSpec(t, "/")
	expander := newTestExpander(site.URL)

	done := make(chan []models.CheckResult, 1)
	go func() {
		done <- expander.Verify(context.Background(), spec, page)
	}()

	select {
	case results := <-done:
		title := resultFor(t, results, models.CheckTitle)
		assert.True(t, title.Failed())
		assert.Equal(t, models.FailureTimeout, title.FailureKind)
		assert.True(t, resultFor(t, results, models.CheckContent).Passed())
	case <-time.After(3 * time.Second):
		t.Fatal("Verify did not return within 3s with a 200ms action timeout")
	}
}

func TestVerify_ImageSampleNeverUnbounded(t *testing.T) {
	site := testsite.New(t, testsite.Options{ExtraImages: 10})
	logger := arbor.NewLogger()
	expander := NewExpander(Options{
		BaseURL:         site.URL,
		ActionTimeout:   200 * time.Millisecond,
		ErrorMarkers:    DefaultErrorMarkers,
		ImageSampleSize: 0,
	}, locator.NewResolver(logger), NewImageChecker(logger, WithImageRateLimit(0)), logger)

	results := expander.Verify(context.Background(), catalogSpec(t, "/"), newTestPage(t))
	images := resultFor(t, results, models.CheckImages)
	assert.True(t, images.Passed(), images.Detail)
	assert.Equal(t, DefaultImageSampleSize, images.Count)
	assert.Equal(t, DefaultImageSampleSize, site.HeadCalls())
}

func TestVerify_FormFieldsAcceptInput(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	page := newTestPage(t)

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/contact-us"), page)
	require.True(t, resultFor(t, results, models.CheckForm).Passed())

	name, err := page.InputValue(context.Background(), `input[type="text"]`, 0)
	require.NoError(t, err)
	assert.Equal(t, "Test User", name)

	message, err := page.InputValue(context.Background(), "textarea", 0)
	require.NoError(t, err)
	assert.Equal(t, "This is a test message", message)
}

func TestVerify_DisabledSubmitFailsForm(t *testing.T) {
	site := testsite.New(t, testsite.Options{DisableSubmit: true})

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/contact-us"), newTestPage(t))
	form := resultFor(t, results, models.CheckForm)
	assert.True(t, form.Failed())
	assert.Equal(t, models.FailureAssertion, form.FailureKind)
	assert.Contains(t, form.Detail, "disabled")
}

// echoLessPage drops whatever is typed into a field
type echoLessPage struct {
	interfaces.BrowserPage
}

func (echoLessPage) Fill(ctx context.Context, selector string, index int, value string) error {
	return nil
}

func TestVerify_FormReadbackMismatchFails(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	page := echoLessPage{BrowserPage: newTestPage(t)}

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/contact-us"), page)
	form := resultFor(t, results, models.CheckForm)
	assert.True(t, form.Failed())
	assert.Equal(t, models.FailureAssertion, form.FailureKind)
	assert.Contains(t, form.Detail, `after typing "Test User"`)
}

func TestVerify_LayoutRequiresFooter(t *testing.T) {
	site := testsite.New(t, testsite.Options{OmitFooter: true})

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/knowledge-hub"), newTestPage(t))
	layout := resultFor(t, results, models.CheckLayout)
	assert.True(t, layout.Failed())
	assert.Equal(t, "not visible: footer", layout.Detail)
}

func TestVerify_HeadingNamesPage(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	spec := catalogSpec(t, "/news-events")

	results := newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	heading := resultFor(t, results, models.CheckHeading)
	assert.True(t, heading.Passed(), heading.Detail)
	assert.Equal(t, `h1 "News & Events"`, heading.Detail)

	spec.HeadingPattern = "Stakeholder Directory"
	results = newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	heading = resultFor(t, results, models.CheckHeading)
	assert.True(t, heading.Failed())
	assert.Equal(t, models.FailureAssertion, heading.FailureKind)
}

func TestVerify_ItemsVisibleOrSkipped(t *testing.T) {
	site := testsite.New(t, testsite.Options{})

	results := newTestExpander(site.URL).Verify(context.Background(), catalogSpec(t, "/investment-profiles"), newTestPage(t))
	items := resultFor(t, results, models.CheckItems)
	assert.True(t, items.Passed(), items.Detail)
	assert.Equal(t, 1, items.Count)
	assert.Contains(t, items.Detail, "investment-card")

	spec := catalogSpec(t, "/social-accountability")
	spec.ItemSelectors = models.MustParseStrategies(".resource-item")
	results = newTestExpander(site.URL).Verify(context.Background(), spec, newTestPage(t))
	assert.Equal(t, models.OutcomeSkipped, resultFor(t, results, models.CheckItems).Outcome)
}

// hiddenItemsPage reports every element as hidden
type hiddenItemsPage struct {
	interfaces.BrowserPage
}

func (p hiddenItemsPage) Query(ctx context.Context, selector string) ([]models.Element, error) {
	elements, err := p.BrowserPage.Query(ctx, selector)
	for i := range elements {
		elements[i].Visible = false
	}
	return elements, err
}

func TestCheckItems_PresentButHiddenFails(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	expander := newTestExpander(site.URL)
	page := newTestPage(t)
	spec := catalogSpec(t, "/knowledge-hub")

	_, err := page.Navigate(context.Background(), site.URL+spec.Route)
	require.NoError(t, err)

	result := expander.checkItems(context.Background(), spec, hiddenItemsPage{BrowserPage: page})
	assert.True(t, result.Failed())
	assert.Equal(t, "1 items present, none visible", result.Detail)
	assert.Equal(t, 1, result.Count)
}

func TestChecks_OptionalKinds(t *testing.T) {
	spec := models.PageSpec{
		Name:           "Full",
		Route:          "/full",
		Capabilities:   models.Capabilities{HasNavigation: true, HasForm: true, HasLayout: true},
		HeadingPattern: "Full",
		ItemSelectors:  models.MustParseStrategies("article"),
		TitlePattern:   "Full",
	}
	assert.Equal(t, []models.CheckKind{
		models.CheckLoad, models.CheckLandmark, models.CheckContent, models.CheckLayout,
		models.CheckNavigation, models.CheckHeading, models.CheckItems, models.CheckImages,
		models.CheckForm, models.CheckTitle,
	}, Checks(spec))
}
