package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

var (
	// MainLandmark is the generic primary content fallback
	MainLandmark = models.MustParseStrategies("main", "role:main")

	// NavigationLandmark locates the site navigation
	NavigationLandmark = models.MustParseStrategies("nav", "header nav", "role:navigation")

	// HeaderLandmark and FooterLandmark locate the page chrome
	HeaderLandmark = models.MustParseStrategies("header", "role:banner")
	FooterLandmark = models.MustParseStrategies("footer", "role:contentinfo")

	// FormLandmark locates a form
	FormLandmark = models.MustParseStrategies("form", "role:form")

	// TextInput and TextArea locate the form fields filled during the form check
	TextInput = models.MustParseStrategies(`input[type="text"]`, "input:not([type])", `input[type="email"]`)
	TextArea  = models.MustParseStrategies("textarea")

	// SubmitControl locates a form's submit control
	SubmitControl = models.MustParseStrategies(
		`button[type="submit"]`,
		`input[type="submit"]`,
		"text:button=Send|Submit",
	)
)

const (
	navigationLinkSelector = `nav a, header a, [role="navigation"] a`
	formFieldSelector      = "input, textarea, select"
	imageSelector          = "img[src]"
	headingSelector        = "h1, h2"

	// Values typed into the contact form; the form is never submitted
	formTextValue     = "Test User"
	formTextAreaValue = "This is a test message"

	// mainFallbackTimeout bounds the generic main lookup after the specific landmarks failed
	mainFallbackTimeout = 5 * time.Second
)

// expectationFor renders the human-readable expectation of a check
func expectationFor(spec models.PageSpec, kind models.CheckKind) string {
	switch kind {
	case models.CheckLoad:
		return fmt.Sprintf("%s loads with status < 400, URL containing %q and no error markers", spec.Name, spec.Route)
	case models.CheckLandmark:
		return fmt.Sprintf("a visible landmark on %s", spec.Name)
	case models.CheckContent:
		return fmt.Sprintf("at least one of [%s] on %s", spec.ExpectedContentList(), spec.Name)
	case models.CheckNavigation:
		return fmt.Sprintf("visible navigation with at least one link on %s", spec.Name)
	case models.CheckImages:
		return fmt.Sprintf("sampled images on %s respond with status < 400", spec.Name)
	case models.CheckForm:
		return fmt.Sprintf("a visible form whose fields accept input and an enabled Send/Submit control on %s", spec.Name)
	case models.CheckTitle:
		return fmt.Sprintf("document title matching /%s/i", spec.TitlePattern)
	case models.CheckLayout:
		return fmt.Sprintf("visible header, main content and footer on %s", spec.Name)
	case models.CheckHeading:
		return fmt.Sprintf("a visible h1 or h2 matching /%s/i", spec.HeadingPattern)
	case models.CheckItems:
		return fmt.Sprintf("content items on %s are visible when present", spec.Name)
	default:
		return string(kind)
	}
}

// checkLoad navigates to the page. The returned error is non-nil only when the
// navigation itself failed, leaving no document to inspect.
func (e *Expander) checkLoad(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) (models.CheckResult, error) {
	start := time.Now()
	target := common.JoinURL(e.opts.BaseURL, spec.Route)
	expectation := expectationFor(spec, models.CheckLoad)

	finish := func(r models.CheckResult) models.CheckResult {
		return r.WithRoute(spec.Route).WithDuration(time.Since(start))
	}

	navCtx, cancel := context.WithTimeout(ctx, e.opts.NavigationTimeout)
	defer cancel()

	nav, err := page.Navigate(navCtx, target)
	if err != nil {
		e.logger.Error().Err(err).Str("page", spec.Name).Str("url", target).Msg("Navigation failed")
		return finish(models.Fail(spec.Name, models.CheckLoad, classify(err), expectation, err.Error())), err
	}

	if nav.StatusCode >= 400 {
		return finish(models.Fail(spec.Name, models.CheckLoad, models.FailureAssertion, expectation,
			fmt.Sprintf("%s responded with status %d", target, nav.StatusCode))), nil
	}

	if !strings.Contains(nav.URL, spec.Route) {
		return finish(models.Fail(spec.Name, models.CheckLoad, models.FailureAssertion, expectation,
			fmt.Sprintf("landed on %s, which does not contain %s", nav.URL, spec.Route))), nil
	}

	body, err := page.BodyText(navCtx)
	if err != nil {
		return finish(models.Fail(spec.Name, models.CheckLoad, classify(err), expectation, err.Error())), nil
	}
	for _, marker := range e.opts.ErrorMarkers {
		if marker != "" && strings.Contains(body, marker) {
			return finish(models.Fail(spec.Name, models.CheckLoad, models.FailureAssertion, expectation,
				fmt.Sprintf("body text contains error marker %q", marker))), nil
		}
	}

	detail := fmt.Sprintf("loaded %s", nav.URL)
	if nav.StatusCode > 0 {
		detail = fmt.Sprintf("loaded %s (status %d)", nav.URL, nav.StatusCode)
	}
	return finish(models.Pass(spec.Name, models.CheckLoad, detail)), nil
}

func (e *Expander) checkLandmark(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckLandmark)

	located, err := e.resolver.Resolve(ctx, page, spec.LandmarkSelectors, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckLandmark, classify(err), expectation, err.Error())
	}
	if located.Found {
		return models.Pass(spec.Name, models.CheckLandmark, "found "+located.Strategy.String())
	}

	fallbackTimeout := mainFallbackTimeout
	if e.opts.ActionTimeout < fallbackTimeout {
		fallbackTimeout = e.opts.ActionTimeout
	}
	located, err = e.resolver.Resolve(ctx, page, MainLandmark, fallbackTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckLandmark, classify(err), expectation, err.Error())
	}
	if located.Found {
		e.logger.Warn().
			Str("page", spec.Name).
			Msg("Specific landmark selectors timed out, verified <main> instead")
		return models.Pass(spec.Name, models.CheckLandmark,
			fmt.Sprintf("specific selector for %s timed out, verified <main> instead", spec.Name))
	}

	return models.Fail(spec.Name, models.CheckLandmark, models.FailureAssertion, expectation,
		"no visible element for any landmark strategy or <main>")
}

func (e *Expander) checkContent(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckContent)

	body, err := page.BodyText(ctx)
	if err != nil {
		return models.Fail(spec.Name, models.CheckContent, classify(err), expectation, err.Error())
	}

	for _, m := range spec.ExpectedContent {
		if m.Matches(body) {
			return models.Pass(spec.Name, models.CheckContent, "found "+m.String())
		}
	}

	return models.Fail(spec.Name, models.CheckContent, models.FailureAssertion, expectation,
		fmt.Sprintf("Expected to find at least one of [%s] on %s", spec.ExpectedContentList(), spec.Name))
}

func (e *Expander) checkNavigation(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckNavigation)

	located, err := e.resolver.Resolve(ctx, page, NavigationLandmark, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckNavigation, classify(err), expectation, err.Error())
	}
	if !located.Found {
		return models.Fail(spec.Name, models.CheckNavigation, models.FailureAssertion, expectation,
			"no visible navigation landmark")
	}

	links, err := page.Query(ctx, navigationLinkSelector)
	if err != nil {
		return models.Fail(spec.Name, models.CheckNavigation, classify(err), expectation, err.Error())
	}
	if len(links) == 0 {
		return models.Fail(spec.Name, models.CheckNavigation, models.FailureAssertion, expectation,
			"navigation has no links").WithCount(0)
	}

	return models.Pass(spec.Name, models.CheckNavigation,
		fmt.Sprintf("%d navigation links", len(links))).WithCount(len(links))
}

func (e *Expander) checkImages(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckImages)

	images, err := page.Query(ctx, imageSelector)
	if err != nil {
		return models.Fail(spec.Name, models.CheckImages, classify(err), expectation, err.Error())
	}

	pageURL, err := page.URL(ctx)
	if err != nil {
		return models.Fail(spec.Name, models.CheckImages, classify(err), expectation, err.Error())
	}

	var sample []string
	for _, img := range images {
		if len(sample) >= e.opts.ImageSampleSize {
			break
		}
		src, _ := img.Attr("src")
		if !eligibleImageSource(src) {
			continue
		}
		resolved, err := common.ResolveReference(pageURL, src)
		if err != nil || !common.IsHTTPURL(resolved) {
			continue
		}
		sample = append(sample, resolved)
	}

	if len(sample) == 0 {
		return models.Skip(spec.Name, models.CheckImages, "no eligible images")
	}

	var broken []string
	for _, imageURL := range sample {
		imageCtx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
		status := e.images.Check(imageCtx, imageURL)
		cancel()
		if status.Broken() {
			e.logger.Warn().
				Str("page", spec.Name).
				Str("image", status.String()).
				Msg("Broken image")
			broken = append(broken, status.String())
		}
	}

	if len(broken) > 0 {
		return models.Fail(spec.Name, models.CheckImages, models.FailureAssertion, expectation,
			fmt.Sprintf("Broken image on %s: %s", spec.Name, strings.Join(broken, ", "))).WithCount(len(sample))
	}
	return models.Pass(spec.Name, models.CheckImages,
		fmt.Sprintf("%d images responded", len(sample))).WithCount(len(sample))
}

func (e *Expander) checkForm(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckForm)

	form, err := e.resolver.Resolve(ctx, page, FormLandmark, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckForm, classify(err), expectation, err.Error())
	}
	if !form.Found {
		return models.Fail(spec.Name, models.CheckForm, models.FailureAssertion, expectation, "no visible form")
	}

	fields, err := page.Query(ctx, formFieldSelector)
	if err != nil {
		return models.Fail(spec.Name, models.CheckForm, classify(err), expectation, err.Error())
	}
	if len(fields) == 0 {
		return models.Fail(spec.Name, models.CheckForm, models.FailureAssertion, expectation, "form has no input fields")
	}

	submit, err := e.resolver.Resolve(ctx, page, SubmitControl, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckForm, classify(err), expectation, err.Error())
	}
	if !submit.Found {
		return models.Fail(spec.Name, models.CheckForm, models.FailureAssertion, expectation,
			"no visible submit control").WithCount(len(fields))
	}

	if disabled(submit.Element) {
		return models.Fail(spec.Name, models.CheckForm, models.FailureAssertion, expectation,
			"submit control is disabled").WithCount(len(fields))
	}

	filled := 0
	for _, field := range []struct {
		strategies []models.Strategy
		value      string
	}{
		{TextInput, formTextValue},
		{TextArea, formTextAreaValue},
	} {
		ok, detail, err := e.fillAndReadBack(ctx, page, field.strategies, field.value)
		if err != nil {
			return models.Fail(spec.Name, models.CheckForm, classify(err), expectation, err.Error()).WithCount(len(fields))
		}
		if detail != "" {
			return models.Fail(spec.Name, models.CheckForm, models.FailureAssertion, expectation, detail).WithCount(len(fields))
		}
		if ok {
			filled++
		}
	}

	return models.Pass(spec.Name, models.CheckForm,
		fmt.Sprintf("form with %d fields, %d filled and read back, submit via %s", len(fields), filled, submit.Strategy.String())).WithCount(len(fields))
}

// fillAndReadBack types value into the first visible field and reads it back.
// A page without such a field reports ok=false and no detail. A non-empty
// detail describes a readback mismatch.
func (e *Expander) fillAndReadBack(ctx context.Context, page interfaces.BrowserPage, strategies []models.Strategy, value string) (ok bool, detail string, err error) {
	field, err := e.resolver.ResolveOnce(ctx, page, strategies)
	if err != nil || !field.Found {
		return false, "", err
	}
	if err := page.Fill(ctx, field.Selector, field.Index, value); err != nil {
		return false, "", err
	}
	got, err := page.InputValue(ctx, field.Selector, field.Index)
	if err != nil {
		return false, "", err
	}
	if got != value {
		return false, fmt.Sprintf("%s holds %q after typing %q", field.Strategy.String(), got, value), nil
	}
	return true, "", nil
}

func disabled(el models.Element) bool {
	if _, ok := el.Attr("disabled"); ok {
		return true
	}
	v, _ := el.Attr("aria-disabled")
	return strings.EqualFold(v, "true")
}

// checkLayout requires the page chrome around the content
func (e *Expander) checkLayout(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckLayout)

	regions := []struct {
		name       string
		strategies []models.Strategy
	}{
		{"header", HeaderLandmark},
		{"main", MainLandmark},
		{"footer", FooterLandmark},
	}

	var missing []string
	for _, region := range regions {
		located, err := e.resolver.Resolve(ctx, page, region.strategies, e.opts.ActionTimeout)
		if err != nil {
			return models.Fail(spec.Name, models.CheckLayout, classify(err), expectation, err.Error())
		}
		if !located.Found {
			missing = append(missing, region.name)
		}
	}

	if len(missing) > 0 {
		return models.Fail(spec.Name, models.CheckLayout, models.FailureAssertion, expectation,
			"not visible: "+strings.Join(missing, ", "))
	}
	return models.Pass(spec.Name, models.CheckLayout, "header, main and footer visible")
}

// checkHeading requires a visible h1 or h2 naming the page
func (e *Expander) checkHeading(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckHeading)

	pattern, err := regexp.Compile("(?i)" + spec.HeadingPattern)
	if err != nil {
		return models.Fail(spec.Name, models.CheckHeading, models.FailureAssertion, expectation, err.Error())
	}
	strategy := models.Strategy{Kind: models.StrategyText, Selector: headingSelector, Name: pattern}

	located, err := e.resolver.Resolve(ctx, page, []models.Strategy{strategy}, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckHeading, classify(err), expectation, err.Error())
	}
	if !located.Found {
		return models.Fail(spec.Name, models.CheckHeading, models.FailureAssertion, expectation,
			fmt.Sprintf("no visible h1 or h2 names %s", spec.Name))
	}
	return models.Pass(spec.Name, models.CheckHeading, fmt.Sprintf("%s %q", located.Element.Tag, located.Element.Text))
}

// checkItems requires the first content item to be visible when the page has any
func (e *Expander) checkItems(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckItems)

	count, err := e.resolver.Count(ctx, page, spec.ItemSelectors)
	if err != nil {
		return models.Fail(spec.Name, models.CheckItems, classify(err), expectation, err.Error())
	}
	if count == 0 {
		return models.Skip(spec.Name, models.CheckItems, "no content items present")
	}

	located, err := e.resolver.Resolve(ctx, page, spec.ItemSelectors, e.opts.ActionTimeout)
	if err != nil {
		return models.Fail(spec.Name, models.CheckItems, classify(err), expectation, err.Error()).WithCount(count)
	}
	if !located.Found {
		return models.Fail(spec.Name, models.CheckItems, models.FailureAssertion, expectation,
			fmt.Sprintf("%d items present, none visible", count)).WithCount(count)
	}
	return models.Pass(spec.Name, models.CheckItems,
		fmt.Sprintf("%d items, visible via %s", count, located.Strategy.String())).WithCount(count)
}

func (e *Expander) checkTitle(ctx context.Context, spec models.PageSpec, page interfaces.BrowserPage) models.CheckResult {
	expectation := expectationFor(spec, models.CheckTitle)

	pattern, err := regexp.Compile("(?i)" + spec.TitlePattern)
	if err != nil {
		return models.Fail(spec.Name, models.CheckTitle, models.FailureAssertion, expectation, err.Error())
	}

	title, err := page.Title(ctx)
	if err != nil {
		return models.Fail(spec.Name, models.CheckTitle, classify(err), expectation, err.Error())
	}
	if !pattern.MatchString(title) {
		return models.Fail(spec.Name, models.CheckTitle, models.FailureAssertion, expectation,
			fmt.Sprintf("title %q does not match", title))
	}
	return models.Pass(spec.Name, models.CheckTitle, fmt.Sprintf("title %q", title))
}
