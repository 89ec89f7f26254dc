package pages

import "github.com/ternarybob/siteverify/internal/models"

// HomeTitlePattern is the title expected on the home page
const HomeTitlePattern = `TDT|Tanzania|Investment|Home`

// DefaultCatalog returns the built-in catalog of the TDT site
func DefaultCatalog() []models.PageSpec {
	return []models.PageSpec{
		{
			Name:              "Home",
			Route:             "/",
			LandmarkSelectors: models.MustParseStrategies("main"),
			ExpectedContent:   literals("TDT", "Investment", "Tanzania"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:      HomeTitlePattern,
		},
		{
			Name:  "Investment Profiles",
			Route: "/investment-profiles",
			LandmarkSelectors: models.MustParseStrategies(
				".investment-card", ".card", `[class*="Card"]`, ".grid > div", "main div > div",
			),
			ExpectedContent: literals("Investment"),
			Capabilities:    models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:    "Investment Profiles",
			HeadingPattern:  "Investment Profiles",
			ItemSelectors: models.MustParseStrategies(
				".investment-card", ".card", `[class*="Card"]`, "article", ".grid > div",
			),
		},
		{
			Name:              "Social Accountability",
			Route:             "/social-accountability",
			LandmarkSelectors: models.MustParseStrategies("main section", ".prose", "main div > div"),
			ExpectedContent:   literals("Accountability", "Social"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:      "Social Accountability",
			HeadingPattern:    "Social Accountability",
		},
		{
			Name:              "Stakeholder Directory",
			Route:             "/stakeholder-directory",
			LandmarkSelectors: models.MustParseStrategies("table", ".directory-list", ".grid", "main"),
			ExpectedContent:   literals("Stakeholder"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:      "Stakeholder Directory",
			HeadingPattern:    "Stakeholder Directory",
		},
		{
			Name:              "Knowledge Hub",
			Route:             "/knowledge-hub",
			LandmarkSelectors: models.MustParseStrategies(".resource-item", "article", `[class*="item"]`, "main"),
			ExpectedContent:   literals("Knowledge", "Resource"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:      "Knowledge Hub",
			HeadingPattern:    "Knowledge Hub",
			ItemSelectors:     models.MustParseStrategies(".resource-item", "article", `[class*="item"]`),
		},
		{
			Name:              "News & Events",
			Route:             "/news-events",
			LandmarkSelectors: models.MustParseStrategies("article", ".news-item", ".grid > div", "h1", "h2"),
			ExpectedContent:   literals("News", "Events"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasLayout: true},
			TitlePattern:      "News & Events",
			HeadingPattern:    "News & Events",
			ItemSelectors:     models.MustParseStrategies("article", ".news-item", `[class*="event"]`),
		},
		{
			Name:              "Contact Us",
			Route:             "/contact-us",
			LandmarkSelectors: models.MustParseStrategies("form", "main section"),
			ExpectedContent:   literals("Contact"),
			Capabilities:      models.Capabilities{HasNavigation: true, HasForm: true, HasLayout: true},
			TitlePattern:      "Contact Us",
			HeadingPattern:    "Contact Us",
		},
	}
}

func literals(values ...string) []models.ContentMatcher {
	out := make([]models.ContentMatcher, 0, len(values))
	for _, v := range values {
		out = append(out, models.Literal(v))
	}
	return out
}
