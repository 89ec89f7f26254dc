// Package locator resolves logical UI concepts (main content, navigation, a
// submit button) against a live page by trying a ranked list of strategies.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// PollInterval is the delay between resolution attempts
const PollInterval = 250 * time.Millisecond

// roleSelectors maps ARIA roles to the elements that carry them implicitly or explicitly
var roleSelectors = map[string]string{
	"navigation":    `nav, [role="navigation"]`,
	"main":          `main, [role="main"]`,
	"banner":        `header, [role="banner"]`,
	"contentinfo":   `footer, [role="contentinfo"]`,
	"button":        `button, input[type="button"], input[type="submit"], input[type="reset"], [role="button"]`,
	"link":          `a[href], [role="link"]`,
	"heading":       `h1, h2, h3, h4, h5, h6, [role="heading"]`,
	"search":        `[role="search"], form[role="search"]`,
	"searchbox":     `input[type="search"], [role="searchbox"]`,
	"textbox":       `input:not([type]), input[type="text"], input[type="email"], textarea, [role="textbox"]`,
	"form":          `form, [role="form"]`,
	"img":           `img, [role="img"]`,
	"list":          `ul, ol, [role="list"]`,
	"listitem":      `li, [role="listitem"]`,
	"complementary": `aside, [role="complementary"]`,
}

// RoleSelector returns the CSS selector for an ARIA role
func RoleSelector(role string) string {
	if sel, ok := roleSelectors[strings.ToLower(role)]; ok {
		return sel
	}
	return fmt.Sprintf(`[role=%q]`, strings.ToLower(role))
}

// Located is the outcome of a resolution. When Found is false the concept is
// Absent; whether that fails a check is the caller's decision.
type Located struct {
	Found    bool
	Strategy models.Strategy
	Element  models.Element
	// Selector and Index address the element for follow-up page actions
	Selector string
	Index    int
}

// Absent is the zero resolution
var Absent = Located{}

// Resolver evaluates strategy lists against a page
type Resolver struct {
	logger       arbor.ILogger
	pollInterval time.Duration
}

// NewResolver creates a resolver
func NewResolver(logger arbor.ILogger) *Resolver {
	return &Resolver{logger: logger, pollInterval: PollInterval}
}

// Resolve tries strategies in declared order and returns the first visible match.
// It polls until one strategy matches or timeout elapses; on expiry it returns Absent
// with a nil error. Page errors (transport, closed target) are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, page interfaces.BrowserPage, strategies []models.Strategy, timeout time.Duration) (Located, error) {
	if len(strategies) == 0 {
		return Absent, fmt.Errorf("no locator strategies given")
	}

	deadline := time.Now().Add(timeout)
	for {
		located, err := r.ResolveOnce(ctx, page, strategies)
		if err != nil {
			return Absent, err
		}
		if located.Found {
			return located, nil
		}

		if !time.Now().Before(deadline) {
			r.logger.Debug().
				Str("strategies", describe(strategies)).
				Dur("timeout", timeout).
				Msg("Locator resolved Absent")
			return Absent, nil
		}

		wait := r.pollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Absent, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ResolveOnce makes a single pass over the strategies without waiting
func (r *Resolver) ResolveOnce(ctx context.Context, page interfaces.BrowserPage, strategies []models.Strategy) (Located, error) {
	for _, strategy := range strategies {
		matches, err := r.Matches(ctx, page, strategy)
		if err != nil {
			return Absent, err
		}
		for _, el := range matches {
			if el.Visible {
				return Located{
					Found:    true,
					Strategy: strategy,
					Element:  el,
					Selector: el.Selector,
					Index:    el.Index,
				}, nil
			}
		}
	}
	return Absent, nil
}

// Matches returns every element matching one strategy, visible or not, in document order
func (r *Resolver) Matches(ctx context.Context, page interfaces.BrowserPage, strategy models.Strategy) ([]models.Element, error) {
	switch strategy.Kind {
	case models.StrategyCSS:
		return page.Query(ctx, strategy.Selector)

	case models.StrategyRole:
		elements, err := page.Query(ctx, RoleSelector(strategy.Role))
		if err != nil {
			return nil, err
		}
		if strategy.Name == nil {
			return elements, nil
		}
		return filter(elements, func(el models.Element) bool {
			return strategy.Name.MatchString(el.AccessibleName())
		}), nil

	case models.StrategyText:
		elements, err := page.Query(ctx, strategy.Selector)
		if err != nil {
			return nil, err
		}
		return filter(elements, func(el models.Element) bool {
			return strategy.Name.MatchString(el.Text) || strategy.Name.MatchString(el.AccessibleName())
		}), nil

	case models.StrategyClass:
		elements, err := page.Query(ctx, "[class]")
		if err != nil {
			return nil, err
		}
		return filter(elements, func(el models.Element) bool {
			class, _ := el.Attr("class")
			return strings.Contains(strings.ToLower(class), strategy.Fragment)
		}), nil

	default:
		return nil, fmt.Errorf("unknown locator strategy kind: %s", strategy.Kind)
	}
}

// Count returns the number of elements matching the first strategy that matches anything
func (r *Resolver) Count(ctx context.Context, page interfaces.BrowserPage, strategies []models.Strategy) (int, error) {
	for _, strategy := range strategies {
		matches, err := r.Matches(ctx, page, strategy)
		if err != nil {
			return 0, err
		}
		if len(matches) > 0 {
			return len(matches), nil
		}
	}
	return 0, nil
}

func filter(elements []models.Element, keep func(models.Element) bool) []models.Element {
	var out []models.Element
	for _, el := range elements {
		if keep(el) {
			out = append(out, el)
		}
	}
	return out
}

func describe(strategies []models.Strategy) string {
	parts := make([]string, 0, len(strategies))
	for _, s := range strategies {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " | ")
}
