package models

import (
	"fmt"
	"regexp"
	"strings"
)

// PageSpec describes one page of the site under test and what must render on it.
// Specs are built once when the registry is constructed and never mutated afterwards.
type PageSpec struct {
	Name              string           `toml:"name" yaml:"name" json:"name" validate:"required"`
	Route             string           `toml:"route" yaml:"route" json:"route" validate:"required,startswith=/"`
	LandmarkSelectors []Strategy       `toml:"-" yaml:"-" json:"landmark_selectors" validate:"required,min=1"`
	ExpectedContent   []ContentMatcher `toml:"-" yaml:"-" json:"expected_content" validate:"required,min=1"`
	Capabilities      Capabilities     `toml:"capabilities" yaml:"capabilities" json:"capabilities"`
	TitlePattern      string           `toml:"title_pattern" yaml:"title_pattern" json:"title_pattern,omitempty"`
	HeadingPattern    string           `toml:"heading_pattern" yaml:"heading_pattern" json:"heading_pattern,omitempty"` // Must match a visible h1 or h2
	ItemSelectors     []Strategy       `toml:"-" yaml:"-" json:"item_selectors,omitempty"`                              // Repeated content items, at least one visible
}

// Capabilities flags optional checks for a page
type Capabilities struct {
	HasNavigation bool `toml:"has_navigation" yaml:"has_navigation" json:"has_navigation"`
	HasForm       bool `toml:"has_form" yaml:"has_form" json:"has_form"`
	HasLayout     bool `toml:"has_layout" yaml:"has_layout" json:"has_layout"` // header, main and footer visible
}

// ExpectedContentList renders the matchers for diagnostics, e.g. "TDT, Investment"
func (p PageSpec) ExpectedContentList() string {
	parts := make([]string, 0, len(p.ExpectedContent))
	for _, m := range p.ExpectedContent {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, ", ")
}

// ContentMatcher is one member of a page's expected content set.
// A literal matches as a case-insensitive substring; a pattern is a regular
// expression matched case-insensitively.
type ContentMatcher struct {
	Literal string
	Pattern *regexp.Regexp
}

// patternPrefix marks a catalog entry as a regular expression
const patternPrefix = "re:"

// Literal creates a literal matcher
func Literal(s string) ContentMatcher {
	return ContentMatcher{Literal: s}
}

// ParseContentMatcher parses a catalog entry. Entries prefixed with "re:" are patterns.
func ParseContentMatcher(s string) (ContentMatcher, error) {
	if !strings.HasPrefix(s, patternPrefix) {
		if strings.TrimSpace(s) == "" {
			return ContentMatcher{}, fmt.Errorf("expected content entry is empty")
		}
		return Literal(s), nil
	}

	expr := strings.TrimPrefix(s, patternPrefix)
	if strings.TrimSpace(expr) == "" {
		return ContentMatcher{}, fmt.Errorf("content pattern %q is empty", s)
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return ContentMatcher{}, fmt.Errorf("invalid content pattern %q: %w", expr, err)
	}
	return ContentMatcher{Pattern: re}, nil
}

// Matches reports whether text satisfies the matcher
func (m ContentMatcher) Matches(text string) bool {
	if m.Pattern != nil {
		return m.Pattern.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(m.Literal))
}

func (m ContentMatcher) String() string {
	if m.Pattern != nil {
		return patternPrefix + strings.TrimPrefix(m.Pattern.String(), "(?i)")
	}
	return m.Literal
}

// MatchAny is the disjunctive content rule: any one matcher is sufficient
func MatchAny(matchers []ContentMatcher, text string) bool {
	for _, m := range matchers {
		if m.Matches(text) {
			return true
		}
	}
	return false
}
