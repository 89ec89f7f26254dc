package models

import (
	"fmt"
	"regexp"
	"strings"
)

// StrategyKind identifies a locator strategy variant
type StrategyKind string

const (
	StrategyCSS   StrategyKind = "css"   // Plain CSS selector
	StrategyRole  StrategyKind = "role"  // ARIA role, implicit or explicit, with optional accessible name
	StrategyText  StrategyKind = "text"  // Base CSS selector filtered by visible text
	StrategyClass StrategyKind = "class" // Case-insensitive class name fragment
)

// Strategy is one ranked alternative for locating a logical UI element.
// The set of kinds is closed; construct values with ByCSS, ByRole, ByText or ByClass.
type Strategy struct {
	Kind     StrategyKind
	Selector string         // css: selector, text: base selector
	Role     string         // role: ARIA role name
	Name     *regexp.Regexp // role: accessible name filter, text: text filter
	Fragment string         // class: lower-cased class fragment
}

// ByCSS locates elements with a CSS selector
func ByCSS(selector string) Strategy {
	return Strategy{Kind: StrategyCSS, Selector: selector}
}

// ByRole locates elements by ARIA role. name is an optional case-insensitive pattern.
func ByRole(role, name string) Strategy {
	s := Strategy{Kind: StrategyRole, Role: strings.ToLower(role)}
	if name != "" {
		s.Name = regexp.MustCompile("(?i)" + name)
	}
	return s
}

// ByText locates elements matching base whose text matches the case-insensitive pattern
func ByText(base, pattern string) Strategy {
	return Strategy{Kind: StrategyText, Selector: base, Name: regexp.MustCompile("(?i)" + pattern)}
}

// ByClass locates elements whose class attribute contains fragment, ignoring case
func ByClass(fragment string) Strategy {
	return Strategy{Kind: StrategyClass, Fragment: strings.ToLower(fragment)}
}

// ParseStrategy parses the catalog text form of a strategy:
//
//	css:main              role:navigation        role:button=Menu
//	text:button=Send|Submit                      class:hamburger
//
// A string without a known prefix is treated as CSS.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Strategy{}, fmt.Errorf("empty locator strategy")
	}

	kind, rest, found := strings.Cut(s, ":")
	if !found {
		return ByCSS(s), nil
	}

	switch StrategyKind(kind) {
	case StrategyCSS:
		return ByCSS(rest), nil
	case StrategyRole:
		role, name, _ := strings.Cut(rest, "=")
		if role == "" {
			return Strategy{}, fmt.Errorf("role strategy %q has no role", s)
		}
		if _, err := regexp.Compile(name); err != nil {
			return Strategy{}, fmt.Errorf("role strategy %q has invalid name pattern: %w", s, err)
		}
		return ByRole(role, name), nil
	case StrategyText:
		base, pattern, ok := strings.Cut(rest, "=")
		if !ok || base == "" || pattern == "" {
			return Strategy{}, fmt.Errorf("text strategy %q must be text:<selector>=<pattern>", s)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return Strategy{}, fmt.Errorf("text strategy %q has invalid pattern: %w", s, err)
		}
		return ByText(base, pattern), nil
	case StrategyClass:
		if rest == "" {
			return Strategy{}, fmt.Errorf("class strategy %q has no fragment", s)
		}
		return ByClass(rest), nil
	default:
		// Pseudo-classes such as a:hover contain a colon but are still CSS
		return ByCSS(s), nil
	}
}

// MustParseStrategies parses a list of strategies and panics on error.
// Intended for built-in catalogs only.
func MustParseStrategies(specs ...string) []Strategy {
	out := make([]Strategy, 0, len(specs))
	for _, s := range specs {
		st, err := ParseStrategy(s)
		if err != nil {
			panic(err)
		}
		out = append(out, st)
	}
	return out
}

func (s Strategy) String() string {
	switch s.Kind {
	case StrategyRole:
		if s.Name != nil {
			return fmt.Sprintf("role:%s=%s", s.Role, strings.TrimPrefix(s.Name.String(), "(?i)"))
		}
		return "role:" + s.Role
	case StrategyText:
		return fmt.Sprintf("text:%s=%s", s.Selector, strings.TrimPrefix(s.Name.String(), "(?i)"))
	case StrategyClass:
		return "class:" + s.Fragment
	default:
		return "css:" + s.Selector
	}
}
