package models

import "strings"

// Element is a snapshot of one DOM element returned by a page query.
// Index is the element's position in the result of the selector that found it,
// which lets drivers address it again for clicks and reads.
type Element struct {
	Selector   string            `json:"selector"`
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Visible    bool              `json:"visible"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns an attribute value and whether it is present
func (e Element) Attr(name string) (string, bool) {
	v, ok := e.Attributes[strings.ToLower(name)]
	return v, ok
}

// AccessibleName approximates the accessible name: aria-label, then text, then title/alt/value/placeholder
func (e Element) AccessibleName() string {
	if v, ok := e.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	if t := strings.TrimSpace(e.Text); t != "" {
		return t
	}
	for _, attr := range []string{"title", "alt", "value", "placeholder"} {
		if v, ok := e.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// NavigationResult describes the outcome of a page navigation
type NavigationResult struct {
	URL        string `json:"url"`         // Final URL after redirects
	StatusCode int    `json:"status_code"` // 0 if the driver could not observe a response
}
