package browser

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/siteverify/internal/models"
)

// querySnapshotScript is evaluated in the page with a CSS selector argument and
// returns a JSON array of element snapshots in document order. Visibility follows
// the usual browser rule: rendered (display, visibility) and a non-empty box.
const querySnapshotScript = `(sel) => {
	let els = [];
	try { els = Array.from(document.querySelectorAll(sel)); } catch (e) { return "[]"; }
	return JSON.stringify(els.map((el, i) => {
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const attrs = {};
		for (const a of Array.from(el.attributes)) { attrs[a.name.toLowerCase()] = a.value; }
		if (el.value !== undefined && typeof el.value === "string") { attrs["value"] = el.value; }
		return {
			index: i,
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || el.textContent || "").trim(),
			visible: style.display !== "none" && style.visibility !== "hidden" && rect.width > 0 && rect.height > 0,
			attributes: attrs
		};
	}));
}`

const bodyTextScript = `() => document.body ? document.body.innerText : ""`

const scrollToBottomScript = `() => { window.scrollTo(0, document.body ? document.body.scrollHeight : 0); return true; }`

type elementSnapshot struct {
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Visible    bool              `json:"visible"`
	Attributes map[string]string `json:"attributes"`
}

// decodeSnapshots converts the query script output into elements tagged with selector
func decodeSnapshots(selector, raw string) ([]models.Element, error) {
	if raw == "" {
		return nil, nil
	}

	var snaps []elementSnapshot
	if err := json.Unmarshal([]byte(raw), &snaps); err != nil {
		return nil, fmt.Errorf("failed to decode element snapshots for %q: %w", selector, err)
	}

	elements := make([]models.Element, 0, len(snaps))
	for _, s := range snaps {
		if s.Attributes == nil {
			s.Attributes = map[string]string{}
		}
		elements = append(elements, models.Element{
			Selector:   selector,
			Index:      s.Index,
			Tag:        s.Tag,
			Text:       s.Text,
			Visible:    s.Visible,
			Attributes: s.Attributes,
		})
	}
	return elements, nil
}

// invoke renders a call of a function script with one JSON-encoded argument,
// for drivers that evaluate plain expressions
func invoke(script string, arg any) string {
	encoded, _ := json.Marshal(arg)
	return fmt.Sprintf("(%s)(%s)", script, encoded)
}

// jsPath addresses the index-th match of selector for chromedp.ByJSPath
func jsPath(selector string, index int) string {
	encoded, _ := json.Marshal(selector)
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", encoded, index)
}
