// Package testsite serves a small replica of the TDT site and its CMS API for tests.
package testsite

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Token is the bearer token the fake CMS accepts
const Token = "test-token"

// OriginalHeading is the home page heading before any CMS write
const OriginalHeading = "Original Heading"

// Options alters the fixture's behaviour
type Options struct {
	BrokenImage       bool          // Home page references an image that 404s
	RefuseHead        bool          // Image server answers HEAD with 405
	PropagationDelay  time.Duration // Delay before a CMS write shows on the frontend
	RejectWritesAfter int           // Reject CMS writes after this many succeeded, 0 = never
	FlatResponse      bool          // Return data.title instead of data.attributes.title
	SlowPage          time.Duration // Delay every page response
	ThrowScriptError  bool          // Home page script throws
	ExtraImages       int           // Additional healthy images on the home page
	DisableSubmit     bool          // Contact form submit button is disabled
	OmitFooter        bool          // Pages render without a footer
}

// Site is a running fixture
type Site struct {
	*httptest.Server
	opts Options

	mu        sync.Mutex
	title     string
	previous  string
	updatedAt time.Time
	writes    []string
	headCalls int
}

// NavItem is one entry of the header navigation
type NavItem struct {
	Label string
	Route string
}

// Navigation is the header navigation in site order
var Navigation = []NavItem{
	{"Home", "/"},
	{"Investment Profiles", "/investment-profiles"},
	{"Social Accountability", "/social-accountability"},
	{"Stakeholder Directory", "/stakeholder-directory"},
	{"Knowledge Hub", "/knowledge-hub"},
	{"News & Events", "/news-events"},
	{"Contact Us", "/contact-us"},
}

// New starts a fixture that is closed when the test ends
func New(t testing.TB, opts Options) *Site {
	t.Helper()

	s := &Site{opts: opts, title: OriginalHeading, previous: OriginalHeading}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/images/", s.handleImage)
	mux.HandleFunc("/api/articles/", s.handleArticle)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// Heading returns the value the CMS currently stores
func (s *Site) Heading() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Writes returns every value written through the CMS API, in order
func (s *Site) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// HeadCalls returns the number of HEAD requests for images
func (s *Site) HeadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headCalls
}

// displayedHeading is what the frontend renders, honouring the propagation delay
func (s *Site) displayedHeading() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.updatedAt) < s.opts.PropagationDelay {
		return s.previous
	}
	return s.title
}

func (s *Site) handlePage(w http.ResponseWriter, r *http.Request) {
	if s.opts.SlowPage > 0 {
		select {
		case <-time.After(s.opts.SlowPage):
		case <-r.Context().Done():
			return
		}
	}

	body, ok := pageBodies[r.URL.Path]
	if r.URL.Path == "/" {
		body = s.homeBody()
		ok = true
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		s.render(w, r.URL.Path, "Page Not Found", `<main><h1>404</h1><p>Page Not Found</p></main>`)
		return
	}

	title := "TDT Tanzania"
	for _, item := range Navigation {
		if item.Route == r.URL.Path {
			title = item.Label + " | TDT Tanzania"
		}
	}
	if r.URL.Path == "/contact-us" && s.opts.DisableSubmit {
		body = strings.Replace(body, `<button type="submit">`, `<button type="submit" disabled>`, 1)
	}
	s.render(w, r.URL.Path, title, body)
}

func (s *Site) homeBody() string {
	img := `<img src="/images/hero.png" alt="Hero">`
	if s.opts.BrokenImage {
		img += `<img src="/images/missing.png" alt="Missing">`
	}
	for i := 0; i < s.opts.ExtraImages; i++ {
		img += fmt.Sprintf(`<img src="/images/extra-%d.png" alt="Extra %d">`, i, i)
	}
	script := ""
	if s.opts.ThrowScriptError {
		script = `<script>throw new Error("boom");</script>`
	}
	return fmt.Sprintf(`<main id="main">
  <h1>%s</h1>
  <p>Welcome to TDT, the Tanzania Investment portal.</p>
  %s
  <img src="data:image/png;base64,AAAA" alt="inline">
  %s
</main>`, template.HTMLEscapeString(s.displayedHeading()), img, script)
}

var pageBodies = map[string]string{
	"/investment-profiles": `<main id="main">
  <h1>Investment Profiles</h1>
  <div class="grid"><div class="investment-card">Investment profile: Agriculture</div></div>
</main>`,
	"/social-accountability": `<main id="main">
  <section class="prose"><h1>Social Accountability</h1><p>Monitoring investment impact.</p></section>
</main>`,
	"/stakeholder-directory": `<main id="main">
  <h1>Stakeholder Directory</h1>
  <table><tr><td>Ministry of Investment</td></tr></table>
</main>`,
	"/knowledge-hub": `<main id="main">
  <h1>Knowledge Hub</h1>
  <input type="search" placeholder="Search resources" aria-label="Search">
  <article class="resource-item">Resource: annual report</article>
</main>`,
	"/news-events": `<main id="main">
  <h1>News &amp; Events</h1>
  <article class="news-item">Investment forum announced</article>
</main>`,
	"/contact-us": `<main id="main">
  <h1>Contact Us</h1>
  <form action="/contact-us" method="post">
    <input type="text" name="name" placeholder="Name">
    <input type="email" name="email" placeholder="Email">
    <textarea name="message"></textarea>
    <button type="submit">Send</button>
  </form>
</main>`,
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<a href="#main" class="skip-link">Skip to main content</a>
<header>
  <a href="/" class="logo"><img src="/images/logo.png" alt="TDT logo"></a>
  <button class="hamburger-menu" aria-expanded="false" aria-label="Menu">Menu</button>
  <nav aria-label="Main">
    {{range .Nav}}<a href="{{.Route}}"{{if eq .Route $.Path}} class="active" aria-current="page"{{end}}>{{.Label}}</a>
    {{end}}
  </nav>
</header>
{{if ne .Path "/"}}<nav aria-label="breadcrumb" class="breadcrumb"><a href="/">Home</a> / {{.Title}}</nav>{{end}}
{{.Body}}
{{if not .OmitFooter}}<footer>
  <p>Tanzania Development Trust</p>
  <a href="https://example.org/partner" target="_blank" rel="noopener">Partner</a>
</footer>{{end}}
</body>
</html>`))

func (s *Site) render(w http.ResponseWriter, path, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = layout.Execute(w, map[string]any{
		"Title": title,
		"Path":  path,
		"Nav":   Navigation,
		"Body":  template.HTML(body),

		"OmitFooter": s.opts.OmitFooter,
	})
}

func (s *Site) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		s.mu.Lock()
		s.headCalls++
		s.mu.Unlock()
		if s.opts.RefuseHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	}
	if strings.HasSuffix(r.URL.Path, "/missing.png") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}
}

func (s *Site) handleArticle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "Missing or invalid credentials"}})
		return
	}
	if strings.TrimPrefix(r.URL.Path, "/api/articles/") != "1" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not Found"}})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.articleResponse())

	case http.MethodPut:
		var req struct {
			Data map[string]string `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": err.Error()}})
			return
		}
		value, ok := req.Data["title"]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "title is required"}})
			return
		}

		s.mu.Lock()
		if s.opts.RejectWritesAfter > 0 && len(s.writes) >= s.opts.RejectWritesAfter {
			s.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"status": 500, "message": "write rejected"}})
			return
		}
		s.previous = s.title
		s.title = value
		s.updatedAt = time.Now()
		s.writes = append(s.writes, value)
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, s.articleResponse())

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Site) articleResponse() map[string]any {
	title := s.Heading()
	if s.opts.FlatResponse {
		return map[string]any{"data": map[string]any{"id": 1, "documentId": "abc", "title": title}}
	}
	return map[string]any{"data": map[string]any{"id": 1, "attributes": map[string]any{"title": title}}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
