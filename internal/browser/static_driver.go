package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// ErrUnsupported is returned for operations a driver cannot perform
var ErrUnsupported = errors.New("operation not supported by driver")

// maxStaticBodyBytes bounds how much of a response the static driver parses
const maxStaticBodyBytes = 10 * 1024 * 1024

// StaticDriver renders pages with plain HTTP and goquery. It does not run scripts,
// so visibility is approximated from markup (hidden attribute, inline display/visibility,
// non-rendered elements) and clicks only follow links or toggle aria-expanded.
type StaticDriver struct {
	transport http.RoundTripper
	userAgent string
	logger    arbor.ILogger
	mu        sync.Mutex
	pages     int
}

// NewStaticDriver creates a static driver. A nil transport uses http.DefaultTransport.
func NewStaticDriver(transport http.RoundTripper, userAgent string, logger arbor.ILogger) *StaticDriver {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &StaticDriver{
		transport: transport,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Name returns the driver name
func (d *StaticDriver) Name() string { return DriverStatic }

// NewPage opens an isolated page with its own cookie jar and history
func (d *StaticDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	d.mu.Lock()
	d.pages++
	id := d.pages
	d.mu.Unlock()

	d.logger.Debug().Int("page_id", id).Msg("Static page opened")

	return &staticPage{
		client:    &http.Client{Transport: d.transport, Jar: jar},
		userAgent: d.userAgent,
		logger:    d.logger,
		pos:       -1,
	}, nil
}

// Close is a no-op for the static driver
func (d *StaticDriver) Close() error { return nil }

type staticPage struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger

	doc     *goquery.Document
	current string
	history []string
	pos     int
	width   int
	height  int
}

func (p *staticPage) Navigate(ctx context.Context, target string) (*models.NavigationResult, error) {
	result, err := p.load(ctx, target)
	if err != nil {
		return nil, err
	}
	// Drop forward entries, as a browser does
	p.history = append(p.history[:p.pos+1], result.URL)
	p.pos = len(p.history) - 1
	return result, nil
}

func (p *staticPage) load(ctx context.Context, target string) (*models.NavigationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", target, err)
	}

	finalURL := resp.Request.URL.String()
	// Fragments are never sent; keep the requested one on the document URL
	if u, perr := url.Parse(target); perr == nil && u.Fragment != "" && !strings.Contains(finalURL, "#") {
		finalURL += "#" + u.Fragment
	}

	p.doc = doc
	p.current = finalURL

	p.logger.Debug().
		Str("url", finalURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Static page loaded")

	return &models.NavigationResult{URL: finalURL, StatusCode: resp.StatusCode}, nil
}

func (p *staticPage) URL(ctx context.Context) (string, error) {
	return p.current, nil
}

func (p *staticPage) Back(ctx context.Context) error {
	if p.pos <= 0 {
		return nil
	}
	if _, err := p.load(ctx, p.history[p.pos-1]); err != nil {
		return err
	}
	p.pos--
	return nil
}

func (p *staticPage) Forward(ctx context.Context) error {
	if p.pos >= len(p.history)-1 {
		return nil
	}
	if _, err := p.load(ctx, p.history[p.pos+1]); err != nil {
		return err
	}
	p.pos++
	return nil
}

func (p *staticPage) SetViewport(ctx context.Context, width, height int) error {
	p.width, p.height = width, height
	return nil
}

func (p *staticPage) Query(ctx context.Context, selector string) ([]models.Element, error) {
	if p.doc == nil {
		return nil, nil
	}

	var elements []models.Element
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		attrs := make(map[string]string)
		for _, a := range s.Nodes[0].Attr {
			attrs[strings.ToLower(a.Key)] = a.Val
		}
		elements = append(elements, models.Element{
			Selector:   selector,
			Index:      i,
			Tag:        goquery.NodeName(s),
			Text:       collapseSpace(s.Text()),
			Visible:    staticVisible(s),
			Attributes: attrs,
		})
	})
	return elements, nil
}

func (p *staticPage) BodyText(ctx context.Context) (string, error) {
	if p.doc == nil {
		return "", nil
	}
	body := p.doc.Find("body").Clone()
	body.Find("script, style, noscript, template, [hidden]").Remove()
	body.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		return hiddenStyle(style)
	}).Remove()
	return collapseSpace(body.Text()), nil
}

func (p *staticPage) Title(ctx context.Context) (string, error) {
	if p.doc == nil {
		return "", nil
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *staticPage) Click(ctx context.Context, selector string, index int) error {
	s, err := p.nth(selector, index)
	if err != nil {
		return err
	}

	if _, ok := s.Attr("aria-expanded"); ok {
		expanded, _ := s.Attr("aria-expanded")
		if expanded == "true" {
			s.SetAttr("aria-expanded", "false")
		} else {
			s.SetAttr("aria-expanded", "true")
		}
		return nil
	}

	link := s.Closest("a[href]")
	if link.Length() == 0 {
		return nil
	}
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil
	}

	target, err := common.ResolveReference(p.current, href)
	if err != nil {
		return fmt.Errorf("failed to resolve link %q: %w", href, err)
	}
	if strings.HasPrefix(href, "#") {
		p.current = target
		return nil
	}
	_, err = p.Navigate(ctx, target)
	return err
}

func (p *staticPage) Fill(ctx context.Context, selector string, index int, value string) error {
	s, err := p.nth(selector, index)
	if err != nil {
		return err
	}
	if goquery.NodeName(s) == "textarea" {
		s.SetText(value)
		return nil
	}
	s.SetAttr("value", value)
	return nil
}

func (p *staticPage) InputValue(ctx context.Context, selector string, index int) (string, error) {
	s, err := p.nth(selector, index)
	if err != nil {
		return "", err
	}
	if goquery.NodeName(s) == "textarea" {
		return s.Text(), nil
	}
	v, _ := s.Attr("value")
	return v, nil
}

func (p *staticPage) ScrollToBottom(ctx context.Context) error { return nil }

func (p *staticPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("static driver screenshot: %w", ErrUnsupported)
}

func (p *staticPage) PageErrors() []string { return nil }

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

func (p *staticPage) nth(selector string, index int) (*goquery.Selection, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	s := p.doc.Find(selector).Eq(index)
	if s.Length() == 0 {
		return nil, fmt.Errorf("no element %d for selector %q", index, selector)
	}
	return s, nil
}

var nonRendered = map[string]bool{
	"head": true, "title": true, "meta": true, "link": true, "script": true,
	"style": true, "noscript": true, "template": true, "base": true,
}

// staticVisible approximates visibility without layout
func staticVisible(s *goquery.Selection) bool {
	if nonRendered[goquery.NodeName(s)] {
		return false
	}
	if goquery.NodeName(s) == "input" {
		if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
			return false
		}
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if nonRendered[goquery.NodeName(n)] {
			return false
		}
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		if style, ok := n.Attr("style"); ok && hiddenStyle(style) {
			return false
		}
	}
	return true
}

func hiddenStyle(style string) bool {
	compact := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
