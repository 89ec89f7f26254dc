package browser

import (
	"context"
	"time"

	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// boundedPage gives every page call a deadline. History moves and navigation
// get navTimeout, everything else actionTimeout. A caller deadline that is
// already shorter wins.
type boundedPage struct {
	interfaces.BrowserPage
	navTimeout    time.Duration
	actionTimeout time.Duration
}

// WithTimeouts wraps page so that no call can block past its timeout.
// Non-positive timeouts leave the corresponding calls unbounded.
func WithTimeouts(page interfaces.BrowserPage, navTimeout, actionTimeout time.Duration) interfaces.BrowserPage {
	if b, ok := page.(*boundedPage); ok {
		page = b.BrowserPage
	}
	return &boundedPage{BrowserPage: page, navTimeout: navTimeout, actionTimeout: actionTimeout}
}

func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (p *boundedPage) Navigate(ctx context.Context, url string) (*models.NavigationResult, error) {
	ctx, cancel := bound(ctx, p.navTimeout)
	defer cancel()
	return p.BrowserPage.Navigate(ctx, url)
}

func (p *boundedPage) Back(ctx context.Context) error {
	ctx, cancel := bound(ctx, p.navTimeout)
	defer cancel()
	return p.BrowserPage.Back(ctx)
}

func (p *boundedPage) Forward(ctx context.Context) error {
	ctx, cancel := bound(ctx, p.navTimeout)
	defer cancel()
	return p.BrowserPage.Forward(ctx)
}

// Click can start a navigation, so it gets the navigation budget
func (p *boundedPage) Click(ctx context.Context, selector string, index int) error {
	ctx, cancel := bound(ctx, p.navTimeout)
	defer cancel()
	return p.BrowserPage.Click(ctx, selector, index)
}

func (p *boundedPage) URL(ctx context.Context) (string, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.URL(ctx)
}

func (p *boundedPage) SetViewport(ctx context.Context, width, height int) error {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.SetViewport(ctx, width, height)
}

func (p *boundedPage) Query(ctx context.Context, selector string) ([]models.Element, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.Query(ctx, selector)
}

func (p *boundedPage) BodyText(ctx context.Context) (string, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.BodyText(ctx)
}

func (p *boundedPage) Title(ctx context.Context) (string, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.Title(ctx)
}

func (p *boundedPage) Fill(ctx context.Context, selector string, index int, value string) error {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.Fill(ctx, selector, index, value)
}

func (p *boundedPage) InputValue(ctx context.Context, selector string, index int) (string, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.InputValue(ctx, selector, index)
}

func (p *boundedPage) ScrollToBottom(ctx context.Context) error {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.ScrollToBottom(ctx)
}

func (p *boundedPage) Screenshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := bound(ctx, p.actionTimeout)
	defer cancel()
	return p.BrowserPage.Screenshot(ctx)
}
