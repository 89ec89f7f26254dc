package interfaces

import (
	"context"

	"github.com/ternarybob/siteverify/internal/models"
)

// BrowserPage is the browser automation surface the verification engine consumes.
// One page instance is driven by a single goroutine; implementations need not be
// safe for concurrent use.
type BrowserPage interface {
	// Navigate loads url and waits for DOM content to be ready
	Navigate(ctx context.Context, url string) (*models.NavigationResult, error)

	// URL returns the current document URL
	URL(ctx context.Context) (string, error)

	// Back and Forward move through the session history
	Back(ctx context.Context) error
	Forward(ctx context.Context) error

	// SetViewport resizes the page viewport in CSS pixels
	SetViewport(ctx context.Context, width, height int) error

	// Query returns snapshots of all elements matching a CSS selector, in document order
	Query(ctx context.Context, selector string) ([]models.Element, error)

	// BodyText returns the text content of the document body
	BodyText(ctx context.Context) (string, error)

	// Title returns the document title
	Title(ctx context.Context) (string, error)

	// Click activates the index-th element matching selector
	Click(ctx context.Context, selector string, index int) error

	// Fill sets the value of the index-th input matching selector
	Fill(ctx context.Context, selector string, index int, value string) error

	// InputValue reads the current value of the index-th input matching selector
	InputValue(ctx context.Context, selector string, index int) (string, error)

	// ScrollToBottom scrolls the document to trigger lazy-loaded content
	ScrollToBottom(ctx context.Context) error

	// Screenshot captures the current viewport as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// PageErrors returns uncaught script errors seen since the page was opened
	PageErrors() []string

	// Close releases the page
	Close() error
}

// BrowserDriver creates pages for a browser runtime
type BrowserDriver interface {
	// Name returns the driver name used in configuration and reports
	Name() string

	// NewPage opens a fresh, isolated page
	NewPage(ctx context.Context) (BrowserPage, error)

	// Close shuts the browser runtime down
	Close() error
}
