package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/models"
)

// clickSettle gives a click-triggered navigation time to start before waiting for the body
const clickSettle = 300 * time.Millisecond

type chromePage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	logger    arbor.ILogger

	errMu  sync.Mutex
	errors []string
}

func newChromePage(tabCtx context.Context, tabCancel context.CancelFunc, logger arbor.ILogger) *chromePage {
	p := &chromePage{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		logger:    logger,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventExceptionThrown); ok && e.ExceptionDetails != nil {
			msg := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				msg = e.ExceptionDetails.Exception.Description
			}
			p.errMu.Lock()
			p.errors = append(p.errors, msg)
			p.errMu.Unlock()
		}
	})

	return p
}

// run executes actions on the tab, bounded by the caller's deadline and cancellation
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parentCancel := cancel
		cancel = func() {
			cancelDeadline()
			parentCancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) (*models.NavigationResult, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	var location string
	if err := chromedp.Run(runCtx, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Location(&location)); err != nil {
		return nil, fmt.Errorf("page %s did not become ready: %w", url, err)
	}

	result := &models.NavigationResult{URL: location}
	if resp != nil {
		result.StatusCode = int(resp.Status)
	}
	return result, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

func (p *chromePage) Back(ctx context.Context) error {
	if err := p.run(ctx, chromedp.NavigateBack(), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

func (p *chromePage) Forward(ctx context.Context) error {
	if err := p.run(ctx, chromedp.NavigateForward(), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate forward: %w", err)
	}
	return nil
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	if err := p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		return fmt.Errorf("failed to set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

func (p *chromePage) Query(ctx context.Context, selector string) ([]models.Element, error) {
	var raw string
	if err := p.run(ctx, chromedp.Evaluate(invoke(querySnapshotScript, selector), &raw)); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return decodeSnapshots(selector, raw)
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Evaluate(invoke(bodyTextScript, nil), &text)); err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	return text, nil
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return strings.TrimSpace(title), nil
}

func (p *chromePage) Click(ctx context.Context, selector string, index int) error {
	err := p.run(ctx,
		chromedp.Click(jsPath(selector, index), chromedp.ByJSPath),
		chromedp.Sleep(clickSettle),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to click %q[%d]: %w", selector, index, err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, selector string, index int, value string) error {
	path := jsPath(selector, index)
	if err := p.run(ctx, chromedp.Focus(path, chromedp.ByJSPath), chromedp.SetValue(path, value, chromedp.ByJSPath)); err != nil {
		return fmt.Errorf("failed to fill %q[%d]: %w", selector, index, err)
	}
	return nil
}

func (p *chromePage) InputValue(ctx context.Context, selector string, index int) (string, error) {
	var value string
	if err := p.run(ctx, chromedp.Value(jsPath(selector, index), &value, chromedp.ByJSPath)); err != nil {
		return "", fmt.Errorf("failed to read value of %q[%d]: %w", selector, index, err)
	}
	return value, nil
}

func (p *chromePage) ScrollToBottom(ctx context.Context) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(invoke(scrollToBottomScript, nil), &ok)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) PageErrors() []string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]string(nil), p.errors...)
}

func (p *chromePage) Close() error {
	p.tabCancel()
	return nil
}
