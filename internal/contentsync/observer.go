package contentsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
)

// ErrObservationTimeout is returned when the frontend never showed the value
var ErrObservationTimeout = errors.New("value did not appear on the frontend in time")

// Observer reloads a frontend page until an element shows an expected value
type Observer struct {
	page              interfaces.BrowserPage
	url               string
	selector          string
	timeout           time.Duration
	interval          time.Duration
	navigationTimeout time.Duration
	logger            arbor.ILogger
}

// NewObserver creates an observer polling selector on url
func NewObserver(page interfaces.BrowserPage, url, selector string, timeout, interval, navigationTimeout time.Duration, logger arbor.ILogger) *Observer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if navigationTimeout <= 0 {
		navigationTimeout = 30 * time.Second
	}
	return &Observer{
		page:              page,
		url:               url,
		selector:          selector,
		timeout:           timeout,
		interval:          interval,
		navigationTimeout: navigationTimeout,
		logger:            logger,
	}
}

// Observe polls until an element matching the selector contains value or the
// propagation timeout elapses. Load errors while polling are retried.
func (o *Observer) Observe(ctx context.Context, value string) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var lastSeen string
	var lastErr error
	attempts := 0

	for {
		attempts++
		seen, err := o.poll(ctx)
		if err == nil {
			lastSeen, lastErr = seen, nil
			if strings.Contains(seen, value) {
				o.logger.Debug().
					Int("attempts", attempts).
					Str("value", value).
					Msg("Value observed on frontend")
				return nil
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return fmt.Errorf("observation cancelled: %w", ctx.Err())
			}
			if lastErr != nil {
				return fmt.Errorf("%w after %d attempts (%s): last error: %v", ErrObservationTimeout, attempts, o.timeout, lastErr)
			}
			return fmt.Errorf("%w after %d attempts (%s): %s showed %q", ErrObservationTimeout, attempts, o.timeout, o.selector, lastSeen)
		case <-time.After(o.interval):
		}
	}
}

// poll reloads the page and returns the joined text of the selector's matches
func (o *Observer) poll(ctx context.Context) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, o.navigationTimeout)
	defer cancel()

	if _, err := o.page.Navigate(navCtx, o.url); err != nil {
		return "", err
	}
	elements, err := o.page.Query(navCtx, o.selector)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		texts = append(texts, strings.TrimSpace(el.Text))
	}
	return strings.Join(texts, " | "), nil
}
