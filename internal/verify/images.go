package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultImageTimeout bounds each image request
	DefaultImageTimeout = 15 * time.Second

	// DefaultImageRateLimit is the default rate limit (requests per second)
	DefaultImageRateLimit = 5
)

// ImageChecker issues HEAD requests for image URLs
type ImageChecker struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     arbor.ILogger
}

// ImageCheckerOption configures the ImageChecker
type ImageCheckerOption func(*ImageChecker)

// WithImageHTTPClient sets a custom HTTP client
func WithImageHTTPClient(httpClient *http.Client) ImageCheckerOption {
	return func(c *ImageChecker) {
		c.httpClient = httpClient
	}
}

// WithImageRateLimit sets requests per second; zero or less disables limiting
func WithImageRateLimit(requestsPerSecond float64) ImageCheckerOption {
	return func(c *ImageChecker) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithImageUserAgent sets the User-Agent header
func WithImageUserAgent(userAgent string) ImageCheckerOption {
	return func(c *ImageChecker) {
		c.userAgent = userAgent
	}
}

// NewImageChecker creates an image checker
func NewImageChecker(logger arbor.ILogger, opts ...ImageCheckerOption) *ImageChecker {
	c := &ImageChecker{
		httpClient: &http.Client{Timeout: DefaultImageTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultImageRateLimit), DefaultImageRateLimit),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ImageStatus is the outcome of one image request
type ImageStatus struct {
	URL        string
	StatusCode int
	Err        error
}

// Broken reports whether the image failed the health rule
func (s ImageStatus) Broken() bool {
	return s.Err != nil || s.StatusCode >= 400
}

func (s ImageStatus) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s (%v)", s.URL, s.Err)
	}
	return fmt.Sprintf("%s (status %d)", s.URL, s.StatusCode)
}

// Check requests one image. Servers that refuse HEAD (405, 501) are retried with
// a ranged GET so a method restriction is not reported as a broken image.
func (c *ImageChecker) Check(ctx context.Context, imageURL string) ImageStatus {
	status := ImageStatus{URL: imageURL}

	if err := c.limiter.Wait(ctx); err != nil {
		status.Err = fmt.Errorf("rate limit wait: %w", err)
		return status
	}

	code, err := c.do(ctx, http.MethodHead, imageURL)
	if err == nil && (code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented) {
		c.logger.Debug().
			Str("url", imageURL).
			Int("status", code).
			Msg("HEAD refused, retrying image with GET")
		code, err = c.do(ctx, http.MethodGet, imageURL)
	}

	status.StatusCode = code
	status.Err = err
	return status
}

func (c *ImageChecker) do(ctx context.Context, method, imageURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode, nil
}

// eligibleImageSource reports whether an img src should be checked over HTTP
func eligibleImageSource(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	return !strings.HasPrefix(lower, "data:") && !strings.HasPrefix(lower, "blob:")
}
