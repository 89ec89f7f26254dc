package contentsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultCollection is the Strapi collection holding the observed content
	DefaultCollection = "articles"

	// DefaultTimeout bounds a single CMS request
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second against the CMS
	DefaultRateLimit = 2
)

// StrapiClient reads and writes single fields of Strapi collection entries
type StrapiClient struct {
	baseURL    string
	collection string
	timeout    time.Duration
	transport  http.RoundTripper
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// ClientOption configures the StrapiClient
type ClientOption func(*StrapiClient)

// WithCollection sets the collection path segment, default "articles"
func WithCollection(collection string) ClientOption {
	return func(c *StrapiClient) {
		c.collection = strings.Trim(collection, "/")
	}
}

// WithTransport sets the base transport under the bearer token
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *StrapiClient) {
		c.transport = transport
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *StrapiClient) {
		c.timeout = timeout
	}
}

// WithRateLimit sets requests per second; <= 0 disables limiting
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *StrapiClient) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// NewStrapiClient creates a client authenticating with a static API token
func NewStrapiClient(baseURL, token string, logger arbor.ILogger, opts ...ClientOption) *StrapiClient {
	c := &StrapiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: DefaultCollection,
		timeout:    DefaultTimeout,
		transport:  http.DefaultTransport,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	return c
}

// APIError is a non-2xx response from the CMS
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cms API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

func (c *StrapiClient) entryURL(id string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.collection, url.PathEscape(id))
}

// GetField reads field from entry id. Both the flat and the nested
// attributes response shapes are accepted.
func (c *StrapiClient) GetField(ctx context.Context, id, field string) (string, error) {
	var body struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, id, nil, &body); err != nil {
		return "", err
	}
	if body.Data == nil {
		return "", fmt.Errorf("cms entry %s has no data", id)
	}

	if raw, ok := body.Data[field]; ok {
		return decodeString(raw, field)
	}
	if rawAttrs, ok := body.Data["attributes"]; ok {
		var attrs map[string]json.RawMessage
		if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
			return "", fmt.Errorf("failed to decode attributes of %s: %w", id, err)
		}
		if raw, ok := attrs[field]; ok {
			return decodeString(raw, field)
		}
	}
	return "", fmt.Errorf("cms entry %s has no field %q", id, field)
}

func decodeString(raw json.RawMessage, field string) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %q is not a string: %w", field, err)
	}
	return s, nil
}

// SetField writes value to field on entry id. A non-2xx response wraps ErrMutationRejected.
func (c *StrapiClient) SetField(ctx context.Context, id, field, value string) error {
	payload := map[string]map[string]string{"data": {field: value}}
	if err := c.do(ctx, http.MethodPut, id, payload, nil); err != nil {
		return err
	}

	c.logger.Info().
		Str("id", id).
		Str("field", field).
		Str("value", value).
		Msg("CMS field updated")
	return nil
}

func (c *StrapiClient) do(ctx context.Context, method, id string, payload, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	endpoint := c.entryURL(id)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", endpoint).
		Msg("CMS API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Endpoint: endpoint}
		if method != http.MethodGet {
			return fmt.Errorf("%w: %w", ErrMutationRejected, apiErr)
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
