package pagerduty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pagerduty-analytics/internal/config"
	"pagerduty-analytics/internal/logging"
)

// Entity-listing resources. The endpoint path doubles as the key of the
// record array in the response envelope.
const (
	ResourceTeams              = "teams"
	ResourceEscalationPolicies = "escalation_policies"
	ResourceUsers              = "users"
	ResourceServices           = "services"
	ResourceSchedules          = "schedules"
	ResourceIncidents          = "incidents"
)

// Client issues paginated GET requests against the PagerDuty REST API.
// It keeps no state between calls beyond the HTTP client itself.
type Client struct {
	baseURL    string
	apiKey     string
	pageLimit  int
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// New constructs a Client from the PagerDuty section of the configuration.
func New(cfg config.Config, logger *logging.Logger) *Client {
	return &Client{
		baseURL:    cfg.PagerDuty.BaseURL,
		apiKey:     cfg.PagerDuty.APIKey,
		pageLimit:  cfg.PagerDuty.PageLimit,
		maxRetries: cfg.PagerDuty.MaxRetries,
		retryDelay: cfg.PagerDuty.RetryDelay,
		maxDelay:   cfg.PagerDuty.MaxDelay,
		httpClient: &http.Client{Timeout: cfg.PagerDuty.HTTPTimeout},
		logger:     logger,
	}
}

// Page is one page of raw entity records.
type Page struct {
	Records []json.RawMessage
	Offset  int
	Limit   int
	More    bool
}

// PageIter walks an entity-listing endpoint one page at a time, so memory is
// bounded by the page size rather than the corpus size. It is not restartable:
// a retry always re-requests the current offset.
type PageIter struct {
	client   *Client
	ctx      context.Context
	resource string
	params   url.Values
	offset   int
	page     *Page
	err      error
	done     bool
}

// Pages returns a lazy iterator over all pages of the given resource.
// Extra query parameters may be nil.
func (c *Client) Pages(ctx context.Context, resource string, params url.Values) *PageIter {
	return &PageIter{client: c, ctx: ctx, resource: resource, params: params}
}

// Next fetches the next page. It returns false when the listing is exhausted
// or a fetch failed; check Err afterwards.
func (it *PageIter) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	page, err := it.client.fetchPage(it.ctx, it.resource, it.params, it.offset)
	if err != nil {
		it.err = err
		return false
	}
	it.page = page
	if !page.More || len(page.Records) == 0 {
		it.done = true
	}
	// Advance by the limit the server actually applied.
	step := page.Limit
	if step <= 0 {
		step = len(page.Records)
	}
	it.offset += step
	return len(page.Records) > 0
}

// Page returns the page fetched by the last successful Next.
func (it *PageIter) Page() *Page {
	return it.page
}

// Err returns the error that terminated the iteration, if any.
func (it *PageIter) Err() error {
	return it.err
}

// envelope is the shared shape of PagerDuty list responses. Records sit under
// a key named after the resource and are captured from the raw body.
type envelope struct {
	Offset int  `json:"offset"`
	Limit  int  `json:"limit"`
	More   bool `json:"more"`
}

// fetchPage requests a single page, retrying the same offset on rate limiting
// (HTTP 429) and transient upstream errors (5xx) with exponential backoff.
func (c *Client) fetchPage(ctx context.Context, resource string, params url.Values, offset int) (*Page, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("limit", strconv.Itoa(c.pageLimit))
	q.Set("offset", strconv.Itoa(offset))
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, resource, q.Encode())

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Resource: resource, Attempts: attempt, Err: err}
		}

		body, retryAfter, retryable, err := c.get(ctx, reqURL)
		if err == nil {
			page, decErr := decodePage(resource, body)
			if decErr != nil {
				return nil, &FetchError{Resource: resource, Attempts: attempt + 1, Err: decErr}
			}
			return page, nil
		}
		if !retryable {
			return nil, &FetchError{Resource: resource, Attempts: attempt + 1, Err: err}
		}
		lastErr = err

		if attempt < c.maxRetries-1 {
			delay := c.backoffDelay(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			c.logger.Warnf("Fetch %s offset=%d attempt %d/%d failed: %v (retrying in %v)",
				resource, offset, attempt+1, c.maxRetries, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &FetchError{Resource: resource, Attempts: attempt + 1, Err: ctx.Err()}
			}
		}
	}
	return nil, &FetchError{Resource: resource, Attempts: c.maxRetries, Err: lastErr}
}

// get performs one GET. It reports whether the failure is worth retrying
// (rate limit, upstream 5xx, transport error) and the server-requested wait
// from a Retry-After header, when present.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.pagerduty+json;version=2")
	req.Header.Set("Authorization", "Token token="+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, true, fmt.Errorf("read response failed: %w", err)
		}
		return body, 0, false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, retryAfter(resp, c.maxDelay), true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return nil, 0, false, fmt.Errorf("status %d", resp.StatusCode)
	}
}

// retryAfter reads a seconds-valued Retry-After header, capped at max.
func retryAfter(resp *http.Response, max time.Duration) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

// backoffDelay doubles the base delay per attempt, adds up to 25% jitter, and
// caps at the configured maximum.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	if delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

// decodePage extracts pagination metadata and the record array keyed by the
// resource name from a response body.
func decodePage(resource string, body []byte) (*Page, error) {
	var meta envelope
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resource, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resource, err)
	}
	records := []json.RawMessage{}
	if data, ok := raw[resource]; ok {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode %s records: %w", resource, err)
		}
	}
	return &Page{Records: records, Offset: meta.Offset, Limit: meta.Limit, More: meta.More}, nil
}

// Ping probes the abilities endpoint; used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	_, _, _, err := c.get(ctx, c.baseURL+"/abilities")
	if err != nil {
		return fmt.Errorf("pagerduty ping failed: %w", err)
	}
	return nil
}
