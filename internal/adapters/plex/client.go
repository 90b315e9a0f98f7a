// Package plex provides resilient clients for the Plex MES REST and DataSource APIs
package plex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
)

// DefaultPageSize is the offset-pagination limit used when callers pass
// no explicit page size
const DefaultPageSize = 1000

const (
	defaultTimeout   = 30 * time.Second
	defaultUA        = "plexingest"
	defaultMaxRetry  = 3
	defaultRetryBase = 5 * time.Second

	headerAPIKey     = "X-Plex-Connect-Api-Key"
	headerCustomerID = "X-Plex-Connect-Customer-Id"
)

// Options configures the Client
type Options struct {
	BaseURL    string
	APIKey     string
	CustomerID string
	UserAgent  string
	Timeout    time.Duration

	// Retry config for transient and rate limited responses.
	// The sleep before retry k is RetryBase * k (linear)
	MaxRetries int
	RetryBase  time.Duration
}

// Client is a minimal Plex REST client with offset pagination support.
// It is stateless and safe for concurrent use by multiple extractors
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("plex"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// GetJSON issues an authenticated GET and decodes the JSON body.
// Transport failures, 429 and 5xx are retried with linear backoff up to
// MaxRetries total attempts; other statuses >= 400 fail fast with an
// upstream error carrying status and body
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	u := c.opts.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "plex new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerAPIKey, c.opts.APIKey)
		req.Header.Set(headerCustomerID, c.opts.CustomerID)

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if !c.shouldRetry(attempt) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "plex get %s failed", path)
			}
			back := c.backoff(attempt)
			c.log.Warn().Str("path", path).Dur("retry_in", back).Int("attempt", attempt).
				Msg("plex transport error retrying")
			c.sleep(back)
			attempt++
			continue
		}

		c.log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Dur("latency", lat).
			Msg("plex http response")

		if resp.StatusCode < 400 {
			var body any
			err := json.NewDecoder(resp.Body).Decode(&body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "plex decode %s failed", path)
			}
			return body, nil
		}

		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = drainAndClose(resp.Body)
		uerr := perr.Upstream(resp.StatusCode, string(tail), parseRetryAfter(resp.Header))

		if !perr.Retryable(uerr) || !c.shouldRetry(attempt) {
			return nil, uerr
		}

		// 429 honors Retry-After when present, otherwise linear backoff
		wait := c.backoff(attempt)
		if ra, ok := perr.ExtractUpstream(uerr); ok && ra.RetryAfter > 0 {
			wait = time.Duration(ra.RetryAfter) * time.Second
		}
		c.log.Warn().Str("path", path).Int("status", resp.StatusCode).Dur("retry_in", wait).
			Int("attempt", attempt).Msg("plex upstream error retrying")
		c.sleep(wait)
		attempt++
	}
}

// Paginate walks an offset-paginated collection and returns every record.
// The upstream exposes no next-token; progress is by element count, which is
// safe for the single snapshot an extraction cycle takes and tolerates
// servers that cap page sizes below the requested limit
func (c *Client) Paginate(
	ctx context.Context,
	path string,
	query url.Values,
	dataKey string,
	pageSize int,
) ([]map[string]any, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []map[string]any
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := cloneValues(query)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pageSize))

		body, err := c.GetJSON(ctx, path, q)
		if err != nil {
			return nil, err
		}

		page := extractPage(body, dataKey)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}
	return all, nil
}

// extractPage pulls the record list out of a page body. Arrays are taken
// whole; objects yield body[dataKey] when dataKey is set, else body["items"]
func extractPage(body any, dataKey string) []map[string]any {
	var items []any
	switch b := body.(type) {
	case []any:
		items = b
	case map[string]any:
		key := dataKey
		if key == "" {
			key = "items"
		}
		if v, ok := b[key].([]any); ok {
			items = v
		}
	}

	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase * time.Duration(attempt+1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt+1 < c.opts.MaxRetries
}
