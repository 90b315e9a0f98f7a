// Package cdf talks to the downstream data platform: OAuth token exchange,
// raw database/table/row landing, and auxiliary extraction-metadata nodes
package cdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
)

const rawDefaultTimeout = 60 * time.Second

// Options configures the Client
type Options struct {
	Host         string
	Project      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// Client is a raw-API client for the downstream platform. Safe for
// concurrent use; the token source serializes refreshes internally
type Client struct {
	http *http.Client
	opts Options
	tok  *tokenSource
	log  logger.Logger
}

// Row is one raw row: a stable key and flat scalar-or-JSON-text columns
type Row struct {
	Key     string         `json:"key"`
	Columns map[string]any `json:"columns"`
}

// NewClient creates a Client with sane defaults. Scopes default to the
// host's .default audience when unset
func NewClient(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = rawDefaultTimeout
	}
	if len(o.Scopes) == 0 && o.Host != "" {
		o.Scopes = []string{o.Host + "/.default"}
	}
	hc := &http.Client{Timeout: o.Timeout}
	return &Client{
		http: hc,
		opts: o,
		tok:  newTokenSource(hc, o.TokenURL, o.ClientID, o.ClientSecret, o.Scopes),
		log:  *logger.Named("cdf"),
	}
}

// CreateDatabase creates a raw database. A conflict means it already
// exists; callers treat that as success
func (c *Client) CreateDatabase(ctx context.Context, db string) error {
	body := map[string]any{"items": []map[string]any{{"name": db}}}
	_, err := c.post(ctx, "/raw/dbs", body)
	return err
}

// CreateTable creates a table inside db. Conflict semantics match
// CreateDatabase
func (c *Client) CreateTable(ctx context.Context, db, table string) error {
	body := map[string]any{"items": []map[string]any{{"name": table}}}
	_, err := c.post(ctx, fmt.Sprintf("/raw/dbs/%s/tables", db), body)
	return err
}

// InsertRows upserts rows by key into db.table
func (c *Client) InsertRows(ctx context.Context, db, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	body := map[string]any{"items": rows}
	_, err := c.post(ctx, fmt.Sprintf("/raw/dbs/%s/tables/%s/rows", db, table), body)
	if err != nil {
		return err
	}
	c.log.Debug().Str("db", db).Str("table", table).Int("rows", len(rows)).Msg("raw rows inserted")
	return nil
}

// post issues an authenticated JSON POST under the project API root and
// returns the response body on 2xx
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	tok, err := c.tok.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "cdf encode %s", path)
	}

	u := fmt.Sprintf("%s/api/v1/projects/%s%s", c.opts.Host, c.opts.Project, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "cdf new request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cdf post %s failed", path)
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "cdf read %s", path)
	}
	if resp.StatusCode >= 400 {
		return nil, perr.Upstream(resp.StatusCode, string(out), 0)
	}
	return out, nil
}
