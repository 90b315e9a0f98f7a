package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"plexingest/internal/core/canon"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
)

// DSOptions configures the DataSource client
type DSOptions struct {
	// Host is the tenant host, e.g. https://{pcn}.on.plex.com
	Host     string
	Username string
	Password string
	Timeout  time.Duration

	MaxRetries int
	RetryBase  time.Duration
}

// DataSource executes predefined server-side queries against the Plex
// DataSource API. Stateless, safe for concurrent use
type DataSource struct {
	http  *http.Client
	opts  DSOptions
	log   logger.Logger
	sleep func(time.Duration)
}

// DSTable is one tabular result set inside a DataSource response
type DSTable struct {
	Columns []string
	Rows    [][]any
}

// DSResult is the decoded shape of a DataSource execution
type DSResult struct {
	TransactionNo    string
	RowLimitExceeded bool
	Tables           []DSTable
	Outputs          map[string]any

	// Body is the full decoded response; non-JSON responses are wrapped as
	// {"raw": text} so callers can still land the payload
	Body map[string]any
}

// NewDataSource creates a DataSource client with sane defaults
func NewDataSource(o DSOptions) *DataSource {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &DataSource{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("plex-ds"),
		sleep: time.Sleep,
	}
}

// Execute runs datasource id with the given inputs and decodes the result.
// Any failure (transport or status) is retried with linear backoff up to
// MaxRetries total attempts
func (d *DataSource) Execute(ctx context.Context, id int, inputs map[string]any) (*DSResult, error) {
	u := fmt.Sprintf("%s/api/datasources/%d/execute?format=2", d.opts.Host, id)
	if inputs == nil {
		inputs = map[string]any{}
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "datasource %d encode inputs", id)
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "datasource %d new request", id)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(d.opts.Username, d.opts.Password)

		resp, rerr := d.http.Do(req)
		var uerr error
		if rerr != nil {
			uerr = perr.Wrapf(rerr, perr.ErrorCodeUnavailable, "datasource %d post failed", id)
		} else if resp.StatusCode >= 400 {
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = drainAndClose(resp.Body)
			uerr = perr.Upstream(resp.StatusCode, string(tail), parseRetryAfter(resp.Header))
		}

		if uerr != nil {
			if attempt+1 >= d.opts.MaxRetries {
				return nil, uerr
			}
			back := d.opts.RetryBase * time.Duration(attempt+1)
			d.log.Warn().Int("datasource_id", id).Dur("retry_in", back).Int("attempt", attempt).
				Err(uerr).Msg("datasource execute retrying")
			d.sleep(back)
			attempt++
			continue
		}

		raw, rerr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if rerr != nil {
			return nil, perr.Wrapf(rerr, perr.ErrorCodeUnavailable, "datasource %d read body", id)
		}
		return decodeResult(raw), nil
	}
}

// decodeResult parses a response body; non-JSON bodies are wrapped under "raw"
func decodeResult(raw []byte) *DSResult {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return &DSResult{Body: map[string]any{"raw": string(raw)}}
	}

	res := &DSResult{Body: body}
	res.TransactionNo = canon.Str(body["transactionNo"])
	if b, ok := body["rowLimitedExceeded"].(bool); ok {
		res.RowLimitExceeded = b
	}
	if outs, ok := body["outputs"].(map[string]any); ok {
		res.Outputs = outs
	}

	tables, _ := body["tables"].([]any)
	for _, tv := range tables {
		tm, ok := tv.(map[string]any)
		if !ok {
			continue
		}
		var tbl DSTable
		if cols, ok := tm["columns"].([]any); ok {
			for _, cv := range cols {
				tbl.Columns = append(tbl.Columns, canon.Str(cv))
			}
		}
		if rows, ok := tm["rows"].([]any); ok {
			for _, rv := range rows {
				if r, ok := rv.([]any); ok {
					tbl.Rows = append(tbl.Rows, r)
				}
			}
		}
		res.Tables = append(res.Tables, tbl)
	}
	return res
}
