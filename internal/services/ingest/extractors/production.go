package extractors

import (
	"context"
	"net/url"
	"time"

	"plexingest/internal/core/canon"
	"plexingest/internal/core/timeparse"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/services/ingest/domain"
)

const productionEntriesPath = "/production/v1/production-history/production-entries"

// Production pulls production history entries
type Production struct {
	Shared
	Lookback int // days
}

// NewProduction builds the production extractor
func NewProduction(sh Shared, lookbackDays int) *Production {
	return &Production{Shared: sh, Lookback: lookbackDays}
}

func (e *Production) Name() string     { return "production" }
func (e *Production) RawTable() string { return "production" }

// FetchRecords pulls entries between the watermark (or lookback) and now
func (e *Production) FetchRecords(ctx context.Context, since time.Time) ([]domain.Record, error) {
	from, to := e.window(since, e.Lookback)

	q := url.Values{}
	q.Set("beginDate", timeparse.Format(from))
	q.Set("endDate", timeparse.Format(to))

	entries, err := e.Plex.Paginate(ctx, productionEntriesPath, q, "data", e.PageSize)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Record, len(entries))
	for i, rec := range entries {
		out[i] = rec
	}
	return out, nil
}

// TransformRecord promotes the identifiers, timestamps and quantities the
// landing table is queried on
func (e *Production) TransformRecord(rec domain.Record) (domain.Record, error) {
	e.stamp(rec)
	promoteWorkcenter(rec)

	promote(rec, "jobNumber", "jobNo")
	promote(rec, "createdAt", "createdTime")
	promote(rec, "completedAt", "completedTime")
	return rec, nil
}

// RecordKey prefers the entry id, then a workcenter and instant composite
func (e *Production) RecordKey(rec domain.Record) (string, error) {
	if id := canon.First(rec, "id", "entryId"); id != "" {
		return id, nil
	}
	wc := canon.First(rec, "workcenterId", "workcenterCode")
	ts := canon.First(rec, "timestamp", "createdAt", "createdTime")
	if wc != "" && ts != "" {
		return wc + "-" + ts, nil
	}
	return "", perr.MissingIdentifierf("production entry has no id, entryId or workcenter/timestamp pair")
}
