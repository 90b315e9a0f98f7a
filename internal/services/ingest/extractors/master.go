package extractors

import (
	"context"
	"time"

	"plexingest/internal/core/canon"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

// masterEndpoint describes one reference-data endpoint: where it lives,
// which fields can carry the natural id, and which field dates the record
type masterEndpoint struct {
	RecordType string
	Path       string
	IDFields   []string
	TSField    string
}

var masterEndpoints = []masterEndpoint{
	{
		RecordType: "workcenter",
		Path:       "/production/v1/production-definitions/workcenters",
		IDFields:   []string{"id", "workcenterId", "externalId"},
		TSField:    "lastUpdated",
	},
	{
		RecordType: "part",
		Path:       "/mdm/v1/parts",
		IDFields:   []string{"id", "partId", "partNumber"},
		TSField:    "lastUpdatedDate",
	},
	{
		RecordType: "operation",
		Path:       "/mdm/v1/operations",
		IDFields:   []string{"id", "operationId"},
		TSField:    "lastUpdatedDate",
	},
}

// Master pulls reference data: workcenters, parts and operations
type Master struct {
	Shared
	Lookback int // days
	log      logger.Logger
}

// NewMaster builds the master data extractor
func NewMaster(sh Shared, lookbackDays int) *Master {
	return &Master{Shared: sh, Lookback: lookbackDays, log: *logger.Named("master")}
}

func (e *Master) Name() string     { return "master" }
func (e *Master) RawTable() string { return "master_data" }

// FetchRecords paginates each endpoint, tags the record type and drops
// items whose update timestamp is parseable and strictly older than the
// watermark (or the lookback window on a cold start). Items with no
// usable timestamp are retained
func (e *Master) FetchRecords(ctx context.Context, since time.Time) ([]domain.Record, error) {
	if since.IsZero() {
		since = e.now().UTC().AddDate(0, 0, -e.Lookback)
	}

	var out []domain.Record
	for _, ep := range masterEndpoints {
		items, err := e.Plex.Paginate(ctx, ep.Path, nil, "data", e.PageSize)
		if err != nil {
			return nil, err
		}
		kept := 0
		for _, rec := range items {
			if !newerOrUnreadable(rec, since, ep.TSField) {
				continue
			}
			rec["recordType"] = ep.RecordType
			out = append(out, rec)
			kept++
		}
		e.log.Debug().Str("record_type", ep.RecordType).
			Int("fetched", len(items)).Int("kept", kept).Msg("master endpoint walked")
	}
	return out, nil
}

// TransformRecord stamps tenant fields
func (e *Master) TransformRecord(rec domain.Record) (domain.Record, error) {
	e.stamp(rec)
	return rec, nil
}

// RecordKey joins the record type with the first matching id field for
// that type
func (e *Master) RecordKey(rec domain.Record) (string, error) {
	rt := canon.Str(rec["recordType"])
	for _, ep := range masterEndpoints {
		if ep.RecordType != rt {
			continue
		}
		if id := canon.First(rec, ep.IDFields...); id != "" {
			return rt + ":" + id, nil
		}
		return "", perr.MissingIdentifierf("%s record has none of its id fields", rt)
	}
	return "", perr.MissingIdentifierf("master record has unknown recordType %q", rt)
}
