// Package extractors holds the six domain extractors that feed the
// ingest engine
package extractors

import (
	"time"

	"plexingest/internal/adapters/plex"
	"plexingest/internal/core/canon"
	"plexingest/internal/core/timeparse"
	"plexingest/internal/services/ingest/domain"
)

// Shared is the configuration every HTTP-backed extractor carries
type Shared struct {
	Plex     *plex.Client
	PCN      string
	Facility string
	PageSize int

	now func() time.Time
}

// NewShared builds a Shared with the process clock
func NewShared(client *plex.Client, pcn, facility string, pageSize int) Shared {
	return Shared{Plex: client, PCN: pcn, Facility: facility, PageSize: pageSize, now: time.Now}
}

// stamp annotates a record with the tenant fields every row carries
func (s Shared) stamp(rec domain.Record) {
	rec["pcn"] = s.PCN
	rec["facility"] = s.Facility
}

// window resolves the fetch range: since when set, otherwise now minus
// the lookback in days
func (s Shared) window(since time.Time, lookbackDays int) (time.Time, time.Time) {
	to := s.now().UTC()
	from := since
	if from.IsZero() {
		from = to.AddDate(0, 0, -lookbackDays)
	}
	return from, to
}

// firstString returns the first non-empty string projection of keys
func firstString(rec domain.Record, keys ...string) string {
	return canon.First(rec, keys...)
}

// promote copies src into dst's top level when dst is absent
func promote(rec domain.Record, dst, src string) {
	if _, ok := rec[dst]; ok {
		return
	}
	if v, ok := rec[src]; ok {
		rec[dst] = v
	}
}

// promoteWorkcenter lifts nested workcenter fields to the flat columns the
// landing tables key on
func promoteWorkcenter(rec domain.Record) {
	if code := canon.Nested(rec, "workcenter", "code"); code != nil {
		promoteValue(rec, "workcenterCode", code)
	}
	if id := canon.Nested(rec, "workcenter", "id"); id != nil {
		promoteValue(rec, "workcenterId", id)
	}
	if name := canon.Nested(rec, "workcenter", "name"); name != nil {
		promoteValue(rec, "workcenterName", name)
	}
}

func promoteValue(rec domain.Record, dst string, v any) {
	if _, ok := rec[dst]; !ok {
		rec[dst] = v
	}
}

// updateInstant returns the first parseable timestamp among fields; ok is
// false when the record carries none
func updateInstant(rec domain.Record, fields ...string) (time.Time, bool) {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		t, err := timeparse.Parse(v)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// newerOrUnreadable reports whether a record passes an incremental filter
// on the first present field in fields: records with no parseable
// timestamp are retained, parseable ones must not be strictly older than
// since
func newerOrUnreadable(rec domain.Record, since time.Time, fields ...string) bool {
	if since.IsZero() {
		return true
	}
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		t, err := timeparse.Parse(v)
		if err != nil {
			return true
		}
		return !t.Before(since)
	}
	return true
}

// dsPager adapts the shared page size for DataSource row limits
func dsPager(batch int) int {
	if batch <= 0 {
		return plex.DefaultPageSize
	}
	return batch
}
