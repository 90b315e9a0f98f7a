// Package sink lands transformed rows into the downstream raw store
package sink

import (
	"context"
	"sync"

	"plexingest/internal/adapters/cdf"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	pstrings "plexingest/internal/platform/strings"
	"plexingest/internal/services/ingest/domain"
)

const defaultBatchSize = 1000

// Sink writes rows into one raw database, creating the database and
// tables on first use. Creation conflicts mean the object already exists
// and are treated as success. Safe for concurrent extractors
type Sink struct {
	raw   *cdf.Client
	db    string
	batch int
	log   logger.Logger

	mu      sync.Mutex
	dbReady bool
	tables  map[string]bool
}

// New returns a Sink over raw targeting db, batching inserts at batch
// rows per request
func New(raw *cdf.Client, db string, batch int) *Sink {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sink{
		raw:    raw,
		db:     pstrings.MustString(db, "raw database"),
		batch:  batch,
		log:    *logger.Named("sink"),
		tables: map[string]bool{},
	}
}

// WriteRows ensures db.table exists and upserts rows in batches
func (s *Sink) WriteRows(ctx context.Context, table string, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensure(ctx, table); err != nil {
		return err
	}

	out := make([]cdf.Row, len(rows))
	for i, r := range rows {
		out[i] = cdf.Row{Key: r.Key, Columns: r.Columns}
	}

	for start := 0; start < len(out); start += s.batch {
		end := start + s.batch
		if end > len(out) {
			end = len(out)
		}
		if err := s.raw.InsertRows(ctx, s.db, table, out[start:end]); err != nil {
			return perr.WithOp(err, "sink.WriteRows")
		}
	}

	s.log.Debug().Str("table", table).Int("rows", len(rows)).Msg("rows landed")
	return nil
}

// ensure creates the database and table once per process; existing
// objects surface as conflicts and count as created
func (s *Sink) ensure(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dbReady {
		if err := s.raw.CreateDatabase(ctx, s.db); err != nil && !perr.IsAlreadyExists(err) {
			return perr.WithOp(err, "sink.ensureDatabase")
		}
		s.dbReady = true
	}
	if !s.tables[table] {
		if err := s.raw.CreateTable(ctx, s.db, table); err != nil && !perr.IsAlreadyExists(err) {
			return perr.WithOp(err, "sink.ensureTable")
		}
		s.tables[table] = true
	}
	return nil
}
