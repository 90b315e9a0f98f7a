package domain

import (
	"context"
	"time"
)

// Extractor is one upstream domain pulled on its own watermark. Fetch and
// transform are split so the cycle engine owns batching, key policy and
// watermark advancement uniformly
type Extractor interface {
	// Name is the extractor's stable identifier, used for state files,
	// logs and CLI selection
	Name() string

	// RawTable is the destination raw table name
	RawTable() string

	// FetchRecords pulls every record changed since the given time.
	// A zero since means the extractor's configured lookback applies
	FetchRecords(ctx context.Context, since time.Time) ([]Record, error)

	// RecordKey derives the stable row key for a record. A
	// MissingIdentifier error drops the record without failing the cycle
	RecordKey(rec Record) (string, error)

	// TransformRecord shapes a record into flat raw columns
	TransformRecord(rec Record) (map[string]any, error)
}

// CycleObserver is an optional extractor capability invoked after a cycle
// commits its watermark, for per-extractor bookkeeping such as dedup rings
type CycleObserver interface {
	CycleCommitted(ctx context.Context)
}

// Watermarks persists per-extractor incremental state
type Watermarks interface {
	// LastExtractionTime returns the stored watermark; ok is false when
	// the extractor has never completed a cycle
	LastExtractionTime(name string) (time.Time, bool)

	// SetLastExtractionTime durably advances the watermark
	SetLastExtractionTime(name string, t time.Time) error
}

// RawSink lands rows into the downstream raw store
type RawSink interface {
	// WriteRows ensures the destination table exists and upserts rows in
	// batches
	WriteRows(ctx context.Context, table string, rows []Row) error
}

// MetadataWriter records cycle outcomes as extraction metadata. It is
// best-effort and must never fail a cycle
type MetadataWriter interface {
	RecordRun(ctx context.Context, res CycleResult)
}
