// Package service drives extraction cycles and their scheduling
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"plexingest/internal/core/canon"
	"plexingest/internal/core/timeparse"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

// watermarkFields are scanned, in order, when deriving a cycle's new
// watermark from its records
var watermarkFields = []string{"lastUpdated", "updated_at", "updatedAt", "timestamp"}

// Engine runs one extraction cycle at a time for any extractor. It owns
// the watermark discipline: a watermark only moves after the sink has
// accepted the cycle's rows
type Engine struct {
	wm   domain.Watermarks
	sink domain.RawSink
	meta domain.MetadataWriter
	log  logger.Logger
	now  func() time.Time
}

// NewEngine wires an Engine; meta may be nil when metadata is not configured
func NewEngine(wm domain.Watermarks, sink domain.RawSink, meta domain.MetadataWriter) *Engine {
	return &Engine{wm: wm, sink: sink, meta: meta, log: *logger.Named("engine"), now: time.Now}
}

// RunCycle executes one watermark-to-watermark pass for ex. Failures leave
// the watermark untouched so the next cycle re-covers the same window
func (g *Engine) RunCycle(ctx context.Context, ex domain.Extractor) domain.CycleResult {
	res := domain.CycleResult{
		Extractor: ex.Name(),
		RunID:     uuid.NewString(),
		Status:    domain.RunFailure,
	}
	start := g.now()
	defer func() { res.Duration = g.now().Sub(start) }()

	log := g.log.With().Str("extractor", ex.Name()).Str("run_id", res.RunID).Logger()

	since, _ := g.wm.LastExtractionTime(ex.Name())

	records, err := ex.FetchRecords(ctx, since)
	if err != nil {
		res.Err = perr.WithOp(err, "engine.fetch")
		log.Error().Err(err).Msg("fetch failed, watermark unchanged")
		g.report(ctx, res)
		return res
	}
	res.Fetched = len(records)

	if len(records) == 0 {
		res.Status = domain.RunSuccess
		res.Watermark = since
		log.Info().Msg("no new records")
		g.report(ctx, res)
		return res
	}

	transformed := make([]domain.Record, 0, len(records))
	rows := make([]domain.Row, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		t, err := ex.TransformRecord(rec)
		if err != nil {
			res.Err = perr.WithOp(err, "engine.transform")
			log.Error().Err(err).Msg("transform failed, watermark unchanged")
			g.report(ctx, res)
			return res
		}

		key, err := ex.RecordKey(t)
		if err != nil {
			if perr.IsCode(err, perr.ErrorCodeMissingIdentifier) {
				res.Dropped++
				log.Warn().Err(err).Msg("record dropped, no natural key")
				continue
			}
			res.Err = perr.WithOp(err, "engine.rowKey")
			g.report(ctx, res)
			return res
		}
		t["rowKey"] = key
		transformed = append(transformed, t)
		rows = append(rows, domain.Row{Key: key, Columns: canon.Flatten(t)})
	}

	if err := g.sink.WriteRows(ctx, ex.RawTable(), rows); err != nil {
		res.Err = perr.WithOp(err, "engine.write")
		log.Error().Err(err).Int("rows", len(rows)).Msg("write failed, watermark unchanged")
		g.report(ctx, res)
		return res
	}
	res.Written = len(rows)

	newWM := g.resolveLastTimestamp(transformed)
	if err := g.wm.SetLastExtractionTime(ex.Name(), newWM); err != nil {
		// rows are already landed; the next cycle re-covers and the sink
		// upserts idempotently
		res.Err = perr.WithOp(err, "engine.watermark")
		log.Error().Err(err).Msg("watermark write failed after successful insert")
		g.report(ctx, res)
		return res
	}

	res.Status = domain.RunSuccess
	res.Watermark = newWM

	if obs, ok := ex.(domain.CycleObserver); ok {
		obs.CycleCommitted(ctx)
	}

	log.Info().
		Int("fetched", res.Fetched).
		Int("written", res.Written).
		Int("dropped", res.Dropped).
		Time("watermark", newWM).
		Msg("cycle complete")
	g.report(ctx, res)
	return res
}

// resolveLastTimestamp derives the new watermark: the max parseable
// update instant across the cycle's records, else now
func (g *Engine) resolveLastTimestamp(records []domain.Record) time.Time {
	var max time.Time
	for _, rec := range records {
		for _, f := range watermarkFields {
			v, ok := rec[f]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			t, err := timeparse.Parse(v)
			if err != nil {
				continue
			}
			if t.After(max) {
				max = t
			}
			break
		}
	}
	if max.IsZero() {
		return g.now().UTC()
	}
	return max
}

// report forwards the cycle outcome to the metadata writer, which is
// best-effort by contract
func (g *Engine) report(ctx context.Context, res domain.CycleResult) {
	if g.meta == nil {
		return
	}
	g.meta.RecordRun(ctx, res)
}
