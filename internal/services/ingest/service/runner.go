package service

import (
	"context"
	"sync/atomic"
	"time"

	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

// Runner drives a fixed set of extractors sequentially: one pass over all
// of them per iteration, optionally repeating on an interval. A stop
// request breaks the loop at the next safe point; the extractor in flight
// is allowed to finish
type Runner struct {
	engine     *Engine
	board      *Board
	extractors []domain.Extractor

	interval      time.Duration
	maxIterations int

	stop atomic.Bool
	log  logger.Logger
}

// NewRunner wires a sequential Runner. interval <= 0 means a single pass;
// maxIterations <= 0 means unbounded when an interval is set
func NewRunner(engine *Engine, board *Board, extractors []domain.Extractor, interval time.Duration, maxIterations int) *Runner {
	return &Runner{
		engine:        engine,
		board:         board,
		extractors:    extractors,
		interval:      interval,
		maxIterations: maxIterations,
		log:           *logger.Named("runner"),
	}
}

// Stop requests a graceful stop at the next safe point
func (r *Runner) Stop() { r.stop.Store(true) }

// Run loops until the iteration budget, the interval policy, a stop
// request or context cancellation ends it. Individual extractor failures
// are recorded and never abort the loop
func (r *Runner) Run(ctx context.Context) error {
	for iteration := 1; ; iteration++ {
		r.log.Info().Int("iteration", iteration).Int("extractors", len(r.extractors)).Msg("iteration starting")

		for _, ex := range r.extractors {
			if r.stopped(ctx) {
				r.log.Info().Msg("stop requested, ending run")
				return ctx.Err()
			}
			r.board.CycleStarted(ex.Name())
			res := r.engine.RunCycle(ctx, ex)
			r.board.CycleFinished(res)
		}

		if r.maxIterations > 0 && iteration >= r.maxIterations {
			return nil
		}
		if r.interval <= 0 {
			return nil
		}
		if r.stopped(ctx) {
			return ctx.Err()
		}
		if err := sleepCtx(ctx, r.interval); err != nil {
			return err
		}
	}
}

func (r *Runner) stopped(ctx context.Context) bool {
	return r.stop.Load() || ctx.Err() != nil
}

// sleepCtx sleeps for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
