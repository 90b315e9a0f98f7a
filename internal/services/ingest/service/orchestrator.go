package service

import (
	"context"
	"sync"
	"time"

	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

const (
	defaultMaxConcurrent    = 3
	defaultHealthInterval   = 60 * time.Second
	defaultGracefulShutdown = 30 * time.Second
)

// OrchestratorOptions tunes the concurrent scheduler
type OrchestratorOptions struct {
	// Period between cycle starts per extractor
	Period time.Duration

	// MaxConcurrent bounds how many cycles run at once across extractors
	MaxConcurrent int

	// HealthInterval is how often a status snapshot is logged
	HealthInterval time.Duration

	// GracefulShutdown is how long Run waits for in-flight cycles after
	// cancellation before giving up on them
	GracefulShutdown time.Duration
}

// Orchestrator runs each extractor on its own period as an independent
// task. A shared semaphore caps concurrency; one extractor never overlaps
// itself because its task loop is strictly sequential
type Orchestrator struct {
	engine     *Engine
	board      *Board
	extractors []domain.Extractor
	opts       OrchestratorOptions
	sem        chan struct{}
	log        logger.Logger
}

// NewOrchestrator wires the concurrent scheduler
func NewOrchestrator(engine *Engine, board *Board, extractors []domain.Extractor, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	if opts.GracefulShutdown <= 0 {
		opts.GracefulShutdown = defaultGracefulShutdown
	}
	if opts.Period <= 0 {
		opts.Period = time.Minute
	}
	return &Orchestrator{
		engine:     engine,
		board:      board,
		extractors: extractors,
		opts:       opts,
		sem:        make(chan struct{}, opts.MaxConcurrent),
		log:        *logger.Named("orchestrator"),
	}
}

// Run starts one task per extractor plus a health reporter and blocks
// until ctx is cancelled. After cancellation it waits up to the graceful
// budget for in-flight cycles
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, ex := range o.extractors {
		wg.Add(1)
		go func(ex domain.Extractor) {
			defer wg.Done()
			o.task(ctx, ex)
		}(ex)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.health(ctx)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.log.Info().Msg("all extractor tasks drained")
	case <-time.After(o.opts.GracefulShutdown):
		o.log.Warn().Dur("budget", o.opts.GracefulShutdown).Msg("graceful shutdown budget exceeded")
	}
	return ctx.Err()
}

// task is one extractor's loop: run, then wait a period, repeat. The
// first cycle starts immediately
func (o *Orchestrator) task(ctx context.Context, ex domain.Extractor) {
	for {
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		o.board.CycleStarted(ex.Name())
		res := o.engine.RunCycle(ctx, ex)
		o.board.CycleFinished(res)
		<-o.sem

		if err := sleepCtx(ctx, o.opts.Period); err != nil {
			return
		}
	}
}

// health periodically logs a per-extractor snapshot
func (o *Orchestrator) health(ctx context.Context) {
	tick := time.NewTicker(o.opts.HealthInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for name, st := range o.board.Snapshot() {
				o.log.Info().
					Str("extractor", name).
					Int("runs", st.Runs).
					Int("errors", st.Errors).
					Int("written", st.Written).
					Bool("running", st.Running).
					Str("last_error", st.LastError).
					Msg("health")
			}
		}
	}
}
