// Package module assembles the ingest service from configuration
package module

import (
	"context"
	"time"

	"plexingest/internal/adapters/cdf"
	"plexingest/internal/adapters/plex"
	"plexingest/internal/core/timeparse"
	"plexingest/internal/modkit"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	pstrings "plexingest/internal/platform/strings"
	ptime "plexingest/internal/platform/time"
	"plexingest/internal/services/ingest/domain"
	"plexingest/internal/services/ingest/extractors"
	"plexingest/internal/services/ingest/service"
	"plexingest/internal/services/ingest/sink"
	"plexingest/internal/services/ingest/state"
)

// Ports is what the ingest module exposes to siblings: the cycle engine,
// the status board and the registered extractors
type Ports interface {
	Engine() *service.Engine
	Board() *service.Board
	Extractors(names ...string) ([]domain.Extractor, error)
}

// Module owns the ingest wiring for one process
type Module struct {
	built modkit.Built
	log   logger.Logger

	opts   Options
	engine *service.Engine
	board  *service.Board
	reg    map[string]domain.Extractor
	order  []string
}

var _ modkit.Module = (*Module)(nil)
var _ Ports = (*Module)(nil)

// New builds the ingest module from validated Options
func New(deps modkit.Deps, opts Options, mods ...modkit.Option) (*Module, error) {
	built := modkit.Build(append([]modkit.Option{modkit.WithName("ingest")}, mods...)...)

	store, err := state.NewStore(opts.StateDir)
	if err != nil {
		return nil, err
	}

	plexClient := deps.Plex
	if plexClient == nil {
		plexClient = plex.NewClient(plex.Options{
			BaseURL:    opts.PlexBaseURL,
			APIKey:     opts.PlexAPIKey,
			CustomerID: opts.PlexCustomerID,
			MaxRetries: opts.MaxRetries,
			RetryBase:  opts.RetryDelay,
		})
	}
	dsClient := deps.DS
	if dsClient == nil {
		dsClient = plex.NewDataSource(plex.DSOptions{
			Host:       opts.DSHost,
			Username:   opts.DSUsername,
			Password:   opts.DSPassword,
			MaxRetries: opts.MaxRetries,
			RetryBase:  opts.RetryDelay,
		})
	}
	rawClient := deps.Raw
	if rawClient == nil {
		rawClient = cdf.NewClient(cdf.Options{
			Host:         opts.CDFHost,
			Project:      opts.CDFProject,
			ClientID:     opts.CDFClientID,
			ClientSecret: opts.CDFClientSecret,
			TokenURL:     opts.CDFTokenURL,
		})
	}
	meta := deps.Meta
	if meta == nil {
		meta = cdf.NewInstances(rawClient, opts.ExtractorSpace)
	}

	sh := extractors.NewShared(plexClient, opts.PlexCustomerID, opts.Facility, opts.BatchSize)
	reg := map[string]domain.Extractor{}
	order := []string{"jobs", "production", "inventory", "performance", "quality", "master"}
	reg["jobs"] = extractors.NewJobs(sh, opts.JobsLookback)
	reg["production"] = extractors.NewProduction(sh, opts.ProductionLookback)
	reg["inventory"] = extractors.NewInventory(sh, opts.InventoryLookback, store)
	reg["performance"] = extractors.NewPerformance(sh, opts.PerformanceLookback)
	reg["quality"] = extractors.NewQuality(sh, dsClient, opts.QualityBatchSize, opts.QualityDaysBack, opts.QualityStartDate)
	reg["master"] = extractors.NewMaster(sh, opts.MasterLookback)

	m := &Module{
		built:  built,
		log:    *logger.Named("ingest"),
		opts:   opts,
		engine: service.NewEngine(store, sink.New(rawClient, opts.RawDatabase, opts.BatchSize), newMetaWriter(meta)),
		board:  service.NewBoard(),
		reg:    reg,
		order:  order,
	}
	return m, nil
}

// Name implements modkit.Module
func (m *Module) Name() string { return m.built.Name }

// Ports implements modkit.Module
func (m *Module) Ports() any { return Ports(m) }

// Engine returns the shared cycle engine
func (m *Module) Engine() *service.Engine { return m.engine }

// Board returns the status board
func (m *Module) Board() *service.Board { return m.board }

// Extractors resolves a selection by name, in registration order. An
// empty selection means all six
func (m *Module) Extractors(names ...string) ([]domain.Extractor, error) {
	names = pstrings.IfEmpty(names, m.order)
	out := make([]domain.Extractor, 0, len(names))
	for _, n := range names {
		ex, ok := m.reg[n]
		if !ok {
			return nil, perr.InvalidArgf("unknown extractor %q", n)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Runner builds a sequential runner over the selection
func (m *Module) Runner(interval time.Duration, maxIterations int, names ...string) (*service.Runner, error) {
	exs, err := m.Extractors(names...)
	if err != nil {
		return nil, err
	}
	return service.NewRunner(m.engine, m.board, exs, interval, maxIterations), nil
}

// Orchestrator builds the concurrent scheduler over the selection
func (m *Module) Orchestrator(opts service.OrchestratorOptions, names ...string) (*service.Orchestrator, error) {
	exs, err := m.Extractors(names...)
	if err != nil {
		return nil, err
	}
	return service.NewOrchestrator(m.engine, m.board, exs, opts), nil
}

// metaWriter adapts the best-effort instances client to the engine's
// metadata port
type metaWriter struct {
	inst *cdf.Instances
}

func newMetaWriter(inst *cdf.Instances) domain.MetadataWriter {
	return &metaWriter{inst: inst}
}

// RecordRun emits one extraction-run node per cycle
func (w *metaWriter) RecordRun(ctx context.Context, res domain.CycleResult) {
	props := map[string]any{
		"extractor": res.Extractor,
		"status":    string(res.Status),
		"fetched":   res.Fetched,
		"written":   res.Written,
		"dropped":   res.Dropped,
	}
	if wm := ptime.Ptr(res.Watermark); wm != nil {
		props["watermark"] = timeparse.Format(*wm)
	}
	if res.Err != nil {
		props["error"] = res.Err.Error()
	}
	w.inst.Apply(ctx, []cdf.Node{{
		ExternalID: res.Extractor + ":" + res.RunID,
		Properties: props,
	}})
}
