// Command plexingest-runner pulls manufacturing execution data from a
// Plex MES into the downstream raw landing tables
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"plexingest/internal/core/version"
	"plexingest/internal/modkit"
	registry "plexingest/internal/modkit/module"
	"plexingest/internal/platform/config"
	"plexingest/internal/platform/logger"
	ingest "plexingest/internal/services/ingest/module"
	"plexingest/internal/services/ingest/service"
	"plexingest/internal/services/ops"
)

const gracefulBudget = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		extractorsFlag = flag.String("extractors", "", "comma separated extractor names (default all)")
		intervalFlag   = flag.Int("interval", 0, "seconds between iterations, 0 runs once")
		maxIterFlag    = flag.Int("max-iterations", 0, "iteration budget, 0 means unbounded when looping")
		logLevelFlag   = flag.String("log-level", "", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
		concurrentFlag = flag.Bool("concurrent", false, "run extractors as independent periodic tasks")
	)
	flag.Parse()

	if lvl := normalizeLevel(*logLevelFlag); lvl != "" {
		mustSetEnv("LOG_LEVEL", lvl)
	}
	logger.Init(logger.FromEnv())
	log := logger.Named("main")

	bi := version.Info()
	log.Info().Str("version", bi.Version).Str("commit", bi.Commit).Msg("starting plexingest-runner")

	cfg := config.New()
	opts, err := ingest.FromConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		return 1
	}

	mod, err := ingest.New(modkit.Deps{Log: *logger.Get(), Cfg: cfg}, opts)
	if err != nil {
		log.Error().Err(err).Msg("ingest module init failed")
		return 1
	}
	registry.Register(mod.Name(), mod.Ports())

	names := splitNames(*extractorsFlag)
	interval := time.Duration(*intervalFlag) * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opsSrv := ops.New(mod.Board(), ops.Options{
		Enabled: cfg.MayBool("OPS_HTTP_ENABLED", false),
		Port:    cfg.MayString("OPS_HTTP_PORT", "4100"),
	})
	go func() {
		if err := opsSrv.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("ops server stopped")
		}
	}()

	if *concurrentFlag {
		orch, err := mod.Orchestrator(service.OrchestratorOptions{
			Period:           interval,
			GracefulShutdown: gracefulBudget,
		}, names...)
		if err != nil {
			log.Error().Err(err).Msg("orchestrator init failed")
			return 1
		}
		watchSignals(log, cancel, nil)
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("orchestrator failed")
			return 1
		}
		return 0
	}

	runner, err := mod.Runner(interval, *maxIterFlag, names...)
	if err != nil {
		log.Error().Err(err).Msg("runner init failed")
		return 1
	}
	watchSignals(log, cancel, runner.Stop)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("runner failed")
		return 1
	}
	return 0
}

// watchSignals wires two-stage shutdown: the first signal requests a
// soft stop so the extractor in flight can finish, then the graceful
// budget (or a second signal) hard-cancels the context
func watchSignals(log *logger.Logger, cancel context.CancelFunc, softStop func()) {
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
		if softStop != nil {
			softStop()
		} else {
			cancel()
		}
		select {
		case sig = <-sigc:
			log.Warn().Str("signal", sig.String()).Msg("second signal, cancelling now")
		case <-time.After(gracefulBudget):
			log.Warn().Dur("budget", gracefulBudget).Msg("graceful budget elapsed, cancelling")
		}
		cancel()
	}()
}

func splitNames(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// normalizeLevel maps the CLI's level names onto the logger's
func normalizeLevel(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return ""
	case "CRITICAL":
		return "fatal"
	case "WARNING":
		return "warn"
	default:
		return strings.ToLower(s)
	}
}

func mustSetEnv(k, v string) {
	if err := os.Setenv(k, v); err != nil {
		panic(err)
	}
}
