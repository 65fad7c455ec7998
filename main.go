package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/flock/bridge"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml or config.toml (empty = use defaults)")
	numAgents := flag.Int("agents", -1, "Initial and target agent count (-1 = use config)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = run until interrupted)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for a snapshot written on exit")
	restore := flag.String("restore", "", "Snapshot file to restore agents from")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (empty = disabled)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "Log format: json or text")
	logStats := flag.Bool("log-stats", true, "Log perf and flock stats periodically")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config, then time-based)")
	workers := flag.Int("workers", 0, "Force workers (0 = min(GOMAXPROCS, parallel.max_workers))")
	mirror := flag.Bool("mirror", false, "Mirror agents into an ECS world every tick")

	flag.Parse()

	logger := newLogger(*logFormat, *logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *numAgents >= 0 {
		cfg.Lifecycle.Initial = *numAgents
		cfg.Lifecycle.Target = *numAgents
	}

	opts := game.Options{
		Logger:      logger,
		Workers:     *workers,
		Seed:        *seed,
		OutputDir:   *outputDir,
		SnapshotDir: *snapshotDir,
		LogStats:    *logStats,
	}

	if *restore != "" {
		snap, err := telemetry.LoadSnapshot(*restore)
		if err != nil {
			logger.Error("failed to load snapshot", "error", err)
			os.Exit(1)
		}
		cfg.World.Width = snap.WorldWidth
		cfg.World.Height = snap.WorldHeight
		cfg.Lifecycle.Initial = len(snap.Agents)
		cfg.Lifecycle.Target = len(snap.Agents)
		if opts.Seed == 0 {
			opts.Seed = snap.Seed
		}
		opts.Restore = snap
		logger.Info("restoring snapshot", "path", *restore, "tick", snap.Tick, "agents", len(snap.Agents))
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		metrics, err := telemetry.NewMetrics(nil)
		if err != nil {
			logger.Error("failed to initialise metrics", "error", err)
			os.Exit(1)
		}
		opts.Metrics = metrics
	}
	metricsSrv := serveMetrics(*metricsAddr, opts.Metrics, logger)

	sim, err := game.New(cfg, opts)
	if err != nil {
		logger.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	var m *bridge.Mirror
	if *mirror {
		m = bridge.NewMirror(ecs.NewWorld())
		sim.OnRelease(m.Release)
		m.Sync(sim.Store())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting headless simulation",
		"agents", sim.Len(),
		"max_ticks", *maxTicks,
		"dt", cfg.Physics.DT,
	)

	start := time.Now()
	for ctx.Err() == nil {
		sim.Step(cfg.Physics.DT)
		if m != nil {
			m.Sync(sim.Store())
		}

		if *maxTicks > 0 && int(sim.Tick()) >= *maxTicks {
			logger.Info("max ticks reached", "tick", sim.Tick())
			break
		}
	}

	elapsed := time.Since(start)
	logger.Info("simulation finished",
		"tick", sim.Tick(),
		"agents", sim.Len(),
		"elapsed", elapsed.Round(time.Millisecond),
		"ticks_per_sec", float64(sim.Tick())/elapsed.Seconds(),
		"perf", sim.PerfStats(),
	)

	if *snapshotDir != "" {
		if _, err := sim.SaveSnapshot(); err != nil {
			logger.Error("failed to save snapshot", "error", err)
		}
	}
	if err := sim.Close(); err != nil {
		logger.Error("failed to close output", "error", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
}

func serveMetrics(addr string, metrics *telemetry.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server exited", "error", err)
		}
	}()

	logger.Info("serving Prometheus metrics", "addr", addr)
	return srv
}
