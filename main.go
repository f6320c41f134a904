package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/hideout/config"
	"github.com/pthm-cable/hideout/sim"
	"github.com/pthm-cable/hideout/vizserver"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	verbose := flag.Bool("verbose", false, "Log every search at debug level")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config")
	seed := flag.Int64("seed", 0, "Scene seed (0 = use config)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	vizAddr := flag.String("viz-addr", "", "Listen address for the viz server (empty = use config)")
	realtime := flag.Bool("realtime", false, "Pace ticks to wall-clock time")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *seed != 0 {
		cfg.Scene.Seed = *seed
	}
	if *vizAddr != "" {
		cfg.Viz.Addr = *vizAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := sim.New(cfg, sim.Options{
		OutputDir: *outputDir,
		LogStats:  *logStats,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()

	if cfg.Viz.Addr != "" {
		hub, err := vizserver.NewHub(s.Snapshot())
		if err != nil {
			slog.Error("failed to create viz hub", "error", err)
			os.Exit(1)
		}
		s.SetSink(hub)
		go func() {
			if err := vizserver.NewService(cfg.Viz.Addr, hub).ListenAndServe(ctx); err != nil {
				slog.Error("viz server stopped", "error", err)
				stop()
			}
		}()
	}

	slog.Info("starting simulation",
		"seed", cfg.Scene.Seed,
		"max_ticks", *maxTicks,
		"viz_addr", cfg.Viz.Addr,
		"realtime", *realtime,
	)

	if *realtime {
		err = runRealtime(ctx, s, int32(*maxTicks), time.Duration(cfg.Sim.DT*float64(time.Second)))
	} else {
		err = s.Run(ctx, int32(*maxTicks))
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("simulation failed", "error", err)
		return
	}
	slog.Info("simulation stopped", "tick", s.Tick())
}

// runRealtime steps once per dt of wall-clock time.
func runRealtime(ctx context.Context, s *sim.Simulation, maxTicks int32, dt time.Duration) error {
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	for maxTicks <= 0 || s.Tick() < maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
	return nil
}
