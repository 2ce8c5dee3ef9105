package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	mapFolder := flag.String("map-folder", "", "Folder of map directories (empty = use config)")
	agents := flag.Int("agents", 0, "Number of agents (0 = use config)")
	policy := flag.String("policy", game.PolicyHeuristic, "Policy: heuristic, random or network")
	weights := flag.String("weights", "", "Network weights file for the network policy")
	heuristic := flag.String("heuristic", "", "Heuristic params YAML, e.g. from cmd/tune")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, episode archive and config snapshot")
	dbPath := flag.String("db", "", "SQLite database for run history (empty = disabled)")
	seed := flag.Int64("seed", 0, "RNG seed for map shuffling and policies (unset = config seed)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = until interrupted)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	seedSet := false
	flag.Visit(func(f *flag.Flag) { seedSet = seedSet || f.Name == "seed" })
	rngSeed := sessionSeed(*seed, seedSet, config.Cfg())

	g, err := game.NewGame(game.Options{
		Seed:           rngSeed,
		MapFolder:      *mapFolder,
		Agents:         *agents,
		PolicyName:     *policy,
		Weights:        *weights,
		Heuristic:      *heuristic,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		DBPath:         *dbPath,
	})
	if err != nil {
		slog.Error("failed to start training session", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting training",
		"seed", rngSeed,
		"policy", *policy,
		"max_ticks", *maxTicks,
	)

	start := time.Now()
	runErr := g.Run(int32(*maxTicks), func() bool { return ctx.Err() != nil })
	if ctx.Err() != nil {
		slog.Info("interrupted", "tick", g.Tick())
	}
	if err := g.Close(); err != nil {
		slog.Error("failed to close training session", "error", err)
	}
	if runErr != nil {
		slog.Error("training stopped", "error", runErr, "tick", g.Tick())
		os.Exit(1)
	}

	slog.Info("training finished",
		"tick", g.Tick(),
		"episodes", g.EpisodeCount(),
		"success_rate", g.SuccessRate(),
		"elapsed", time.Since(start).String(),
	)
}

// sessionSeed picks the --seed flag when it was given and the config seed
// otherwise. Zero is an ordinary seed.
func sessionSeed(flagSeed int64, flagSet bool, cfg *config.Config) int64 {
	if flagSet {
		return flagSeed
	}
	return cfg.Seed
}
