// Package main generates procedural training maps: one directory per map
// holding geometry.yaml and spawn_goals.csv.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/smartnav/maps"
)

func main() {
	def := maps.DefaultGenConfig()

	out := flag.String("out", "maps", "Output folder")
	count := flag.Int("count", 10, "Number of maps")
	seed := flag.Int64("seed", 0, "Base RNG seed (0 = time-based)")
	pairs := flag.Int("pairs", def.Pairs, "Spawn/goal pairs per map")
	size := flag.Float64("size", def.Size, "Map extent along X and Z")
	cell := flag.Float64("cell", def.Cell, "Terrain column size")
	maxStep := flag.Int("max-step", def.MaxStep, "Tallest terrain column")
	pads := flag.Int("jump-pads", def.JumpPads, "Jump pads per map")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	baseSeed := *seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	cfg := def
	cfg.Pairs = *pairs
	cfg.Size = *size
	cfg.Cell = *cell
	cfg.MaxStep = *maxStep
	cfg.JumpPads = *pads

	for i := 0; i < *count; i++ {
		name := fmt.Sprintf("map_%03d", i)
		cfg.Seed = baseSeed + int64(i)

		geo, sg, err := maps.Generate(name, cfg)
		if err != nil {
			slog.Error("failed to generate map", "map", name, "error", err)
			os.Exit(1)
		}

		dir := filepath.Join(*out, name)
		if err := maps.WriteGeometry(dir, geo); err != nil {
			slog.Error("failed to write geometry", "map", name, "error", err)
			os.Exit(1)
		}
		if err := maps.WriteSpawnGoals(dir, sg); err != nil {
			slog.Error("failed to write spawn goals", "map", name, "error", err)
			os.Exit(1)
		}
		slog.Info("map written", "map", name, "blocks", len(geo.Blocks), "pairs", len(sg), "seed", cfg.Seed)
	}
}
