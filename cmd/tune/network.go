package main

import (
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/game"
	"github.com/pthm-cable/smartnav/neural"
)

// netRow is one line of network_log.csv.
type netRow struct {
	Generation  int     `csv:"generation"`
	Fitness     float64 `csv:"fitness"`
	SuccessRate float64 `csv:"success_rate"`
	Progress    float64 `csv:"progress"`
	Episodes    int     `csv:"episodes"`
	Accepted    bool    `csv:"accepted"`
	Strength    float64 `csv:"strength"`
	BestFitness float64 `csv:"best_fitness"`
}

// evolveOptions configures evolveNetwork.
type evolveOptions struct {
	Generations int
	Strength    float64 // initial mutation standard deviation
	OutputDir   string
}

// evolveNetwork improves a policy network with a (1+1) evolution strategy:
// each generation mutates a clone of the incumbent and keeps it when it
// scores at least as well. Mutation strength follows the one-fifth success
// rule. The best network is saved as best_network.json.
func evolveNetwork(fe *FitnessEvaluator, start *neural.FFNN, rng *rand.Rand, opts evolveOptions, log *csvLog[netRow]) (*neural.FFNN, Score, error) {
	score := func(nn *neural.FFNN) Score {
		return fe.EvaluatePolicy(func() game.Policy { return game.NewNetworkPolicy(nn.Clone()) })
	}

	best := start
	bestScore := score(best)
	strength := opts.Strength
	began := time.Now()

	for gen := 1; gen <= opts.Generations; gen++ {
		child := best.Clone()
		child.Mutate(rng, strength)
		sc := score(child)

		accepted := sc.Fitness <= bestScore.Fitness
		if accepted {
			best, bestScore = child, sc
			strength *= 1.5
		} else {
			strength *= 0.9
		}
		strength = min(max(strength, 1e-4), 1)

		if err := log.write(netRow{
			Generation:  gen,
			Fitness:     sc.Fitness,
			SuccessRate: sc.SuccessRate,
			Progress:    sc.Progress,
			Episodes:    sc.Episodes,
			Accepted:    accepted,
			Strength:    strength,
			BestFitness: bestScore.Fitness,
		}); err != nil {
			slog.Error("failed to write log row", "error", err)
		}
		slog.Info("generation",
			"generation", gen,
			"success_rate", sc.SuccessRate,
			"accepted", accepted,
			"strength", strength,
			"best_success_rate", bestScore.SuccessRate,
			"elapsed", time.Since(began).Round(time.Second).String(),
		)
	}

	path := filepath.Join(opts.OutputDir, "best_network.json")
	if err := best.Save(path); err != nil {
		return best, bestScore, err
	}
	slog.Info("best network saved, use with --policy network --weights", "path", path)
	return best, bestScore, nil
}

// tuneNetwork loads or creates the starting network and runs evolveNetwork,
// logging to network_log.csv.
func tuneNetwork(fe *FitnessEvaluator, outDir, weights string, hidden int, seed int64, opts evolveOptions) {
	rng := rand.New(rand.NewSource(seed))
	obsSize := fe.baseConfig.Derived.ObservationSize

	var start *neural.FFNN
	if weights == "" {
		start = neural.NewFFNN(rng, obsSize, hidden, config.ActionSize)
	} else {
		nn, err := neural.Load(weights)
		if err != nil {
			fatal("failed to load weights", "path", weights, "error", err)
		}
		if in, _, out := nn.Dims(); in != obsSize || out != config.ActionSize {
			fatal("network shape does not match observation", "inputs", in, "outputs", out, "want_inputs", obsSize)
		}
		start = nn
	}

	log, err := createLog[netRow](filepath.Join(outDir, "network_log.csv"))
	if err != nil {
		fatal("failed to create log file", "error", err)
	}
	defer log.Close()

	slog.Info("starting network tuning",
		"inputs", obsSize,
		"hidden", hidden,
		"generations", opts.Generations,
		"strength", opts.Strength,
	)
	_, best, err := evolveNetwork(fe, start, rng, opts, log)
	if err != nil {
		slog.Error("failed to save best network", "error", err)
		return
	}
	slog.Info("network tuning complete", "fitness", best.Fitness, "success_rate", best.SuccessRate)
}
