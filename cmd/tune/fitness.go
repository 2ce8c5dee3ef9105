package main

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/game"
	"github.com/pthm-cable/smartnav/systems"
	"github.com/pthm-cable/smartnav/telemetry"
)

// FitnessEvaluator runs headless training sessions and scores a policy by
// success rate.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int32
	seeds      []int64
	agents     int
	mapFolder  string
	baseConfig *config.Config
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int32, seeds []int64, agents int, mapFolder string, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		agents:     agents,
		mapFolder:  mapFolder,
		baseConfig: baseCfg,
	}
}

// Score is the outcome of evaluating one parameter vector. Fitness is what
// the optimizer minimizes; the rest is reported alongside it.
type Score struct {
	Fitness     float64
	SuccessRate float64
	Progress    float64 // mean of 1 - closest/playground over episodes
	Episodes    int
	Failed      int // sessions that errored
}

// Evaluate scores a raw heuristic parameter vector.
func (fe *FitnessEvaluator) Evaluate(x []float64) Score {
	params := fe.params.Params(x)
	return fe.EvaluatePolicy(func() game.Policy {
		return game.NewHeuristicPolicy(systems.NewPerception(fe.baseConfig.Perception), params)
	})
}

// EvaluatePolicy averages the score of one session per seed; sessions run in
// parallel, each with a policy from newPolicy. A session that fails to start
// or run scores zero.
func (fe *FitnessEvaluator) EvaluatePolicy(newPolicy func() game.Policy) Score {
	scores := make([]Score, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			episodes, err := fe.runSession(newPolicy(), seed)
			if err != nil {
				slog.Warn("tuning session failed", "seed", seed, "error", err)
				scores[i] = Score{Failed: 1}
				return
			}
			scores[i] = scoreSession(episodes, fe.baseConfig.Normalization.PlayGroundSize)
		}()
	}
	wg.Wait()

	var out Score
	for _, sc := range scores {
		out.Fitness += sc.Fitness
		out.SuccessRate += sc.SuccessRate
		out.Progress += sc.Progress
		out.Episodes += sc.Episodes
		out.Failed += sc.Failed
	}
	n := float64(len(scores))
	out.Fitness /= n
	out.SuccessRate /= n
	out.Progress /= n
	return out
}

// runSession runs one session for maxTicks and returns its episodes.
func (fe *FitnessEvaluator) runSession(policy game.Policy, seed int64) ([]telemetry.EpisodeRecord, error) {
	cfg := *fe.baseConfig
	cfg.Telemetry.KeepEpisodes = 0
	g, err := game.NewGame(game.Options{
		Seed:      seed,
		MapFolder: fe.mapFolder,
		Agents:    fe.agents,
		Config:    &cfg,
		Policy:    policy,
	})
	if err != nil {
		return nil, err
	}
	runErr := g.Run(fe.maxTicks, nil)
	episodes := g.Episodes()
	return episodes, errors.Join(runErr, g.Close())
}

// scoreSession scores one session: the success rate dominates and mean
// progress toward the goal breaks ties.
// Fitness: -(successRate + 0.1 × meanProgress)
func scoreSession(episodes []telemetry.EpisodeRecord, playground float64) Score {
	if len(episodes) == 0 {
		return Score{}
	}
	var wins int
	var progress float64
	for _, ep := range episodes {
		if ep.Success {
			wins++
		}
		progress += 1 - clamp01(ep.Closest/playground)
	}
	n := float64(len(episodes))
	sc := Score{
		SuccessRate: float64(wins) / n,
		Progress:    progress / n,
		Episodes:    len(episodes),
	}
	sc.Fitness = -(sc.SuccessRate + 0.1*sc.Progress)
	return sc
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
