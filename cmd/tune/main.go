package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/smartnav/config"
)

// logRow is one line of tune_log.csv.
type logRow struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	SuccessRate    float64 `csv:"success_rate"`
	Progress       float64 `csv:"progress"`
	Episodes       int     `csv:"episodes"`
	FailedSessions int     `csv:"failed_sessions"`
	TurnGain       float64 `csv:"turn_gain"`
	SlowAngle      float64 `csv:"slow_angle"`
	JumpRange      float64 `csv:"jump_range"`
	ClimbThreshold float64 `csv:"climb_threshold"`
	ElapsedSec     float64 `csv:"elapsed_sec"`
}

// csvLog appends rows to a CSV file, writing the header once.
type csvLog[T any] struct {
	f       *os.File
	written bool
}

func createLog[T any](path string) (*csvLog[T], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &csvLog[T]{f: f}, nil
}

func (l *csvLog[T]) Close() error { return l.f.Close() }

func (l *csvLog[T]) write(row T) error {
	rows := []T{row}
	if !l.written {
		l.written = true
		return gocsv.Marshal(rows, l.f)
	}
	return gocsv.MarshalWithoutHeaders(rows, l.f)
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	mapFolder := flag.String("map-folder", "", "Folder of map directories (empty = use config)")
	agents := flag.Int("agents", 8, "Agents per session")
	maxTicks := flag.Int("max-ticks", 5000, "Ticks per session")
	seeds := flag.Int("seeds", 3, "Sessions per evaluation, each with its own seed")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	stepSize := flag.Float64("step-size", 0.3, "Initial CMA-ES step size in normalized units")
	outputDir := flag.String("output", "", "Output directory for results")
	target := flag.String("target", "heuristic", "What to tune: heuristic (CMA-ES) or network (1+1 evolution)")
	generations := flag.Int("generations", 200, "Network generations")
	strength := flag.Float64("strength", 0.1, "Initial network mutation strength")
	hidden := flag.Int("hidden", 32, "Network hidden units")
	weights := flag.String("weights", "", "Starting network weights (empty = random)")
	seed := flag.Int64("seed", 1, "RNG seed for network initialization and mutation")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if *outputDir == "" {
		fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fatal("failed to create output directory", "error", err)
	}
	if err := config.Init(*configPath); err != nil {
		fatal("failed to load config", "error", err)
	}

	params := NewParamVector()
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, int32(*maxTicks), evalSeeds, *agents, *mapFolder, config.Cfg())

	if *target == "network" {
		tuneNetwork(evaluator, *outputDir, *weights, *hidden, *seed, evolveOptions{
			Generations: *generations,
			Strength:    *strength,
			OutputDir:   *outputDir,
		})
		return
	}
	if *target != "heuristic" {
		fatal("unknown target", "target", *target)
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + 3*params.Dim()/2
	}

	log, err := createLog[logRow](filepath.Join(*outputDir, "tune_log.csv"))
	if err != nil {
		fatal("failed to create log file", "error", err)
	}
	defer log.Close()

	var (
		evals int
		best  Score
		bestX []float64
	)
	start := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			sc := evaluator.Evaluate(raw)
			evals++
			if bestX == nil || sc.Fitness < best.Fitness {
				best, bestX = sc, raw
			}

			p := params.Params(raw)
			elapsed := time.Since(start)
			if err := log.write(logRow{
				Eval:           evals,
				Fitness:        sc.Fitness,
				SuccessRate:    sc.SuccessRate,
				Progress:       sc.Progress,
				Episodes:       sc.Episodes,
				FailedSessions: sc.Failed,
				TurnGain:       p.TurnGain,
				SlowAngle:      p.SlowAngle,
				JumpRange:      p.JumpRange,
				ClimbThreshold: p.ClimbThreshold,
				ElapsedSec:     elapsed.Seconds(),
			}); err != nil {
				slog.Error("failed to write log row", "error", err)
			}

			eta := time.Duration(*maxEvals-evals) * (elapsed / time.Duration(evals))
			slog.Info("evaluation",
				"eval", evals,
				"max_evals", *maxEvals,
				"success_rate", sc.SuccessRate,
				"progress", sc.Progress,
				"episodes", sc.Episodes,
				"best_success_rate", best.SuccessRate,
				"elapsed", elapsed.Round(time.Second).String(),
				"eta", eta.Round(time.Second).String(),
			)
			return sc.Fitness
		},
	}

	slog.Info("starting heuristic tuning",
		"params", params.Dim(),
		"population", popSize,
		"max_evals", *maxEvals,
		"seeds", *seeds,
		"agents", *agents,
		"ticks", *maxTicks,
	)

	// Seeds already run in parallel inside Evaluate.
	result, err := optimize.Minimize(problem, params.Normalize(params.DefaultVector()),
		&optimize.Settings{FuncEvaluations: *maxEvals},
		&optimize.CmaEsChol{InitStepSize: *stepSize, Population: popSize})
	if err != nil {
		slog.Warn("tuning ended early", "error", err)
	}
	if bestX == nil && result != nil {
		bestX = params.Clamp(params.Denormalize(result.X))
	}
	if bestX == nil {
		fatal("no evaluations completed")
	}

	bestParams := params.Params(bestX)
	slog.Info("tuning complete",
		"evals", evals,
		"elapsed", time.Since(start).Round(time.Second).String(),
		"fitness", best.Fitness,
		"success_rate", best.SuccessRate,
		"turn_gain", bestParams.TurnGain,
		"slow_angle", bestParams.SlowAngle,
		"jump_range", bestParams.JumpRange,
		"climb_threshold", bestParams.ClimbThreshold,
	)

	outPath := filepath.Join(*outputDir, "best_heuristic.yaml")
	if err := bestParams.WriteYAML(outPath); err != nil {
		fatal("failed to write best params", "error", err)
	}
	slog.Info("best params saved, use with --heuristic", "path", outPath)
}
