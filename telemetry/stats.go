package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated training statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Episodes finished during the window, by outcome
	Episodes  int `csv:"episodes"`
	Wins      int `csv:"wins"`
	Killed    int `csv:"killed"`
	Fell      int `csv:"fell"`
	Stagnated int `csv:"stagnated"`

	WindowSuccess  float64 `csv:"window_success"`  // wins / episodes in this window
	RollingSuccess float64 `csv:"rolling_success"` // moving rate over the last N episodes

	// Episode return distribution
	ReturnMean float64 `csv:"return_mean"`
	ReturnStd  float64 `csv:"return_std"`
	ReturnP10  float64 `csv:"return_p10"`
	ReturnP50  float64 `csv:"return_p50"`
	ReturnP90  float64 `csv:"return_p90"`

	// Episode length in physics steps
	StepsMean float64 `csv:"steps_mean"`
	StepsP90  float64 `csv:"steps_p90"`

	// Map slot activity
	MapLoads    int `csv:"map_loads"`
	MapUnloads  int `csv:"map_unloads"`
	ActiveSlots int `csv:"active_slots"`
	TotalSlots  int `csv:"total_slots"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarises a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeDistribution calculates mean, population std and percentiles.
// values is left unmodified.
func ComputeDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("episodes", s.Episodes),
		slog.Int("wins", s.Wins),
		slog.Int("killed", s.Killed),
		slog.Int("fell", s.Fell),
		slog.Int("stagnated", s.Stagnated),
		slog.Float64("window_success", s.WindowSuccess),
		slog.Float64("rolling_success", s.RollingSuccess),
		slog.Float64("return_mean", s.ReturnMean),
		slog.Float64("return_std", s.ReturnStd),
		slog.Float64("return_p10", s.ReturnP10),
		slog.Float64("return_p50", s.ReturnP50),
		slog.Float64("return_p90", s.ReturnP90),
		slog.Float64("steps_mean", s.StepsMean),
		slog.Float64("steps_p90", s.StepsP90),
		slog.Int("map_loads", s.MapLoads),
		slog.Int("map_unloads", s.MapUnloads),
		slog.Int("active_slots", s.ActiveSlots),
		slog.Int("total_slots", s.TotalSlots),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"episodes", s.Episodes,
		"wins", s.Wins,
		"killed", s.Killed,
		"fell", s.Fell,
		"stagnated", s.Stagnated,
		"window_success", s.WindowSuccess,
		"rolling_success", s.RollingSuccess,
		"return_mean", s.ReturnMean,
		"return_p50", s.ReturnP50,
		"steps_mean", s.StepsMean,
		"map_loads", s.MapLoads,
		"map_unloads", s.MapUnloads,
		"active_slots", s.ActiveSlots,
	)
}
