package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/smartnav/game"
	"github.com/pthm-cable/smartnav/telemetry"
)

func TestNormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()

	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-12 {
			t.Errorf("%s: %f -> %f", pv.Specs[i].Name, raw[i], back[i])
		}
	}
}

func TestDefaultsWithinBounds(t *testing.T) {
	pv := NewParamVector()
	for i, v := range pv.DefaultVector() {
		s := pv.Specs[i]
		if v < s.Min || v > s.Max {
			t.Errorf("%s default %f outside [%f, %f]", s.Name, v, s.Min, s.Max)
		}
	}
	if got := pv.Params(pv.DefaultVector()); got != game.DefaultHeuristicParams() {
		t.Errorf("Params(defaults) = %+v", got)
	}
}

func TestVectorFollowsSpecs(t *testing.T) {
	pv := NewParamVector()
	p := game.HeuristicParams{TurnGain: 1, SlowAngle: 2, JumpRange: 0.3, ClimbThreshold: 0.4}

	got := pv.Vector(p)
	want := []float64{1, 2, 0.3, 0.4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s = %f, want %f", pv.Specs[i].Name, got[i], want[i])
		}
	}
	if back := pv.Params(got); back != p {
		t.Errorf("Params(Vector(p)) = %+v, want %+v", back, p)
	}
}

func TestParamsClamps(t *testing.T) {
	pv := NewParamVector()
	p := pv.Params([]float64{100, -1, 0.3, 2})

	if p.TurnGain != 6 || p.SlowAngle != 0.3 || p.JumpRange != 0.3 || p.ClimbThreshold != 0.95 {
		t.Errorf("Params = %+v", p)
	}
}

func TestScoreSession(t *testing.T) {
	tests := []struct {
		name     string
		episodes []telemetry.EpisodeRecord
		want     Score
	}{
		{"none", nil, Score{}},
		{"all wins at goal", []telemetry.EpisodeRecord{{Success: true, Closest: 0}},
			Score{Fitness: -1.1, SuccessRate: 1, Progress: 1, Episodes: 1}},
		{"half wins", []telemetry.EpisodeRecord{
			{Success: true, Closest: 0},
			{Success: false, Closest: 40},
		}, Score{Fitness: -(0.5 + 0.05), SuccessRate: 0.5, Progress: 0.5, Episodes: 2}},
		{"infinite closest", []telemetry.EpisodeRecord{{Closest: math.Inf(1)}},
			Score{Episodes: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreSession(tt.episodes, 40)
			if math.Abs(got.Fitness-tt.want.Fitness) > 1e-12 ||
				math.Abs(got.SuccessRate-tt.want.SuccessRate) > 1e-12 ||
				math.Abs(got.Progress-tt.want.Progress) > 1e-12 ||
				got.Episodes != tt.want.Episodes {
				t.Errorf("scoreSession() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
