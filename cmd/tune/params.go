// Package main provides CMA-ES tuning of the heuristic navigation policy.
package main

import (
	"github.com/pthm-cable/smartnav/game"
)

// ParamSpec binds one tunable HeuristicParams field to its search bounds.
type ParamSpec struct {
	Name  string
	Min   float64
	Max   float64
	Field func(*game.HeuristicParams) *float64
}

// ParamVector maps between optimizer vectors and HeuristicParams. The
// optimizer works in a unit cube: 0 and 1 are each spec's Min and Max.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector returns the heuristic policy's search space.
func NewParamVector() *ParamVector {
	return &ParamVector{Specs: []ParamSpec{
		{"turn_gain", 0.5, 6, func(p *game.HeuristicParams) *float64 { return &p.TurnGain }},
		{"slow_angle", 0.3, 3.1, func(p *game.HeuristicParams) *float64 { return &p.SlowAngle }},
		{"jump_range", 0.05, 0.6, func(p *game.HeuristicParams) *float64 { return &p.JumpRange }},
		{"climb_threshold", 0.1, 0.95, func(p *game.HeuristicParams) *float64 { return &p.ClimbThreshold }},
	}}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int { return len(pv.Specs) }

// Vector reads p into a raw vector in Specs order.
func (pv *ParamVector) Vector(p game.HeuristicParams) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		v[i] = *s.Field(&p)
	}
	return v
}

// DefaultVector is the raw vector of game.DefaultHeuristicParams.
func (pv *ParamVector) DefaultVector() []float64 {
	return pv.Vector(game.DefaultHeuristicParams())
}

// Normalize maps raw values into the unit cube.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = (raw[i] - s.Min) / (s.Max - s.Min)
	}
	return out
}

// Denormalize maps unit-cube values back to raw values. The optimizer may
// step outside the cube; Clamp handles that.
func (pv *ParamVector) Denormalize(unit []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = s.Min + unit[i]*(s.Max-s.Min)
	}
	return out
}

// Clamp bounds each value to its spec.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = min(max(v[i], s.Min), s.Max)
	}
	return out
}

// Params builds heuristic params from a raw vector after clamping it. Fields
// without a spec keep their defaults.
func (pv *ParamVector) Params(raw []float64) game.HeuristicParams {
	p := game.DefaultHeuristicParams()
	for i, v := range pv.Clamp(raw) {
		*pv.Specs[i].Field(&p) = v
	}
	return p
}
