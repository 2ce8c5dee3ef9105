package maps

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r3"
)

// GenConfig controls procedural map generation.
type GenConfig struct {
	Seed        int64
	Size        float64 // map extent along X and Z
	Cell        float64 // side of one terrain column
	MaxStep     int     // tallest column, in whole units
	Pairs       int     // spawn/goal pairs to place
	MinDistance float64 // minimum spawn-to-goal distance
	LavaLevel   float64 // hazard noise above this is lava
	WaterLevel  float64 // hazard noise above this (and below LavaLevel) is water
	JumpPads    int
}

// DefaultGenConfig returns settings that produce 40x40 maps an agent can
// traverse with single jumps.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Size:        40,
		Cell:        4,
		MaxStep:     2,
		Pairs:       20,
		MinDistance: 10,
		LavaLevel:   0.82,
		WaterLevel:  0.72,
		JumpPads:    2,
	}
}

// column is one generated terrain column.
type column struct {
	top    float64
	ground GroundType
}

// Generate builds one map's geometry and spawn/goal pairs from layered
// simplex noise: one field for terrain height and one for hazards.
func Generate(name string, cfg GenConfig) (*Geometry, []SpawnGoal, error) {
	if cfg.Size <= 0 || cfg.Cell <= 0 || cfg.Cell > cfg.Size {
		return nil, nil, fmt.Errorf("invalid map size %f / cell %f", cfg.Size, cfg.Cell)
	}
	n := int(cfg.Size / cfg.Cell)

	heightNoise := opensimplex.NewNormalized(cfg.Seed)
	hazardNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	rng := rand.New(rand.NewSource(cfg.Seed))

	cols := make([]column, n*n)
	geo := &Geometry{Name: name, Scale: 1}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x, z := float64(i)*cfg.Cell, float64(j)*cfg.Cell
			h := octaveNoise(heightNoise, x, z, 3, 0.04, 0.5)
			top := math.Floor(h * float64(cfg.MaxStep+1))
			top = math.Min(top, float64(cfg.MaxStep))

			ground := GroundDefault
			switch hz := octaveNoise(hazardNoise, x, z, 2, 0.08, 0.5); {
			case hz > cfg.LavaLevel:
				ground = GroundLava
			case hz > cfg.WaterLevel:
				ground = GroundWater
			}

			cols[i*n+j] = column{top: top, ground: ground}
			geo.Blocks = append(geo.Blocks, Block{
				Box: r3.Box{
					Min: r3.Vec{X: x, Y: -1, Z: z},
					Max: r3.Vec{X: x + cfg.Cell, Y: top, Z: z + cfg.Cell},
				},
				Ground: ground,
			})
		}
	}

	safe := make([]int, 0, len(cols))
	for idx, c := range cols {
		if c.ground == GroundDefault {
			safe = append(safe, idx)
		}
	}
	if len(safe) < 2 {
		return nil, nil, fmt.Errorf("map %s has fewer than two safe cells", name)
	}

	center := func(idx int) r3.Vec {
		i, j := idx/n, idx%n
		return r3.Vec{
			X: (float64(i) + 0.5) * cfg.Cell,
			Y: cols[idx].top,
			Z: (float64(j) + 0.5) * cfg.Cell,
		}
	}

	for p := 0; p < cfg.JumpPads; p++ {
		geo.JumpPads = append(geo.JumpPads, JumpPad{
			Position: center(safe[rng.Intn(len(safe))]),
			Height:   float64(cfg.MaxStep) + 2,
			Radius:   cfg.Cell / 4,
		})
	}

	pairs := make([]SpawnGoal, 0, cfg.Pairs)
	for attempts := 0; len(pairs) < cfg.Pairs && attempts < cfg.Pairs*100; attempts++ {
		spawn := center(safe[rng.Intn(len(safe))])
		goal := center(safe[rng.Intn(len(safe))])
		if r3.Norm(r3.Sub(goal, spawn)) < cfg.MinDistance {
			continue
		}
		pairs = append(pairs, SpawnGoal{Spawn: spawn, Goal: goal})
	}
	if len(pairs) == 0 {
		return nil, nil, fmt.Errorf("map %s: no spawn/goal pair at least %f apart", name, cfg.MinDistance)
	}
	return geo, pairs, nil
}

// octaveNoise generates fractal noise in [0, 1] by layering frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
