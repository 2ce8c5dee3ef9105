package maps

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// File names inside a map directory.
const (
	GeometryFile   = "geometry.yaml"
	SpawnGoalsFile = "spawn_goals.csv"
)

// Storage loads map data from a map's path.
type Storage interface {
	LoadGeometry(path string) (*Geometry, error)
	LoadSpawnGoals(path string) ([]SpawnGoal, error)
}

// FileStorage reads maps laid out as one directory per map, holding
// geometry.yaml and spawn_goals.csv.
type FileStorage struct{}

// spawnGoalRow is the CSV row layout of spawn_goals.csv.
type spawnGoalRow struct {
	SpawnX float64 `csv:"spawn_x"`
	SpawnY float64 `csv:"spawn_y"`
	SpawnZ float64 `csv:"spawn_z"`
	GoalX  float64 `csv:"goal_x"`
	GoalY  float64 `csv:"goal_y"`
	GoalZ  float64 `csv:"goal_z"`
}

// LoadGeometry reads path/geometry.yaml.
func (FileStorage) LoadGeometry(path string) (*Geometry, error) {
	data, err := os.ReadFile(filepath.Join(path, GeometryFile))
	if err != nil {
		return nil, fmt.Errorf("reading geometry: %w", err)
	}
	g := &Geometry{}
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parsing geometry %s: %w", path, err)
	}
	return g, nil
}

// LoadSpawnGoals reads path/spawn_goals.csv in file order.
func (FileStorage) LoadSpawnGoals(path string) ([]SpawnGoal, error) {
	f, err := os.Open(filepath.Join(path, SpawnGoalsFile))
	if err != nil {
		return nil, fmt.Errorf("opening spawn goals: %w", err)
	}
	defer f.Close()

	var rows []spawnGoalRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing spawn goals %s: %w", path, err)
	}

	pairs := make([]SpawnGoal, len(rows))
	for i, r := range rows {
		pairs[i] = SpawnGoal{
			Spawn: r3.Vec{X: r.SpawnX, Y: r.SpawnY, Z: r.SpawnZ},
			Goal:  r3.Vec{X: r.GoalX, Y: r.GoalY, Z: r.GoalZ},
		}
	}
	return pairs, nil
}

// WriteGeometry writes dir/geometry.yaml, creating dir if needed.
func WriteGeometry(dir string, g *Geometry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating map directory: %w", err)
	}
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshaling geometry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, GeometryFile), data, 0644); err != nil {
		return fmt.Errorf("writing geometry: %w", err)
	}
	return nil
}

// WriteSpawnGoals writes dir/spawn_goals.csv, creating dir if needed.
func WriteSpawnGoals(dir string, pairs []SpawnGoal) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating map directory: %w", err)
	}
	rows := make([]spawnGoalRow, len(pairs))
	for i, p := range pairs {
		rows[i] = spawnGoalRow{
			SpawnX: p.Spawn.X, SpawnY: p.Spawn.Y, SpawnZ: p.Spawn.Z,
			GoalX: p.Goal.X, GoalY: p.Goal.Y, GoalZ: p.Goal.Z,
		}
	}

	f, err := os.Create(filepath.Join(dir, SpawnGoalsFile))
	if err != nil {
		return fmt.Errorf("creating spawn goals: %w", err)
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing spawn goals: %w", err)
	}
	return f.Close()
}

// ListMapDirs returns the map directories directly under folder, sorted by
// name. When shuffle is set they are permuted with a seeded RNG instead.
func ListMapDirs(folder string, shuffle bool, seed int64) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading map folder: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(folder, e.Name()))
		}
	}

	if shuffle {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(dirs), func(i, j int) {
			dirs[i], dirs[j] = dirs[j], dirs[i]
		})
	}
	return dirs, nil
}
