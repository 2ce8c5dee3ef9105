// Package game runs a headless training session: a population of agents
// stepping through episodes on cycled maps.
package game

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/config"
	"github.com/pthm-cable/smartnav/maps"
	"github.com/pthm-cable/smartnav/persistence"
	"github.com/pthm-cable/smartnav/systems"
	"github.com/pthm-cable/smartnav/telemetry"
)

// Options configures a training session.
type Options struct {
	Seed      int64
	MapFolder string         // overrides maps.folder when set
	MapPaths  []string       // explicit map paths; skips folder listing
	Storage   maps.Storage   // nil = maps.FileStorage
	Agents    int            // overrides agents.count when > 0
	Config    *config.Config // nil = config.Cfg(); validated and re-derived when set

	Policy     Policy // nil = built from PolicyName
	PolicyName string // heuristic, random or network
	Weights    string // network weights file for the network policy
	Heuristic  string // heuristic params YAML for the heuristic policy
	Motion     systems.Motion

	OutputDir      string
	DBPath         string
	LogStats       bool
	StatsWindowSec float64 // 0 = telemetry.stats_window
	StatsCallback  func(telemetry.WindowStats)
}

// agent is one agent's entity with its component pointers resolved.
type agent struct {
	entity ecs.Entity
	id     uint32
	state  systems.AgentState
	sensor *components.Sensor
}

// Game holds the complete training session state.
type Game struct {
	world *ecs.World
	rng   *rand.Rand
	cfg   *config.Config

	agentMapper *ecs.Map7[
		components.Agent,
		components.Transform,
		components.Body,
		components.Locomotion,
		components.Episode,
		components.Sensor,
		components.Contact,
	]
	agentFilter *ecs.Filter7[
		components.Agent,
		components.Transform,
		components.Body,
		components.Locomotion,
		components.Episode,
		components.Sensor,
		components.Contact,
	]

	agents   []agent
	deciders []int
	motion   systems.Motion

	pool       *maps.Pool
	scene      *systems.Scene
	perception *systems.Perception
	observer   *systems.Observer
	controller *systems.EpisodeController
	policy     Policy

	// Telemetry
	collector        *telemetry.Collector
	agentTracker     *telemetry.AgentTracker
	perfCollector    *telemetry.PerfCollector
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager
	pending          []telemetry.EpisodeRecord // finished since the last window flush
	statsCallback    func(telemetry.WindowStats)
	logStats         bool

	db    *persistence.DB
	runID string

	parallel *parallelState

	tick   int32
	closed bool
}

// NewGame builds the map pool, spawns the agents, and begins their first
// episodes.
func NewGame(opts Options) (*Game, error) {
	cfg := config.Cfg()
	if opts.Config != nil {
		c := *opts.Config
		if err := c.Resolve(); err != nil {
			return nil, err
		}
		cfg = &c
	}
	agentCount := cfg.Agents.Count
	if opts.Agents > 0 {
		agentCount = opts.Agents
	}

	paths := opts.MapPaths
	if len(paths) == 0 {
		folder := cfg.Maps.Folder
		if opts.MapFolder != "" {
			folder = opts.MapFolder
		}
		var err error
		if paths, err = maps.ListMapDirs(folder, cfg.Maps.Shuffle, opts.Seed); err != nil {
			return nil, err
		}
	}
	storage := opts.Storage
	if storage == nil {
		storage = maps.FileStorage{}
	}

	pool, err := maps.NewPool(storage, paths, agentCount, cfg.Maps.SlotMargin)
	if err != nil {
		return nil, fmt.Errorf("building map pool: %w", err)
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}

	world := ecs.NewWorld()
	g := &Game{
		world:            world,
		rng:              rand.New(rand.NewSource(opts.Seed)),
		cfg:              cfg,
		pool:             pool,
		scene:            systems.NewScene(),
		perception:       systems.NewPerception(cfg.Perception),
		collector:        telemetry.NewCollector(statsWindow, cfg.Physics.DT, cfg.Episode.SuccessWindow, cfg.Telemetry.KeepEpisodes),
		agentTracker:     telemetry.NewAgentTracker(),
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		bookmarkDetector: telemetry.NewBookmarkDetector(10),
		statsCallback:    opts.StatsCallback,
		logStats:         opts.LogStats,
		parallel:         newParallelState(),
		agentMapper: ecs.NewMap7[
			components.Agent,
			components.Transform,
			components.Body,
			components.Locomotion,
			components.Episode,
			components.Sensor,
			components.Contact,
		](world),
		agentFilter: ecs.NewFilter7[
			components.Agent,
			components.Transform,
			components.Body,
			components.Locomotion,
			components.Episode,
			components.Sensor,
			components.Contact,
		](world),
	}
	pool.SetListener(listeners{g.scene, g.collector})

	g.observer = systems.NewObserver(g.perception, g.scene, cfg)
	g.controller = systems.NewEpisodeController(pool, g.scene, cfg)

	g.motion = opts.Motion
	if g.motion == nil {
		g.motion = systems.NewSmartNavMotion(cfg)
	}

	g.policy = opts.Policy
	if g.policy == nil {
		name := opts.PolicyName
		if name == "" {
			name = PolicyHeuristic
		}
		if g.policy, err = NewPolicy(name, g.rng, g.perception, g.observer.Size(g.motion), opts.Weights); err != nil {
			return nil, err
		}
		if h, ok := g.policy.(*HeuristicPolicy); ok && opts.Heuristic != "" {
			if h.Params, err = LoadHeuristicParams(opts.Heuristic); err != nil {
				return nil, err
			}
		}
	}

	if g.outputManager, err = telemetry.NewOutputManager(opts.OutputDir); err != nil {
		return nil, err
	}
	if err := g.outputManager.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	if opts.DBPath != "" {
		if g.db, err = persistence.Open(opts.DBPath); err != nil {
			g.outputManager.Close()
			return nil, err
		}
		if g.runID, err = g.db.StartRun(opts.Seed, len(paths), agentCount); err != nil {
			g.db.Close()
			g.outputManager.Close()
			return nil, err
		}
	}

	if err := g.spawnAgents(agentCount); err != nil {
		g.Close()
		return nil, err
	}

	slog.Info("training session ready",
		"agents", agentCount,
		"maps", len(paths),
		"policy", fmt.Sprintf("%T", g.policy),
		"observation_size", g.observer.Size(g.motion),
		"run", g.runID,
	)
	return g, nil
}

// Step runs one physics tick for every agent. Agents decide on ticks that
// are multiples of the decision period and repeat their last action between
// decisions.
func (g *Game) Step() error {
	g.perfCollector.StartTick()

	g.perfCollector.StartPhase(telemetry.PhasePerception)
	g.deciders = g.deciders[:0]
	if int(g.tick)%g.cfg.Physics.DecisionPeriod == 0 {
		for i := range g.agents {
			g.deciders = append(g.deciders, i)
		}
	}
	g.observeAll()

	g.perfCollector.StartPhase(telemetry.PhasePolicy)
	for _, i := range g.deciders {
		a := &g.agents[i]
		a.state.Episode.Action = g.policy.Act(Decision{
			AgentID:     a.id,
			Rays:        a.sensor.Rays,
			Observation: a.sensor.Observation,
		})
	}

	g.perfCollector.StartPhase(telemetry.PhaseMotion)
	var errs []error
	for i := range g.agents {
		a := &g.agents[i]
		res := g.controller.Step(a.state)
		if !res.Done {
			continue
		}
		g.perfCollector.StartPhase(telemetry.PhaseEpisode)
		if err := g.finishEpisode(a, res); err != nil {
			errs = append(errs, err)
		}
		g.perfCollector.StartPhase(telemetry.PhaseMotion)
	}

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.tick++
	g.flushTelemetry()

	g.perfCollector.EndTick(len(g.agents))
	return errors.Join(errs...)
}

// Run steps until maxTicks is reached or stop returns true.
// A zero maxTicks runs until stop.
func (g *Game) Run(maxTicks int32, stop func() bool) error {
	for maxTicks <= 0 || g.tick < maxTicks {
		if stop != nil && stop() {
			return nil
		}
		if err := g.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Tick returns the number of ticks run.
func (g *Game) Tick() int32 {
	return g.tick
}

// SuccessRate returns the moving success rate over the last
// episode.success_window episodes of this session.
func (g *Game) SuccessRate() float64 {
	return g.collector.SuccessRate()
}

// ResetSuccess clears the moving success window.
func (g *Game) ResetSuccess() {
	g.collector.Success().Reset()
}

// Episodes returns the episodes finished this session that are still held in
// memory: every one, or the last telemetry.keep_episodes. The full record
// streams to the output directory and database.
func (g *Game) Episodes() []telemetry.EpisodeRecord {
	return g.collector.Episodes()
}

// EpisodeCount returns how many episodes have finished this session.
func (g *Game) EpisodeCount() int {
	return g.collector.TotalEpisodes()
}

// AgentStats returns the per-agent statistics tracker.
func (g *Game) AgentStats() *telemetry.AgentTracker {
	return g.agentTracker
}

// Pool returns the map slot pool.
func (g *Game) Pool() *maps.Pool {
	return g.pool
}

// RunID returns the persistence run ID, or "" without a database.
func (g *Game) RunID() string {
	return g.runID
}

// Agents returns a snapshot of every agent's episode state, in spawn order.
func (g *Game) Agents() []AgentView {
	views := make([]AgentView, 0, len(g.agents))
	query := g.agentFilter.Query()
	for query.Next() {
		ag, tr, _, _, ep, _, _ := query.Get()
		v := AgentView{
			ID:       ag.ID,
			Position: tr.Position,
			Heading:  tr.Heading,
			Goal:     ep.Goal,
			MapIndex: ep.MapIndex,
			Steps:    ep.Steps,
			Episodes: ep.Count,
			Last:     ep.LastResult,
			Slot:     -1,
		}
		if ep.Slot != nil {
			v.Slot = ep.Slot.Index()
		}
		views = append(views, v)
	}
	sortViews(views)
	return views
}

// Close releases every slot, saves pending episodes, and closes output.
func (g *Game) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.stopParallelWorkers()

	for i := range g.agents {
		g.controller.Release(g.agents[i].state)
	}

	var errs []error
	if err := g.savePending(); err != nil {
		errs = append(errs, err)
	}
	if g.db != nil {
		if err := g.db.FinishRun(g.runID, int64(g.tick)); err != nil {
			errs = append(errs, err)
		}
		if err := g.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.outputManager.Close(); err != nil {
		errs = append(errs, err)
	}

	slog.Info("training session closed",
		"tick", g.tick,
		"episodes", g.collector.TotalEpisodes(),
		"success_rate", g.collector.SuccessRate(),
	)
	return errors.Join(errs...)
}
