package game

import (
	"fmt"
	"slices"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/maps"
	"github.com/pthm-cable/smartnav/systems"
	"github.com/pthm-cable/smartnav/telemetry"
)

// spawnAgents creates count agent entities and begins their first episodes.
func (g *Game) spawnAgents(count int) error {
	obsSize := g.observer.Size(g.motion)
	raySize := g.perception.BufferSize()

	entities := make([]ecs.Entity, 0, count)
	for i := 0; i < count; i++ {
		id := uint32(i)
		ag := components.Agent{ID: id}
		tr := components.Transform{}
		body := components.Body{Capsule: components.CapsuleFromConfig(g.cfg.Motion)}
		loc := components.Locomotion{}
		ep := components.Episode{}
		sensor := components.NewSensor(raySize, obsSize)
		contact := components.Contact{}

		e := g.agentMapper.NewEntity(&ag, &tr, &body, &loc, &ep, &sensor, &contact)
		entities = append(entities, e)
	}

	// Component pointers are stable only once every entity exists.
	g.agents = make([]agent, 0, count)
	for i, e := range entities {
		_, tr, body, loc, ep, sensor, contact := g.agentMapper.Get(e)
		g.agents = append(g.agents, agent{
			entity: e,
			id:     uint32(i),
			sensor: sensor,
			state: systems.AgentState{
				Transform:  tr,
				Body:       body,
				Locomotion: loc,
				Episode:    ep,
				Contact:    contact,
				Motion:     g.motion,
			},
		})
	}

	for i := range g.agents {
		a := &g.agents[i]
		g.agentTracker.Register(a.id, g.tick)
		if err := g.beginEpisode(a); err != nil {
			return fmt.Errorf("agent %d: %w", a.id, err)
		}
	}
	g.deciders = make([]int, 0, count)
	return nil
}

// beginEpisode places the agent at its next spawn point.
func (g *Game) beginEpisode(a *agent) error {
	if err := g.controller.Begin(a.state); err != nil {
		return err
	}
	a.state.Episode.StartTick = g.tick
	return nil
}

// finishEpisode records a terminated episode and starts the next one.
func (g *Game) finishEpisode(a *agent, res systems.StepResult) error {
	rec := telemetry.NewEpisodeRecord(g.tick, g.cfg.Physics.DT, components.Agent{ID: a.id}, a.state.Episode, res.Distance)
	g.recordEpisode(rec)
	if err := g.beginEpisode(a); err != nil {
		return fmt.Errorf("agent %d: %w", a.id, err)
	}
	return nil
}

// listeners fans slot events out to several listeners.
type listeners []maps.Listener

func (ls listeners) SlotLoaded(s *maps.Slot) {
	for _, l := range ls {
		l.SlotLoaded(s)
	}
}

func (ls listeners) SlotUnloaded(s *maps.Slot, m *maps.Map) {
	for _, l := range ls {
		l.SlotUnloaded(s, m)
	}
}

// AgentView is a read-only snapshot of one agent.
type AgentView struct {
	ID       uint32
	Position r3.Vec
	Heading  float64
	Goal     r3.Vec
	MapIndex int
	Slot     int
	Steps    int
	Episodes int
	Last     components.Outcome
}

func sortViews(views []AgentView) {
	slices.SortFunc(views, func(a, b AgentView) int {
		return int(a.ID) - int(b.ID)
	})
}
