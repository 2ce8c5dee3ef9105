package maps

import (
	"fmt"
	"log/slog"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Listener is notified when a slot's map is loaded or unloaded.
// Calls happen with the pool lock held; listeners must not call back into the pool.
type Listener interface {
	SlotLoaded(s *Slot)
	SlotUnloaded(s *Slot, m *Map)
}

// Pool allocates slots to agents and cycles maps through them.
// All methods are safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	maps  []*Map
	slots []*Slot
	next  int // round-robin map index

	mapWidth float64
	mapScale float64
	margin   float64

	listener Listener
}

// NewPool builds maps from paths, checks that every map has at least
// agentCount spawn/goal pairs, and measures map width from the first map.
func NewPool(storage Storage, paths []string, agentCount int, margin float64) (*Pool, error) {
	if len(paths) == 0 {
		return nil, ErrNoMaps
	}

	p := &Pool{margin: margin, maps: make([]*Map, 0, len(paths))}
	for i, path := range paths {
		m, err := NewMap(storage, path, i)
		if err != nil {
			return nil, err
		}
		if agentCount > m.NumSpawnGoals() {
			return nil, fmt.Errorf("map %s has %d spawn-goals but there are %d agents: %w",
				path, m.NumSpawnGoals(), agentCount, ErrInsufficientCapacity)
		}
		p.maps = append(p.maps, m)
	}

	// Load the first map once to learn how far apart slots must be.
	first := p.maps[0]
	if err := first.Load(r3.Vec{}); err != nil {
		return nil, err
	}
	p.mapWidth = first.Geometry().Width()
	p.mapScale = first.Scale()
	first.Unload()

	slog.Info("map pool ready", "maps", len(p.maps), "map_width", p.mapWidth, "map_scale", p.mapScale)
	return p, nil
}

// SetListener installs the load/unload listener.
func (p *Pool) SetListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

// Maps returns the maps in cycling order.
func (p *Pool) Maps() []*Map { return p.maps }

// Slots returns a snapshot of the slots in creation order.
func (p *Pool) Slots() []*Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// NextSlot selects the slot the next agent should join. Callers must follow
// with AddAgent; Acquire does both atomically.
//
// In order of preference it returns the first slot whose map has pairs left,
// then the next round-robin map not hosted by any slot, placed in an empty
// slot or a new one. A map is never hosted by two slots at once: when every
// map is hosted and exhausted, the first hosted map is restarted in place
// instead of opening another slot for it.
func (p *Pool) NextSlot() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSlot()
}

// AddAgent adds an occupant to s, loading its map on the 0 -> 1 transition.
func (p *Pool) AddAgent(s *Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addAgent(s)
}

// RemoveAgent removes an occupant from s, unloading and detaching its map on
// the 1 -> 0 transition.
func (p *Pool) RemoveAgent(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeAgent(s)
}

// Acquire selects a slot and joins it.
func (p *Pool) Acquire() (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.nextSlot()
	if err := p.addAgent(s); err != nil {
		return nil, err
	}
	return s, nil
}

// OnEpisodeBegin releases current if its map is finished and acquires a new
// slot when the agent has none. It returns the slot the agent should use.
func (p *Pool) OnEpisodeBegin(current *Slot) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onEpisodeBegin(current)
}

// BeginEpisode runs OnEpisodeBegin and draws the next spawn/goal pair from the
// returned slot's map under the same lock.
func (p *Pool) BeginEpisode(current *Slot) (*Slot, SpawnGoal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.onEpisodeBegin(current)
	if err != nil {
		return nil, SpawnGoal{}, err
	}
	return s, s.m.NextSpawnGoal(), nil
}

func (p *Pool) onEpisodeBegin(current *Slot) (*Slot, error) {
	if current != nil && current.m != nil && current.m.Finished() {
		p.removeAgent(current)
		current = nil
	}
	if current != nil {
		return current, nil
	}

	s := p.nextSlot()
	if err := p.addAgent(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Pool) nextSlot() *Slot {
	// Reuse a slot whose map still has pairs left.
	for _, s := range p.slots {
		if s.m != nil && !s.m.Finished() {
			return s
		}
	}

	m := p.freeMap()
	if m == nil {
		// Every map is hosted and exhausted: restart the first one in place
		// rather than growing the slot list.
		for _, s := range p.slots {
			if s.m != nil {
				slog.Info("restarting map", "map", s.m.Index(), "slot", s.index)
				s.m.Restart()
				return s
			}
		}
		panic("maps: every map is hosted but no slot holds one")
	}

	for _, s := range p.slots {
		if s.m == nil {
			s.m = m
			slog.Info("assigning map to slot", "map", m.Index(), "slot", s.index, "offset", s.offset)
			return s
		}
	}

	s := &Slot{
		index:  len(p.slots),
		offset: r3.Vec{X: float64(len(p.slots)) * (p.mapWidth + p.margin) * p.mapScale},
		m:      m,
	}
	p.slots = append(p.slots, s)
	slog.Info("creating map slot", "map", m.Index(), "slot", s.index, "offset", s.offset)
	return s
}

// freeMap returns the next round-robin map not hosted by any slot and
// advances the pointer past it. Returns nil when every map is hosted.
func (p *Pool) freeMap() *Map {
	for i := 0; i < len(p.maps); i++ {
		idx := (p.next + i) % len(p.maps)
		if p.hosted(p.maps[idx]) {
			continue
		}
		p.next = (idx + 1) % len(p.maps)
		return p.maps[idx]
	}
	return nil
}

func (p *Pool) hosted(m *Map) bool {
	for _, s := range p.slots {
		if s.m == m {
			return true
		}
	}
	return false
}

func (p *Pool) addAgent(s *Slot) error {
	if s.m == nil {
		panic(fmt.Sprintf("maps: AddAgent on slot %d with no map", s.index))
	}
	if s.occupants == 0 {
		if err := s.m.Load(s.offset); err != nil {
			s.m = nil
			return err
		}
		if p.listener != nil {
			p.listener.SlotLoaded(s)
		}
	}
	s.occupants++
	return nil
}

func (p *Pool) removeAgent(s *Slot) {
	if s.occupants == 0 {
		panic(fmt.Sprintf("maps: RemoveAgent on empty slot %d", s.index))
	}
	s.occupants--
	if s.occupants == 0 {
		m := s.m
		m.Unload()
		s.m = nil
		if p.listener != nil {
			p.listener.SlotUnloaded(s, m)
		}
		slog.Info("unloaded map", "map", m.Index(), "slot", s.index)
	}
}
