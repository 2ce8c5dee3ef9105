package maps

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// memStorage serves maps from memory and counts geometry loads.
type memStorage struct {
	geoms map[string]*Geometry
	pairs map[string][]SpawnGoal
	loads map[string]int
	fail  map[string]bool // geometry loads that error
}

func newMemStorage() *memStorage {
	return &memStorage{
		geoms: make(map[string]*Geometry),
		pairs: make(map[string][]SpawnGoal),
		loads: make(map[string]int),
		fail:  make(map[string]bool),
	}
}

func (s *memStorage) add(path string, nPairs int) {
	s.geoms[path] = &Geometry{
		Name: path,
		Blocks: []Block{{Box: r3.Box{
			Min: r3.Vec{X: 0, Y: -1, Z: 0},
			Max: r3.Vec{X: 39.2, Y: 0, Z: 40},
		}}},
		JumpPads: []JumpPad{{Position: r3.Vec{X: 5, Z: 5}, Height: 4}},
	}
	pairs := make([]SpawnGoal, nPairs)
	for i := range pairs {
		pairs[i] = SpawnGoal{
			Spawn: r3.Vec{X: float64(i), Z: 1},
			Goal:  r3.Vec{X: float64(i), Z: 20},
		}
	}
	s.pairs[path] = pairs
}

func (s *memStorage) LoadGeometry(path string) (*Geometry, error) {
	g, ok := s.geoms[path]
	if !ok || s.fail[path] {
		return nil, fmt.Errorf("no geometry for %s", path)
	}
	s.loads[path]++
	return g, nil
}

func (s *memStorage) LoadSpawnGoals(path string) ([]SpawnGoal, error) {
	return s.pairs[path], nil
}

// recordingListener records load and unload notifications.
type recordingListener struct {
	loaded   []int
	unloaded []int
}

func (l *recordingListener) SlotLoaded(s *Slot)           { l.loaded = append(l.loaded, s.Map().Index()) }
func (l *recordingListener) SlotUnloaded(s *Slot, m *Map) { l.unloaded = append(l.unloaded, m.Index()) }

func buildPool(t *testing.T, nMaps, nPairs, nAgents int) (*Pool, *memStorage) {
	t.Helper()
	st := newMemStorage()
	paths := make([]string, nMaps)
	for i := range paths {
		paths[i] = fmt.Sprintf("map%d", i)
		st.add(paths[i], nPairs)
	}
	p, err := NewPool(st, paths, nAgents, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p, st
}

func TestNewPoolErrors(t *testing.T) {
	st := newMemStorage()
	st.add("small", 2)
	st.pairs["empty"] = nil
	st.geoms["empty"] = st.geoms["small"]

	tests := []struct {
		name   string
		paths  []string
		agents int
		want   error
	}{
		{"no maps", nil, 1, ErrNoMaps},
		{"empty spawn goals", []string{"empty"}, 1, ErrEmptySpawnGoals},
		{"insufficient capacity", []string{"small"}, 3, ErrInsufficientCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(st, tt.paths, tt.agents, 5)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewPool error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewPoolMeasuresFirstMap(t *testing.T) {
	p, st := buildPool(t, 2, 1, 1)

	if p.mapWidth != 40 {
		t.Errorf("mapWidth = %v, want 40 (ceil of 39.2)", p.mapWidth)
	}
	if st.loads["map0"] != 1 {
		t.Errorf("map0 loaded %d times during measurement, want 1", st.loads["map0"])
	}
	if p.Maps()[0].Loaded() {
		t.Error("map0 should be unloaded after measurement")
	}
}

func TestAddRemoveLoadTransitions(t *testing.T) {
	p, st := buildPool(t, 1, 4, 3)
	l := &recordingListener{}
	p.SetListener(l)
	st.loads["map0"] = 0

	s := p.NextSlot()
	for i := 0; i < 3; i++ {
		if err := p.AddAgent(s); err != nil {
			t.Fatal(err)
		}
	}
	if st.loads["map0"] != 1 {
		t.Errorf("map loaded %d times for 3 joiners, want 1", st.loads["map0"])
	}
	if len(l.loaded) != 1 {
		t.Errorf("listener saw %d loads, want 1", len(l.loaded))
	}

	p.RemoveAgent(s)
	p.RemoveAgent(s)
	if s.Map() == nil || !s.Map().Loaded() {
		t.Fatal("map should stay loaded while an occupant remains")
	}

	m := s.Map()
	p.RemoveAgent(s)
	if s.Map() != nil {
		t.Error("slot should be vacant after last occupant leaves")
	}
	if m.Loaded() {
		t.Error("map should be unloaded after last occupant leaves")
	}
	if len(l.unloaded) != 1 {
		t.Errorf("listener saw %d unloads, want 1", len(l.unloaded))
	}
}

func TestRemoveAgentFromEmptySlotPanics(t *testing.T) {
	p, _ := buildPool(t, 1, 1, 1)
	s, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	p.RemoveAgent(s)

	defer func() {
		if recover() == nil {
			t.Error("expected panic removing from an empty slot")
		}
	}()
	p.RemoveAgent(s)
}

func TestUnloadResetsCursor(t *testing.T) {
	p, _ := buildPool(t, 1, 3, 1)
	s, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	m := s.Map()
	m.NextSpawnGoal()
	m.NextSpawnGoal()

	p.RemoveAgent(s)
	if m.Cursor() != 0 {
		t.Errorf("cursor after unload = %d, want 0", m.Cursor())
	}
}

func TestRoundRobinCyclesAllMaps(t *testing.T) {
	const nMaps = 4
	p, _ := buildPool(t, nMaps, 1, 1)

	var slot *Slot
	var order []int
	for episode := 0; episode < 3*nMaps; episode++ {
		var err error
		slot, err = p.OnEpisodeBegin(slot)
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, slot.Map().Index())
		slot.Map().NextSpawnGoal()
	}

	for i, got := range order {
		if want := i % nMaps; got != want {
			t.Fatalf("episode %d used map %d, want %d (order %v)", i, got, want, order)
		}
	}
	if n := len(p.Slots()); n != 1 {
		t.Errorf("single agent should reuse one slot, got %d slots", n)
	}
}

func TestSingleMapRestartsInsteadOfGrowing(t *testing.T) {
	p, st := buildPool(t, 1, 2, 2)
	st.loads["map0"] = 0

	a, err := p.OnEpisodeBegin(nil)
	if err != nil {
		t.Fatal(err)
	}
	a.Map().NextSpawnGoal()
	b, err := p.OnEpisodeBegin(nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Map().NextSpawnGoal()

	if a != b {
		t.Fatal("second agent should join the unfinished slot")
	}
	if !a.Map().Finished() {
		t.Fatal("map should be finished after both pairs are used")
	}

	// Agent A begins a new episode: it leaves, then must be placed back
	// into the same slot with the map restarted.
	a2, err := p.OnEpisodeBegin(a)
	if err != nil {
		t.Fatal(err)
	}
	if a2 != a {
		t.Error("expected the only slot to be reused")
	}
	if got := a2.Map().Cursor(); got != 0 {
		t.Errorf("cursor = %d, want 0 after restart", got)
	}
	if n := len(p.Slots()); n != 1 {
		t.Errorf("slots = %d, want 1", n)
	}
	if st.loads["map0"] != 1 {
		t.Errorf("restart should not reload geometry, loads = %d", st.loads["map0"])
	}
	if a2.Occupants() != 2 {
		t.Errorf("occupants = %d, want 2", a2.Occupants())
	}
}

func TestAllMapsHostedAndFinishedRestartsFirst(t *testing.T) {
	p, st := buildPool(t, 2, 1, 1)
	st.loads["map0"], st.loads["map1"] = 0, 0

	var slots []*Slot
	for i := 0; i < 2; i++ {
		s, err := p.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		s.Map().NextSpawnGoal()
		slots = append(slots, s)
	}
	if slots[0] == slots[1] || !slots[0].Map().Finished() || !slots[1].Map().Finished() {
		t.Fatal("expected both maps hosted and finished")
	}

	s, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if s != slots[0] {
		t.Errorf("joined slot %d, want the first hosted slot", s.Index())
	}
	if got := s.Map().Cursor(); got != 0 {
		t.Errorf("cursor = %d, want 0 after restart", got)
	}
	if n := len(p.Slots()); n != 2 {
		t.Errorf("slots = %d, want 2", n)
	}
	if st.loads["map0"] != 1 || st.loads["map1"] != 1 {
		t.Errorf("loads = %v, want one per map", st.loads)
	}
	if s.Occupants() != 2 {
		t.Errorf("occupants = %d, want 2", s.Occupants())
	}
	checkPoolInvariants(t, p)
}

func TestFailedLoadLeavesSlotEmpty(t *testing.T) {
	p, st := buildPool(t, 2, 1, 1)
	st.fail["map0"] = true

	if _, err := p.Acquire(); err == nil {
		t.Fatal("expected load error")
	}
	for _, s := range p.Slots() {
		if s.Map() != nil || s.Occupants() != 0 {
			t.Errorf("slot %d kept map %v with %d occupants", s.Index(), s.Map(), s.Occupants())
		}
	}
	checkPoolInvariants(t, p)

	st.fail["map0"] = false
	s, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire after failure: %v", err)
	}
	if s.Occupants() != 1 || !s.Map().Loaded() {
		t.Errorf("slot %d: occupants=%d loaded=%v", s.Index(), s.Occupants(), s.Map().Loaded())
	}
	checkPoolInvariants(t, p)
}

func TestNewSlotOffsets(t *testing.T) {
	p, _ := buildPool(t, 3, 1, 1)

	var slots []*Slot
	for i := 0; i < 3; i++ {
		s, err := p.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		s.Map().NextSpawnGoal()
		slots = append(slots, s)
	}

	for i, s := range slots {
		want := float64(i) * (40 + 5)
		if s.Offset().X != want || s.Offset().Y != 0 || s.Offset().Z != 0 {
			t.Errorf("slot %d offset = %v, want (%v,0,0)", i, s.Offset(), want)
		}
		if s.Map().Offset() != s.Offset() {
			t.Errorf("slot %d map loaded at %v, want %v", i, s.Map().Offset(), s.Offset())
		}
	}
}

// A map is loaded iff some slot references it with occupants, and no map is
// ever hosted by two slots, under a random join/leave workload.
func TestPoolInvariantsRandomWorkload(t *testing.T) {
	for _, nMaps := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("maps=%d", nMaps), func(t *testing.T) {
			const nAgents = 6
			p, _ := buildPool(t, nMaps, 3*nAgents, nAgents)
			rng := rand.New(rand.NewSource(int64(nMaps)))

			agents := make([]*Slot, nAgents)
			for step := 0; step < 2000; step++ {
				i := rng.Intn(nAgents)
				s, err := p.OnEpisodeBegin(agents[i])
				if err != nil {
					t.Fatal(err)
				}
				agents[i] = s
				s.Map().NextSpawnGoal()

				if rng.Intn(10) == 0 {
					p.RemoveAgent(agents[i])
					agents[i] = nil
				}

				checkPoolInvariants(t, p)
			}
		})
	}
}

func checkPoolInvariants(t *testing.T, p *Pool) {
	t.Helper()
	hosting := make(map[*Map]int)
	for _, s := range p.Slots() {
		if s.Occupants() < 0 {
			t.Fatalf("slot %d has negative occupants", s.Index())
		}
		if (s.Occupants() > 0) != (s.Map() != nil) {
			t.Fatalf("slot %d: occupants=%d map=%v", s.Index(), s.Occupants(), s.Map())
		}
		if s.Map() != nil {
			hosting[s.Map()]++
		}
	}
	for _, m := range p.Maps() {
		if hosting[m] > 1 {
			t.Fatalf("map %d hosted by %d slots", m.Index(), hosting[m])
		}
		if m.Loaded() != (hosting[m] == 1) {
			t.Fatalf("map %d loaded=%v but hosted=%d", m.Index(), m.Loaded(), hosting[m])
		}
	}
}

func TestBeginEpisodeDrawsPairs(t *testing.T) {
	p, _ := buildPool(t, 2, 2, 1)

	s, sg, err := p.BeginEpisode(nil)
	if err != nil {
		t.Fatalf("BeginEpisode: %v", err)
	}
	if s.Map().Index() != 0 || sg.Spawn.X != 0 {
		t.Errorf("first episode got map %d pair %v", s.Map().Index(), sg)
	}

	s2, sg, err := p.BeginEpisode(s)
	if err != nil {
		t.Fatalf("BeginEpisode: %v", err)
	}
	if s2 != s || sg.Spawn.X != 1 || s.Occupants() != 1 {
		t.Errorf("second episode should stay on slot %d, got slot %d pair %v", s.Index(), s2.Index(), sg)
	}

	// Map 0 is exhausted: the agent leaves, the slot is vacated, and map 1
	// is assigned to it.
	s3, sg, err := p.BeginEpisode(s2)
	if err != nil {
		t.Fatalf("BeginEpisode: %v", err)
	}
	if s3.Map().Index() != 1 || sg.Spawn.X != 0 || s3.Occupants() != 1 {
		t.Errorf("third episode got map %d pair %v occupants %d", s3.Map().Index(), sg, s3.Occupants())
	}
	if len(p.Slots()) != 1 {
		t.Errorf("slots = %d, want 1", len(p.Slots()))
	}
}
