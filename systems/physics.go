// Package systems contains the per-agent simulation systems: physics queries,
// perception, locomotion, hazards, and episode scoring.
package systems

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/maps"
)

// AllLayers is a layer mask matching every block.
const AllLayers = ^uint32(0)

// Probe distances.
const (
	groundRayMargin     = 0.1  // beyond the capsule's half height
	groundCapsuleMargin = 0.05 // plus skin width
	overlapEpsilon      = 1e-6
	padTriggerHeight    = 0.5
)

// Hit describes a raycast hit.
type Hit struct {
	Distance float64
	Point    r3.Vec
	Ground   maps.GroundType
}

// Raycaster casts rays against world geometry.
type Raycaster interface {
	Raycast(origin, dir r3.Vec, maxDist float64, mask uint32) (Hit, bool)
}

// Physics is the collision world the systems step agents through.
type Physics interface {
	Raycaster
	GroundedRay(pos r3.Vec, c components.Capsule) bool
	GroundedCapsule(pos r3.Vec, c components.Capsule) bool
	Move(pos, delta r3.Vec, c components.Capsule) r3.Vec
	Touching(pos r3.Vec, c components.Capsule) Touch
}

// Touch summarises what an agent's capsule is in contact with.
type Touch struct {
	Lava    bool
	Water   bool
	JumpPad bool
	PadTop  float64 // apex height of the touched pad
}

type worldBlock struct {
	box    r3.Box
	ground maps.GroundType
	layer  uint8
}

type worldPad struct {
	center r3.Vec
	radius float64
	height float64
}

type sceneSlot struct {
	bounds r3.Box
	blocks []worldBlock
	pads   []worldPad
}

// Scene holds the world-space geometry of every loaded slot.
// It implements maps.Listener so the slot pool keeps it in sync.
// Queries may run concurrently with each other.
type Scene struct {
	mu    sync.RWMutex
	slots map[int]*sceneSlot
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{slots: make(map[int]*sceneSlot)}
}

// SlotLoaded places the slot's map geometry in the world.
func (sc *Scene) SlotLoaded(s *maps.Slot) {
	m := s.Map()
	g := m.Geometry()
	scale := m.Scale()

	ss := &sceneSlot{blocks: make([]worldBlock, 0, len(g.Blocks))}
	for _, b := range g.Blocks {
		wb := worldBlock{
			box:    r3.Box{Min: m.ToWorld(b.Min), Max: m.ToWorld(b.Max)},
			ground: b.Ground,
			layer:  b.Layer,
		}
		ss.blocks = append(ss.blocks, wb)
	}
	for _, p := range g.JumpPads {
		ss.pads = append(ss.pads, worldPad{
			center: m.ToWorld(p.Position),
			radius: p.Radius * scale,
			height: p.Height * scale,
		})
	}
	ss.bounds = r3.Box{Min: m.ToWorld(g.Bounds().Min), Max: m.ToWorld(g.Bounds().Max)}

	sc.mu.Lock()
	sc.slots[s.Index()] = ss
	sc.mu.Unlock()
}

// SlotUnloaded removes the slot's geometry.
func (sc *Scene) SlotUnloaded(s *maps.Slot, _ *maps.Map) {
	sc.mu.Lock()
	delete(sc.slots, s.Index())
	sc.mu.Unlock()
}

// Raycast returns the nearest block hit within maxDist on a layer in mask.
// Rays starting inside a block do not hit it.
func (sc *Scene) Raycast(origin, dir r3.Vec, maxDist float64, mask uint32) (Hit, bool) {
	dir = unitOrZero(dir)
	if dir == (r3.Vec{}) {
		return Hit{}, false
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	best := Hit{Distance: math.Inf(1)}
	found := false
	for _, ss := range sc.slots {
		if _, ok := rayBox(origin, dir, ss.bounds, maxDist); !ok && !contains(ss.bounds, origin) {
			continue
		}
		for _, b := range ss.blocks {
			if mask&(1<<b.layer) == 0 {
				continue
			}
			t, ok := rayBox(origin, dir, b.box, maxDist)
			if !ok || t >= best.Distance {
				continue
			}
			best = Hit{Distance: t, Point: r3.Add(origin, r3.Scale(t, dir)), Ground: b.ground}
			found = true
		}
	}
	return best, found
}

// GroundedRay casts a short ray straight down from the capsule centre.
func (sc *Scene) GroundedRay(pos r3.Vec, c components.Capsule) bool {
	_, ok := sc.Raycast(pos, r3.Vec{Y: -1}, c.Height/2+groundRayMargin, AllLayers)
	return ok
}

// GroundedCapsule sweeps the capsule's box a short distance down and reports
// whether it touches any block.
func (sc *Scene) GroundedCapsule(pos r3.Vec, c components.Capsule) bool {
	probe := c.Bounds(r3.Add(pos, r3.Vec{Y: -(groundCapsuleMargin + c.SkinWidth)}))

	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, ss := range sc.slots {
		for _, b := range ss.blocks {
			if overlaps(probe, b.box) {
				return true
			}
		}
	}
	return false
}

// Move displaces the capsule by delta, resolving collisions one axis at a
// time and stopping flush against any block in the way.
func (sc *Scene) Move(pos, delta r3.Vec, c components.Capsule) r3.Vec {
	half := c.HalfExtents()

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	pos = sc.moveAxis(pos, delta.X, half, axisX)
	pos = sc.moveAxis(pos, delta.Z, half, axisZ)
	pos = sc.moveAxis(pos, delta.Y, half, axisY)
	return pos
}

type axis int

const (
	axisX axis = iota
	axisY
	axisZ
)

func component(v r3.Vec, a axis) float64 {
	switch a {
	case axisX:
		return v.X
	case axisY:
		return v.Y
	default:
		return v.Z
	}
}

func withComponent(v r3.Vec, a axis, x float64) r3.Vec {
	switch a {
	case axisX:
		v.X = x
	case axisY:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}

func (sc *Scene) moveAxis(pos r3.Vec, d float64, half r3.Vec, a axis) r3.Vec {
	if d == 0 {
		return pos
	}
	target := withComponent(pos, a, component(pos, a)+d)
	h := component(half, a)

	for _, ss := range sc.slots {
		for _, b := range ss.blocks {
			box := r3.Box{Min: r3.Sub(target, half), Max: r3.Add(target, half)}
			if !overlaps(box, b.box) {
				continue
			}
			if d > 0 {
				target = withComponent(target, a, component(b.box.Min, a)-h)
			} else {
				target = withComponent(target, a, component(b.box.Max, a)+h)
			}
		}
	}

	// Never move backwards past the start when resolving.
	start := component(pos, a)
	if (d > 0 && component(target, a) < start) || (d < 0 && component(target, a) > start) {
		return pos
	}
	return target
}

// Touching reports hazard surfaces and jump pads in contact with the capsule.
func (sc *Scene) Touching(pos r3.Vec, c components.Capsule) Touch {
	var t Touch
	skin := r3.Vec{X: c.SkinWidth, Y: c.SkinWidth, Z: c.SkinWidth}
	bounds := c.Bounds(pos)
	probe := r3.Box{Min: r3.Sub(bounds.Min, skin), Max: r3.Add(bounds.Max, skin)}

	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, ss := range sc.slots {
		for _, b := range ss.blocks {
			if !overlaps(probe, b.box) {
				continue
			}
			switch b.ground {
			case maps.GroundLava:
				t.Lava = true
			case maps.GroundWater:
				t.Water = true
			}
		}
		for _, p := range ss.pads {
			dx, dz := pos.X-p.center.X, pos.Z-p.center.Z
			feet := bounds.Min.Y
			if math.Hypot(dx, dz) <= p.radius+c.Radius &&
				feet >= p.center.Y-c.SkinWidth-groundCapsuleMargin &&
				feet <= p.center.Y+padTriggerHeight {
				t.JumpPad = true
				t.PadTop = p.height
			}
		}
	}
	return t
}

// rayBox intersects a ray with a box using the slab method. It returns the
// entry distance; rays starting inside the box miss.
func rayBox(origin, dir r3.Vec, b r3.Box, maxDist float64) (float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for _, a := range [...]axis{axisX, axisY, axisZ} {
		o, d := component(origin, a), component(dir, a)
		lo, hi := component(b.Min, a), component(b.Max, a)
		if d == 0 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmin < 0 || tmin > maxDist {
		return 0, false
	}
	return tmin, true
}

func overlaps(a, b r3.Box) bool {
	return a.Min.X < b.Max.X-overlapEpsilon && a.Max.X > b.Min.X+overlapEpsilon &&
		a.Min.Y < b.Max.Y-overlapEpsilon && a.Max.Y > b.Min.Y+overlapEpsilon &&
		a.Min.Z < b.Max.Z-overlapEpsilon && a.Max.Z > b.Min.Z+overlapEpsilon
}

func contains(b r3.Box, p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}
