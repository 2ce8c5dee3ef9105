package maps

import "gonum.org/v1/gonum/spatial/r3"

// Slot is a fixed world location that hosts at most one loaded map at a time.
// Occupants > 0 exactly when a map is assigned and loaded.
type Slot struct {
	index     int
	offset    r3.Vec
	m         *Map
	occupants int
}

// Index returns the slot's creation index.
func (s *Slot) Index() int { return s.index }

// Offset returns the slot's world offset.
func (s *Slot) Offset() r3.Vec { return s.offset }

// Map returns the assigned map, or nil when the slot is vacant.
func (s *Slot) Map() *Map { return s.m }

// Occupants returns the number of agents in the slot.
func (s *Slot) Occupants() int { return s.occupants }

// Empty reports whether no agent occupies the slot.
func (s *Slot) Empty() bool { return s.occupants == 0 }

// Floor returns the world height of the slot's origin.
func (s *Slot) Floor() float64 { return s.offset.Y }
