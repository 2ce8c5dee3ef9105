package systems

import (
	"github.com/pthm-cable/smartnav/components"
)

// ContactEvents are the trigger transitions seen in one physics step.
type ContactEvents struct {
	JumpPadEntered bool
	PadHeight      float64
	Killed         bool
	Drowned        bool
}

// HazardTracker turns polled surface contacts into enter/exit transitions.
// Lava kills on contact; water kills once an agent has stayed in it for
// WaterTime seconds, and leaving it resets the timer.
type HazardTracker struct {
	WaterTime float64
	DT        float64
}

// Update compares the current touch with the previous contact state, updates
// c, and returns the transitions that happened.
func (h HazardTracker) Update(c *components.Contact, t Touch) ContactEvents {
	var ev ContactEvents

	if t.JumpPad && !c.OnJumpPad {
		ev.JumpPadEntered = true
		ev.PadHeight = t.PadTop
	}
	c.OnJumpPad = t.JumpPad

	if t.Lava {
		ev.Killed = true
	}

	switch {
	case t.Water && !c.InWater:
		c.InWater = true
		c.WaterTimer = h.WaterTime
	case !t.Water && c.InWater:
		c.InWater = false
		c.WaterTimer = 0
	}
	if c.InWater {
		c.WaterTimer -= h.DT
		if c.WaterTimer <= 0 {
			ev.Drowned = true
		}
	}
	return ev
}

// Reset clears contact state at episode start.
func (h HazardTracker) Reset(c *components.Contact) {
	*c = components.Contact{}
}
