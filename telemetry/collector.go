package telemetry

import (
	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/maps"
)

// Collector accumulates episode and map events within time windows and
// produces WindowStats. It implements maps.Listener to count slot activity.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	episodes int
	outcomes [components.OutcomeStagnated + 1]int
	returns  []float64
	steps    []float64
	loads    int
	unloads  int
	success  *SuccessTracker

	// Most recent episodes, at most keep of them when keep > 0.
	recent []EpisodeRecord
	keep   int
	total  int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
// successWindow: episodes in the rolling success rate
// keepEpisodes: episodes retained for Episodes, 0 = all
func NewCollector(windowDurationSec, dt float64, successWindow, keepEpisodes int) *Collector {
	ticksPerWindow := int32(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
		success:             NewSuccessTracker(successWindow),
		keep:                max(keepEpisodes, 0),
	}
}

// RecordEpisode records a finished episode.
func (c *Collector) RecordEpisode(rec EpisodeRecord) {
	c.episodes++
	if o := outcomeIndex(rec.Outcome); o >= 0 {
		c.outcomes[o]++
	}
	c.returns = append(c.returns, rec.Return)
	c.steps = append(c.steps, float64(rec.Steps))
	c.success.Record(rec.Success)
	c.total++
	c.recent = append(c.recent, rec)
	// Compact once the buffer holds twice the cap, so trimming stays amortized O(1).
	if c.keep > 0 && len(c.recent) >= 2*c.keep {
		n := copy(c.recent, c.recent[len(c.recent)-c.keep:])
		c.recent = c.recent[:n]
	}
}

func outcomeIndex(name string) int {
	for o := components.OutcomeNone; o <= components.OutcomeStagnated; o++ {
		if o.String() == name {
			return int(o)
		}
	}
	return -1
}

// SlotLoaded implements maps.Listener.
func (c *Collector) SlotLoaded(*maps.Slot) { c.loads++ }

// SlotUnloaded implements maps.Listener.
func (c *Collector) SlotUnloaded(*maps.Slot, *maps.Map) { c.unloads++ }

// SuccessRate returns the rolling success rate.
func (c *Collector) SuccessRate() float64 { return c.success.Rate() }

// Success returns the rolling success tracker.
func (c *Collector) Success() *SuccessTracker { return c.success }

// Episodes returns the retained episodes, oldest first: all of them, or the
// last keepEpisodes.
func (c *Collector) Episodes() []EpisodeRecord {
	if c.keep > 0 && len(c.recent) > c.keep {
		return c.recent[len(c.recent)-c.keep:]
	}
	return c.recent
}

// TotalEpisodes returns how many episodes have been recorded, retained or not.
func (c *Collector) TotalEpisodes() int { return c.total }

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// slots is the pool's current slot list.
func (c *Collector) Flush(currentTick int32, slots []*maps.Slot) WindowStats {
	var windowSuccess float64
	if c.episodes > 0 {
		windowSuccess = float64(c.outcomes[components.OutcomeWin]) / float64(c.episodes)
	}

	ret := ComputeDistribution(c.returns)
	steps := ComputeDistribution(c.steps)

	active := 0
	for _, s := range slots {
		if !s.Empty() {
			active++
		}
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Episodes:  c.episodes,
		Wins:      c.outcomes[components.OutcomeWin],
		Killed:    c.outcomes[components.OutcomeKilled],
		Fell:      c.outcomes[components.OutcomeFell],
		Stagnated: c.outcomes[components.OutcomeStagnated],

		WindowSuccess:  windowSuccess,
		RollingSuccess: c.success.Rate(),

		ReturnMean: ret.Mean,
		ReturnStd:  ret.Std,
		ReturnP10:  ret.P10,
		ReturnP50:  ret.P50,
		ReturnP90:  ret.P90,

		StepsMean: steps.Mean,
		StepsP90:  steps.P90,

		MapLoads:    c.loads,
		MapUnloads:  c.unloads,
		ActiveSlots: active,
		TotalSlots:  len(slots),
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.episodes = 0
	clear(c.outcomes[:])
	c.returns = c.returns[:0]
	c.steps = c.steps[:0]
	c.loads = 0
	c.unloads = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
