package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies one stage of a training tick.
type Phase uint8

const (
	PhasePerception Phase = iota
	PhasePolicy
	PhaseMotion
	PhaseEpisode
	PhaseTelemetry
	numPhases
)

var phaseNames = [numPhases]string{"perception", "policy", "motion", "episode", "telemetry"}

func (p Phase) String() string {
	if p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// PerfSample is the timing of one tick.
type PerfSample struct {
	Tick   time.Duration
	Phases [numPhases]time.Duration
	Agents int
}

// PerfCollector keeps a ring of the last windowSize tick samples. Phases are
// timed back to back: starting one ends the previous.
type PerfCollector struct {
	samples []PerfSample
	next    int
	filled  int

	current    PerfSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool

	agentSteps int64
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{samples: make([]PerfSample, windowSize)}
}

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = PerfSample{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and opens phase. A phase
// entered twice in one tick accumulates.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
	p.inPhase = true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase < numPhases {
		p.current.Phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// EndTick records the tick; agents is how many agents were stepped.
func (p *PerfCollector) EndTick(agents int) {
	now := time.Now()
	p.closePhase(now)
	p.current.Tick = now.Sub(p.tickStart)
	p.current.Agents = agents

	p.samples[p.next] = p.current
	p.next = (p.next + 1) % len(p.samples)
	if p.filled < len(p.samples) {
		p.filled++
	}
	p.agentSteps += int64(agents)
}

// AgentSteps returns the total agent steps timed since creation.
func (p *PerfCollector) AgentSteps() int64 { return p.agentSteps }

// PerfStats aggregates the samples in the window.
type PerfStats struct {
	AvgTick time.Duration
	MinTick time.Duration
	MaxTick time.Duration

	PhaseAvg [numPhases]time.Duration
	PhasePct [numPhases]float64 // share of the average tick

	TicksPerSecond      float64
	AgentStepsPerSecond float64
	PerceptionPerAgent  time.Duration // ray casting cost of one agent observation
}

// Stats computes aggregates over the current window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.filled == 0 {
		return s
	}

	var phaseSum [numPhases]time.Duration
	var tickSum time.Duration
	agents := 0
	for i, sample := range p.samples[:p.filled] {
		tickSum += sample.Tick
		if i == 0 || sample.Tick < s.MinTick {
			s.MinTick = sample.Tick
		}
		s.MaxTick = max(s.MaxTick, sample.Tick)
		for ph, d := range sample.Phases {
			phaseSum[ph] += d
		}
		agents += sample.Agents
	}

	n := time.Duration(p.filled)
	s.AvgTick = tickSum / n
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / n
		if s.AvgTick > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTick) * 100
		}
	}

	if tickSum > 0 {
		s.TicksPerSecond = float64(p.filled) / tickSum.Seconds()
		s.AgentStepsPerSecond = float64(agents) / tickSum.Seconds()
	}
	if agents > 0 {
		s.PerceptionPerAgent = phaseSum[PhasePerception] / time.Duration(agents)
	}
	return s
}

// LogStats logs the window at Info.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer. Phases under 0.1% of the tick are
// omitted.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Int("ticks_per_sec", int(s.TicksPerSecond)),
		slog.Int("agent_steps_per_sec", int(s.AgentStepsPerSecond)),
		slog.Int64("perception_per_agent_ns", s.PerceptionPerAgent.Nanoseconds()),
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the perf.csv row.
type PerfStatsCSV struct {
	WindowEnd            int32   `csv:"window_end"`
	AvgTickUS            int64   `csv:"avg_tick_us"`
	MinTickUS            int64   `csv:"min_tick_us"`
	MaxTickUS            int64   `csv:"max_tick_us"`
	TicksPerSec          float64 `csv:"ticks_per_sec"`
	AgentStepsPerSec     float64 `csv:"agent_steps_per_sec"`
	PerceptionPerAgentNS int64   `csv:"perception_per_agent_ns"`
	PerceptionPct        float64 `csv:"perception_pct"`
	PolicyPct            float64 `csv:"policy_pct"`
	MotionPct            float64 `csv:"motion_pct"`
	EpisodePct           float64 `csv:"episode_pct"`
	TelemetryPct         float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the stats for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:            windowEnd,
		AvgTickUS:            s.AvgTick.Microseconds(),
		MinTickUS:            s.MinTick.Microseconds(),
		MaxTickUS:            s.MaxTick.Microseconds(),
		TicksPerSec:          s.TicksPerSecond,
		AgentStepsPerSec:     s.AgentStepsPerSecond,
		PerceptionPerAgentNS: s.PerceptionPerAgent.Nanoseconds(),
		PerceptionPct:        s.PhasePct[PhasePerception],
		PolicyPct:            s.PhasePct[PhasePolicy],
		MotionPct:            s.PhasePct[PhaseMotion],
		EpisodePct:           s.PhasePct[PhaseEpisode],
		TelemetryPct:         s.PhasePct[PhaseTelemetry],
	}
}
