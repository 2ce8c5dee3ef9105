package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhasePerception)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseMotion)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick(4)
	}

	stats := pc.Stats()

	if stats.AvgTick <= 0 {
		t.Error("expected positive average tick duration")
	}
	if stats.PhaseAvg[PhasePerception] <= 0 {
		t.Error("expected perception phase to be tracked")
	}
	if stats.PhaseAvg[PhaseMotion] <= 0 {
		t.Error("expected motion phase to be tracked")
	}
	if stats.PhaseAvg[PhasePolicy] != 0 {
		t.Errorf("policy phase = %v, want 0", stats.PhaseAvg[PhasePolicy])
	}
	if got := pc.AgentSteps(); got != 20 {
		t.Errorf("AgentSteps() = %d, want 20", got)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseEpisode)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick(1)
	}

	stats := pc.Stats()
	if stats.AvgTick <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhasePolicy)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhasePerception)
		time.Sleep(2 * time.Millisecond)
		pc.EndTick(1)
	}

	stats := pc.Stats()
	if stats.PhasePct[PhasePerception] <= stats.PhasePct[PhasePolicy] {
		t.Errorf("expected perception (%v%%) > policy (%v%%)",
			stats.PhasePct[PhasePerception], stats.PhasePct[PhasePolicy])
	}

	row := stats.ToCSV(600)
	if row.WindowEnd != 600 || row.PerceptionPct != stats.PhasePct[PhasePerception] {
		t.Errorf("ToCSV() = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats != (PerfStats{}) {
		t.Errorf("Stats() on empty collector = %+v", stats)
	}
}

func TestPerfCollector_Throughput(t *testing.T) {
	pc := NewPerfCollector(4)

	for i := 0; i < 4; i++ {
		pc.StartTick()
		pc.StartPhase(PhasePerception)
		time.Sleep(time.Millisecond)
		pc.StartPhase(PhaseMotion)
		pc.StartPhase(PhasePerception)
		pc.EndTick(8)
	}

	stats := pc.Stats()
	if stats.AgentStepsPerSecond <= stats.TicksPerSecond {
		t.Errorf("agent steps/s %f should exceed ticks/s %f with 8 agents",
			stats.AgentStepsPerSecond, stats.TicksPerSecond)
	}
	if got, want := stats.PerceptionPerAgent, stats.PhaseAvg[PhasePerception]/8; got != want {
		t.Errorf("PerceptionPerAgent = %v, want %v", got, want)
	}
	if stats.MinTick > stats.AvgTick || stats.AvgTick > stats.MaxTick {
		t.Errorf("min %v, avg %v, max %v out of order", stats.MinTick, stats.AvgTick, stats.MaxTick)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhasePerception, "perception"},
		{PhaseTelemetry, "telemetry"},
		{Phase(200), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
