package telemetry

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/smartnav/components"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDistribution(t *testing.T) {
	values := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	d := ComputeDistribution(values)

	if math.Abs(d.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", d.Mean)
	}
	// Population std of 0.1..1.0
	if math.Abs(d.Std-0.2872) > 0.001 {
		t.Errorf("std = %v, want ~0.287", d.Std)
	}
	if math.Abs(d.P10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", d.P10)
	}
	if math.Abs(d.P50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", d.P50)
	}
	if math.Abs(d.P90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", d.P90)
	}
	if values[0] != 1.0 {
		t.Error("input slice was reordered")
	}
}

func TestComputeDistributionEmpty(t *testing.T) {
	if d := ComputeDistribution(nil); d != (Distribution{}) {
		t.Errorf("empty distribution = %+v", d)
	}
}

func TestSuccessTracker(t *testing.T) {
	st := NewSuccessTracker(4)

	tests := []struct {
		success bool
		want    float64
	}{
		{true, 0.25}, // ramps up against the full window
		{true, 0.5},
		{false, 0.5},
		{true, 0.75},
		{false, 0.5}, // evicts the first success
		{false, 0.25},
	}
	for i, tt := range tests {
		st.Record(tt.success)
		if got := st.Rate(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("after record %d: Rate() = %v, want %v", i, got, tt.want)
		}
	}
	if st.Count() != 4 || st.Size() != 4 {
		t.Errorf("Count() = %d, Size() = %d", st.Count(), st.Size())
	}

	st.Reset()
	if st.Rate() != 0 || st.Count() != 0 {
		t.Errorf("after Reset: Rate() = %v, Count() = %d", st.Rate(), st.Count())
	}
}

func TestSuccessTrackerDefaultWindow(t *testing.T) {
	st := NewSuccessTracker(200)
	for i := 0; i < 1000; i++ {
		st.Record(i%4 == 0)
	}
	if got := st.Rate(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("Rate() = %v, want 0.25", got)
	}
}

func record(agent uint32, outcome components.Outcome, ret float64, steps int32) EpisodeRecord {
	return EpisodeRecord{
		AgentID: agent,
		Outcome: outcome.String(),
		Success: outcome.Success(),
		Return:  ret,
		Steps:   steps,
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(1.0, 0.02, 10, 0)
	if c.WindowDurationTicks() != 50 {
		t.Fatalf("WindowDurationTicks() = %d, want 50", c.WindowDurationTicks())
	}

	c.RecordEpisode(record(1, components.OutcomeWin, 1.0, 100))
	c.RecordEpisode(record(2, components.OutcomeKilled, -1.0, 40))
	c.RecordEpisode(record(1, components.OutcomeStagnated, -1.0, 1500))
	c.RecordEpisode(record(2, components.OutcomeWin, 0.5, 200))
	c.SlotLoaded(nil)
	c.SlotLoaded(nil)
	c.SlotUnloaded(nil, nil)

	if c.ShouldFlush(49) {
		t.Error("ShouldFlush(49) = true before the window ends")
	}
	if !c.ShouldFlush(50) {
		t.Error("ShouldFlush(50) = false")
	}

	s := c.Flush(50, nil)
	if s.Episodes != 4 || s.Wins != 2 || s.Killed != 1 || s.Stagnated != 1 || s.Fell != 0 {
		t.Errorf("outcome counts = %+v", s)
	}
	if s.WindowSuccess != 0.5 {
		t.Errorf("WindowSuccess = %v, want 0.5", s.WindowSuccess)
	}
	if math.Abs(s.RollingSuccess-0.2) > 1e-9 {
		t.Errorf("RollingSuccess = %v, want 0.2", s.RollingSuccess)
	}
	if math.Abs(s.ReturnMean-(-0.125)) > 1e-9 {
		t.Errorf("ReturnMean = %v, want -0.125", s.ReturnMean)
	}
	if s.MapLoads != 2 || s.MapUnloads != 1 {
		t.Errorf("loads/unloads = %d/%d", s.MapLoads, s.MapUnloads)
	}
	if s.SimTimeSec != 1.0 {
		t.Errorf("SimTimeSec = %v, want 1", s.SimTimeSec)
	}

	next := c.Flush(100, nil)
	if next.Episodes != 0 || next.Wins != 0 || next.MapLoads != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
	if next.RollingSuccess != s.RollingSuccess {
		t.Error("rolling success should survive a flush")
	}
	if len(c.Episodes()) != 4 {
		t.Errorf("Episodes() len = %d, want 4", len(c.Episodes()))
	}
}

func TestCollectorKeepsRecentEpisodes(t *testing.T) {
	tests := []struct {
		keep, record int
		wantLen      int
	}{
		{0, 25, 25},
		{4, 3, 3},
		{4, 4, 4},
		{4, 9, 4},
		{4, 100, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("keep=%d/record=%d", tt.keep, tt.record), func(t *testing.T) {
			c := NewCollector(1.0, 0.02, 10, tt.keep)
			for i := 0; i < tt.record; i++ {
				c.RecordEpisode(EpisodeRecord{Episode: int32(i), Outcome: "win"})
			}
			got := c.Episodes()
			if len(got) != tt.wantLen {
				t.Fatalf("Episodes() len = %d, want %d", len(got), tt.wantLen)
			}
			for i, rec := range got {
				if want := int32(tt.record - tt.wantLen + i); rec.Episode != want {
					t.Errorf("Episodes()[%d] = episode %d, want %d", i, rec.Episode, want)
				}
			}
			if c.TotalEpisodes() != tt.record {
				t.Errorf("TotalEpisodes() = %d, want %d", c.TotalEpisodes(), tt.record)
			}
			if tt.keep > 0 && cap(c.recent) > 2*tt.keep+8 {
				t.Errorf("buffer grew to %d for keep %d", cap(c.recent), tt.keep)
			}
		})
	}
}

func TestEpisodeArchiveStreams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.parquet")
	a, err := CreateEpisodeArchive(path)
	if err != nil {
		t.Fatalf("CreateEpisodeArchive: %v", err)
	}
	for batch := 0; batch < 3; batch++ {
		e := int32(2 * batch)
		recs := []EpisodeRecord{{Episode: e, Outcome: "win"}, {Episode: e + 1, Outcome: "fell"}}
		if err := a.Write(recs); err != nil {
			t.Fatalf("Write batch %d: %v", batch, err)
		}
	}
	if a.Rows() != 6 {
		t.Errorf("Rows() = %d, want 6", a.Rows())
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("archive published before Close")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Write([]EpisodeRecord{{}}); err == nil {
		t.Error("Write after Close should fail")
	}

	got, err := ReadEpisodeArchive(path)
	if err != nil {
		t.Fatalf("ReadEpisodeArchive: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("read %d rows, want 6", len(got))
	}
	for i, rec := range got {
		if rec.Episode != int32(i) {
			t.Errorf("row %d is episode %d", i, rec.Episode)
		}
	}
}

func TestEmptyEpisodeArchiveLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.parquet")
	a, err := CreateEpisodeArchive(path)
	if err != nil {
		t.Fatalf("CreateEpisodeArchive: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, p := range []string{path, path + ".tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after empty Close: %v", p, err)
		}
	}
}

func TestAgentTracker(t *testing.T) {
	at := NewAgentTracker()
	at.Register(1, 0)

	at.RecordEpisode(EpisodeRecord{AgentID: 1, MapIndex: 0, Outcome: "win", Return: 0.8, Steps: 50})
	at.RecordEpisode(EpisodeRecord{AgentID: 1, MapIndex: 2, Outcome: "fell", Return: -1.2, Steps: 30})
	at.RecordEpisode(EpisodeRecord{AgentID: 9, Outcome: "win"}) // unregistered

	s := at.Get(1)
	if s.Episodes != 2 || s.Wins != 1 || s.Fell != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.BestReturn != 0.8 || s.TotalSteps != 80 {
		t.Errorf("BestReturn = %v, TotalSteps = %d", s.BestReturn, s.TotalSteps)
	}
	if s.SuccessRate() != 0.5 {
		t.Errorf("SuccessRate() = %v", s.SuccessRate())
	}
	if at.MapsCovered() != 2 {
		t.Errorf("MapsCovered() = %d, want 2", at.MapsCovered())
	}
	if at.Remove(1) == nil || at.Count() != 0 {
		t.Error("Remove did not drop the agent")
	}
}

func TestEpisodeArchiveRoundTrip(t *testing.T) {
	rows := []EpisodeRecord{
		{RunID: "run-a", Tick: 10, AgentID: 1, Episode: 1, MapIndex: 0, SlotIndex: 0, Outcome: "win", Success: true, Steps: 10, Return: 0.9, Distance: 0.5, Closest: 0.5},
		{RunID: "run-a", Tick: 25, AgentID: 2, Episode: 1, MapIndex: 1, SlotIndex: -1, Outcome: "killed", Steps: 15, Return: -1, Distance: 12, Closest: 8},
	}
	path := filepath.Join(t.TempDir(), "sub", "episodes.parquet")

	if err := WriteEpisodeArchive(path, rows); err != nil {
		t.Fatalf("WriteEpisodeArchive: %v", err)
	}
	got, err := ReadEpisodeArchive(path)
	if err != nil {
		t.Fatalf("ReadEpisodeArchive: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}
