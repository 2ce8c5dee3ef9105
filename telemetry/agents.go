package telemetry

import "github.com/pthm-cable/smartnav/components"

// AgentStats tracks per-agent training statistics across episodes.
type AgentStats struct {
	JoinTick int32

	Episodes  int
	Wins      int
	Killed    int
	Fell      int
	Stagnated int

	BestReturn  float64
	TotalReturn float64
	TotalSteps  int

	// Map coverage: maps the agent has finished at least one episode on
	MapsSeen map[int32]struct{}
}

// SuccessRate returns wins over finished episodes.
func (s *AgentStats) SuccessRate() float64 {
	if s.Episodes == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Episodes)
}

// AgentTracker manages per-agent statistics.
type AgentTracker struct {
	stats map[uint32]*AgentStats
}

// NewAgentTracker creates a new agent tracker.
func NewAgentTracker() *AgentTracker {
	return &AgentTracker{
		stats: make(map[uint32]*AgentStats),
	}
}

// Register creates stats for a new agent.
func (at *AgentTracker) Register(agentID uint32, joinTick int32) {
	at.stats[agentID] = &AgentStats{
		JoinTick: joinTick,
		MapsSeen: make(map[int32]struct{}),
	}
}

// Get returns the stats for an agent, or nil if not found.
func (at *AgentTracker) Get(agentID uint32) *AgentStats {
	return at.stats[agentID]
}

// Remove removes an agent's stats and returns them.
func (at *AgentTracker) Remove(agentID uint32) *AgentStats {
	stats := at.stats[agentID]
	delete(at.stats, agentID)
	return stats
}

// RecordEpisode folds a finished episode into its agent's stats.
// Unregistered agents are ignored.
func (at *AgentTracker) RecordEpisode(rec EpisodeRecord) {
	s := at.stats[rec.AgentID]
	if s == nil {
		return
	}
	if s.Episodes == 0 || rec.Return > s.BestReturn {
		s.BestReturn = rec.Return
	}
	s.Episodes++
	s.TotalReturn += rec.Return
	s.TotalSteps += int(rec.Steps)
	s.MapsSeen[rec.MapIndex] = struct{}{}

	switch components.Outcome(outcomeIndex(rec.Outcome)) {
	case components.OutcomeWin:
		s.Wins++
	case components.OutcomeKilled:
		s.Killed++
	case components.OutcomeFell:
		s.Fell++
	case components.OutcomeStagnated:
		s.Stagnated++
	}
}

// All returns all tracked stats.
func (at *AgentTracker) All() map[uint32]*AgentStats {
	return at.stats
}

// Count returns the number of tracked agents.
func (at *AgentTracker) Count() int {
	return len(at.stats)
}

// MapsCovered returns the number of distinct maps any agent has finished an episode on.
func (at *AgentTracker) MapsCovered() int {
	seen := make(map[int32]struct{})
	for _, s := range at.stats {
		for m := range s.MapsSeen {
			seen[m] = struct{}{}
		}
	}
	return len(seen)
}
