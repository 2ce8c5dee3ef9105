// Package telemetry provides training progress tracking, milestone bookmarks,
// and structured experiment output.
package telemetry

import (
	"github.com/pthm-cable/smartnav/components"
)

// EpisodeRecord is one finished episode, as written to episodes.csv and the
// parquet archive.
type EpisodeRecord struct {
	RunID      string  `csv:"run_id" parquet:"run_id,dict"`
	Tick       int32   `csv:"tick" parquet:"tick"`
	SimTime    float64 `csv:"sim_time" parquet:"sim_time"`
	AgentID    uint32  `csv:"agent" parquet:"agent"`
	Episode    int32   `csv:"episode" parquet:"episode"`
	MapIndex   int32   `csv:"map" parquet:"map"`
	SlotIndex  int32   `csv:"slot" parquet:"slot"`
	SpawnIndex int32   `csv:"spawn" parquet:"spawn"`
	Outcome    string  `csv:"outcome" parquet:"outcome,dict"`
	Success    bool    `csv:"success" parquet:"success"`
	Steps      int32   `csv:"steps" parquet:"steps"`
	Return     float64 `csv:"return" parquet:"return"`
	Distance   float64 `csv:"final_distance" parquet:"final_distance"`
	Closest    float64 `csv:"closest_distance" parquet:"closest_distance"`
}

// NewEpisodeRecord captures a finished episode from its components.
// Call it after the terminating step and before the next episode begins.
func NewEpisodeRecord(tick int32, dt float64, agent components.Agent, ep *components.Episode, finalDistance float64) EpisodeRecord {
	rec := EpisodeRecord{
		Tick:       tick,
		SimTime:    float64(tick) * dt,
		AgentID:    agent.ID,
		Episode:    int32(ep.Count),
		MapIndex:   int32(ep.MapIndex),
		SlotIndex:  -1,
		SpawnIndex: int32(ep.SpawnIndex),
		Outcome:    ep.LastResult.String(),
		Success:    ep.LastResult.Success(),
		Steps:      int32(ep.Steps),
		Return:     ep.Return,
		Distance:   finalDistance,
		Closest:    ep.ClosestDistance,
	}
	if ep.Slot != nil {
		rec.SlotIndex = int32(ep.Slot.Index())
	}
	return rec
}
