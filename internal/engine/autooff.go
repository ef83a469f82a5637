package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/datadog"
	"github.com/sensegrid/sense-controller/internal/model"
)

// RunEmptyRoomAutoOff switches off fans, lights and projectors in rooms
// that have been empty at least the configured dwell time. ACs are left to
// the rotation rule, critical rooms are never touched. Each room is one
// unit-of-work; a store failure aborts the remaining rooms of this pass
// and the next tick retries from fresh state.
func (e *Engine) RunEmptyRoomAutoOff(runID string) {
	now := time.Now()
	cutoff := now.Add(-e.cfg.EmptyRoomThreshold())

	rooms, err := db.GetRoomsEmptySince(e.db, cutoff)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Empty-room pass aborted reading rooms")
		return
	}

	var switched int64
	for _, room := range rooms {
		active, err := db.GetActiveDevicesInRoom(e.db, room.ID)
		if err != nil {
			log.Error().Err(err).Str("run_id", runID).Int("room", room.ID).Msg("Empty-room pass aborted reading devices")
			return
		}

		var ids []string
		var entries []model.ActivityEntry
		for _, d := range active {
			if !model.AutoOffEligible(d.Kind) {
				continue
			}
			ids = append(ids, d.ID)
			entries = append(entries, model.ActivityEntry{
				DeviceID:  d.ID,
				Action:    "Auto OFF",
				Details:   fmt.Sprintf("Empty room auto-control: Device %s", d.ID),
				Actor:     SystemActor,
				RunID:     runID,
				Timestamp: now,
			})
		}
		if len(ids) == 0 {
			continue
		}

		if err := db.AutoOffRoom(e.db, ids, now, entries); err != nil {
			log.Error().Err(err).Str("run_id", runID).Int("room", room.ID).Msg("Empty-room pass aborted switching devices")
			return
		}

		switched += int64(len(ids))
		log.Info().
			Str("run_id", runID).
			Int("room", room.ID).
			Strs("devices", ids).
			Msg("Switched off devices in empty room")
	}

	if switched > 0 {
		datadog.Count("rules.auto_off.devices", switched, "rule:empty_room")
	}
}
