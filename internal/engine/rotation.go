package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/datadog"
	"github.com/sensegrid/sense-controller/internal/model"
)

const noSpareAlertTitle = "No spare AC available"

// RunACRotation swaps every AC that has been running past the configured
// threshold for an idle AC in the same room. An overdue AC with no spare
// keeps running (continuous cooling beats a forced stop) and the gap is
// surfaced as a warning alert. Each swap is one unit-of-work.
func (e *Engine) RunACRotation(runID string) {
	now := time.Now()
	cutoff := now.Add(-e.cfg.ACRotationThreshold())

	overdue, err := db.GetOverdueACs(e.db, cutoff)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("AC rotation pass aborted reading overdue units")
		return
	}

	for _, ac := range overdue {
		replacement, err := db.RotateAC(e.db, ac.ID, now, SystemActor, runID)
		if err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("device", ac.ID).Msg("AC rotation pass aborted")
			return
		}

		if replacement == "" {
			// The condition persists across passes; alert once a day, not
			// once an hour.
			already, err := db.HasAlertSince(e.db, ac.ID, noSpareAlertTitle, now.Add(-24*time.Hour))
			if err != nil {
				log.Error().Err(err).Str("run_id", runID).Str("device", ac.ID).Msg("AC rotation pass aborted checking alerts")
				return
			}
			if already {
				continue
			}

			deviceID := ac.ID
			roomID := ac.RoomID
			e.alerts.Warning(
				noSpareAlertTitle,
				fmt.Sprintf("AC %s in room %d has run past the rotation threshold and no idle AC is available to take over", ac.ID, ac.RoomID),
				&roomID, &deviceID)
			continue
		}

		datadog.Count("rules.rotation.swaps", 1, "rule:ac_rotation")
		log.Info().
			Str("run_id", runID).
			Str("overdue", ac.ID).
			Str("replacement", replacement).
			Int("room", ac.RoomID).
			Msg("Rotated AC")
	}
}

// RotateOne rotates a single AC on demand, using the same replacement
// policy as the scheduled rule. Critical rooms are rejected outright; the
// rotate command carries no force escalation.
func (e *Engine) RotateOne(deviceID string) CommandResult {
	device, err := db.GetDeviceByID(e.db, deviceID)
	if err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Rotate failed reading device")
		return failure(reasonStoreUnavailable)
	}
	if device == nil {
		return failure(reasonDeviceNotFound)
	}
	if device.Kind != model.KindAC {
		return failure("Not an AC unit")
	}

	room, err := db.GetRoomByDevice(e.db, deviceID)
	if err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Rotate failed resolving room")
		return failure(reasonStoreUnavailable)
	}
	if room == nil {
		return failure(reasonDeviceNotFound)
	}
	if room.Critical {
		log.Warn().
			Str("device", deviceID).
			Str("room", room.Name).
			Msg("Rotate rejected for critical room")
		return failure(reasonCriticalRoom)
	}

	replacement, err := db.RotateAC(e.db, deviceID, time.Now(), SystemActor, uuid.NewString())
	if err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Rotate failed")
		return failure("Failed to rotate AC")
	}

	if replacement == "" {
		roomID := device.RoomID
		id := device.ID
		e.alerts.Warning(
			noSpareAlertTitle,
			fmt.Sprintf("Rotation requested for AC %s in room %d but no idle AC is available", deviceID, device.RoomID),
			&roomID, &id)
		return CommandResult{OK: true, Reason: noSpareAlertTitle}
	}

	return CommandResult{OK: true, Replacement: replacement, Reason: fmt.Sprintf("AC %s -> AC %s", deviceID, replacement)}
}
