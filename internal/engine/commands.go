package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/model"
)

const (
	reasonDeviceNotFound   = "Device not found"
	reasonCriticalRoom     = "Critical room - elevated permission required"
	reasonStoreUnavailable = "Storage unavailable, try again"
)

// Toggle switches a single device on or off on behalf of an actor.
// Critical rooms reject the command unless force is set; VIP rooms get an
// extra audit entry; toggling to the current state is a no-op that leaves
// timestamps, switch count and the log untouched.
func (e *Engine) Toggle(deviceID string, on bool, actor string, force bool) CommandResult {
	room, err := db.GetRoomByDevice(e.db, deviceID)
	if err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Toggle failed resolving room")
		return failure(reasonStoreUnavailable)
	}
	if room == nil {
		return failure(reasonDeviceNotFound)
	}

	if room.Critical && !force {
		log.Warn().
			Str("device", deviceID).
			Str("actor", actor).
			Str("room", room.Name).
			Msg("Toggle rejected for critical room")
		return failure(reasonCriticalRoom)
	}

	status, err := db.GetDeviceStatus(e.db, deviceID)
	if err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Toggle failed reading status")
		return failure(reasonStoreUnavailable)
	}
	if status == nil {
		return failure(reasonDeviceNotFound)
	}

	if status.IsOn == on {
		return CommandResult{OK: true, State: on, Reason: fmt.Sprintf("Device already %s", stateWord(on))}
	}

	now := time.Now()
	var entries []model.ActivityEntry

	if room.VIP {
		entries = append(entries, model.ActivityEntry{
			DeviceID:  deviceID,
			Action:    "VIP Access",
			Details:   fmt.Sprintf("VIP room device control: Device %s", deviceID),
			Actor:     actor,
			Timestamp: now,
		})
	}
	if room.Critical {
		entries = append(entries, model.ActivityEntry{
			DeviceID:  deviceID,
			Action:    "Forced Control",
			Details:   fmt.Sprintf("Critical room override: Device %s", deviceID),
			Actor:     actor,
			Timestamp: now,
		})
	}
	entries = append(entries, model.ActivityEntry{
		DeviceID:  deviceID,
		Action:    fmt.Sprintf("Toggle %s", stateWord(on)),
		Details:   fmt.Sprintf("Device %s switched %s", deviceID, stateWord(on)),
		Actor:     actor,
		Timestamp: now,
	})

	if err := db.SetDeviceState(e.db, deviceID, on, now, entries); err != nil {
		// A concurrent identical toggle won the write; same outcome as the
		// no-op check above.
		if errors.Is(err, db.ErrAlreadyInState) {
			return CommandResult{OK: true, State: on, Reason: fmt.Sprintf("Device already %s", stateWord(on))}
		}
		log.Error().Err(err).Str("device", deviceID).Msg("Toggle failed applying state")
		return failure("Failed to toggle device")
	}

	log.Info().
		Str("device", deviceID).
		Str("actor", actor).
		Bool("on", on).
		Msg("Device toggled")

	return CommandResult{OK: true, State: on, Reason: fmt.Sprintf("Device %s", stateWord(on))}
}

func stateWord(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
