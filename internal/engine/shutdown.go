package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
)

// EmergencyShutdown switches off every device in scope in one transaction.
// Critical rooms are exempt unless the caller forces; the whole scope gets
// a single summary audit entry and a critical alert.
func (e *Engine) EmergencyShutdown(building string, floor int, force bool, actor string) CommandResult {
	runID := uuid.NewString()
	now := time.Now()

	affected, err := db.EmergencyShutdown(e.db, building, floor, force, now, actor, runID)
	if err != nil {
		log.Error().Err(err).
			Str("building", building).
			Int("floor", floor).
			Msg("Emergency shutdown failed")
		return failure("Failed to execute emergency shutdown")
	}

	scope := "all buildings"
	if building != "" {
		scope = "building " + building
	}
	if floor != 0 {
		scope = fmt.Sprintf("%s, floor %d", scope, floor)
	}

	e.alerts.Critical(
		"Emergency shutdown executed",
		fmt.Sprintf("Emergency shutdown of %s by %s: %d devices switched off", scope, actor, affected),
		nil, nil)

	log.Info().
		Str("run_id", runID).
		Str("actor", actor).
		Str("building", building).
		Int("floor", floor).
		Bool("force", force).
		Int64("devices", affected).
		Msg("Emergency shutdown executed")

	return CommandResult{OK: true, Reason: fmt.Sprintf("%d devices switched off", affected)}
}
