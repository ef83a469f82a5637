package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
)

const maintenanceAlertTitle = "Maintenance due"

// RunMaintenanceCheck raises an info alert for devices whose next
// maintenance falls inside the configured lead window, at most once per
// day per device.
func (e *Engine) RunMaintenanceCheck(runID string) {
	now := time.Now()

	due, err := db.GetDevicesDueForMaintenance(e.db, now.Add(e.cfg.MaintenanceLead()))
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Maintenance pass aborted reading devices")
		return
	}

	for _, d := range due {
		already, err := db.HasAlertSince(e.db, d.ID, maintenanceAlertTitle, now.Add(-24*time.Hour))
		if err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("device", d.ID).Msg("Maintenance pass aborted checking alerts")
			return
		}
		if already {
			continue
		}

		deviceID := d.ID
		roomID := d.RoomID
		e.alerts.Info(
			maintenanceAlertTitle,
			fmt.Sprintf("Device %s (%s) in room %d is due for maintenance by %s",
				d.ID, d.Name, d.RoomID, d.NextMaintenance.Format("2006-01-02")),
			&roomID, &deviceID)
	}
}
