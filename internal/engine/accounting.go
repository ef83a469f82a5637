package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/datadog"
	"github.com/sensegrid/sense-controller/internal/model"
)

// RunConsumptionAccounting appends an energy record for every running
// device, attributing consumption since it was last switched on, and warns
// when a building's total crosses the configured threshold. Rated power is
// taken at face value; exact billing is not a goal here.
func (e *Engine) RunConsumptionAccounting(runID string) {
	now := time.Now()

	running, err := db.GetRunningDevices(e.db)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Consumption pass aborted reading devices")
		return
	}

	buildingKWh := map[string]float64{}
	var totalWatts float64

	for _, rd := range running {
		totalWatts += float64(rd.Device.PowerWatts)

		since := rd.Status.LastSwitchedOn
		if since.IsZero() {
			continue
		}
		hours := now.Sub(since).Hours()
		if hours <= 0 {
			continue
		}

		kwh := float64(rd.Device.PowerWatts) / 1000 * hours
		rec := model.EnergyRecord{
			DeviceID: rd.Device.ID,
			RoomID:   rd.Device.RoomID,
			KWh:      kwh,
			Cost:     kwh * e.cfg.TariffPerKWh,
			Start:    since,
			End:      now,
		}
		if err := db.AppendEnergyRecord(e.db, rec); err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("device", rd.Device.ID).Msg("Consumption pass aborted")
			return
		}

		buildingKWh[rd.Building] += kwh
	}

	for building, total := range buildingKWh {
		if e.cfg.HighConsumptionKWh > 0 && total > e.cfg.HighConsumptionKWh {
			e.alerts.Warning(
				"High energy consumption",
				fmt.Sprintf("Building %s consumed %.2f kWh over running intervals, above the %.2f kWh threshold",
					building, total, e.cfg.HighConsumptionKWh),
				nil, nil)
		}
		datadog.Gauge("energy.building_kwh", total, "building:"+building)
	}

	datadog.Gauge("devices.running", float64(len(running)))
	datadog.Gauge("devices.power_draw_watts", totalWatts)

	log.Debug().
		Str("run_id", runID).
		Int("devices", len(running)).
		Msg("Consumption accounting pass finished")
}

// RunRuntimeAccrual credits elapsed minutes to every running device.
func (e *Engine) RunRuntimeAccrual(runID string) {
	credited, err := db.AccrueRuntime(e.db, e.cfg.Intervals.RuntimeAccrualMinutes)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Runtime accrual pass failed")
		return
	}

	log.Debug().
		Str("run_id", runID).
		Int64("devices", credited).
		Msg("Runtime accrual pass finished")
}
