package telemetry

import (
	"database/sql"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/datadog"
)

var nowFunc = time.Now

// Simulator fabricates occupancy and ambient readings in place of a real
// sensor fleet. Counts flow through the same invariant-enforcing occupancy
// writes the rest of the system uses.
type Simulator struct {
	db *sql.DB
}

func NewSimulator(dbConn *sql.DB) *Simulator {
	return &Simulator{db: dbConn}
}

// RefreshSensors is the scheduled sensor-refresh task.
func (s *Simulator) RefreshSensors(runID string) {
	rooms, err := db.GetAllRooms(s.db)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Sensor refresh aborted reading rooms")
		return
	}

	var occupied int
	for _, room := range rooms {
		count := fabricateCount(room.Capacity)
		if err := db.UpsertOccupancy(s.db, room.ID, count, nowFunc()); err != nil {
			log.Error().Err(err).Str("run_id", runID).Int("room", room.ID).Msg("Sensor refresh aborted writing occupancy")
			return
		}
		if count > 0 {
			occupied++
		}

		temperature := 20 + rand.Float64()*10
		humidity := 40 + rand.Float64()*30
		datadog.Gauge("room.temperature", temperature, "room:"+room.Name)
		datadog.Gauge("room.humidity", humidity, "room:"+room.Name)
	}

	datadog.Gauge("rooms.occupied", float64(occupied))

	log.Debug().
		Str("run_id", runID).
		Int("rooms", len(rooms)).
		Int("occupied", occupied).
		Msg("Sensor refresh pass finished")
}

// Rooms sit empty roughly a third of the time so the empty-room rule has
// something to do.
func fabricateCount(capacity int) int {
	if rand.Float64() < 0.35 {
		return 0
	}
	max := capacity / 2
	if max < 1 {
		max = 1
	}
	return 1 + rand.Intn(max)
}
