package engine

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/alerts"
	"github.com/sensegrid/sense-controller/internal/config"
	"github.com/sensegrid/sense-controller/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()

	dbConn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	dbConn.SetMaxOpenConns(1)
	t.Cleanup(func() { dbConn.Close() })

	require.NoError(t, db.ApplyMigrations(dbConn))

	cfg := &config.Config{
		EmptyRoomThresholdMinutes: 15,
		ACRotationThresholdHours:  8,
		TariffPerKWh:              8.0,
		HighConsumptionKWh:        50.0,
		MaintenanceLeadDays:       7,
		Intervals: config.Intervals{
			RuntimeAccrualMinutes: 1,
		},
	}

	return New(dbConn, cfg, alerts.NewSink(dbConn, nil)), dbConn
}

type roomOpts struct {
	building string
	floor    int
	critical bool
	vip      bool
}

func insertRoom(t *testing.T, dbConn *sql.DB, id int, opts roomOpts) {
	t.Helper()

	if opts.building == "" {
		opts.building = "main"
	}
	if opts.floor == 0 {
		opts.floor = 1
	}

	_, err := dbConn.Exec(`INSERT INTO rooms (id, room_number, name, room_type, building, floor, capacity, is_critical, is_vip)
		VALUES (?, ?, ?, 'office', ?, ?, 10, ?, ?)`,
		id, 100+id, "Room "+string(rune('A'+id)), opts.building, opts.floor, opts.critical, opts.vip)
	require.NoError(t, err)

	_, err = dbConn.Exec(`INSERT INTO occupancy (room_id, is_occupied, person_count) VALUES (?, FALSE, 0)`, id)
	require.NoError(t, err)
}

func insertDevice(t *testing.T, dbConn *sql.DB, id string, kind model.DeviceKind, roomID int, on bool, switched time.Time) {
	t.Helper()

	_, err := dbConn.Exec(`INSERT INTO devices (id, name, kind, room_id, power_watts, active) VALUES (?, ?, ?, ?, 1000, TRUE)`,
		id, id, string(kind), roomID)
	require.NoError(t, err)

	var lastOn, lastOff interface{}
	if on {
		lastOn = switched.UTC().Format(time.RFC3339)
	} else if !switched.IsZero() {
		lastOff = switched.UTC().Format(time.RFC3339)
	}
	_, err = dbConn.Exec(`INSERT INTO device_status (device_id, is_on, last_switched_on, last_switched_off) VALUES (?, ?, ?, ?)`,
		id, on, lastOn, lastOff)
	require.NoError(t, err)
}

func setOccupancy(t *testing.T, dbConn *sql.DB, roomID, count int, lastExit time.Time) {
	t.Helper()

	var exit interface{}
	if !lastExit.IsZero() {
		exit = lastExit.UTC().Format(time.RFC3339)
	}
	_, err := dbConn.Exec(`UPDATE occupancy SET is_occupied = ?, person_count = ?, last_exit_time = ? WHERE room_id = ?`,
		count > 0, count, exit, roomID)
	require.NoError(t, err)
}

func getStatus(t *testing.T, dbConn *sql.DB, deviceID string) model.DeviceStatus {
	t.Helper()

	s, err := db.GetDeviceStatus(dbConn, deviceID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return *s
}

func countLogEntries(t *testing.T, dbConn *sql.DB, action string) int {
	t.Helper()

	var count int
	require.NoError(t, dbConn.QueryRow(`SELECT COUNT(*) FROM activity_log WHERE action = ?`, action).Scan(&count))
	return count
}

func unreadAlerts(t *testing.T, dbConn *sql.DB) []model.Alert {
	t.Helper()

	found, err := db.GetUnreadAlerts(dbConn)
	require.NoError(t, err)
	return found
}
