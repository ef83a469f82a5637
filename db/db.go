package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_number INTEGER UNIQUE NOT NULL,
		name TEXT NOT NULL,
		room_type TEXT NOT NULL DEFAULT 'office',
		building TEXT NOT NULL DEFAULT 'main',
		floor INTEGER NOT NULL DEFAULT 1,
		capacity INTEGER NOT NULL DEFAULT 10,
		is_critical BOOLEAN NOT NULL DEFAULT FALSE,
		is_vip BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('fan','ac','light','projector','computer')),
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		power_watts INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		installed_at TEXT,
		next_maintenance TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS device_status (
		device_id TEXT PRIMARY KEY REFERENCES devices(id),
		is_on BOOLEAN NOT NULL DEFAULT FALSE,
		last_switched_on TEXT,
		last_switched_off TEXT,
		runtime_minutes INTEGER NOT NULL DEFAULT 0,
		switch_count INTEGER NOT NULL DEFAULT 0,
		temperature_setting REAL NOT NULL DEFAULT 24,
		speed_setting INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS occupancy (
		room_id INTEGER PRIMARY KEY REFERENCES rooms(id),
		is_occupied BOOLEAN NOT NULL DEFAULT FALSE,
		person_count INTEGER NOT NULL DEFAULT 0 CHECK (person_count >= 0),
		last_entry_time TEXT,
		last_exit_time TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS energy_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT REFERENCES devices(id),
		room_id INTEGER REFERENCES rooms(id),
		consumption_kwh REAL NOT NULL,
		cost REAL NOT NULL,
		start_time TEXT,
		end_time TEXT,
		recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_type TEXT NOT NULL CHECK (alert_type IN ('critical','warning','info')),
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		room_id INTEGER,
		device_id TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT,
		action TEXT NOT NULL,
		details TEXT,
		actor TEXT NOT NULL,
		run_id TEXT,
		timestamp TEXT NOT NULL
	)`,
}

func Open(path string) (*sql.DB, error) {
	dbConn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return dbConn, nil
}

func ApplyMigrations(dbConn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := dbConn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

type seedDevice struct {
	id    string
	name  string
	kind  model.DeviceKind
	watts int
}

// SeedDatabase provisions a starter set of rooms and devices on an empty
// database. A database that already has rooms is left untouched.
func SeedDatabase(dbConn *sql.DB) error {
	var count int
	if err := dbConn.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check rooms table: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	rooms := []model.Room{
		{Number: 101, Name: "Conference Room A", Type: "conference", Building: "main", Floor: 1, Capacity: 20},
		{Number: 102, Name: "Open Workspace", Type: "workspace", Building: "main", Floor: 1, Capacity: 30},
		{Number: 201, Name: "Executive Office", Type: "executive", Building: "main", Floor: 2, Capacity: 5, VIP: true},
		{Number: 202, Name: "Training Room", Type: "training", Building: "main", Floor: 2, Capacity: 25},
		{Number: 301, Name: "Server Room", Type: "server", Building: "main", Floor: 3, Capacity: 2, Critical: true},
		{Number: 401, Name: "Laboratory", Type: "lab", Building: "annex", Floor: 1, Capacity: 12},
	}

	now := time.Now().UTC()
	maintenance := now.AddDate(0, 6, 0)

	for i, r := range rooms {
		roomID := i + 1
		_, err = tx.Exec(`INSERT INTO rooms (id, room_number, name, room_type, building, floor, capacity, is_critical, is_vip)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			roomID, r.Number, r.Name, r.Type, r.Building, r.Floor, r.Capacity, r.Critical, r.VIP)
		if err != nil {
			return fmt.Errorf("failed to insert room %d: %w", r.Number, err)
		}

		_, err = tx.Exec(`INSERT INTO occupancy (room_id, is_occupied, person_count) VALUES (?, FALSE, 0)`, roomID)
		if err != nil {
			return fmt.Errorf("failed to insert occupancy for room %d: %w", r.Number, err)
		}

		devices := []seedDevice{
			{fmt.Sprintf("FAN-%03d-01", r.Number), "Ceiling Fan 1", model.KindFan, 75},
			{fmt.Sprintf("FAN-%03d-02", r.Number), "Ceiling Fan 2", model.KindFan, 75},
			{fmt.Sprintf("AC-%03d-01", r.Number), "Air Conditioner 1", model.KindAC, 1500},
			{fmt.Sprintf("AC-%03d-02", r.Number), "Air Conditioner 2", model.KindAC, 2000},
			{fmt.Sprintf("LIGHT-%03d-01", r.Number), "Panel Light 1", model.KindLight, 20},
		}

		for _, d := range devices {
			_, err = tx.Exec(`INSERT INTO devices (id, name, kind, room_id, power_watts, active, installed_at, next_maintenance)
				VALUES (?, ?, ?, ?, ?, TRUE, ?, ?)`,
				d.id, d.name, string(d.kind), roomID, d.watts,
				now.Format(time.RFC3339), maintenance.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to insert device %s: %w", d.id, err)
			}

			// Devices start OFF; no device is ever in an undefined state.
			_, err = tx.Exec(`INSERT INTO device_status (device_id, is_on) VALUES (?, FALSE)`, d.id)
			if err != nil {
				return fmt.Errorf("failed to insert status for device %s: %w", d.id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	log.Info().Int("rooms", len(rooms)).Msg("Database seeded with starter facility layout")
	return nil
}
