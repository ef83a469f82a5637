package db

import (
	"database/sql"
	"fmt"
	"time"
)

// AgeACTimestampsCLI backdates last_switched_on for every running AC so the
// next rotation pass treats them as overdue. Debug tooling only.
func AgeACTimestampsCLI(dbPath string, hours int) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	backdated := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))

	res, err := dbConn.Exec(`UPDATE device_status SET last_switched_on = ?
		WHERE is_on = TRUE AND device_id IN (SELECT id FROM devices WHERE kind = 'ac')`, backdated)
	if err != nil {
		return fmt.Errorf("failed to age AC timestamps: %w", err)
	}

	affected, _ := res.RowsAffected()
	fmt.Printf("Backdated last_switched_on to %s for %d running ACs\n", backdated, affected)
	return nil
}

// VacateRoomCLI zeroes a room's occupancy with an exit time far enough in
// the past to satisfy the empty-room dwell threshold. Debug tooling only.
func VacateRoomCLI(dbPath string, roomID, minutesAgo int) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	exit := formatTime(time.Now().Add(-time.Duration(minutesAgo) * time.Minute))

	res, err := dbConn.Exec(`UPDATE occupancy SET is_occupied = FALSE, person_count = 0, last_exit_time = ? WHERE room_id = ?`,
		exit, roomID)
	if err != nil {
		return fmt.Errorf("failed to vacate room %d: %w", roomID, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		fmt.Printf("No occupancy record for room %d\n", roomID)
		return nil
	}
	fmt.Printf("Room %d vacated with last_exit_time %s\n", roomID, exit)
	return nil
}

// DumpStatusCLI prints every device with its current state.
func DumpStatusCLI(dbPath string) error {
	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	rows, err := dbConn.Query(`SELECT d.id, d.kind, d.room_id, s.is_on, s.runtime_minutes, s.switch_count
		FROM devices d JOIN device_status s ON d.id = s.device_id ORDER BY d.room_id, d.id`)
	if err != nil {
		return fmt.Errorf("failed to query device status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind string
		var roomID, runtime, switches int
		var on bool
		if err := rows.Scan(&id, &kind, &roomID, &on, &runtime, &switches); err != nil {
			return fmt.Errorf("failed to scan device status: %w", err)
		}
		state := "OFF"
		if on {
			state = "ON"
		}
		fmt.Printf("room %d  %-16s %-9s %-3s runtime=%dm switches=%d\n", roomID, id, kind, state, runtime, switches)
	}
	return rows.Err()
}
