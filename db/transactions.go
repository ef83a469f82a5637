package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sensegrid/sense-controller/internal/model"
)

// ErrAlreadyInState reports a switch that would not change the device's
// state. The guard lives in the UPDATE itself, so two concurrent identical
// toggles cannot both count a transition.
var ErrAlreadyInState = errors.New("device already in requested state")

// applySwitch writes one ON/OFF transition: state, matching timestamp, and
// switch count.
func applySwitch(tx *sql.Tx, deviceID string, on bool, now time.Time) error {
	column := "last_switched_off"
	if on {
		column = "last_switched_on"
	}
	res, err := tx.Exec(`UPDATE device_status SET is_on = ?, `+column+` = ?, switch_count = switch_count + 1
		WHERE device_id = ? AND is_on != ?`,
		on, formatTime(now), deviceID, on)
	if err != nil {
		return fmt.Errorf("update status for device %s: %w", deviceID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update for device %s: %w", deviceID, err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM device_status WHERE device_id = ?`, deviceID).Scan(&exists); err != nil {
			return fmt.Errorf("check status record for device %s: %w", deviceID, err)
		}
		if exists == 0 {
			return fmt.Errorf("no status record for device %s", deviceID)
		}
		return fmt.Errorf("device %s: %w", deviceID, ErrAlreadyInState)
	}
	return nil
}

func insertLogEntry(tx *sql.Tx, e model.ActivityEntry) error {
	var deviceID interface{}
	if e.DeviceID != "" {
		deviceID = e.DeviceID
	}
	var runID interface{}
	if e.RunID != "" {
		runID = e.RunID
	}
	_, err := tx.Exec(`INSERT INTO activity_log (device_id, action, details, actor, run_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID, e.Action, e.Details, e.Actor, runID, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

// SetDeviceState switches one device and writes its audit entries in a
// single transaction.
func SetDeviceState(dbConn *sql.DB, deviceID string, on bool, now time.Time, entries []model.ActivityEntry) error {
	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := applySwitch(tx, deviceID, on, now); err != nil {
		tx.Rollback()
		return err
	}
	for _, e := range entries {
		if err := insertLogEntry(tx, e); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// AutoOffRoom switches off one room's batch of devices as a single
// unit-of-work, with one audit entry per device. A device someone switched
// off since the batch was assembled is skipped along with its audit entry.
func AutoOffRoom(dbConn *sql.DB, deviceIDs []string, now time.Time, entries []model.ActivityEntry) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	if len(entries) != len(deviceIDs) {
		return fmt.Errorf("auto-off batch: %d devices but %d entries", len(deviceIDs), len(entries))
	}
	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	for i, id := range deviceIDs {
		if err := applySwitch(tx, id, false, now); err != nil {
			if errors.Is(err, ErrAlreadyInState) {
				continue
			}
			tx.Rollback()
			return err
		}
		if err := insertLogEntry(tx, entries[i]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RotateAC swaps an overdue AC for the least-recently-used idle AC in the
// same room, atomically. Both transitions carry the same instant. Returns
// the replacement device ID, or "" when no idle AC exists (in which case
// nothing is changed).
func RotateAC(dbConn *sql.DB, acID string, now time.Time, actor, runID string) (string, error) {
	tx, err := dbConn.Begin()
	if err != nil {
		return "", fmt.Errorf("start transaction: %w", err)
	}

	var roomID int
	if err := tx.QueryRow(`SELECT room_id FROM devices WHERE id = ?`, acID).Scan(&roomID); err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no such device %s", acID)
		}
		return "", fmt.Errorf("resolve room for AC %s: %w", acID, err)
	}

	// Least recently used first; device ID breaks ties. Never-used units
	// (NULL timestamp) sort first.
	var replacementID string
	err = tx.QueryRow(`SELECT d.id FROM devices d
		JOIN device_status s ON d.id = s.device_id
		WHERE d.room_id = ? AND d.kind = 'ac' AND d.id != ? AND d.active = TRUE AND s.is_on = FALSE
		ORDER BY COALESCE(s.last_switched_off, '') ASC, d.id ASC LIMIT 1`, roomID, acID).Scan(&replacementID)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return "", nil
	}
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("find replacement AC in room %d: %w", roomID, err)
	}

	if err := applySwitch(tx, acID, false, now); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := applySwitch(tx, replacementID, true, now); err != nil {
		tx.Rollback()
		return "", err
	}

	entry := model.ActivityEntry{
		DeviceID:  acID,
		Action:    "AC Rotation",
		Details:   fmt.Sprintf("Room %d: AC %s -> AC %s", roomID, acID, replacementID),
		Actor:     actor,
		RunID:     runID,
		Timestamp: now,
	}
	if err := insertLogEntry(tx, entry); err != nil {
		tx.Rollback()
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit rotation: %w", err)
	}
	return replacementID, nil
}

// EmergencyShutdown switches off every running device in the scope in one
// transaction and writes a single summary audit entry. Critical rooms are
// exempt unless force is set. Empty building means all buildings; zero
// floor means all floors. Returns the number of devices switched off.
func EmergencyShutdown(dbConn *sql.DB, building string, floor int, force bool, now time.Time, actor, runID string) (int64, error) {
	tx, err := dbConn.Begin()
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}

	query := `UPDATE device_status SET is_on = FALSE, last_switched_off = ?, switch_count = switch_count + 1
		WHERE is_on = TRUE AND device_id IN (
			SELECT d.id FROM devices d JOIN rooms r ON d.room_id = r.id WHERE 1=1`
	args := []interface{}{formatTime(now)}

	if !force {
		query += ` AND r.is_critical = FALSE`
	}
	if building != "" {
		query += ` AND r.building = ?`
		args = append(args, building)
	}
	if floor != 0 {
		query += ` AND r.floor = ?`
		args = append(args, floor)
	}
	query += `)`

	res, err := tx.Exec(query, args...)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("emergency shutdown update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("emergency shutdown rows affected: %w", err)
	}

	entry := model.ActivityEntry{
		Action:    "Emergency Shutdown",
		Details:   fmt.Sprintf("Building: %s, Floor: %d, Force: %t, Devices: %d", building, floor, force, affected),
		Actor:     actor,
		RunID:     runID,
		Timestamp: now,
	}
	if err := insertLogEntry(tx, entry); err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit emergency shutdown: %w", err)
	}
	return affected, nil
}

// UpsertOccupancy records a new person count for a room. The occupied flag
// is always derived from the count, and entry/exit timestamps are stamped
// on the corresponding transition, so the two can never disagree.
func UpsertOccupancy(dbConn *sql.DB, roomID, personCount int, now time.Time) error {
	if personCount < 0 {
		return fmt.Errorf("person count must not be negative, got %d", personCount)
	}

	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	var wasOccupied bool
	err = tx.QueryRow(`SELECT is_occupied FROM occupancy WHERE room_id = ?`, roomID).Scan(&wasOccupied)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return fmt.Errorf("read occupancy for room %d: %w", roomID, err)
	}

	occupied := personCount > 0
	ts := formatTime(now)

	_, err = tx.Exec(`INSERT INTO occupancy (room_id, is_occupied, person_count, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET is_occupied = excluded.is_occupied, person_count = excluded.person_count, updated_at = excluded.updated_at`,
		roomID, occupied, personCount, ts)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert occupancy for room %d: %w", roomID, err)
	}

	if occupied && !wasOccupied {
		_, err = tx.Exec(`UPDATE occupancy SET last_entry_time = ? WHERE room_id = ?`, ts, roomID)
	} else if !occupied && wasOccupied {
		_, err = tx.Exec(`UPDATE occupancy SET last_exit_time = ? WHERE room_id = ?`, ts, roomID)
	}
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("stamp occupancy transition for room %d: %w", roomID, err)
	}

	return tx.Commit()
}

// AccrueRuntime adds elapsed minutes to every running device. Returns the
// number of devices credited.
func AccrueRuntime(dbConn *sql.DB, minutes int) (int64, error) {
	res, err := dbConn.Exec(`UPDATE device_status SET runtime_minutes = runtime_minutes + ? WHERE is_on = TRUE`, minutes)
	if err != nil {
		return 0, fmt.Errorf("accrue runtime: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("accrue runtime rows affected: %w", err)
	}
	return affected, nil
}

// AppendEnergyRecord appends one consumption record. Records are never
// mutated after insertion.
func AppendEnergyRecord(dbConn *sql.DB, rec model.EnergyRecord) error {
	_, err := dbConn.Exec(`INSERT INTO energy_records (device_id, room_id, consumption_kwh, cost, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.RoomID, rec.KWh, rec.Cost, formatTime(rec.Start), formatTime(rec.End))
	if err != nil {
		return fmt.Errorf("append energy record for device %s: %w", rec.DeviceID, err)
	}
	return nil
}

// AppendAlert persists an alert unread and returns its ID.
func AppendAlert(dbConn *sql.DB, a model.Alert) (int64, error) {
	var roomID, deviceID interface{}
	if a.RoomID != nil {
		roomID = *a.RoomID
	}
	if a.DeviceID != nil {
		deviceID = *a.DeviceID
	}
	res, err := dbConn.Exec(`INSERT INTO alerts (alert_type, title, message, room_id, device_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
		string(a.Type), a.Title, a.Message, roomID, deviceID, formatTime(a.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("append alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alert insert id: %w", err)
	}
	return id, nil
}

// MarkAlertRead flips an alert to read. The transition is one-way.
func MarkAlertRead(dbConn *sql.DB, id int64) error {
	res, err := dbConn.Exec(`UPDATE alerts SET is_read = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert %d read: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert %d read: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("no such alert %d", id)
	}
	return nil
}

// AppendActivityLog appends one audit entry outside any other transaction.
func AppendActivityLog(dbConn *sql.DB, e model.ActivityEntry) error {
	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := insertLogEntry(tx, e); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ApplyStatusUpdate applies a validated partial status update. An is_on
// change goes through the same transition bookkeeping as a toggle; setting
// is_on to its current value is a no-op for timestamps and switch count.
func ApplyStatusUpdate(dbConn *sql.DB, deviceID string, upd model.StatusUpdate, now time.Time) error {
	if err := upd.Validate(); err != nil {
		return fmt.Errorf("invalid status update for device %s: %w", deviceID, err)
	}
	if upd.Empty() {
		return nil
	}

	tx, err := dbConn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	var isOn bool
	if err := tx.QueryRow(`SELECT is_on FROM device_status WHERE device_id = ?`, deviceID).Scan(&isOn); err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no status record for device %s", deviceID)
		}
		return fmt.Errorf("read status for device %s: %w", deviceID, err)
	}

	if upd.IsOn != nil && *upd.IsOn != isOn {
		if err := applySwitch(tx, deviceID, *upd.IsOn, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	if upd.RuntimeMinutes != nil {
		if _, err := tx.Exec(`UPDATE device_status SET runtime_minutes = ? WHERE device_id = ?`, *upd.RuntimeMinutes, deviceID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update runtime for device %s: %w", deviceID, err)
		}
	}
	if upd.SwitchCount != nil {
		if _, err := tx.Exec(`UPDATE device_status SET switch_count = ? WHERE device_id = ?`, *upd.SwitchCount, deviceID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update switch count for device %s: %w", deviceID, err)
		}
	}
	if upd.TempSetting != nil {
		if _, err := tx.Exec(`UPDATE device_status SET temperature_setting = ? WHERE device_id = ?`, *upd.TempSetting, deviceID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update temperature setting for device %s: %w", deviceID, err)
		}
	}
	if upd.SpeedSetting != nil {
		if _, err := tx.Exec(`UPDATE device_status SET speed_setting = ? WHERE device_id = ?`, *upd.SpeedSetting, deviceID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update speed setting for device %s: %w", deviceID, err)
		}
	}

	return tx.Commit()
}
