package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sensegrid/sense-controller/internal/model"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, ns.String)
	return t
}

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var r model.Room
	err := row.Scan(&r.ID, &r.Number, &r.Name, &r.Type, &r.Building, &r.Floor, &r.Capacity, &r.Critical, &r.VIP)
	return r, err
}

const roomColumns = `id, room_number, name, room_type, building, floor, capacity, is_critical, is_vip`

// GetAllRooms retrieves all rooms.
func GetAllRooms(dbConn *sql.DB) ([]model.Room, error) {
	rows, err := dbConn.Query(`SELECT ` + roomColumns + ` FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoomByID retrieves a room by its ID. Returns nil when the room does
// not exist.
func GetRoomByID(dbConn *sql.DB, id int) (*model.Room, error) {
	r, err := scanRoom(dbConn.QueryRow(`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %d: %w", id, err)
	}
	return &r, nil
}

// GetRoomByDevice resolves the room a device belongs to. Returns nil when
// the device does not exist.
func GetRoomByDevice(dbConn *sql.DB, deviceID string) (*model.Room, error) {
	r, err := scanRoom(dbConn.QueryRow(`SELECT r.id, r.room_number, r.name, r.room_type, r.building, r.floor, r.capacity, r.is_critical, r.is_vip
		FROM rooms r JOIN devices d ON r.id = d.room_id WHERE d.id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room for device %s: %w", deviceID, err)
	}
	return &r, nil
}

const deviceColumns = `id, name, kind, room_id, power_watts, active, installed_at, next_maintenance`

func scanDevice(row interface{ Scan(...any) error }) (model.Device, error) {
	var d model.Device
	var installed, maintenance sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.RoomID, &d.PowerWatts, &d.Active, &installed, &maintenance)
	if err != nil {
		return d, err
	}
	d.InstalledAt = parseTime(installed)
	d.NextMaintenance = parseTime(maintenance)
	return d, nil
}

// GetDeviceByID retrieves a device. Returns nil when it does not exist.
func GetDeviceByID(dbConn *sql.DB, id string) (*model.Device, error) {
	d, err := scanDevice(dbConn.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", id, err)
	}
	return &d, nil
}

// GetDevicesByRoom retrieves all devices that belong to a room.
func GetDevicesByRoom(dbConn *sql.DB, roomID int) ([]model.Device, error) {
	rows, err := dbConn.Query(`SELECT `+deviceColumns+` FROM devices WHERE room_id = ? ORDER BY id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices for room %d: %w", roomID, err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func scanStatus(row interface{ Scan(...any) error }) (model.DeviceStatus, error) {
	var s model.DeviceStatus
	var on, off sql.NullString
	err := row.Scan(&s.DeviceID, &s.IsOn, &on, &off, &s.RuntimeMinutes, &s.SwitchCount, &s.TempSetting, &s.SpeedSetting)
	if err != nil {
		return s, err
	}
	s.LastSwitchedOn = parseTime(on)
	s.LastSwitchedOff = parseTime(off)
	return s, nil
}

const statusColumns = `device_id, is_on, last_switched_on, last_switched_off, runtime_minutes, switch_count, temperature_setting, speed_setting`

// GetDeviceStatus retrieves the status record for a device. Returns nil
// when the device has no status row.
func GetDeviceStatus(dbConn *sql.DB, deviceID string) (*model.DeviceStatus, error) {
	s, err := scanStatus(dbConn.QueryRow(`SELECT `+statusColumns+` FROM device_status WHERE device_id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status for device %s: %w", deviceID, err)
	}
	return &s, nil
}

// GetActiveDevicesInRoom retrieves devices in a room whose status is ON.
func GetActiveDevicesInRoom(dbConn *sql.DB, roomID int) ([]model.Device, error) {
	rows, err := dbConn.Query(`SELECT d.id, d.name, d.kind, d.room_id, d.power_watts, d.active, d.installed_at, d.next_maintenance
		FROM devices d JOIN device_status s ON d.id = s.device_id
		WHERE d.room_id = ? AND s.is_on = TRUE ORDER BY d.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active devices for room %d: %w", roomID, err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetRoomsEmptySince retrieves non-critical rooms that are unoccupied and
// whose last exit happened at or before the cutoff. Rooms with no recorded
// exit are included so a fresh deployment still converges to everything-off.
func GetRoomsEmptySince(dbConn *sql.DB, cutoff time.Time) ([]model.Room, error) {
	rows, err := dbConn.Query(`SELECT r.id, r.room_number, r.name, r.room_type, r.building, r.floor, r.capacity, r.is_critical, r.is_vip
		FROM rooms r JOIN occupancy o ON r.id = o.room_id
		WHERE o.is_occupied = FALSE
		  AND r.is_critical = FALSE
		  AND (o.last_exit_time IS NULL OR o.last_exit_time <= ?)
		ORDER BY r.id`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query empty rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetOverdueACs retrieves ACs that are ON and have been running since before
// the cutoff. ACs in critical rooms are excluded: no automated rule touches
// those rooms.
func GetOverdueACs(dbConn *sql.DB, cutoff time.Time) ([]model.Device, error) {
	rows, err := dbConn.Query(`SELECT d.id, d.name, d.kind, d.room_id, d.power_watts, d.active, d.installed_at, d.next_maintenance
		FROM devices d
		JOIN device_status s ON d.id = s.device_id
		JOIN rooms r ON d.room_id = r.id
		WHERE d.kind = 'ac'
		  AND s.is_on = TRUE
		  AND r.is_critical = FALSE
		  AND s.last_switched_on IS NOT NULL
		  AND s.last_switched_on <= ?
		ORDER BY d.id`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue ACs: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan AC: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetOccupancy retrieves the occupancy record for a room. Returns nil when
// none exists yet.
func GetOccupancy(dbConn *sql.DB, roomID int) (*model.Occupancy, error) {
	var o model.Occupancy
	var entry, exit sql.NullString
	err := dbConn.QueryRow(`SELECT room_id, is_occupied, person_count, last_entry_time, last_exit_time
		FROM occupancy WHERE room_id = ?`, roomID).
		Scan(&o.RoomID, &o.IsOccupied, &o.PersonCount, &entry, &exit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get occupancy for room %d: %w", roomID, err)
	}
	o.LastEntry = parseTime(entry)
	o.LastExit = parseTime(exit)
	return &o, nil
}

// RunningDevice pairs a device with its live status and building, for the
// accounting and metrics passes.
type RunningDevice struct {
	Device   model.Device
	Status   model.DeviceStatus
	Building string
}

// GetRunningDevices retrieves every device that is currently ON.
func GetRunningDevices(dbConn *sql.DB) ([]RunningDevice, error) {
	rows, err := dbConn.Query(`SELECT d.id, d.name, d.kind, d.room_id, d.power_watts, d.active, d.installed_at, d.next_maintenance,
		s.device_id, s.is_on, s.last_switched_on, s.last_switched_off, s.runtime_minutes, s.switch_count, s.temperature_setting, s.speed_setting,
		r.building
		FROM devices d
		JOIN device_status s ON d.id = s.device_id
		JOIN rooms r ON d.room_id = r.id
		WHERE s.is_on = TRUE ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query running devices: %w", err)
	}
	defer rows.Close()

	var running []RunningDevice
	for rows.Next() {
		var rd RunningDevice
		var installed, maintenance, on, off sql.NullString
		err = rows.Scan(&rd.Device.ID, &rd.Device.Name, &rd.Device.Kind, &rd.Device.RoomID, &rd.Device.PowerWatts,
			&rd.Device.Active, &installed, &maintenance,
			&rd.Status.DeviceID, &rd.Status.IsOn, &on, &off, &rd.Status.RuntimeMinutes, &rd.Status.SwitchCount,
			&rd.Status.TempSetting, &rd.Status.SpeedSetting,
			&rd.Building)
		if err != nil {
			return nil, fmt.Errorf("failed to scan running device: %w", err)
		}
		rd.Device.InstalledAt = parseTime(installed)
		rd.Device.NextMaintenance = parseTime(maintenance)
		rd.Status.LastSwitchedOn = parseTime(on)
		rd.Status.LastSwitchedOff = parseTime(off)
		running = append(running, rd)
	}
	return running, rows.Err()
}

// GetDevicesDueForMaintenance retrieves administratively active devices
// whose next maintenance date falls at or before the given time.
func GetDevicesDueForMaintenance(dbConn *sql.DB, by time.Time) ([]model.Device, error) {
	rows, err := dbConn.Query(`SELECT `+deviceColumns+` FROM devices
		WHERE active = TRUE AND next_maintenance IS NOT NULL AND next_maintenance <= ?
		ORDER BY next_maintenance`, formatTime(by))
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance-due devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetUnreadAlerts retrieves unread alerts, newest first.
func GetUnreadAlerts(dbConn *sql.DB) ([]model.Alert, error) {
	rows, err := dbConn.Query(`SELECT id, alert_type, title, message, room_id, device_id, is_read, created_at
		FROM alerts WHERE is_read = FALSE ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var roomID sql.NullInt64
		var deviceID, created sql.NullString
		err = rows.Scan(&a.ID, &a.Type, &a.Title, &a.Message, &roomID, &deviceID, &a.IsRead, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if roomID.Valid {
			id := int(roomID.Int64)
			a.RoomID = &id
		}
		if deviceID.Valid {
			id := deviceID.String
			a.DeviceID = &id
		}
		a.CreatedAt = parseTime(created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// HasAlertSince reports whether an alert with the given title already exists
// for a device after the given time. Used to de-duplicate recurring checks.
func HasAlertSince(dbConn *sql.DB, deviceID, title string, since time.Time) (bool, error) {
	var count int
	err := dbConn.QueryRow(`SELECT COUNT(*) FROM alerts WHERE device_id = ? AND title = ? AND created_at >= ?`,
		deviceID, title, formatTime(since)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check alerts for device %s: %w", deviceID, err)
	}
	return count > 0, nil
}

// GetRecentActivity retrieves the newest activity log entries.
func GetRecentActivity(dbConn *sql.DB, limit int) ([]model.ActivityEntry, error) {
	rows, err := dbConn.Query(`SELECT id, device_id, action, details, actor, run_id, timestamp
		FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var deviceID, details, runID, ts sql.NullString
		err = rows.Scan(&e.ID, &deviceID, &e.Action, &details, &e.Actor, &runID, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		e.DeviceID = deviceID.String
		e.Details = details.String
		e.RunID = runID.String
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
