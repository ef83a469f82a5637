package model

import (
	"fmt"
	"time"
)

type DeviceKind string

const (
	KindFan       DeviceKind = "fan"
	KindAC        DeviceKind = "ac"
	KindLight     DeviceKind = "light"
	KindProjector DeviceKind = "projector"
	KindComputer  DeviceKind = "computer"
)

// AutoOffEligible reports whether a device kind may be switched off by the
// empty-room rule. ACs are handled by rotation and never blanket-switched.
func AutoOffEligible(kind DeviceKind) bool {
	switch kind {
	case KindFan, KindLight, KindProjector:
		return true
	default:
		return false
	}
}

type AlertType string

const (
	AlertCritical AlertType = "critical"
	AlertWarning  AlertType = "warning"
	AlertInfo     AlertType = "info"
)

type Room struct {
	ID       int    `json:"id"`
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Building string `json:"building"`
	Floor    int    `json:"floor"`
	Capacity int    `json:"capacity"`
	Critical bool   `json:"critical"`
	VIP      bool   `json:"vip"`
}

type Device struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Kind            DeviceKind `json:"kind"`
	RoomID          int        `json:"room_id"`
	PowerWatts      int        `json:"power_watts"`
	Active          bool       `json:"active"`
	InstalledAt     time.Time  `json:"installed_at"`
	NextMaintenance time.Time  `json:"next_maintenance"`
}

type DeviceStatus struct {
	DeviceID        string    `json:"device_id"`
	IsOn            bool      `json:"is_on"`
	LastSwitchedOn  time.Time `json:"last_switched_on"`
	LastSwitchedOff time.Time `json:"last_switched_off"`
	RuntimeMinutes  int       `json:"runtime_minutes"`
	SwitchCount     int       `json:"switch_count"`
	TempSetting     float64   `json:"temperature_setting"`
	SpeedSetting    int       `json:"speed_setting"`
}

type Occupancy struct {
	RoomID      int       `json:"room_id"`
	IsOccupied  bool      `json:"is_occupied"`
	PersonCount int       `json:"person_count"`
	LastEntry   time.Time `json:"last_entry_time"`
	LastExit    time.Time `json:"last_exit_time"`
}

type EnergyRecord struct {
	ID       int64     `json:"id"`
	DeviceID string    `json:"device_id"`
	RoomID   int       `json:"room_id"`
	KWh      float64   `json:"consumption_kwh"`
	Cost     float64   `json:"cost"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
}

type Alert struct {
	ID        int64     `json:"id"`
	Type      AlertType `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RoomID    *int      `json:"room_id,omitempty"`
	DeviceID  *string   `json:"device_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivityEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Actor     string    `json:"actor"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate enumerates the status fields a caller is allowed to change.
// Nil fields are left untouched.
type StatusUpdate struct {
	IsOn           *bool    `json:"is_on,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
	SwitchCount    *int     `json:"switch_count,omitempty"`
	TempSetting    *float64 `json:"temperature_setting,omitempty"`
	SpeedSetting   *int     `json:"speed_setting,omitempty"`
}

func (u StatusUpdate) Validate() error {
	if u.RuntimeMinutes != nil && *u.RuntimeMinutes < 0 {
		return fmt.Errorf("runtime_minutes must be non-negative, got %d", *u.RuntimeMinutes)
	}
	if u.SwitchCount != nil && *u.SwitchCount < 0 {
		return fmt.Errorf("switch_count must be non-negative, got %d", *u.SwitchCount)
	}
	if u.TempSetting != nil && (*u.TempSetting < 16 || *u.TempSetting > 30) {
		return fmt.Errorf("temperature_setting out of range: %.1f", *u.TempSetting)
	}
	if u.SpeedSetting != nil && (*u.SpeedSetting < 0 || *u.SpeedSetting > 5) {
		return fmt.Errorf("speed_setting out of range: %d", *u.SpeedSetting)
	}
	return nil
}

func (u StatusUpdate) Empty() bool {
	return u.IsOn == nil && u.RuntimeMinutes == nil && u.SwitchCount == nil &&
		u.TempSetting == nil && u.SpeedSetting == nil
}
