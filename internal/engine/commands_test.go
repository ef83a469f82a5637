package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleDeviceNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	result := eng.Toggle("FAN-999-01", true, "alice", false)

	assert.False(t, result.OK)
	assert.Equal(t, "Device not found", result.Reason)
}

func TestToggleSwitchesOnAndLogs(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{})
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, false, time.Time{})

	result := eng.Toggle("FAN-101-01", true, "alice", false)

	require.True(t, result.OK)
	assert.True(t, result.State)

	status := getStatus(t, dbConn, "FAN-101-01")
	assert.True(t, status.IsOn)
	assert.False(t, status.LastSwitchedOn.IsZero())
	assert.Equal(t, 1, status.SwitchCount)
	assert.Equal(t, 1, countLogEntries(t, dbConn, "Toggle ON"))
}

func TestToggleSameStateIsNoOp(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{})
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, false, time.Time{})

	result := eng.Toggle("FAN-101-01", false, "alice", false)

	require.True(t, result.OK)
	assert.False(t, result.State)

	status := getStatus(t, dbConn, "FAN-101-01")
	assert.False(t, status.IsOn)
	assert.True(t, status.LastSwitchedOff.IsZero(), "no-op must not stamp timestamps")
	assert.Equal(t, 0, status.SwitchCount)
	assert.Equal(t, 0, countLogEntries(t, dbConn, "Toggle OFF"))
}

func TestToggleCriticalRoomDenied(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{critical: true})
	insertDevice(t, dbConn, "AC-101-01", "ac", 1, false, time.Time{})

	result := eng.Toggle("AC-101-01", true, "alice", false)

	assert.False(t, result.OK)
	assert.Equal(t, "Critical room - elevated permission required", result.Reason)
	assert.False(t, getStatus(t, dbConn, "AC-101-01").IsOn, "no mutation on permission denial")
}

func TestToggleCriticalRoomForced(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{critical: true})
	insertDevice(t, dbConn, "AC-101-01", "ac", 1, false, time.Time{})

	result := eng.Toggle("AC-101-01", true, "admin", true)

	require.True(t, result.OK)
	assert.True(t, getStatus(t, dbConn, "AC-101-01").IsOn)
	assert.Equal(t, 1, countLogEntries(t, dbConn, "Forced Control"))
}

func TestToggleVIPRoomAudited(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{vip: true})
	insertDevice(t, dbConn, "LIGHT-101-01", "light", 1, false, time.Time{})

	result := eng.Toggle("LIGHT-101-01", true, "alice", false)

	require.True(t, result.OK, "VIP audit must not block the toggle")
	assert.Equal(t, 1, countLogEntries(t, dbConn, "VIP Access"))
	assert.Equal(t, 1, countLogEntries(t, dbConn, "Toggle ON"))
}

func TestToggleAlternatesTimestampsAndCount(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{})
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, false, time.Time{})

	require.True(t, eng.Toggle("FAN-101-01", true, "alice", false).OK)
	afterOn := getStatus(t, dbConn, "FAN-101-01")
	require.True(t, eng.Toggle("FAN-101-01", false, "alice", false).OK)
	afterOff := getStatus(t, dbConn, "FAN-101-01")

	assert.Equal(t, 1, afterOn.SwitchCount)
	assert.Equal(t, 2, afterOff.SwitchCount)
	assert.False(t, afterOff.IsOn)
	assert.False(t, afterOff.LastSwitchedOff.IsZero())
	assert.Equal(t, afterOn.LastSwitchedOn, afterOff.LastSwitchedOn, "OFF transition must not touch the ON timestamp")
}
