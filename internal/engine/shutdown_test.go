package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmergencyShutdownScopedToBuilding(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{building: "main"})
	insertRoom(t, dbConn, 2, roomOpts{building: "main", critical: true})
	insertRoom(t, dbConn, 3, roomOpts{building: "annex"})

	now := time.Now()
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, true, now)
	insertDevice(t, dbConn, "AC-101-01", "ac", 1, true, now)
	insertDevice(t, dbConn, "AC-102-01", "ac", 2, true, now)
	insertDevice(t, dbConn, "FAN-103-01", "fan", 3, true, now)

	result := eng.EmergencyShutdown("main", 0, false, "admin")
	require.True(t, result.OK)

	assert.False(t, getStatus(t, dbConn, "FAN-101-01").IsOn)
	assert.False(t, getStatus(t, dbConn, "AC-101-01").IsOn)
	assert.True(t, getStatus(t, dbConn, "AC-102-01").IsOn, "critical room exempt without force")
	assert.True(t, getStatus(t, dbConn, "FAN-103-01").IsOn, "other building out of scope")
	assert.Equal(t, 1, countLogEntries(t, dbConn, "Emergency Shutdown"), "exactly one summary audit entry")
}

func TestEmergencyShutdownForceIncludesCritical(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{critical: true})
	insertDevice(t, dbConn, "AC-101-01", "ac", 1, true, time.Now())

	result := eng.EmergencyShutdown("", 0, true, "admin")
	require.True(t, result.OK)

	assert.False(t, getStatus(t, dbConn, "AC-101-01").IsOn)
}

func TestEmergencyShutdownScopedToFloor(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{floor: 1})
	insertRoom(t, dbConn, 2, roomOpts{floor: 2})
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, true, time.Now())
	insertDevice(t, dbConn, "FAN-102-01", "fan", 2, true, time.Now())

	require.True(t, eng.EmergencyShutdown("", 2, false, "admin").OK)

	assert.True(t, getStatus(t, dbConn, "FAN-101-01").IsOn)
	assert.False(t, getStatus(t, dbConn, "FAN-102-01").IsOn)
}

func TestEmergencyShutdownLeavesOffDevicesAlone(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{})
	off := time.Now().Add(-3 * time.Hour)
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, false, off)

	require.True(t, eng.EmergencyShutdown("", 0, false, "admin").OK)

	status := getStatus(t, dbConn, "FAN-101-01")
	assert.Equal(t, 0, status.SwitchCount, "already-off devices get no phantom transition")
	assert.WithinDuration(t, off, status.LastSwitchedOff, time.Second)
}

func TestEmergencyShutdownRaisesCriticalAlert(t *testing.T) {
	eng, dbConn := newTestEngine(t)
	insertRoom(t, dbConn, 1, roomOpts{})
	insertDevice(t, dbConn, "FAN-101-01", "fan", 1, true, time.Now())

	require.True(t, eng.EmergencyShutdown("", 0, false, "admin").OK)

	found := unreadAlerts(t, dbConn)
	require.Len(t, found, 1)
	assert.Equal(t, "critical", string(found[0].Type))
}
