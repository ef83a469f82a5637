package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/alerts"
	"github.com/sensegrid/sense-controller/internal/config"
	"github.com/sensegrid/sense-controller/internal/engine"
	"github.com/sensegrid/sense-controller/internal/model"
)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
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
	}
	eng := engine.New(dbConn, cfg, alerts.NewSink(dbConn, nil))
	return NewServer(dbConn, eng), dbConn
}

func seedRoom(t *testing.T, dbConn *sql.DB, id int, critical bool) {
	t.Helper()
	_, err := dbConn.Exec(`INSERT INTO rooms (id, room_number, name, room_type, building, floor, capacity, is_critical, is_vip)
		VALUES (?, ?, ?, 'office', 'main', 1, 10, ?, FALSE)`, id, 100+id, fmt.Sprintf("Room %d", id), critical)
	require.NoError(t, err)
}

func seedDevice(t *testing.T, dbConn *sql.DB, id, kind string, roomID int, on bool) {
	t.Helper()
	_, err := dbConn.Exec(`INSERT INTO devices (id, name, kind, room_id, power_watts) VALUES (?, ?, ?, ?, 1000)`, id, id, kind, roomID)
	require.NoError(t, err)
	_, err = dbConn.Exec(`INSERT INTO device_status (device_id, is_on) VALUES (?, ?)`, id, on)
	require.NoError(t, err)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestGetRooms(t *testing.T) {
	srv, dbConn := newTestServer(t)
	seedRoom(t, dbConn, 1, false)
	seedRoom(t, dbConn, 2, true)

	rec := doRequest(t, srv, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []model.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)
}

func TestGetRoomDevices(t *testing.T) {
	srv, dbConn := newTestServer(t)
	seedRoom(t, dbConn, 1, false)
	seedDevice(t, dbConn, "FAN-101-01", "fan", 1, true)
	seedDevice(t, dbConn, "LIGHT-101-01", "light", 1, false)

	rec := doRequest(t, srv, http.MethodGet, "/api/rooms/1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var devices []DeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 2)
	assert.NotNil(t, devices[0].Status)

	t.Run("room not found", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/rooms/99/devices", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad room id", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/rooms/abc/devices", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestToggleDevice(t *testing.T) {
	srv, dbConn := newTestServer(t)
	seedRoom(t, dbConn, 1, false)
	seedRoom(t, dbConn, 2, true)
	seedDevice(t, dbConn, "FAN-101-01", "fan", 1, false)
	seedDevice(t, dbConn, "AC-102-01", "ac", 2, false)

	t.Run("success", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/devices/FAN-101-01/toggle",
			ToggleRequest{On: true, Actor: "alice"})
		require.Equal(t, http.StatusOK, rec.Code)

		var result engine.CommandResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.OK)
		assert.True(t, result.State)
	})

	t.Run("unknown device is ok=false, not a transport error", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/devices/GHOST-001/toggle",
			ToggleRequest{On: true, Actor: "alice"})
		require.Equal(t, http.StatusOK, rec.Code)

		var result engine.CommandResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.False(t, result.OK)
		assert.Equal(t, "Device not found", result.Reason)
	})

	t.Run("critical room denied without force", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/devices/AC-102-01/toggle",
			ToggleRequest{On: true, Actor: "alice"})
		require.Equal(t, http.StatusOK, rec.Code)

		var result engine.CommandResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.False(t, result.OK)
	})

	t.Run("missing actor", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/devices/FAN-101-01/toggle",
			ToggleRequest{On: true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/devices/FAN-101-01/toggle",
			bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEmergencyShutdownEndpoint(t *testing.T) {
	srv, dbConn := newTestServer(t)
	seedRoom(t, dbConn, 1, false)
	seedDevice(t, dbConn, "FAN-101-01", "fan", 1, true)
	seedDevice(t, dbConn, "LIGHT-101-01", "light", 1, true)

	rec := doRequest(t, srv, http.MethodPost, "/api/emergency-shutdown",
		ShutdownRequest{Building: "main", Actor: "ops"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.CommandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, "2 devices switched off", result.Reason)

	t.Run("missing actor", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/emergency-shutdown", ShutdownRequest{Building: "main"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAlertEndpoints(t *testing.T) {
	srv, dbConn := newTestServer(t)

	id, err := db.AppendAlert(dbConn, model.Alert{
		Type: model.AlertWarning, Title: "t", Message: "m", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []model.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)

	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/alerts/%d/read", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/alerts", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Empty(t, found)

	t.Run("missing alert", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/alerts/9999/read", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestActivityEndpoint(t *testing.T) {
	srv, dbConn := newTestServer(t)
	seedRoom(t, dbConn, 1, false)
	seedDevice(t, dbConn, "FAN-101-01", "fan", 1, false)

	doRequest(t, srv, http.MethodPost, "/api/devices/FAN-101-01/toggle", ToggleRequest{On: true, Actor: "alice"})

	rec := doRequest(t, srv, http.MethodGet, "/api/activity?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []model.ActivityEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "FAN-101-01", entries[0].DeviceID)
	assert.Equal(t, "alice", entries[0].Actor)

	t.Run("bad limit", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/activity?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
