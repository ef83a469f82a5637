package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/engine"
	"github.com/sensegrid/sense-controller/internal/model"
)

// Server is the command surface consumed by the dashboard UI. Command
// failures (not-found, permission) come back as 200s with ok=false and a
// reason string the UI renders directly; only transport and store errors
// use HTTP error codes.
type Server struct {
	db     *sql.DB
	engine *engine.Engine
}

type ToggleRequest struct {
	On    bool   `json:"on"`
	Actor string `json:"actor"`
	Force bool   `json:"force"`
}

type ShutdownRequest struct {
	Building string `json:"building,omitempty"`
	Floor    int    `json:"floor,omitempty"`
	Force    bool   `json:"force"`
	Actor    string `json:"actor"`
}

type DeviceResponse struct {
	model.Device
	Status *model.DeviceStatus `json:"status,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, eng *engine.Engine) *Server {
	return &Server{db: database, engine: eng}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/rooms", s.getRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}/devices", s.getRoomDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/toggle", s.toggleDevice).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{id}/rotate", s.rotateDevice).Methods(http.MethodPost)
	r.HandleFunc("/api/emergency-shutdown", s.emergencyShutdown).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts", s.getAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{id}/read", s.markAlertRead).Methods(http.MethodPost)
	r.HandleFunc("/api/activity", s.getActivity).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := db.GetAllRooms(s.db)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get rooms")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) getRoomDevices(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid room ID")
		return
	}

	room, err := db.GetRoomByID(s.db, roomID)
	if err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("Failed to get room")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if room == nil {
		s.writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	devices, err := db.GetDevicesByRoom(s.db, roomID)
	if err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("Failed to get devices")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		status, err := db.GetDeviceStatus(s.db, d.ID)
		if err != nil {
			log.Error().Err(err).Str("device", d.ID).Msg("Failed to get device status")
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		response = append(response, DeviceResponse{Device: d, Status: status})
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) toggleDevice(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Actor == "" {
		s.writeError(w, http.StatusBadRequest, "Actor is required")
		return
	}

	result := s.engine.Toggle(mux.Vars(r)["id"], req.On, req.Actor, req.Force)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) rotateDevice(w http.ResponseWriter, r *http.Request) {
	result := s.engine.RotateOne(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) emergencyShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Actor == "" {
		s.writeError(w, http.StatusBadRequest, "Actor is required")
		return
	}

	result := s.engine.EmergencyShutdown(req.Building, req.Floor, req.Force, req.Actor)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := db.GetUnreadAlerts(s.db)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get alerts")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) markAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	if err := db.MarkAlertRead(s.db, id); err != nil {
		s.writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := db.GetRecentActivity(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get activity log")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
