package alerts

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/model"
	"github.com/sensegrid/sense-controller/internal/notifications"
)

// Sink persists operator alerts unread and mirrors them to the log.
// Critical and warning alerts are additionally pushed to ntfy when a
// client is configured. Failures here are logged, never raised: a rule
// pass must not die because a notice could not be written.
type Sink struct {
	db     *sql.DB
	notify *notifications.Client
}

func NewSink(dbConn *sql.DB, notify *notifications.Client) *Sink {
	return &Sink{db: dbConn, notify: notify}
}

func (s *Sink) Critical(title, message string, roomID *int, deviceID *string) {
	s.append(model.AlertCritical, title, message, roomID, deviceID)
}

func (s *Sink) Warning(title, message string, roomID *int, deviceID *string) {
	s.append(model.AlertWarning, title, message, roomID, deviceID)
}

func (s *Sink) Info(title, message string, roomID *int, deviceID *string) {
	s.append(model.AlertInfo, title, message, roomID, deviceID)
}

func (s *Sink) append(kind model.AlertType, title, message string, roomID *int, deviceID *string) {
	alert := model.Alert{
		Type:      kind,
		Title:     title,
		Message:   message,
		RoomID:    roomID,
		DeviceID:  deviceID,
		CreatedAt: time.Now(),
	}

	event := log.Info()
	if kind != model.AlertInfo {
		event = log.Warn()
	}
	event.Str("alert_type", string(kind)).Str("title", title).Msg(message)

	if _, err := db.AppendAlert(s.db, alert); err != nil {
		log.Error().Err(err).Str("title", title).Msg("Failed to persist alert")
	}

	if kind != model.AlertInfo {
		if err := s.notify.Send(title, message); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("Failed to push alert notification")
		}
	}
}
