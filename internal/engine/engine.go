package engine

import (
	"database/sql"

	"github.com/sensegrid/sense-controller/internal/alerts"
	"github.com/sensegrid/sense-controller/internal/config"
)

// Actor identity attached to every automated state change.
const SystemActor = "system"

// Engine evaluates the automation rules against the store and applies the
// resulting transitions. Rule passes are invoked by the scheduler; the
// command methods are invoked by humans through the API or by the rules
// themselves. All behavior is driven by the injected config, never by
// ambient state.
type Engine struct {
	db     *sql.DB
	cfg    *config.Config
	alerts *alerts.Sink
}

func New(dbConn *sql.DB, cfg *config.Config, sink *alerts.Sink) *Engine {
	return &Engine{db: dbConn, cfg: cfg, alerts: sink}
}

// CommandResult is what manual commands hand back to the caller: a success
// flag plus a human-readable reason the UI can render directly.
type CommandResult struct {
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	State       bool   `json:"state"`
	Replacement string `json:"replacement,omitempty"`
}

func failure(reason string) CommandResult {
	return CommandResult{OK: false, Reason: reason}
}
