package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/sensegrid/sense-controller/db"
	"github.com/sensegrid/sense-controller/internal/alerts"
	"github.com/sensegrid/sense-controller/internal/api"
	"github.com/sensegrid/sense-controller/internal/config"
	"github.com/sensegrid/sense-controller/internal/datadog"
	"github.com/sensegrid/sense-controller/internal/engine"
	"github.com/sensegrid/sense-controller/internal/logging"
	"github.com/sensegrid/sense-controller/internal/notifications"
	"github.com/sensegrid/sense-controller/internal/scheduler"
	"github.com/sensegrid/sense-controller/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("db_path", cfg.DBPath).
		Msg("Starting sense controller")

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer dbConn.Close()

	if err := db.ApplyMigrations(dbConn); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	if err := db.SeedDatabase(dbConn); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed database")
	}

	if cfg.EnableDatadog {
		datadog.InitMetrics(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags)
	}

	notify := notifications.New(cfg.NtfyTopic)
	sink := alerts.NewSink(dbConn, notify)
	eng := engine.New(dbConn, cfg, sink)

	intervals := cfg.TaskIntervals()
	sched := scheduler.New()
	sched.Register("empty-room-check", intervals["empty-room-check"], eng.RunEmptyRoomAutoOff)
	sched.Register("ac-rotation", intervals["ac-rotation"], eng.RunACRotation)
	sched.Register("consumption", intervals["consumption"], eng.RunConsumptionAccounting)
	sched.Register("maintenance", intervals["maintenance"], eng.RunMaintenanceCheck)
	sched.Register("runtime-accrual", intervals["runtime-accrual"], eng.RunRuntimeAccrual)
	if cfg.EnableTelemetry {
		sim := telemetry.NewSimulator(dbConn)
		sched.Register("sensor-refresh", intervals["sensor-refresh"], sim.RefreshSensors)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	srv := api.NewServer(dbConn, eng)
	go func() {
		if err := srv.Start(cfg.APIPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down, waiting for in-flight rule passes")
	sched.Wait()
}
