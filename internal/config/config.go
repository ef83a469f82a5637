package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Intervals struct {
	SensorRefreshMinutes  int `json:"sensor_refresh_minutes"`
	EmptyRoomCheckMinutes int `json:"empty_room_check_minutes"`
	ACRotationMinutes     int `json:"ac_rotation_minutes"`
	ConsumptionMinutes    int `json:"consumption_minutes"`
	MaintenanceMinutes    int `json:"maintenance_minutes"`
	RuntimeAccrualMinutes int `json:"runtime_accrual_minutes"`
}

type Config struct {
	DBPath     string
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	EmptyRoomThresholdMinutes int     `json:"empty_room_threshold_minutes"`
	ACRotationThresholdHours  int     `json:"ac_rotation_threshold_hours"`
	TariffPerKWh              float64 `json:"tariff_per_kwh"`
	HighConsumptionKWh        float64 `json:"high_consumption_kwh"`
	MaintenanceLeadDays       int     `json:"maintenance_lead_days"`

	APIPort         int    `json:"api_port"`
	NtfyTopic       string `json:"ntfy_topic"`
	EnableTelemetry bool   `json:"enable_telemetry"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	Intervals Intervals `json:"intervals"`
}

func defaults() Config {
	return Config{
		EmptyRoomThresholdMinutes: 15,
		ACRotationThresholdHours:  8,
		TariffPerKWh:              8.0,
		HighConsumptionKWh:        50.0,
		MaintenanceLeadDays:       7,
		APIPort:                   8080,
		EnableTelemetry:           true,
		DDNamespace:               "sense.",
		Intervals: Intervals{
			SensorRefreshMinutes:  5,
			EmptyRoomCheckMinutes: 15,
			ACRotationMinutes:     60,
			ConsumptionMinutes:    60,
			MaintenanceMinutes:    30,
			RuntimeAccrualMinutes: 1,
		},
	}
}

func Load() *Config {
	cfg := defaults()
	var logLevel string

	flag.StringVar(&cfg.DBPath, "db-path", "data/sense.db", "Path to the SQLite database file")
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "Path to controller config file (optional)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Path to log file (stderr only if empty)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	if cfg.ConfigFile != "" {
		file, err := os.Open(cfg.ConfigFile)
		if err != nil {
			panic("Failed to load config file: " + err.Error())
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			panic("Failed to parse config file: " + err.Error())
		}
	}

	cfg.validate()
	return &cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) EmptyRoomThreshold() time.Duration {
	return time.Duration(cfg.EmptyRoomThresholdMinutes) * time.Minute
}

func (cfg *Config) ACRotationThreshold() time.Duration {
	return time.Duration(cfg.ACRotationThresholdHours) * time.Hour
}

func (cfg *Config) MaintenanceLead() time.Duration {
	return time.Duration(cfg.MaintenanceLeadDays) * 24 * time.Hour
}

// TaskIntervals maps each scheduled task name to its cadence.
func (cfg *Config) TaskIntervals() map[string]time.Duration {
	m := time.Minute
	return map[string]time.Duration{
		"sensor-refresh":   time.Duration(cfg.Intervals.SensorRefreshMinutes) * m,
		"empty-room-check": time.Duration(cfg.Intervals.EmptyRoomCheckMinutes) * m,
		"ac-rotation":      time.Duration(cfg.Intervals.ACRotationMinutes) * m,
		"consumption":      time.Duration(cfg.Intervals.ConsumptionMinutes) * m,
		"maintenance":      time.Duration(cfg.Intervals.MaintenanceMinutes) * m,
		"runtime-accrual":  time.Duration(cfg.Intervals.RuntimeAccrualMinutes) * m,
	}
}

func (cfg *Config) validate() {
	var problems []string

	for name, interval := range cfg.TaskIntervals() {
		if interval <= 0 {
			problems = append(problems, fmt.Sprintf("interval for task %q must be positive", name))
		}
	}
	if cfg.EmptyRoomThresholdMinutes < 0 {
		problems = append(problems, "empty_room_threshold_minutes must not be negative")
	}
	if cfg.ACRotationThresholdHours <= 0 {
		problems = append(problems, "ac_rotation_threshold_hours must be positive")
	}
	if cfg.TariffPerKWh < 0 {
		problems = append(problems, "tariff_per_kwh must not be negative")
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port %d is not a valid port", cfg.APIPort))
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
