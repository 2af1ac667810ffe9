package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings, parsed from environment once at startup.
type Config struct {
	DatastorePath  string `env:"DATASTORE_PATH" envDefault:"data/troupe.json"`
	ScenarioDir    string `env:"SCENARIO_DIR" envDefault:"data/scenarios"`
	CredentialsDir string `env:"CREDENTIALS_DIR" envDefault:"data/credentials"`
	AccountsFile   string `env:"ACCOUNTS_FILE" envDefault:"data/accounts.yaml"`
	AIProvider     string `env:"AI_PROVIDER" envDefault:"g4f"`

	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	ReconnectAttempts   int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`

	// Alerting thresholds consumed by telemetry default rules.
	ErrorRateAlert    float64 `env:"ALERT_ERROR_RATE" envDefault:"0.3"`
	ErrorRateWarning  float64 `env:"ALERT_ERROR_RATE_WARNING" envDefault:"0.1"`
	ErrorCountCeiling int64   `env:"ALERT_ERROR_COUNT" envDefault:"100"`
	OfflineFraction   float64 `env:"ALERT_OFFLINE_FRACTION" envDefault:"0.5"`
	ReplyLatencyMs    int64   `env:"ALERT_REPLY_LATENCY_MS" envDefault:"5000"`
	GiveawayFailRate  float64 `env:"ALERT_GIVEAWAY_FAIL_RATE" envDefault:"0.5"`
	ProcessErrorCount int64   `env:"ALERT_PROCESS_ERROR_COUNT" envDefault:"50"`

	ContextCap    int `env:"DIALOGUE_CONTEXT_CAP" envDefault:"512"`
	HistoryWindow int `env:"DIALOGUE_HISTORY_WINDOW" envDefault:"40"`
}

// New loads .env if present and parses the environment into Config.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("[ERR] Failed to parse environment: %v", err)
	}
	return cfg
}
