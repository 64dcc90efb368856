package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	AppPort int

	DatabaseURL string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string

	TelegramBotToken string
	AdminID          int64
	AdminUsername    string

	SyncPassword string

	// Dispatch tuning, spec section 6.
	StateTTL             time.Duration
	QueueTTL             time.Duration
	BlocklistWaitSeconds time.Duration

	GoogleSheetsCredentialsFile string
	GoogleSheetsSpreadsheetID  string
}

// Load reads configuration from the environment (and .env, if present).
// It returns an error for FatalConfig conditions: required settings
// missing at boot time.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "dispatchbot"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "debug"))
	cfg.AppPort = cast.ToInt(getOrReturnDefault("APP_PORT", 8080))

	cfg.PostgresHost = cast.ToString(getOrReturnDefault("POSTGRES_HOST", "localhost"))
	cfg.PostgresPort = cast.ToString(getOrReturnDefault("POSTGRES_PORT", "5432"))
	cfg.PostgresUser = cast.ToString(getOrReturnDefault("POSTGRES_USER", "postgres"))
	cfg.PostgresPassword = cast.ToString(getOrReturnDefault("POSTGRES_PASSWORD", "1234"))
	cfg.PostgresDB = cast.ToString(getOrReturnDefault("POSTGRES_DB", "dispatchbot"))
	cfg.DatabaseURL = cast.ToString(getOrReturnDefault("DATABASE_URL", ""))

	cfg.RedisURL = cast.ToString(getOrReturnDefault("REDIS_URL", ""))
	cfg.RedisHost = cast.ToString(getOrReturnDefault("REDIS_HOST", "localhost"))
	cfg.RedisPort = cast.ToString(getOrReturnDefault("REDIS_PORT", "6379"))
	cfg.RedisPassword = cast.ToString(getOrReturnDefault("REDIS_PASSWORD", ""))

	cfg.TelegramBotToken = cast.ToString(getOrReturnDefault("TG_BOT_TOKEN", ""))
	cfg.AdminID = cast.ToInt64(getOrReturnDefault("ADMIN_ID", 0))
	cfg.AdminUsername = cast.ToString(getOrReturnDefault("ADMIN_USERNAME", ""))

	cfg.SyncPassword = cast.ToString(getOrReturnDefault("SYNC_PASSWORD", ""))

	cfg.StateTTL = time.Duration(cast.ToInt(getOrReturnDefault("STATE_TTL", 10800))) * time.Second
	cfg.QueueTTL = time.Duration(cast.ToInt(getOrReturnDefault("QUEUE_TTL", 30))) * time.Second
	cfg.BlocklistWaitSeconds = time.Duration(cast.ToInt(getOrReturnDefault("BLOCKLIST_WAIT_SECONDS", 120))) * time.Second

	cfg.GoogleSheetsCredentialsFile = cast.ToString(getOrReturnDefault("GOOGLE_SHEETS_CREDENTIALS_FILE", ""))
	cfg.GoogleSheetsSpreadsheetID = cast.ToString(getOrReturnDefault("GOOGLE_SHEETS_SPREADSHEET_ID", ""))

	if cfg.TelegramBotToken == "" {
		return cfg, fmt.Errorf("config: TG_BOT_TOKEN is required")
	}
	if cfg.SyncPassword == "" {
		return cfg, fmt.Errorf("config: SYNC_PASSWORD is required")
	}

	return cfg, nil
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
