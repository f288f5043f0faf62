package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide environment configuration, composed of
// section structs the way the teacher's config.Config is, loaded once
// at startup via viper from the environment and an optional .env file.
type Config struct {
	Send     SendConfig
	Provider ProviderConfig
	Linking  LinkingConfig
	Logging  LoggingConfig
	Database DatabaseConfig
}

// SendConfig holds the process-wide send policy gates described in §6.
type SendConfig struct {
	TestEmailSendingEnabled       bool
	ProductionEmailSendingEnabled bool
	DryRun                        bool
}

// ProviderConfig holds the external email provider's credentials and
// sending identity. The provider client itself is an external
// collaborator (out of scope); only its configuration lives here.
type ProviderConfig struct {
	APIKey     string
	WebhookKey string
	FromEmail  string
	FromName   string
}

// LinkingConfig holds the quote-link generation secret and base URL.
type LinkingConfig struct {
	QuoteSecret string
	BaseURL     string
}

// LoggingConfig mirrors LOG_FILE/CONSOLE_OUTPUT from the source system.
type LoggingConfig struct {
	LogFile       string
	ConsoleOutput bool
}

// DatabaseConfig describes the Postgres connection used to host one
// database per organization (see pkg/database.ConnectionManager).
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Prefix                string
	SSLMode               string
	MaxConnections        int
	MaxConnectionsPerOrg  int
	ConnectionMaxLifetime time.Duration
	ConnectionMaxIdleTime time.Duration
}

// Load reads process configuration from the environment (and an
// optional .env file in the working directory), following the teacher's
// viper-based config loading convention.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("TEST_EMAIL_SENDING", "DISABLED")
	v.SetDefault("PRODUCTION_EMAIL_SENDING", "DISABLED")
	v.SetDefault("EMAIL_DRY_RUN", "true")
	v.SetDefault("LOG_FILE", "logs/email_scheduler.log")
	v.SetDefault("CONSOLE_OUTPUT", "false")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PREFIX", "enroll")
	v.SetDefault("DB_MAX_CONNECTIONS", 100)
	v.SetDefault("DB_MAX_CONNECTIONS_PER_ORG", 5)

	// Best-effort: a missing .env file is not an error, matching viper's
	// own recommendation for optional config files.
	_ = v.ReadInConfig()

	cfg := &Config{
		Send: SendConfig{
			TestEmailSendingEnabled:       v.GetString("TEST_EMAIL_SENDING") == "ENABLED",
			ProductionEmailSendingEnabled: v.GetString("PRODUCTION_EMAIL_SENDING") == "ENABLED",
			DryRun:                        v.GetBool("EMAIL_DRY_RUN"),
		},
		Provider: ProviderConfig{
			APIKey:     v.GetString("SENDGRID_API_KEY"),
			WebhookKey: v.GetString("SENDGRID_WEBHOOK_KEY"),
			FromEmail:  v.GetString("FROM_EMAIL"),
			FromName:   v.GetString("FROM_NAME"),
		},
		Linking: LinkingConfig{
			QuoteSecret: v.GetString("QUOTE_SECRET"),
			BaseURL:     v.GetString("EMAIL_SCHEDULER_BASE_URL"),
		},
		Logging: LoggingConfig{
			LogFile:       v.GetString("LOG_FILE"),
			ConsoleOutput: v.GetBool("CONSOLE_OUTPUT"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("DB_HOST"),
			Port:                  v.GetInt("DB_PORT"),
			User:                  v.GetString("DB_USER"),
			Password:              v.GetString("DB_PASSWORD"),
			Prefix:                v.GetString("DB_PREFIX"),
			SSLMode:               v.GetString("DB_SSLMODE"),
			MaxConnections:        v.GetInt("DB_MAX_CONNECTIONS"),
			MaxConnectionsPerOrg:  v.GetInt("DB_MAX_CONNECTIONS_PER_ORG"),
			ConnectionMaxLifetime: 30 * time.Minute,
			ConnectionMaxIdleTime: 5 * time.Minute,
		},
	}

	return cfg, nil
}
