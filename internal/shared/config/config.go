package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	Log        LogConfig
	Intake     IntakeConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type LogConfig struct {
	// Level is one of zerolog's level strings (debug, info, warn, error)
	Level string
	// Pretty enables the console writer for local development
	Pretty bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB, which carries the
// workflow event stream consumed by the audit trail.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
	// Enabled switches between the EventStoreDB bus and the in-process bus
	Enabled bool
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens issued by the external identity service
	JWTSecret string
	// Enabled disables the auth edge in local development
	Enabled bool
}

// IntakeConfig configures the legacy HIS intake adapter (SQL Server polling).
type IntakeConfig struct {
	Enabled     bool
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	Table       string
	PollSeconds int
	BatchSize   int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "medwatch"),
			Password: getEnv("DB_PASSWORD", "medwatch"),
			Database: getEnv("DB_NAME", "medwatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
			Enabled:  getEnvBool("EVENTSTORE_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Enabled:   getEnvBool("AUTH_ENABLED", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
		Intake: IntakeConfig{
			Enabled:     getEnvBool("INTAKE_ENABLED", false),
			Host:        getEnv("INTAKE_DB_HOST", "localhost"),
			Port:        getEnvInt("INTAKE_DB_PORT", 1433),
			User:        getEnv("INTAKE_DB_USER", ""),
			Password:    getEnv("INTAKE_DB_PASSWORD", ""),
			Database:    getEnv("INTAKE_DB_NAME", "his"),
			SSLMode:     getEnv("INTAKE_DB_SSLMODE", "disable"),
			Table:       getEnv("INTAKE_TABLE", "dbo.AdverseEvents"),
			PollSeconds: getEnvInt("INTAKE_POLL_SECONDS", 60),
			BatchSize:   getEnvInt("INTAKE_BATCH_SIZE", 100),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
