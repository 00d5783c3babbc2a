package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	// embedded zoneinfo so TIMEZONE resolves in minimal containers
	_ "time/tzdata"
)

// Transport modes
const (
	TransportSimulated = "simulated"
	TransportGateway   = "gateway"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Dispatch  DispatchConfig
	Transport TransportConfig
	Scoring   ScoringConfig
	Timezone  string
	Env       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Queue    string
	JobTTL   time.Duration
	Prefetch int
}

// DispatchConfig tunes the dispatch loop and the scheduler tick
type DispatchConfig struct {
	SendTimeout time.Duration
	LeaseMargin time.Duration
	Concurrency int
	Tick        string
}

// TransportConfig holds the message provider settings handed to the transport client
type TransportConfig struct {
	Mode        string
	BaseURL     string
	PhoneID     string
	Token       string
	Timeout     time.Duration
	SuccessRate float64
}

// ScoringConfig holds the automatic rescoring cadence
type ScoringConfig struct {
	Cron        string
	Concurrency int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "crmdispatch"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "crmdispatch_db"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password: getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
			Queue:    getEnv("RABBITMQ_QUEUE", "campaign_dispatch"),
			JobTTL:   getEnvAsDuration("RABBITMQ_JOB_TTL", time.Minute),
			Prefetch: getEnvAsInt("RABBITMQ_PREFETCH", 4),
		},
		Dispatch: DispatchConfig{
			SendTimeout: getEnvAsDuration("DISPATCH_SEND_TIMEOUT", 15*time.Second),
			LeaseMargin: getEnvAsDuration("DISPATCH_LEASE_MARGIN", 30*time.Second),
			Concurrency: getEnvAsInt("DISPATCH_CONCURRENCY", 4),
			Tick:        getEnv("DISPATCH_TICK", "@every 5s"),
		},
		Transport: TransportConfig{
			Mode:        getEnv("TRANSPORT_MODE", TransportSimulated),
			BaseURL:     getEnv("TRANSPORT_BASE_URL", ""),
			PhoneID:     getEnv("TRANSPORT_PHONE_ID", ""),
			Token:       getEnv("TRANSPORT_TOKEN", ""),
			Timeout:     getEnvAsDuration("TRANSPORT_TIMEOUT", 10*time.Second),
			SuccessRate: getEnvAsFloat("TRANSPORT_SUCCESS_RATE", 0.95),
		},
		Scoring: ScoringConfig{
			Cron:        getEnv("SCORING_CRON", "@every 15m"),
			Concurrency: getEnvAsInt("SCORING_CONCURRENCY", 4),
		},
		Timezone: getEnv("TIMEZONE", "America/Sao_Paulo"),
		Env:      getEnv("ENV", "development"),
	}

	// Validate required fields
	if config.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}

	switch config.Transport.Mode {
	case TransportSimulated:
	case TransportGateway:
		if config.Transport.BaseURL == "" || config.Transport.PhoneID == "" || config.Transport.Token == "" {
			return nil, fmt.Errorf("TRANSPORT_BASE_URL, TRANSPORT_PHONE_ID and TRANSPORT_TOKEN are required in gateway mode")
		}
	default:
		return nil, fmt.Errorf("invalid TRANSPORT_MODE: %s", config.Transport.Mode)
	}

	if config.Dispatch.SendTimeout <= 0 || config.Dispatch.LeaseMargin <= 0 {
		return nil, fmt.Errorf("DISPATCH_SEND_TIMEOUT and DISPATCH_LEASE_MARGIN must be positive")
	}

	if _, err := config.Location(); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// Location returns the timezone business hours are evaluated in
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings such as "15s" or "2m"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
