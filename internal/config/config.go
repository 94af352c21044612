package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the gateway runtime settings, all sourced from env vars.
type Config struct {
	Port             string
	APIBaseURL       string
	RealtimeURL      string
	DBFile           string
	AuthSecret       string
	CredentialFile   string
	AMQPURL          string
	AMQPExchange     string
	OTLPEndpoint     string
	Environment      string
	DebugRoutes      bool
	DirectoryTimeout time.Duration
	DialTimeout      time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	directoryTimeout, err := time.ParseDuration(getEnv("DIRECTORY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse DIRECTORY_TIMEOUT: %w", err)
	}
	dialTimeout, err := time.ParseDuration(getEnv("WS_DIAL_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse WS_DIAL_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8086"),
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8080"),
		RealtimeURL:      getEnv("REALTIME_URL", "ws://localhost:8080/socket"),
		DBFile:           getEnv("GATEWAY_DB", "portal-gateway.db"),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		CredentialFile:   getEnv("CREDENTIAL_FILE", "credential.jwt"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "portal_events"),
		OTLPEndpoint:     os.Getenv("OTLP_ENDPOINT"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		DebugRoutes:      getEnv("DEBUG_ROUTES", "") == "true",
		DirectoryTimeout: directoryTimeout,
		DialTimeout:      dialTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.RealtimeURL == "" {
		return fmt.Errorf("REALTIME_URL is required")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
