// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"eventgate"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Config is the full service configuration.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Database Database

	// RedisAddr enables the background reconciliation worker when set.
	RedisAddr string `env:"REDIS_ADDR"`

	// ReconcileCron is the schedule for the ticket-issuance repair job.
	ReconcileCron string `env:"RECONCILE_CRON" envDefault:"*/5 * * * *"`

	// TicketValidity is the window during which an issued ticket code can
	// be scanned, measured from issuance.
	TicketValidity time.Duration `env:"TICKET_VALIDITY" envDefault:"24h"`

	// ConflictRetries bounds internal retries on transient update conflicts
	// before surfacing a service-unavailable condition.
	ConflictRetries int `env:"CONFLICT_RETRIES" envDefault:"3"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
