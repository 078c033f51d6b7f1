package config

import "time"

// Config holds the application configuration.
type Config struct {
	Server    Server   `yaml:"server" json:"server"`
	Database  Database `yaml:"database" json:"database"`
	Logger    Logger   `yaml:"logger" json:"logger"`
	Provider  Provider `yaml:"provider" json:"provider"`
	Backfill  Backfill `yaml:"backfill" json:"backfill"`
	Search    Limits   `yaml:"search" json:"search"`
	Recommend Limits   `yaml:"recommend" json:"recommend"`
	Jobs      Jobs     `yaml:"jobs" json:"jobs"`
	Demo      bool     `yaml:"demo" json:"demo"`
}

type Jobs struct {
	Log     bool   `yaml:"log" json:"log"`
	LogPath string `yaml:"log_path" json:"log_path" validate:"required_if=Log true"`
}

// Database holds the configuration for the database
type Database struct {
	Driver string `yaml:"driver" json:"driver" validate:"required,oneof=sqlite postgres memory"`
	Path   string `yaml:"path" json:"path" validate:"required_if=Driver sqlite"`
	DSN    string `yaml:"dsn" json:"dsn" validate:"required_if=Driver postgres"`
}

// Server hold the configuration for the Fiber server Config
type Server struct {
	PrintRoutes bool   `yaml:"show_routes" json:"show_routes"`
	Port        uint32 `yaml:"port" json:"port" validate:"required,max=65535"`
}

// Logger holds the configuration for the app logging
type Logger struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format  string `yaml:"format" json:"format" validate:"omitempty,oneof=json text logfmt"`
}

// Provider holds the upstream playlist and metadata source settings.
type Provider struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	ClientID          string  `yaml:"client_id" json:"client_id" validate:"required_if=Enabled true"`
	ClientSecret      string  `yaml:"client_secret" json:"client_secret" validate:"required_if=Enabled true"`
	TokenURL          string  `yaml:"token_url" json:"token_url" validate:"required,url"`
	APIURL            string  `yaml:"api_url" json:"api_url" validate:"required,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst" json:"burst" validate:"gte=1"`
	BatchSize         int     `yaml:"batch_size" json:"batch_size" validate:"gte=1,lte=50"`
	Workers           int     `yaml:"workers" json:"workers" validate:"gte=1"`
	Breaker           Breaker `yaml:"breaker" json:"breaker"`
}

// Breaker configures the circuit breaker in front of the provider.
type Breaker struct {
	MaxFailures uint32        `yaml:"max_failures" json:"max_failures" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// Backfill holds the metadata backfill settings.
type Backfill struct {
	PageSize        int           `yaml:"page_size" json:"page_size" validate:"gte=1"`
	ScheduleEnabled bool          `yaml:"schedule_enabled" json:"schedule_enabled"`
	Interval        time.Duration `yaml:"interval" json:"interval"`
}

// Limits bounds the result size of a query endpoint.
type Limits struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit" validate:"gte=1,ltefield=MaxLimit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit" validate:"gte=1"`
}

// Clamp returns requested bounded to [1, MaxLimit], or DefaultLimit when
// nothing was requested.
func (l Limits) Clamp(requested int) int {
	if requested <= 0 {
		return l.DefaultLimit
	}
	return min(requested, l.MaxLimit)
}
