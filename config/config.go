// Package config loads environment variables and provides a typed Config used across the service.
// Values are read once at startup; an optional .env file is honoured for local development.
// Use Validate before wiring the Discord session or the database pool.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Discord
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`
	GameCommand   string `env:"GAME_COMMAND" envDefault:"whosaid"`

	// Database. DBDsn wins over the discrete fields when set.
	DBDsn             string        `env:"DB_DSN"`
	DBHost            string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort            int           `env:"DB_PORT" envDefault:"5432"`
	DBUser            string        `env:"DB_USER" envDefault:"staticord"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME" envDefault:"staticord"`
	DBSSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"3"`
	DBConnectDelay    time.Duration `env:"DB_CONNECT_DELAY" envDefault:"1s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// HTTP (health/status/metrics)
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Archive
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`
	ResyncInterval       time.Duration `env:"RESYNC_INTERVAL" envDefault:"6h"`

	// Game
	GameQuestions    int           `env:"GAME_QUESTIONS" envDefault:"40"`
	GameMinLength    int           `env:"GAME_MIN_LENGTH" envDefault:"50"`
	GameRoundTimeout time.Duration `env:"GAME_ROUND_TIMEOUT" envDefault:"20s"`
	GameCooldown     time.Duration `env:"GAME_COOLDOWN" envDefault:"10s"`
	GameMaxSessions  int           `env:"GAME_MAX_SESSIONS" envDefault:"2"`

	// Tracing (optional)
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file and then the process environment. It does not validate
// required credentials; call Validate for that.
func Load() (*Config, error) {
	// .env is a local dev convenience only; production relies on real env
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and limits.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	if c.CommandPrefix == "" || c.GameCommand == "" {
		return fmt.Errorf("COMMAND_PREFIX and GAME_COMMAND must not be empty")
	}
	checks := []struct {
		name string
		v    int
	}{
		{"DB_MAX_OPEN_CONNS", c.DBMaxOpenConns},
		{"DB_CONNECT_ATTEMPTS", c.DBConnectAttempts},
		{"RECONCILE_CONCURRENCY", c.ReconcileConcurrency},
		{"GAME_QUESTIONS", c.GameQuestions},
		{"GAME_MAX_SESSIONS", c.GameMaxSessions},
	}
	for _, ch := range checks {
		if ch.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", ch.name, ch.v)
		}
	}
	if c.GameRoundTimeout <= 0 {
		return fmt.Errorf("GAME_ROUND_TIMEOUT must be positive")
	}
	if c.ResyncInterval < 0 {
		return fmt.Errorf("RESYNC_INTERVAL must not be negative")
	}
	return nil
}

// DSN returns the Postgres connection string, built from the discrete DB_* fields unless DB_DSN is set.
func (c *Config) DSN() string {
	if c.DBDsn != "" {
		return c.DBDsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.DBHost + ":" + strconv.Itoa(c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
