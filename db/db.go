// Package db provides the Postgres connection pool, the idempotent archive schema and the
// Store gateway used by the archiver and the guessing game.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// ErrStoreUnavailable is returned by Connect when the pool could not be established within the
// configured attempts. It is fatal at startup.
var ErrStoreUnavailable = errors.New("db: store unavailable")

// OpError is a failed store operation after startup. Op names the gateway method.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return "db " + e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// PoolOptions sizes the pool and bounds startup retries.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Attempts        int
	Delay           time.Duration
}

// Connect opens a Postgres pool for dsn and verifies it with a ping, retrying a fixed number of
// times with a constant delay. Exhausting the attempts returns an error wrapping ErrStoreUnavailable.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	return connect(ctx, func() (*sql.DB, error) { return sql.Open("pgx", dsn) }, opts)
}

func connect(ctx context.Context, open func() (*sql.DB, error), opts PoolOptions) (*sql.DB, error) {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	tries := 0
	op := func() (*sql.DB, error) {
		tries++
		dbx, err := open()
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := dbx.PingContext(pingCtx); err != nil {
			_ = dbx.Close()
			return nil, err
		}
		return dbx, nil
	}
	dbx, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Delay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("database not ready, retrying",
				slog.Int("attempt", tries), slog.Int("max_attempts", attempts),
				slog.Duration("wait", next), slog.Any("err", err), slog.String("component", "db"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrStoreUnavailable, tries, err)
	}
	if opts.MaxOpenConns > 0 {
		dbx.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		dbx.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		dbx.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	slog.Info("database connected", slog.Int("attempts", tries), slog.Int("max_open_conns", opts.MaxOpenConns), slog.String("component", "db"))
	return dbx, nil
}

// Migrate creates the archive schema. Every statement is idempotent so it runs on each start.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS staticord`,
		`CREATE TABLE IF NOT EXISTS staticord.guild (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.member (
			id TEXT NOT NULL,
			guild TEXT NOT NULL,
			name TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (id, guild)
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.message (
			id TEXT PRIMARY KEY,
			guild TEXT NOT NULL,
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			datetime TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.nickname (
			id BIGSERIAL PRIMARY KEY,
			guild TEXT NOT NULL,
			member TEXT NOT NULL,
			nickname TEXT,
			datetime TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.activity (
			id BIGSERIAL PRIMARY KEY,
			guild TEXT NOT NULL,
			member TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT,
			name TEXT,
			start TIMESTAMPTZ,
			"end" TIMESTAMPTZ,
			listening_title TEXT,
			listening_artist TEXT,
			listening_album TEXT,
			listening_track_id TEXT,
			listening_party TEXT,
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.member_emoji (
			guild TEXT NOT NULL,
			member TEXT NOT NULL,
			emoji TEXT NOT NULL,
			PRIMARY KEY (guild, member)
		)`,
		`CREATE TABLE IF NOT EXISTS staticord.backfill_cursor (
			channel TEXT PRIMARY KEY,
			watermark TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_channel_datetime ON staticord.message(channel, datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_message_guild ON staticord.message(guild)`,
		`CREATE INDEX IF NOT EXISTS idx_nickname_last ON staticord.nickname(guild, member, datetime DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_last ON staticord.activity(guild, member, observed_at DESC, id DESC)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
