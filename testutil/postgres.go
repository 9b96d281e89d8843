// Package testutil holds helpers shared by tests that need a real Postgres archive.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/staticord/db"
)

var tables = []string{"guild", "member", "message", "nickname", "activity", "member_emoji", "backfill_cursor"}

// SetupTestDB opens the database named by TEST_PG_DSN, applies the schema and empties every
// archive table. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, dsn, db.PoolOptions{Attempts: 1})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, tbl := range tables {
		if _, err := database.ExecContext(ctx, "TRUNCATE staticord."+tbl); err != nil {
			t.Fatalf("failed to truncate %s: %v", tbl, err)
		}
	}
	return database
}
