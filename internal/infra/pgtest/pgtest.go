// README: Shared helper for PostgreSQL-backed tests; skips unless BOLT_TEST_DSN is set.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejith7/project-bolt/internal/infra"
)

// Pool connects to BOLT_TEST_DSN, applies migrations and empties the given tables.
func Pool(t *testing.T, truncate ...string) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("BOLT_TEST_DSN")
	if dsn == "" {
		t.Skip("BOLT_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := infra.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root, err := repoRoot()
	if err != nil {
		t.Fatalf("find repo root: %v", err)
	}
	if err := infra.ApplyMigrations(ctx, db, filepath.Join(root, "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	for _, table := range truncate {
		if _, err := db.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}
