// Package dbtest starts a throwaway postgres for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hackgods/triage-scheduling/internal/db"
)

// Postgres starts a migrated postgres container and returns a pool to it.
// The test is skipped under -short or when no container runtime is available.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	var (
		container *postgres.PostgresContainer
		err       error
	)
	func() {
		// testcontainers panics when no docker host can be found
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("container runtime unavailable: %v", r)
			}
		}()
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("triage"),
			postgres.WithUsername("triage"),
			postgres.WithPassword("triage"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	if err := db.Migrate(dsn, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
