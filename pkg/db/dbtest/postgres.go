//go:build integration

package dbtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/angelmondragon/laundrytrack-backend/pkg/config"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/migrate"
)

const postgresImage = "postgres:16-alpine"

// MigrationsDir resolves the goose migrations directory independent of the
// test's working directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrate", "migrations")
}

// StartPostgres runs an empty PostgreSQL container for the duration of the
// test and returns a client with production transaction settings.
func StartPostgres(t *testing.T) *db.Client {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("laundrytrack"),
		postgres.WithUsername("laundrytrack"),
		postgres.WithPassword("laundrytrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	client, err := db.New(ctx, config.DBConfig{
		DSN:          dsn,
		Isolation:    config.IsolationSerializable,
		LockTimeout:  5 * time.Second,
		MaxOpenConns: 10,
	}, nil)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// OpenPostgres is StartPostgres with every goose migration applied.
func OpenPostgres(t *testing.T) *db.Client {
	t.Helper()
	client := StartPostgres(t)

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if err := migrate.Run(context.Background(), sqlDB, MigrationsDir(), "up"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return client
}
