//go:build integration

// Package integration runs the document store against a real PostgreSQL
// started with testcontainers. Run with: go test -tags integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/erp/weclapp-migration/internal/infrastructure/config"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence"
	"github.com/erp/weclapp-migration/internal/infrastructure/schema"
)

const (
	pgImage    = "postgres:16-alpine"
	pgDatabase = "erpnext_test"
	pgUser     = "migrator"
	pgPassword = "migrator"
)

// TestDB is a destination store in a throwaway PostgreSQL container with
// the versioned schema applied.
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	DSN   string
}

// NewTestDB starts the container, opens it the way the migrator does and
// runs every schema migration. Everything is released on test cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, pgImage,
		tcpostgres.WithDatabase(pgDatabase),
		tcpostgres.WithUsername(pgUser),
		tcpostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Int(),
		User:         pgUser,
		Password:     pgPassword,
		DBName:       pgDatabase,
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		LogLevel:     "silent",
	}
	log := zap.NewNop()
	if os.Getenv("TEST_DB_DEBUG") != "" {
		cfg.LogLevel = "info"
		log = zaptest.NewLogger(t)
	}

	db, err := persistence.NewDatabase(cfg, log)
	require.NoError(t, err, "open destination store")
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	m, err := schema.New(sqlDB, log)
	require.NoError(t, err, "create schema migrator")
	require.NoError(t, m.Up(), "apply schema")

	return &TestDB{DB: db.DB, SqlDB: sqlDB, DSN: cfg.DSN()}
}
