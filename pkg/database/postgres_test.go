package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prohmpiriya/leadflow/pkg/config"
)

func integrationConfig(t *testing.T) *PostgresConfig {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	cfg := DefaultPostgresConfig()
	if host := os.Getenv("TEST_POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	if user := os.Getenv("TEST_POSTGRES_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("TEST_POSTGRES_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("TEST_POSTGRES_DATABASE"); dbname != "" {
		cfg.Database = dbname
	}
	return cfg
}

func TestDefaultPostgresConfig(t *testing.T) {
	cfg := DefaultPostgresConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Host)
	}
	if cfg.Port != 5432 {
		t.Errorf("Expected port 5432, got %d", cfg.Port)
	}
	if cfg.MaxConns != 25 {
		t.Errorf("Expected max conns 25, got %d", cfg.MaxConns)
	}
	if cfg.MinConns != 5 {
		t.Errorf("Expected min conns 5, got %d", cfg.MinConns)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.DatabaseConfig{
		Host:         "db",
		Port:         6543,
		User:         "lf",
		Password:     "pw",
		DBName:       "leads",
		SSLMode:      "require",
		MaxOpenConns: 40,
	})

	expected := "host=db port=6543 user=lf password=pw dbname=leads sslmode=require"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN mismatch:\nExpected: %s\nGot: %s", expected, dsn)
	}
	if cfg.MaxConns != 40 {
		t.Errorf("Expected max conns 40, got %d", cfg.MaxConns)
	}
	if cfg.MinConns != 5 {
		t.Errorf("Expected default min conns 5, got %d", cfg.MinConns)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"fk violation", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPostgres_InvalidConfig(t *testing.T) {
	cfg := &PostgresConfig{
		Host:           "invalid-host-that-does-not-exist",
		Port:           9999,
		User:           "invalid",
		Password:       "invalid",
		Database:       "invalid",
		SSLMode:        "disable",
		MaxRetries:     0,
		RetryInterval:  100 * time.Millisecond,
		ConnectTimeout: 1 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := NewPostgres(ctx, cfg); err == nil {
		t.Error("Expected error for invalid config, got nil")
	}
}

func TestNewPostgres_Integration(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	db, err := NewPostgres(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	if !db.IsConnected(ctx) {
		t.Error("Expected IsConnected to return true")
	}
	if db.Stats() == nil {
		t.Error("Expected Stats() to return non-nil")
	}
}

func TestWithTx_RollbackOnError_Integration(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	db, err := NewPostgres(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := db.Exec(ctx, "CREATE TABLE IF NOT EXISTS tx_check (value INT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	defer func() { _ = db.Exec(ctx, "DROP TABLE IF EXISTS tx_check") }()

	sentinel := errors.New("abort")
	err = WithTx(ctx, db.Pool(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO tx_check (value) VALUES ($1)", 7); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want %v", err, sentinel)
	}

	var count int
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM tx_check").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rollback to leave 0 rows, got %d", count)
	}
}
