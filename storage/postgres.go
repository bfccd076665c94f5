package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fenilmodi00/ipo-allotment-client/database"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
)

// PostgresStore keeps values in the kv_store table
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgresStore connects to Postgres and ensures the kv_store table exists
func OpenPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	config := shared.NewDefaultDatabaseConfig()
	db, err := database.ConnectWithConfig(ctx, dbURL, &config)
	if err != nil {
		return nil, err
	}

	if err := database.EnsureSchema(ctx, db); err != nil {
		database.Close(db)
		return nil, err
	}

	return &PostgresStore{DB: db}, nil
}

// NewPostgresStore wraps an open connection
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Get retrieves a value
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_store WHERE key = $1`

	var value string
	err := s.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts a value
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.DB.ExecContext(ctx, query, key, value)
	return err
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
