package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"voxrun/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// ErrCursorNotFound is returned when no cursor row exists for a bot
var ErrCursorNotFound = errors.New("cursor not found")

type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to PostgreSQL and applies the migrations found in migrationsDir
func NewPostgresStorage(ctx context.Context, databaseURL, migrationsDir string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := runMigrations(config.ConnConfig, migrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// migrationsURL turns a directory into a file:// source URL (works on both Windows and Unix)
func migrationsURL(dir string) (string, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(path),
		}
		return u.String(), nil
	}

	return fmt.Sprintf("file://%s", path), nil
}

func runMigrations(connConfig *pgx.ConnConfig, dir string) error {
	sourceURL, err := migrationsURL(dir)
	if err != nil {
		return err
	}

	logger.Info("Running migrations", zap.String("path", sourceURL))

	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Migrations applied successfully")
	return nil
}

// Closes the database connection pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// GetCursor returns the stored cursor of a bot
func (s *PostgresStorage) GetCursor(ctx context.Context, botName string) (int64, error) {
	query := `SELECT update_id FROM bot_cursor WHERE bot_name = $1`

	var updateID int64
	err := s.pool.QueryRow(ctx, query, botName).Scan(&updateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCursorNotFound
		}
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	return updateID, nil
}

// SetCursor upserts the cursor of a bot
func (s *PostgresStorage) SetCursor(ctx context.Context, botName string, updateID int64) error {
	query := `
		INSERT INTO bot_cursor (bot_name, update_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (bot_name)
		DO UPDATE SET update_id = EXCLUDED.update_id, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, botName, updateID); err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}

	return nil
}

// DeleteCursor removes the cursor row of a bot
func (s *PostgresStorage) DeleteCursor(ctx context.Context, botName string) error {
	query := `DELETE FROM bot_cursor WHERE bot_name = $1`

	if _, err := s.pool.Exec(ctx, query, botName); err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}

	return nil
}
