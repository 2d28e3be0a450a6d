package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/config"
)

// ErrProfileNotFound is returned when no profile exists under the requested id or path.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileSource loads profile records for the CLI.
type ProfileSource interface {
	Load(ctx context.Context, id string) (*profile.Record, error)
	Close()
}

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// -- File Source --

// FileSource reads a single JSON profile from disk.
type FileSource struct {
	path string
	log  *zap.Logger
}

// NewFileSource expands a leading ~ in path.
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand profile path %q: %w", path, err)
	}
	return &FileSource{path: expanded, log: logger.Named("store")}, nil
}

// Load ignores id unless it is non-empty, in which case it names the file to read.
func (s *FileSource) Load(_ context.Context, id string) (*profile.Record, error) {
	path := s.path
	if id != "" {
		expanded, err := homedir.Expand(id)
		if err != nil {
			return nil, fmt.Errorf("failed to expand profile path %q: %w", id, err)
		}
		path = expanded
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	rec, err := profile.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	s.log.Debug("Loaded profile from file.", zap.String("path", path))
	return rec, nil
}

func (s *FileSource) Close() {}

// -- PostgreSQL Source --

const selectProfileSQL = `SELECT document FROM profiles WHERE id = $1`

// PostgresSource reads profile documents from the profiles table.
type PostgresSource struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresSource verifies the connection before returning.
func NewPostgresSource(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSource, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSource{pool: pool, log: logger.Named("store")}, nil
}

// Load fetches the JSONB document stored under id.
func (s *PostgresSource) Load(ctx context.Context, id string) (*profile.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("a profile id is required for the postgres store")
	}

	var document []byte
	if err := s.pool.QueryRow(ctx, selectProfileSQL, id).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("failed to query profile %s: %w", id, err)
	}

	rec, err := profile.Decode(document)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", id, err)
	}
	s.log.Debug("Loaded profile from database.", zap.String("profile_id", id))
	return rec, nil
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Open builds the source selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (ProfileSource, error) {
	switch cfg.Kind {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		src, err := NewPostgresSource(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return src, nil
	case "file", "":
		return NewFileSource(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
