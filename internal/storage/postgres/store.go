package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is the Postgres backed result store and job history
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger arbor.ILogger
}

// NewStore connects, pings and bootstraps the schema
func NewStore(ctx context.Context, config *common.PostgresConfig, logger arbor.ILogger) (*Store, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	schema := config.Schema
	if schema == "" {
		schema = "public"
	}
	if !identifierPattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid postgres schema name %q", schema)
	}

	pc, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		pc.MaxConns = int32(config.MaxConns)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "covera"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{pool: pool, schema: schema, logger: logger}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("schema", schema).Int("max_conns", int(pc.MaxConns)).Msg("Postgres result store initialized")
	return s, nil
}

func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func (s *Store) bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + s.table("partners") + ` (
			id           TEXT PRIMARY KEY,
			domain       TEXT NOT NULL UNIQUE,
			company_name TEXT NOT NULL,
			website_url  TEXT NOT NULL,
			country      TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("result_records") + ` (
			id           TEXT PRIMARY KEY,
			job_id       TEXT NOT NULL,
			partner_id   TEXT NOT NULL,
			eligible     BOOLEAN NOT NULL,
			risk_profile TEXT NOT NULL DEFAULT '',
			product      JSONB NOT NULL,
			enrichment   JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS result_records_job_id_idx ON ` + s.table("result_records") + ` (job_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("jobs") + ` (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			snapshot   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to bootstrap postgres schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
