// Package postgres stores scan history in PostgreSQL through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
    seq           BIGSERIAL PRIMARY KEY,
    id            TEXT NOT NULL UNIQUE,
    target        TEXT NOT NULL,
    options       JSONB NOT NULL,
    raw_result    TEXT NOT NULL,
    parsed_result JSONB NOT NULL,
    command       TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_target_created ON scans (target, created_at DESC, seq DESC);
`

const insertScan = `
INSERT INTO scans (id, target, options, raw_result, parsed_result, command, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectRecent = `
SELECT id, target, options, raw_result, parsed_result, command, created_at
FROM scans
WHERE target = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2`

const selectByID = `
SELECT id, target, options, raw_result, parsed_result, command, created_at
FROM scans
WHERE id = $1`

const selectTargets = `SELECT DISTINCT target FROM scans ORDER BY target`

// Config holds PostgreSQL connection settings.
type Config struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Database        string        `mapstructure:"database" yaml:"database"`
	Username        string        `mapstructure:"username" yaml:"username"`
	Password        string        `mapstructure:"password" yaml:"password"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSN renders the key=value connection string lib/pq expects.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// scanRow is the database shape of a models.StoredScan.
type scanRow struct {
	ID           string    `db:"id"`
	Target       string    `db:"target"`
	Options      []byte    `db:"options"`
	RawResult    string    `db:"raw_result"`
	ParsedResult []byte    `db:"parsed_result"`
	Command      string    `db:"command"`
	CreatedAt    time.Time `db:"created_at"`
}

// Store persists scans in a PostgreSQL table. The BIGSERIAL seq column
// breaks ties between scans saved with the same timestamp.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage,
			fmt.Sprintf("connecting to postgres at %s:%d", cfg.Host, cfg.Port), err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the scans table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return scanerr.Wrap(scanerr.CodeStorage, "creating schema", err)
	}
	return nil
}

// Save inserts scan, assigning an ID when it has none and stamping it with
// the current time.
func (s *Store) Save(ctx context.Context, scan *models.StoredScan) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	scan.Timestamp = s.now().UTC()

	opts, err := json.Marshal(scan.Options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	parsed, err := json.Marshal(scan.ParsedResult)
	if err != nil {
		return fmt.Errorf("encoding parsed result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertScan,
		scan.ID, scan.Target, opts, scan.RawResult, parsed, scan.Command, scan.Timestamp)
	if err != nil {
		return scanerr.Wrap(scanerr.CodeStorage, "saving scan", err).WithTarget(scan.Target)
	}
	return nil
}

// Recent returns up to limit scans for target, newest first. A limit of
// zero or less returns every scan.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]*models.StoredScan, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	var rows []scanRow
	if err := s.db.SelectContext(ctx, &rows, selectRecent, target, lim); err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "reading scan history", err).WithTarget(target)
	}

	scans := make([]*models.StoredScan, 0, len(rows))
	for _, r := range rows {
		scan, err := r.toModel()
		if err != nil {
			return nil, scanerr.Wrap(scanerr.CodeStorage, "decoding scan "+r.ID, err)
		}
		scans = append(scans, scan)
	}
	return scans, nil
}

// Get returns the scan with the given ID or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.StoredScan, error) {
	var row scanRow
	if err := s.db.GetContext(ctx, &row, selectByID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scanerr.ErrNotFound
		}
		return nil, scanerr.Wrap(scanerr.CodeStorage, "reading scan "+id, err)
	}
	scan, err := row.toModel()
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "decoding scan "+id, err)
	}
	return scan, nil
}

// Targets lists every target with at least one stored scan, sorted.
func (s *Store) Targets(ctx context.Context) ([]string, error) {
	targets := []string{}
	if err := s.db.SelectContext(ctx, &targets, selectTargets); err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "listing targets", err)
	}
	return targets, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (r scanRow) toModel() (*models.StoredScan, error) {
	scan := &models.StoredScan{
		ID:        r.ID,
		Target:    r.Target,
		RawResult: r.RawResult,
		Command:   r.Command,
		Timestamp: r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Options, &scan.Options); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	scan.ParsedResult = models.NewScanRecord()
	if err := json.Unmarshal(r.ParsedResult, scan.ParsedResult); err != nil {
		return nil, fmt.Errorf("parsed result: %w", err)
	}
	return scan, nil
}
