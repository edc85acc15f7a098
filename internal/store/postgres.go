// This file implements the PostgreSQL-backed macro store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/lib/pq"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// pqUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pqUniqueViolation = "23505"

// PostgresStore persists macros in PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	maxMacros int
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
// The migration script is idempotent and runs on every open.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	if cfg.MaxMacros <= 0 {
		cfg.MaxMacros = models.DefaultMaxMacros
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db, maxMacros: cfg.MaxMacros}, nil
}

func (s *PostgresStore) Create(m models.Macro) (models.Macro, error) {
	if err := m.Validate(); err != nil {
		slog.Warn("PostgresStore Create rejected invalid macro", "error", err, "name", m.Name)
		return models.Macro{}, err
	}
	count, err := s.Count()
	if err != nil {
		return models.Macro{}, err
	}
	if count >= s.maxMacros {
		slog.Warn("PostgresStore Create at capacity", "count", count, "max", s.maxMacros)
		return models.Macro{}, models.ErrMacroLimitReached
	}

	m.Name = normalizeName(m.Name)
	m.TriggerPhrase = normalizeName(m.TriggerPhrase)
	if m.TriggerPhrase == "" {
		m.TriggerPhrase = m.Name
	}
	m.SchemaVersion = m.InferSchemaVersion()
	m.CreatedAt = time.Now()

	keysJSON, err := encodeKeys(m.Keys)
	if err != nil {
		return models.Macro{}, err
	}
	stepsJSON, err := encodeSteps(m.ActionSteps)
	if err != nil {
		return models.Macro{}, err
	}

	err = s.db.QueryRow(`
		INSERT INTO macros (name, trigger_phrase, action_type, keys, duration, response, created_at, use_count, action_steps, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		RETURNING id`,
		m.Name, m.TriggerPhrase, nilIfEmpty(m.ActionType), keysJSON, m.Duration,
		nilIfEmpty(m.Response), m.CreatedAt, stepsJSON, m.SchemaVersion).Scan(&m.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			slog.Warn("PostgresStore Create duplicate name", "name", m.Name)
			return models.Macro{}, models.ErrMacroExists
		}
		slog.Error("PostgresStore Create failed", "error", err, "name", m.Name)
		return models.Macro{}, fmt.Errorf("failed to insert macro %s: %w", m.Name, err)
	}
	slog.Debug("PostgresStore Create succeeded", "name", m.Name, "schemaVersion", m.SchemaVersion)
	return m, nil
}

func (s *PostgresStore) Get(name string) (*models.Macro, error) {
	row := s.db.QueryRow(`SELECT `+macroColumns+` FROM macros WHERE name = $1`, normalizeName(name))
	m, err := scanMacro(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to get macro %s: %w", name, err)
	}
	return &m, nil
}

func (s *PostgresStore) GetByID(id int64) (*models.Macro, error) {
	row := s.db.QueryRow(`SELECT `+macroColumns+` FROM macros WHERE id = $1`, id)
	m, err := scanMacro(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get macro %d: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) FindByTrigger(text string) (*models.Macro, error) {
	macros, err := s.List()
	if err != nil {
		return nil, err
	}
	match := matchTrigger(macros, text)
	if match != nil {
		slog.Debug("PostgresStore FindByTrigger matched", "name", match.Name)
	}
	return match, nil
}

func (s *PostgresStore) Update(m models.Macro) error {
	if err := m.Validate(); err != nil {
		return err
	}
	keysJSON, err := encodeKeys(m.Keys)
	if err != nil {
		return err
	}
	stepsJSON, err := encodeSteps(m.ActionSteps)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE macros SET trigger_phrase = $1, action_type = $2, keys = $3, duration = $4, response = $5, action_steps = $6, schema_version = $7
		WHERE name = $8`,
		normalizeName(m.TriggerPhrase), nilIfEmpty(m.ActionType), keysJSON, m.Duration,
		nilIfEmpty(m.Response), stepsJSON, m.InferSchemaVersion(), normalizeName(m.Name))
	if err != nil {
		slog.Error("PostgresStore Update failed", "error", err, "name", m.Name)
		return fmt.Errorf("failed to update macro %s: %w", m.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMacroNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM macros WHERE name = $1`, normalizeName(name))
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "name", name)
		return fmt.Errorf("failed to delete macro %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMacroNotFound
	}
	slog.Debug("PostgresStore Delete succeeded", "name", name)
	return nil
}

func (s *PostgresStore) List() ([]models.Macro, error) {
	rows, err := s.db.Query(`SELECT ` + macroColumns + ` FROM macros ORDER BY name`)
	if err != nil {
		slog.Error("PostgresStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query macros: %w", err)
	}
	defer rows.Close()

	var macros []models.Macro
	for rows.Next() {
		m, err := scanMacro(rows)
		if err != nil {
			slog.Error("PostgresStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan macro row: %w", err)
		}
		macros = append(macros, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate macro rows: %w", err)
	}
	return macros, nil
}

func (s *PostgresStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM macros`).Scan(&count); err != nil {
		slog.Error("PostgresStore Count failed", "error", err)
		return 0, fmt.Errorf("failed to count macros: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) RecordUsage(name string) error {
	_, err := s.db.Exec(`UPDATE macros SET last_used = $1, use_count = use_count + 1 WHERE name = $2`,
		time.Now(), normalizeName(name))
	if err != nil {
		slog.Error("PostgresStore RecordUsage failed", "error", err, "name", name)
		return fmt.Errorf("failed to record usage for %s: %w", name, err)
	}
	return nil
}

// Close closes the Postgres connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
