// This file implements the SQLite-backed macro store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/mattn/go-sqlite3"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists macros in a local SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	maxMacros int
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database; missing parent directories are created. The schema migration
// runs on every open and is safe to repeat.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	if cfg.MaxMacros <= 0 {
		cfg.MaxMacros = models.DefaultMaxMacros
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := upgradeSQLiteSchema(db); err != nil {
		slog.Error("Failed to upgrade SQLite schema", "error", err)
		return nil, err
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, maxMacros: cfg.MaxMacros}, nil
}

// upgradeSQLiteSchema applies the additive generation 2 columns. SQLite has
// no ADD COLUMN IF NOT EXISTS, so columns are probed first; running the
// upgrade repeatedly is a no-op.
func upgradeSQLiteSchema(db *sql.DB) error {
	additions := []struct {
		column string
		ddl    string
	}{
		{"action_steps", `ALTER TABLE macros ADD COLUMN action_steps TEXT`},
		{"schema_version", `ALTER TABLE macros ADD COLUMN schema_version INTEGER DEFAULT 1`},
	}
	for _, add := range additions {
		exists, err := sqliteColumnExists(db, "macros", add.column)
		if err != nil {
			return fmt.Errorf("failed to probe column %s: %w", add.column, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(add.ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", add.column, err)
		}
		slog.Info("SQLiteStore schema upgraded", "column", add.column)
	}
	return nil
}

func sqliteColumnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLiteStore) Create(m models.Macro) (models.Macro, error) {
	if err := m.Validate(); err != nil {
		slog.Warn("SQLiteStore Create rejected invalid macro", "error", err, "name", m.Name)
		return models.Macro{}, err
	}
	count, err := s.Count()
	if err != nil {
		return models.Macro{}, err
	}
	if count >= s.maxMacros {
		slog.Warn("SQLiteStore Create at capacity", "count", count, "max", s.maxMacros)
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

	res, err := s.db.Exec(`
		INSERT INTO macros (name, trigger_phrase, action_type, keys, duration, response, created_at, use_count, action_steps, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.Name, m.TriggerPhrase, nilIfEmpty(m.ActionType), keysJSON, m.Duration,
		nilIfEmpty(m.Response), m.CreatedAt, stepsJSON, m.SchemaVersion)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			slog.Warn("SQLiteStore Create duplicate name", "name", m.Name)
			return models.Macro{}, models.ErrMacroExists
		}
		slog.Error("SQLiteStore Create failed", "error", err, "name", m.Name)
		return models.Macro{}, fmt.Errorf("failed to insert macro %s: %w", m.Name, err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		slog.Error("SQLiteStore Create last insert id failed", "error", err)
		return models.Macro{}, err
	}
	slog.Debug("SQLiteStore Create succeeded", "name", m.Name, "schemaVersion", m.SchemaVersion)
	return m, nil
}

func (s *SQLiteStore) Get(name string) (*models.Macro, error) {
	row := s.db.QueryRow(`SELECT `+macroColumns+` FROM macros WHERE name = ?`, normalizeName(name))
	m, err := scanMacro(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to get macro %s: %w", name, err)
	}
	return &m, nil
}

func (s *SQLiteStore) GetByID(id int64) (*models.Macro, error) {
	row := s.db.QueryRow(`SELECT `+macroColumns+` FROM macros WHERE id = ?`, id)
	m, err := scanMacro(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get macro %d: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) FindByTrigger(text string) (*models.Macro, error) {
	macros, err := s.List()
	if err != nil {
		return nil, err
	}
	match := matchTrigger(macros, text)
	if match != nil {
		slog.Debug("SQLiteStore FindByTrigger matched", "name", match.Name)
	}
	return match, nil
}

func (s *SQLiteStore) Update(m models.Macro) error {
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
		UPDATE macros SET trigger_phrase = ?, action_type = ?, keys = ?, duration = ?, response = ?, action_steps = ?, schema_version = ?
		WHERE name = ?`,
		normalizeName(m.TriggerPhrase), nilIfEmpty(m.ActionType), keysJSON, m.Duration,
		nilIfEmpty(m.Response), stepsJSON, m.InferSchemaVersion(), normalizeName(m.Name))
	if err != nil {
		slog.Error("SQLiteStore Update failed", "error", err, "name", m.Name)
		return fmt.Errorf("failed to update macro %s: %w", m.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMacroNotFound
	}
	slog.Debug("SQLiteStore Update succeeded", "name", m.Name)
	return nil
}

func (s *SQLiteStore) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM macros WHERE name = ?`, normalizeName(name))
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "name", name)
		return fmt.Errorf("failed to delete macro %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMacroNotFound
	}
	slog.Debug("SQLiteStore Delete succeeded", "name", name)
	return nil
}

func (s *SQLiteStore) List() ([]models.Macro, error) {
	rows, err := s.db.Query(`SELECT ` + macroColumns + ` FROM macros ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query macros: %w", err)
	}
	defer rows.Close()

	var macros []models.Macro
	for rows.Next() {
		m, err := scanMacro(rows)
		if err != nil {
			slog.Error("SQLiteStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan macro row: %w", err)
		}
		macros = append(macros, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore List rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate macro rows: %w", err)
	}
	return macros, nil
}

func (s *SQLiteStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM macros`).Scan(&count); err != nil {
		slog.Error("SQLiteStore Count failed", "error", err)
		return 0, fmt.Errorf("failed to count macros: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) RecordUsage(name string) error {
	_, err := s.db.Exec(`UPDATE macros SET last_used = ?, use_count = use_count + 1 WHERE name = ?`,
		time.Now(), normalizeName(name))
	if err != nil {
		slog.Error("SQLiteStore RecordUsage failed", "error", err, "name", name)
		return fmt.Errorf("failed to record usage for %s: %w", name, err)
	}
	slog.Debug("SQLiteStore RecordUsage succeeded", "name", name)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
