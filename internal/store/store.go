// Package store provides durable, versioned persistence for user-defined
// macros.
//
// It includes SQLite and PostgreSQL backends plus an in-memory store for
// tests. The store supports two schema generations without data loss:
// legacy rows carry one flat action, v2 rows carry a step sequence. All
// operations are independent, self-contained transactions.
package store

import (
	"strings"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// MacroStore is the persistence contract for macros. Capacity and
// uniqueness violations surface as models.ErrMacroLimitReached and
// models.ErrMacroExists; raw storage errors are never leaked as-is.
type MacroStore interface {
	// Create persists a new macro. The macro's name and trigger phrase are
	// normalized to lowercase. Fails with ErrMacroExists on a duplicate
	// name and ErrMacroLimitReached at capacity.
	Create(m models.Macro) (models.Macro, error)
	// Get returns a macro by name, or nil if not found.
	Get(name string) (*models.Macro, error)
	// GetByID returns a macro by ID, or nil if not found.
	GetByID(id int64) (*models.Macro, error)
	// FindByTrigger finds a macro whose trigger phrase matches the text,
	// exact match first, then containment. Returns nil on no match.
	FindByTrigger(text string) (*models.Macro, error)
	// Update rewrites a macro's mutable fields by name.
	Update(m models.Macro) error
	// Delete removes a macro by name. ErrMacroNotFound if absent.
	Delete(name string) error
	// List returns all macros ordered by name.
	List() ([]models.Macro, error)
	// Count returns the number of stored macros.
	Count() (int, error)
	// RecordUsage bumps the macro's use counter and last-used timestamp.
	RecordUsage(name string) error
	// Close releases the underlying storage.
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
	// MaxMacros caps how many macros the store accepts.
	MaxMacros int
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithMaxMacros sets the store capacity.
func WithMaxMacros(n int) Option {
	return func(o *Opts) { o.MaxMacros = n }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL
// DSNs are URLs or key=value connection strings; anything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore opens the backend matching the DSN type. An empty DSN yields
// an in-memory store.
func NewStore(opts ...Option) (MacroStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(opts...), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// normalizeName canonicalizes macro names and trigger phrases.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
