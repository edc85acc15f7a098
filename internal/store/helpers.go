package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// encodeKeys marshals a legacy key list for storage; nil for no keys so
// the column stays NULL on v2 rows.
func encodeKeys(keys []string) (interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to encode keys: %w", err)
	}
	return string(data), nil
}

// encodeSteps marshals a v2 step sequence for storage; nil for legacy rows.
func encodeSteps(steps []models.ActionStep) (interface{}, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action steps: %w", err)
	}
	return string(data), nil
}

// nilIfEmpty returns nil for empty strings so nullable columns stay NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// macroColumns is the select list shared by both SQL backends.
const macroColumns = `id, name, trigger_phrase, action_type, keys, duration, response, created_at, last_used, use_count, action_steps, schema_version`

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMacro reads one macro row into a model, decoding the JSON payload
// columns and picking whichever schema generation is populated.
func scanMacro(row rowScanner) (models.Macro, error) {
	var m models.Macro
	var actionType, keysJSON, response, stepsJSON sql.NullString
	var duration sql.NullFloat64
	var lastUsed sql.NullTime
	var schemaVersion sql.NullInt64

	err := row.Scan(&m.ID, &m.Name, &m.TriggerPhrase, &actionType, &keysJSON,
		&duration, &response, &m.CreatedAt, &lastUsed, &m.UseCount,
		&stepsJSON, &schemaVersion)
	if err != nil {
		return m, err
	}

	m.ActionType = actionType.String
	m.Duration = duration.Float64
	m.Response = response.String
	if lastUsed.Valid {
		m.LastUsed = &lastUsed.Time
	}

	if keysJSON.Valid && keysJSON.String != "" {
		if err := json.Unmarshal([]byte(keysJSON.String), &m.Keys); err != nil {
			slog.Error("store scanMacro keys decode failed", "error", err, "name", m.Name)
			m.Keys = nil
		}
	}
	if stepsJSON.Valid && stepsJSON.String != "" {
		if err := json.Unmarshal([]byte(stepsJSON.String), &m.ActionSteps); err != nil {
			slog.Error("store scanMacro action steps decode failed", "error", err, "name", m.Name)
			m.ActionSteps = nil
		}
	}

	m.SchemaVersion = int(schemaVersion.Int64)
	if m.SchemaVersion == 0 {
		m.SchemaVersion = m.InferSchemaVersion()
	}
	return m, nil
}

// matchTrigger runs the store-level trigger ladder over loaded macros:
// exact case-insensitive equality first, then trigger-contained-in-text.
func matchTrigger(macros []models.Macro, text string) *models.Macro {
	lower := strings.ToLower(strings.TrimSpace(text))
	for i := range macros {
		if strings.ToLower(macros[i].TriggerPhrase) == lower {
			return &macros[i]
		}
	}
	for i := range macros {
		trigger := strings.ToLower(macros[i].TriggerPhrase)
		if trigger != "" && strings.Contains(lower, trigger) {
			return &macros[i]
		}
	}
	return nil
}
