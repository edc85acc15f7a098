package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// ExportJSON serializes every macro in the store as a self-describing
// document list.
func ExportJSON(s MacroStore) (string, error) {
	macros, err := s.List()
	if err != nil {
		return "", err
	}
	records := make([]models.MacroExport, 0, len(macros))
	for _, m := range macros {
		records = append(records, m.ExportRecord())
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		slog.Error("store ExportJSON marshal failed", "error", err)
		return "", fmt.Errorf("failed to export macros: %w", err)
	}
	slog.Debug("store ExportJSON succeeded", "count", len(records))
	return string(data), nil
}

// ImportJSON loads macros from an exported document list. Entries that
// fail validation or already exist are skipped, not fatal, unless
// overwrite is set, in which case existing macros are replaced. Returns
// the number of macros imported.
func ImportJSON(s MacroStore, data string, overwrite bool) (int, error) {
	var records []models.MacroExport
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		slog.Error("store ImportJSON parse failed", "error", err)
		return 0, fmt.Errorf("failed to parse macro import: %w", err)
	}

	imported := 0
	for _, rec := range records {
		m := rec.Macro()
		if overwrite {
			// Ignore not-found; the entry may simply be new.
			if err := s.Delete(m.Name); err != nil && !errors.Is(err, models.ErrMacroNotFound) {
				slog.Warn("store ImportJSON overwrite delete failed", "error", err, "name", m.Name)
				continue
			}
		}
		if _, err := s.Create(m); err != nil {
			slog.Warn("store ImportJSON skipping entry", "error", err, "name", m.Name)
			continue
		}
		imported++
	}
	slog.Info("store ImportJSON finished", "imported", imported, "total", len(records))
	return imported, nil
}
