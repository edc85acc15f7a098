package models

import "time"

// Macro schema generations. Legacy macros carry one flat action; v2 macros
// carry an arbitrary step sequence. A macro never has both populated.
const (
	MacroSchemaLegacy = 1
	MacroSchemaSteps  = 2
)

// Macro is a persisted, user-created trigger-to-action mapping.
type Macro struct {
	ID            int64        `json:"id,omitempty"`
	Name          string       `json:"name"`
	TriggerPhrase string       `json:"trigger_phrase"`
	ActionType    string       `json:"action_type,omitempty"` // legacy payload
	Keys          []string     `json:"keys,omitempty"`        // legacy payload
	Duration      float64      `json:"duration,omitempty"`    // legacy payload
	ActionSteps   []ActionStep `json:"action_steps,omitempty"`
	Response      string       `json:"response,omitempty"`
	SchemaVersion int          `json:"schema_version,omitempty"`
	CreatedAt     time.Time    `json:"created_at,omitempty"`
	LastUsed      *time.Time   `json:"last_used,omitempty"`
	UseCount      int          `json:"use_count,omitempty"`
}

// IsSequence reports whether the macro carries a v2 step sequence.
func (m Macro) IsSequence() bool {
	return len(m.ActionSteps) > 0
}

// Validate checks the invariants a macro must hold before it is persisted.
func (m Macro) Validate() error {
	if m.Name == "" {
		return ErrEmptyMacroName
	}
	if len(m.ActionSteps) > 0 && (len(m.Keys) > 0 || m.ActionType != "") {
		return ErrMixedMacroPayload
	}
	return nil
}

// InferSchemaVersion derives the schema generation from the payload shape.
func (m Macro) InferSchemaVersion() int {
	if m.IsSequence() {
		return MacroSchemaSteps
	}
	return MacroSchemaLegacy
}

// MacroExport is the self-describing document shape used for export/import.
// Either Keys/ActionType/Duration or ActionSteps is populated, never both.
type MacroExport struct {
	Name          string       `json:"name"`
	TriggerPhrase string       `json:"trigger_phrase"`
	ActionType    string       `json:"action_type,omitempty"`
	Keys          []string     `json:"keys,omitempty"`
	Duration      float64      `json:"duration,omitempty"`
	ActionSteps   []ActionStep `json:"action_steps,omitempty"`
	Response      string       `json:"response,omitempty"`
}

// ExportRecord converts a stored macro to its export document.
func (m Macro) ExportRecord() MacroExport {
	return MacroExport{
		Name:          m.Name,
		TriggerPhrase: m.TriggerPhrase,
		ActionType:    m.ActionType,
		Keys:          m.Keys,
		Duration:      m.Duration,
		ActionSteps:   m.ActionSteps,
		Response:      m.Response,
	}
}

// Macro converts an export document back to a storable macro.
func (e MacroExport) Macro() Macro {
	return Macro{
		Name:          e.Name,
		TriggerPhrase: e.TriggerPhrase,
		ActionType:    e.ActionType,
		Keys:          e.Keys,
		Duration:      e.Duration,
		ActionSteps:   e.ActionSteps,
		Response:      e.Response,
	}
}
