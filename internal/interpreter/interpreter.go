// Package interpreter converts generic intent documents from the completion
// service into typed commands.
//
// Parsing never fails: malformed input degrades to an unknown command or a
// command with filtered fields, with diagnostics logged. Validation is
// clamping and filtering, not rejection.
package interpreter

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// allowedKeys is the safe set for keyboard-action commands. Keys outside
// the set are silently dropped from the key list.
var allowedKeys = buildAllowedKeys()

func buildAllowedKeys() map[string]bool {
	set := make(map[string]bool)
	for _, r := range "abcdefghijklmnopqrstuvwxyz0123456789" {
		set[string(r)] = true
	}
	for _, k := range []string{
		"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12",
		"ctrl", "alt", "shift", "ctrl_l", "ctrl_r", "alt_l", "alt_r", "shift_l", "shift_r",
		"space", "enter", "tab", "esc", "backspace", "delete",
		"up", "down", "left", "right",
		"home", "end", "page_up", "page_down", "insert",
		"[", "]", "'", "\\", ",", ".", "/", ";", "-", "=", "`",
	} {
		set[k] = true
	}
	return set
}

// DefaultResponse is spoken when the intent document carries none.
const DefaultResponse = "Acknowledged."

// Opts holds interpreter configuration.
type Opts struct {
	MaxDuration float64
}

// Option configures the interpreter.
type Option func(*Opts)

// WithMaxDuration sets the duration clamp ceiling in seconds.
func WithMaxDuration(seconds float64) Option {
	return func(o *Opts) { o.MaxDuration = seconds }
}

// Interpreter parses intent documents into commands.
type Interpreter struct {
	maxDuration float64
}

// New creates an interpreter.
func New(opts ...Option) *Interpreter {
	cfg := Opts{MaxDuration: models.DefaultMaxDuration}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Interpreter{maxDuration: cfg.MaxDuration}
}

// Parse converts an intent document into a Command. It never returns an
// error: unrecognized actions map to CommandUnknown with a logged warning,
// and invalid fields are clamped or filtered.
func (in *Interpreter) Parse(doc map[string]any) models.Command {
	if doc == nil {
		doc = map[string]any{}
	}
	action := strings.ToLower(strings.TrimSpace(stringField(doc, "action")))
	cmdType := models.CommandType(action)
	if !models.IsValidCommandType(cmdType) || cmdType == "" {
		slog.Warn("Interpreter unknown action type", "action", action)
		cmdType = models.CommandUnknown
	}

	cmd := models.Command{
		Type:     cmdType,
		Keys:     normalizeKeys(keysField(doc, "keys")),
		Duration: in.validateDuration(doc["duration"]),
		Response: stringField(doc, "response"),
		Raw:      doc,
	}
	if cmd.Response == "" {
		cmd.Response = DefaultResponse
	}

	switch cmdType {
	case models.CommandComplexAction:
		cmd.Steps = in.parseSteps(doc["steps"])
	case models.CommandCreateMacro:
		in.fillCreateMacro(&cmd, doc)
	case models.CommandDeleteMacro:
		cmd.MacroName = strings.ToLower(strings.TrimSpace(stringField(doc, "macro_name")))
	}

	if cmd.IsKeyboardAction() && cmd.Type != models.CommandComplexAction {
		cmd.Keys = filterKeys(cmd.Keys)
	}

	slog.Debug("Interpreter parsed command", "type", cmd.Type,
		"keyCount", len(cmd.Keys), "stepCount", len(cmd.Steps))
	return cmd
}

// fillCreateMacro extracts macro creation fields. The v2 payload is chosen
// purely by the presence of a macro_steps key in the document.
func (in *Interpreter) fillCreateMacro(cmd *models.Command, doc map[string]any) {
	cmd.MacroName = strings.ToLower(strings.TrimSpace(stringField(doc, "macro_name")))
	cmd.TriggerPhrase = strings.ToLower(strings.TrimSpace(stringField(doc, "trigger_phrase")))
	if cmd.TriggerPhrase == "" {
		cmd.TriggerPhrase = cmd.MacroName
	}

	if raw, ok := doc["macro_steps"]; ok {
		cmd.MacroHasSteps = true
		cmd.MacroSteps = in.parseSteps(raw)
		return
	}

	cmd.MacroKeys = filterKeys(normalizeKeys(keysField(doc, "macro_keys")))
	cmd.MacroAction = stringField(doc, "macro_action_type")
	if cmd.MacroAction == "" {
		cmd.MacroAction = models.LegacyActionPress
	}
}

// parseSteps validates each step independently: malformed container
// entries are skipped, and steps whose key list filters to empty are
// discarded.
func (in *Interpreter) parseSteps(raw any) []models.ActionStep {
	items, ok := raw.([]any)
	if !ok {
		if raw != nil {
			slog.Warn("Interpreter steps field is not a list")
		}
		return nil
	}
	var steps []models.ActionStep
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			slog.Warn("Interpreter skipping malformed step entry", "index", i)
			continue
		}
		step, ok := in.parseStep(entry)
		if !ok {
			slog.Warn("Interpreter discarding step with no usable keys", "index", i)
			continue
		}
		steps = append(steps, step)
	}
	return steps
}

// parseStep builds one ActionStep from a step document. Both the short
// action_kind names (press/hold/combo) and the legacy action_type names
// (press_key/hold_key/key_combo) are accepted.
func (in *Interpreter) parseStep(entry map[string]any) (models.ActionStep, bool) {
	kindName := stringField(entry, "action_kind")
	if kindName == "" {
		kindName = stringField(entry, "action_type")
	}
	step := models.ActionStep{
		Action:       models.KindForActionType(strings.ToLower(strings.TrimSpace(kindName))),
		Keys:         filterKeys(normalizeKeys(keysField(entry, "keys"))),
		RepeatCount:  intField(entry, "repeat_count", 1),
		DelayBetween: in.validateDuration(entry["delay_between"]),
		Duration:     in.validateDuration(entry["duration"]),
		DelayAfter:   in.validateDuration(entry["delay_after"]),
	}
	step.Normalize(in.maxDuration)
	if len(step.Keys) == 0 {
		return step, false
	}
	return step, true
}

// validateDuration coerces a duration value to a float and clamps it to
// [0, maxDuration]. Non-numeric and negative values become 0; values above
// the ceiling are clamped with a diagnostic, not rejected.
func (in *Interpreter) validateDuration(v any) float64 {
	d, ok := toFloat(v)
	if !ok || d < 0 {
		return 0
	}
	if d > in.maxDuration {
		slog.Warn("Interpreter duration clamped", "original", d, "max", in.maxDuration)
		return in.maxDuration
	}
	return d
}

// normalizeKeys lowercases and trims keys, dropping empties.
func normalizeKeys(raw []string) []string {
	var out []string
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// filterKeys drops keys outside the allow-list. The command survives with
// whatever keys remain; an empty result is the caller's signal to no-op.
func filterKeys(in []string) []string {
	var out, dropped []string
	for _, k := range in {
		if allowedKeys[k] {
			out = append(out, k)
		} else {
			dropped = append(dropped, k)
		}
	}
	if len(dropped) > 0 {
		slog.Warn("Interpreter dropped disallowed keys", "keys", dropped)
	}
	return out
}

// macroPatterns are spoken phrasings that introduce a macro definition.
var macroPatterns = []struct {
	trigger string
	action  string
}{
	{"when i say", "press"},
	{"if i say", "press"},
	{"create macro", ""},
	{"save macro", ""},
	{"make macro", ""},
}

// InterpretMacroPattern tries to read text as a direct macro creation
// command ("when I say X, press Y") without the completion service.
// Returns an intent document or nil if the text does not match.
func (in *Interpreter) InterpretMacroPattern(text string) map[string]any {
	lower := strings.ToLower(text)
	for _, p := range macroPatterns {
		idx := strings.Index(lower, p.trigger)
		if idx < 0 {
			continue
		}
		remaining := strings.TrimSpace(lower[idx+len(p.trigger):])
		if p.action == "" {
			continue
		}
		actionIdx := strings.Index(remaining, p.action)
		if actionIdx < 0 {
			continue
		}
		name := strings.TrimSpace(strings.Trim(strings.TrimSpace(remaining[:actionIdx]), ","))
		keyPart := strings.Fields(strings.TrimSpace(remaining[actionIdx+len(p.action):]))
		if name == "" || len(keyPart) == 0 {
			continue
		}
		slog.Debug("Interpreter matched macro pattern", "name", name, "key", keyPart[0])
		return map[string]any{
			"action":            string(models.CommandCreateMacro),
			"macro_name":        name,
			"trigger_phrase":    name,
			"macro_keys":        []any{keyPart[0]},
			"macro_action_type": models.LegacyActionPress,
		}
	}
	return nil
}

// Field coercion helpers. Intent documents are decoded JSON, so values may
// arrive as strings, float64s, or heterogeneous lists.

func stringField(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func intField(doc map[string]any, key string, def int) int {
	v, ok := doc[key]
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return int(f)
}

func keysField(doc map[string]any, key string) []string {
	v, ok := doc[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
