// Package models defines the core data structures for VoxPilot.
//
// It includes the command union produced by the interpreter, the action step
// type shared between the executor and the macro store, and the sentinel
// errors surfaced by the store.
package models

import (
	"errors"
	"time"
)

// ActionKind defines how a step's keys are driven.
type ActionKind string

const (
	// ActionPress taps each key: press then release.
	ActionPress ActionKind = "press"
	// ActionHold presses a key and releases it after a duration.
	ActionHold ActionKind = "hold"
	// ActionCombo presses all keys in order and releases them in reverse.
	ActionCombo ActionKind = "combo"
)

// Validation constants for input clamping
const (
	// MaxRepeatCount is the hard cap on step repetitions.
	MaxRepeatCount = 50
	// MinRepeatDelay is the floor for non-zero inter-repetition delays, in
	// seconds. Faster than this and the target application may drop inputs.
	MinRepeatDelay = 0.02
	// DefaultMaxDuration bounds hold durations and delays, in seconds.
	DefaultMaxDuration = 5.0
	// DefaultMaxMacros is the default macro store capacity.
	DefaultMaxMacros = 100
)

// Error variables for better error handling and testability
var (
	ErrMacroExists       = errors.New("macro with this name already exists")
	ErrMacroNotFound     = errors.New("macro not found")
	ErrMacroLimitReached = errors.New("maximum number of macros reached")
	ErrEmptyMacroName    = errors.New("macro name cannot be empty")
	ErrMixedMacroPayload = errors.New("macro cannot carry both legacy keys and action steps")
)

// ActionStep is one repeatable unit of keyboard input within a sequence.
type ActionStep struct {
	Action       ActionKind `json:"action_kind"`
	Keys         []string   `json:"keys"`
	RepeatCount  int        `json:"repeat_count,omitempty"`
	DelayBetween float64    `json:"delay_between,omitempty"` // seconds between repetitions
	Duration     float64    `json:"duration,omitempty"`      // seconds to hold (hold only)
	DelayAfter   float64    `json:"delay_after,omitempty"`   // seconds after all repetitions
}

// Normalize clamps the step's numeric fields into their valid ranges.
// RepeatCount lands in [1, MaxRepeatCount]; a non-zero DelayBetween is
// raised to at least MinRepeatDelay; durations and delays are clamped to
// [0, maxDuration].
func (s *ActionStep) Normalize(maxDuration float64) {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	s.RepeatCount = ClampRepeatCount(s.RepeatCount)
	if s.DelayBetween > 0 && s.DelayBetween < MinRepeatDelay {
		s.DelayBetween = MinRepeatDelay
	}
	s.DelayBetween = clampSeconds(s.DelayBetween, maxDuration)
	s.Duration = clampSeconds(s.Duration, maxDuration)
	s.DelayAfter = clampSeconds(s.DelayAfter, maxDuration)
}

// ClampRepeatCount forces a repetition count into [1, MaxRepeatCount].
func ClampRepeatCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRepeatCount {
		return MaxRepeatCount
	}
	return n
}

func clampSeconds(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// CommandType identifies a parsed command variant.
type CommandType string

const (
	CommandPressKey      CommandType = "press_key"
	CommandHoldKey       CommandType = "hold_key"
	CommandKeyCombo      CommandType = "key_combo"
	CommandComplexAction CommandType = "complex_action"
	CommandCreateMacro   CommandType = "create_macro"
	CommandDeleteMacro   CommandType = "delete_macro"
	CommandListMacros    CommandType = "list_macros"
	CommandSpeakOnly     CommandType = "speak_only"
	CommandUnknown       CommandType = "unknown"
)

// IsValidCommandType checks if the given command type is supported.
func IsValidCommandType(ct CommandType) bool {
	switch ct {
	case CommandPressKey, CommandHoldKey, CommandKeyCombo, CommandComplexAction,
		CommandCreateMacro, CommandDeleteMacro, CommandListMacros,
		CommandSpeakOnly, CommandUnknown:
		return true
	default:
		return false
	}
}

// Command is the typed result of interpreting an intent document.
// Every variant carries Response (for speech synthesis) and Raw (the
// untouched source document, kept for diagnostics).
type Command struct {
	Type     CommandType    `json:"type"`
	Keys     []string       `json:"keys,omitempty"`
	Duration float64        `json:"duration,omitempty"`
	Steps    []ActionStep   `json:"steps,omitempty"` // complex_action only
	Response string         `json:"response"`
	Raw      map[string]any `json:"-"`

	// Macro creation/deletion fields
	MacroName     string       `json:"macro_name,omitempty"`
	TriggerPhrase string       `json:"trigger_phrase,omitempty"`
	MacroKeys     []string     `json:"macro_keys,omitempty"`
	MacroAction   string       `json:"macro_action_type,omitempty"`
	MacroSteps    []ActionStep `json:"macro_steps,omitempty"`
	// MacroHasSteps records that the intent document carried a macro_steps
	// key, which is what distinguishes a v2 macro from a legacy one.
	MacroHasSteps bool `json:"-"`
}

// IsKeyboardAction reports whether the command drives keyboard input.
func (c Command) IsKeyboardAction() bool {
	switch c.Type {
	case CommandPressKey, CommandHoldKey, CommandKeyCombo, CommandComplexAction:
		return true
	default:
		return false
	}
}

// IsMacroAction reports whether the command operates on the macro store.
func (c Command) IsMacroAction() bool {
	switch c.Type {
	case CommandCreateMacro, CommandDeleteMacro, CommandListMacros:
		return true
	default:
		return false
	}
}

// KeyAction maps a keyboard command variant to its action kind.
func (c Command) KeyAction() ActionKind {
	switch c.Type {
	case CommandHoldKey:
		return ActionHold
	case CommandKeyCombo:
		return ActionCombo
	default:
		return ActionPress
	}
}

// Legacy action type strings used by macros and intent documents.
const (
	LegacyActionPress = "press_key"
	LegacyActionHold  = "hold_key"
	LegacyActionCombo = "key_combo"
)

// KindForActionType converts a legacy action type string to an ActionKind.
// Unknown strings default to press.
func KindForActionType(actionType string) ActionKind {
	switch actionType {
	case LegacyActionHold, string(ActionHold):
		return ActionHold
	case LegacyActionCombo, string(ActionCombo):
		return ActionCombo
	default:
		return ActionPress
	}
}

// ConversationTurn is a single entry in the conversation history.
type ConversationTurn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Command   *Command  `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
