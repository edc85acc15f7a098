package models

// Keybind is a static, config-loaded voice-trigger-to-key mapping.
// Keybinds are immutable after load; a config reload replaces the whole
// catalog rather than merging into it.
type Keybind struct {
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Keys     []string   `json:"keys"`
	Action   ActionKind `json:"action"`
	Duration float64    `json:"duration,omitempty"`
	Aliases  []string   `json:"aliases,omitempty"`
	Response string     `json:"response,omitempty"`
}
