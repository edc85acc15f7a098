// Package keys resolves symbolic key names to the canonical key tokens the
// input-simulation backend understands.
//
// Resolution is permissive: names are lowercased and trimmed, known aliases
// are canonicalized, single characters pass through, and unknown names are
// preserved verbatim with a warning rather than rejected.
package keys

import (
	"log/slog"
	"strings"
)

// specialKeys maps spoken/configured key names to the token names the
// robotgo backend expects. Aliases for the same physical key share a target.
var specialKeys = map[string]string{
	"ctrl":         "ctrl",
	"control":      "ctrl",
	"ctrl_l":       "lctrl",
	"ctrl_r":       "rctrl",
	"alt":          "alt",
	"alt_l":        "lalt",
	"alt_r":        "ralt",
	"shift":        "shift",
	"shift_l":      "lshift",
	"shift_r":      "rshift",
	"cmd":          "cmd",
	"space":        "space",
	"enter":        "enter",
	"return":       "enter",
	"tab":          "tab",
	"esc":          "esc",
	"escape":       "esc",
	"backspace":    "backspace",
	"delete":       "delete",
	"up":           "up",
	"down":         "down",
	"left":         "left",
	"right":        "right",
	"home":         "home",
	"end":          "end",
	"page_up":      "pageup",
	"pageup":       "pageup",
	"page_down":    "pagedown",
	"pagedown":     "pagedown",
	"insert":       "insert",
	"caps_lock":    "capslock",
	"capslock":     "capslock",
	"num_lock":     "numlock",
	"numlock":      "numlock",
	"scroll_lock":  "scrolllock",
	"scrolllock":   "scrolllock",
	"print_screen": "printscreen",
	"printscreen":  "printscreen",
	"pause":        "pause",
	"menu":         "menu",
	"f1":           "f1",
	"f2":           "f2",
	"f3":           "f3",
	"f4":           "f4",
	"f5":           "f5",
	"f6":           "f6",
	"f7":           "f7",
	"f8":           "f8",
	"f9":           "f9",
	"f10":          "f10",
	"f11":          "f11",
	"f12":          "f12",
}

// Resolve canonicalizes a symbolic key name to a backend key token.
// Unknown multi-character names are returned lowercased as-is.
func Resolve(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if token, ok := specialKeys[lower]; ok {
		return token
	}
	if len([]rune(lower)) == 1 {
		return lower
	}
	slog.Warn("keys.Resolve unknown key name, passing through", "key", name)
	return lower
}

// IsSpecial reports whether name resolves to a named special key rather
// than a character key.
func IsSpecial(name string) bool {
	_, ok := specialKeys[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
