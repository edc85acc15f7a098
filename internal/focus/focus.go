// Package focus decides whether the target application may legitimately
// receive simulated input right now.
//
// Every provider fails open: if the underlying check mechanism is missing,
// times out, or errors, input is allowed rather than blocked. This is a
// deliberate availability-over-safety choice and part of the contract.
package focus

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// Checker reports whether the target window currently has input focus.
type Checker interface {
	Focused() bool
}

// Disabled is the no-op checker used when focus checking is turned off.
// It always reports focused.
type Disabled struct{}

// Focused always returns true.
func (Disabled) Focused() bool { return true }

// WindowTitle checks focus by comparing the active window title against a
// target substring, using the input-simulation backend's window query.
type WindowTitle struct {
	Title string
	// title loads the active window title; overridable in tests.
	title func() string
}

// NewWindowTitle creates a window-title focus checker for the given target.
func NewWindowTitle(title string) *WindowTitle {
	return &WindowTitle{Title: title, title: func() string { return robotgo.GetTitle() }}
}

// Focused reports whether the active window title contains the target,
// case-insensitively. An empty active title fails open.
func (w *WindowTitle) Focused() bool {
	active := w.title()
	if active == "" {
		slog.Warn("WindowTitle focus check got empty active title, failing open", "target", w.Title)
		return true
	}
	focused := strings.Contains(strings.ToLower(active), strings.ToLower(w.Title))
	slog.Debug("WindowTitle focus check", "active", active, "target", w.Title, "focused", focused)
	return focused
}

// DefaultXDotoolTimeout bounds a hung xdotool call.
const DefaultXDotoolTimeout = time.Second

// XDotool checks focus on X11 systems by shelling out to xdotool.
type XDotool struct {
	Title   string
	Timeout time.Duration
	// run executes the xdotool query; overridable in tests.
	run func(ctx context.Context) (string, error)
}

// NewXDotool creates an xdotool-backed focus checker for the given target.
func NewXDotool(title string) *XDotool {
	return &XDotool{Title: title, Timeout: DefaultXDotoolTimeout}
}

// Focused reports whether the active window title contains the target.
// A missing xdotool binary, a timeout, or any other error fails open.
func (x *XDotool) Focused() bool {
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultXDotoolTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	run := x.run
	if run == nil {
		run = runXDotool
	}
	active, err := run(ctx)
	if err != nil {
		slog.Warn("XDotool focus check failed, failing open", "error", err)
		return true
	}
	focused := strings.Contains(strings.ToLower(active), strings.ToLower(x.Title))
	slog.Debug("XDotool focus check", "active", active, "target", x.Title, "focused", focused)
	return focused
}

func runXDotool(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
