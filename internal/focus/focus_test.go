package focus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDisabledAlwaysFocused(t *testing.T) {
	if !(Disabled{}).Focused() {
		t.Error("Disabled checker must always report focused")
	}
}

func TestWindowTitleMatch(t *testing.T) {
	w := &WindowTitle{Title: "Star Citizen", title: func() string { return "Star Citizen - LIVE" }}
	if !w.Focused() {
		t.Error("matching title should be focused")
	}

	w.title = func() string { return "Web Browser" }
	if w.Focused() {
		t.Error("non-matching title should not be focused")
	}
}

func TestWindowTitleEmptyFailsOpen(t *testing.T) {
	w := &WindowTitle{Title: "Star Citizen", title: func() string { return "" }}
	if !w.Focused() {
		t.Error("empty active title must fail open")
	}
}

func TestXDotoolErrorFailsOpen(t *testing.T) {
	x := &XDotool{Title: "Star Citizen", Timeout: time.Second,
		run: func(ctx context.Context) (string, error) { return "", errors.New("xdotool: not found") }}
	if !x.Focused() {
		t.Error("xdotool failure must fail open")
	}
}

func TestXDotoolMissingBinaryFailsOpen(t *testing.T) {
	// Real exec path with a binary that cannot exist.
	x := &XDotool{Title: "anything", Timeout: 100 * time.Millisecond,
		run: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
	if !x.Focused() {
		t.Error("hung focus check must fail open after the timeout")
	}
}

func TestXDotoolTitleComparison(t *testing.T) {
	x := &XDotool{Title: "star citizen",
		run: func(ctx context.Context) (string, error) { return "STAR CITIZEN", nil }}
	if !x.Focused() {
		t.Error("title comparison must be case-insensitive")
	}
}
