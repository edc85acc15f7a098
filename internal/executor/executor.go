// Package executor turns parsed commands into timed keyboard input.
//
// It tracks currently-held keys so that an interrupted hold can always be
// cleaned up afterwards, and gates every entry point on the focus checker.
// All failures are reported as boolean results; nothing here terminates the
// process.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/OpenVoxLab/VoxPilot/internal/focus"
	"github.com/OpenVoxLab/VoxPilot/internal/keys"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// Keyboard is the minimal input-simulation backend the executor drives.
type Keyboard interface {
	KeyDown(key string) error
	KeyUp(key string) error
	TypeStr(text string)
}

// robotgoKeyboard drives the real OS input layer.
type robotgoKeyboard struct{}

func (robotgoKeyboard) KeyDown(key string) error { return robotgo.KeyDown(key) }
func (robotgoKeyboard) KeyUp(key string) error   { return robotgo.KeyUp(key) }
func (robotgoKeyboard) TypeStr(text string)      { robotgo.TypeStr(text) }

// Default timing configuration
const (
	// DefaultPressDuration is how long a tapped key stays down.
	DefaultPressDuration = 50 * time.Millisecond
	// DefaultHoldDuration is the hold time when none is specified.
	DefaultHoldDuration = time.Second
	// DefaultComboDelay separates presses and releases within a combo.
	DefaultComboDelay = 20 * time.Millisecond
	// DefaultTypeDelay separates characters when typing a string.
	DefaultTypeDelay = 50 * time.Millisecond
)

// Opts holds executor configuration.
type Opts struct {
	Keyboard      Keyboard
	Gate          focus.Checker
	PressDuration time.Duration
	HoldDuration  time.Duration
	ComboDelay    time.Duration
	MaxDuration   float64
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures the executor.
type Option func(*Opts)

// WithKeyboard sets the input-simulation backend.
func WithKeyboard(kb Keyboard) Option {
	return func(o *Opts) { o.Keyboard = kb }
}

// WithGate sets the focus checker consulted before sending input.
func WithGate(gate focus.Checker) Option {
	return func(o *Opts) { o.Gate = gate }
}

// WithPressDuration sets the default tap duration.
func WithPressDuration(d time.Duration) Option {
	return func(o *Opts) { o.PressDuration = d }
}

// WithHoldDuration sets the default hold duration.
func WithHoldDuration(d time.Duration) Option {
	return func(o *Opts) { o.HoldDuration = d }
}

// WithComboDelay sets the inter-key delay within combos.
func WithComboDelay(d time.Duration) Option {
	return func(o *Opts) { o.ComboDelay = d }
}

// WithMaxDuration sets the clamp ceiling for step durations, in seconds.
func WithMaxDuration(seconds float64) Option {
	return func(o *Opts) { o.MaxDuration = seconds }
}

// WithSleep replaces the wait function; tests use this to observe timing
// without actually sleeping.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Opts) { o.Sleep = fn }
}

// Executor executes single key actions and multi-step sequences.
// There is no parallel execution: the engine runs at most one action or
// sequence at a time, suspending cooperatively at every timed wait.
type Executor struct {
	kb            Keyboard
	gate          focus.Checker
	pressDuration time.Duration
	holdDuration  time.Duration
	comboDelay    time.Duration
	maxDuration   float64
	sleep         func(ctx context.Context, d time.Duration) error

	// held is the set of keys pressed via Hold and not yet released. It is
	// the only state shared between the normal path and the error/shutdown
	// path and must be drainable by ReleaseAllHeld at any point.
	mu   sync.Mutex
	held []string
}

// New creates an executor. Without options it drives the real OS input
// layer with focus checking disabled.
func New(opts ...Option) *Executor {
	cfg := Opts{
		Keyboard:      robotgoKeyboard{},
		Gate:          focus.Disabled{},
		PressDuration: DefaultPressDuration,
		HoldDuration:  DefaultHoldDuration,
		ComboDelay:    DefaultComboDelay,
		MaxDuration:   models.DefaultMaxDuration,
		Sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{
		kb:            cfg.Keyboard,
		gate:          cfg.Gate,
		pressDuration: cfg.PressDuration,
		holdDuration:  cfg.HoldDuration,
		comboDelay:    cfg.ComboDelay,
		maxDuration:   cfg.MaxDuration,
		sleep:         cfg.Sleep,
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// seconds converts a float seconds value to a time.Duration.
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// PressKey taps a key: press, wait, release. Atomic from the caller's
// perspective; no held-key bookkeeping. duration <= 0 uses the default.
func (e *Executor) PressKey(ctx context.Context, key string, duration float64) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor PressKey blocked, target not focused", "key", key)
		return false
	}
	k := keys.Resolve(key)
	d := e.pressDuration
	if duration > 0 {
		d = seconds(duration)
	}
	slog.Debug("Executor PressKey", "key", k, "duration", d)

	if err := e.kb.KeyDown(k); err != nil {
		slog.Error("Executor PressKey key down failed", "error", err, "key", k)
		return false
	}
	waitErr := e.sleep(ctx, d)
	if err := e.kb.KeyUp(k); err != nil {
		slog.Error("Executor PressKey key up failed", "error", err, "key", k)
		return false
	}
	return waitErr == nil
}

// HoldKey presses a key, waits for the duration, then releases it. The key
// is tracked in the held set for the whole interval; if the wait is
// cancelled or the release fails it stays tracked so ReleaseAllHeld can
// drain it later.
func (e *Executor) HoldKey(ctx context.Context, key string, duration float64) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor HoldKey blocked, target not focused", "key", key)
		return false
	}
	k := keys.Resolve(key)
	d := e.holdDuration
	if duration > 0 {
		d = seconds(duration)
	}
	slog.Debug("Executor HoldKey", "key", k, "duration", d)

	if err := e.kb.KeyDown(k); err != nil {
		slog.Error("Executor HoldKey key down failed", "error", err, "key", k)
		return false
	}
	e.track(k)

	if err := e.sleep(ctx, d); err != nil {
		slog.Warn("Executor HoldKey interrupted, key stays tracked", "key", k, "error", err)
		return false
	}
	if err := e.kb.KeyUp(k); err != nil {
		slog.Error("Executor HoldKey release failed, key stays tracked", "error", err, "key", k)
		return false
	}
	e.untrack(k)
	return true
}

// ReleaseKey releases a key previously pressed via HoldKey. It fails
// without side effects if the key is not currently tracked.
func (e *Executor) ReleaseKey(key string) bool {
	k := keys.Resolve(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := -1
	for i, h := range e.held {
		if h == k {
			idx = i
			break
		}
	}
	if idx < 0 {
		slog.Warn("Executor ReleaseKey key not held", "key", k)
		return false
	}
	if err := e.kb.KeyUp(k); err != nil {
		slog.Error("Executor ReleaseKey failed, key stays tracked", "error", err, "key", k)
		return false
	}
	e.held = append(e.held[:idx], e.held[idx+1:]...)
	slog.Debug("Executor ReleaseKey", "key", k)
	return true
}

// KeyCombo presses every key in order with a fixed inter-key delay, holds,
// then releases in reverse order. The focus gate is consulted once for the
// whole combo. An empty key list is rejected before anything is pressed.
func (e *Executor) KeyCombo(ctx context.Context, comboKeys []string, holdDuration float64) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor KeyCombo blocked, target not focused", "keys", comboKeys)
		return false
	}
	if len(comboKeys) == 0 {
		slog.Warn("Executor KeyCombo rejected, empty key list")
		return false
	}
	resolved := make([]string, len(comboKeys))
	for i, k := range comboKeys {
		resolved[i] = keys.Resolve(k)
	}
	slog.Debug("Executor KeyCombo", "keys", resolved, "holdDuration", holdDuration)

	pressed := 0
	for _, k := range resolved {
		if err := e.kb.KeyDown(k); err != nil {
			slog.Error("Executor KeyCombo key down failed", "error", err, "key", k)
			e.releaseReverse(resolved[:pressed])
			return false
		}
		pressed++
		if err := e.sleep(ctx, e.comboDelay); err != nil {
			e.releaseReverse(resolved[:pressed])
			return false
		}
	}

	hold := e.pressDuration
	if holdDuration > 0 {
		hold = seconds(holdDuration)
	}
	if err := e.sleep(ctx, hold); err != nil {
		e.releaseReverse(resolved)
		return false
	}

	ok := true
	for i := len(resolved) - 1; i >= 0; i-- {
		if err := e.kb.KeyUp(resolved[i]); err != nil {
			slog.Error("Executor KeyCombo key up failed", "error", err, "key", resolved[i])
			ok = false
		}
		// Best effort: keep releasing the rest even after a failure.
		e.sleep(ctx, e.comboDelay)
	}
	return ok
}

// releaseReverse releases already-pressed combo keys after a mid-combo
// failure, newest first, each release individually guarded.
func (e *Executor) releaseReverse(pressed []string) {
	for i := len(pressed) - 1; i >= 0; i-- {
		if err := e.kb.KeyUp(pressed[i]); err != nil {
			slog.Error("Executor combo cleanup release failed", "error", err, "key", pressed[i])
		}
	}
}

// TypeText types a string character by character with a delay between
// characters. The focus gate is consulted once up front, not per character.
// A delay <= 0 sends the whole string in one backend call.
func (e *Executor) TypeText(ctx context.Context, text string, delay float64) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor TypeText blocked, target not focused", "length", len(text))
		return false
	}
	if text == "" {
		return true
	}
	slog.Debug("Executor TypeText", "length", len(text), "delay", delay)

	if delay <= 0 {
		e.kb.TypeStr(text)
		return true
	}
	runes := []rune(text)
	for i, r := range runes {
		e.kb.TypeStr(string(r))
		if i < len(runes)-1 {
			if err := e.sleep(ctx, seconds(delay)); err != nil {
				return false
			}
		}
	}
	return true
}

// ExecuteAction dispatches a keyboard action by kind over a key list.
// Press executes each key sequentially; hold takes the first key; combo
// presses the whole list together.
func (e *Executor) ExecuteAction(ctx context.Context, kind models.ActionKind, actionKeys []string, duration float64) bool {
	switch kind {
	case models.ActionPress:
		if len(actionKeys) == 0 {
			slog.Warn("Executor ExecuteAction press with no keys")
			return false
		}
		for _, k := range actionKeys {
			if !e.PressKey(ctx, k, duration) {
				return false
			}
		}
		return true
	case models.ActionHold:
		if len(actionKeys) == 0 {
			slog.Warn("Executor ExecuteAction hold with no keys")
			return false
		}
		return e.HoldKey(ctx, actionKeys[0], duration)
	case models.ActionCombo:
		return e.KeyCombo(ctx, actionKeys, duration)
	default:
		slog.Error("Executor ExecuteAction unknown action kind", "kind", kind)
		return false
	}
}

// ExecuteStep runs one action step: RepeatCount repetitions with
// DelayBetween after every repetition except the last, then DelayAfter
// exactly once. It aborts on the first failed repetition; repetitions
// already performed are not undone.
func (e *Executor) ExecuteStep(ctx context.Context, step models.ActionStep) bool {
	step.Normalize(e.maxDuration)
	if len(step.Keys) == 0 {
		slog.Warn("Executor ExecuteStep has no keys")
		return false
	}
	slog.Debug("Executor ExecuteStep", "action", step.Action, "keys", step.Keys,
		"repeatCount", step.RepeatCount, "delayBetween", step.DelayBetween)

	for i := 0; i < step.RepeatCount; i++ {
		var ok bool
		switch step.Action {
		case models.ActionPress:
			ok = e.PressKey(ctx, step.Keys[0], 0)
		case models.ActionHold:
			ok = e.HoldKey(ctx, step.Keys[0], step.Duration)
		case models.ActionCombo:
			ok = e.KeyCombo(ctx, step.Keys, step.Duration)
		default:
			slog.Warn("Executor ExecuteStep unknown action kind", "kind", step.Action)
			return false
		}
		if !ok {
			return false
		}
		if i < step.RepeatCount-1 && step.DelayBetween > 0 {
			if err := e.sleep(ctx, seconds(step.DelayBetween)); err != nil {
				return false
			}
		}
	}

	if step.DelayAfter > 0 {
		if err := e.sleep(ctx, seconds(step.DelayAfter)); err != nil {
			return false
		}
	}
	return true
}

// ExecuteSequence runs steps strictly in order, aborting on the first step
// failure and discarding the rest. Side effects of earlier steps stand.
// The focus gate is consulted once for the whole sequence.
func (e *Executor) ExecuteSequence(ctx context.Context, steps []models.ActionStep) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor ExecuteSequence blocked, target not focused")
		return false
	}
	if len(steps) == 0 {
		slog.Warn("Executor ExecuteSequence has no steps")
		return false
	}
	slog.Debug("Executor ExecuteSequence", "stepCount", len(steps))

	for i, step := range steps {
		if !e.ExecuteStep(ctx, step) {
			slog.Warn("Executor ExecuteSequence step failed, aborting", "stepIndex", i)
			return false
		}
	}
	return true
}

// ExecuteRepeated taps a key count times with a delay between taps.
// The count is clamped and non-zero delays are floored like step delays.
func (e *Executor) ExecuteRepeated(ctx context.Context, key string, count int, delay float64) bool {
	if !e.gate.Focused() {
		slog.Warn("Executor ExecuteRepeated blocked, target not focused", "key", key)
		return false
	}
	count = models.ClampRepeatCount(count)
	if delay > 0 && delay < models.MinRepeatDelay {
		delay = models.MinRepeatDelay
	}
	slog.Debug("Executor ExecuteRepeated", "key", key, "count", count, "delay", delay)

	for i := 0; i < count; i++ {
		if !e.PressKey(ctx, key, 0) {
			return false
		}
		if i < count-1 && delay > 0 {
			if err := e.sleep(ctx, seconds(delay)); err != nil {
				return false
			}
		}
	}
	return true
}

// ReleaseAllHeld releases and clears every tracked held key. Each release
// is individually guarded, so it never panics and is safe to call
// repeatedly; the second call is a no-op. Used on shutdown and on error
// recovery.
func (e *Executor) ReleaseAllHeld() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.held {
		if err := e.kb.KeyUp(k); err != nil {
			slog.Error("Executor ReleaseAllHeld release failed", "error", err, "key", k)
		}
	}
	if len(e.held) > 0 {
		slog.Info("Executor released all held keys", "count", len(e.held))
	}
	e.held = e.held[:0]
}

// HeldKeys returns a snapshot of the currently tracked held keys.
func (e *Executor) HeldKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.held))
	copy(out, e.held)
	return out
}

func (e *Executor) track(key string) {
	e.mu.Lock()
	e.held = append(e.held, key)
	e.mu.Unlock()
}

func (e *Executor) untrack(key string) {
	e.mu.Lock()
	for i, h := range e.held {
		if h == key {
			e.held = append(e.held[:i], e.held[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
}
