package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OpenVoxLab/VoxPilot/internal/convo"
	"github.com/OpenVoxLab/VoxPilot/internal/executor"
	"github.com/OpenVoxLab/VoxPilot/internal/keybinds"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
	"github.com/OpenVoxLab/VoxPilot/internal/store"
)

// fakeKeyboard records key operations instead of injecting input.
type fakeKeyboard struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeKeyboard) KeyDown(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "down:"+key)
	return nil
}

func (f *fakeKeyboard) KeyUp(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "up:"+key)
	return nil
}

func (f *fakeKeyboard) TypeStr(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "type:"+text)
}

func (f *fakeKeyboard) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// notFocused denies every focus check.
type notFocused struct{}

func (notFocused) Focused() bool { return false }

// stubCompleter returns a canned intent document.
type stubCompleter struct {
	doc   map[string]any
	err   error
	calls int
}

func (s *stubCompleter) CompleteIntent(ctx context.Context, utterance string, history []models.ConversationTurn, menu string) (map[string]any, error) {
	s.calls++
	return s.doc, s.err
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testEngine(t *testing.T, opts ...Option) (*Engine, *fakeKeyboard) {
	t.Helper()
	kb := &fakeKeyboard{}
	exec := executor.New(executor.WithKeyboard(kb), executor.WithSleep(noSleep))
	e := New(append([]Option{WithExecutor(exec)}, opts...)...)
	return e, kb
}

func catalogWithGear(t *testing.T) *keybinds.Catalog {
	t.Helper()
	c := keybinds.NewCatalog()
	err := c.LoadYAML([]byte(`
flight:
  landing_gear:
    keys: ["n"]
    action: press
    aliases: ["landing gear"]
    response: "Landing gear toggled, Commander."
`))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestHandleUtteranceEmpty(t *testing.T) {
	e, kb := testEngine(t)
	out := e.HandleUtterance(context.Background(), "   ")
	if out.Response != respEmptyInput || out.Executed {
		t.Errorf("Outcome = %+v", out)
	}
	if len(kb.recorded()) != 0 {
		t.Errorf("no keys should move, got %v", kb.recorded())
	}
}

func TestHandleUtteranceKeybind(t *testing.T) {
	e, kb := testEngine(t, WithCatalog(catalogWithGear(t)))
	out := e.HandleUtterance(context.Background(), "landing gear")
	if !out.Success || out.Response != "Landing gear toggled, Commander." {
		t.Fatalf("Outcome = %+v", out)
	}
	ops := kb.recorded()
	if len(ops) != 2 || ops[0] != "down:n" || ops[1] != "up:n" {
		t.Errorf("ops = %v", ops)
	}
}

func TestHandleUtteranceMacroWinsAndRecordsUsage(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{
		Name:          "gear",
		TriggerPhrase: "landing gear",
		ActionType:    models.LegacyActionPress,
		Keys:          []string{"g"},
		Response:      "Gear macro running.",
	}); err != nil {
		t.Fatal(err)
	}

	e, kb := testEngine(t, WithCatalog(catalogWithGear(t)), WithStore(macros))
	out := e.HandleUtterance(context.Background(), "landing gear")
	if !out.Success || out.Response != "Gear macro running." {
		t.Fatalf("Outcome = %+v", out)
	}
	if ops := kb.recorded(); len(ops) != 2 || ops[0] != "down:g" {
		t.Errorf("macro keys should win over keybind, ops = %v", ops)
	}
	m, _ := macros.Get("gear")
	if m.UseCount != 1 {
		t.Errorf("UseCount = %d, want 1", m.UseCount)
	}
}

func TestHandleUtteranceSequenceMacro(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{
		Name:          "strafe",
		TriggerPhrase: "strafe dance",
		ActionSteps: []models.ActionStep{
			{Action: models.ActionPress, Keys: []string{"a"}, RepeatCount: 2},
			{Action: models.ActionPress, Keys: []string{"d"}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	e, kb := testEngine(t, WithStore(macros))
	out := e.HandleUtterance(context.Background(), "strafe dance")
	if !out.Success {
		t.Fatalf("Outcome = %+v", out)
	}
	want := []string{"down:a", "up:a", "down:a", "up:a", "down:d", "up:d"}
	got := kb.recorded()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandleUtteranceFocusDenied(t *testing.T) {
	kb := &fakeKeyboard{}
	exec := executor.New(executor.WithKeyboard(kb), executor.WithSleep(noSleep), executor.WithGate(notFocused{}))
	e := New(WithExecutor(exec), WithCatalog(catalogWithGear(t)))

	out := e.HandleUtterance(context.Background(), "landing gear")
	if out.Success || out.Response != respNotInFocus {
		t.Errorf("Outcome = %+v", out)
	}
	if len(kb.recorded()) != 0 {
		t.Errorf("no keys should move without focus, got %v", kb.recorded())
	}
}

func TestHandleUtteranceRepeat(t *testing.T) {
	e, kb := testEngine(t, WithCatalog(catalogWithGear(t)))

	out := e.HandleUtterance(context.Background(), "do that again")
	if out.Response != respNothingRepeat {
		t.Fatalf("repeat with no history = %+v", out)
	}

	e.HandleUtterance(context.Background(), "landing gear")
	out = e.HandleUtterance(context.Background(), "do that again")
	if !out.Success || out.Response != respRepeat {
		t.Fatalf("Outcome = %+v", out)
	}
	// Gear pressed twice: once directly, once repeated.
	if ops := kb.recorded(); len(ops) != 4 {
		t.Errorf("ops = %v", ops)
	}
}

func TestHandleUtteranceUndoDeclined(t *testing.T) {
	e, kb := testEngine(t, WithCatalog(catalogWithGear(t)))
	e.HandleUtterance(context.Background(), "landing gear")
	out := e.HandleUtterance(context.Background(), "undo that")
	if out.Executed || out.Response != respUndoDeclined {
		t.Errorf("Outcome = %+v", out)
	}
	if ops := kb.recorded(); len(ops) != 2 {
		t.Errorf("undo must not touch the keyboard, ops = %v", ops)
	}
}

func TestHandleUtteranceCompleterPress(t *testing.T) {
	comp := &stubCompleter{doc: map[string]any{
		"action":   "hold_key",
		"keys":     []any{"b"},
		"duration": 0.8,
		"response": "Spooling quantum drive, Commander.",
	}}
	e, kb := testEngine(t, WithCompleter(comp))

	out := e.HandleUtterance(context.Background(), "spool the quantum drive")
	if !out.Success || out.Response != "Spooling quantum drive, Commander." {
		t.Fatalf("Outcome = %+v", out)
	}
	if comp.calls != 1 {
		t.Errorf("completer calls = %d", comp.calls)
	}
	if ops := kb.recorded(); len(ops) != 2 || ops[0] != "down:b" || ops[1] != "up:b" {
		t.Errorf("ops = %v", ops)
	}
}

func TestHandleUtteranceCompleterError(t *testing.T) {
	comp := &stubCompleter{err: errors.New("transport down")}
	e, kb := testEngine(t, WithCompleter(comp))
	out := e.HandleUtterance(context.Background(), "open the star map")
	if out.Response != respLLMFailed || out.Executed {
		t.Errorf("Outcome = %+v", out)
	}
	if len(kb.recorded()) != 0 {
		t.Errorf("ops = %v", kb.recorded())
	}
}

func TestHandleUtteranceSpeakOnly(t *testing.T) {
	comp := &stubCompleter{doc: map[string]any{
		"action":   "speak_only",
		"response": "All systems nominal, Commander.",
	}}
	e, kb := testEngine(t, WithCompleter(comp))
	out := e.HandleUtterance(context.Background(), "how are we doing")
	if out.Executed || out.Response != "All systems nominal, Commander." {
		t.Errorf("Outcome = %+v", out)
	}
	if len(kb.recorded()) != 0 {
		t.Errorf("ops = %v", kb.recorded())
	}
}

func TestHandleUtteranceCreateMacroViaCompleter(t *testing.T) {
	comp := &stubCompleter{doc: map[string]any{
		"action":            "create_macro",
		"macro_name":        "panic mode",
		"trigger_phrase":    "panic mode",
		"macro_keys":        []any{"c"},
		"macro_action_type": "press_key",
		"response":          "Macro created.",
	}}
	macros := store.NewInMemoryStore()
	e, kb := testEngine(t, WithStore(macros), WithCompleter(comp))

	out := e.HandleUtterance(context.Background(), "create a macro called panic mode that presses c")
	if !out.Success || !strings.Contains(out.Response, "panic mode") {
		t.Fatalf("Outcome = %+v", out)
	}

	// The new trigger now fires without the completer.
	out = e.HandleUtterance(context.Background(), "panic mode")
	if !out.Success {
		t.Fatalf("macro trigger failed: %+v", out)
	}
	if ops := kb.recorded(); len(ops) != 2 || ops[0] != "down:c" {
		t.Errorf("ops = %v", ops)
	}
	if comp.calls != 1 {
		t.Errorf("completer should not be consulted for a stored trigger, calls = %d", comp.calls)
	}
}

func TestHandleUtteranceDuplicateMacro(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{Name: "panic mode", TriggerPhrase: "red alert", ActionType: models.LegacyActionPress, Keys: []string{"c"}}); err != nil {
		t.Fatal(err)
	}
	comp := &stubCompleter{doc: map[string]any{
		"action":     "create_macro",
		"macro_name": "panic mode",
		"macro_keys": []any{"x"},
		"response":   "Macro created.",
	}}
	e, _ := testEngine(t, WithStore(macros), WithCompleter(comp))

	out := e.HandleUtterance(context.Background(), "set up that emergency shortcut")
	if out.Success || !strings.Contains(out.Response, "already exists") {
		t.Errorf("Outcome = %+v", out)
	}
}

func TestHandleUtteranceInlineMacroPattern(t *testing.T) {
	macros := store.NewInMemoryStore()
	e, _ := testEngine(t, WithStore(macros))

	out := e.HandleUtterance(context.Background(), "when I say full burn press w")
	if !out.Success {
		t.Fatalf("Outcome = %+v", out)
	}
	m, err := macros.Get("full burn")
	if err != nil || m == nil {
		t.Fatalf("macro not stored: %v, %v", m, err)
	}
	if len(m.Keys) != 1 || m.Keys[0] != "w" {
		t.Errorf("macro keys = %v", m.Keys)
	}
}

func TestHandleUtteranceDeleteAndList(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{Name: "panic mode", TriggerPhrase: "red alert", ActionType: models.LegacyActionPress, Keys: []string{"c"}}); err != nil {
		t.Fatal(err)
	}

	list := &stubCompleter{doc: map[string]any{"action": "list_macros", "response": "Listing."}}
	e, _ := testEngine(t, WithStore(macros), WithCompleter(list))
	out := e.HandleUtterance(context.Background(), "what shortcuts do I have")
	if !strings.Contains(out.Response, "You have 1 macros, Commander:") {
		t.Errorf("list response = %q", out.Response)
	}

	del := &stubCompleter{doc: map[string]any{"action": "delete_macro", "macro_name": "panic mode", "response": "Removed."}}
	e2, _ := testEngine(t, WithStore(macros), WithCompleter(del))
	out = e2.HandleUtterance(context.Background(), "get rid of the emergency shortcut")
	if !out.Success || !strings.Contains(out.Response, "removed") {
		t.Errorf("delete response = %+v", out)
	}
	if count, _ := macros.Count(); count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestMacroListText(t *testing.T) {
	if got := MacroListText(nil); got != "You haven't created any macros yet, Commander." {
		t.Errorf("empty list text = %q", got)
	}

	var macros []models.Macro
	for i := 0; i < 12; i++ {
		macros = append(macros, models.Macro{
			Name:          fmt.Sprintf("macro%02d", i),
			TriggerPhrase: fmt.Sprintf("trigger %d", i),
			Keys:          []string{"x"},
			ActionType:    models.LegacyActionPress,
		})
	}
	text := MacroListText(macros)
	if !strings.Contains(text, "You have 12 macros") || !strings.Contains(text, "...and 2 more.") {
		t.Errorf("list text = %q", text)
	}
}

func TestCloseReleasesHeldKeys(t *testing.T) {
	kb := &fakeKeyboard{}
	blocked := make(chan struct{})
	exec := executor.New(executor.WithKeyboard(kb), executor.WithSleep(func(ctx context.Context, d time.Duration) error {
		close(blocked)
		<-ctx.Done()
		return ctx.Err()
	}))
	e := New(WithExecutor(exec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.HoldKey(ctx, "w", 1.0)
		close(done)
	}()
	<-blocked
	cancel()
	<-done

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	ops := kb.recorded()
	last := ops[len(ops)-1]
	if last != "up:w" {
		t.Errorf("Close should release held keys, ops = %v", ops)
	}
	if held := exec.HeldKeys(); len(held) != 0 {
		t.Errorf("held after Close = %v", held)
	}
}
