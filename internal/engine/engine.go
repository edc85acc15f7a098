// Package engine wires trigger resolution, intent completion, command
// interpretation, and keyboard execution into one utterance pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/OpenVoxLab/VoxPilot/internal/convo"
	"github.com/OpenVoxLab/VoxPilot/internal/executor"
	"github.com/OpenVoxLab/VoxPilot/internal/interpreter"
	"github.com/OpenVoxLab/VoxPilot/internal/keybinds"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
	"github.com/OpenVoxLab/VoxPilot/internal/resolver"
	"github.com/OpenVoxLab/VoxPilot/internal/store"
)

// Spoken responses for pipeline outcomes that carry no model-provided
// response of their own.
const (
	respEmptyInput    = "I didn't catch that, Commander."
	respRepeat        = "Repeating last command, Commander."
	respRepeatFailed  = "Couldn't repeat, Commander."
	respNothingRepeat = "No previous command to repeat, Commander."
	respUndoDeclined  = "I can't undo keyboard input, Commander."
	respNotInFocus    = "I couldn't execute that command, Commander. Make sure the game is in focus."
	respMacroFailed   = "Macro execution failed, Commander."
	respLLMFailed     = "I'm having trouble processing that request, Commander. Could you try again?"
)

// historyWindow is how many recent turns are forwarded to the
// completion service.
const historyWindow = 6

// Completer produces an intent document for an utterance.
type Completer interface {
	CompleteIntent(ctx context.Context, utterance string, history []models.ConversationTurn, menu string) (map[string]any, error)
}

// Outcome is the result of handling one utterance.
type Outcome struct {
	// Response is the text to speak back.
	Response string
	// Executed reports whether a keyboard action was attempted.
	Executed bool
	// Success reports whether the attempted action completed.
	Success bool
}

// Opts holds engine configuration.
type Opts struct {
	Executor    *executor.Executor
	Interpreter *interpreter.Interpreter
	Store       store.MacroStore
	Catalog     *keybinds.Catalog
	Completer   Completer
	Convo       *convo.Context
	MaxTurns    int
}

// Option configures the engine.
type Option func(*Opts)

// WithExecutor sets the action executor.
func WithExecutor(e *executor.Executor) Option { return func(o *Opts) { o.Executor = e } }

// WithInterpreter sets the command interpreter.
func WithInterpreter(in *interpreter.Interpreter) Option { return func(o *Opts) { o.Interpreter = in } }

// WithStore sets the macro store.
func WithStore(s store.MacroStore) Option { return func(o *Opts) { o.Store = s } }

// WithCatalog sets the keybind catalog.
func WithCatalog(c *keybinds.Catalog) Option { return func(o *Opts) { o.Catalog = c } }

// WithCompleter sets the intent completion service. Without one, the
// engine still resolves macros and keybinds but cannot interpret free
// conversation.
func WithCompleter(c Completer) Option { return func(o *Opts) { o.Completer = c } }

// WithMaxTurns sets the conversation window size.
func WithMaxTurns(n int) Option { return func(o *Opts) { o.MaxTurns = n } }

// Engine is the utterance pipeline.
type Engine struct {
	session   string
	exec      *executor.Executor
	interp    *interpreter.Interpreter
	macros    store.MacroStore
	catalog   *keybinds.Catalog
	completer Completer
	resolver  *resolver.Resolver
	convo     *convo.Context
}

// New creates an engine. Missing collaborators get working defaults:
// an in-memory store, an empty catalog, and a real executor.
func New(opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Executor == nil {
		cfg.Executor = executor.New()
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = interpreter.New()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = keybinds.NewCatalog()
	}
	if cfg.Convo == nil {
		cfg.Convo = convo.New(cfg.MaxTurns)
	}

	e := &Engine{
		session:   uuid.NewString(),
		exec:      cfg.Executor,
		interp:    cfg.Interpreter,
		macros:    cfg.Store,
		catalog:   cfg.Catalog,
		completer: cfg.Completer,
		resolver:  resolver.New(cfg.Catalog, cfg.Store),
		convo:     cfg.Convo,
	}
	slog.Info("Engine created", "session", e.session)
	return e
}

// Conversation exposes the engine's conversation context.
func (e *Engine) Conversation() *convo.Context { return e.convo }

// HandleUtterance runs one utterance through the pipeline: repeat/undo
// phrases, macro triggers, keybind aliases, the inline macro pattern,
// and finally the completion service.
func (e *Engine) HandleUtterance(ctx context.Context, text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Response: respEmptyInput}
	}
	slog.Info("Engine utterance received", "session", e.session, "text", text)

	if e.convo.IsRepeatPhrase(text) {
		return e.handleRepeat(ctx, text)
	}
	if e.convo.IsUndoPhrase(text) {
		e.convo.AddUserTurn(text)
		e.convo.AddAssistantTurn(respUndoDeclined, nil)
		return Outcome{Response: respUndoDeclined}
	}

	res, err := e.resolver.Resolve(text)
	if err != nil {
		slog.Error("Engine trigger resolution failed", "session", e.session, "error", err)
	}
	if res != nil {
		if res.Macro != nil {
			return e.executeMacro(ctx, text, res.Macro)
		}
		return e.executeKeybind(ctx, text, res.Keybind)
	}

	if doc := e.interp.InterpretMacroPattern(text); doc != nil {
		cmd := e.interp.Parse(doc)
		return e.dispatch(ctx, text, cmd)
	}

	if e.completer == nil {
		return Outcome{Response: respLLMFailed}
	}
	doc, err := e.completer.CompleteIntent(ctx, text, e.convo.Recent(historyWindow), e.catalog.MenuText())
	if err != nil {
		slog.Error("Engine intent completion failed", "session", e.session, "error", err)
		return Outcome{Response: respLLMFailed}
	}
	cmd := e.interp.Parse(doc)
	return e.dispatch(ctx, text, cmd)
}

func (e *Engine) handleRepeat(ctx context.Context, text string) Outcome {
	last := e.convo.LastKeyboardCommand()
	if last == nil {
		return Outcome{Response: respNothingRepeat}
	}
	slog.Info("Engine repeating command", "session", e.session, "type", last.Type)

	ok := e.executeCommandKeys(ctx, *last)
	resp := respRepeat
	if !ok {
		resp = respRepeatFailed
	}
	e.convo.AddUserTurn(text)
	e.convo.AddAssistantTurn(resp, nil)
	return Outcome{Response: resp, Executed: true, Success: ok}
}

func (e *Engine) executeCommandKeys(ctx context.Context, cmd models.Command) bool {
	if cmd.Type == models.CommandComplexAction {
		return e.exec.ExecuteSequence(ctx, cmd.Steps)
	}
	return e.exec.ExecuteAction(ctx, cmd.KeyAction(), cmd.Keys, cmd.Duration)
}

func (e *Engine) executeMacro(ctx context.Context, text string, m *models.Macro) Outcome {
	slog.Info("Engine executing macro", "session", e.session, "macro", m.Name)

	var ok bool
	var recorded models.Command
	if m.IsSequence() {
		ok = e.exec.ExecuteSequence(ctx, m.ActionSteps)
		recorded = models.Command{Type: models.CommandComplexAction, Steps: m.ActionSteps}
	} else {
		kind := models.KindForActionType(m.ActionType)
		ok = e.exec.ExecuteAction(ctx, kind, m.Keys, m.Duration)
		recorded = models.Command{Type: keybindCommandType(kind), Keys: m.Keys, Duration: m.Duration}
	}

	resp := m.Response
	if resp == "" {
		resp = fmt.Sprintf("Macro %s executed, Commander.", m.Name)
	}
	if !ok {
		slog.Warn("Engine macro execution failed", "session", e.session, "macro", m.Name)
		e.convo.AddUserTurn(text)
		e.convo.AddAssistantTurn(respMacroFailed, nil)
		return Outcome{Response: respMacroFailed, Executed: true}
	}

	if err := e.macros.RecordUsage(m.Name); err != nil {
		slog.Warn("Engine macro usage not recorded", "session", e.session, "macro", m.Name, "error", err)
	}
	recorded.Response = resp
	e.convo.AddUserTurn(text)
	e.convo.AddAssistantTurn(resp, &recorded)
	return Outcome{Response: resp, Executed: true, Success: true}
}

func (e *Engine) executeKeybind(ctx context.Context, text string, kb *models.Keybind) Outcome {
	slog.Info("Engine executing keybind", "session", e.session, "bind", kb.Name)

	ok := e.exec.ExecuteAction(ctx, kb.Action, kb.Keys, kb.Duration)
	if !ok {
		e.convo.AddUserTurn(text)
		e.convo.AddAssistantTurn(respNotInFocus, nil)
		return Outcome{Response: respNotInFocus, Executed: true}
	}

	resp := kb.Response
	if resp == "" {
		resp = fmt.Sprintf("%s, Commander.", kb.Name)
	}
	recorded := models.Command{Type: keybindCommandType(kb.Action), Keys: kb.Keys, Duration: kb.Duration, Response: resp}
	e.convo.AddUserTurn(text)
	e.convo.AddAssistantTurn(resp, &recorded)
	return Outcome{Response: resp, Executed: true, Success: true}
}

func keybindCommandType(kind models.ActionKind) models.CommandType {
	switch kind {
	case models.ActionHold:
		return models.CommandHoldKey
	case models.ActionCombo:
		return models.CommandKeyCombo
	default:
		return models.CommandPressKey
	}
}

// dispatch executes an interpreted command and records the exchange.
func (e *Engine) dispatch(ctx context.Context, text string, cmd models.Command) Outcome {
	var out Outcome
	switch {
	case cmd.Type == models.CommandCreateMacro:
		out = e.createMacro(cmd)
	case cmd.Type == models.CommandDeleteMacro:
		out = e.deleteMacro(cmd)
	case cmd.Type == models.CommandListMacros:
		out = e.listMacros()
	case cmd.IsKeyboardAction():
		ok := e.executeCommandKeys(ctx, cmd)
		if ok {
			out = Outcome{Response: cmd.Response, Executed: true, Success: true}
		} else {
			out = Outcome{Response: respNotInFocus, Executed: true}
		}
	default:
		// speak_only and unknown both just talk back.
		out = Outcome{Response: cmd.Response}
	}

	cmd.Response = out.Response
	e.convo.AddExchange(text, cmd)
	return out
}

func (e *Engine) createMacro(cmd models.Command) Outcome {
	name := strings.TrimSpace(cmd.MacroName)
	if name == "" {
		return Outcome{Response: "I couldn't create that macro, Commander. It needs a name."}
	}

	m := models.Macro{
		Name:          name,
		TriggerPhrase: cmd.TriggerPhrase,
		Response:      fmt.Sprintf("Executing %s macro, Commander.", name),
	}
	if cmd.MacroHasSteps {
		m.ActionSteps = cmd.MacroSteps
	} else {
		m.ActionType = cmd.MacroAction
		m.Keys = cmd.MacroKeys
		m.Duration = cmd.Duration
	}

	created, err := e.macros.Create(m)
	if err != nil {
		slog.Warn("Engine macro creation failed", "session", e.session, "macro", name, "error", err)
		switch {
		case errors.Is(err, models.ErrMacroExists):
			return Outcome{Response: fmt.Sprintf("A macro named '%s' already exists, Commander.", name)}
		case errors.Is(err, models.ErrMacroLimitReached):
			return Outcome{Response: "You've reached the macro limit, Commander. Remove one first."}
		default:
			return Outcome{Response: "I couldn't create that macro, Commander."}
		}
	}
	return Outcome{Response: fmt.Sprintf("Macro created, Commander. Say '%s' to activate it.", created.TriggerPhrase), Success: true}
}

func (e *Engine) deleteMacro(cmd models.Command) Outcome {
	name := strings.TrimSpace(cmd.MacroName)
	if err := e.macros.Delete(name); err != nil {
		if errors.Is(err, models.ErrMacroNotFound) {
			return Outcome{Response: fmt.Sprintf("I couldn't find a macro named '%s', Commander.", name)}
		}
		slog.Error("Engine macro deletion failed", "session", e.session, "macro", name, "error", err)
		return Outcome{Response: "I couldn't remove that macro, Commander."}
	}
	return Outcome{Response: fmt.Sprintf("Macro '%s' has been removed, Commander.", name), Success: true}
}

func (e *Engine) listMacros() Outcome {
	macros, err := e.macros.List()
	if err != nil {
		slog.Error("Engine macro listing failed", "session", e.session, "error", err)
		return Outcome{Response: "I couldn't read your macros, Commander."}
	}
	return Outcome{Response: MacroListText(macros), Success: true}
}

// macroListLimit caps how many macros are spoken aloud.
const macroListLimit = 10

// MacroListText formats stored macros as speech.
func MacroListText(macros []models.Macro) string {
	if len(macros) == 0 {
		return "You haven't created any macros yet, Commander."
	}

	lines := []string{fmt.Sprintf("You have %d macros, Commander:", len(macros))}
	shown := macros
	if len(shown) > macroListLimit {
		shown = shown[:macroListLimit]
	}
	for _, m := range shown {
		if m.IsSequence() {
			lines = append(lines, fmt.Sprintf("%s: say '%s' to run %d steps", m.Name, m.TriggerPhrase, len(m.ActionSteps)))
		} else {
			lines = append(lines, fmt.Sprintf("%s: say '%s' to press %s", m.Name, m.TriggerPhrase, strings.Join(m.Keys, ", ")))
		}
	}
	if len(macros) > macroListLimit {
		lines = append(lines, fmt.Sprintf("...and %d more.", len(macros)-macroListLimit))
	}
	return strings.Join(lines, " ")
}

// Close releases any keys still held. Safe to call more than once.
func (e *Engine) Close() error {
	e.exec.ReleaseAllHeld()
	slog.Info("Engine closed", "session", e.session)
	return nil
}
