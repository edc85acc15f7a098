// Package convo keeps a bounded window of recent conversation turns so
// phrases like "do that again" can be resolved against prior commands.
package convo

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// DefaultMaxTurns is the default number of logical exchanges retained.
const DefaultMaxTurns = 10

var repeatPhrases = []string{
	"repeat",
	"do that again",
	"again",
	"same again",
	"one more time",
	"do it again",
	"repeat that",
	"same thing",
}

var undoPhrases = []string{
	"undo",
	"undo that",
	"cancel",
	"cancel that",
	"never mind",
	"nevermind",
}

// Context is a ring buffer of conversation turns. A user turn and an
// assistant turn count as one logical exchange, so the buffer holds
// 2 x maxTurns entries. Oldest turns are evicted silently.
type Context struct {
	mu      sync.Mutex
	history []models.ConversationTurn
	cap     int

	lastCommand   *models.Command
	lastUserInput string
}

// New creates a conversation context retaining maxTurns exchanges.
// Non-positive maxTurns falls back to DefaultMaxTurns.
func New(maxTurns int) *Context {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Context{cap: maxTurns * 2}
}

func (c *Context) append(turn models.ConversationTurn) {
	c.history = append(c.history, turn)
	if len(c.history) > c.cap {
		c.history = c.history[len(c.history)-c.cap:]
	}
}

// AddUserTurn records what the user said.
func (c *Context) AddUserTurn(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.append(models.ConversationTurn{Role: models.RoleUser, Content: text, Timestamp: time.Now()})
	c.lastUserInput = text
	slog.Debug("Context user turn added", "text", truncate(text, 50))
}

// AddAssistantTurn records a spoken response and the command it came
// from, if any.
func (c *Context) AddAssistantTurn(response string, cmd *models.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.append(models.ConversationTurn{Role: models.RoleAssistant, Content: response, Command: cmd, Timestamp: time.Now()})
	if cmd != nil {
		c.lastCommand = cmd
	}
	slog.Debug("Context assistant turn added", "response", truncate(response, 50))
}

// AddExchange records a full user/assistant exchange in one call.
func (c *Context) AddExchange(userInput string, cmd models.Command) {
	c.AddUserTurn(userInput)
	c.AddAssistantTurn(cmd.Response, &cmd)
}

// History returns every retained turn, oldest first.
func (c *Context) History() []models.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ConversationTurn, len(c.history))
	copy(out, c.history)
	return out
}

// Recent returns the n most recent turns, oldest first.
func (c *Context) Recent(n int) []models.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || len(c.history) == 0 {
		return nil
	}
	if n > len(c.history) {
		n = len(c.history)
	}
	out := make([]models.ConversationTurn, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// LastCommand returns the most recent command recorded with an
// assistant turn, or nil.
func (c *Context) LastCommand() *models.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommand
}

// LastUserInput returns the most recent user utterance.
func (c *Context) LastUserInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUserInput
}

// LastKeyboardCommand scans the retained history newest-to-oldest for
// the most recent keyboard-action command. Returns nil when no such
// turn remains in the window.
func (c *Context) LastKeyboardCommand() *models.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.history) - 1; i >= 0; i-- {
		cmd := c.history[i].Command
		if cmd != nil && cmd.IsKeyboardAction() {
			return cmd
		}
	}
	return nil
}

// IsRepeatPhrase reports whether the text asks to repeat the previous
// command. Matching is a fixed substring check, not semantic.
func (c *Context) IsRepeatPhrase(text string) bool {
	return containsAny(text, repeatPhrases)
}

// IsUndoPhrase reports whether the text asks to undo the previous
// command.
func (c *Context) IsUndoPhrase(text string) bool {
	return containsAny(text, undoPhrases)
}

// Clear drops all history.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.lastCommand = nil
	c.lastUserInput = ""
	slog.Info("Context cleared")
}

// Len returns the number of retained turns.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Summary renders the last few turns as short display lines.
func (c *Context) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return "No conversation history."
	}
	start := len(c.history) - 4
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, turn := range c.history[start:] {
		prefix := "You:"
		if turn.Role == models.RoleAssistant {
			prefix = "Pilot:"
		}
		lines = append(lines, fmt.Sprintf("%s %s", prefix, truncate(turn.Content, 50)))
	}
	return strings.Join(lines, "\n")
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
