// Package resolver matches free-form utterances against stored macro
// triggers and static keybind aliases.
package resolver

import (
	"log/slog"
	"strings"

	"github.com/OpenVoxLab/VoxPilot/internal/keybinds"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// minFuzzyScore is the word-overlap threshold below which a fuzzy
// candidate is rejected.
const minFuzzyScore = 0.5

// MacroFinder is the read path of the macro store used for trigger
// resolution.
type MacroFinder interface {
	FindByTrigger(text string) (*models.Macro, error)
	List() ([]models.Macro, error)
}

// Resolver resolves utterances against a keybind catalog and a macro
// store. Macros are checked before keybinds so user-defined triggers
// override the defaults.
type Resolver struct {
	catalog *keybinds.Catalog
	macros  MacroFinder
}

// New creates a resolver over a catalog and a macro finder. Either may
// be nil, in which case that source is skipped.
func New(catalog *keybinds.Catalog, macros MacroFinder) *Resolver {
	return &Resolver{catalog: catalog, macros: macros}
}

// Result is a successful resolution: exactly one of Keybind or Macro is
// set.
type Result struct {
	Keybind *models.Keybind
	Macro   *models.Macro
}

// Resolve finds the macro or keybind triggered by an utterance, or nil
// when nothing matches. Macros win over keybinds.
func (r *Resolver) Resolve(utterance string) (*Result, error) {
	m, err := r.ResolveMacro(utterance)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return &Result{Macro: m}, nil
	}
	if kb := r.ResolveKeybind(utterance); kb != nil {
		return &Result{Keybind: kb}, nil
	}
	return nil, nil
}

// ResolveMacro matches the utterance against stored macro triggers:
// exact, then containment, then word-overlap fuzzy.
func (r *Resolver) ResolveMacro(utterance string) (*models.Macro, error) {
	if r.macros == nil {
		return nil, nil
	}
	m, err := r.macros.FindByTrigger(utterance)
	if err != nil {
		return nil, err
	}
	if m != nil {
		slog.Debug("Resolver macro trigger matched", "macro", m.Name)
		return m, nil
	}

	macros, err := r.macros.List()
	if err != nil {
		return nil, err
	}
	text := normalize(utterance)
	var best *models.Macro
	bestScore := 0.0
	for i := range macros {
		score := overlapScore(text, macros[i].TriggerPhrase)
		if score >= minFuzzyScore && score > bestScore {
			best = &macros[i]
			bestScore = score
		}
	}
	if best != nil {
		slog.Debug("Resolver fuzzy macro match", "macro", best.Name, "score", bestScore)
	}
	return best, nil
}

// ResolveKeybind matches the utterance against keybind aliases: exact,
// then containment, then word-overlap fuzzy.
func (r *Resolver) ResolveKeybind(utterance string) *models.Keybind {
	if r.catalog == nil {
		return nil
	}
	text := normalize(utterance)
	if text == "" {
		return nil
	}

	if bind, ok := r.catalog.GetByAlias(text); ok {
		return &bind
	}

	entries := r.catalog.AliasEntries()
	for _, e := range entries {
		if strings.Contains(text, e.Alias) {
			bind := e.Bind
			slog.Debug("Resolver alias contained in utterance", "alias", e.Alias, "bind", bind.Name)
			return &bind
		}
	}

	var best *models.Keybind
	bestScore := 0.0
	for _, e := range entries {
		score := overlapScore(text, e.Alias)
		if score >= minFuzzyScore && score > bestScore {
			bind := e.Bind
			best = &bind
			bestScore = score
		}
	}
	if best != nil {
		slog.Debug("Resolver fuzzy alias match", "bind", best.Name, "score", bestScore)
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// overlapScore counts how many of the phrase's words appear in the
// utterance, as a fraction of the phrase's word count.
func overlapScore(utterance, phrase string) float64 {
	phraseWords := strings.Fields(normalize(phrase))
	if len(phraseWords) == 0 {
		return 0
	}
	uttered := make(map[string]bool)
	for _, w := range strings.Fields(utterance) {
		uttered[w] = true
	}
	hits := 0
	for _, w := range phraseWords {
		if uttered[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(phraseWords))
}
