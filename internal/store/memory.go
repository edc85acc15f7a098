package store

import (
	"sort"
	"sync"
	"time"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// InMemoryStore is a non-durable macro store used in tests and as a
// fallback when no database is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	macros    map[string]models.Macro
	nextID    int64
	maxMacros int
}

// NewInMemoryStore creates an in-memory macro store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxMacros <= 0 {
		cfg.MaxMacros = models.DefaultMaxMacros
	}
	return &InMemoryStore{macros: make(map[string]models.Macro), nextID: 1, maxMacros: cfg.MaxMacros}
}

func (s *InMemoryStore) Create(m models.Macro) (models.Macro, error) {
	if err := m.Validate(); err != nil {
		return models.Macro{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.macros) >= s.maxMacros {
		return models.Macro{}, models.ErrMacroLimitReached
	}
	m.Name = normalizeName(m.Name)
	m.TriggerPhrase = normalizeName(m.TriggerPhrase)
	if m.TriggerPhrase == "" {
		m.TriggerPhrase = m.Name
	}
	if _, exists := s.macros[m.Name]; exists {
		return models.Macro{}, models.ErrMacroExists
	}
	m.ID = s.nextID
	s.nextID++
	m.SchemaVersion = m.InferSchemaVersion()
	m.CreatedAt = time.Now()
	s.macros[m.Name] = m
	return m, nil
}

// cloneMacro copies a macro including its slices so callers cannot
// mutate stored state through a returned pointer.
func cloneMacro(m models.Macro) models.Macro {
	if m.Keys != nil {
		m.Keys = append([]string(nil), m.Keys...)
	}
	if m.ActionSteps != nil {
		steps := make([]models.ActionStep, len(m.ActionSteps))
		for i, st := range m.ActionSteps {
			st.Keys = append([]string(nil), st.Keys...)
			steps[i] = st
		}
		m.ActionSteps = steps
	}
	return m
}

func (s *InMemoryStore) Get(name string) (*models.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.macros[normalizeName(name)]
	if !ok {
		return nil, nil
	}
	m = cloneMacro(m)
	return &m, nil
}

func (s *InMemoryStore) GetByID(id int64) (*models.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.macros {
		if m.ID == id {
			m = cloneMacro(m)
			return &m, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) FindByTrigger(text string) (*models.Macro, error) {
	macros, err := s.List()
	if err != nil {
		return nil, err
	}
	return matchTrigger(macros, text), nil
}

func (s *InMemoryStore) Update(m models.Macro) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := normalizeName(m.Name)
	stored, ok := s.macros[name]
	if !ok {
		return models.ErrMacroNotFound
	}
	stored.TriggerPhrase = normalizeName(m.TriggerPhrase)
	stored.ActionType = m.ActionType
	stored.Keys = m.Keys
	stored.Duration = m.Duration
	stored.Response = m.Response
	stored.ActionSteps = m.ActionSteps
	stored.SchemaVersion = m.InferSchemaVersion()
	s.macros[name] = stored
	return nil
}

func (s *InMemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeName(name)
	if _, ok := s.macros[key]; !ok {
		return models.ErrMacroNotFound
	}
	delete(s.macros, key)
	return nil
}

func (s *InMemoryStore) List() ([]models.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Macro, 0, len(s.macros))
	for _, m := range s.macros {
		out = append(out, cloneMacro(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.macros), nil
}

func (s *InMemoryStore) RecordUsage(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.macros[normalizeName(name)]
	if !ok {
		return models.ErrMacroNotFound
	}
	now := time.Now()
	m.LastUsed = &now
	m.UseCount++
	s.macros[m.Name] = m
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
