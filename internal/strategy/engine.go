package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/signalbench/internal/core"
	"go.uber.org/zap"
)

// Engine is the registry of named strategy variants
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// GetAll returns all registered strategies sorted by name
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Names returns the registered strategy names in sorted order
func (e *Engine) Names() []string {
	all := e.GetAll()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name()
	}
	return names
}

// Resolve looks up the named strategies in order. An empty list selects
// every registered strategy.
func (e *Engine) Resolve(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return e.GetAll(), nil
	}

	result := make([]Strategy, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		s, ok := e.Get(name)
		if !ok {
			return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
		}
		result = append(result, s)
	}
	return result, nil
}

// Configure applies per-strategy config. Disabled strategies are removed;
// strategies without an entry keep their defaults.
func (e *Engine) Configure(cfgs map[string]Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cfg := range cfgs {
		s, ok := e.strategies[name]
		if !ok {
			e.logger.Warn("config for unknown strategy", zap.String("strategy", name))
			continue
		}
		if !cfg.Enabled {
			delete(e.strategies, name)
			e.logger.Debug("strategy disabled", zap.String("strategy", name))
			continue
		}
		if err := s.Init(cfg); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategy %s: %w", name, err))
		}
	}
	return nil
}
