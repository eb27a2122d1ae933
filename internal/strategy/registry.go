package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// RuleFactory builds a sell rule from session config.
type RuleFactory func(cfg Config, logger *slog.Logger) (SellRule, error)

// Registry maps sell-rule type names to factories. It is safe for
// concurrent use.
type Registry struct {
	factories map[string]RuleFactory
	mu        sync.RWMutex
}

// NewRegistry returns a Registry with the built-in rules registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]RuleFactory)}
	r.Register(TypeBasic, func(cfg Config, logger *slog.Logger) (SellRule, error) {
		return NewFixedMarginRule(cfg, logger), nil
	})
	r.Register(TypeFloating, func(cfg Config, logger *slog.Logger) (SellRule, error) {
		ladder, err := LoadLadder(cfg.FloatStepsPath)
		if err != nil {
			return nil, err
		}
		return NewLadderRule(cfg, ladder, logger), nil
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f RuleFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build constructs the rule registered under cfg.Type.
func (r *Registry) Build(cfg Config, logger *slog.Logger) (SellRule, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Type)
	}
	return f(cfg, logger)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
