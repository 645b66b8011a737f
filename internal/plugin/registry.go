package plugin

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/specwright/takeoff-cli/internal/model"
)

// Registry maps plugin keys to analyzers. It is populated once at process
// start and read-only thereafter; lookups are safe for concurrent use.
type Registry struct {
	byKey map[string]Analyzer
	keys  []string
}

// NewRegistry builds a registry from the fixed plugin set. Duplicate or
// empty keys are registration bugs and fail construction.
func NewRegistry(analyzers ...Analyzer) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		key := a.Descriptor().Key
		if key == "" {
			return nil, eris.New("registry: analyzer with empty key")
		}
		if _, dup := r.byKey[key]; dup {
			return nil, eris.Errorf("registry: duplicate plugin key %q", key)
		}
		r.byKey[key] = a
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)
	return r, nil
}

// ByKey returns the analyzer registered under key, or
// model.ErrPluginNotFound.
func (r *Registry) ByKey(key string) (Analyzer, error) {
	a, ok := r.byKey[key]
	if !ok {
		return nil, eris.Wrapf(model.ErrPluginNotFound, "registry: %q", key)
	}
	return a, nil
}

// ByTrade returns the analyzers applicable to the given trade scope, in
// deterministic key order. An empty scope selects every plugin.
func (r *Registry) ByTrade(trades ...model.Trade) []Analyzer {
	scope := make(map[model.Trade]bool, len(trades))
	for _, t := range trades {
		scope[t] = true
	}
	var out []Analyzer
	for _, key := range r.keys {
		a := r.byKey[key]
		if len(scope) == 0 || scope[a.Descriptor().Trade] {
			out = append(out, a)
		}
	}
	return out
}

// Descriptors returns every registered descriptor in key order, for the
// plugin catalog surface.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, r.byKey[key].Descriptor())
	}
	return out
}

// Keys returns the sorted plugin keys.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}
