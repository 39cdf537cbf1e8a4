package retailer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
)

// Registry is an ordered set of adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry returns a registry holding adapters in the given order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Default builds all six retailer adapters sharing one fetcher.
func Default(f fetcher.Fetcher, opts Options) *Registry {
	return NewRegistry(
		NewAmazon(f, opts),
		NewWalmart(f, opts),
		NewCostco(f, opts),
		NewShoppers(f, opts),
		NewLondonDrugs(f, opts),
		NewWellCa(f, opts),
	)
}

// All returns every adapter.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Names returns the adapter names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Get returns the adapter named name.
func (r *Registry) Get(name string) (Adapter, bool) {
	for _, a := range r.adapters {
		if strings.EqualFold(a.Name(), name) {
			return a, true
		}
	}
	return nil, false
}

// Enabled returns the adapters whose names appear in names, in registry
// order. An empty list enables everything; unknown names are logged.
func (r *Registry) Enabled(names []string) []Adapter {
	if len(names) == 0 {
		return r.All()
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if _, ok := r.Get(n); !ok {
			zap.L().Warn("retailer: unknown retailer in config", zap.String("name", n))
			continue
		}
		want[n] = true
	}
	var out []Adapter
	for _, a := range r.adapters {
		if want[strings.ToLower(a.Name())] {
			out = append(out, a)
		}
	}
	return out
}
