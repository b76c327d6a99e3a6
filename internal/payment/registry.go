package payment

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is built once at start-up and shared read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[normalize(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(gateway string) (Provider, error) {
	p, ok := r.providers[normalize(gateway)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGateway, gateway)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
