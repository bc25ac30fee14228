// Package symbols maps logical symbol names onto feed-specific spellings,
// since brokers list the same instrument under different tickers.
package symbols

import (
	"fmt"
	"strings"

	"smc-signal-engine/config"
)

// Resolver matches a logical symbol against the names a feed actually lists.
type Resolver struct {
	variations map[string][]string
}

// NewResolver creates a resolver from configured variations.
func NewResolver(cfg config.SymbolConfig) *Resolver {
	return &Resolver{variations: cfg.Variations}
}

// Resolve returns the feed name for a logical symbol. Exact matches against
// the configured variations win; a guarded partial match (shared prefix of at
// least three characters) is the fallback. An unresolvable symbol is an
// error, never a silent guess.
func (r *Resolver) Resolve(logical string, available []string) (string, error) {
	candidates := r.variations[logical]
	if len(candidates) == 0 {
		candidates = []string{logical}
	}

	listed := make(map[string]string, len(available))
	for _, name := range available {
		listed[strings.ToUpper(name)] = name
	}

	for _, candidate := range candidates {
		if name, ok := listed[strings.ToUpper(candidate)]; ok {
			return name, nil
		}
	}

	for _, candidate := range candidates {
		cu := strings.ToUpper(candidate)
		if len(cu) < 3 {
			continue
		}
		for upper, name := range listed {
			if strings.HasPrefix(upper, cu) || strings.HasPrefix(cu, upper) {
				return name, nil
			}
		}
	}

	return "", fmt.Errorf("symbol %s not resolvable against feed listing", logical)
}

// Known reports whether a logical symbol has configured variations.
func (r *Resolver) Known(logical string) bool {
	_, ok := r.variations[logical]
	return ok
}
