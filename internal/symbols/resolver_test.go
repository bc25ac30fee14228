package symbols

import (
	"testing"

	"smc-signal-engine/config"
)

func testResolver() *Resolver {
	return NewResolver(config.SymbolConfig{
		Variations: map[string][]string{
			"US30":   {"US30", "US30Cash", "DJ30"},
			"XAUUSD": {"XAUUSD", "GOLD"},
		},
	})
}

func TestResolveExactVariation(t *testing.T) {
	r := testResolver()

	got, err := r.Resolve("US30", []string{"EURUSD", "US30Cash", "GBPUSD"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "US30Cash" {
		t.Errorf("resolved %q, want US30Cash", got)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := testResolver()

	got, err := r.Resolve("XAUUSD", []string{"gold"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "gold" {
		t.Errorf("resolved %q, want the feed's own spelling", got)
	}
}

func TestResolvePartialPrefix(t *testing.T) {
	r := testResolver()

	got, err := r.Resolve("US30", []string{"US30.pro", "EURUSD"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "US30.pro" {
		t.Errorf("resolved %q, want US30.pro", got)
	}
}

func TestResolveUnknownLogicalFallsBackToName(t *testing.T) {
	r := testResolver()

	got, err := r.Resolve("NAS100", []string{"NAS100"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "NAS100" {
		t.Errorf("resolved %q, want NAS100", got)
	}
}

func TestResolveUnresolvableIsError(t *testing.T) {
	r := testResolver()

	if _, err := r.Resolve("US30", []string{"EURUSD", "GBPUSD"}); err == nil {
		t.Fatal("expected error for unresolvable symbol")
	}
}

func TestResolveShortCandidatesSkipPartialMatch(t *testing.T) {
	r := NewResolver(config.SymbolConfig{
		Variations: map[string][]string{"GO": {"GO"}},
	})

	// Two characters is below the partial-match guard.
	if _, err := r.Resolve("GO", []string{"GOLD"}); err == nil {
		t.Fatal("short candidate should not partial-match")
	}
}
