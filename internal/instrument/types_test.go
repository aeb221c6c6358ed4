package instrument

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	r, err := NewRegistry(DefaultCatalog())
	if err != nil {
		t.Fatalf("default catalog rejected: %v", err)
	}
	if r.Len() != len(DefaultCatalog()) {
		t.Errorf("expected %d instruments, got %d", len(DefaultCatalog()), r.Len())
	}
	ids := r.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not sorted: %v", ids)
		}
	}
	if _, ok := r.Get("wallstreetbets"); !ok {
		t.Error("expected wallstreetbets in catalog")
	}
	if got := len(r.ByCategory()[CategoryScience]); got != 2 {
		t.Errorf("expected 2 science instruments, got %d", got)
	}
}

func TestNewRegistryRejects(t *testing.T) {
	good := Definition{ID: "a", Symbol: "A", SignalKey: "a", Volatility: 1, CategoryMultiplier: 1}

	tests := []struct {
		name string
		defs []Definition
		want error
	}{
		{"duplicate", []Definition{good, good}, ErrDuplicateInstrument},
		{"empty symbol", []Definition{{ID: "a", SignalKey: "a", Volatility: 1, CategoryMultiplier: 1}}, ErrInvalidDefinition},
		{"zero volatility", []Definition{{ID: "a", Symbol: "A", SignalKey: "a", CategoryMultiplier: 1}}, ErrInvalidDefinition},
		{"negative multiplier", []Definition{{ID: "a", Symbol: "A", SignalKey: "a", Volatility: 1, CategoryMultiplier: -1}}, ErrInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.defs); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCategoryYAML(t *testing.T) {
	var d Definition
	src := "id: x\nsymbol: X\nsignal_key: x\ncategory: memes\nvolatility: 1\ncategory_multiplier: 1\n"
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatal(err)
	}
	if d.Category != CategoryMemes {
		t.Errorf("expected memes, got %s", d.Category)
	}
	if err := yaml.Unmarshal([]byte("category: crypto\n"), &d); err == nil {
		t.Error("expected unknown category to fail")
	}
}
