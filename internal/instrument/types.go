// Package instrument defines the tradable instruments and their static
// pricing parameters.
package instrument

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category groups instruments for sector correlation and allocation.
type Category uint8

const (
	CategoryTechnology Category = iota
	CategoryGaming
	CategoryFinance
	CategoryEntertainment
	CategoryScience
	CategorySports
	CategoryMemes
	CategoryLifestyle
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryTechnology,
	CategoryGaming,
	CategoryFinance,
	CategoryEntertainment,
	CategoryScience,
	CategorySports,
	CategoryMemes,
	CategoryLifestyle,
}

func (c Category) String() string {
	switch c {
	case CategoryTechnology:
		return "technology"
	case CategoryGaming:
		return "gaming"
	case CategoryFinance:
		return "finance"
	case CategoryEntertainment:
		return "entertainment"
	case CategoryScience:
		return "science"
	case CategorySports:
		return "sports"
	case CategoryMemes:
		return "memes"
	case CategoryLifestyle:
		return "lifestyle"
	default:
		return "unknown"
	}
}

// ParseCategory parses the lower-case name of a category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if c.String() == strings.ToLower(strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Definition is the immutable description of one instrument.
type Definition struct {
	ID                 string   `yaml:"id" json:"id"`
	Symbol             string   `yaml:"symbol" json:"symbol"`
	Name               string   `yaml:"name" json:"name"`
	SignalKey          string   `yaml:"signal_key" json:"signal_key"`
	Category           Category `yaml:"category" json:"category"`
	Volatility         float64  `yaml:"volatility" json:"volatility"`
	CategoryMultiplier float64  `yaml:"category_multiplier" json:"category_multiplier"`
	Dividend           bool     `yaml:"dividend" json:"dividend"`
}

var (
	ErrDuplicateInstrument = errors.New("duplicate instrument")
	ErrInvalidDefinition   = errors.New("invalid instrument definition")
)

func (d Definition) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	case d.Symbol == "":
		return fmt.Errorf("%w: %s: empty symbol", ErrInvalidDefinition, d.ID)
	case d.SignalKey == "":
		return fmt.Errorf("%w: %s: empty signal key", ErrInvalidDefinition, d.ID)
	case d.Volatility <= 0:
		return fmt.Errorf("%w: %s: volatility must be positive", ErrInvalidDefinition, d.ID)
	case d.CategoryMultiplier <= 0:
		return fmt.Errorf("%w: %s: category multiplier must be positive", ErrInvalidDefinition, d.ID)
	}
	return nil
}

// Registry is an immutable, id-indexed set of definitions.
type Registry struct {
	byID  map[string]Definition
	order []Definition
}

// NewRegistry validates defs and builds a Registry sorted by id.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{byID: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, ok := r.byID[d.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInstrument, d.ID)
		}
		if d.Name == "" {
			d.Name = d.Symbol
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i].ID < r.order[j].ID })
	return r, nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every definition sorted by id. The slice is a copy.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.order))
	copy(out, r.order)
	return out
}

// IDs returns every instrument id sorted.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	for i, d := range r.order {
		out[i] = d.ID
	}
	return out
}

// ByCategory groups definitions by category.
func (r *Registry) ByCategory() map[Category][]Definition {
	out := make(map[Category][]Definition)
	for _, d := range r.order {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

// Len returns the number of instruments.
func (r *Registry) Len() int { return len(r.order) }
