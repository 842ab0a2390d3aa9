// Package mood holds the persona table used to tailor analysis prompts to the
// creator's chosen mood. The table is embedded at build time and immutable.
package mood

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var strategiesYAML []byte

// Strategy is the persona guidance for one mood.
type Strategy struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Emoji          string   `yaml:"emoji" json:"emoji"`
	Psychology     string   `yaml:"psychology" json:"psychology"`
	CommonMistakes []string `yaml:"commonMistakes" json:"commonMistakes"`
	ScoringFocus   string   `yaml:"scoringFocus" json:"scoringFocus"`
	HookStyle      string   `yaml:"hookStyle" json:"hookStyle"`
	CaptionStyle   string   `yaml:"captionStyle" json:"captionStyle"`
	AdvancedTips   []string `yaml:"advancedTips" json:"advancedTips"`
}

// Table is a read-only lookup of strategies by id.
type Table struct {
	order []string
	byID  map[string]Strategy
}

// Parse builds a Table from YAML of the form `moods: [...]`.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Moods []Strategy `yaml:"moods"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mood table: %w", err)
	}

	t := &Table{byID: make(map[string]Strategy, len(doc.Moods))}
	for _, s := range doc.Moods {
		if s.ID == "" {
			return nil, fmt.Errorf("parse mood table: mood %q has no id", s.Name)
		}
		if _, dup := t.byID[s.ID]; dup {
			return nil, fmt.Errorf("parse mood table: duplicate id %q", s.ID)
		}
		t.byID[s.ID] = s
		t.order = append(t.order, s.ID)
	}
	return t, nil
}

// Default returns the embedded table. It panics if the embedded YAML is
// invalid, which can only happen at build time.
func Default() *Table {
	t, err := Parse(strategiesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Get looks up a strategy. The returned value is a copy.
func (t *Table) Get(id string) (Strategy, bool) {
	s, ok := t.byID[id]
	if !ok {
		return Strategy{}, false
	}
	s.CommonMistakes = append([]string(nil), s.CommonMistakes...)
	s.AdvancedTips = append([]string(nil), s.AdvancedTips...)
	return s, true
}

// List returns every strategy in table order.
func (t *Table) List() []Strategy {
	out := make([]Strategy, 0, len(t.order))
	for _, id := range t.order {
		s, _ := t.Get(id)
		out = append(out, s)
	}
	return out
}

// Len returns the number of moods.
func (t *Table) Len() int {
	return len(t.order)
}
