// Package vocab maps the detector's closed label vocabulary to semantic
// categories. The table is built once and every lookup is an exact match.
package vocab

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Category is the semantic role of a detector label.
type Category int

const (
	CategoryUnit Category = iota
	CategoryTower
	CategoryHP
	CategoryCard
	CategoryStatus
	CategoryExcluded
)

func (c Category) String() string {
	switch c {
	case CategoryUnit:
		return "unit"
	case CategoryTower:
		return "tower"
	case CategoryHP:
		return "hp"
	case CategoryCard:
		return "card"
	case CategoryStatus:
		return "status"
	case CategoryExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Side tells whose entity a label denotes.
type Side int

const (
	SideNone Side = iota
	SideAlly
	SideEnemy
)

func (s Side) String() string {
	switch s {
	case SideAlly:
		return "ally"
	case SideEnemy:
		return "enemy"
	default:
		return "none"
	}
}

// Status labels
const (
	GameStart = "GameStart"
	MatchOver = "MatchOver"
)

// Entry is the resolved classification of one label.
type Entry struct {
	Label    string
	Category Category
	Side     Side
	// Towers lists the tower classes an HP indicator may belong to (CategoryHP only)
	Towers []string
	// IsNext marks the next-card preview (CategoryCard only)
	IsNext bool
	// CardUnit is the card label with its deck/next marker removed (CategoryCard only)
	CardUnit string
}

// Spec describes the vocabulary. All lists are matched exactly.
type Spec struct {
	Labels      []string            `yaml:"labels"`
	AllyTowers  []string            `yaml:"ally_towers"`
	EnemyTowers []string            `yaml:"enemy_towers"`
	HPToTowers  map[string][]string `yaml:"hp_to_towers"`
	AllyHP      []string            `yaml:"ally_hp"`
	OwnUnits    []string            `yaml:"own_units"`
	Excluded    []string            `yaml:"excluded"`
	DeckMarker  string              `yaml:"deck_marker"`
	NextMarker  string              `yaml:"next_marker"`
}

// Table is an immutable label → Entry index. Safe for concurrent reads.
type Table struct {
	entries map[string]Entry
	hpOrder []string
	unknown sync.Map // out-of-vocabulary labels already reported
}

// NewTable builds the classification table for every label in spec.Labels plus
// every label named in the category lists.
func NewTable(spec Spec) (*Table, error) {
	if spec.DeckMarker == "" || spec.NextMarker == "" {
		return nil, fmt.Errorf("vocab: deck and next markers are required")
	}
	for hp, towers := range spec.HPToTowers {
		if len(towers) == 0 {
			return nil, fmt.Errorf("vocab: hp class %q maps to no tower class", hp)
		}
	}

	t := &Table{
		entries: make(map[string]Entry),
	}

	all := make([]string, 0, len(spec.Labels))
	all = append(all, spec.Labels...)
	all = append(all, spec.AllyTowers...)
	all = append(all, spec.EnemyTowers...)
	all = append(all, spec.OwnUnits...)
	all = append(all, spec.Excluded...)
	all = append(all, GameStart, MatchOver)
	for hp := range spec.HPToTowers {
		all = append(all, hp)
		t.hpOrder = append(t.hpOrder, hp)
	}
	sort.Strings(t.hpOrder)

	for _, label := range all {
		if _, seen := t.entries[label]; seen {
			continue
		}
		t.entries[label] = classify(spec, label)
	}

	return t, nil
}

// Lookup returns the entry for label. Labels outside the vocabulary are
// CategoryExcluded, so fusion ignores them; each one is logged once.
func (t *Table) Lookup(label string) Entry {
	if e, ok := t.entries[label]; ok {
		return e
	}
	if _, seen := t.unknown.LoadOrStore(label, struct{}{}); !seen {
		slog.Warn("ignoring label outside the vocabulary", "label", label)
	}
	return Entry{Label: label, Category: CategoryExcluded}
}

// Known reports whether label is part of the built vocabulary.
func (t *Table) Known(label string) bool {
	_, ok := t.entries[label]
	return ok
}

// HPClasses returns the HP indicator labels in a stable order.
func (t *Table) HPClasses() []string {
	out := make([]string, len(t.hpOrder))
	copy(out, t.hpOrder)
	return out
}

// CardUnit returns the unit a card label plays, or "" for non-card labels.
func (t *Table) CardUnit(label string) string {
	e := t.Lookup(label)
	if e.Category != CategoryCard {
		return ""
	}
	return e.CardUnit
}

// Labels returns every label in the table, sorted.
func (t *Table) Labels() []string {
	out := make([]string, 0, len(t.entries))
	for l := range t.entries {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func classify(spec Spec, label string) Entry {
	e := Entry{Label: label}

	switch {
	case label == GameStart || label == MatchOver:
		e.Category = CategoryStatus
	case contains(spec.AllyTowers, label):
		e.Category = CategoryTower
		e.Side = SideAlly
	case contains(spec.EnemyTowers, label):
		e.Category = CategoryTower
		e.Side = SideEnemy
	case spec.HPToTowers[label] != nil:
		e.Category = CategoryHP
		e.Side = SideEnemy
		if contains(spec.AllyHP, label) {
			e.Side = SideAlly
		}
		e.Towers = append([]string(nil), spec.HPToTowers[label]...)
	case contains(spec.Excluded, label):
		e.Category = CategoryExcluded
	case strings.HasSuffix(label, spec.NextMarker) && len(label) > len(spec.NextMarker):
		e.Category = CategoryCard
		e.IsNext = true
		e.CardUnit = strings.TrimSuffix(label, spec.NextMarker)
	case strings.HasSuffix(label, spec.DeckMarker) && len(label) > len(spec.DeckMarker):
		e.Category = CategoryCard
		e.CardUnit = strings.TrimSuffix(label, spec.DeckMarker)
	default:
		e.Category = CategoryUnit
		e.Side = SideEnemy
		if contains(spec.OwnUnits, label) {
			e.Side = SideAlly
		}
	}

	return e
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
