package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Reading is an OCR-derived integer that may be unknown.
type Reading struct {
	Value int
	Known bool
}

// Known wraps a successfully read value.
func Known(v int) Reading {
	return Reading{Value: v, Known: true}
}

// Unknown is the zero Reading.
var Unknown = Reading{}

// AtLeast reports whether the reading is known and >= n.
func (r Reading) AtLeast(n int) bool {
	return r.Known && r.Value >= n
}

func (r Reading) String() string {
	if !r.Known {
		return "N/A"
	}
	return strconv.Itoa(r.Value)
}

// MarshalJSON renders unknown readings as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(r.Value)), nil
}

// UnmarshalJSON accepts null or an integer.
func (r *Reading) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*r = Unknown
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	*r = Known(v)
	return nil
}

// Tower is a defensive structure with an OCR-read health value.
type Tower struct {
	Class  string  `json:"class"`
	Box    Box     `json:"box"`
	Health Reading `json:"health"`
}

// Unit is a mobile combat entity seen in the current frame.
type Unit struct {
	Class string `json:"class"`
	Box   Box    `json:"box"`
}

// Card is a hand slot; IsNext marks the upcoming, not yet playable card.
type Card struct {
	Class  string `json:"class"`
	Box    Box    `json:"box"`
	IsNext bool   `json:"is_next"`
}

// GameState is the fused view of one perception cycle.
//
// GameStart and MatchOver are sticky across cycles. Elixir and the tower lists
// may be carried over from the previous cycle when OCR was skipped; units and
// cards always come from the current frame.
type GameState struct {
	Elixir      Reading `json:"elixir"`
	MyTowers    []Tower `json:"my_towers"`
	EnemyTowers []Tower `json:"enemy_towers"`
	MyUnits     []Unit  `json:"my_units"`
	EnemyUnits  []Unit  `json:"enemy_units"`
	Cards       []Card  `json:"cards"`
	GameStart   bool    `json:"game_start"`
	MatchOver   bool    `json:"match_over"`
}

// Active reports whether the bot should be acting on this state.
func (s GameState) Active() bool {
	return s.GameStart && !s.MatchOver
}

// Clone returns a deep copy so the published value can never be mutated through a reader.
func (s GameState) Clone() GameState {
	out := s
	out.MyTowers = cloneSlice(s.MyTowers)
	out.EnemyTowers = cloneSlice(s.EnemyTowers)
	out.MyUnits = cloneSlice(s.MyUnits)
	out.EnemyUnits = cloneSlice(s.EnemyUnits)
	out.Cards = cloneSlice(s.Cards)
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func (s GameState) String() string {
	towers := func(ts []Tower) string {
		parts := make([]string, 0, len(ts))
		for _, t := range ts {
			parts = append(parts, fmt.Sprintf("%s(HP: %s)", t.Class, t.Health))
		}
		return strings.Join(parts, ", ")
	}
	units := func(us []Unit) string {
		parts := make([]string, 0, len(us))
		for _, u := range us {
			parts = append(parts, u.Class)
		}
		return strings.Join(parts, ", ")
	}

	hand := make([]string, 0, len(s.Cards))
	next := "N/A"
	for _, c := range s.Cards {
		if c.IsNext {
			if next == "N/A" {
				next = c.Class
			}
			continue
		}
		hand = append(hand, c.Class)
	}

	var sb strings.Builder
	sb.WriteString("--- Game State ---\n")
	fmt.Fprintf(&sb, "Elixir: %s\n", s.Elixir)
	fmt.Fprintf(&sb, "My Towers: [%s]\n", towers(s.MyTowers))
	fmt.Fprintf(&sb, "Enemy Towers: [%s]\n", towers(s.EnemyTowers))
	fmt.Fprintf(&sb, "My Units: [%s]\n", units(s.MyUnits))
	fmt.Fprintf(&sb, "Enemy Units: [%s]\n", units(s.EnemyUnits))
	fmt.Fprintf(&sb, "Cards: Hand: [%s], Next: %s\n", strings.Join(hand, ", "), next)
	sb.WriteString("------------------")
	return sb.String()
}

// Rule names the decision rule that produced an action.
type Rule string

const (
	RuleDefense       Rule = "defense"
	RuleAttackSupport Rule = "attack_support"
	RuleAttackTank    Rule = "attack_tank"
	RuleAttackEconomy Rule = "attack_economy"
)

// Action is a single card play in the vision coordinate frame.
type Action struct {
	Slot   int   `json:"slot_index"`
	Target Point `json:"target"`
	Rule   Rule  `json:"rule"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s: slot %d -> %s", a.Rule, a.Slot, a.Target)
}
