// Package decision picks at most one action per cycle from a GameState using
// a fixed priority list of rules. The first rule that fires wins.
//
//  1. defense:        an enemy unit is near one of our towers
//  2. attack_support: our most advanced unit has crossed the bridge
//  3. attack_tank / attack_economy: enough elixir to start a push
package decision

import (
	"slices"

	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/types"
	"github.com/Desai0/CR-Neuro/internal/vocab"
)

// Engine is stateless; Decide is safe for concurrent use.
type Engine struct {
	cfg   config.DecisionConfig
	table *vocab.Table
}

// NewEngine creates a rule engine.
func NewEngine(cfg config.DecisionConfig, table *vocab.Table) *Engine {
	return &Engine{cfg: cfg, table: table}
}

// Decide returns the action to take for state, or ok=false when no rule fires.
// Targets are in vision coordinates.
func (e *Engine) Decide(state types.GameState) (action types.Action, ok bool) {
	if a, ok := e.defend(state); ok {
		return a, true
	}
	if a, ok := e.support(state); ok {
		return a, true
	}
	if a, ok := e.attack(state); ok {
		return a, true
	}
	return types.Action{}, false
}

// defend plays the defense slot on the first enemy unit within the defense
// radius of any of our towers.
func (e *Engine) defend(state types.GameState) (types.Action, bool) {
	if len(state.Cards) == 0 {
		return types.Action{}, false
	}

	for _, enemy := range state.EnemyUnits {
		center := enemy.Box.Center()
		for _, tower := range state.MyTowers {
			if center.Distance(tower.Box.Center()) < e.cfg.DefenseRadius {
				return types.Action{
					Slot:   e.cfg.DefenseSlot,
					Target: center.Trunc(),
					Rule:   types.RuleDefense,
				}, true
			}
		}
	}
	return types.Action{}, false
}

// support reinforces our front unit once it is past the bridge.
func (e *Engine) support(state types.GameState) (types.Action, bool) {
	if len(state.MyUnits) == 0 || !state.Elixir.AtLeast(e.cfg.MinSupportElixir) {
		return types.Action{}, false
	}

	// Front unit: greatest center y; the first one wins ties.
	front := state.MyUnits[0].Box.Center()
	for _, u := range state.MyUnits[1:] {
		if c := u.Box.Center(); c.Y > front.Y {
			front = c
		}
	}

	if front.Y <= e.cfg.BridgeY || len(state.Cards) == 0 {
		return types.Action{}, false
	}

	target := front.Trunc()
	target.Y += e.cfg.SupportOffsetY
	return types.Action{Slot: e.cfg.SupportSlot, Target: target, Rule: types.RuleAttackSupport}, true
}

// attack starts a push: a tank at the safe staging point if the hand has one,
// otherwise the economy slot at the bridge.
func (e *Engine) attack(state types.GameState) (types.Action, bool) {
	if !state.Elixir.AtLeast(e.cfg.MinAttackElixir) || len(state.Cards) == 0 {
		return types.Action{}, false
	}

	for i, card := range state.Cards {
		if card.IsNext {
			continue
		}
		if slices.Contains(e.cfg.TankUnits, e.table.CardUnit(card.Class)) {
			return types.Action{Slot: i, Target: e.cfg.SafePlay, Rule: types.RuleAttackTank}, true
		}
	}

	return types.Action{Slot: e.cfg.EconomySlot, Target: e.cfg.BridgeAttack, Rule: types.RuleAttackEconomy}, true
}
