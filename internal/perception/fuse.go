// Package perception turns raw detections and OCR readings into a GameState.
//
// Fusion runs in two tiers. The fast tier (units, cards, status signals) is
// evaluated on every frame from detections alone. The slow tier (elixir and
// tower health, both OCR) runs only when asked; on other cycles its fields
// are carried over from the previous state.
package perception

import (
	"image"
	"log/slog"

	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/types"
	"github.com/Desai0/CR-Neuro/internal/vocab"
)

// maxElixir is the highest value the elixir counter can show.
const maxElixir = 10

// Engine fuses one frame worth of detections into a GameState.
// It holds no per-frame state; the previous state is passed in explicitly.
type Engine struct {
	table  *vocab.Table
	reader ocr.DigitReader
	cfg    config.PerceptionConfig
	logger *slog.Logger
}

// NewEngine creates a fusion engine.
func NewEngine(table *vocab.Table, reader ocr.DigitReader, cfg config.PerceptionConfig) *Engine {
	return &Engine{
		table:  table,
		reader: reader,
		cfg:    cfg,
		logger: slog.Default().With("component", "perception"),
	}
}

// Fuse builds the state for frame from its detections.
//
// prev is the state produced on the previous cycle, or nil on the first one.
// Sticky flags always come from prev. When runSlow is false, elixir and
// towers are copied from prev as well. OCR failures leave the affected field
// unknown (or drop the tower); Fuse itself never fails.
func (e *Engine) Fuse(frame types.Frame, detections []types.Detection, prev *types.GameState, runSlow bool) types.GameState {
	var state types.GameState

	if prev != nil {
		state.GameStart = prev.GameStart
		state.MatchOver = prev.MatchOver
	}

	if runSlow {
		state.Elixir = e.readElixir(frame.Image)
		state.MyTowers, state.EnemyTowers = e.readTowers(frame.Image, detections)
	} else if prev != nil {
		carried := prev.Clone()
		state.Elixir = carried.Elixir
		state.MyTowers = carried.MyTowers
		state.EnemyTowers = carried.EnemyTowers
	}

	// Status signals first: GameStart may reset elixir.
	for _, d := range detections {
		switch d.Class {
		case vocab.GameStart:
			if !state.GameStart {
				state.Elixir = types.Known(e.cfg.StartingElixir)
			}
			state.GameStart = true
			state.MatchOver = false
		case vocab.MatchOver:
			state.MatchOver = true
		}
	}

	for _, d := range detections {
		entry := e.table.Lookup(d.Class)

		switch entry.Category {
		case vocab.CategoryUnit:
			unit := types.Unit{Class: d.Class, Box: d.Box}
			if entry.Side == vocab.SideAlly {
				state.MyUnits = append(state.MyUnits, unit)
			} else {
				state.EnemyUnits = append(state.EnemyUnits, unit)
			}

		case vocab.CategoryCard:
			state.Cards = append(state.Cards, types.Card{Class: d.Class, Box: d.Box, IsNext: entry.IsNext})
		}
	}

	return state
}

// readElixir OCRs the elixir counter. Values outside [0, 10] are rejected.
func (e *Engine) readElixir(img *image.RGBA) types.Reading {
	roi := e.cfg.ElixirROI
	region, ok := cropRGBA(img, image.Rect(roi.Left, roi.Top, roi.Left+roi.Width, roi.Top+roi.Height))
	if !ok {
		return types.Unknown
	}

	prepared := binarize(upscale(region, float64(e.cfg.ElixirScale)), e.cfg.ElixirThreshold)

	text, err := e.reader.ReadDigits(prepared, ocr.SingleWord)
	if err != nil {
		e.logger.Debug("elixir ocr failed", "error", err)
		return types.Unknown
	}

	value, ok := ocr.ParseInt(text)
	if !ok || value > maxElixir {
		e.logger.Debug("elixir reading rejected", "text", text)
		return types.Unknown
	}
	return types.Known(value)
}

// readTowers pairs every HP indicator with its nearest tower and OCRs the
// health. Only towers with a successful reading are returned.
func (e *Engine) readTowers(img *image.RGBA, detections []types.Detection) (mine, enemy []types.Tower) {
	for _, d := range detections {
		hp := e.table.Lookup(d.Class)
		if hp.Category != vocab.CategoryHP || len(hp.Towers) == 0 {
			continue
		}

		tower, ok := e.nearestTower(detections, hp.Towers, d.Box)
		if !ok {
			continue
		}

		health, ok := e.readHP(img, d)
		if !ok {
			continue
		}

		t := types.Tower{Class: hp.Towers[0], Box: tower.Box, Health: types.Known(health)}
		switch e.table.Lookup(t.Class).Side {
		case vocab.SideAlly:
			mine = append(mine, t)
		case vocab.SideEnemy:
			enemy = append(enemy, t)
		}
	}
	return mine, enemy
}
