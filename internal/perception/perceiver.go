package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Desai0/CR-Neuro/internal/detector"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// Event is a match lifecycle transition observed while fusing.
type Event string

const (
	EventGameStart Event = "game_start"
	EventMatchOver Event = "match_over"
)

// Result is the output of one perception cycle.
type Result struct {
	Cycle      uint64
	Slow       bool
	State      types.GameState
	Detections []types.Detection
	Events     []Event
}

// Perceiver runs detection and fusion for the perception loop. It owns the
// previous state and the slow-tier cadence counter, so it must be driven by a
// single goroutine. SetSlowCadence may be called from any goroutine.
type Perceiver struct {
	detector   detector.Detector
	engine     *Engine
	confidence float64
	cadence    atomic.Int64

	cycle  uint64
	prev   *types.GameState
	logger *slog.Logger
}

// NewPerceiver creates a perceiver. slowCadence must be >= 1.
func NewPerceiver(det detector.Detector, engine *Engine, confidence float64, slowCadence int) *Perceiver {
	p := &Perceiver{
		detector:   det,
		engine:     engine,
		confidence: confidence,
		logger:     slog.Default().With("component", "perceiver"),
	}
	p.cadence.Store(int64(max(slowCadence, 1)))
	return p
}

// SetSlowCadence changes how often (every nth cycle) the OCR tier runs.
func (p *Perceiver) SetSlowCadence(n int) error {
	if n < 1 {
		return fmt.Errorf("slow cadence must be >= 1, got %d", n)
	}
	old := p.cadence.Swap(int64(n))
	p.logger.Info("slow cadence changed", "old", old, "new", n)
	return nil
}

// SlowCadence returns the current cadence.
func (p *Perceiver) SlowCadence() int {
	return int(p.cadence.Load())
}

// Perceive detects objects in frame and fuses them with the previous state.
//
// A detector failure is logged and treated as an empty detection list: the
// cycle still produces a state with sticky flags and carried fields intact.
func (p *Perceiver) Perceive(ctx context.Context, frame types.Frame) Result {
	cycle := p.cycle
	p.cycle++
	slow := cycle%uint64(p.cadence.Load()) == 0

	detections, err := p.detector.Detect(ctx, frame.Image, p.confidence)
	if err != nil {
		p.logger.Warn("detection failed, fusing empty detection list",
			"frame_seq", frame.Seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
		detections = nil
	}

	state := p.engine.Fuse(frame, detections, p.prev, slow)
	events := p.transitions(state)

	for _, ev := range events {
		switch ev {
		case EventGameStart:
			p.logger.Info("game start detected, bot is now active",
				"frame_seq", frame.Seq, "trace_id", frame.TraceID, "elixir", state.Elixir.String())
		case EventMatchOver:
			p.logger.Info("match over detected, bot deactivated",
				"frame_seq", frame.Seq, "trace_id", frame.TraceID)
		}
	}

	carried := state.Clone()
	p.prev = &carried

	return Result{
		Cycle:      cycle,
		Slow:       slow,
		State:      state,
		Detections: detections,
		Events:     events,
	}
}

func (p *Perceiver) transitions(state types.GameState) []Event {
	var prevStart, prevOver bool
	if p.prev != nil {
		prevStart, prevOver = p.prev.GameStart, p.prev.MatchOver
	}

	var events []Event
	if state.GameStart && (!prevStart || (prevOver && !state.MatchOver)) {
		events = append(events, EventGameStart)
	}
	if state.MatchOver && !prevOver {
		events = append(events, EventMatchOver)
	}
	return events
}
