// Package actuator plays cards by clicking on screen.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// Actuator plays the card in hand slot at target (global screen coordinates):
// one click on the slot, a short pause, one click on the target.
type Actuator interface {
	Play(ctx context.Context, slot int, target types.Point) error
}

// Play is one recorded call.
type Play struct {
	Slot   int
	Target types.Point
}

// Recorder is an Actuator that only remembers what it was asked to do.
// It backs the dry_run action backend and the tests.
type Recorder struct {
	mu    sync.Mutex
	plays []Play

	// Fail, when set, is returned by every Play call (the call is still recorded).
	Fail error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Play implements Actuator.
func (r *Recorder) Play(ctx context.Context, slot int, target types.Point) error {
	r.mu.Lock()
	r.plays = append(r.plays, Play{Slot: slot, Target: target})
	fail := r.Fail
	r.mu.Unlock()

	slog.Info("dry run: card not played", "slot", slot, "target", target.String())

	if fail != nil {
		return fmt.Errorf("recorder: %w", fail)
	}
	return nil
}

// Plays returns a copy of the recorded calls.
func (r *Recorder) Plays() []Play {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Play, len(r.plays))
	copy(out, r.plays)
	return out
}
