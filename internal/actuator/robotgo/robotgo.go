// Package robotgo implements actuator.Actuator with OS-level mouse events.
package robotgo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// Mouse clicks the card slot, waits, then clicks the target.
type Mouse struct {
	slots []types.Point
	pause time.Duration
}

// New creates a mouse actuator. slots are the global screen centers of the
// hand slots, indexed by slot number.
func New(slots []types.Point, pause time.Duration) *Mouse {
	cp := append([]types.Point(nil), slots...)

	sx, sy := robotgo.GetScreenSize()
	slog.Info("robotgo actuator ready",
		"screen_width", sx,
		"screen_height", sy,
		"slots", len(cp),
		"click_pause", pause,
	)

	return &Mouse{slots: cp, pause: pause}
}

// Play implements actuator.Actuator.
func (m *Mouse) Play(ctx context.Context, slot int, target types.Point) error {
	if slot < 0 || slot >= len(m.slots) {
		return fmt.Errorf("slot %d out of range [0, %d)", slot, len(m.slots))
	}
	card := m.slots[slot]

	robotgo.Move(card.X, card.Y)
	robotgo.Click()

	select {
	case <-ctx.Done():
		return fmt.Errorf("card selected but not placed: %w", ctx.Err())
	case <-time.After(m.pause):
	}

	robotgo.Move(target.X, target.Y)
	robotgo.Click()

	slog.Debug("card played",
		"slot", slot,
		"card_at", card.String(),
		"target", target.String(),
	)
	return nil
}
