// Package action turns decisions into clicks: it throttles, converts vision
// coordinates to screen coordinates, clamps them into the arena and hands them
// to an actuator.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Desai0/CR-Neuro/internal/actuator"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// SlotCount is the number of cards in hand.
const SlotCount = 4

var (
	// ErrInvalidSlot rejects an action before any click is made.
	ErrInvalidSlot = errors.New("invalid card slot")
	// ErrThrottled means the cooldown has not elapsed yet.
	ErrThrottled = errors.New("action throttled")
	// ErrActuator wraps any failure (or panic) of the click backend.
	ErrActuator = errors.New("actuator failed")
)

// Geometry maps vision coordinates to the screen.
type Geometry struct {
	// Region is the captured area; its top-left is the vision origin.
	Region types.Rect
	// Area bounds the arena where cards can be placed, in screen coordinates.
	Area types.Bounds
}

// ToGlobal converts a point from vision to screen coordinates.
func (g Geometry) ToGlobal(p types.Point) types.Point {
	return types.Point{X: p.X + g.Region.Left, Y: p.Y + g.Region.Top}
}

// Clamp moves p to the nearest point inside the arena.
func (g Geometry) Clamp(p types.Point) types.Point {
	return g.Area.Clamp(p)
}

// IsWithinPlayableArea reports whether p is inside the arena, edges included.
func (g Geometry) IsWithinPlayableArea(p types.Point) bool {
	return g.Area.Contains(p)
}

// Result describes one dispatch attempt.
type Result struct {
	Action     types.Action `json:"action"`
	Global     types.Point  `json:"global"`  // Target in screen coordinates, before clamping
	Clamped    types.Point  `json:"clamped"` // Where the card was actually played
	Dispatched bool         `json:"dispatched"`
	Err        error        `json:"-"`
	At         time.Time    `json:"at"`
}

// Adapter dispatches actions to an actuator.
type Adapter struct {
	actuator actuator.Actuator
	throttle *Throttle
	geometry Geometry
	logger   *slog.Logger
}

// NewAdapter creates an adapter.
func NewAdapter(act actuator.Actuator, throttle *Throttle, geometry Geometry) *Adapter {
	return &Adapter{
		actuator: act,
		throttle: throttle,
		geometry: geometry,
		logger:   slog.Default().With("component", "action"),
	}
}

// Throttle returns the adapter's throttle.
func (a *Adapter) Throttle() *Throttle {
	return a.throttle
}

// Dispatch plays act. It never panics and never returns a fatal error: the
// outcome, including any failure, is reported in the Result. The throttle is
// stamped only when the actuator succeeded.
func (a *Adapter) Dispatch(ctx context.Context, act types.Action) Result {
	res := Result{Action: act, At: time.Now()}

	if act.Slot < 0 || act.Slot >= SlotCount {
		res.Err = fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSlot, act.Slot, SlotCount)
		a.logger.Error("action rejected", "action", act.String(), "error", res.Err)
		return res
	}
	if !a.throttle.Allow() {
		res.Err = ErrThrottled
		return res
	}

	res.Global = a.geometry.ToGlobal(act.Target)
	res.Clamped = a.geometry.Clamp(res.Global)
	if res.Clamped != res.Global {
		a.logger.Info("target clamped to playable area",
			"from", res.Global.String(),
			"to", res.Clamped.String(),
		)
	}

	if err := a.play(ctx, act.Slot, res.Clamped); err != nil {
		res.Err = err
		a.logger.Error("failed to play card",
			"slot", act.Slot,
			"target", res.Clamped.String(),
			"rule", act.Rule,
			"error", err,
		)
		return res
	}

	a.throttle.Stamp()
	res.Dispatched = true

	a.logger.Info("card played",
		"slot", act.Slot,
		"target", res.Clamped.String(),
		"rule", act.Rule,
	)
	return res
}

// play calls the actuator, converting errors and panics into ErrActuator.
func (a *Adapter) play(ctx context.Context, slot int, target types.Point) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrActuator, r)
		}
	}()

	if err := a.actuator.Play(ctx, slot, target); err != nil {
		return fmt.Errorf("%w: %w", ErrActuator, err)
	}
	return nil
}
