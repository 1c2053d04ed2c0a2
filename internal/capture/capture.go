// Package capture grabs the game region of the screen.
//
// Backends implement Source and live in subpackages (screenshot, gstreamer);
// the mock source here serves tests and headless runs. Framer turns raw
// captures into sequenced, traced Frames for the store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// ErrNoFrame means the source has nothing new yet. Callers idle and retry.
var ErrNoFrame = errors.New("no frame available")

// Source captures the configured screen region.
type Source interface {
	Capture(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// Stats is a snapshot of capture counters.
type Stats struct {
	Frames   uint64 `json:"frames"`
	Empty    uint64 `json:"empty"`
	Failures uint64 `json:"failures"`
}

// Framer stamps captured images with a sequence number, a timestamp and a
// trace id. It must be driven by a single goroutine; Stats may be read from any.
type Framer struct {
	source Source
	seq    uint64

	frames   atomic.Uint64
	empty    atomic.Uint64
	failures atomic.Uint64
}

// NewFramer wraps src.
func NewFramer(src Source) *Framer {
	return &Framer{source: src}
}

// Next captures one frame. ErrNoFrame is passed through unwrapped.
func (f *Framer) Next(ctx context.Context) (types.Frame, error) {
	img, err := f.source.Capture(ctx)
	if err != nil {
		if errors.Is(err, ErrNoFrame) {
			f.empty.Add(1)
			return types.Frame{}, ErrNoFrame
		}
		f.failures.Add(1)
		return types.Frame{}, fmt.Errorf("capture failed: %w", err)
	}
	if img == nil {
		f.empty.Add(1)
		return types.Frame{}, ErrNoFrame
	}

	// Vision coordinates start at the region's top-left.
	if img.Rect.Min != (image.Point{}) {
		img.Rect = img.Rect.Sub(img.Rect.Min)
	}

	f.seq++
	f.frames.Add(1)

	return types.Frame{
		Seq:       f.seq,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		Image:     img,
	}, nil
}

// Stats returns capture counters.
func (f *Framer) Stats() Stats {
	return Stats{
		Frames:   f.frames.Load(),
		Empty:    f.empty.Load(),
		Failures: f.failures.Load(),
	}
}

// Close closes the underlying source.
func (f *Framer) Close() error {
	return f.source.Close()
}
