// Package screenshot captures the game region with direct X11/GDI grabs.
package screenshot

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/vova616/screenshot"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// Source grabs the region on every Capture call.
type Source struct {
	rect image.Rectangle
}

// New returns a source for region (global screen coordinates).
func New(region types.Rect) (*Source, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("screenshot: invalid region %+v", region)
	}
	rect := image.Rect(region.Left, region.Top, region.Left+region.Width, region.Top+region.Height)
	slog.Info("screenshot capture source ready", "rect", rect)
	return &Source{rect: rect}, nil
}

// Capture implements capture.Source.
func (s *Source) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(s.rect)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return img, nil
}

// Close implements capture.Source.
func (s *Source) Close() error { return nil }
