package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
)

// MockSource generates synthetic frames, or replays a fixed list of images
// in a loop when given one.
type MockSource struct {
	width     int
	height    int
	replay    []*image.RGBA
	replaying bool

	mu     sync.Mutex
	next   int
	closed bool
}

// NewMockSource creates a generator of width x height frames.
func NewMockSource(width, height int) *MockSource {
	slog.Info("mock capture source created", "width", width, "height", height)
	return &MockSource{width: width, height: height}
}

// NewReplaySource creates a source that cycles through images.
func NewReplaySource(images ...*image.RGBA) *MockSource {
	m := &MockSource{replay: images, replaying: true}
	if len(images) > 0 {
		b := images[0].Bounds()
		m.width, m.height = b.Dx(), b.Dy()
	}
	return m
}

// Capture implements Source.
func (m *MockSource) Capture(ctx context.Context) (*image.RGBA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("mock source closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := m.next
	m.next++

	if m.replaying {
		if len(m.replay) == 0 {
			return nil, ErrNoFrame
		}
		src := m.replay[n%len(m.replay)]
		out := image.NewRGBA(src.Bounds())
		draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
		return out, nil
	}

	return m.createFrame(n), nil
}

// createFrame draws a vertical band that moves one column per frame.
func (m *MockSource) createFrame(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	if m.width == 0 {
		return img
	}

	x := n % m.width
	band := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < m.height; y++ {
		img.SetRGBA(x, y, band)
	}
	return img
}

// Close implements Source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
