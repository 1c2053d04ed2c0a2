package types

import (
	"image"
	"time"
)

// Frame is one capture of the game region.
type Frame struct {
	// Seq is the monotonic capture sequence number
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// TraceID follows the frame through perception and decision logs
	TraceID string
	// Image holds the pixels in the vision coordinate frame (origin = capture region top-left)
	Image *image.RGBA
}

// Clone returns a deep copy of the frame, pixel buffer included.
func (f Frame) Clone() Frame {
	out := f
	if f.Image != nil {
		img := &image.RGBA{
			Pix:    make([]byte, len(f.Image.Pix)),
			Stride: f.Image.Stride,
			Rect:   f.Image.Rect,
		}
		copy(img.Pix, f.Image.Pix)
		out.Image = img
	}
	return out
}

// Width of the frame in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height of the frame in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}
