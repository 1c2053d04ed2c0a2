// Package detector provides object detection for captured frames.
package detector

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// ErrNotRunning is returned by Detect when the worker is stopped or restarting.
var ErrNotRunning = errors.New("detector not running")

// Detector returns labeled boxes for an image, in image coordinates.
// Detections below confidence are dropped.
type Detector interface {
	Detect(ctx context.Context, img *image.RGBA, confidence float64) ([]types.Detection, error)
}

// Metrics is a snapshot of worker health counters.
type Metrics struct {
	Requests  uint64 `json:"requests"`
	Responses uint64 `json:"responses"`
	Failures  uint64 `json:"failures"`
	// ConsecutiveFailures resets on every successful response
	ConsecutiveFailures uint64    `json:"consecutive_failures"`
	Restarts            uint64    `json:"restarts"`
	AvgLatencyMS        float64   `json:"avg_latency_ms"`
	LastSeenAt          time.Time `json:"last_seen_at"`
	Running             bool      `json:"running"`
}
