package core

import (
	"context"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/actuator"
	"github.com/Desai0/CR-Neuro/internal/capture"
	"github.com/Desai0/CR-Neuro/internal/detector"
	"github.com/Desai0/CR-Neuro/internal/journal"
	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// DetectorProcess is a detector with a supervised lifecycle.
type DetectorProcess interface {
	detector.Detector
	ID() string
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Metrics() detector.Metrics
}

// Telemetry receives bot output for external consumers.
type Telemetry interface {
	PublishState(seq uint64, state types.GameState, detections int) error
	PublishAction(res action.Result) error
	PublishEvent(event string, state types.GameState) error
}

// HealthPublisher is implemented by telemetry that also carries periodic
// health reports.
type HealthPublisher interface {
	PublishHealth(payload []byte) error
}

// Journal persists dispatched actions and match events.
type Journal interface {
	RecordAction(ctx context.Context, res action.Result) error
	RecordEvent(ctx context.Context, event string, state types.GameState) error
	Close() error
}

// JournalReader is implemented by journals that can report recent history.
// get_status includes it when available.
type JournalReader interface {
	RecentActions(ctx context.Context, limit int) ([]journal.ActionRecord, error)
	RecentEvents(ctx context.Context, limit int) ([]journal.EventRecord, error)
}

// Components are the process- and hardware-bound adapters the bot drives.
// Capture, Detector, OCR and Actuator are required. Telemetry and Journal
// are optional; when nil they are built from the mqtt and journal config
// sections (or left disabled when those are empty).
type Components struct {
	Capture   capture.Source
	Detector  DetectorProcess
	OCR       ocr.DigitReader
	Actuator  actuator.Actuator
	Telemetry Telemetry
	Journal   Journal
}
