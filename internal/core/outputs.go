package core

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// outboxSize bounds the queue between the loops and the output writer.
const outboxSize = 256

type outputKind int

const (
	outputAction outputKind = iota
	outputEvent
	outputState
	outputHealth
)

func (k outputKind) String() string {
	switch k {
	case outputAction:
		return "action"
	case outputEvent:
		return "event"
	case outputState:
		return "state"
	case outputHealth:
		return "health"
	default:
		return "unknown"
	}
}

// output is one record for telemetry and/or the journal.
type output struct {
	kind       outputKind
	result     action.Result
	event      string
	seq        uint64
	state      types.GameState
	detections int
	payload    []byte
}

// enqueue hands o to the output writer. It never blocks: when the queue is
// full the record is dropped and counted.
func (b *Bot) enqueue(o output) {
	select {
	case b.outbox <- o:
	default:
		dropped := b.outputsDropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			slog.Warn("output queue full, dropping record",
				"kind", o.kind.String(),
				"queue_size", cap(b.outbox),
				"total_dropped", dropped,
			)
		}
	}
}

// writeOutputs drains the queue into telemetry and the journal until ctx is
// done, then flushes what is already queued.
func (b *Bot) writeOutputs(ctx context.Context) {
	for {
		select {
		case o := <-b.outbox:
			b.write(ctx, o)
		case <-ctx.Done():
			flush := context.WithoutCancel(ctx)
			for {
				select {
				case o := <-b.outbox:
					b.write(flush, o)
				default:
					return
				}
			}
		}
	}
}

func (b *Bot) write(ctx context.Context, o output) {
	switch o.kind {
	case outputAction:
		if b.telemetry != nil {
			if err := b.telemetry.PublishAction(o.result); err != nil {
				slog.Debug("action not published", "error", err)
			}
		}
		if b.journal != nil {
			if err := b.journal.RecordAction(ctx, o.result); err != nil {
				slog.Warn("action not journaled", "error", err)
			}
		}

	case outputEvent:
		if b.telemetry != nil {
			if err := b.telemetry.PublishEvent(o.event, o.state); err != nil {
				slog.Debug("event not published", "event", o.event, "error", err)
			}
		}
		if b.journal != nil {
			if err := b.journal.RecordEvent(ctx, o.event, o.state); err != nil {
				slog.Warn("event not journaled", "event", o.event, "error", err)
			}
		}

	case outputState:
		if b.telemetry != nil {
			if err := b.telemetry.PublishState(o.seq, o.state, o.detections); err != nil {
				slog.Debug("state not published", "error", err)
			}
		}

	case outputHealth:
		if hp, ok := b.telemetry.(HealthPublisher); ok {
			if err := hp.PublishHealth(o.payload); err != nil {
				slog.Debug("health not published", "error", err)
			}
		}
	}
}

// publishHealth queues the current health report for telemetry.
func (b *Bot) publishHealth() {
	if _, ok := b.telemetry.(HealthPublisher); !ok {
		return
	}
	payload, err := json.Marshal(b.HealthCheck())
	if err != nil {
		slog.Error("failed to marshal health report", "error", err)
		return
	}
	b.enqueue(output{kind: outputHealth, payload: payload})
}
