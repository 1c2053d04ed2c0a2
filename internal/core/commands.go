package core

import (
	"context"
	"log/slog"
	"time"
)

// statusHistory is how many journal rows get_status reports.
const statusHistory = 10

// Status returns the current bot status
func (b *Bot) Status() map[string]interface{} {
	b.mu.RLock()
	running, started := b.isRunning, b.started
	b.mu.RUnlock()

	state, detections, seq := b.store.ReadState()
	storeStats := b.store.Stats()
	captureStats := b.framer.Stats()
	det := b.detector.Metrics()

	status := map[string]interface{}{
		"instance_id": b.cfg.InstanceID,
		"uptime_s":    time.Since(started).Seconds(),
		"running":     running,
		"paused":      b.paused.Load(),
		"game": map[string]interface{}{
			"state_seq":  seq,
			"game_start": state.GameStart,
			"match_over": state.MatchOver,
			"elixir":     state.Elixir.String(),
			"detections": len(detections),
		},
		"loops": map[string]interface{}{
			"cycles":          b.cycles.Load(),
			"decisions":       b.decisions.Load(),
			"dispatched":      b.dispatched.Load(),
			"dispatch_errors": b.dispatchErrs.Load(),
			"slow_cadence":    b.perceiver.SlowCadence(),
		},
		"capture": map[string]interface{}{
			"frames":         captureStats.Frames,
			"failures":       captureStats.Failures,
			"frames_dropped": storeStats.FramesDropped,
			"frames_read":    storeStats.FramesRead,
			"backend":        b.cfg.Capture.Backend,
		},
		"detector": map[string]interface{}{
			"id":                   b.detector.ID(),
			"running":              det.Running,
			"requests":             det.Requests,
			"failures":             det.Failures,
			"consecutive_failures": det.ConsecutiveFailures,
			"restarts":             det.Restarts,
			"avg_latency_ms":       det.AvgLatencyMS,
		},
	}
	status["outputs"] = map[string]interface{}{
		"queued":  len(b.outbox),
		"dropped": b.outputsDropped.Load(),
	}
	if b.mqtt != nil {
		status["mqtt"] = b.mqtt.Stats()
	}
	if history := b.journalHistory(); history != nil {
		status["journal"] = history
	}
	return status
}

// journalHistory returns the latest journaled actions and events, or nil when
// the journal cannot be read.
func (b *Bot) journalHistory() map[string]interface{} {
	reader, ok := b.journal.(JournalReader)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	actions, err := reader.RecentActions(ctx, statusHistory)
	if err != nil {
		slog.Warn("failed to read journal actions", "error", err)
		return nil
	}
	events, err := reader.RecentEvents(ctx, statusHistory)
	if err != nil {
		slog.Warn("failed to read journal events", "error", err)
		return nil
	}
	return map[string]interface{}{
		"recent_actions": actions,
		"recent_events":  events,
	}
}

// Pause stops decision making. Capture and perception keep running so the
// fused state stays current.
func (b *Bot) Pause() error {
	if !b.paused.Swap(true) {
		slog.Info("bot paused, decisions suspended")
	}
	return nil
}

// Resume re-enables decision making.
func (b *Bot) Resume() error {
	if b.paused.Swap(false) {
		slog.Info("bot resumed, decisions active")
	}
	return nil
}

// shutdownViaControl ends Run; the caller of Run then performs Shutdown.
func (b *Bot) shutdownViaControl() error {
	b.mu.RLock()
	cancel := b.cancelCtx
	b.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
