package core

import (
	"context"
	"log/slog"
	"time"
)

// maxConsecutiveFailures is how many detection failures in a row the
// watchdog tolerates before restarting the worker.
const maxConsecutiveFailures = 3

// watchDetector restarts the detector when its process died or it keeps failing.
func (b *Bot) watchDetector(ctx context.Context) {
	ticker := time.NewTicker(b.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m := b.detector.Metrics()
		if m.Running && m.ConsecutiveFailures < maxConsecutiveFailures {
			continue
		}

		slog.Warn("detector unhealthy, attempting restart",
			"worker_id", b.detector.ID(),
			"running", m.Running,
			"consecutive_failures", m.ConsecutiveFailures,
			"last_seen_ago_s", int(time.Since(m.LastSeenAt).Seconds()),
		)

		if err := b.detector.Restart(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to restart detector",
				"worker_id", b.detector.ID(),
				"error", err,
				"action", "will retry on next watchdog tick")
			continue
		}
		slog.Info("detector restarted successfully", "worker_id", b.detector.ID())
	}
}

// logStats periodically reports loop and detector counters and publishes a
// health report.
func (b *Bot) logStats(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var lastPublished, lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := b.store.Stats()
		det := b.detector.Metrics()

		published := st.FramesPublished - lastPublished
		dropped := st.FramesDropped - lastDropped
		lastPublished, lastDropped = st.FramesPublished, st.FramesDropped

		var dropRate float64
		if published > 0 {
			dropRate = float64(dropped) / float64(published)
		}

		slog.Debug("bot stats",
			"frames_published", st.FramesPublished,
			"frames_dropped", st.FramesDropped,
			"states_published", st.StatesPublished,
			"cycles", b.cycles.Load(),
			"dispatched", b.dispatched.Load(),
			"detector_avg_latency_ms", det.AvgLatencyMS,
			"detector_failures", det.Failures,
			"outputs_dropped", b.outputsDropped.Load(),
		)

		b.publishHealth()

		if dropRate > 0.9 {
			slog.Warn("perception falling behind capture",
				"drop_rate", dropRate,
				"window", every,
				"detector_avg_latency_ms", det.AvgLatencyMS,
			)
		}
	}
}
