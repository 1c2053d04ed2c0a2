package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Desai0/CR-Neuro/internal/detector"
)

// HealthStatus represents the health state of the bot
type HealthStatus struct {
	Status        string           `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64            `json:"uptime_seconds"`
	Paused        bool             `json:"paused"`
	GameActive    bool             `json:"game_active"`
	StateSeq      uint64           `json:"state_seq"`
	FramesDropped uint64           `json:"frames_dropped"`
	DropRate      float64          `json:"drop_rate"`
	MQTTConnected bool             `json:"mqtt_connected"`
	Detector      detector.Metrics `json:"detector"`
}

// HealthCheck returns the current health status of the bot
func (b *Bot) HealthCheck() HealthStatus {
	b.mu.RLock()
	running, started := b.isRunning, b.started
	b.mu.RUnlock()

	state, _, seq := b.store.ReadState()
	st := b.store.Stats()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(started).Seconds()),
		Paused:        b.paused.Load(),
		GameActive:    state.Active(),
		StateSeq:      seq,
		FramesDropped: st.FramesDropped,
		Detector:      b.detector.Metrics(),
	}
	if st.FramesPublished > 0 {
		status.DropRate = float64(st.FramesDropped) / float64(st.FramesPublished)
	}
	if b.mqtt != nil {
		status.MQTTConnected = b.mqtt.Stats().Connected
	}

	switch {
	case !running:
		status.Status = "unhealthy"
	case !status.Detector.Running:
		status.Status = "degraded"
	case b.mqtt != nil && !status.MQTTConnected:
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler handles /health (process liveness)
func (b *Bot) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	})
}

// ReadinessHandler handles /readiness. Degraded is still ready.
func (b *Bot) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	health := b.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics in Prometheus text format
func (b *Bot) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()

	st := b.store.Stats()
	det := b.detector.Metrics()
	instance := b.cfg.InstanceID

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	metric := func(name string, value interface{}) {
		fmt.Fprintf(w, "crneuro_%s{instance=%q} %v\n", name, instance, value)
	}
	metric("uptime_seconds", int64(time.Since(started).Seconds()))
	metric("frames_published_total", st.FramesPublished)
	metric("frames_dropped_total", st.FramesDropped)
	metric("states_published_total", st.StatesPublished)
	metric("perception_cycles_total", b.cycles.Load())
	metric("decisions_total", b.decisions.Load())
	metric("actions_dispatched_total", b.dispatched.Load())
	metric("action_errors_total", b.dispatchErrs.Load())
	metric("outputs_dropped_total", b.outputsDropped.Load())
	metric("detector_requests_total", det.Requests)
	metric("detector_failures_total", det.Failures)
	metric("detector_restarts_total", det.Restarts)
	metric("detector_avg_latency_ms", det.AvgLatencyMS)
}

// StartHealthServer starts the HTTP health server on port. It does not block.
func (b *Bot) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.LivenessHandler)
	mux.HandleFunc("/readiness", b.ReadinessHandler)
	mux.HandleFunc("/metrics", b.MetricsHandler)

	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on health port %s: %w", port, err)
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	b.mu.Lock()
	b.health = server
	b.mu.Unlock()

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()
	return nil
}
