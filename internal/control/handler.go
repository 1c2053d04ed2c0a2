// Package control implements the MQTT control plane: status queries,
// pause/resume of decision making, perception tuning and remote shutdown.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Desai0/CR-Neuro/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus      func() map[string]interface{}
	OnPause          func() error
	OnResume         func() error
	OnShutdown       func() error
	OnSetSlowCadence func(int) error
}

// Handler handles control plane commands
type Handler struct {
	cfg      config.MQTTConfig
	client   mqtt.Client
	commands chan Command

	callbacks     CommandCallbacks
	shutdownDelay time.Duration
	stopOnce      sync.Once
}

// NewHandler creates a new control plane handler
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:           cfg,
		client:        client,
		commands:      make(chan Command, 10),
		callbacks:     callbacks,
		shutdownDelay: 500 * time.Millisecond,
	}
}

// Start subscribes to the control topic and processes commands until ctx is done.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	qos := h.cfg.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes from the control topic.
func (h *Handler) Stop() error {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.Topics.Control)
			token.WaitTimeout(2 * time.Second)
		}
		slog.Info("control plane handler stopped")
	})
	return nil
}

func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(h.HandleCommand(cmd))
		}
	}
}

// HandleCommand executes cmd and returns the response to publish. For
// shutdown, the callback runs asynchronously after a short delay so the
// acknowledgement can be sent first.
func (h *Handler) HandleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	fail := func(err string) Response {
		resp.Status = "error"
		resp.Error = err
		return resp
	}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return fail("get_status not implemented")
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "pause":
		if h.callbacks.OnPause == nil {
			return fail("pause not implemented")
		}
		if err := h.callbacks.OnPause(); err != nil {
			return fail(err.Error())
		}
		resp.Status = "paused"
		resp.Data = map[string]interface{}{"decisions_active": false}

	case "resume":
		if h.callbacks.OnResume == nil {
			return fail("resume not implemented")
		}
		if err := h.callbacks.OnResume(); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"decisions_active": true}

	case "set_slow_cadence":
		if h.callbacks.OnSetSlowCadence == nil {
			return fail("set_slow_cadence not implemented")
		}
		// JSON numbers decode as float64
		raw, ok := cmd.Params["every"].(float64)
		if !ok || raw != float64(int(raw)) {
			return fail("missing or invalid 'every' parameter (expected integer)")
		}
		n := int(raw)
		if err := h.callbacks.OnSetSlowCadence(n); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"slow_cadence": n,
			"message":      "ocr cadence updated",
		}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			return fail("shutdown not implemented")
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
			"message":            "graceful shutdown in progress",
		}
		go func() {
			time.Sleep(h.shutdownDelay)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()

	default:
		return fail(fmt.Sprintf("unknown command: %s", cmd.Command))
	}

	return resp
}

// sendResponse publishes resp on the health topic.
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.Topics.Health
	qos := h.cfg.QoS["health"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
