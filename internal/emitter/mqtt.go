// Package emitter publishes bot telemetry (fused states, dispatched actions,
// match events and health) to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/types"
)

const publishTimeout = 2 * time.Second

// StateMessage is published on the state topic.
type StateMessage struct {
	InstanceID string          `json:"instance_id"`
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Detections int             `json:"detections"`
	State      types.GameState `json:"state"`
}

// ActionMessage is published on the actions topic for every dispatch attempt.
type ActionMessage struct {
	InstanceID string        `json:"instance_id"`
	Result     action.Result `json:"result"`
	Error      string        `json:"error,omitempty"`
}

// EventMessage is published on the events topic on match transitions.
type EventMessage struct {
	InstanceID string        `json:"instance_id"`
	Event      string        `json:"event"`
	Timestamp  time.Time     `json:"timestamp"`
	Elixir     types.Reading `json:"elixir"`
}

// MQTTEmitter publishes telemetry to the broker.
type MQTTEmitter struct {
	instanceID string
	cfg        config.MQTTConfig
	client     mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter for cfg. Call Connect before publishing.
func NewMQTTEmitter(instanceID string, cfg config.MQTTConfig) *MQTTEmitter {
	return &MQTTEmitter{
		instanceID: instanceID,
		cfg:        cfg,
		published:  make(map[string]uint64),
	}
}

// NewWithClient wraps an already connected client.
func NewWithClient(instanceID string, cfg config.MQTTConfig, client mqtt.Client) *MQTTEmitter {
	e := NewMQTTEmitter(instanceID, cfg)
	e.client = client
	e.connected = client.IsConnected()
	return e
}

// Connect establishes the broker connection with auto-reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.instanceID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Client exposes the underlying client for the control plane.
func (e *MQTTEmitter) Client() mqtt.Client {
	return e.client
}

// PublishState publishes a fused state.
func (e *MQTTEmitter) PublishState(seq uint64, state types.GameState, detections int) error {
	return e.publish(e.cfg.Topics.State, "state", StateMessage{
		InstanceID: e.instanceID,
		Seq:        seq,
		Timestamp:  time.Now(),
		Detections: detections,
		State:      state,
	})
}

// PublishAction publishes a dispatch result.
func (e *MQTTEmitter) PublishAction(res action.Result) error {
	msg := ActionMessage{InstanceID: e.instanceID, Result: res}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	return e.publish(e.cfg.Topics.Actions, "actions", msg)
}

// PublishEvent publishes a match transition.
func (e *MQTTEmitter) PublishEvent(event string, state types.GameState) error {
	return e.publish(e.cfg.Topics.Events, "events", EventMessage{
		InstanceID: e.instanceID,
		Event:      event,
		Timestamp:  time.Now(),
		Elixir:     state.Elixir,
	})
}

// PublishHealth publishes a raw health payload.
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	return e.publishRaw(e.cfg.Topics.Health, "health", payload)
}

func (e *MQTTEmitter) publish(topic, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal %s message: %w", kind, err)
	}
	return e.publishRaw(topic, kind, payload)
}

func (e *MQTTEmitter) publishRaw(topic, kind string, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	qos := e.cfg.QoS[kind]
	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("mqtt message published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected && e.client != nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
