// Package core wires capture, perception, decision and action into the
// running bot and owns its lifecycle.
//
// Two loops run while the bot is up:
//
//   - capture/decision loop (Run's goroutine): grabs a frame at capture_fps,
//     publishes it to the store, then decides and dispatches against the
//     latest fused state.
//   - perception loop: reads the latest frame, detects, fuses and publishes
//     the new state.
//
// The store is the only thing the loops share. Telemetry and journal writes
// are queued to a separate writer goroutine so neither loop waits on a
// broker or a database.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/actuator"
	"github.com/Desai0/CR-Neuro/internal/capture"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/control"
	"github.com/Desai0/CR-Neuro/internal/decision"
	"github.com/Desai0/CR-Neuro/internal/emitter"
	"github.com/Desai0/CR-Neuro/internal/journal"
	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/perception"
	"github.com/Desai0/CR-Neuro/internal/store"
	"github.com/Desai0/CR-Neuro/internal/vocab"
)

// Bot is the main service orchestrator
type Bot struct {
	cfg *config.Config

	// Core components
	table     *vocab.Table
	store     *store.Store
	framer    *capture.Framer
	detector  DetectorProcess
	reader    ocr.DigitReader
	actuator  actuator.Actuator
	perceiver *perception.Perceiver
	decider   *decision.Engine
	adapter   *action.Adapter

	// Optional outputs
	mqtt           *emitter.MQTTEmitter
	telemetry      Telemetry
	journal        Journal
	controlHandler *control.Handler
	health         *http.Server

	// Counters
	cycles       atomic.Uint64
	decisions    atomic.Uint64
	dispatched   atomic.Uint64
	dispatchErrs atomic.Uint64
	paused       atomic.Bool

	outbox         chan output
	outputsDropped atomic.Uint64

	watchdogInterval time.Duration
	statsInterval    time.Duration

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	loops     sync.WaitGroup // perception loop
	side      sync.WaitGroup // watchdog, stats logger, output writer
	isRunning bool
	runDone   chan struct{}
	cancelCtx context.CancelFunc
}

// New builds a bot from a validated config and its adapters.
func New(cfg *config.Config, comps Components) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if comps.Capture == nil || comps.Detector == nil || comps.OCR == nil || comps.Actuator == nil {
		return nil, errors.New("capture, detector, ocr and actuator components are required")
	}

	table, err := vocab.NewTable(cfg.Vocab)
	if err != nil {
		return nil, fmt.Errorf("failed to build label table: %w", err)
	}

	st := store.New()
	engine := perception.NewEngine(table, comps.OCR, cfg.Perception)
	geometry := action.Geometry{Region: cfg.Capture.Region, Area: cfg.Action.PlayableArea}

	b := &Bot{
		cfg:              cfg,
		table:            table,
		store:            st,
		framer:           capture.NewFramer(comps.Capture),
		detector:         comps.Detector,
		reader:           comps.OCR,
		actuator:         comps.Actuator,
		perceiver:        perception.NewPerceiver(comps.Detector, engine, cfg.Detector.Confidence, cfg.Perception.SlowCadence),
		decider:          decision.NewEngine(cfg.Decision, table),
		adapter:          action.NewAdapter(comps.Actuator, action.NewThrottle(st, cfg.Action.Cooldown()), geometry),
		telemetry:        comps.Telemetry,
		journal:          comps.Journal,
		outbox:           make(chan output, outboxSize),
		watchdogInterval: 5 * time.Second,
		statsInterval:    time.Duration(cfg.Loop.StatsLogS) * time.Second,
	}

	if b.telemetry == nil && cfg.MQTT.Broker != "" {
		b.mqtt = emitter.NewMQTTEmitter(cfg.InstanceID, cfg.MQTT)
		b.telemetry = b.mqtt
	}

	if b.journal == nil && cfg.Journal.Driver != "" {
		j, err := journal.Open(context.Background(), cfg.InstanceID, cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		b.journal = j
	}

	slog.Info("bot configured",
		"instance_id", cfg.InstanceID,
		"region", cfg.Capture.Region,
		"detector", comps.Detector.ID(),
		"labels", len(table.Labels()),
		"mqtt", cfg.MQTT.Broker != "",
		"journal", cfg.Journal.Driver,
	)
	return b, nil
}

// Run starts the bot and blocks in the capture/decision loop until ctx is
// cancelled or a shutdown command arrives.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("bot is already running")
	}
	b.isRunning = true
	b.started = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	b.cancelCtx = cancel
	runDone := make(chan struct{})
	b.runDone = runDone
	b.mu.Unlock()

	defer close(runDone)
	defer cancel()

	slog.Info("bot starting", "instance_id", b.cfg.InstanceID)

	if err := b.detector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start detector: %w", err)
	}

	if b.mqtt != nil {
		if err := b.mqtt.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}
		b.controlHandler = control.NewHandler(b.cfg.MQTT, b.mqtt.Client(), control.CommandCallbacks{
			OnGetStatus:      b.Status,
			OnPause:          b.Pause,
			OnResume:         b.Resume,
			OnShutdown:       b.shutdownViaControl,
			OnSetSlowCadence: b.perceiver.SetSlowCadence,
		})
		if err := b.controlHandler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	}

	b.loops.Add(1)
	go func() {
		defer b.loops.Done()
		b.perceptionLoop(ctx)
	}()

	b.side.Add(3)
	go func() {
		defer b.side.Done()
		b.writeOutputs(ctx)
	}()
	go func() {
		defer b.side.Done()
		b.watchDetector(ctx)
	}()
	go func() {
		defer b.side.Done()
		b.logStats(ctx, b.statsInterval)
	}()

	slog.Info("bot running",
		"capture_fps", b.cfg.Loop.CaptureFPS,
		"slow_cadence", b.perceiver.SlowCadence(),
		"cooldown", b.cfg.Action.Cooldown(),
	)

	b.captureDecisionLoop(ctx)

	slog.Info("bot run loop exiting")
	return nil
}

// captureDecisionLoop captures at capture_fps and acts on the latest state.
func (b *Bot) captureDecisionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(b.cfg.Loop.CaptureFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := b.framer.Next(ctx)
		switch {
		case err == nil:
			b.store.PublishFrame(frame)
		case errors.Is(err, capture.ErrNoFrame), ctx.Err() != nil:
		default:
			slog.Warn("capture failed", "error", err)
		}

		b.step(ctx)
	}
}

// step runs one decision against the latest fused state.
func (b *Bot) step(ctx context.Context) {
	state, _, seq := b.store.ReadState()
	if seq == 0 || !state.Active() || b.paused.Load() {
		return
	}
	if !b.adapter.Throttle().Allow() {
		return
	}

	act, ok := b.decider.Decide(state)
	if !ok {
		return
	}
	b.decisions.Add(1)

	slog.Debug("decision made", "state_seq", seq, "action", act.String())

	res := b.adapter.Dispatch(ctx, act)
	if errors.Is(res.Err, action.ErrThrottled) {
		return
	}
	if res.Dispatched {
		b.dispatched.Add(1)
	} else {
		b.dispatchErrs.Add(1)
	}
	b.enqueue(output{kind: outputAction, result: res})
}

// perceptionLoop fuses every new frame into a state.
func (b *Bot) perceptionLoop(ctx context.Context) {
	idle := b.cfg.Loop.IdlePause()
	var lastSeq uint64

	for {
		if ctx.Err() != nil {
			return
		}

		frame, ok := b.store.ReadFrame()
		if !ok || frame.Seq == lastSeq {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
			continue
		}
		lastSeq = frame.Seq

		res := b.perceiver.Perceive(ctx, frame)
		seq := b.store.PublishState(res.State, res.Detections)
		b.cycles.Add(1)

		if res.Slow {
			slog.Debug("state fused",
				"frame_seq", frame.Seq,
				"trace_id", frame.TraceID,
				"state_seq", seq,
				"detections", len(res.Detections),
				"elixir", res.State.Elixir.String(),
			)
		}

		every := uint64(max(b.cfg.MQTT.StatePublishEvery, 1))
		publishState := b.telemetry != nil && seq%every == 0
		if len(res.Events) == 0 && !publishState {
			continue
		}

		state := res.State.Clone()
		for _, ev := range res.Events {
			b.enqueue(output{kind: outputEvent, event: string(ev), state: state})
		}
		if publishState {
			b.enqueue(output{kind: outputState, seq: seq, state: state, detections: len(res.Detections)})
		}
	}
}

// Shutdown stops the loops and tears down every adapter.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return nil
	}
	cancel, runDone, health := b.cancelCtx, b.runDone, b.health
	b.mu.Unlock()

	slog.Info("shutting down bot")
	cancel()

	// 1. Join the loops
	joined := make(chan struct{})
	go func() {
		<-runDone
		b.loops.Wait()
		b.side.Wait()
		close(joined)
	}()

	var errs []error
	select {
	case <-joined:
		slog.Info("all loops finished")
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("timed out waiting for loops: %w", ctx.Err()))
	}

	// 2. Stop inputs, then outputs
	if b.controlHandler != nil {
		if err := b.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}
	if err := b.framer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}
	if err := b.detector.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	for name, c := range map[string]any{"ocr": b.reader, "actuator": b.actuator} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	if b.mqtt != nil {
		if err := b.mqtt.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}
	if b.journal != nil {
		if err := b.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	if health != nil {
		if err := health.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}

	b.mu.Lock()
	uptime := time.Since(b.started)
	b.isRunning = false
	b.mu.Unlock()

	stats := b.store.Stats()
	slog.Info("bot shutdown complete",
		"uptime", uptime,
		"cycles", b.cycles.Load(),
		"dispatched", b.dispatched.Load(),
		"frames_dropped", stats.FramesDropped,
		"outputs_dropped", b.outputsDropped.Load(),
	)

	return errors.Join(errs...)
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (b *Bot) ShutdownTimeout() time.Duration {
	return b.cfg.ShutdownTimeout()
}
