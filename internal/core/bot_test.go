package core_test

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/actuator"
	"github.com/Desai0/CR-Neuro/internal/capture"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/core"
	"github.com/Desai0/CR-Neuro/internal/detector"
	"github.com/Desai0/CR-Neuro/internal/journal"
	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/types"
	"github.com/Desai0/CR-Neuro/internal/vocab"
)

// fakeDetector sees the same scene in every frame.
type fakeDetector struct {
	mu         sync.Mutex
	detections []types.Detection

	running  atomic.Bool
	failing  atomic.Bool
	starts   atomic.Int32
	restarts atomic.Int32
}

func (d *fakeDetector) Detect(ctx context.Context, img *image.RGBA, confidence float64) ([]types.Detection, error) {
	if d.failing.Load() {
		return nil, detector.ErrNotRunning
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return types.CloneDetections(d.detections), nil
}

func (d *fakeDetector) ID() string { return "fake-detector" }

func (d *fakeDetector) Start(ctx context.Context) error {
	d.starts.Add(1)
	d.running.Store(true)
	return nil
}

func (d *fakeDetector) Stop() error {
	d.running.Store(false)
	return nil
}

func (d *fakeDetector) Restart(ctx context.Context) error {
	d.restarts.Add(1)
	d.running.Store(true)
	return nil
}

func (d *fakeDetector) Metrics() detector.Metrics {
	return detector.Metrics{Running: d.running.Load()}
}

// digits answers every OCR call with a fixed value.
type digits struct{}

func (digits) ReadDigits(img image.Image, mode ocr.Mode) (string, error) {
	if mode == ocr.SingleWord {
		return "5", nil
	}
	return "2500", nil
}

type recordedEvent struct {
	event  string
	source string
}

// sink is both the Telemetry and the Journal of a test bot.
type sink struct {
	mu      sync.Mutex
	events  []recordedEvent
	actions []action.Result
	states  int
	health  [][]byte
	closed  bool
}

func (s *sink) PublishState(seq uint64, state types.GameState, n int) error {
	s.mu.Lock()
	s.states++
	s.mu.Unlock()
	return nil
}

func (s *sink) PublishAction(res action.Result) error {
	s.mu.Lock()
	s.actions = append(s.actions, res)
	s.mu.Unlock()
	return nil
}

func (s *sink) PublishEvent(event string, state types.GameState) error {
	s.mu.Lock()
	s.events = append(s.events, recordedEvent{event: event, source: "mqtt"})
	s.mu.Unlock()
	return nil
}

func (s *sink) PublishHealth(payload []byte) error {
	s.mu.Lock()
	s.health = append(s.health, payload)
	s.mu.Unlock()
	return nil
}

func (s *sink) healthReports() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.health...)
}

func (s *sink) RecordAction(ctx context.Context, res action.Result) error { return nil }

func (s *sink) RecordEvent(ctx context.Context, event string, state types.GameState) error {
	s.mu.Lock()
	s.events = append(s.events, recordedEvent{event: event, source: "journal"})
	s.mu.Unlock()
	return nil
}

func (s *sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *sink) snapshot() ([]recordedEvent, []action.Result, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedEvent(nil), s.events...), append([]action.Result(nil), s.actions...), s.states, s.closed
}

// defenseScene: the match has started, a Giant is 100px from our king tower
// and a Minion card is in hand.
func defenseScene() []types.Detection {
	return []types.Detection{
		{Class: vocab.GameStart, Confidence: 0.9, Box: types.Box{X1: 300, Y1: 600, X2: 460, Y2: 700}},
		{Class: "MyKingTower", Confidence: 0.9, Box: types.Box{X1: 380, Y1: 980, X2: 420, Y2: 1020}},
		{Class: "MyKingHP", Confidence: 0.9, Box: types.Box{X1: 330, Y1: 950, X2: 470, Y2: 990}},
		{Class: "Giant", Confidence: 0.9, Box: types.Box{X1: 451, Y1: 911, X2: 470, Y2: 930}},
		{Class: "MyMinionDeck", Confidence: 0.9, Box: types.Box{X1: 200, Y1: 1250, X2: 300, Y2: 1340}},
	}
}

type harness struct {
	bot      *core.Bot
	detector *fakeDetector
	recorder *actuator.Recorder
	sink     *sink
	cancel   context.CancelFunc
	runErr   chan error
}

// slowSink takes longer to publish an action than a whole capture window.
type slowSink struct {
	*sink
	delay time.Duration
}

func (s *slowSink) PublishAction(res action.Result) error {
	time.Sleep(s.delay)
	return s.sink.PublishAction(res)
}

func newHarness(t *testing.T, scene []types.Detection, opts ...func(*core.Components)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Capture.Backend = "mock"
	cfg.Action.Backend = "dry_run"
	cfg.Loop.StatsLogS = 0
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	h := &harness{
		detector: &fakeDetector{detections: scene},
		recorder: actuator.NewRecorder(),
		sink:     &sink{},
		runErr:   make(chan error, 1),
	}

	r := cfg.Capture.Region
	comps := core.Components{
		Capture:   capture.NewMockSource(r.Width, r.Height),
		Detector:  h.detector,
		OCR:       digits{},
		Actuator:  h.recorder,
		Telemetry: h.sink,
		Journal:   h.sink,
	}
	for _, opt := range opts {
		opt(&comps)
	}
	bot, err := core.New(&cfg, comps)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	h.bot = bot
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.bot.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Errorf("Run() failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("Run() did not return after cancel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.bot.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Scenario: an enemy close to our tower while the match runs makes the bot
// play its first card on the enemy, once per cooldown.
func TestBotDefends(t *testing.T) {
	h := newHarness(t, defenseScene())
	h.start(t)

	waitFor(t, "a card play", func() bool { return len(h.recorder.Plays()) > 0 })

	play := h.recorder.Plays()[0]
	// (460, 920) in vision coordinates, offset by the capture region.
	want := actuator.Play{Slot: 0, Target: types.Point{X: 2674 + 460, Y: 35 + 920}}
	if play != want {
		t.Errorf("play = %+v, want %+v", play, want)
	}

	// 1s cooldown: no second play right away.
	time.Sleep(200 * time.Millisecond)
	if n := len(h.recorder.Plays()); n != 1 {
		t.Errorf("plays within cooldown = %d, want 1", n)
	}

	h.stop(t)

	events, actions, states, closed := h.sink.snapshot()
	if len(actions) == 0 || !actions[0].Dispatched || actions[0].Action.Rule != types.RuleDefense {
		t.Errorf("published actions = %+v", actions)
	}
	var mqttStarts, journalStarts int
	for _, e := range events {
		if e.event != "game_start" {
			t.Errorf("unexpected event %q", e.event)
			continue
		}
		if e.source == "mqtt" {
			mqttStarts++
		} else {
			journalStarts++
		}
	}
	if mqttStarts != 1 || journalStarts != 1 {
		t.Errorf("game_start published %d times, journaled %d times, want 1 each", mqttStarts, journalStarts)
	}
	if states == 0 {
		t.Error("no state published")
	}
	if !closed {
		t.Error("journal not closed on shutdown")
	}
	if h.detector.running.Load() {
		t.Error("detector still running after shutdown")
	}
}

func TestBotIdleBeforeGameStart(t *testing.T) {
	scene := defenseScene()[1:] // no GameStart signal
	h := newHarness(t, scene)
	h.start(t)

	waitFor(t, "fused states", func() bool {
		return h.bot.HealthCheck().StateSeq > 3
	})
	if n := len(h.recorder.Plays()); n != 0 {
		t.Errorf("plays before game start = %d, want 0", n)
	}
}

func TestBotPauseResume(t *testing.T) {
	h := newHarness(t, defenseScene())
	h.bot.Pause()
	h.start(t)

	waitFor(t, "an active game", func() bool { return h.bot.HealthCheck().GameActive })
	time.Sleep(200 * time.Millisecond)
	if n := len(h.recorder.Plays()); n != 0 {
		t.Fatalf("plays while paused = %d, want 0", n)
	}
	if status := h.bot.Status(); status["paused"] != true {
		t.Errorf("Status()[paused] = %v, want true", status["paused"])
	}

	h.bot.Resume()
	waitFor(t, "a card play after resume", func() bool { return len(h.recorder.Plays()) > 0 })
}

func TestDetectorWatchdogRestarts(t *testing.T) {
	h := newHarness(t, nil)
	h.bot.SetWatchdogInterval(20 * time.Millisecond)
	h.start(t)

	waitFor(t, "detector start", func() bool { return h.detector.running.Load() })
	h.detector.Stop() // simulate a crashed worker

	waitFor(t, "watchdog restart", func() bool { return h.detector.restarts.Load() > 0 })
	if !h.detector.running.Load() {
		t.Error("detector not running after restart")
	}
}

// A broker that takes longer to accept a publish than the capture interval
// must not hold up capture.
func TestSlowTelemetryDoesNotStallCapture(t *testing.T) {
	var slow *slowSink
	h := newHarness(t, defenseScene(), func(c *core.Components) {
		slow = &slowSink{sink: &sink{}, delay: time.Second}
		c.Telemetry = slow
	})
	h.start(t)

	waitFor(t, "a card play", func() bool { return len(h.recorder.Plays()) > 0 })

	frames := func() uint64 {
		return h.bot.Status()["capture"].(map[string]interface{})["frames"].(uint64)
	}
	before := frames()
	time.Sleep(500 * time.Millisecond)
	after := frames()

	// 30 fps over 500ms; allow a generous margin for slow CI machines.
	if after-before < 5 {
		t.Errorf("frames captured in 500ms after dispatch = %d, want at least 5", after-before)
	}

	waitFor(t, "the delayed action publish", func() bool {
		_, actions, _, _ := slow.snapshot()
		return len(actions) > 0
	})
}

func TestHealthPublishedWithStats(t *testing.T) {
	h := newHarness(t, defenseScene())
	h.bot.SetStatsInterval(20 * time.Millisecond)
	h.start(t)

	waitFor(t, "a health report", func() bool { return len(h.sink.healthReports()) > 0 })

	report := string(h.sink.healthReports()[0])
	if !strings.Contains(report, `"status":"healthy"`) || !strings.Contains(report, `"detector"`) {
		t.Errorf("health report = %s", report)
	}
}

func TestStatusIncludesJournalHistory(t *testing.T) {
	h := newHarness(t, defenseScene(), func(c *core.Components) {
		j, err := journal.Open(context.Background(), "crneuro", config.JournalConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(t.TempDir(), "journal.db"),
		})
		if err != nil {
			t.Fatalf("journal.Open() failed: %v", err)
		}
		c.Journal = j
	})
	h.start(t)

	var (
		actions []journal.ActionRecord
		events  []journal.EventRecord
	)
	waitFor(t, "a journaled action and event", func() bool {
		history, _ := h.bot.Status()["journal"].(map[string]interface{})
		if history == nil {
			return false
		}
		actions, _ = history["recent_actions"].([]journal.ActionRecord)
		events, _ = history["recent_events"].([]journal.EventRecord)
		return len(actions) > 0 && len(events) > 0
	})

	if actions[0].Rule != types.RuleDefense || !actions[0].Dispatched {
		t.Errorf("recent_actions[0] = %+v", actions[0])
	}
	if len(events) != 1 || events[0].Event != "game_start" {
		t.Errorf("recent_events = %+v, want one game_start", events)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, defenseScene())

	rec := httptest.NewRecorder()
	h.bot.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before Run = %d, want 503", rec.Code)
	}

	h.start(t)
	waitFor(t, "fused states", func() bool { return h.bot.HealthCheck().StateSeq > 0 })

	rec = httptest.NewRecorder()
	h.bot.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness while running = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("readiness body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.bot.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"alive"`) {
		t.Errorf("liveness = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.bot.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `crneuro_frames_published_total{instance="crneuro"}`) {
		t.Errorf("metrics body missing frame counter:\n%s", rec.Body.String())
	}
}

func TestNewRequiresComponents(t *testing.T) {
	cfg := config.Default()
	if _, err := core.New(&cfg, core.Components{}); err == nil {
		t.Error("New() without components returned nil error")
	}
	if _, err := core.New(nil, core.Components{}); err == nil {
		t.Error("New(nil) returned nil error")
	}
}
