package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Desai0/CR-Neuro/internal/types"
	"github.com/Desai0/CR-Neuro/internal/vocab"
)

// Config represents the complete bot configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	HealthPort       string           `yaml:"health_port"`        // Empty disables the health server
	Capture          CaptureConfig    `yaml:"capture"`
	Detector         DetectorConfig   `yaml:"detector"`
	OCR              OCRConfig        `yaml:"ocr"`
	Perception       PerceptionConfig `yaml:"perception"`
	Decision         DecisionConfig   `yaml:"decision"`
	Action           ActionConfig     `yaml:"action"`
	Loop             LoopConfig       `yaml:"loop"`
	Vocab            vocab.Spec       `yaml:"vocab"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Journal          JournalConfig    `yaml:"journal"`
}

// CaptureConfig selects the screen capture backend and the captured region
type CaptureConfig struct {
	Backend string     `yaml:"backend"` // screenshot, gstreamer, mock
	Region  types.Rect `yaml:"region"`  // Vision coordinate frame origin and size
	Display string     `yaml:"display"` // X display for the gstreamer backend (e.g. ":0")
	FPS     int        `yaml:"fps"`     // Source rate for the gstreamer backend
}

// DetectorConfig contains object detection worker settings
type DetectorConfig struct {
	Command          string  `yaml:"command"`    // Worker launcher (activates venv, runs the model)
	ModelPath        string  `yaml:"model_path"` // YOLO weights
	Confidence       float64 `yaml:"confidence"`
	RequestTimeoutMS int     `yaml:"request_timeout_ms"`
}

// RequestTimeout returns the per-frame detection timeout
func (d DetectorConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutMS) * time.Millisecond
}

// OCRConfig contains Tesseract settings
type OCRConfig struct {
	Language string `yaml:"language"`
}

// CropConfig trims an HP indicator box down to its digits
type CropConfig struct {
	Left      int   `yaml:"left"`
	Right     int   `yaml:"right"`
	Top       int   `yaml:"top"`
	Bottom    int   `yaml:"bottom"`
	Threshold uint8 `yaml:"threshold"` // Binarization threshold after grayscale
}

// PerceptionConfig contains fusion engine tunables
type PerceptionConfig struct {
	SlowCadence     int                   `yaml:"slow_cadence"`     // OCR runs every Nth perception cycle
	HPProximity     float64               `yaml:"hp_proximity"`     // Max HP-indicator to tower center distance (px)
	StartingElixir  int                   `yaml:"starting_elixir"`  // Elixir assumed on a fresh GameStart
	ElixirROI       types.Rect            `yaml:"elixir_roi"`       // In vision coordinates
	ElixirScale     int                   `yaml:"elixir_scale"`     // Upscale factor before OCR
	ElixirThreshold uint8                 `yaml:"elixir_threshold"` // Binarization threshold
	HPMinHeight     int                   `yaml:"hp_min_height"`    // HP crops are upscaled to at least this height
	HPMinScale      float64               `yaml:"hp_min_scale"`     // and by at least this factor
	HPCrops         map[string]CropConfig `yaml:"hp_crops"`         // Keyed by HP indicator label
}

// DecisionConfig contains rule engine tunables
type DecisionConfig struct {
	DefenseRadius    float64     `yaml:"defense_radius"`
	DefenseSlot      int         `yaml:"defense_slot"`
	MinSupportElixir int         `yaml:"min_support_elixir"`
	BridgeY          float64     `yaml:"bridge_y"`
	SupportOffsetY   int         `yaml:"support_offset_y"`
	SupportSlot      int         `yaml:"support_slot"`
	MinAttackElixir  int         `yaml:"min_attack_elixir"`
	SafePlay         types.Point `yaml:"safe_play"`
	BridgeAttack     types.Point `yaml:"bridge_attack"`
	EconomySlot      int         `yaml:"economy_slot"`
	TankUnits        []string    `yaml:"tank_units"`
}

// ActionConfig contains throttle and actuator settings
type ActionConfig struct {
	Backend      string        `yaml:"backend"` // robotgo, dry_run
	CooldownMS   int           `yaml:"cooldown_ms"`
	ClickPauseMS int           `yaml:"click_pause_ms"`
	PlayableArea types.Bounds  `yaml:"playable_area"` // In global screen coordinates
	CardSlots    []types.Point `yaml:"card_slots"`    // Global screen coordinates of the 4 hand slots
}

// Cooldown returns the minimum time between two dispatched actions
func (a ActionConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownMS) * time.Millisecond
}

// ClickPause returns the pacing delay between card and target clicks
func (a ActionConfig) ClickPause() time.Duration {
	return time.Duration(a.ClickPauseMS) * time.Millisecond
}

// LoopConfig paces the two main loops
type LoopConfig struct {
	CaptureFPS  int `yaml:"capture_fps"`
	IdlePauseMS int `yaml:"idle_pause_ms"` // Perception loop pause when no frame is available
	StatsLogS   int `yaml:"stats_log_s"`
}

// IdlePause returns the perception loop idle pause
func (l LoopConfig) IdlePause() time.Duration {
	return time.Duration(l.IdlePauseMS) * time.Millisecond
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker            string          `yaml:"broker"`
	Topics            MQTTTopics      `yaml:"topics"`
	QoS               map[string]byte `yaml:"qos"`
	StatePublishEvery int             `yaml:"state_publish_every"` // Publish every Nth fused state
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	State   string `yaml:"state"`
	Actions string `yaml:"actions"`
	Events  string `yaml:"events"`
	Health  string `yaml:"health"`
}

// JournalConfig selects the action journal database. An empty driver disables it.
type JournalConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// Default returns a configuration populated with the stock tunables.
func Default() Config {
	return Config{
		InstanceID:       "crneuro",
		ShutdownTimeoutS: 5,
		HealthPort:       "8080",
		Capture: CaptureConfig{
			Backend: "screenshot",
			Region:  types.Rect{Left: 2674, Top: 35, Width: 766, Height: 1355},
			Display: ":0",
			FPS:     30,
		},
		Detector: DetectorConfig{
			Command:          "models/run_detector.sh",
			ModelPath:        "models/best.pt",
			Confidence:       0.3,
			RequestTimeoutMS: 2000,
		},
		OCR: OCRConfig{Language: "eng"},
		Perception: PerceptionConfig{
			SlowCadence:     5,
			HPProximity:     250,
			StartingElixir:  7,
			ElixirROI:       types.Rect{Left: 213, Top: 1293, Width: 27, Height: 34},
			ElixirScale:     3,
			ElixirThreshold: 200,
			HPMinHeight:     30,
			HPMinScale:      2,
			HPCrops: map[string]CropConfig{
				"MyKingHP":          {Left: 35, Right: 32, Top: 12, Threshold: 170},
				"MyPrincessTowerHP": {Left: 30, Right: 28, Top: 12, Threshold: 170},
				"KingTowerHP":       {Left: 35, Right: 32, Bottom: 10, Threshold: 200},
				"TowerPrincessHP":   {Left: 20, Right: 20, Bottom: 10, Threshold: 200},
			},
		},
		Decision: DecisionConfig{
			DefenseRadius:    300,
			DefenseSlot:      0,
			MinSupportElixir: 4,
			BridgeY:          480,
			SupportOffsetY:   50,
			SupportSlot:      1,
			MinAttackElixir:  8,
			SafePlay:         types.Point{X: 515, Y: 650},
			BridgeAttack:     types.Point{X: 515, Y: 610},
			EconomySlot:      2,
			TankUnits:        []string{"MyPekka", "MyGiant", "MyGolem", "MyBarbarian"},
		},
		Action: ActionConfig{
			Backend:      "robotgo",
			CooldownMS:   1000,
			ClickPauseMS: 100,
			PlayableArea: types.Bounds{XMin: 2731, YMin: 636, XMax: 3385, YMax: 1058},
			CardSlots: []types.Point{
				{X: 2900, Y: 1241},
				{X: 3050, Y: 1241},
				{X: 3200, Y: 1241},
				{X: 3350, Y: 1241},
			},
		},
		Loop: LoopConfig{
			CaptureFPS:  30,
			IdlePauseMS: 10,
			StatsLogS:   10,
		},
		Vocab: vocab.DefaultSpec(),
		MQTT: MQTTConfig{
			StatePublishEvery: 5,
		},
	}
}

// Load reads and parses a YAML configuration file on top of Default()
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration bytes on top of Default()
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ShutdownTimeout returns the graceful shutdown timeout (default 5s)
func (c *Config) ShutdownTimeout() time.Duration {
	timeout := time.Duration(c.ShutdownTimeoutS) * time.Second
	if timeout <= 0 {
		return 5 * time.Second
	}
	return timeout
}
