package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// CardSlotCount is the number of hand slots on screen.
const CardSlotCount = 4

// Validate checks if the configuration is valid and fills derived defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Validate capture config
	switch cfg.Capture.Backend {
	case "screenshot", "gstreamer", "mock":
	default:
		return fmt.Errorf("capture.backend: unknown backend '%s' (must be 'screenshot', 'gstreamer' or 'mock')",
			cfg.Capture.Backend)
	}
	if cfg.Capture.Region.Width <= 0 || cfg.Capture.Region.Height <= 0 {
		return fmt.Errorf("capture.region must have positive width and height, got %dx%d",
			cfg.Capture.Region.Width, cfg.Capture.Region.Height)
	}
	if cfg.Capture.FPS <= 0 {
		cfg.Capture.FPS = 30 // default
	}

	// Validate detector config
	if cfg.Detector.Confidence <= 0 || cfg.Detector.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be in (0, 1], got %v", cfg.Detector.Confidence)
	}
	if cfg.Detector.RequestTimeoutMS <= 0 {
		cfg.Detector.RequestTimeoutMS = 2000 // default
	}

	// Validate perception config
	if err := ValidatePerception(cfg.Perception); err != nil {
		return fmt.Errorf("perception validation failed: %w", err)
	}

	// Every HP indicator needs crop margins
	for label := range cfg.Vocab.HPToTowers {
		if _, ok := cfg.Perception.HPCrops[label]; !ok {
			return fmt.Errorf("perception.hp_crops: missing entry for HP class '%s'", label)
		}
	}

	// Validate decision config
	d := cfg.Decision
	for name, slot := range map[string]int{
		"defense_slot": d.DefenseSlot,
		"support_slot": d.SupportSlot,
		"economy_slot": d.EconomySlot,
	} {
		if slot < 0 || slot >= CardSlotCount {
			return fmt.Errorf("decision.%s must be in [0, %d), got %d", name, CardSlotCount, slot)
		}
	}
	if d.DefenseRadius <= 0 {
		return fmt.Errorf("decision.defense_radius must be > 0")
	}

	// Validate action config
	switch cfg.Action.Backend {
	case "robotgo", "dry_run":
	default:
		return fmt.Errorf("action.backend: unknown backend '%s' (must be 'robotgo' or 'dry_run')",
			cfg.Action.Backend)
	}
	if cfg.Action.CooldownMS < 0 || cfg.Action.ClickPauseMS < 0 {
		return fmt.Errorf("action.cooldown_ms and action.click_pause_ms must be >= 0")
	}
	if len(cfg.Action.CardSlots) != CardSlotCount {
		return fmt.Errorf("action.card_slots must have %d entries, got %d",
			CardSlotCount, len(cfg.Action.CardSlots))
	}
	area := cfg.Action.PlayableArea
	if area.XMin > area.XMax || area.YMin > area.YMax {
		return fmt.Errorf("action.playable_area is inverted: %+v", area)
	}

	// Validate loop config
	if cfg.Loop.CaptureFPS <= 0 {
		return fmt.Errorf("loop.capture_fps must be > 0")
	}
	if cfg.Loop.IdlePauseMS <= 0 {
		cfg.Loop.IdlePauseMS = 10 // default
	}

	// Vocabulary markers
	if cfg.Vocab.DeckMarker == "" || cfg.Vocab.NextMarker == "" {
		return fmt.Errorf("vocab.deck_marker and vocab.next_marker are required")
	}

	// MQTT is optional; topics only matter when a broker is set
	if cfg.MQTT.Broker != "" {
		setDefaultTopics(cfg)
	}
	if cfg.MQTT.StatePublishEvery <= 0 {
		cfg.MQTT.StatePublishEvery = 1
	}

	// Validate journal config
	switch cfg.Journal.Driver {
	case "":
	case "sqlite", "postgres":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for driver '%s'", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver: unknown driver '%s' (must be 'sqlite' or 'postgres')",
			cfg.Journal.Driver)
	}

	return nil
}

func setDefaultTopics(cfg *Config) {
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("crneuro/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.State == "" {
		cfg.MQTT.Topics.State = fmt.Sprintf("crneuro/state/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Actions == "" {
		cfg.MQTT.Topics.Actions = fmt.Sprintf("crneuro/actions/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Events == "" {
		cfg.MQTT.Topics.Events = fmt.Sprintf("crneuro/events/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("crneuro/health/%s", cfg.InstanceID)
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"state":   0,
			"actions": 1,
			"events":  1,
			"health":  0,
		}
	}
}

// ValidatePerception validates fusion tunables
func ValidatePerception(p PerceptionConfig) error {
	if p.SlowCadence < 1 {
		return fmt.Errorf("slow_cadence must be >= 1, got %d", p.SlowCadence)
	}
	if p.HPProximity <= 0 {
		return fmt.Errorf("hp_proximity must be > 0")
	}
	if p.StartingElixir < 0 || p.StartingElixir > 10 {
		return fmt.Errorf("starting_elixir must be in [0, 10], got %d", p.StartingElixir)
	}
	if p.ElixirROI.Width <= 0 || p.ElixirROI.Height <= 0 {
		return fmt.Errorf("elixir_roi must have positive width and height")
	}
	if p.ElixirScale < 1 {
		return fmt.Errorf("elixir_scale must be >= 1")
	}
	if p.HPMinScale < 1 {
		return fmt.Errorf("hp_min_scale must be >= 1")
	}

	for label, crop := range p.HPCrops {
		if crop.Left < 0 || crop.Right < 0 || crop.Top < 0 || crop.Bottom < 0 {
			return fmt.Errorf("hp_crops '%s': margins must be >= 0", label)
		}
	}

	return nil
}
