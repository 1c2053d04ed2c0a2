package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate(Default()) failed: %v", err)
	}

	if cfg.Perception.SlowCadence != 5 {
		t.Errorf("SlowCadence = %d, want 5", cfg.Perception.SlowCadence)
	}
	if cfg.Action.Cooldown().Seconds() != 1 {
		t.Errorf("Cooldown = %v, want 1s", cfg.Action.Cooldown())
	}
	if got := cfg.Perception.HPCrops["TowerPrincessHP"]; got.Left != 20 || got.Bottom != 10 {
		t.Errorf("TowerPrincessHP crop = %+v", got)
	}
	// No broker: topics stay empty
	if cfg.MQTT.Topics.Control != "" {
		t.Errorf("Control topic set without broker: %q", cfg.MQTT.Topics.Control)
	}
}

// TestParseOverlaysDefaults validates that a partial file only overrides what it names.
func TestParseOverlaysDefaults(t *testing.T) {
	yamlDoc := `
instance_id: bot-2
capture:
  backend: mock
decision:
  defense_radius: 200
  tank_units: [MyGiant]
perception:
  hp_crops:
    MyKingHP: {left: 1, right: 2, top: 3, threshold: 150}
mqtt:
  broker: tcp://localhost:1883
`
	cfg, err := config.Parse([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Decision.DefenseRadius != 200 {
		t.Errorf("DefenseRadius = %v, want 200", cfg.Decision.DefenseRadius)
	}
	if cfg.Decision.MinAttackElixir != 8 {
		t.Errorf("MinAttackElixir = %d, want default 8", cfg.Decision.MinAttackElixir)
	}
	if len(cfg.Decision.TankUnits) != 1 || cfg.Decision.TankUnits[0] != "MyGiant" {
		t.Errorf("TankUnits = %v", cfg.Decision.TankUnits)
	}
	if cfg.Capture.Region != (types.Rect{Left: 2674, Top: 35, Width: 766, Height: 1355}) {
		t.Errorf("Region = %+v, want default", cfg.Capture.Region)
	}
	if got := cfg.Perception.HPCrops["MyKingHP"]; got.Left != 1 || got.Threshold != 150 {
		t.Errorf("MyKingHP crop = %+v", got)
	}
	if _, ok := cfg.Perception.HPCrops["KingTowerHP"]; !ok {
		t.Error("KingTowerHP crop lost when overriding a sibling key")
	}
	if cfg.MQTT.Topics.Control != "crneuro/control/bot-2" {
		t.Errorf("Control topic = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.QoS["actions"] != 1 {
		t.Errorf("actions QoS = %d, want 1", cfg.MQTT.QoS["actions"])
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad instance id", func(c *config.Config) { c.InstanceID = "Bot_1" }, "instance_id"},
		{"unknown capture backend", func(c *config.Config) { c.Capture.Backend = "vnc" }, "capture.backend"},
		{"zero region", func(c *config.Config) { c.Capture.Region.Width = 0 }, "capture.region"},
		{"confidence out of range", func(c *config.Config) { c.Detector.Confidence = 1.5 }, "detector.confidence"},
		{"zero cadence", func(c *config.Config) { c.Perception.SlowCadence = 0 }, "slow_cadence"},
		{"slot out of range", func(c *config.Config) { c.Decision.EconomySlot = 4 }, "economy_slot"},
		{"three card slots", func(c *config.Config) { c.Action.CardSlots = c.Action.CardSlots[:3] }, "card_slots"},
		{"inverted area", func(c *config.Config) { c.Action.PlayableArea.XMin = 4000 }, "playable_area"},
		{"journal without dsn", func(c *config.Config) { c.Journal.Driver = "sqlite" }, "journal.dsn"},
		{"unknown journal driver", func(c *config.Config) { c.Journal.Driver = "mysql"; c.Journal.DSN = "x" }, "journal.driver"},
		{"hp class without crop", func(c *config.Config) {
			delete(c.Perception.HPCrops, "KingTowerHP")
		}, "KingTowerHP"},
		{"negative crop", func(c *config.Config) {
			c.Perception.HPCrops["MyKingHP"] = config.CropConfig{Left: -1}
		}, "hp_crops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := config.Validate(&cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crneuro.yaml")
	if err := os.WriteFile(path, []byte("instance_id: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.InstanceID != "from-file" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file returned nil error")
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "config", "crneuro.yaml"))
	if err != nil {
		t.Fatalf("Load(config/crneuro.yaml) failed: %v", err)
	}
	if len(cfg.Vocab.Labels) == 0 {
		t.Error("shipped config has an empty vocabulary")
	}
}
