package perception

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// scriptedDetector returns one scripted batch per call, then empty lists.
type scriptedDetector struct {
	batches [][]types.Detection
	errs    []error
	calls   int
}

func (d *scriptedDetector) Detect(ctx context.Context, img *image.RGBA, confidence float64) ([]types.Detection, error) {
	i := d.calls
	d.calls++
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	if i < len(d.batches) {
		return d.batches[i], err
	}
	return nil, err
}

func TestPerceiverSlowCadence(t *testing.T) {
	reader := &fakeReader{word: "5"}
	p := NewPerceiver(&scriptedDetector{}, newTestEngine(t, reader), 0.3, 5)

	var slowCycles []uint64
	for i := 0; i < 11; i++ {
		res := p.Perceive(context.Background(), testFrame())
		if res.Slow {
			slowCycles = append(slowCycles, res.Cycle)
		}
	}

	want := []uint64{0, 5, 10}
	if len(slowCycles) != len(want) {
		t.Fatalf("slow cycles = %v, want %v", slowCycles, want)
	}
	for i := range want {
		if slowCycles[i] != want[i] {
			t.Fatalf("slow cycles = %v, want %v", slowCycles, want)
		}
	}

	words := 0
	for _, m := range reader.calls {
		if m == ocr.SingleWord {
			words++
		}
	}
	if words != 3 {
		t.Errorf("elixir OCR ran %d times, want 3", words)
	}
}

func TestPerceiverSetSlowCadence(t *testing.T) {
	p := NewPerceiver(&scriptedDetector{}, newTestEngine(t, &fakeReader{}), 0.3, 5)

	if err := p.SetSlowCadence(0); err == nil {
		t.Error("SetSlowCadence(0) accepted")
	}
	if err := p.SetSlowCadence(1); err != nil {
		t.Fatalf("SetSlowCadence(1) failed: %v", err)
	}
	if p.SlowCadence() != 1 {
		t.Errorf("SlowCadence() = %d, want 1", p.SlowCadence())
	}

	for i := 0; i < 3; i++ {
		if res := p.Perceive(context.Background(), testFrame()); !res.Slow {
			t.Errorf("cycle %d not slow with cadence 1", res.Cycle)
		}
	}
}

// TestPerceiverEventsAndDetectorFailure validates lifecycle events and that a
// failing detector still yields a state with the sticky flags carried.
func TestPerceiverEventsAndDetectorFailure(t *testing.T) {
	detector := &scriptedDetector{
		batches: [][]types.Detection{
			{det("GameStart", 0, 0, 10, 10)},
			{det("GameStart", 0, 0, 10, 10)},
			nil,
			{det("MatchOver", 0, 0, 10, 10)},
		},
		errs: []error{nil, nil, errors.New("worker hung")},
	}
	p := NewPerceiver(detector, newTestEngine(t, &fakeReader{}), 0.3, 100)
	ctx := context.Background()

	first := p.Perceive(ctx, testFrame())
	if len(first.Events) != 1 || first.Events[0] != EventGameStart {
		t.Errorf("cycle 0 events = %v, want [game_start]", first.Events)
	}

	second := p.Perceive(ctx, testFrame())
	if len(second.Events) != 0 {
		t.Errorf("cycle 1 events = %v, want none (already started)", second.Events)
	}

	failed := p.Perceive(ctx, testFrame())
	if !failed.State.GameStart {
		t.Error("GameStart lost on detector failure")
	}
	if failed.Detections != nil {
		t.Errorf("Detections = %v, want nil on failure", failed.Detections)
	}
	if failed.State.Elixir != types.Known(7) {
		t.Errorf("Elixir = %v, want carried 7", failed.State.Elixir)
	}

	over := p.Perceive(ctx, testFrame())
	if len(over.Events) != 1 || over.Events[0] != EventMatchOver {
		t.Errorf("cycle 3 events = %v, want [match_over]", over.Events)
	}
	if over.State.Active() {
		t.Error("state still active after MatchOver")
	}
}
