package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"testing"
	"time"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// Fake worker behavior is keyed by request width:
//
//	width 1: error response
//	width 2: no response (hung inference)
//	other:   one confident and one weak detection
func fakeResponse(req request) *response {
	switch req.Width {
	case 1:
		return &response{Seq: req.Seq, Error: "model exploded"}
	case 2:
		return nil
	}
	if len(req.FrameData) != 4*req.Width*req.Height || req.Format != "rgba" {
		return &response{Seq: req.Seq, Error: fmt.Sprintf("bad frame: %d bytes for %dx%d", len(req.FrameData), req.Width, req.Height)}
	}
	return &response{
		Seq: req.Seq,
		Detections: []wireDetection{
			{Class: "Knight", Confidence: 0.9, Box: [4]float64{10.7, 20.2, 30.9, 40.1}},
			{Class: "Goblin", Confidence: 0.1, Box: [4]float64{1, 1, 2, 2}},
		},
		Timing: timing{TotalMS: 12},
	}
}

func serveFake(r io.Reader, w io.Writer) {
	for {
		var req request
		if err := readMessage(r, &req); err != nil {
			return
		}
		if resp := fakeResponse(req); resp != nil {
			if err := writeMessage(w, resp); err != nil {
				return
			}
		}
	}
}

// TestHelperProcess is not a real test: it is the fake worker binary that
// PythonWorker spawns in the tests below. In "stall" mode it never reads
// stdin.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv("CRNEURO_FAKE_DETECTOR") {
	case "serve":
	case "stall":
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		return
	}
	fmt.Fprintln(os.Stderr, "2025-01-01 00:00:00 [INFO] fake detector ready")
	fmt.Fprintln(os.Stderr, "2025-01-01 00:00:00 [WARNING] running without a GPU")
	serveFake(os.Stdin, os.Stdout)
	os.Exit(0)
}

func newFakeWorker(t *testing.T, timeout time.Duration) *PythonWorker {
	t.Helper()
	return startFakeWorker(t, "serve", timeout)
}

func startFakeWorker(t *testing.T, mode string, timeout time.Duration) *PythonWorker {
	t.Helper()

	w, err := NewPythonWorker(PythonConfig{
		WorkerID:       "fake",
		Command:        os.Args[0],
		Args:           []string{"-test.run=TestHelperProcess", "--"},
		Env:            []string{"CRNEURO_FAKE_DETECTOR=" + mode},
		ModelPath:      "fake.pt",
		Confidence:     0.3,
		RequestTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewPythonWorker() failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func img(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestPythonWorkerDetect(t *testing.T) {
	w := newFakeWorker(t, 5*time.Second)

	dets, err := w.Detect(context.Background(), img(64, 48), 0.3)
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}

	want := []types.Detection{{
		Class:      "Knight",
		Confidence: 0.9,
		Box:        types.Box{X1: 10, Y1: 20, X2: 30, Y2: 40},
	}}
	if len(dets) != 1 || dets[0] != want[0] {
		t.Fatalf("Detect() = %+v, want %+v", dets, want)
	}

	m := w.Metrics()
	if m.Requests != 1 || m.Responses != 1 || !m.Running {
		t.Errorf("Metrics() = %+v", m)
	}
	if m.AvgLatencyMS != 12 {
		t.Errorf("AvgLatencyMS = %v, want 12", m.AvgLatencyMS)
	}
}

func TestPythonWorkerErrorAndTimeout(t *testing.T) {
	w := newFakeWorker(t, 300*time.Millisecond)
	ctx := context.Background()

	if _, err := w.Detect(ctx, img(1, 1), 0.3); err == nil {
		t.Fatal("Detect() with worker error returned nil error")
	}

	if _, err := w.Detect(ctx, img(2, 2), 0.3); err == nil {
		t.Fatal("Detect() with hung worker returned nil error")
	}

	if got := w.Metrics().ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}

	// The worker keeps serving after an unanswered request.
	if _, err := w.Detect(ctx, img(8, 8), 0.3); err != nil {
		t.Fatalf("Detect() after timeout failed: %v", err)
	}
	if got := w.Metrics().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures after success = %d, want 0", got)
	}
}

// TestPythonWorkerStdinWriteTimeout checks that a request stuck in the pipe
// takes the worker out of service instead of letting the next request
// interleave with it.
func TestPythonWorkerStdinWriteTimeout(t *testing.T) {
	w := startFakeWorker(t, "stall", 200*time.Millisecond)
	ctx := context.Background()

	// Larger than a pipe buffer, so the write blocks.
	if _, err := w.Detect(ctx, img(512, 512), 0.3); err == nil {
		t.Fatal("Detect() against a stalled worker returned nil error")
	}
	if w.Metrics().Running {
		t.Error("Running = true after stdin write timeout")
	}

	start := time.Now()
	if _, err := w.Detect(ctx, img(8, 8), 0.3); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Detect() after write timeout error = %v, want ErrNotRunning", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Detect() after write timeout took %v, want immediate failure", elapsed)
	}
	if got := w.Metrics().ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}
}

func TestPythonWorkerStopAndRestart(t *testing.T) {
	w := newFakeWorker(t, 5*time.Second)
	ctx := context.Background()

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.Metrics().Running {
		t.Error("Running = true after Stop()")
	}
	if _, err := w.Detect(ctx, img(8, 8), 0.3); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Detect() after Stop() error = %v, want ErrNotRunning", err)
	}

	if err := w.Restart(ctx); err != nil {
		t.Fatalf("Restart() failed: %v", err)
	}
	if _, err := w.Detect(ctx, img(8, 8), 0.3); err != nil {
		t.Fatalf("Detect() after Restart() failed: %v", err)
	}
	if got := w.Metrics().Restarts; got != 1 {
		t.Errorf("Restarts = %d, want 1", got)
	}
}

func TestNewPythonWorkerValidation(t *testing.T) {
	if _, err := NewPythonWorker(PythonConfig{ModelPath: "m.pt"}); err == nil {
		t.Error("missing command accepted")
	}
	if _, err := NewPythonWorker(PythonConfig{Command: "run.sh"}); err == nil {
		t.Error("missing model accepted")
	}
}

// TestNewRequestPacksSubImage validates that a sub-image with a parent stride
// is sent as a tight buffer starting at its own origin.
func TestNewRequestPacksSubImage(t *testing.T) {
	parent := img(10, 10)
	parent.Set(3, 4, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	sub := parent.SubImage(image.Rect(3, 4, 6, 6)).(*image.RGBA)

	req := newRequest(7, sub, 0.5)
	if req.Width != 3 || req.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", req.Width, req.Height)
	}
	if len(req.FrameData) != 3*2*4 {
		t.Fatalf("len(FrameData) = %d, want 24", len(req.FrameData))
	}
	if got := req.FrameData[:4]; got[0] != 1 || got[1] != 2 || got[2] != 3 || got[3] != 4 {
		t.Errorf("first pixel = %v, want [1 2 3 4]", got)
	}
}

func TestReadMessageRejectsOversize(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		w.Write([]byte{0xff, 0xff, 0xff, 0xff})
		w.Close()
	}()

	var resp response
	if err := readMessage(r, &resp); err == nil {
		t.Fatal("readMessage() accepted a 4GiB length prefix")
	}
}
