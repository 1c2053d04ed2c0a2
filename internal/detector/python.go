package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// stopTimeout bounds how long Stop waits for the worker to exit on its own.
const stopTimeout = 2 * time.Second

// PythonConfig configures the YOLO worker subprocess.
type PythonConfig struct {
	WorkerID       string
	Command        string   // Launcher script (activates venv, runs the worker)
	Args           []string // Extra leading arguments for Command
	Env            []string // Extra environment, appended to os.Environ()
	ModelPath      string
	Confidence     float64
	RequestTimeout time.Duration
}

// PythonWorker runs YOLO inference in a Python subprocess.
//
// Frames go to the worker's stdin and detections come back on stdout, both as
// length-prefixed msgpack messages (4-byte big-endian length, then payload).
// Requests carry a sequence number that the worker echoes, so a late answer
// to a timed-out request is recognized and discarded. Detect is synchronous
// and calls are serialized.
type PythonWorker struct {
	cfg PythonConfig

	mu        sync.Mutex // serializes Detect, Start and Stop
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan response
	exited    chan struct{}
	seq       uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup // per process
	isActive atomic.Bool
	alive    atomic.Bool

	// Stats
	requests       atomic.Uint64
	responseCount  atomic.Uint64
	failures       atomic.Uint64
	consecutive    atomic.Uint64
	restarts       atomic.Uint64
	totalLatencyMS atomic.Uint64
	lastSeenAt     atomic.Value // time.Time
}

// NewPythonWorker creates a stopped worker.
func NewPythonWorker(cfg PythonConfig) (*PythonWorker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("detector command is required")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model_path is required")
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "yolo-detector"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	slog.Info("python detector worker created",
		"worker_id", cfg.WorkerID,
		"model", cfg.ModelPath,
		"confidence", cfg.Confidence,
		"request_timeout", cfg.RequestTimeout,
	)

	return &PythonWorker{cfg: cfg}, nil
}

// ID returns the worker ID
func (w *PythonWorker) ID() string {
	return w.cfg.WorkerID
}

// Start spawns the worker process.
func (w *PythonWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.start(ctx)
}

func (w *PythonWorker) start(ctx context.Context) error {
	if w.isActive.Load() {
		return fmt.Errorf("worker already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := w.spawnProcess(); err != nil {
		w.cancel()
		return fmt.Errorf("failed to spawn python process: %w", err)
	}

	w.isActive.Store(true)
	w.lastSeenAt.Store(time.Now())

	slog.Info("python detector started",
		"worker_id", w.cfg.WorkerID,
		"model", w.cfg.ModelPath,
	)
	return nil
}

// spawnProcess starts the subprocess and its reader goroutines.
func (w *PythonWorker) spawnProcess() error {
	args := append([]string(nil), w.cfg.Args...)
	args = append(args,
		"--model", w.cfg.ModelPath,
		"--confidence", fmt.Sprintf("%.2f", w.cfg.Confidence),
	)

	cmd := exec.CommandContext(w.ctx, w.cfg.Command, args...)
	if len(w.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), w.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start python process: %w", err)
	}

	responses := make(chan response, 4)
	exited := make(chan struct{})

	w.cmd = cmd
	w.stdin = stdin
	w.responses = responses
	w.exited = exited
	w.alive.Store(true)

	slog.Info("python process spawned",
		"worker_id", w.cfg.WorkerID,
		"pid", cmd.Process.Pid,
	)

	ctx := w.ctx
	var readers sync.WaitGroup
	readers.Add(2)
	wg := new(sync.WaitGroup)
	wg.Add(3)
	w.wg = wg

	go func() {
		defer wg.Done()
		w.readResults(stdout, responses, &readers)
	}()
	go func() {
		defer wg.Done()
		w.logStderr(stderr, &readers)
	}()
	go func() {
		defer wg.Done()
		w.waitProcess(ctx, cmd, exited, &readers)
	}()

	return nil
}

// Detect implements Detector.
func (w *PythonWorker) Detect(ctx context.Context, img *image.RGBA, confidence float64) ([]types.Detection, error) {
	if img == nil {
		return nil, fmt.Errorf("detect: nil image")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isActive.Load() {
		return nil, ErrNotRunning
	}
	// A request may be half-written on stdin; only a restart resyncs the stream.
	if !w.alive.Load() {
		return nil, w.fail(fmt.Errorf("python process not accepting requests: %w", ErrNotRunning))
	}

	w.seq++
	seq := w.seq
	w.requests.Add(1)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	req := newRequest(seq, img, confidence)
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeMessage(w.stdin, req)
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			return nil, w.fail(fmt.Errorf("failed to write to stdin: %w", err))
		}
	case <-ctx.Done():
		w.alive.Store(false)
		return nil, w.fail(fmt.Errorf("stdin write timeout (python worker may be hung): %w", ctx.Err()))
	case <-w.exited:
		return nil, w.fail(fmt.Errorf("python process exited: %w", ErrNotRunning))
	}

	for {
		select {
		case resp, ok := <-w.responses:
			if !ok {
				return nil, w.fail(fmt.Errorf("python worker stdout closed: %w", ErrNotRunning))
			}
			if resp.Seq != seq {
				slog.Debug("discarding stale detection response",
					"worker_id", w.cfg.WorkerID,
					"got_seq", resp.Seq,
					"want_seq", seq,
				)
				continue
			}
			if resp.Error != "" {
				return nil, w.fail(fmt.Errorf("python worker error: %s", resp.Error))
			}

			w.responseCount.Add(1)
			w.consecutive.Store(0)
			w.lastSeenAt.Store(time.Now())
			latency := resp.Timing.TotalMS
			if latency <= 0 {
				latency = float64(time.Since(start).Milliseconds())
			}
			w.totalLatencyMS.Add(uint64(latency))

			return toDetections(resp.Detections, confidence), nil

		case <-ctx.Done():
			return nil, w.fail(fmt.Errorf("detection response timeout (seq %d): %w", seq, ctx.Err()))
		}
	}
}

func (w *PythonWorker) fail(err error) error {
	w.failures.Add(1)
	w.consecutive.Add(1)
	return err
}

// readResults decodes responses from stdout until the stream closes.
func (w *PythonWorker) readResults(stdout io.Reader, out chan<- response, readers *sync.WaitGroup) {
	defer readers.Done()
	defer close(out)

	for {
		var resp response
		if err := readMessage(stdout, &resp); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("python worker stdout closed (EOF)", "worker_id", w.cfg.WorkerID)
			} else {
				slog.Error("failed to read from python worker",
					"worker_id", w.cfg.WorkerID,
					"error", err,
					"action", "check python worker logs in stderr",
				)
			}
			return
		}

		select {
		case out <- resp:
		default:
			slog.Warn("dropping detection response, nobody waiting",
				"worker_id", w.cfg.WorkerID,
				"seq", resp.Seq,
			)
		}
	}
}

// logStderr maps Python log levels to slog levels.
func (w *PythonWorker) logStderr(stderr io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			slog.Error("python worker error", "worker_id", w.cfg.WorkerID, "log", line)
		case containsAny(line, "[WARNING]", "[WARN]"):
			slog.Warn("python worker warning", "worker_id", w.cfg.WorkerID, "log", line)
		default:
			slog.Debug("python worker log", "worker_id", w.cfg.WorkerID, "log", line)
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Debug("error reading stderr", "worker_id", w.cfg.WorkerID, "error", err)
	}
}

// waitProcess reaps the process once both pipes are drained.
func (w *PythonWorker) waitProcess(ctx context.Context, cmd *exec.Cmd, exited chan<- struct{}, readers *sync.WaitGroup) {
	defer close(exited)

	readers.Wait()
	err := cmd.Wait()
	w.alive.Store(false)

	pid := cmd.Process.Pid
	switch {
	case err == nil:
		slog.Info("python process exited cleanly", "worker_id", w.cfg.WorkerID, "pid", pid)
	case ctx.Err() != nil || !w.isActive.Load():
		slog.Debug("python process exited (shutdown)", "worker_id", w.cfg.WorkerID, "pid", pid)
	default:
		slog.Error("python process exited unexpectedly",
			"worker_id", w.cfg.WorkerID,
			"pid", pid,
			"error", err,
		)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Metrics returns current worker health metrics
func (w *PythonWorker) Metrics() Metrics {
	responses := w.responseCount.Load()

	var avgLatencyMS float64
	if responses > 0 {
		avgLatencyMS = float64(w.totalLatencyMS.Load()) / float64(responses)
	}

	var lastSeen time.Time
	if val := w.lastSeenAt.Load(); val != nil {
		lastSeen = val.(time.Time)
	}

	return Metrics{
		Requests:            w.requests.Load(),
		Responses:           responses,
		Failures:            w.failures.Load(),
		ConsecutiveFailures: w.consecutive.Load(),
		Restarts:            w.restarts.Load(),
		AvgLatencyMS:        avgLatencyMS,
		LastSeenAt:          lastSeen,
		Running:             w.isActive.Load() && w.alive.Load(),
	}
}

// Stop closes the worker's stdin, waits up to 2s for it to exit, then kills it.
func (w *PythonWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.stop()
}

func (w *PythonWorker) stop() error {
	if !w.isActive.Load() {
		return nil
	}
	w.isActive.Store(false)

	slog.Info("stopping python detector", "worker_id", w.cfg.WorkerID)

	// EOF on stdin asks the worker to exit gracefully
	if w.stdin != nil {
		w.stdin.Close()
	}

	wg := w.wg
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("python worker goroutines stopped cleanly", "worker_id", w.cfg.WorkerID)
	case <-time.After(stopTimeout):
		slog.Warn("python worker stop timeout, force killing process", "worker_id", w.cfg.WorkerID)
		w.cancel()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			slog.Error("python worker did not exit after kill", "worker_id", w.cfg.WorkerID)
		}
	}
	w.cancel()

	slog.Info("python detector stopped",
		"worker_id", w.cfg.WorkerID,
		"requests", w.requests.Load(),
		"responses", w.responseCount.Load(),
	)
	return nil
}

// Restart stops and respawns the worker. Used by the watchdog when the
// process died or stopped answering.
func (w *PythonWorker) Restart(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.stop(); err != nil {
		return err
	}
	w.restarts.Add(1)
	w.consecutive.Store(0)

	return w.start(ctx)
}
