// Package gstreamer captures the game region through an ximagesrc pipeline.
//
// ximagesrc → videorate → videoconvert → capsfilter(RGBA) → appsink
//
// The appsink keeps one buffer and drops the rest; the sample callback copies
// the newest frame into a latest-wins slot that Capture drains.
package gstreamer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Desai0/CR-Neuro/internal/capture"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// Config for the X11 capture pipeline.
type Config struct {
	Display string
	Region  types.Rect
	FPS     int
}

// Source is a capture.Source backed by a running GStreamer pipeline.
type Source struct {
	cfg      Config
	pipeline *gst.Pipeline
	sink     *app.Sink

	mu     sync.Mutex
	latest []byte
	fresh  bool

	samples atomic.Uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds and starts the pipeline.
func New(cfg Config) (*Source, error) {
	if cfg.Region.Width <= 0 || cfg.Region.Height <= 0 {
		return nil, fmt.Errorf("gstreamer: invalid region %+v", cfg.Region)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("crneuro-capture")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("ximagesrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create ximagesrc: %w", err)
	}
	if cfg.Display != "" {
		src.SetProperty("display-name", cfg.Display)
	}
	r := cfg.Region
	src.SetProperty("startx", uint(r.Left))
	src.SetProperty("starty", uint(r.Top))
	src.SetProperty("endx", uint(r.Left+r.Width-1))
	src.SetProperty("endy", uint(r.Top+r.Height-1))
	src.SetProperty("use-damage", false)

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=RGBA,framerate=%d/1", cfg.FPS)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(src, videorate, converter, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(src, videorate, converter, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link capture pipeline: %w", err)
	}

	s := &Source{cfg: cfg, pipeline: pipeline, sink: sink}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start capture pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.monitorBus(ctx); err != nil {
			slog.Error("gstreamer: capture pipeline stopped", "error", err)
		}
	}()

	slog.Info("gstreamer: capture pipeline started",
		"display", cfg.Display,
		"region", cfg.Region,
		"fps", cfg.FPS,
	)
	return s, nil
}

func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstreamer: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstreamer: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	want := s.cfg.Region.Width * s.cfg.Region.Height * 4
	if len(data) < want {
		buffer.Unmap()
		slog.Warn("gstreamer: short buffer", "size", len(data), "want", want)
		return gst.FlowOK
	}

	s.mu.Lock()
	if cap(s.latest) < want {
		s.latest = make([]byte, want)
	}
	s.latest = s.latest[:want]
	copy(s.latest, data)
	s.fresh = true
	s.mu.Unlock()
	buffer.Unmap()

	s.samples.Add(1)
	return gst.FlowOK
}

// Capture returns the newest frame not yet returned, or capture.ErrNoFrame.
func (s *Source) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return nil, capture.ErrNoFrame
	}
	s.fresh = false

	img := image.NewRGBA(image.Rect(0, 0, s.cfg.Region.Width, s.cfg.Region.Height))
	copy(img.Pix, s.latest)
	return img, nil
}

func (s *Source) monitorBus(ctx context.Context) error {
	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return fmt.Errorf("end of stream")

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstreamer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"samples", s.samples.Load(),
			)
			return fmt.Errorf("pipeline error: %s", gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				old, cur := msg.ParseStateChanged()
				slog.Debug("gstreamer: pipeline state changed", "from", old, "to", cur)
			}
		}
	}
}

// Close stops the pipeline and the bus monitor.
func (s *Source) Close() error {
	s.cancel()
	s.wg.Wait()
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop capture pipeline: %w", err)
	}
	slog.Info("gstreamer: capture pipeline stopped", "samples", s.samples.Load())
	return nil
}
