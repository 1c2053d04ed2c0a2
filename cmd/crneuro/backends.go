package main

import (
	"fmt"
	"log/slog"

	"github.com/Desai0/CR-Neuro/internal/actuator"
	"github.com/Desai0/CR-Neuro/internal/actuator/robotgo"
	"github.com/Desai0/CR-Neuro/internal/capture"
	"github.com/Desai0/CR-Neuro/internal/capture/gstreamer"
	"github.com/Desai0/CR-Neuro/internal/capture/screenshot"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/core"
	"github.com/Desai0/CR-Neuro/internal/detector"
	"github.com/Desai0/CR-Neuro/internal/ocr/tesseract"
)

// buildComponents creates the adapters selected by cfg. On error, anything
// already created is released.
func buildComponents(cfg *config.Config) (comps core.Components, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	switch cfg.Capture.Backend {
	case "screenshot":
		src, err := screenshot.New(cfg.Capture.Region)
		if err != nil {
			return comps, err
		}
		comps.Capture = src
	case "gstreamer":
		src, err := gstreamer.New(gstreamer.Config{
			Display: cfg.Capture.Display,
			Region:  cfg.Capture.Region,
			FPS:     cfg.Capture.FPS,
		})
		if err != nil {
			return comps, err
		}
		comps.Capture = src
	case "mock":
		comps.Capture = capture.NewMockSource(cfg.Capture.Region.Width, cfg.Capture.Region.Height)
	default:
		return comps, fmt.Errorf("unknown capture backend '%s'", cfg.Capture.Backend)
	}
	closers = append(closers, comps.Capture.Close)

	det, err := detector.NewPythonWorker(detector.PythonConfig{
		WorkerID:       "yolo-detector",
		Command:        cfg.Detector.Command,
		ModelPath:      cfg.Detector.ModelPath,
		Confidence:     cfg.Detector.Confidence,
		RequestTimeout: cfg.Detector.RequestTimeout(),
	})
	if err != nil {
		return comps, fmt.Errorf("failed to create detector: %w", err)
	}
	comps.Detector = det

	reader, err := tesseract.New(cfg.OCR.Language)
	if err != nil {
		return comps, fmt.Errorf("failed to create ocr reader: %w", err)
	}
	comps.OCR = reader
	closers = append(closers, reader.Close)

	switch cfg.Action.Backend {
	case "robotgo":
		comps.Actuator = robotgo.New(cfg.Action.CardSlots, cfg.Action.ClickPause())
	case "dry_run":
		slog.Warn("dry run actuator selected, cards will not be played")
		comps.Actuator = actuator.NewRecorder()
	default:
		return comps, fmt.Errorf("unknown action backend '%s'", cfg.Action.Backend)
	}

	return comps, nil
}
