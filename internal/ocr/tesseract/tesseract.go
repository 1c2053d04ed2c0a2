// Package tesseract implements ocr.DigitReader on top of libtesseract.
package tesseract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/Desai0/CR-Neuro/internal/ocr"
)

// Reader wraps one gosseract client. The client is not safe for concurrent
// use, so calls are serialized.
type Reader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a reader for the given traineddata language (e.g. "eng").
func New(language string) (*Reader, error) {
	client := gosseract.NewClient()

	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR language %q: %w", language, err)
		}
	}
	if err := client.SetWhitelist(ocr.Digits); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR whitelist: %w", err)
	}

	slog.Info("tesseract reader ready", "language", language)

	return &Reader{client: client}, nil
}

// ReadDigits implements ocr.DigitReader.
func (r *Reader) ReadDigits(img image.Image, mode ocr.Mode) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode OCR input: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetPageSegMode(pageSegMode(mode)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation %s: %w", mode, err)
	}
	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load OCR input: %w", err)
	}

	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	return text, nil
}

// Close releases the tesseract handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

func pageSegMode(mode ocr.Mode) gosseract.PageSegMode {
	if mode == ocr.SingleWord {
		return gosseract.PSM_SINGLE_WORD
	}
	return gosseract.PSM_SINGLE_LINE
}
