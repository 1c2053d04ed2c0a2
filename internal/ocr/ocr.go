// Package ocr defines the digit recognition capability used by perception.
//
// Implementations receive already preprocessed (binarized, upscaled) images
// and return the raw recognized text; parsing is the caller's job.
package ocr

import (
	"image"
	"strconv"
	"strings"
)

// Mode selects the page segmentation the engine assumes.
type Mode int

const (
	// SingleWord treats the image as one word (elixir counter).
	SingleWord Mode = iota
	// SingleLine treats the image as one text line (tower HP).
	SingleLine
)

func (m Mode) String() string {
	switch m {
	case SingleWord:
		return "single_word"
	case SingleLine:
		return "single_line"
	default:
		return "unknown"
	}
}

// Digits is the character whitelist every reader applies.
const Digits = "0123456789"

// DigitReader recognizes digits in an image.
type DigitReader interface {
	ReadDigits(img image.Image, mode Mode) (string, error)
}

// ParseInt parses recognized text as a non-negative integer, trimming whitespace.
func ParseInt(text string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
