package perception

import (
	"image"
	"math"
	"slices"

	"github.com/Desai0/CR-Neuro/internal/ocr"
	"github.com/Desai0/CR-Neuro/internal/types"
)

// nearestTower finds the detection of one of the given tower classes whose
// center is closest to hpBox. The match must be strictly inside the proximity
// radius.
func (e *Engine) nearestTower(detections []types.Detection, classes []string, hpBox types.Box) (types.Detection, bool) {
	var (
		best     types.Detection
		bestDist = math.Inf(1)
	)

	for _, d := range detections {
		if !slices.Contains(classes, d.Class) {
			continue
		}
		if dist := types.CenterDistance(hpBox, d.Box); dist < bestDist {
			best, bestDist = d, dist
		}
	}

	if bestDist >= e.cfg.HPProximity {
		return types.Detection{}, false
	}
	return best, true
}

// hpRect trims the indicator box down to its digits using the per-class
// margins. ok is false when the margins leave nothing.
func (e *Engine) hpRect(label string, box types.Box) (image.Rectangle, bool) {
	c := e.cfg.HPCrops[label]

	x1, y1 := box.X1+c.Left, box.Y1+c.Top
	x2, y2 := box.X2-c.Right, box.Y2-c.Bottom
	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, false
	}
	return image.Rect(x1, y1, x2, y2), true
}

// readHP crops, preprocesses and OCRs one HP indicator.
func (e *Engine) readHP(img *image.RGBA, hp types.Detection) (int, bool) {
	rect, ok := e.hpRect(hp.Class, hp.Box)
	if !ok {
		return 0, false
	}
	region, ok := cropRGBA(img, rect)
	if !ok {
		return 0, false
	}

	scale := hpScale(region.Bounds().Dy(), e.cfg.HPMinHeight, e.cfg.HPMinScale)
	prepared := binarize(upscale(region, scale), e.cfg.HPCrops[hp.Class].Threshold)

	text, err := e.reader.ReadDigits(prepared, ocr.SingleLine)
	if err != nil {
		e.logger.Debug("hp ocr failed", "class", hp.Class, "error", err)
		return 0, false
	}

	value, ok := ocr.ParseInt(text)
	if !ok {
		e.logger.Debug("hp reading rejected", "class", hp.Class, "text", text)
		return 0, false
	}
	return value, true
}
