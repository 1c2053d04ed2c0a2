package perception

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// cropRGBA returns the part of img inside r, clipped to the image bounds.
// The result shares pixels with img. ok is false when nothing is left.
func cropRGBA(img *image.RGBA, r image.Rectangle) (*image.RGBA, bool) {
	if img == nil {
		return nil, false
	}
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}
	return img.SubImage(r).(*image.RGBA), true
}

// upscale resizes img by factor with bicubic interpolation.
func upscale(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	w := uint(float64(b.Dx()) * factor)
	h := uint(float64(b.Dy()) * factor)
	if w == 0 || h == 0 {
		return img
	}
	return resize.Resize(w, h, img, resize.Bicubic)
}

// binarize converts img to grayscale and keeps only pixels brighter than
// threshold (white digits on black).
func binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y > threshold {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// hpScale is the upscale factor for an HP crop of the given height: large
// enough to reach minHeight, and never below minScale.
func hpScale(height, minHeight int, minScale float64) float64 {
	if height <= 0 {
		return minScale
	}
	return max(minScale, float64(minHeight)/float64(height))
}
