package visual

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/orisano/pixelmatch"
)

// Result is the outcome of comparing two screenshots
type Result struct {
	Mismatch int
	Width    int
	Height   int
	Diff     image.Image
}

// Compare counts the pixels that differ between a and b over their common
// area. Pixels whose YIQ distance exceeds threshold (0..1) are mismatches
// unless they look like anti-aliasing. Diff paints mismatches red,
// anti-aliased pixels yellow and the rest as faded grayscale of a.
func Compare(a, b image.Image, threshold float64) (Result, error) {
	width := min(a.Bounds().Dx(), b.Bounds().Dx())
	height := min(a.Bounds().Dy(), b.Bounds().Dy())

	var diff image.Image
	mismatch, err := pixelmatch.MatchPixel(crop(a, width, height), crop(b, width, height),
		pixelmatch.Threshold(threshold),
		pixelmatch.WriteTo(&diff),
	)
	if err != nil {
		return Result{}, fmt.Errorf("compare screenshots: %w", err)
	}
	return Result{Mismatch: mismatch, Width: width, Height: height, Diff: diff}, nil
}

// crop copies the top-left width x height area of img into a new image
func crop(img image.Image, width, height int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
