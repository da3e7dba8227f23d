// Package region cuts the masked region of interest described by a contour
// out of a raster.
package region

import (
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/geometry"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

// DefaultTolerance is the distance from the contour within which a pixel
// still belongs to the region.
const DefaultTolerance = 1.0

// Background is the value written to pixels outside the contour.
const Background int32 = 0

// Options configures extraction.
type Options struct {
	// Tolerance is the boundary inclusion distance in pixels.
	Tolerance float64
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance}
}

// Extract returns the smallest crop of img holding the filled contour, with
// every pixel outside the contour set to Background. Interior pixels are
// copied unchanged. A contour without area, or whose crop is empty, fails
// with errors.ErrDegenerateRegion.
//
// Pixels outside the crop window are never tested since cropping discards
// them regardless of the mask.
func Extract(img *raster.Raster, points []nodule.Point, opts Options) (*raster.Raster, error) {
	window := geometry.Bounds(points).Intersect(img.Width, img.Height)
	if window.Empty() {
		return nil, errors.NewRegionError(max(window.Dx(), 0), max(window.Dy(), 0))
	}

	poly := geometry.NewPolygon(points, opts.Tolerance)
	if poly.Degenerate() {
		return nil, errors.NewRegionError(window.Dx(), window.Dy())
	}

	out := img.Crop(window)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			if !poly.Contains(float64(window.MinX+x), float64(window.MinY+y)) {
				out.Set(x, y, Background)
			}
		}
	}
	return out, nil
}

// Mask returns a full-size copy of img with every pixel outside the contour
// set to Background.
func Mask(img *raster.Raster, points []nodule.Point, opts Options) *raster.Raster {
	out := img.Clone()
	poly := geometry.NewPolygon(points, opts.Tolerance)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			if !poly.Contains(float64(x), float64(y)) {
				out.Set(x, y, Background)
			}
		}
	}
	return out
}
