// Package raster is the single-channel integer grid that pixels travel in
// between the image reader, the region extractor and the encoders.
package raster

import (
	"fmt"

	"github.com/mvp-joe/nodule-extract/internal/geometry"
)

// Raster is a row-major grid of signed samples.
type Raster struct {
	Width  int
	Height int
	Pix    []int32
}

// New creates a zero-filled raster.
func New(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]int32, width*height)}
}

// FromRows builds a raster from rows of samples. Every row must have the
// same length.
func FromRows(rows [][]int) (*Raster, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	r := New(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != r.Width {
			return nil, fmt.Errorf("row %d has %d samples, want %d", y, len(row), r.Width)
		}
		for x, v := range row {
			r.Pix[y*r.Width+x] = int32(v)
		}
	}
	return r, nil
}

// At returns the sample at (x, y).
func (r *Raster) At(x, y int) int32 {
	return r.Pix[y*r.Width+x]
}

// Set stores v at (x, y).
func (r *Raster) Set(x, y int, v int32) {
	r.Pix[y*r.Width+x] = v
}

// Rect returns the full extent of the raster.
func (r *Raster) Rect() geometry.Rect {
	return geometry.Rect{MaxX: r.Width, MaxY: r.Height}
}

// Crop copies the [MinX,MaxX) x [MinY,MaxY) window after clipping it to the
// raster.
func (r *Raster) Crop(rect geometry.Rect) *Raster {
	rect = rect.Intersect(r.Width, r.Height)
	if rect.Empty() {
		return New(0, 0)
	}
	out := New(rect.Dx(), rect.Dy())
	for y := 0; y < out.Height; y++ {
		src := (rect.MinY+y)*r.Width + rect.MinX
		copy(out.Pix[y*out.Width:(y+1)*out.Width], r.Pix[src:src+out.Width])
	}
	return out
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := New(r.Width, r.Height)
	copy(out.Pix, r.Pix)
	return out
}

// MinMax returns the smallest and largest sample.
func (r *Raster) MinMax() (lo, hi int32) {
	if len(r.Pix) == 0 {
		return 0, 0
	}
	lo, hi = r.Pix[0], r.Pix[0]
	for _, v := range r.Pix[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// Bytes returns the approximate memory footprint, used to weigh cache entries.
func (r *Raster) Bytes() int {
	return len(r.Pix)*4 + 32
}
