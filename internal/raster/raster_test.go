package raster

// Test Plan:
// - FromRows rejects ragged input
// - Crop copies the requested window and clips to the raster
// - PNG and TIFF round trips are bit-exact for signed 16-bit samples
// - BMP output maps the value range onto 8 bits
// - ParseFormat accepts known names only

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/nodule-extract/internal/geometry"
)

func sample(t *testing.T) *Raster {
	t.Helper()
	r, err := FromRows([][]int{
		{-1024, -500, 0, 12},
		{40, 3071, -2048, 7},
		{1, 2, 3, 4},
	})
	require.NoError(t, err)
	return r
}

func TestFromRows(t *testing.T) {
	t.Parallel()

	r := sample(t)
	assert.Equal(t, 4, r.Width)
	assert.Equal(t, 3, r.Height)
	assert.Equal(t, int32(3071), r.At(1, 1))

	_, err := FromRows([][]int{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestCrop(t *testing.T) {
	t.Parallel()

	r := sample(t)
	c := r.Crop(geometry.Rect{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3})
	assert.Equal(t, []int32{3071, -2048, 2, 3}, c.Pix)

	clipped := r.Crop(geometry.Rect{MinX: 2, MinY: 2, MaxX: 10, MaxY: 10})
	assert.Equal(t, 2, clipped.Width)
	assert.Equal(t, 1, clipped.Height)

	assert.Zero(t, r.Crop(geometry.Rect{MinX: 5, MaxX: 5, MaxY: 2}).Width)

	// Crop never aliases the source
	c.Set(0, 0, 0)
	assert.Equal(t, int32(3071), r.At(1, 1))
}

func TestRoundTrip16Bit(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{PNG, TIFF} {
		t.Run(string(f), func(t *testing.T) {
			t.Parallel()

			r := sample(t)
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, r, f))

			img, format, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, string(f), format)
			assert.Equal(t, r.Pix, FromImage(img, true).Pix)
		})
	}
}

func TestBMPWindowed(t *testing.T) {
	t.Parallel()

	r, err := FromRows([][]int{{-100, 0, 100}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, r, BMP))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)

	got := FromImage(img, false)
	assert.Equal(t, int32(0), got.At(0, 0))
	assert.Equal(t, int32(0xffff), got.At(2, 0))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("TIF")
	require.NoError(t, err)
	assert.Equal(t, TIFF, f)
	assert.Equal(t, "png", PNG.Extension())

	_, err = ParseFormat("jpeg")
	assert.Error(t, err)
}

func TestMinMax(t *testing.T) {
	t.Parallel()

	lo, hi := sample(t).MinMax()
	assert.Equal(t, int32(-2048), lo)
	assert.Equal(t, int32(3071), hi)

	lo, hi = New(0, 0).MinMax()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}
