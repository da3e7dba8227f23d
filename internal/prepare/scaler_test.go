package prepare

// Test Plan:
// - a wide image is scaled to full width and centered vertically on black
// - a square image fills the whole target
// - Scale writes every image of the directory under the same name into NxN/
// - non-image files are ignored, undecodable images are recorded as failed
// - a missing directory is an error
// - signed images resample by value: negatives stay negative, padding is 0

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

func uniform(w, h int, v uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, raster.Encode(f, raster.FromImage(img, false), raster.PNG))
}

func TestLetterboxWide(t *testing.T) {
	t.Parallel()

	out := Letterbox(uniform(8, 4, 1000), 16, draw.NearestNeighbor)
	require.Equal(t, image.Rect(0, 0, 16, 16), out.Bounds())

	// Scaled to 16x8, offset 4 rows
	assert.Equal(t, uint16(0), out.Gray16At(8, 0).Y)
	assert.Equal(t, uint16(0), out.Gray16At(8, 3).Y)
	assert.Equal(t, uint16(1000), out.Gray16At(8, 4).Y)
	assert.Equal(t, uint16(1000), out.Gray16At(0, 11).Y)
	assert.Equal(t, uint16(0), out.Gray16At(8, 12).Y)
}

func TestLetterboxTall(t *testing.T) {
	t.Parallel()

	out := Letterbox(uniform(2, 8, 7), 8, draw.NearestNeighbor)
	assert.Equal(t, uint16(0), out.Gray16At(2, 4).Y)
	assert.Equal(t, uint16(7), out.Gray16At(3, 4).Y)
	assert.Equal(t, uint16(7), out.Gray16At(4, 4).Y)
	assert.Equal(t, uint16(0), out.Gray16At(5, 4).Y)
}

func TestLetterboxSquare(t *testing.T) {
	t.Parallel()

	out := Letterbox(uniform(3, 3, 42), 9, draw.NearestNeighbor)
	for _, p := range []image.Point{{0, 0}, {8, 8}, {4, 4}} {
		assert.Equal(t, uint16(42), out.Gray16At(p.X, p.Y).Y)
	}
}

func TestScaleDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a_2.png"), uniform(10, 5, 300))
	writeImage(t, filepath.Join(dir, "b_unknown.png"), uniform(5, 5, 300))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	result, err := NewScaler(zerolog.Nop()).Scale(dir, 32)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "32x32"), result.Dir)
	assert.Equal(t, 2, result.Scaled)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, filepath.Join(dir, "broken.png"), result.Failed[0].Path)
	assert.True(t, errors.IsMalformedDocument(result.Failed[0]))

	f, err := os.Open(filepath.Join(result.Dir, "a_2.png"))
	require.NoError(t, err)
	defer f.Close()
	img, format, err := raster.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())

	_, err = os.Stat(filepath.Join(result.Dir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestScaleMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewScaler(zerolog.Nop()).Scale(filepath.Join(t.TempDir(), "missing"), 16)
	require.Error(t, err)
	assert.True(t, errors.IsInputDirectory(err))

	_, err = NewScaler(zerolog.Nop()).Scale(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestScaleSigned(t *testing.T) {
	t.Parallel()

	// Left half -2, right half 2; as unsigned these are 65534 and 2.
	src := raster.New(4, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			v := int32(2)
			if x < 2 {
				v = -2
			}
			src.Set(x, y, v)
		}
	}
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	require.NoError(t, raster.Encode(f, src, raster.PNG))
	require.NoError(t, f.Close())

	s := NewScaler(zerolog.Nop())
	s.Interpolator = draw.BiLinear
	s.Signed = true
	result, err := s.Scale(dir, 8)
	require.NoError(t, err)
	require.Equal(t, 1, result.Scaled)

	in, err := os.Open(filepath.Join(result.Dir, "a.png"))
	require.NoError(t, err)
	defer in.Close()
	img, _, err := raster.Decode(in)
	require.NoError(t, err)
	out := raster.FromImage(img, true)

	for i, v := range out.Pix {
		assert.GreaterOrEqual(t, v, int32(-2), "sample %d", i)
		assert.LessOrEqual(t, v, int32(2), "sample %d", i)
	}
	// 4x2 scales to 8x4 with two padding rows above and below.
	assert.Equal(t, int32(0), out.At(3, 0))
	assert.Equal(t, int32(0), out.At(3, 7))
	assert.Less(t, out.At(0, 3), int32(0))
	assert.Greater(t, out.At(7, 3), int32(0))
}
