// Package prepare rescales extracted images to a fixed square size for
// model input. Aspect ratio is kept; the short side is padded with black.
package prepare

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

// Result is the outcome of scaling a directory.
type Result struct {
	Dir    string // {dir}/{size}x{size}
	Scaled int
	Failed []errors.FileError
}

// Scaler rescales every image of a directory.
type Scaler struct {
	Logger       zerolog.Logger
	Interpolator draw.Interpolator
	// Signed treats 16-bit samples as two's complement. They are shifted to
	// offset binary for resampling so negative values stay below positive
	// ones, and padding takes the value 0.
	Signed bool
}

// NewScaler creates a scaler using Catmull-Rom resampling.
func NewScaler(logger zerolog.Logger) *Scaler {
	return &Scaler{
		Logger:       logger.With().Str("component", "prepare").Logger(),
		Interpolator: draw.CatmullRom,
	}
}

// TargetDir returns the directory Scale writes into.
func TargetDir(dir string, size int) string {
	return filepath.Join(dir, fmt.Sprintf("%dx%d", size, size))
}

// Scale letterboxes every image file directly inside dir to size x size and
// writes it under the same name into TargetDir(dir, size). Subdirectories
// are not descended into. Files that fail to decode or encode are recorded
// and skipped.
func (s *Scaler) Scale(dir string, size int) (*Result, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid size %d", size)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewInputDirectoryError("images", dir, err)
	}

	result := &Result{Dir: TargetDir(dir, size)}
	if err := os.MkdirAll(result.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", result.Dir, err)
	}

	s.Logger.Info().Str("dir", dir).Int("size", size).Msg("Scaling images")
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, err := raster.ParseFormat(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))
		if err != nil {
			continue
		}

		src := filepath.Join(dir, entry.Name())
		if err := s.scaleFile(src, filepath.Join(result.Dir, entry.Name()), size, format); err != nil {
			s.Logger.Error().Err(err).Str("file", src).Msg("Failed to scale image")
			result.Failed = append(result.Failed, errors.FileError{Path: src, Err: err})
			continue
		}
		result.Scaled++
		s.Logger.Debug().Str("file", src).Int("count", result.Scaled).Msg("Scaled image")
	}

	s.Logger.Info().
		Int("scaled", result.Scaled).
		Int("failed", len(result.Failed)).
		Str("target", result.Dir).
		Msg("Scaling complete")
	return result, nil
}

func (s *Scaler) scaleFile(src, dst string, size int, format raster.Format) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	img, _, err := raster.Decode(in)
	in.Close()
	if err != nil {
		return errors.WrapParse(string(format), src, err)
	}

	var scaled *raster.Raster
	if s.Signed {
		scaled = raster.FromImage(letterbox(offsetBinary(img), size, s.Interpolator, signedZero), false)
		for i, v := range scaled.Pix {
			scaled.Pix[i] = v - 0x8000
		}
	} else {
		scaled = raster.FromImage(Letterbox(img, size, s.Interpolator), false)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := raster.Encode(out, scaled, format); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Letterbox scales img to fit a size x size square, keeping its aspect
// ratio and centering it on a black background.
func Letterbox(img image.Image, size int, interp draw.Interpolator) *image.Gray16 {
	return letterbox(img, size, interp, color.Gray16{})
}

// signedZero is 0 in offset binary.
var signedZero = color.Gray16{Y: 0x8000}

func letterbox(img image.Image, size int, interp draw.Interpolator, bg color.Gray16) *image.Gray16 {
	if interp == nil {
		interp = draw.CatmullRom
	}
	dst := image.NewGray16(image.Rect(0, 0, size, size))
	if bg.Y != 0 {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	b := img.Bounds()
	if b.Empty() {
		return dst
	}

	var w, h, offX, offY int
	if b.Dx() < b.Dy() {
		w, h = scaleSide(b.Dx(), size, b.Dy()), size
		offX = int(math.Round(float64(size-w) / 2))
	} else {
		w, h = size, scaleSide(b.Dy(), size, b.Dx())
		offY = int(math.Round(float64(size-h) / 2))
	}

	interp.Scale(dst, image.Rect(offX, offY, offX+w, offY+h), img, b, draw.Src, nil)
	return dst
}

// offsetBinary flips the sign bit of every 16-bit sample of img.
func offsetBinary(img image.Image) *image.Gray16 {
	b := img.Bounds()
	out := image.NewGray16(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out.SetGray16(x, y, color.Gray16{Y: g.Y ^ 0x8000})
		}
	}
	return out
}

// scaleSide returns round(side*size/long), at least 1.
func scaleSide(side, size, long int) int {
	return max(int(math.Round(float64(side)*float64(size)/float64(long))), 1)
}
