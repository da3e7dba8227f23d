package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output file format.
type Format string

const (
	// PNG and TIFF store the low 16 bits of every sample, bit-exact.
	PNG  Format = "png"
	TIFF Format = "tiff"
	// BMP stores an 8-bit rendering windowed to the raster's value range.
	BMP Format = "bmp"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case PNG, TIFF, BMP:
		return f, nil
	case "tif":
		return TIFF, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Gray16 converts r to a 16-bit image holding the low 16 bits of each
// sample. Signed samples keep their two's complement pattern.
func (r *Raster) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(r.At(x, y))})
		}
	}
	return img
}

// Gray converts r to an 8-bit image, mapping [min,max] linearly to [0,255].
func (r *Raster) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	lo, hi := r.MinMax()
	span := int64(hi) - int64(lo)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			var v uint8
			if span > 0 {
				v = uint8((int64(r.At(x, y)) - int64(lo)) * 255 / span)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// Encode writes r in the given format.
func Encode(w io.Writer, r *Raster, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, r.Gray16())
	case TIFF:
		return tiff.Encode(w, r.Gray16(), &tiff.Options{Compression: tiff.Deflate})
	case BMP:
		return bmp.Encode(w, r.Gray())
	default:
		return fmt.Errorf("unsupported image format %q", f)
	}
}

// FromImage converts a decoded image back into a raster. With signed set,
// 16-bit samples are read as two's complement.
func FromImage(img image.Image, signed bool) *Raster {
	b := img.Bounds()
	r := New(b.Dx(), b.Dy())
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			if signed {
				r.Set(x, y, int32(int16(g.Y)))
			} else {
				r.Set(x, y, int32(g.Y))
			}
		}
	}
	return r
}

// Decode reads any image format the package can write.
func Decode(rd io.Reader) (image.Image, string, error) {
	return image.Decode(rd)
}
