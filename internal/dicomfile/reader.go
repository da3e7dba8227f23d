// Package dicomfile reads the identifiers and pixel data of DICOM image
// files.
package dicomfile

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

// Header carries the identifiers embedded in one image file.
type Header struct {
	PatientID string `json:"patient_id"`
	StudyUID  string `json:"study_uid"`
	SeriesUID string `json:"series_uid"`
	ImageUID  string `json:"image_uid"`
}

// Validate checks that the study, series and image identifiers are present.
func (h Header) Validate() error {
	switch {
	case h.StudyUID == "":
		return errors.NewFieldError("StudyInstanceUID", "image header", "")
	case h.SeriesUID == "":
		return errors.NewFieldError("SeriesInstanceUID", "image header", "")
	case h.ImageUID == "":
		return errors.NewFieldError("SOPInstanceUID", "image header", "")
	}
	return nil
}

// Image is a decoded image with its header.
type Image struct {
	Header Header
	Pixels *raster.Raster
	// Signed reports a PixelRepresentation of 1. Pixels already hold the
	// sign-extended values.
	Signed bool
}

// Reader reads DICOM files from disk.
type Reader struct{}

// NewReader creates a DICOM reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadHeader parses only the metadata of path; pixel data is skipped.
func (r *Reader) ReadHeader(path string) (Header, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return Header{}, errors.WrapParse("dicom", path, err)
	}
	h := headerFrom(ds)
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadImage parses path including the first frame of its pixel data.
func (r *Reader) ReadImage(path string) (*Image, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.WrapParse("dicom", path, err)
	}

	h := headerFrom(ds)
	if err := h.Validate(); err != nil {
		return nil, err
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.NewFieldError("PixelData", path, "")
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, errors.NewFieldError("PixelData", path, "has no frames")
	}

	fr := info.Frames[0]
	nf, err := fr.GetNativeFrame()
	if err != nil {
		return nil, errors.WrapParse("dicom", path, fmt.Errorf("pixel data: %w", err))
	}
	signed := intValue(ds, tag.PixelRepresentation) == 1
	pixels, err := rasterFromSamples(nf.Rows, nf.Cols, nf.Data, nf.BitsPerSample, signed)
	if err != nil {
		return nil, errors.WrapParse("dicom", path, err)
	}

	return &Image{
		Header: h,
		Pixels: pixels,
		Signed: signed,
	}, nil
}

func headerFrom(ds dicom.Dataset) Header {
	return Header{
		PatientID: stringValue(ds, tag.PatientID),
		StudyUID:  stringValue(ds, tag.StudyInstanceUID),
		SeriesUID: stringValue(ds, tag.SeriesInstanceUID),
		ImageUID:  stringValue(ds, tag.SOPInstanceUID),
	}
}

func stringValue(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(values[0]), "\x00")
}

func intValue(ds dicom.Dataset, t tag.Tag) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return -1
	}
	values, ok := elem.Value.GetValue().([]int)
	if !ok || len(values) == 0 {
		return -1
	}
	return values[0]
}

// rasterFromSamples converts native frame data, one sample slice per pixel,
// into a raster using the first sample of each pixel. The decoder yields
// samples as unsigned integers of bitsAllocated width; with signed set they
// are sign-extended from that width.
func rasterFromSamples(rows, cols int, data [][]int, bitsAllocated int, signed bool) (*raster.Raster, error) {
	if rows*cols != len(data) {
		return nil, fmt.Errorf("frame has %d pixels, want %dx%d", len(data), rows, cols)
	}
	r := raster.New(cols, rows)
	for i, px := range data {
		if len(px) == 0 {
			return nil, fmt.Errorf("pixel %d has no samples", i)
		}
		r.Pix[i] = sample(px[0], bitsAllocated, signed)
	}
	return r, nil
}

func sample(v, bitsAllocated int, signed bool) int32 {
	if !signed {
		return int32(v)
	}
	switch bitsAllocated {
	case 8:
		return int32(int8(v))
	case 16:
		return int32(int16(v))
	default:
		return int32(v)
	}
}
