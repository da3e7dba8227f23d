package pipeline

// Test Plan:
// - one square nodule with a diagnosed patient writes exactly two files, the
//   crop named with malignancy "2", and a manifest holding one nodule with
//   one slice
// - a degenerate contour writes no file and leaves the nodule out of the manifest
// - unknown series and image uids are counted as unresolved, not fatal
// - a patient without a diagnosis is warned about once and named "unknown"
// - skip_unclassified drops slices of undiagnosed patients
// - a missing input directory is fatal, as is an output directory locked by another run
// - a second run over the same inputs is served from the stage cache
// - file names carry the signed, zero-padded z position

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/nodule-extract/internal/cache"
	"github.com/mvp-joe/nodule-extract/internal/dicomfile"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/logging"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/raster"
	"github.com/mvp-joe/nodule-extract/internal/runlock"
)

const (
	study  = "1.3.6.1.4.1.14519.5.2.1.6279.6001.1"
	series = "1.3.6.1.4.1.14519.5.2.1.6279.6001.2"
)

// fakeReader serves headers and 16x16 images by file base name.
type fakeReader struct {
	headers map[string]dicomfile.Header
	reads   atomic.Int32
}

func (f *fakeReader) ReadHeader(path string) (dicomfile.Header, error) {
	h, ok := f.headers[filepath.Base(path)]
	if !ok {
		return dicomfile.Header{}, errors.WrapParse("dicom", path, os.ErrInvalid)
	}
	return h, nil
}

func (f *fakeReader) ReadImage(path string) (*dicomfile.Image, error) {
	f.reads.Add(1)
	h, err := f.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	img := raster.New(16, 16)
	for i := range img.Pix {
		img.Pix[i] = int32(i + 1)
	}
	return &dicomfile.Image{Header: h, Pixels: img}, nil
}

type slice struct {
	uid    string
	z      float64
	points []nodule.Point
}

func annotationXML(nodules map[string][]slice) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><LidcReadMessage><ResponseHeader>`)
	fmt.Fprintf(&b, "<StudyInstanceUID>%s</StudyInstanceUID><SeriesInstanceUid>%s</SeriesInstanceUid>", study, series)
	b.WriteString("</ResponseHeader><readingSession>")
	for id, slices := range nodules {
		fmt.Fprintf(&b, "<unblindedReadNodule><noduleID>%s</noduleID>", id)
		for _, s := range slices {
			fmt.Fprintf(&b, "<roi><imageZposition>%g</imageZposition><imageSOP_UID>%s</imageSOP_UID><inclusion>TRUE</inclusion>", s.z, s.uid)
			for _, p := range s.points {
				fmt.Fprintf(&b, "<edgeMap><xCoord>%d</xCoord><yCoord>%d</yCoord></edgeMap>", p.X, p.Y)
			}
			b.WriteString("</roi>")
		}
		b.WriteString("</unblindedReadNodule>")
	}
	b.WriteString("</readingSession></LidcReadMessage>")
	return b.String()
}

type fixture struct {
	cfg    *Config
	reader *fakeReader
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, nodules map[string][]slice, diagnosisCSV string, headers map[string]dicomfile.Header) *fixture {
	t.Helper()
	root := t.TempDir()
	dirs := []string{"xml", "diagnosis", "images"}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "xml", "069.xml"), []byte(annotationXML(nodules)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "diagnosis", "diagnosis.csv"), []byte(diagnosisCSV), 0644))
	for name := range headers {
		require.NoError(t, os.WriteFile(filepath.Join(root, "images", name), nil, 0644))
	}

	cfg := DefaultConfig(
		filepath.Join(root, "xml"),
		filepath.Join(root, "diagnosis"),
		filepath.Join(root, "images"),
		filepath.Join(root, "out"),
	)
	cfg.Workers = 2
	return &fixture{cfg: cfg, reader: &fakeReader{headers: headers}, logs: &bytes.Buffer{}}
}

func (f *fixture) orchestrator() *Orchestrator {
	o := New(f.cfg, logging.NewWriter(f.logs, zerolog.InfoLevel))
	o.Reader = f.reader
	return o
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var square = []nodule.Point{{X: 4, Y: 4}, {X: 4, Y: 8}, {X: 8, Y: 8}, {X: 8, Y: 4}}

func header(patient, uid string) dicomfile.Header {
	return dicomfile.Header{PatientID: patient, StudyUID: study, SeriesUID: series, ImageUID: uid}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{"Nodule 001": {{uid: "1.1", z: -125.5, points: square}}},
		"LIDC-IDRI-0069,2\n",
		map[string]dicomfile.Header{"000001.dcm": header("LIDC-IDRI-0069", "1.1")},
	)
	o := f.orchestrator()
	o.Metrics = metrics.New()

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	n := nodule.New(study, series, "1")
	s := nodule.NewSlice("1.1", -125.5, square)

	full := listDir(t, filepath.Join(f.cfg.OutputDir, FullDir))
	crops := listDir(t, filepath.Join(f.cfg.OutputDir, NodulesDir))
	assert.Equal(t, []string{FullImageName(n, s, raster.PNG)}, full)
	require.Len(t, crops, 1)
	assert.Equal(t, NoduleImageName(n, s, "2", raster.PNG), crops[0])
	assert.True(t, strings.HasSuffix(crops[0], "_2.png"))

	// Crop is the 4x4 square, copied bit-exact
	file, err := os.Open(filepath.Join(f.cfg.OutputDir, NodulesDir, crops[0]))
	require.NoError(t, err)
	defer file.Close()
	img, _, err := raster.Decode(file)
	require.NoError(t, err)
	roi := raster.FromImage(img, false)
	assert.Equal(t, 4, roi.Width)
	assert.Equal(t, 4, roi.Height)
	assert.Equal(t, int32(4*16+4+1), roi.At(0, 0))

	require.Equal(t, 1, result.Manifest.Len())
	got, ok := result.Manifest.Get(n.Key())
	require.True(t, ok)
	assert.Equal(t, "2", got.Malignancy)
	assert.Equal(t, 1, got.Len())

	m, err := ReadManifest(filepath.Join(f.cfg.OutputDir, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, result.RunID.String(), m.RunID)
	require.Len(t, m.Nodules, 1)
	assert.Equal(t, "1", m.Nodules[0].NoduleID)
	assert.Len(t, m.Nodules[0].Slices, 1)

	assert.Equal(t, 1, result.Summary.ExtractedNodules)
	assert.Equal(t, 1, result.Summary.ExtractedSlices)
	assert.Equal(t, 2, result.Summary.FilesWritten)
	assert.Equal(t, 0, result.Summary.Failed())
	assert.Equal(t, 1.0, o.Metrics.Value("nodules_slice_extractions_total", map[string]string{"result": "extracted"}))
}

func TestRunDegenerateWritesNothing(t *testing.T) {
	t.Parallel()

	line := []nodule.Point{{X: 2, Y: 2}, {X: 6, Y: 6}, {X: 10, Y: 10}}
	f := newFixture(t,
		map[string][]slice{"3": {{uid: "1.1", z: 10, points: line}}},
		"LIDC-IDRI-0069,1\n",
		map[string]dicomfile.Header{"000001.dcm": header("LIDC-IDRI-0069", "1.1")},
	)

	result, err := f.orchestrator().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, listDir(t, filepath.Join(f.cfg.OutputDir, NodulesDir)))
	assert.Empty(t, listDir(t, filepath.Join(f.cfg.OutputDir, FullDir)))
	assert.Equal(t, 0, result.Manifest.Len())
	assert.Equal(t, 1, result.Summary.Degenerate)
	assert.Contains(t, f.logs.String(), "Failed to extract region")
}

func TestRunUnresolvedReferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{
			"1": {
				{uid: "1.1", z: 1, points: square},
				{uid: "9.9", z: 2, points: square}, // not indexed
			},
		},
		"LIDC-IDRI-0069,3\n",
		map[string]dicomfile.Header{
			"000001.dcm": header("LIDC-IDRI-0069", "1.1"),
			// Same study, other series: nodule series still resolves
			"000002.dcm": {PatientID: "LIDC-IDRI-0069", StudyUID: study, SeriesUID: "other", ImageUID: "2.2"},
		},
	)

	result, err := f.orchestrator().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.Unresolved)
	assert.Equal(t, 1, result.Summary.ExtractedSlices)
	assert.Len(t, listDir(t, filepath.Join(f.cfg.OutputDir, NodulesDir)), 1)
	assert.Contains(t, f.logs.String(), "no image file found for image 9.9")
}

func TestRunUnknownSeriesSkipsNodule(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{"1": {{uid: "1.1", z: 1, points: square}}},
		"LIDC-IDRI-0069,3\n",
		map[string]dicomfile.Header{
			"000001.dcm": {PatientID: "LIDC-IDRI-0069", StudyUID: "another-study", SeriesUID: series, ImageUID: "1.1"},
		},
	)

	result, err := f.orchestrator().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Unresolved)
	assert.Equal(t, 0, result.Manifest.Len())
	assert.Contains(t, f.logs.String(), "no image file found for study")
}

func TestRunUnclassifiedWarnsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{
			"1": {{uid: "1.1", z: 1, points: square}, {uid: "1.2", z: 2, points: square}},
			"2": {{uid: "1.2", z: 2, points: square}},
		},
		"LIDC-IDRI-0001,1\n",
		map[string]dicomfile.Header{
			"000001.dcm": header("LIDC-IDRI-0069", "1.1"),
			"000002.dcm": header("LIDC-IDRI-0069", "1.2"),
		},
	)

	result, err := f.orchestrator().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(f.logs.String(), "Diagnosis not found"))
	assert.Equal(t, 1, result.Summary.Unclassified)
	assert.Equal(t, 3, result.Summary.ExtractedSlices)
	for _, name := range listDir(t, filepath.Join(f.cfg.OutputDir, NodulesDir)) {
		assert.True(t, strings.HasSuffix(name, "_unknown.png"), name)
	}
}

func TestRunSkipUnclassified(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{"1": {{uid: "1.1", z: 1, points: square}}},
		"",
		map[string]dicomfile.Header{"000001.dcm": header("LIDC-IDRI-0069", "1.1")},
	)
	f.cfg.SkipUnclassified = true
	f.cfg.ExportFull = false

	result, err := f.orchestrator().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Manifest.Len())
	assert.Equal(t, 1, result.Summary.SkippedSlices)
	assert.Empty(t, listDir(t, filepath.Join(f.cfg.OutputDir, NodulesDir)))
	assert.NoDirExists(t, filepath.Join(f.cfg.OutputDir, FullDir))
}

func TestRunMissingInputDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, "", nil)
	f.cfg.ImagesDir = filepath.Join(t.TempDir(), "missing")

	_, err := f.orchestrator().Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInputDirectory(err))
}

func TestRunOutputLocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, "", nil)
	held := runlock.New(f.cfg.OutputDir)
	require.NoError(t, held.Acquire())
	t.Cleanup(func() { held.Release() })

	_, err := f.orchestrator().Run(context.Background())
	assert.ErrorIs(t, err, runlock.ErrLocked)
}

func TestRunUsesStageCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		map[string][]slice{"1": {{uid: "1.1", z: 1, points: square}}},
		"LIDC-IDRI-0069,4\n",
		map[string]dicomfile.Header{"000001.dcm": header("LIDC-IDRI-0069", "1.1")},
	)
	db := cache.NewTestDB(t)

	first := f.orchestrator()
	first.Store = db
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	second := f.orchestrator()
	second.Store = db
	second.Metrics = metrics.New()
	result, err := second.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"annotations", "diagnosis", "images"}, result.Summary.CachedStages)
	assert.Equal(t, 1, result.Summary.ExtractedSlices)
	assert.Equal(t, 1.0, second.Metrics.Value("nodules_cache_lookups_total", map[string]string{"stage": "images", "result": "hit"}))

	data, ok, err := db.Get("extracted", f.cfg.OutputDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(data), `"malignancy":"4"`)
}

func TestImageNames(t *testing.T) {
	t.Parallel()

	n := nodule.New("S", "R", "7")
	s := nodule.NewSlice("U", -12.25, square)
	assert.Equal(t, "S_R_-000012.25_7_U_full.tiff", FullImageName(n, s, raster.TIFF))
	assert.Equal(t, "S_R_+000012.50_7_U_5.bmp", NoduleImageName(n, nodule.NewSlice("U", 12.5, square), "5", raster.BMP))
}
