// Package diagnosis loads the patient to diagnosis code table.
package diagnosis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
	"github.com/mvp-joe/nodule-extract/internal/progress"
)

// Table maps patient ids to diagnosis codes.
type Table map[string]string

// Lookup returns the diagnosis of a patient.
func (t Table) Lookup(patientID string) (string, bool) {
	code, ok := t[patientID]
	return code, ok
}

// Patients returns the patient ids in sorted order.
func (t Table) Patients() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Result is the outcome of loading a diagnosis directory.
type Result struct {
	Table  Table              `json:"table"`
	Failed []errors.FileError `json:"-"`
	Files  int                `json:"files"`
}

// Loader loads every diagnosis file under a directory.
type Loader struct {
	Discovery *discovery.Discovery
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Progress  progress.Reporter
}

// NewLoader creates a loader using the given file patterns.
func NewLoader(patterns, ignore []string, logger zerolog.Logger) (*Loader, error) {
	d, err := discovery.New(patterns, ignore)
	if err != nil {
		return nil, err
	}
	return &Loader{
		Discovery: d,
		Logger:    logger.With().Str("component", progress.StageDiagnosis).Logger(),
	}, nil
}

// Load reads every matching file under dir. A file is committed to the
// table only when all of its rows parse, so a bad row discards the rows
// before it in the same file as well.
func (l *Loader) Load(dir string) (*Result, error) {
	start := time.Now()
	reporter := progress.OrNoOp(l.Progress)

	files, err := l.Discovery.Discover(dir)
	if err != nil {
		return nil, errors.NewInputDirectoryError(progress.StageDiagnosis, dir, err)
	}
	reporter.OnStageStart(progress.StageDiagnosis, len(files))

	result := &Result{Table: make(Table), Files: len(files)}
	for _, path := range files {
		rows, err := readFile(path)
		l.Metrics.File(progress.StageDiagnosis, err)
		if err != nil {
			l.Logger.Error().Err(err).Str("file", path).Msg("Failed to load diagnosis file")
			result.Failed = append(result.Failed, errors.FileError{Path: path, Err: err})
			reporter.OnFileProcessed(progress.StageDiagnosis, path)
			continue
		}
		l.commit(result.Table, rows, path)
		reporter.OnFileProcessed(progress.StageDiagnosis, path)
	}

	l.Metrics.Records("patients", len(result.Table))
	l.Logger.Info().
		Int("files", len(files)).
		Int("failed", len(result.Failed)).
		Int("patients", len(result.Table)).
		Msg("Diagnoses loaded")
	reporter.OnStageComplete(progress.StageDiagnosis, len(result.Table), time.Since(start))
	return result, nil
}

// Row is one parsed diagnosis record.
type Row struct {
	PatientID string
	Code      string
	Line      int
}

func (l *Loader) commit(table Table, rows []Row, path string) {
	for _, r := range rows {
		if prev, ok := table[r.PatientID]; ok {
			l.Metrics.Duplicate(progress.StageDiagnosis)
			l.Logger.Warn().
				Str("patient", r.PatientID).
				Str("previous", prev).
				Str("code", r.Code).
				Str("file", path).
				Int("line", r.Line).
				Msg("Duplicate diagnosis, keeping the later row")
		}
		table[r.PatientID] = r.Code
	}
}

func readFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := Parse(f)
	var perr *errors.ParseError
	if errors.As(err, &perr) {
		perr.File = path
	}
	return rows, err
}

// Parse reads headerless two-column rows. Any other column count, an empty
// line included, is a missing field error for the whole input.
func Parse(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapParse("csv", "", err)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// encoding/csv drops empty lines, so they are found as gaps between the
	// line a record starts on and the line the previous one ended on.
	var rows []Row
	next := 1
	var consumed int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			if consumed < int64(len(data)) {
				return nil, emptyLine(next)
			}
			break
		}
		if err != nil {
			return nil, errors.WrapParse("csv", "", err)
		}

		line, _ := reader.FieldPos(0)
		if line != next {
			return nil, emptyLine(next)
		}
		end := reader.InputOffset()
		next += bytes.Count(data[consumed:end], []byte{'\n'})
		consumed = end

		if len(record) != 2 {
			return nil, errors.NewFieldError("columns", fmt.Sprintf("line %d", line),
				fmt.Sprintf("has %d values, want 2", len(record)))
		}

		id := strings.TrimSpace(record[0])
		code := strings.TrimSpace(record[1])
		if id == "" {
			return nil, errors.NewFieldError("patient_id", fmt.Sprintf("line %d", line), "")
		}
		if code == "" {
			return nil, errors.NewFieldError("diagnosis_code", fmt.Sprintf("line %d", line), "")
		}
		rows = append(rows, Row{PatientID: id, Code: code, Line: line})
	}
	return rows, nil
}

func emptyLine(line int) error {
	return errors.NewFieldError("columns", fmt.Sprintf("line %d", line), "has 0 values, want 2")
}
