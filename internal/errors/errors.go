// Package errors defines the failure taxonomy of the extraction pipeline.
// Every per-record failure is one of the sentinel kinds below so callers can
// classify it with errors.Is while still getting a descriptive message.
package errors

import (
	"errors"
	"fmt"
)

// New is the standard library errors.New, re-exported for convenience.
var New = errors.New

// Is, As and Join are re-exported so packages importing this one don't need
// to alias the standard library.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

var (
	// ErrMalformedDocument indicates a source file with unparsable syntax.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrMissingRequiredField indicates a mandatory key absent from an otherwise-parsed record.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrDuplicateKey indicates a key seen twice. Only ever logged, last write wins.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDegenerateRegion indicates a contour too small to crop.
	ErrDegenerateRegion = errors.New("degenerate region")

	// ErrUnresolvedReference indicates a study, series or image missing from the image index.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrUnclassifiedPatient indicates a patient without a diagnosis.
	ErrUnclassifiedPatient = errors.New("unclassified patient")

	// ErrInputDirectory indicates an input root that cannot be read. This is the only fatal kind.
	ErrInputDirectory = errors.New("unreadable input directory")
)

// ParseError represents a document that could not be parsed at all.
type ParseError struct {
	Format string // "xml", "csv", "dicom"
	File   string
	Err    error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("malformed %s document %s: %v", e.Format, e.File, e.Err)
	}
	return fmt.Sprintf("malformed %s document: %v", e.Format, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, err error) *ParseError {
	return &ParseError{Format: format, File: file, Err: err}
}

// FieldError represents a required field that is absent or unusable.
type FieldError struct {
	Field   string
	Record  string // human readable description of the record holding the field
	Message string
}

// Error implements the error interface
func (e *FieldError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "is not present"
	}
	if e.Record != "" {
		return fmt.Sprintf("field %s %s in %s", e.Field, msg, e.Record)
	}
	return fmt.Sprintf("field %s %s", e.Field, msg)
}

// Is implements errors.Is support
func (e *FieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// NewFieldError creates a new FieldError
func NewFieldError(field, record, message string) *FieldError {
	return &FieldError{Field: field, Record: record, Message: message}
}

// ReferenceError represents a lookup into the image index that found nothing.
type ReferenceError struct {
	Level string // "study", "series" or "image"
	Key   string
}

// Error implements the error interface
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("no image file found for %s %s", e.Level, e.Key)
}

// Is implements errors.Is support
func (e *ReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference
}

// NewReferenceError creates a new ReferenceError
func NewReferenceError(level, key string) *ReferenceError {
	return &ReferenceError{Level: level, Key: key}
}

// RegionError represents a contour whose crop has no area.
type RegionError struct {
	Width  int
	Height int
}

// Error implements the error interface
func (e *RegionError) Error() string {
	return fmt.Sprintf("contour too small to crop: %dx%d", e.Width, e.Height)
}

// Is implements errors.Is support
func (e *RegionError) Is(target error) bool {
	return target == ErrDegenerateRegion
}

// NewRegionError creates a new RegionError
func NewRegionError(width, height int) *RegionError {
	return &RegionError{Width: width, Height: height}
}

// FileError ties a failure to the file it happened in. Loaders collect these
// instead of aborting the directory walk.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e FileError) Unwrap() error {
	return e.Err
}

// InputDirectoryError reports a fatal problem with an input root.
type InputDirectoryError struct {
	Source string // "annotations", "diagnosis", "images"
	Path   string
	Err    error
}

// Error implements the error interface
func (e *InputDirectoryError) Error() string {
	return fmt.Sprintf("%s directory %s: %v", e.Source, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *InputDirectoryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *InputDirectoryError) Is(target error) bool {
	return target == ErrInputDirectory
}

// NewInputDirectoryError creates a new InputDirectoryError
func NewInputDirectoryError(source, path string, err error) *InputDirectoryError {
	return &InputDirectoryError{Source: source, Path: path, Err: err}
}

// Helper functions for error checking

// IsMalformedDocument checks if an error is a parse failure
func IsMalformedDocument(err error) bool {
	return errors.Is(err, ErrMalformedDocument)
}

// IsMissingRequiredField checks if an error is a missing field failure
func IsMissingRequiredField(err error) bool {
	return errors.Is(err, ErrMissingRequiredField)
}

// IsDegenerateRegion checks if an error is a degenerate contour failure
func IsDegenerateRegion(err error) bool {
	return errors.Is(err, ErrDegenerateRegion)
}

// IsUnresolvedReference checks if an error is an image index miss
func IsUnresolvedReference(err error) bool {
	return errors.Is(err, ErrUnresolvedReference)
}

// IsInputDirectory checks if an error is the fatal input directory failure
func IsInputDirectory(err error) bool {
	return errors.Is(err, ErrInputDirectory)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err)
}

// Paths returns the file paths of a list of file errors, in order.
func Paths(errs []FileError) []string {
	paths := make([]string, 0, len(errs))
	for _, e := range errs {
		paths = append(paths, e.Path)
	}
	return paths
}
