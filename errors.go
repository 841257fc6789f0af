package geoartifacts

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	// ErrInvalidArgument indicates a selector value outside its legal set.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a well-formed query matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrDownload indicates a network or remote-server failure.
	ErrDownload = errors.New("download failed")

	// ErrDownloadDeclined indicates a first-time download was not accepted.
	ErrDownloadDeclined = errors.New("download declined")

	// ErrSchemaMismatch indicates a loaded table lacks expected columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// InvalidArgumentError reports a selector value outside its enumeration.
type InvalidArgumentError struct {
	Selector string
	Value    any
	Allowed  []string
	Message  string
}

// Error implements the error interface
func (e *InvalidArgumentError) Error() string {
	msg := fmt.Sprintf("invalid %s %v", e.Selector, e.Value)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Allowed) > 0 {
		msg += " (allowed: " + strings.Join(e.Allowed, ", ") + ")"
	}
	return msg
}

// Is implements errors.Is support
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalidArgument(selector string, value any, allowed []string) *InvalidArgumentError {
	return &InvalidArgumentError{Selector: selector, Value: value, Allowed: allowed}
}

// NotFoundError reports a query that matched no catalog row or dataset.
type NotFoundError struct {
	Resource    string
	Query       string
	Suggestions []string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Resource, e.Query)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DownloadError reports a failed fetch of a resource that was not cached.
type DownloadError struct {
	Identifier string
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s from %s: status %d", e.Identifier, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s from %s: %v", e.Identifier, e.URL, e.Err)
	default:
		return fmt.Sprintf("download %s from %s failed", e.Identifier, e.URL)
	}
}

// Unwrap implements errors.Unwrap
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

// SchemaMismatchError reports columns a loaded table was expected to carry.
type SchemaMismatchError struct {
	Source  string
	Missing []string
}

// Error implements the error interface
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing columns %s", e.Source, strings.Join(e.Missing, ", "))
}

// Is implements errors.Is support
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsDownload checks if an error is a download error
func IsDownload(err error) bool {
	return errors.Is(err, ErrDownload)
}
