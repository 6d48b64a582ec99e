package notice

import (
	"errors"
	"fmt"
)

// Stage names a step of the consumer pipeline.
type Stage string

const (
	// StageGeocode resolves the notice address.
	StageGeocode Stage = "geocode"
	// StageEnrich extracts structured fields from the notice attachment.
	StageEnrich Stage = "enrich"
)

// ErrorKind classifies failures so callers can decide retry or abort.
type ErrorKind int

const (
	// KindTransient failures may succeed on retry.
	KindTransient ErrorKind = iota + 1
	// KindNotFound means the thing looked for does not exist.
	KindNotFound
	// KindPermanent failures will not succeed on retry.
	KindPermanent
	// KindFatal failures stop the process.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StageError is a classified failure from one operation of a stage.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) error {
	return &StageError{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure of op.
func Permanent(op string, err error) error {
	return &StageError{Kind: KindPermanent, Op: op, Err: err}
}

// Fatal wraps err as a failure that stops the process.
func Fatal(op string, err error) error {
	return &StageError{Kind: KindFatal, Op: op, Err: err}
}

// KindOf returns the classification of err. Unclassified errors are
// treated as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindTransient
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// ErrNotFound is returned when a looked-for resource is absent.
var ErrNotFound = errors.New("not found")

// UpstreamError reports a failed or malformed response from the notice source.
type UpstreamError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream: %s: %v", e.Reason, e.Err)
	}
	return "upstream: " + e.Reason
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
