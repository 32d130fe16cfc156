package processing

import (
	"errors"
	"fmt"
)

// Kind categorizes pipeline errors. The first four kinds are fatal to the
// whole run; KindFrameProcessing marks a failure isolated to one frame.
type Kind string

const (
	KindEmptyInput         Kind = "empty_input"
	KindDimensionMismatch  Kind = "dimension_mismatch"
	KindDegenerateImage    Kind = "degenerate_image"
	KindInvalidSampleCount Kind = "invalid_sample_count"
	KindFrameProcessing    Kind = "frame_processing"
)

// Error is the structured error type for the detection pipeline.
type Error struct {
	Kind    Kind
	Message string
	Frame   string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Frame != "" && e.Cause != nil:
		return fmt.Sprintf("%s: frame %q: %s (caused by: %v)", e.Kind, e.Frame, e.Message, e.Cause)
	case e.Frame != "":
		return fmt.Sprintf("%s: frame %q: %s", e.Kind, e.Frame, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewEmptyInputError(message string) *Error {
	return &Error{Kind: KindEmptyInput, Message: message}
}

func NewDimensionMismatchError(message string, cause error) *Error {
	return &Error{Kind: KindDimensionMismatch, Message: message, Cause: cause}
}

func NewDegenerateImageError(message string) *Error {
	return &Error{Kind: KindDegenerateImage, Message: message}
}

func NewInvalidSampleCountError(count, setSize int) *Error {
	return &Error{
		Kind:    KindInvalidSampleCount,
		Message: fmt.Sprintf("sample count %d out of range [1, %d]", count, setSize),
	}
}

// NewFrameError wraps a failure so it can be reported against one frame
// without aborting its siblings.
func NewFrameError(frame string, cause error) *Error {
	return &Error{
		Kind:    KindFrameProcessing,
		Message: "frame processing failed",
		Frame:   frame,
		Cause:   cause,
	}
}

// IsKind reports whether err (or anything it wraps) is a pipeline error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	for errors.As(err, &pe) {
		if pe.Kind == kind {
			return true
		}
		if pe.Cause == nil {
			break
		}
		err = pe.Cause
	}
	return false
}
