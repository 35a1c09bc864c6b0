// Package runerr defines the run's error taxonomy and the exit
// codes each class maps to. Errors are ordinary wrapped Go errors; callers
// use errors.As to recover the class and decide on fatality and exit code.
package runerr

import "fmt"

// Class identifies which taxonomy bucket an error belongs to.
type Class string

const (
	ClassConfig        Class = "config"
	ClassInput         Class = "input"
	ClassInvariant     Class = "invariant"
	ClassRender        Class = "render"
	ClassExtraction    Class = "extraction"
	ClassMetricsFormat Class = "metrics_format"
	ClassGateFailure   Class = "gate_failure"
	ClassIO            Class = "io"
)

// ExitCode returns the process exit code associated with a class.
func (c Class) ExitCode() int {
	switch c {
	case ClassConfig, ClassInput, ClassInvariant:
		return 3
	case ClassGateFailure:
		return 2
	case ClassIO:
		return 1
	default:
		return 1
	}
}

// Fatal reports whether errors of this class abort the run before
// cache mutation.
func (c Class) Fatal() bool {
	switch c {
	case ClassConfig, ClassInput, ClassInvariant, ClassIO:
		return true
	default:
		return false
	}
}

// Error is a classified, diagnostic-coded run error.
type Error struct {
	Class   Class
	Code    string // stable diagnostic code, e.g. "E_GRAPH_CYCLE"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a classified error.
func New(class Class, code, message string, cause error) *Error {
	return &Error{Class: class, Code: code, Message: message, Cause: cause}
}

// Config wraps err as a ConfigError with the given diagnostic code.
func Config(code, message string, err error) *Error {
	return New(ClassConfig, code, message, err)
}

// Input wraps err as an InputError.
func Input(code, message string, err error) *Error {
	return New(ClassInput, code, message, err)
}

// Invariant wraps err as an InvariantError.
func Invariant(code, message string, err error) *Error {
	return New(ClassInvariant, code, message, err)
}

// Render wraps err as a non-fatal RenderError.
func Render(code, message string, err error) *Error {
	return New(ClassRender, code, message, err)
}

// Extraction wraps err as a non-fatal ExtractionError.
func Extraction(code, message string, err error) *Error {
	return New(ClassExtraction, code, message, err)
}

// MetricsFormat wraps err as a non-fatal MetricsFormatError.
func MetricsFormat(code, message string, err error) *Error {
	return New(ClassMetricsFormat, code, message, err)
}

// Gate constructs a GateFailure error (no underlying cause; it reports a
// threshold violation, not a failure to compute one).
func Gate(code, message string) *Error {
	return New(ClassGateFailure, code, message, nil)
}

// IO wraps err as a fatal IOError.
func IO(code, message string, err error) *Error {
	return New(ClassIO, code, message, err)
}

// Diagnostic is a recoverable error surfaced in the run summary's
// Diagnostics section rather than aborting the run.
type Diagnostic struct {
	Code    string `json:"code"`
	Class   Class  `json:"class"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}
