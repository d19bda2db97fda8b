// Package errors provides coded errors for reportflow.
// Codes map onto the ingest failure taxonomy: validation, decode,
// transport, configuration and warehouse errors.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Validation errors (1xx). Tolerated per file.
	CodeInvalidFilename Code = "E101"

	// Decode errors (2xx)
	CodeMalformedData Code = "E201"
	CodeEncoding      Code = "E202"

	// Transport errors (3xx)
	CodeListFailed     Code = "E301"
	CodeDownloadFailed Code = "E302"
	CodeUploadFailed   Code = "E303"

	// Configuration errors (4xx)
	CodeMissingField  Code = "E401"
	CodeInvalidConfig Code = "E402"

	// Warehouse errors (5xx)
	CodeWarehouseQuery Code = "E501"
	CodeWarehouseWrite Code = "E502"
	CodeTableNotFound  Code = "E503"

	// System errors (6xx)
	CodeCanceled   Code = "E601"
	CodeCheckpoint Code = "E602"

	CodeUnknown Code = "E999"
)

// Category is the taxonomy bucket of a code.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryDecode        Category = "decode"
	CategoryTransport     Category = "transport"
	CategoryConfiguration Category = "configuration"
	CategoryWarehouse     Category = "warehouse"
	CategorySystem        Category = "system"
	CategoryUnknown       Category = "unknown"
)

// Error is the base error type for all reportflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// Stack returns the formatted stack of the first coded error in err's chain,
// or "" when there is none.
func Stack(err error) string {
	var rfErr *Error
	if errors.As(err, &rfErr) {
		return rfErr.FormatStack()
	}
	return ""
}

// --- Convenience constructors ---

// MissingField creates a configuration error for an absent request field.
func MissingField(field string) *Error {
	return New(CodeMissingField, "required field missing").WithContext("field", field)
}

// InvalidConfig creates a configuration error.
func InvalidConfig(format string, args ...interface{}) *Error {
	return New(CodeInvalidConfig, fmt.Sprintf(format, args...))
}

// TableNotFound creates a warehouse error for a missing table.
func TableNotFound(table string, cause error) *Error {
	if cause == nil {
		return New(CodeTableNotFound, "table not found").WithContext("table", table)
	}
	return Wrap(cause, CodeTableNotFound, "table not found").WithContext("table", table)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var rfErr *Error
	if errors.As(err, &rfErr) {
		return rfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var rfErr *Error
	if errors.As(err, &rfErr) {
		return rfErr.Code
	}
	return CodeUnknown
}

// CategoryOf returns the taxonomy bucket for err.
func CategoryOf(err error) Category {
	code := GetCode(err)
	if code == CodeUnknown || len(code) < 2 {
		return CategoryUnknown
	}
	switch code[1] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryDecode
	case '3':
		return CategoryTransport
	case '4':
		return CategoryConfiguration
	case '5':
		return CategoryWarehouse
	case '6':
		return CategorySystem
	default:
		return CategoryUnknown
	}
}
