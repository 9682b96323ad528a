package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes returned by the microsim process.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the simulation aborted or the inputs failed validation
	ExitCommandError = 2 // the command could not start: bad flags, config or files
)

// Error codes carried in error responses.
const (
	ErrCodeGeneric           = "E001"
	ErrCodeNotFound          = "E005" // run or file does not exist
	ErrCodeInvalidConfig     = "E201"
	ErrCodeInvalidParams     = "E202"
	ErrCodeInvalidPopulation = "E203"
	ErrCodeSimulation        = "E301" // fatal error inside a simulated year
)

// ExitError attaches a process exit code to a command error.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure when there is none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON response.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as JSON envelopes.
// Diagnostics go to ErrWriter so they never interleave with JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success writes data. Text mode prints it with its default formatting; most
// commands render their own text and only call Success in JSON mode.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a coded error. Details are printed in text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// ReportError writes err through Error and returns it, so a command can end
// with `return f.ReportError(code, err)`.
func (f *OutputFormatter) ReportError(code string, err error) error {
	if writeErr := f.Error(code, err.Error(), nil); writeErr != nil {
		return errors.Join(err, writeErr)
	}
	return err
}

// VerboseLog prints a diagnostic line when verbose output is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
