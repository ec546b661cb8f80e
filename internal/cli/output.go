package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tikcccc/Form-demo/internal/compiler"
	"github.com/tikcccc/Form-demo/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected command, invalid catalog or failed scenario
	ExitCommandError = 2 // Bad config, missing paths, unreachable store
)

// Error codes for failures that are not engine rejections. Engine
// rejections use their kind (PERMISSION_DENIED, CONFLICT, ...) as code.
const (
	ErrCodeGeneric  = "E001"
	ErrCodeConfig   = "E002"
	ErrCodeCatalog  = "E004"
	ErrCodeNotFound = "E005"
	ErrCodeStore    = "E006"
	ErrCodeInvalid  = "E010"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// textRenderer is implemented by results with a human-readable layout.
type textRenderer interface {
	renderText(w io.Writer)
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	if r, ok := data.(textRenderer); ok {
		r.renderText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Engine rejections exit with ExitFailure and carry their kind as code.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(exitCodeName(exitErr), exitErr.Error(), nil)
		return exitErr
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		_ = f.Error(string(engErr.Kind), engErr.Message, rejectionDetails(engErr))
		return WrapExitError(ExitFailure, string(engErr.Kind), err)
	}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		_ = f.Error(ErrCodeCatalog, compileErr.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeCatalog, err)
	}

	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

func exitCodeName(e *ExitError) string {
	if e.Code == ExitCommandError {
		return ErrCodeConfig
	}
	return ErrCodeGeneric
}

func rejectionDetails(e *engine.Error) any {
	if e.InstanceID == "" && len(e.Fields) == 0 && len(e.Issues) == 0 {
		return nil
	}
	d := map[string]any{}
	if e.InstanceID != "" {
		d["id"] = e.InstanceID
	}
	if len(e.Fields) > 0 {
		d["fields"] = e.Fields
	}
	if len(e.Issues) > 0 {
		d["issues"] = e.Issues
	}
	return d
}

// VerboseLog outputs a message only if verbose mode is enabled. It writes
// to ErrWriter so JSON output stays parseable.
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
