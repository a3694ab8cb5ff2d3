package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Action refused (outside perimeter, rejected by server)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database failure)
)

// ExitError carries the process exit code of a failed command.
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope for --format json.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the error part of Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Output renders command results as text or JSON.
type Output struct {
	Format string
	Writer io.Writer
}

// Success writes data. In text mode text is called to render it.
func (o *Output) Success(data interface{}, text func(w io.Writer)) error {
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(o.Writer)
	return nil
}

// Error writes err and returns it wrapped with code.
func (o *Output) Error(code int, message string, err error) error {
	if o.Format == "json" {
		_ = json.NewEncoder(o.Writer).Encode(Response{
			Status: "error",
			Error: &ErrorBody{
				Code:    string(apperrors.CodeOf(err)),
				Message: fmt.Sprintf("%s: %v", message, err),
			},
		})
	}
	return WrapExitError(code, message, err)
}
