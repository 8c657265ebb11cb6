package errors

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategoryProtocol  Category = "protocol"
	CategoryServer    Category = "server"
	CategoryCLI       Category = "cli"
)

// Location represents a position in a file, typically a config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Line == 0 {
		return l.File
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ProxyError is a user-facing error with a code, an explanation and a suggestion.
type ProxyError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (config, transport, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred, if any.
	Location *Location

	// Context contains the lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a correct invocation or config snippet.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *ProxyError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position and the surrounding lines.
func (e *ProxyError) WithLocation(file string, line, column int) *ProxyError {
	e.Location = &Location{File: file, Line: line, Column: column}
	if line > 0 {
		e.Context = readContextLines(file, line, 5)
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *ProxyError) WithSuggestion(s string) *ProxyError {
	e.Suggestion = s
	return e
}

// WithExample adds an example to the error.
func (e *ProxyError) WithExample(ex string) *ProxyError {
	e.Example = ex
	return e
}

// WithDetail replaces the detailed explanation.
func (e *ProxyError) WithDetail(d string) *ProxyError {
	e.Detail = d
	return e
}

// WithDetailf replaces the detailed explanation with a formatted one.
func (e *ProxyError) WithDetailf(format string, args ...any) *ProxyError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *ProxyError) Wrap(err error) *ProxyError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a ProxyError from a registered error code.
func New(code string) *ProxyError {
	template, ok := registry[code]
	if !ok {
		return &ProxyError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &ProxyError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new ProxyError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *ProxyError {
	return &ProxyError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError returns err as a ProxyError, wrapping it under code unless it already
// carries one.
func FromError(err error, code string) *ProxyError {
	if err == nil {
		return nil
	}
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first ProxyError in err's chain, or "".
func Code(err error) string {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
