package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Style selects how an error is rendered for the user.
type Style string

const (
	StylePretty  Style = "pretty"
	StyleCompact Style = "compact"
	StyleJSON    Style = "json"
)

// ParseStyle maps an --error-format value to a Style. The empty string is pretty.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StylePretty, nil
	case StylePretty, StyleCompact, StyleJSON:
		return st, nil
	}
	return "", fmt.Errorf("unknown error format %q (want pretty, compact or json)", s)
}

var colorEnabled = true

// DisableColors turns off ANSI escapes in pretty output.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI escapes back on.
func EnableColors() { colorEnabled = true }

type ansi string

const (
	ansiReset ansi = "\033[0m"
	ansiRed   ansi = "\033[31m"
	ansiCyan  ansi = "\033[36m"
	ansiGray  ansi = "\033[90m"
	ansiBold  ansi = "\033[1m"
)

func (a ansi) paint(s string) string {
	if !colorEnabled || s == "" {
		return s
	}
	return string(a) + s + string(ansiReset)
}

const detailWidth = 70

// Format renders the error as a multi-line report for a terminal.
func (e *ProxyError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	if e.Code != "" {
		fmt.Fprintf(&b, "%s %s\n\n", ansiRed.paint(ansiBold.paint("ERROR")), ansiBold.paint(e.Code+": "+e.Message))
	} else {
		fmt.Fprintf(&b, "%s %s\n\n", ansiRed.paint(ansiBold.paint("ERROR:")), e.Message)
	}

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", ansiCyan.paint(e.Location.String()))
		e.writeSnippet(&b)
	}

	if lines := wrapWords(e.Detail, detailWidth); len(lines) > 0 {
		for _, line := range lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s %s\n\n", ansiCyan.paint("Hint:"), e.Suggestion)
	}

	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", ansiCyan.paint("Example:"))
		for _, line := range strings.Split(e.Example, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("\n")
	}

	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s %v\n", ansiGray.paint("Cause:"), e.Wrapped)
	}

	return b.String()
}

// writeSnippet prints the context lines with the failing line marked and, when a
// column is known, a caret under it.
func (e *ProxyError) writeSnippet(b *strings.Builder) {
	if len(e.Context) == 0 {
		return
	}
	bar := ansiGray.paint("|")
	first := e.Location.Line - len(e.Context)/2
	for i, text := range e.Context {
		n := first + i
		marker := "  "
		if n == e.Location.Line {
			marker = ansiRed.paint("> ")
		}
		fmt.Fprintf(b, "  %s%4d %s %s\n", marker, n, bar, text)
		if n == e.Location.Line && e.Location.Column > 0 {
			fmt.Fprintf(b, "         %s %s%s\n", bar, strings.Repeat(" ", e.Location.Column-1), ansiRed.paint("^"))
		}
	}
	b.WriteString("\n")
}

// FormatCompact renders the error on one line, prefixed by its location.
func (e *ProxyError) FormatCompact() string {
	if e.Location == nil {
		return e.Error()
	}
	return e.Location.String() + ": " + e.Error()
}

// LogValue makes slog print coded errors in their compact form.
func (e *ProxyError) LogValue() slog.Value {
	return slog.StringValue(e.FormatCompact())
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

type jsonReport struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Example    string        `json:"example,omitempty"`
	Cause      string        `json:"cause,omitempty"`
}

// FormatJSON renders the error as a single JSON object.
func (e *ProxyError) FormatJSON() string {
	r := jsonReport{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		Example:    e.Example,
	}
	if e.Location != nil {
		r.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		r.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

// Render formats err in the given style. An error without a ProxyError in its
// chain is rendered from its message alone.
func Render(err error, style Style) string {
	var pe *ProxyError
	if !stderrors.As(err, &pe) {
		pe = &ProxyError{Message: err.Error()}
	}
	switch style {
	case StyleCompact:
		return pe.FormatCompact() + "\n"
	case StyleJSON:
		return pe.FormatJSON() + "\n"
	default:
		return pe.Format()
	}
}

// Fprint writes err to w in the given style.
func Fprint(w io.Writer, err error, style Style) {
	fmt.Fprint(w, Render(err, style))
}

func wrapWords(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := []string{words[0]}
	for _, w := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(w) > width {
			lines = append(lines, w)
			continue
		}
		*last += " " + w
	}
	return lines
}
