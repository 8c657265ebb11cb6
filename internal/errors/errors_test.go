package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "E101",
			wantMsg: "Invalid config file",
			wantCat: CategoryConfig,
		},
		{
			name:    "transport error",
			code:    "E201",
			wantMsg: "Target dial failed",
			wantCat: CategoryTransport,
		},
		{
			name:    "server error",
			code:    "E301",
			wantMsg: "Listen failed",
			wantCat: CategoryServer,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "flag %q is required", "--target")
	if err.Message != `flag "--target" is required` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != CategoryCLI {
		t.Errorf("Category = %q, want %q", err.Category, CategoryCLI)
	}
	if err.Error() != `flag "--target" is required` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestProxyError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New("E201").Wrap(cause)

	want := "E201: Target dial failed: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E201") != nil {
		t.Error("FromError(nil) should return nil")
	}

	plain := stderrors.New("boom")
	wrapped := FromError(plain, "E301")
	if wrapped.Code != "E301" || !stderrors.Is(wrapped, plain) {
		t.Errorf("FromError(plain) = %+v", wrapped)
	}

	original := New("E103")
	outer := FromError(&wrapperError{original}, "E301")
	if outer != original {
		t.Error("FromError should return an existing ProxyError from the chain")
	}
	if Code(&wrapperError{original}) != "E103" {
		t.Errorf("Code() = %q, want E103", Code(&wrapperError{original}))
	}
	if Code(plain) != "" {
		t.Errorf("Code(plain) = %q, want empty", Code(plain))
	}
}

type wrapperError struct{ err error }

func (w *wrapperError) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapperError) Unwrap() error { return w.err }

func TestWithLocation_ReadsContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdpproxy.toml")
	content := "[server]\nhost = \"127.0.0.1\"\nport = \"nine\"\n\n[target]\nurl = \"ws://x\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := New("E101").WithLocation(path, 3, 8)
	if err.Location.String() != path+":3:8" {
		t.Errorf("Location = %q", err.Location.String())
	}
	if len(err.Context) == 0 {
		t.Fatal("expected context lines")
	}
	found := false
	for _, line := range err.Context {
		if strings.Contains(line, `port = "nine"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("context %q does not include the error line", err.Context)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E201").
		Wrap(stderrors.New("dial tcp 127.0.0.1:9222: connect: connection refused")).
		WithSuggestion("Start Chrome with --remote-debugging-port=9222").
		WithExample("cdpproxy serve --target ws://127.0.0.1:9222/devtools/browser/<id>")

	out := err.Format()
	for _, want := range []string{
		"ERROR E201: Target dial failed",
		"Could not open a WebSocket",
		"Hint: Start Chrome with --remote-debugging-port=9222",
		"Example:",
		"Cause: dial tcp 127.0.0.1:9222",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() should not contain ANSI codes when colors are disabled")
	}
}

func TestFormatCompactAndJSON(t *testing.T) {
	err := New("E103").WithLocation("cdpproxy.json", 0, 0)

	if got := err.FormatCompact(); got != "cdpproxy.json: E103: Invalid port" {
		t.Errorf("FormatCompact() = %q", got)
	}

	var got map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &got); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if got["code"] != "E103" || got["category"] != "config" || got["message"] != "Invalid port" {
		t.Errorf("FormatJSON() = %v", got)
	}
	loc, _ := got["location"].(map[string]any)
	if loc["file"] != "cdpproxy.json" {
		t.Errorf("location = %v", got["location"])
	}
}

func TestFormatJSON_Cause(t *testing.T) {
	err := New("E201").Wrap(stderrors.New(`dial "ws://x": refused`))

	var got map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &got); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if got["cause"] != `dial "ws://x": refused` {
		t.Errorf("cause = %v", got["cause"])
	}
	if _, ok := got["location"]; ok {
		t.Error("location should be omitted")
	}
}

func TestRender(t *testing.T) {
	DisableColors()
	defer EnableColors()

	coded := fmt.Errorf("call: %w", New("E205"))
	plain := stderrors.New("plain failure")

	tests := []struct {
		name  string
		err   error
		style Style
		want  string
	}{
		{"pretty coded", coded, StylePretty, "ERROR E205: "},
		{"pretty plain", plain, StylePretty, "ERROR: plain failure"},
		{"compact coded", coded, StyleCompact, "E205: "},
		{"compact plain", plain, StyleCompact, "plain failure\n"},
		{"json coded", coded, StyleJSON, `"code":"E205"`},
		{"json plain", plain, StyleJSON, `{"message":"plain failure"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Fprint(&buf, tt.err, tt.style)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Fprint(%s) = %q, want it to contain %q", tt.style, buf.String(), tt.want)
			}
		})
	}
}

func TestParseStyle(t *testing.T) {
	for in, want := range map[string]Style{"": StylePretty, "JSON": StyleJSON, "compact": StyleCompact, "pretty": StylePretty} {
		got, err := ParseStyle(in)
		if err != nil || got != want {
			t.Errorf("ParseStyle(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStyle("yaml"); err == nil {
		t.Error("ParseStyle(yaml) should fail")
	}
}

func TestLogValue_UsesCompactForm(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Error("target dial failed", "error", New("E201").Wrap(stderrors.New("refused")))

	if !strings.Contains(buf.String(), `error="E201: Target dial failed: refused"`) {
		t.Errorf("log line = %q", buf.String())
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("expected registered codes")
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok {
			t.Errorf("GetTemplate(%q) not found", code)
			continue
		}
		if tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("template %q is incomplete: %+v", code, tmpl)
		}
	}

	Register("E399", ErrorTemplate{Category: CategoryCLI, Message: "Custom"})
	defer delete(registry, "E399")
	if New("E399").Message != "Custom" {
		t.Error("Register did not add the template")
	}
}

func TestWrapWords(t *testing.T) {
	lines := wrapWords("one two three four five six seven eight nine ten", 15)
	for _, line := range lines {
		if len(line) > 15 {
			t.Errorf("line %q exceeds width", line)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six seven eight nine ten" {
		t.Errorf("wrapWords lost words: %q", lines)
	}
	if wrapWords("", 10) != nil {
		t.Error("wrapWords(\"\") should be nil")
	}
}
