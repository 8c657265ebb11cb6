package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/server"
)

// startBrowser serves a target that answers Browser.getVersion, Target.getTargets and
// Runtime.evaluate and echoes anything else, failing methods named "Fail". Evaluating
// "boom" throws.
func startBrowser(t *testing.T) string {
	t.Helper()

	srv := server.New(&server.ServerConfig{Port: 0})
	srv.OnConnection(func(ev *server.ConnectionEvent) {
		c := ev.Conn
		c.OnReply(func(m *cdp.Message) {
			if m.Method == "" {
				return
			}
			reply := &cdp.Message{ID: m.ID, SessionID: m.SessionID}
			switch m.Method {
			case "Browser.getVersion":
				reply.Result = json.RawMessage(`{"product":"Test/1.0","protocolVersion":"1.3"}`)
			case "Target.getTargets":
				reply.Result = json.RawMessage(`{"targetInfos":[{"targetId":"T1","type":"page","title":"Blank","url":"about:blank"}]}`)
			case "Runtime.evaluate":
				var p struct{ Expression string }
				_ = json.Unmarshal(m.Params, &p)
				if p.Expression == "boom" {
					reply.Result = json.RawMessage(`{"result":{"type":"object","subtype":"error"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught","lineNumber":0,"columnNumber":0,"exception":{"type":"object","description":"Error: boom"}}}`)
				} else {
					reply.Result = json.RawMessage(`{"result":{"type":"number","value":2,"description":"2"}}`)
				}
			case "Fail":
				reply.Error = &cdp.ErrorObject{Code: -32601, Message: "'Fail' wasn't found"}
			default:
				reply.Result = m.Params
			}
			c.Send(reply)
		})
	})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Dispose() })
	return srv.WebSocketURL()
}

func TestRunCall(t *testing.T) {
	url := startBrowser(t)

	result, err := runCall(context.Background(), url, "Test.echo", json.RawMessage(`{"expression":"1+1"}`), "", 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expression":"1+1"}`, string(result))

	result, err = runCall(context.Background(), url, "Browser.getVersion", nil, "S1", 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(result), "Test/1.0")
}

func TestRunCall_Errors(t *testing.T) {
	url := startBrowser(t)

	_, err := runCall(context.Background(), url, "Fail", nil, "", 5*time.Second)
	assert.Equal(t, "E204", errors.Code(err))

	_, err = runCall(context.Background(), url, "X", json.RawMessage(`[1]`), "", 5*time.Second)
	assert.Equal(t, "E302", errors.Code(err))

	_, err = runCall(context.Background(), "http://example.com", "X", nil, "", 5*time.Second)
	assert.Equal(t, "E104", errors.Code(err))

	_, err = runCall(context.Background(), "ws://127.0.0.1:1/devtools", "X", nil, "", 5*time.Second)
	assert.Equal(t, "E201", errors.Code(err))
}

func TestRunTargets(t *testing.T) {
	url := startBrowser(t)

	var out bytes.Buffer
	require.NoError(t, runTargets(context.Background(), &out, url, false, 5*time.Second))
	assert.Contains(t, out.String(), "T1")
	assert.Contains(t, out.String(), "about:blank")
}

func TestLoadServeConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.TOMLConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9300\nhost = \"0.0.0.0\"\n"), 0644))

	f := &serveFlags{}
	cmd := newServeCmd(f)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--port", "9400", "--log-format", "json"}))

	cfg, err := loadServeConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset flags keep file values")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadServeConfig_InvalidFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	f := &serveFlags{}
	cmd := newServeCmd(f)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--target", "http://nope"}))

	_, err := loadServeConfig(cmd, f)
	assert.Equal(t, "E104", errors.Code(err))
}

func TestVersionCmd(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version, strings.TrimSpace(out.String()))
}

func TestRunEval(t *testing.T) {
	url := startBrowser(t)

	value, err := runEval(context.Background(), url, "1+1", "", 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(value))

	value, err = runEval(context.Background(), url, "1+1", "S1", 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(value))

	_, err = runEval(context.Background(), url, "boom", "", 5*time.Second)
	assert.Equal(t, "E204", errors.Code(err))
	assert.Contains(t, err.Error(), "Error: boom")

	_, err = runEval(context.Background(), url, "boom", "S1", 5*time.Second)
	assert.Equal(t, "E204", errors.Code(err))

	_, err = runEval(context.Background(), "http://example.com", "1", "", 5*time.Second)
	assert.Equal(t, "E104", errors.Code(err))
}

func TestCallCmd_EvalFlag(t *testing.T) {
	url := startBrowser(t)

	cmd := callCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--eval", "1+1", url})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "2", strings.TrimSpace(out.String()))

	cmd = callCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--eval", "1+1", url, "Browser.getVersion"})
	assert.Error(t, cmd.Execute(), "a method is not accepted with --eval")
}

func TestCallCmd_MetricsFlag(t *testing.T) {
	url := startBrowser(t)

	cmd := callCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--metrics", "--trace", url, "Browser.getVersion"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Test/1.0")
	assert.Contains(t, errOut.String(), `cdpproxy_calls_total{method="Browser.getVersion",status="success"} 1`)
	assert.Contains(t, errOut.String(), "cdpproxy_call_duration_seconds")
}

func TestRootCmd_ErrorFormat(t *testing.T) {
	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--no-color", "--error-format", "json", "call", "http://example.com", "Browser.getVersion"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, errors.StyleJSON, opts.style)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(errors.Render(err, opts.style)), &report))
	assert.Equal(t, "E104", report["code"])

	opts = &rootOptions{}
	cmd = newRootCmd(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--error-format", "yaml", "version"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, errors.Render(err, errors.StyleCompact), "unknown error format")
}
