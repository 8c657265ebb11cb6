package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/cdpproxy/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "cdpproxy.json"

	// TOMLConfigFileName is the name of the TOML configuration file.
	TOMLConfigFileName = "cdpproxy.toml"

	// DefaultPort is the default listening port.
	DefaultPort = 9223

	// DefaultHost is the default listening host.
	DefaultHost = "127.0.0.1"

	// DefaultPath is the socket path advertised by discovery.
	DefaultPath = "ws"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "cdpproxy"
)

// Config represents the complete cdpproxy configuration.
type Config struct {
	// Server contains listener settings.
	Server ServerConfig `json:"server" toml:"server"`

	// Target contains settings for dialing the debug target.
	Target TargetConfig `json:"target" toml:"target"`

	// Log contains logging settings.
	Log LogConfig `json:"log" toml:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing" toml:"tracing"`

	// Record contains traffic recording settings.
	Record RecordConfig `json:"record" toml:"record"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	// Host is the host to bind to and to advertise.
	Host string `json:"host,omitempty" toml:"host,omitempty"`

	// Port is the port to listen on. 0 picks a free port.
	Port int `json:"port" toml:"port"`

	// Path is the socket path advertised by discovery.
	Path string `json:"path,omitempty" toml:"path,omitempty"`

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int `json:"readBufferSize,omitempty" toml:"readBufferSize,omitempty"`

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int `json:"writeBufferSize,omitempty" toml:"writeBufferSize,omitempty"`
}

// TargetConfig contains settings for dialing the debug target.
type TargetConfig struct {
	// URL is the default target, used when a debugger connects without ?browser=.
	URL string `json:"url,omitempty" toml:"url,omitempty"`

	// DialTimeout bounds each dial attempt (e.g., "10s").
	DialTimeout Duration `json:"dialTimeout,omitempty" toml:"dialTimeout,omitempty"`

	// MaxRetries is the number of extra dial attempts after the first fails.
	MaxRetries int `json:"maxRetries" toml:"maxRetries"`

	// RetryInitialInterval is the first backoff interval between attempts.
	RetryInitialInterval Duration `json:"retryInitialInterval,omitempty" toml:"retryInitialInterval,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" toml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled serves /metrics and records proxy metrics.
	Enabled bool `json:"enabled,omitempty" toml:"enabled,omitempty"`

	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled traces calls issued by the proxy.
	Enabled bool `json:"enabled,omitempty" toml:"enabled,omitempty"`

	// TracerName is the tracer name.
	TracerName string `json:"tracerName,omitempty" toml:"tracerName,omitempty"`
}

// RecordConfig contains traffic recording settings.
type RecordConfig struct {
	// Enabled records every relayed message of every session.
	Enabled bool `json:"enabled,omitempty" toml:"enabled,omitempty"`

	// Dir is where JSONL transcripts are written.
	Dir string `json:"dir,omitempty" toml:"dir,omitempty"`

	// S3Bucket, when set, receives each transcript when its session ends.
	S3Bucket string `json:"s3Bucket,omitempty" toml:"s3Bucket,omitempty"`

	// S3Prefix is prepended to uploaded object keys.
	S3Prefix string `json:"s3Prefix,omitempty" toml:"s3Prefix,omitempty"`

	// S3Region is the bucket's region.
	S3Region string `json:"s3Region,omitempty" toml:"s3Region,omitempty"`
}

// Duration is a time.Duration written as a string such as "10s" in config files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			Path:            DefaultPath,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		Target: TargetConfig{
			DialTimeout:          Duration(10 * time.Second),
			MaxRetries:           3,
			RetryInitialInterval: Duration(250 * time.Millisecond),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: "cdpproxy",
		},
		Record: RecordConfig{
			Dir: "transcripts",
		},
	}
}

// Load loads the configuration from dir, preferring cdpproxy.json over cdpproxy.toml.
func Load(dir string) (*Config, error) {
	path, ok := find(dir)
	if !ok {
		return nil, errors.New("E110").
			WithDetail("No " + ConfigFileName + " or " + TOMLConfigFileName + " found in " + dir).
			WithSuggestion("Run 'cdpproxy serve --write-config cdpproxy.json' to create one")
	}
	return LoadFile(path)
}

// LoadOptional is Load that falls back to defaults when dir has no config file.
func LoadOptional(dir string) (*Config, error) {
	if _, ok := find(dir); !ok {
		return New(), nil
	}
	return Load(dir)
}

// LoadFile loads the configuration from a .json or .toml file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E110").
				WithDetail("No config file at " + path)
		}
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSON(path, data, cfg)
	case ".toml":
		err = decodeTOML(path, data, cfg)
	default:
		err = errors.New("E102").WithLocation(path, 0, 0)
	}
	if err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

func decodeJSON(path string, data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		perr := errors.New("E101").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
		var syntaxErr *json.SyntaxError
		if stderrors.As(err, &syntaxErr) {
			line, col := position(data, syntaxErr.Offset)
			perr.WithLocation(path, line, col)
		} else {
			perr.WithLocation(path, 0, 0)
		}
		return perr
	}
	return nil
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		perr := errors.New("E101").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid TOML")
		var parseErr toml.ParseError
		if stderrors.As(err, &parseErr) {
			perr.WithLocation(path, parseErr.Position.Line, 0)
		} else {
			perr.WithLocation(path, 0, 0)
		}
		return perr
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New("E101").
			WithLocation(path, 0, 0).
			WithDetail("Unknown keys: " + strings.Join(keys, ", "))
	}
	return nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// Save saves the configuration to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as TOML if path ends in .toml and as JSON
// otherwise.
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.New("E109").Wrap(err)
		}
	} else {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.New("E109").Wrap(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.New("E109").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills zero values that have no meaning of their own.
func (c *Config) applyDefaults() {
	defaults := New()

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Path == "" {
		c.Server.Path = defaults.Server.Path
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = defaults.Server.ReadBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = defaults.Server.WriteBufferSize
	}

	if c.Target.DialTimeout == 0 {
		c.Target.DialTimeout = defaults.Target.DialTimeout
	}
	if c.Target.RetryInitialInterval == 0 {
		c.Target.RetryInitialInterval = defaults.Target.RetryInitialInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = defaults.Tracing.TracerName
	}

	// A relative transcript directory is relative to the config file.
	if c.Record.Dir != "" && !filepath.IsAbs(c.Record.Dir) && c.configPath != "" {
		c.Record.Dir = filepath.Join(c.Dir(), c.Record.Dir)
	}
}

// Validate checks the configuration and returns the first problem as a coded error.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return c.locate(errors.New("E103").
			WithDetailf("Port %d is not between 0 and 65535.", c.Server.Port))
	}

	if c.Target.URL != "" {
		if err := ValidateTargetURL(c.Target.URL); err != nil {
			return c.locate(errors.FromError(err, "E104"))
		}
	}

	if _, ok := parseLevel(c.Log.Level); !ok {
		return c.locate(errors.New("E105").
			WithDetailf("Unknown log level %q. Use debug, info, warn or error.", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return c.locate(errors.New("E106").
			WithDetailf("Unknown log format %q. Use text or json.", c.Log.Format))
	}

	if c.Target.DialTimeout < 0 || c.Target.MaxRetries < 0 || c.Target.RetryInitialInterval < 0 {
		return c.locate(errors.New("E107"))
	}

	if c.Record.Enabled && c.Record.Dir == "" && c.Record.S3Bucket == "" {
		return c.locate(errors.New("E108").
			WithSuggestion("Set record.dir or record.s3Bucket"))
	}

	return nil
}

func (c *Config) locate(err *errors.ProxyError) *errors.ProxyError {
	if c.configPath != "" && err.Location == nil {
		err.WithLocation(c.configPath, 0, 0)
	}
	return err
}

// ValidateTargetURL checks that raw is an absolute ws:// or wss:// URL.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("E104").Wrap(err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("E104").
			WithDetailf("Target %q must use the ws or wss scheme.", raw).
			WithExample("ws://127.0.0.1:9222/devtools/browser/<id>")
	}
	if u.Host == "" {
		return errors.New("E104").
			WithDetailf("Target %q has no host.", raw)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// find returns the config file in dir, preferring JSON.
func find(dir string) (string, bool) {
	for _, name := range []string{ConfigFileName, TOMLConfigFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Exists reports whether dir contains a config file.
func Exists(dir string) bool {
	_, ok := find(dir)
	return ok
}

// FindProjectRoot walks up directories to find the one holding a config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E110").
				WithDetail(fmt.Sprintf("No %s or %s found in %s or any parent directory",
					ConfigFileName, TOMLConfigFileName, startDir))
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the nearest config file at or above the working directory,
// or returns defaults if there is none.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return New(), nil
	}

	return Load(root)
}
