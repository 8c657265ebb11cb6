package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/internal/proxy"
	"github.com/vango-dev/cdpproxy/internal/recorder"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/cdpapi"
	"github.com/vango-dev/cdpproxy/pkg/middleware"
	"github.com/vango-dev/cdpproxy/pkg/server"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

type serveFlags struct {
	configFile  string
	writeConfig string
	host        string
	port        int
	target      string
	logLevel    string
	logFormat   string
	metrics     bool
	trace       bool
	record      bool
	recordDir   string
	blocked     []string
}

func serveCmd() *cobra.Command {
	return newServeCmd(&serveFlags{})
}

func newServeCmd(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy",
		Long: `Run the proxy server.

Settings come from cdpproxy.json or cdpproxy.toml in the working directory
or a parent, or from --config. Flags override file values.

Examples:
  cdpproxy serve --target ws://127.0.0.1:9222/devtools/browser/<id>
  cdpproxy serve --port 9300 --metrics --log-format json
  cdpproxy serve --record --record-dir ./transcripts
  cdpproxy serve --port 9300 --write-config cdpproxy.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, f)
			if err != nil {
				return err
			}
			if f.writeConfig != "" {
				if err := cfg.SaveTo(f.writeConfig); err != nil {
					return err
				}
				success("Wrote %s", f.writeConfig)
				return nil
			}
			return runServe(cmd.Context(), cfg, f.blocked)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Config file (.json or .toml)")
	flags.StringVar(&f.writeConfig, "write-config", "", "Write the effective config to this file and exit")
	flags.StringVarP(&f.host, "host", "H", "", "Host to bind to")
	flags.IntVarP(&f.port, "port", "p", 0, "Port to listen on")
	flags.StringVarP(&f.target, "target", "t", "", "Default target WebSocket URL")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&f.metrics, "metrics", false, "Serve Prometheus metrics at /metrics")
	flags.BoolVar(&f.trace, "trace", false, "Trace relayed and issued calls with OpenTelemetry")
	flags.BoolVar(&f.record, "record", false, "Record every session")
	flags.StringVar(&f.recordDir, "record-dir", "", "Directory for session transcripts")
	flags.StringSliceVar(&f.blocked, "block", nil, "Drop debugger commands of these methods")

	return cmd
}

// loadServeConfig loads the config file and applies the flags that were set.
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configFile != "" {
		cfg, err = config.LoadFile(f.configFile)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("target") {
		cfg.Target.URL = f.target
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = f.metrics
	}
	if flags.Changed("trace") {
		cfg.Tracing.Enabled = f.trace
	}
	if flags.Changed("record") {
		cfg.Record.Enabled = f.record
	}
	if flags.Changed("record-dir") {
		cfg.Record.Dir = f.recordDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, blocked []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	var connOpts []cdp.Option
	srvCfg := server.DefaultServerConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.Path = cfg.Server.Path
	srvCfg.ReadBufferSize = cfg.Server.ReadBufferSize
	srvCfg.WriteBufferSize = cfg.Server.WriteBufferSize
	srvCfg.Logger = logger

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		connOpts = append(connOpts, cdp.WithMiddleware(middleware.Prometheus(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(reg),
		)))
		srvCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	var relayTracer *middleware.RelayTracer
	if cfg.Tracing.Enabled {
		connOpts = append(connOpts, cdp.WithMiddleware(
			middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)),
		))
		relayTracer = middleware.NewRelayTracer(middleware.WithTracerName(cfg.Tracing.TracerName))
	}

	var rec *recorder.Recorder
	if cfg.Record.Enabled {
		recCfg := recorder.Config{Dir: cfg.Record.Dir, Logger: logger}
		if cfg.Record.S3Bucket != "" {
			client, err := recorder.NewS3Client(ctx, cfg.Record.S3Region)
			if err != nil {
				return errors.New("E111").
					WithSuggestion("Check AWS_PROFILE, AWS_REGION and ~/.aws/config").
					Wrap(err)
			}
			recCfg.Uploader = recorder.NewS3Uploader(client, cfg.Record.S3Bucket, cfg.Record.S3Prefix)
		}
		var err error
		rec, err = recorder.New(recCfg)
		if err != nil {
			return errors.New("E108").Wrap(err)
		}
	}

	var interceptors []proxy.Interceptor
	if len(blocked) > 0 {
		interceptors = append(interceptors, proxy.BlockMethods(proxy.ToTarget, blocked...))
	}

	if cfg.Target.URL != "" {
		checkDefaultTarget(ctx, logger, cfg, connOpts)
	}

	srv := server.New(srvCfg)
	p := proxy.New(proxy.Config{
		DefaultTarget:        cfg.Target.URL,
		DialTimeout:          cfg.Target.DialTimeout.Std(),
		MaxRetries:           cfg.Target.MaxRetries,
		RetryInitialInterval: cfg.Target.RetryInitialInterval.Std(),
		Interceptors:         interceptors,
		Recorder:             rec,
		Tracer:               relayTracer,
		ConnectionOptions:    connOpts,
		Logger:               logger,
	})
	p.Attach(srv)

	if err := srv.Start(ctx); err != nil {
		return errors.New("E301").
			WithDetail("Could not listen on " + cfg.Address()).
			WithSuggestion("Pick another port with --port, or 0 for any free port").
			Wrap(err)
	}

	success("Listening on %s", srv.WebSocketURL())
	if cfg.Target.URL != "" {
		info("Default target: %s", cfg.Target.URL)
	}

	runErr := srv.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Close(closeCtx); err != nil {
		return errors.New("E303").Wrap(err)
	}
	if runErr != nil {
		return errors.New("E303").Wrap(runErr)
	}
	return nil
}

// checkDefaultTarget asks the default target for its version so misconfiguration
// shows up at startup. Failure is logged, not fatal; the target may come up later.
func checkDefaultTarget(ctx context.Context, logger *slog.Logger, cfg *config.Config, connOpts []cdp.Option) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Target.DialTimeout.Std())
	defer cancel()

	t, err := transport.Dial(ctx, cfg.Target.URL, transport.WithLogger(logger))
	if err != nil {
		logger.Warn("default target unreachable", "target", cfg.Target.URL, "error", err)
		return
	}
	conn := cdp.NewConnection(t, connOpts...)
	defer conn.Close(context.Background())

	v, err := cdpapi.NewBrowser(conn).GetVersion(ctx)
	if err != nil {
		logger.Warn("default target did not report a version", "target", cfg.Target.URL, "error", err)
		return
	}
	logger.Info("default target", "product", v.Product, "protocol", v.ProtocolVersion)
}
