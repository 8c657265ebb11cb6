package main

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/middleware"
)

// clientFlags are the instrumentation flags of commands that dial a target themselves.
type clientFlags struct {
	metrics bool
	trace   bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "Print Prometheus call metrics to stderr when done")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Trace calls with the global OpenTelemetry tracer provider")
}

// instruments holds the call middleware selected by clientFlags.
type instruments struct {
	opts []cdp.Option
	reg  *prometheus.Registry
}

func (f *clientFlags) instruments() *instruments {
	in := &instruments{}
	if f.metrics {
		in.reg = prometheus.NewRegistry()
		in.opts = append(in.opts, cdp.WithMiddleware(middleware.Prometheus(
			middleware.WithNamespace(config.DefaultNamespace),
			middleware.WithRegistry(in.reg),
		)))
	}
	if f.trace {
		in.opts = append(in.opts, cdp.WithMiddleware(middleware.OpenTelemetry()))
	}
	return in
}

// writeMetrics prints what the metrics middleware gathered in the Prometheus text
// format. It does nothing when metrics are off.
func (in *instruments) writeMetrics(w io.Writer) error {
	if in.reg == nil {
		return nil
	}
	families, err := in.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
