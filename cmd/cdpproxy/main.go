package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	opts := &rootOptions{}
	if err := newRootCmd(opts).Execute(); err != nil {
		errors.Fprint(os.Stderr, err, opts.style)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	noColor     bool
	errorFormat string
	style       errors.Style
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	opts.style = errors.StylePretty

	rootCmd := &cobra.Command{
		Use:   "cdpproxy",
		Short: "A proxy for JSON debugging protocols",
		Long: `cdpproxy sits between a debugger front end and a debug target that speak a
Chrome DevTools style JSON protocol over WebSocket.

Debuggers connect to the proxy, which dials the target named by the
?browser= query parameter (or the configured default) and relays
commands, replies and events in both directions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				errors.DisableColors()
			}
			style, err := errors.ParseStyle(opts.errorFormat)
			if err != nil {
				return errors.Newf(errors.CategoryCLI, "%v", err).
					WithSuggestion("Use --error-format pretty, compact or json")
			}
			opts.style = style
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored error output")
	rootCmd.PersistentFlags().StringVar(&opts.errorFormat, "error-format", "pretty", "How failures are printed: pretty, compact or json")

	rootCmd.AddCommand(
		serveCmd(),
		callCmd(),
		targetsCmd(),
		versionCmd(),
	)

	return rootCmd
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
