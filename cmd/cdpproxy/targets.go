package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/cdpapi"
)

func targetsCmd() *cobra.Command {
	var (
		watch   bool
		timeout time.Duration
		client  clientFlags
	)

	cmd := &cobra.Command{
		Use:   "targets <browser-url>",
		Short: "List the targets of a browser",
		Long: `Connect to a browser endpoint and list its targets.

With --watch, keep the connection open and print targets as they are
created and destroyed until interrupted.

Examples:
  cdpproxy targets ws://127.0.0.1:9222/devtools/browser/<id>
  cdpproxy targets --watch ws://127.0.0.1:9222/devtools/browser/<id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			in := client.instruments()
			err := runTargets(ctx, cmd.OutOrStdout(), args[0], watch, timeout, in.opts...)
			if werr := in.writeMetrics(cmd.ErrOrStderr()); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print target changes until interrupted")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time limit for connecting and listing")
	client.register(cmd)

	return cmd
}

func runTargets(ctx context.Context, out io.Writer, browserURL string, watch bool, timeout time.Duration, opts ...cdp.Option) error {
	if err := config.ValidateTargetURL(browserURL); err != nil {
		return err
	}

	listCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialConnection(listCtx, browserURL, opts...)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	target := cdpapi.NewTarget(conn)
	infos, err := target.GetTargets(listCtx)
	if err != nil {
		return callError("Target.getTargets", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tURL")
	for _, ti := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ti.TargetID, ti.Type, ti.Title, ti.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	target.OnTargetCreated(func(ti cdpapi.TargetInfo) {
		fmt.Fprintf(out, "+ %s %s %s\n", ti.TargetID, ti.Type, ti.URL)
	})
	target.OnTargetDestroyed(func(id string) {
		fmt.Fprintf(out, "- %s\n", id)
	})
	ended := make(chan struct{})
	conn.OnEnd(func() { close(ended) })

	if err := target.SetDiscoverTargets(listCtx, true); err != nil {
		return callError("Target.setDiscoverTargets", err)
	}
	info("Watching for target changes, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return errors.New("E201").WithDetail("The browser closed the connection.")
	}
}
