package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cdpproxy/internal/config"
	"github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/cdpapi"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

func callCmd() *cobra.Command {
	var (
		timeout   time.Duration
		sessionID string
		eval      string
		client    clientFlags
	)

	cmd := &cobra.Command{
		Use:   "call <target-url> [method] [params-json]",
		Short: "Issue one protocol call and print the result",
		Long: `Dial a target, issue one call and print its result as JSON.

With --eval, evaluate a JavaScript expression through Runtime.evaluate
and print its value instead; no method is given then.

Examples:
  cdpproxy call ws://127.0.0.1:9222/devtools/browser/<id> Browser.getVersion
  cdpproxy call ws://127.0.0.1:9222/devtools/page/<id> Runtime.evaluate '{"expression":"1+1"}'
  cdpproxy call --eval 'document.title' ws://127.0.0.1:9222/devtools/page/<id>`,
		Args: func(cmd *cobra.Command, args []string) error {
			if eval != "" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.RangeArgs(2, 3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			in := client.instruments()

			var (
				result json.RawMessage
				err    error
			)
			if eval != "" {
				result, err = runEval(ctx, args[0], eval, sessionID, timeout, in.opts...)
			} else {
				var params json.RawMessage
				if len(args) == 3 {
					params = json.RawMessage(args[2])
				}
				result, err = runCall(ctx, args[0], args[1], params, sessionID, timeout, in.opts...)
			}
			if werr := in.writeMetrics(cmd.ErrOrStderr()); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit")
	cmd.Flags().StringVar(&sessionID, "session", "", "Route the call to this attached session")
	cmd.Flags().StringVarP(&eval, "eval", "e", "", "Evaluate this expression with Runtime.evaluate")
	client.register(cmd)

	return cmd
}

// runCall dials targetURL and issues one call. Failures come back as coded errors.
func runCall(ctx context.Context, targetURL, method string, params json.RawMessage, sessionID string, timeout time.Duration, opts ...cdp.Option) (json.RawMessage, error) {
	if err := config.ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}
	if params != nil && (!json.Valid(params) || !bytes.HasPrefix(bytes.TrimSpace(params), []byte("{"))) {
		return nil, errors.New("E302").
			WithDetail("params must be a JSON object").
			WithExample(`'{"expression":"1+1"}'`)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialConnection(ctx, targetURL, opts...)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	result, err := conn.GoSession(ctx, sessionID, method, params).Wait(ctx)
	if err != nil {
		return nil, callError(method, err)
	}
	if result == nil {
		result = json.RawMessage(`{}`)
	}
	return result, nil
}

// runEval dials targetURL and evaluates expression by value. A thrown exception is
// reported as E204 with the exception text.
func runEval(ctx context.Context, targetURL, expression, sessionID string, timeout time.Duration, opts ...cdp.Option) (json.RawMessage, error) {
	if err := config.ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialConnection(ctx, targetURL, opts...)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	var value json.RawMessage
	if sessionID != "" {
		value, err = evalInSession(ctx, conn, sessionID, expression)
	} else {
		err = cdpapi.NewRuntime(conn).Eval(ctx, expression, &value)
	}
	if err != nil {
		var exc *cdpapi.ExceptionDetails
		if stderrors.As(err, &exc) {
			return nil, errors.New("E204").
				WithDetailf("%q threw: %s", expression, exc.Error()).
				Wrap(err)
		}
		return nil, callError("Runtime.evaluate", err)
	}
	if value == nil {
		value = json.RawMessage(`null`)
	}
	return value, nil
}

// evalInSession runs Runtime.evaluate on an attached session. The typed facade only
// addresses the connection's own target.
func evalInSession(ctx context.Context, conn *cdp.Connection, sessionID, expression string) (json.RawMessage, error) {
	params := cdpapi.EvaluateParams{Expression: expression, ReturnByValue: true}
	raw, err := conn.GoSession(ctx, sessionID, "Runtime.evaluate", params).Wait(ctx)
	if err != nil {
		return nil, err
	}
	var result cdpapi.EvaluateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if result.ExceptionDetails != nil {
		return nil, result.ExceptionDetails
	}
	return result.Result.Value, nil
}

// dialConnection opens a Connection to targetURL with opts applied.
func dialConnection(ctx context.Context, targetURL string, opts ...cdp.Option) (*cdp.Connection, error) {
	t, err := transport.Dial(ctx, targetURL)
	if err != nil {
		if stderrors.Is(err, transport.ErrCancelled) {
			return nil, errors.New("E202").Wrap(err)
		}
		return nil, errors.New("E201").
			WithDetail("Could not reach " + targetURL).
			WithSuggestion("Check that the target is running with remote debugging enabled").
			Wrap(err)
	}
	return cdp.NewConnection(t, opts...), nil
}

func callError(method string, err error) error {
	if pe, ok := cdp.IsProtocolError(err); ok {
		return errors.New("E204").
			WithDetailf("%s failed: %s (code %d)", method, pe.Message, pe.Code).
			Wrap(err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New("E205").
			WithDetailf("No reply to %s in time.", method).
			WithSuggestion("Raise --timeout").
			Wrap(err)
	}
	return errors.New("E204").Wrap(err)
}
