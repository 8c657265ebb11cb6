// Package errors provides coded, user-facing errors for the cdpproxy command.
//
// Library packages report failures with plain Go errors. Where those failures reach a
// person (a bad config file, a target that cannot be dialed, a port already in use)
// the command wraps them in a ProxyError that carries:
//   - a unique code (E1xx config, E2xx transport and protocol, E3xx server and CLI)
//   - a short message and a longer explanation
//   - an optional file position with the surrounding lines
//   - a suggestion on how to fix it
//
// # Usage
//
//	err := errors.New("E201").
//	    Wrap(dialErr).
//	    WithSuggestion("Start Chrome with --remote-debugging-port=9222")
//
//	fmt.Print(err.Format())
//	// Output:
//	// ERROR E201: Target dial failed
//	//
//	//   Could not open a WebSocket to the debug target. ...
//	//
//	//   Hint: Start Chrome with --remote-debugging-port=9222
//	//
//	//   Cause: transport: dial ws://127.0.0.1:9222/devtools/browser: ...
package errors
