package cdpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

// RemoteObject mirrors Runtime.RemoteObject.
type RemoteObject struct {
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype,omitempty"`
	ClassName   string          `json:"className,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
}

// ExceptionDetails mirrors Runtime.ExceptionDetails.
type ExceptionDetails struct {
	ExceptionID  int           `json:"exceptionId"`
	Text         string        `json:"text"`
	LineNumber   int           `json:"lineNumber"`
	ColumnNumber int           `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

// Error implements error so a thrown exception can be returned as one.
func (e *ExceptionDetails) Error() string {
	if e.Exception != nil && e.Exception.Description != "" {
		return fmt.Sprintf("runtime exception: %s", e.Exception.Description)
	}
	return fmt.Sprintf("runtime exception: %s (%d:%d)", e.Text, e.LineNumber, e.ColumnNumber)
}

// EvaluateParams are the parameters of Runtime.evaluate.
type EvaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	AwaitPromise  bool   `json:"awaitPromise,omitempty"`
	ContextID     int    `json:"contextId,omitempty"`
}

// EvaluateResult is the result of Runtime.evaluate.
type EvaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// Runtime is the typed facade of the Runtime domain.
type Runtime struct {
	domain *cdp.Domain
}

// NewRuntime returns the Runtime facade of conn.
func NewRuntime(conn *cdp.Connection) *Runtime {
	return &Runtime{domain: conn.Domain("Runtime")}
}

// Enable calls Runtime.enable.
func (r *Runtime) Enable(ctx context.Context) error {
	return r.domain.Call(ctx, "enable", nil, nil)
}

// Evaluate calls Runtime.evaluate. A script exception is not an error here; inspect
// ExceptionDetails, or use Eval.
func (r *Runtime) Evaluate(ctx context.Context, params EvaluateParams) (*EvaluateResult, error) {
	var result EvaluateResult
	if err := r.domain.Call(ctx, "evaluate", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Eval evaluates expression by value and decodes the value into v. A thrown exception
// is returned as *ExceptionDetails.
func (r *Runtime) Eval(ctx context.Context, expression string, v any) error {
	result, err := r.Evaluate(ctx, EvaluateParams{Expression: expression, ReturnByValue: true})
	if err != nil {
		return err
	}
	if result.ExceptionDetails != nil {
		return result.ExceptionDetails
	}
	if v == nil || len(result.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(result.Result.Value, v)
}
