// Package sandbox embeds a JavaScript interpreter that runs extension
// driver scripts against a live browser page with no host bindings
// beyond the `page` and `refreshmint` globals it explicitly installs
//. A fresh goja.Runtime is created per execution, host
// functions are registered as closures over goja.FunctionCall, and
// only primitive values (strings, numbers, booleans) cross the
// sandbox boundary, apart from page.lastDialog (a plain object of such
// values) and page.popupEvents (an array of URL strings).
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"

	"github.com/yonran/refreshmint/internal/metrics"
	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Options configures one Runtime.
type Options struct {
	Page    PageController
	Secrets SecretResolver
	Metrics *metrics.Metrics

	// OutputDir is the login/label documents directory saveResource
	// results are finalized into; StagingDir is where they accumulate
	// during the run (debug-mode finalize applies the
	// same staging convention to attended exec calls).
	OutputDir  string
	StagingDir string

	// PromptOverrides supplies canned answers for refreshmint.prompt in
	// attended/unattended automation, keyed by the exact prompt message.
	PromptOverrides map[string]string

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// Outcome is the terminal state of one driver execution.
type Outcome string

const (
	OutcomeFulfilled     Outcome = "fulfilled"
	OutcomeRejected      Outcome = "rejected"
	OutcomePendingAtIdle Outcome = "completed_with_warnings"
)

// Result is the outcome of RunDriver.
type Result struct {
	Outcome      Outcome
	Value        string
	Error        error
	JSStack      string
	ReportedKeys map[string]string
	SavedFiles   []string
}

// Runtime is one sandboxed execution context. It is not safe to reuse
// across concurrent driver executions; RunDriver constructs a fresh
// goja.Runtime every call for per-execution isolation.
type Runtime struct {
	opts Options

	vm *goja.Runtime

	net             networkMonitor
	dialogInstalled bool
	lastDialog      *DialogEvent
	popupEvents     []PopupEvent
	reported        map[string]string
	saved           []string
}

// New constructs a Runtime bound to page and the given options. Page
// must not be nil; Secrets and Metrics may be nil.
func New(page PageController, opts Options) *Runtime {
	if opts.Secrets == nil {
		opts.Secrets = noSecrets{}
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	opts.Page = page
	return &Runtime{
		opts:     opts,
		reported: make(map[string]string),
	}
}

// RunDriver executes source as a driver script. The source is wrapped
// in an async IIFE so top-level await is legal. Because
// every host binding this package installs blocks synchronously in Go
// before returning a plain value to JS (the browser driver's Send
// already waits on its CDP response channel), no awaited expression in
// a driver script is ever a genuinely pending promise: goja settles the
// wrapping IIFE's promise to fulfilled or rejected before RunString
// returns, so there is no separate host event loop to drive to
// idle — "drive until idle" degenerates to "call RunString once". This
// is a deliberate simplification over a driver that performed true
// concurrent I/O; every host binding here is synchronous end to end,
// so there is no job queue for an event loop to drive.
func (rt *Runtime) RunDriver(ctx context.Context, source string) Result {
	rt.vm = goja.New()

	if err := rt.installGlobals(ctx); err != nil {
		return rt.finish(Result{Outcome: OutcomeRejected, Error: err})
	}

	wrapped := "(async function(){\n" + source + "\n})()"
	v, err := rt.vm.RunString(wrapped)
	if err != nil {
		return rt.finish(rt.resultFromJSError(err))
	}

	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		// The driver script's top-level expression did not produce a
		// promise (e.g. an empty script); treat its value as fulfilled.
		return rt.finish(Result{Outcome: OutcomeFulfilled, Value: fmt.Sprint(v.Export())})
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return rt.finish(Result{Outcome: OutcomeFulfilled, Value: fmt.Sprint(promise.Result().Export())})
	case goja.PromiseStateRejected:
		return rt.finish(rt.resultFromRejection(promise.Result()))
	default:
		return rt.finish(Result{Outcome: OutcomePendingAtIdle})
	}
}

func (rt *Runtime) resultFromJSError(err error) Result {
	if exc, ok := err.(*goja.Exception); ok {
		return Result{
			Outcome: OutcomeRejected,
			Error:   rmerrors.DriverFault(exc.Error(), exc.String(), nil),
			JSStack: exc.String(),
		}
	}
	return Result{Outcome: OutcomeRejected, Error: rmerrors.DriverFault(err.Error(), "", err)}
}

func (rt *Runtime) resultFromRejection(reason goja.Value) Result {
	msg := fmt.Sprint(reason.Export())
	return Result{
		Outcome: OutcomeRejected,
		Error:   rmerrors.DriverFault(msg, msg, nil),
		JSStack: msg,
	}
}

func (rt *Runtime) finish(res Result) Result {
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordSandboxRun(string(res.Outcome))
	}
	res.ReportedKeys = rt.reported
	res.SavedFiles = rt.saved
	return res
}

// throwGoError panics with a JS Error wrapping err's message, the
// standard goja idiom for surfacing a Go failure as a JS exception from
// within a host-bound function.
func throwGoError(vm *goja.Runtime, err error) {
	panic(vm.NewGoError(err))
}
