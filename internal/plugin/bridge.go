// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/scripthost/internal/exchange"
	"github.com/holomush/scripthost/internal/vm"
)

// resultHandler converts call results while the guard is still held.
type resultHandler func(g *vm.Guard, results []lua.LValue) error

// invocationFailure joins ErrInvocationFailed with the underlying cause
// without changing the message.
type invocationFailure struct {
	cause error
}

func (e invocationFailure) Error() string {
	return e.cause.Error()
}

func (e invocationFailure) Unwrap() []error {
	return []error{ErrInvocationFailed, e.cause}
}

// CallVoid invokes function and discards its results. It does nothing unless
// the plugin is running; any failure moves the plugin to StatusError and is
// reported rather than returned.
func (p *Plugin) CallVoid(ctx context.Context, function string, args ...any) {
	if p.Status() != StatusRunning {
		PluginCalls.WithLabelValues(p.name, function, ResultSkipped).Inc()
		return
	}
	_ = p.invoke(ctx, function, args, 0, nil)
}

// Call invokes function on p and converts its single result to T. Supported
// targets are the integer and float kinds, bool, string, lua.LValue and any.
// Every failure wraps ErrInvocationFailed and carries a code KindOf reports.
func Call[T any](ctx context.Context, p *Plugin, function string, args ...any) (T, error) {
	var out T
	err := p.typedCall(ctx, function, args, func(_ *vm.Guard, results []lua.LValue) error {
		v, err := convertResult[T](results[0])
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// CallRef invokes function and returns the reference object it produced as a
// new native handle. The caller owns the handle and must Release it.
func CallRef[T any](ctx context.Context, p *Plugin, cls *exchange.Class[T], function string, args ...any) (*exchange.Ref[T], error) {
	var out *exchange.Ref[T]
	err := p.typedCall(ctx, function, args, func(_ *vm.Guard, results []lua.LValue) error {
		ref, ok := cls.Pull(results[0])
		if !ok {
			return typeMismatch(cls.Name(), results[0])
		}
		out = ref
		return nil
	})
	return out, err
}

// CallRefs invokes function and returns the array of reference objects it
// produced, in order. The caller owns every handle.
func CallRefs[T any](ctx context.Context, p *Plugin, cls *exchange.Class[T], function string, args ...any) ([]*exchange.Ref[T], error) {
	var out []*exchange.Ref[T]
	err := p.typedCall(ctx, function, args, func(_ *vm.Guard, results []lua.LValue) error {
		refs, err := cls.PullSlice(results[0])
		if err != nil {
			return oops.Code(CodeTypeMismatch).Wrap(err)
		}
		out = refs
		return nil
	})
	return out, err
}

func (p *Plugin) typedCall(ctx context.Context, function string, args []any, handle resultHandler) error {
	if status := p.Status(); status != StatusRunning {
		PluginCalls.WithLabelValues(p.name, function, ResultSkipped).Inc()
		return oops.In("plugin").
			Code(CodeLifecycleMisuse).
			With("plugin", p.name).
			With("function", function).
			With("status", status.String()).
			Wrap(invocationFailure{cause: fmt.Errorf("plugin %q is %s, not running", p.name, status)})
	}
	return p.invoke(ctx, function, args, 1, handle)
}

// invoke runs function under the guard. Failures are reported, move the
// plugin to StatusError and are returned for typed calls to pass on.
func (p *Plugin) invoke(ctx context.Context, function string, args []any, nret int, handle resultHandler) (err error) {
	callID := ulid.Make().String()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "plugin.call",
		trace.WithAttributes(
			attribute.String("plugin.name", p.name),
			attribute.String("plugin.function", function),
			attribute.String("plugin.call_id", callID),
		),
	)
	defer func() {
		status := ResultSuccess
		if err != nil {
			status = ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.fail(ctx, function, callID, err)
		}
		recordCall(p.name, function, status, time.Since(start))
		span.End()
	}()

	p.logger.DebugContext(ctx, "calling plugin function", "function", function, "call_id", callID)

	g, gerr := p.rt.Acquire()
	if gerr != nil {
		return p.callError(function, callID, CodeLifecycleMisuse, gerr)
	}
	defer g.Release()

	// The status may have changed while waiting for the guard.
	if p.Status() != StatusRunning || p.ns == nil {
		return p.callError(function, callID, CodeLifecycleMisuse,
			fmt.Errorf("plugin %q stopped running before the call", p.name))
	}

	res := p.ns.Lookup(g, function)
	switch res.Kind {
	case NotFound:
		return p.callError(function, callID, CodeSymbolNotFound,
			fmt.Errorf("function %q is not defined in plugin %q", function, p.name))
	case NotCallable:
		return p.callError(function, callID, CodeNotCallable,
			fmt.Errorf("%q in plugin %q is a %s, not a function", function, p.name, res.Value.Type()))
	}

	L := g.State()
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = marshal(L, a)
	}

	restore := bindContext(L, ctx)
	callErr := L.CallByParam(lua.P{
		Fn:      res.Fn,
		NRet:    nret,
		Protect: true,
	}, largs...)
	restore()
	if callErr != nil {
		return p.callError(function, callID, CodeInvocationFailure, callErr)
	}

	results := make([]lua.LValue, nret)
	for i := range nret {
		results[i] = L.Get(i - nret)
	}
	L.Pop(nret)

	if handle == nil {
		return nil
	}
	if herr := handle(g, results); herr != nil {
		code := KindOf(herr)
		if code == "" {
			code = CodeTypeMismatch
		}
		return p.callError(function, callID, code, herr)
	}
	return nil
}

func (p *Plugin) callError(function, callID, code string, cause error) error {
	return oops.In("plugin").
		Code(code).
		With("plugin", p.name).
		With("function", function).
		With("call_id", callID).
		Wrap(invocationFailure{cause: cause})
}
