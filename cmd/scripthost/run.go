// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/scripthost/internal/callexpr"
	"github.com/holomush/scripthost/internal/exchange"
	"github.com/holomush/scripthost/internal/plugin"
)

// CodeCallsFailed marks a run in which at least one expression failed.
const CodeCallsFailed = "CALLS_FAILED"

// NewRunCmd creates the run subcommand.
func NewRunCmd(app *cli) *cobra.Command {
	var plugins []string

	cmd := &cobra.Command{
		Use:   "run [flags] EXPR...",
		Short: "Load plugins and evaluate call expressions",
		Long: `Load the configured plugins, plus any given with --plugin, then
evaluate each call expression in order and print its result.

An expression names a plugin, a function, literal arguments and an
optional result kind (void, any, int, float, string, bool, record,
records):

  scripthost run --plugin foo=foo.lua 'foo.test()' 'foo.test3_int() : int'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := make([]pluginSpec, 0, len(plugins))
			for _, p := range plugins {
				spec, err := parsePluginSpec(p)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			return runCalls(cmd.Context(), app, cmd.OutOrStdout(), specs, args)
		},
	}

	cmd.Flags().StringArrayVar(&plugins, "plugin", nil, "plugin to register as name=path (repeatable)")

	return cmd
}

func runCalls(ctx context.Context, app *cli, out io.Writer, specs []pluginSpec, exprs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	calls := make([]*callexpr.Call, 0, len(exprs))
	for _, expr := range exprs {
		call, err := callexpr.Parse(expr)
		if err != nil {
			return err
		}
		calls = append(calls, call)
	}

	h, err := newHost(ctx, app.cfg, specs)
	if err != nil {
		return err
	}
	defer h.close(ctx)

	failed := 0
	for _, call := range calls {
		result, err := evaluate(ctx, h.registry, call)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "%s !! %s (%s)\n", call, err, plugin.KindOf(err))
			continue
		}
		_, _ = fmt.Fprintf(out, "%s => %s\n", call, result)
	}

	if failed > 0 {
		return oops.Code(CodeCallsFailed).With("failed", failed).With("total", len(calls)).
			Errorf("%d of %d calls failed", failed, len(calls))
	}
	return nil
}

// evaluate performs call and formats its result.
func evaluate(ctx context.Context, reg *plugin.Registry, call *callexpr.Call) (string, error) {
	p, err := reg.Get(call.Plugin)
	if err != nil {
		return "", err
	}
	args := call.Arguments()

	switch call.Result {
	case callexpr.ResultVoid:
		v, err := plugin.Call[any](ctx, p, call.Function, args...)
		releaseAll(v)
		if err != nil {
			return "", err
		}
		return "ok", nil
	case callexpr.ResultInt:
		v, err := plugin.Call[int64](ctx, p, call.Function, args...)
		return strconv.FormatInt(v, 10), err
	case callexpr.ResultFloat:
		v, err := plugin.Call[float64](ctx, p, call.Function, args...)
		return strconv.FormatFloat(v, 'g', -1, 64), err
	case callexpr.ResultString:
		v, err := plugin.Call[string](ctx, p, call.Function, args...)
		return strconv.Quote(v), err
	case callexpr.ResultBool:
		v, err := plugin.Call[bool](ctx, p, call.Function, args...)
		return strconv.FormatBool(v), err
	case callexpr.ResultRecord:
		ref, err := plugin.CallRef(ctx, p, exchange.RecordClass, call.Function, args...)
		if err != nil {
			return "", err
		}
		defer ref.Release()
		return ref.Get().ToStr(), nil
	case callexpr.ResultRecords:
		refs, err := plugin.CallRefs(ctx, p, exchange.RecordClass, call.Function, args...)
		if err != nil {
			return "", err
		}
		parts := make([]string, len(refs))
		for i, ref := range refs {
			parts[i] = ref.Get().ToStr()
			ref.Release()
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		v, err := plugin.Call[any](ctx, p, call.Function, args...)
		defer releaseAll(v)
		if err != nil {
			return "", err
		}
		return format(v), nil
	}
}

// format renders a converted script value.
func format(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case exchange.Object:
		return fmt.Sprint(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = format(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[any]any:
		parts := make([]string, 0, len(val))
		for k, elem := range val {
			parts = append(parts, fmt.Sprint(k)+" = "+format(elem))
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}

// releaseAll drops the handles a converted result holds.
func releaseAll(v any) {
	switch val := v.(type) {
	case exchange.Object:
		exchange.Release(val)
	case []any:
		for _, elem := range val {
			releaseAll(elem)
		}
	case map[any]any:
		for _, elem := range val {
			releaseAll(elem)
		}
	}
}
