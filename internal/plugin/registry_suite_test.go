// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/scripthost/internal/exchange"
	"github.com/holomush/scripthost/internal/plugin"
)

var _ = Describe("Registry", func() {
	var (
		ctx context.Context
		reg *plugin.Registry
		rec *plugin.RecordingReporter
		dir string
	)

	script := func(name, body string) string {
		path := filepath.Join(dir, name+".lua")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		rec = &plugin.RecordingReporter{}

		var err error
		reg, err = plugin.NewRegistry(
			plugin.WithReporter(rec),
			plugin.WithBindings(exchange.RecordClass),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(reg.Close(ctx)).To(Succeed())
		Expect(reg.Runtime().Running()).To(BeFalse())
	})

	Describe("runtime lifecycle", func() {
		It("treats repeated init and finalize as one", func() {
			rt := reg.Runtime()
			rt.Init()
			rt.Init()
			Expect(rt.Running()).To(BeTrue())

			Expect(reg.Close(ctx)).To(Succeed())
			Expect(reg.Close(ctx)).To(Succeed())
			Expect(rt.Running()).To(BeFalse())
		})
	})

	Describe("the foo plugin", func() {
		var foo *plugin.Plugin

		BeforeEach(func() {
			foo = reg.Register(ctx, "foo", script("foo", fooScript))
		})

		It("runs", func() {
			Expect(foo.Status()).To(Equal(plugin.StatusRunning))
		})

		It("accepts fire-and-forget calls without diagnostics", func() {
			foo.CallVoid(ctx, "test")
			Expect(rec.Diagnostics()).To(BeEmpty())
		})

		It("returns 123 from test3_int", func() {
			Expect(plugin.Call[int](ctx, foo, "test3_int")).To(Equal(123))
		})

		Context("when replaced by a script that raises during load", func() {
			var second *plugin.Plugin

			BeforeEach(func() {
				second = reg.Register(ctx, "foo", script("foo2", `
					function test() error("raised") end
					test()
				`))
			})

			It("discards the first namespace", func() {
				Expect(foo.Has(ctx, "test3_int")).To(BeFalse())
				Expect(reg.Get("foo")).To(BeIdenticalTo(second))
			})

			It("marks the replacement as failed", func() {
				Expect(second.Status()).To(Equal(plugin.StatusError))
				Expect(rec.Diagnostics()).To(HaveLen(1))
			})

			It("turns fire-and-forget calls into no-ops", func() {
				second.CallVoid(ctx, "test")
				Expect(rec.Diagnostics()).To(HaveLen(1))
				Expect(second.Status()).To(Equal(plugin.StatusError))
			})

			It("fails typed calls instead of returning a default", func() {
				_, err := plugin.Call[int](ctx, second, "test3_int")
				Expect(err).To(MatchError(plugin.ErrInvocationFailed))
				Expect(plugin.KindOf(err)).To(Equal(plugin.CodeLifecycleMisuse))
			})
		})
	})

	Describe("namespace isolation", func() {
		It("keeps same-named symbols apart", func() {
			a := reg.Register(ctx, "a", script("a", `value = "a"; function get() return value end`))
			b := reg.Register(ctx, "b", script("b", `value = "b"; function get() return value end`))

			Expect(plugin.Call[string](ctx, a, "get")).To(Equal("a"))
			Expect(plugin.Call[string](ctx, b, "get")).To(Equal("b"))
		})

		It("does not carry symbols over when a name is re-registered", func() {
			reg.Register(ctx, "n", script("n1", `function old() return 1 end`))
			p := reg.Register(ctx, "n", script("n2", `function new() return 2 end`))

			Expect(p.Has(ctx, "old")).To(BeFalse())
			Expect(p.Has(ctx, "new")).To(BeTrue())
		})
	})

	Describe("typed calls", func() {
		It("reports a text result requested as int as a type mismatch", func() {
			p := reg.Register(ctx, "f", script("f", `function f() return "text" end`))

			_, err := plugin.Call[int](ctx, p, "f")
			Expect(plugin.KindOf(err)).To(Equal(plugin.CodeTypeMismatch))
			Expect(p.Status()).To(Equal(plugin.StatusError))
		})
	})

	DescribeTable("reference sequences round-trip with their identity",
		func(n int) {
			p := reg.Register(ctx, "records", script("records", recordScript))

			refs, err := plugin.CallRefs(ctx, p, exchange.RecordClass, "make", n)
			Expect(err).NotTo(HaveOccurred())
			Expect(refs).To(HaveLen(n))
			DeferCleanup(func() {
				for _, r := range refs {
					r.Release()
				}
			})

			want := ""
			for i, r := range refs {
				r.Get().AInt = -i
				if i > 0 {
					want += ","
				}
				want += fmt.Sprint(-i)
			}

			Expect(plugin.Call[string](ctx, p, "read", refs)).To(Equal(want))
		},
		Entry("empty", 0),
		Entry("single", 1),
		Entry("several", 5),
	)
})
