// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/holomush/scripthost/internal/store"
)

var _ = Describe("PostgresKV", func() {
	var (
		ctx     context.Context
		connStr string
		cleanup func()
		kv      *store.PostgresKV
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		connStr, cleanup, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		kv, err = store.NewPostgresKV(ctx, connStr, store.DefaultConnectOptions)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		kv.Close()
		cleanup()
	})

	Context("before migrations", func() {
		It("reports the missing schema with a hint", func() {
			_, err := kv.Get(ctx, "echo", "k")
			Expect(err).To(HaveOccurred())

			oopsErr, ok := oops.AsOops(err)
			Expect(ok).To(BeTrue())
			Expect(oopsErr.Code()).To(Equal(store.CodeSchema))
			Expect(oopsErr.Hint()).To(ContainSubstring("migrate up"))
		})
	})

	Context("after migrations", func() {
		BeforeEach(func() {
			m, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(m.Close)
			Expect(m.Up()).To(Succeed())
		})

		It("round-trips values", func() {
			Expect(kv.Set(ctx, "echo", "greeting", []byte("hi"))).To(Succeed())

			got, err := kv.Get(ctx, "echo", "greeting")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(got)).To(Equal("hi"))
		})

		It("overwrites on a second set", func() {
			Expect(kv.Set(ctx, "echo", "k", []byte("one"))).To(Succeed())
			Expect(kv.Set(ctx, "echo", "k", []byte("two"))).To(Succeed())

			got, err := kv.Get(ctx, "echo", "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(got)).To(Equal("two"))
		})

		It("keeps namespaces apart", func() {
			Expect(kv.Set(ctx, "alpha", "k", []byte("a"))).To(Succeed())

			got, err := kv.Get(ctx, "beta", "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("deletes keys", func() {
			Expect(kv.Set(ctx, "echo", "k", []byte("v"))).To(Succeed())
			Expect(kv.Delete(ctx, "echo", "k")).To(Succeed())
			Expect(kv.Delete(ctx, "echo", "k")).To(Succeed())

			got, err := kv.Get(ctx, "echo", "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})
	})
})

var _ = Describe("Migrator", func() {
	It("walks the full migration cycle", func() {
		ctx := context.Background()
		connStr, cleanup, err := startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cleanup)

		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(m.Close)

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(m.Up()).To(Succeed())
		latest, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(BeNumerically(">", 0))
		Expect(dirty).To(BeFalse())

		pending, err := m.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(m.Steps(-1)).To(Succeed())
		version, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(m.Steps(1)).To(Succeed())
		Expect(m.Down()).To(Succeed())
		version, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(m.Force(1)).To(Succeed())
		version, dirty, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})
})
