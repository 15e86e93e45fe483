// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scripthost/internal/store"
	"github.com/holomush/scripthost/pkg/errutil"
)

func TestMemoryKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	got, err := kv.Get(ctx, "echo", "missing")
	require.NoError(t, err)
	assert.Nil(t, got, "absent keys read as nil")

	require.NoError(t, kv.Set(ctx, "echo", "greeting", []byte("hi")))
	got, err = kv.Get(ctx, "echo", "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	require.NoError(t, kv.Delete(ctx, "echo", "greeting"))
	got, err = kv.Get(ctx, "echo", "greeting")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, kv.Delete(ctx, "echo", "greeting"), "deleting twice is fine")
}

func TestMemoryKV_NamespacesAreSeparate(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	require.NoError(t, kv.Set(ctx, "alpha", "k", []byte("a")))
	require.NoError(t, kv.Set(ctx, "beta", "k", []byte("b")))

	a, err := kv.Get(ctx, "alpha", "k")
	require.NoError(t, err)
	b, err := kv.Get(ctx, "beta", "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
	assert.Equal(t, []string{"k"}, kv.Keys("alpha"))
}

func TestMemoryKV_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	value := []byte("abc")
	require.NoError(t, kv.Set(ctx, "ns", "k", value))
	value[0] = 'x'

	got, err := kv.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := kv.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryKV_EmptyValueIsNotMissing(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	require.NoError(t, kv.Set(ctx, "ns", "k", nil))
	got, err := kv.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryKV_RejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	err := kv.Set(ctx, "", "k", []byte("v"))
	errutil.AssertErrorCode(t, err, store.CodeInvalidKey)
	_, err = kv.Get(ctx, "ns", "")
	errutil.AssertErrorCode(t, err, store.CodeInvalidKey)
}

func TestMemoryKV_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.NewMemoryKV().Set(ctx, "ns", "k", []byte("v"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryKV_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, kv.Set(ctx, "ns", key, []byte(key)))
			_, err := kv.Get(ctx, "ns", key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, kv.Keys("ns"), 16)
}
