// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides the key-value stores behind the host.kv_* functions.
// Every key lives inside a namespace, one per plugin.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/oops"
)

// CodeInvalidKey marks an empty namespace or key.
const CodeInvalidKey = "KV_INVALID_KEY"

// MemoryKV is an in-process store. The zero value is not usable; call
// NewMemoryKV.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryKV returns an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the value, or nil when the key is absent.
func (s *MemoryKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := checkKey(ctx, namespace, key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[namespace][key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(value), nil
}

// Set stores a copy of value.
func (s *MemoryKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := checkKey(ctx, namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	if value == nil {
		value = []byte{}
	}
	ns[key] = slices.Clone(value)
	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *MemoryKV) Delete(ctx context.Context, namespace, key string) error {
	if err := checkKey(ctx, namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.data[namespace]
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.data, namespace)
	}
	return nil
}

// Keys lists a namespace's keys, sorted.
func (s *MemoryKV) Keys(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data[namespace]))
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func checkKey(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return oops.In("store").With("namespace", namespace).With("key", key).Wrap(err)
	}
	if namespace == "" || key == "" {
		return oops.In("store").Code(CodeInvalidKey).With("namespace", namespace).With("key", key).
			Errorf("namespace and key must be non-empty")
	}
	return nil
}
