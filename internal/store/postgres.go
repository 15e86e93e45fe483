// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Postgres store error codes.
const (
	CodeConnect     = "KV_CONNECT_FAILED"
	CodeSchema      = "KV_SCHEMA_MISSING"
	CodeQueryFailed = "KV_QUERY_FAILED"
)

// poolIface is the part of *pgxpool.Pool the store uses, so tests can swap in
// pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresKV stores plugin keys in the plugin_kv table.
type PostgresKV struct {
	pool poolIface
}

// ConnectOptions tunes the initial connection attempt.
type ConnectOptions struct {
	// Attempts is how many pings are tried before giving up.
	Attempts uint64
	// Backoff is the first delay between pings; it doubles each attempt.
	Backoff time.Duration
}

// DefaultConnectOptions retries for a few seconds, long enough for a database
// container that is still starting.
var DefaultConnectOptions = ConnectOptions{Attempts: 5, Backoff: 200 * time.Millisecond}

// NewPostgresKV opens a pool against dsn and waits until the database answers.
func NewPostgresKV(ctx context.Context, dsn string, opts ConnectOptions) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("store").Code(CodeConnect).With("operation", "create pool").Wrap(err)
	}
	kv := &PostgresKV{pool: pool}
	if err := kv.waitReady(ctx, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return kv, nil
}

// NewPostgresKVFromPool wraps an existing pool.
func NewPostgresKVFromPool(pool *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

func (s *PostgresKV) waitReady(ctx context.Context, opts ConnectOptions) error {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions.Backoff
	}
	// WithMaxRetries counts retries after the first attempt.
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.In("store").Code(CodeConnect).With("operation", "ping").
			With("attempts", opts.Attempts).Wrap(err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresKV) Close() {
	s.pool.Close()
}

// Get returns the stored value, or nil when the key is absent.
func (s *PostgresKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := checkKey(ctx, namespace, key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM plugin_kv WHERE namespace = $1 AND key = $2`,
		namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryError(err, "get", namespace, key)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set inserts or overwrites the key.
func (s *PostgresKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := checkKey(ctx, namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO plugin_kv (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		namespace, key, value)
	if err != nil {
		return queryError(err, "set", namespace, key)
	}
	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	if err := checkKey(ctx, namespace, key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM plugin_kv WHERE namespace = $1 AND key = $2`,
		namespace, key)
	if err != nil {
		return queryError(err, "delete", namespace, key)
	}
	return nil
}

// queryError points at the migrate command when the table has not been
// created yet.
func queryError(err error, operation, namespace, key string) error {
	b := oops.In("store").With("operation", operation).With("namespace", namespace).With("key", key)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return b.Code(CodeSchema).Hint("run `scripthost migrate up` to create the plugin_kv table").Wrap(err)
	}
	return b.Code(CodeQueryFailed).Wrap(err)
}
