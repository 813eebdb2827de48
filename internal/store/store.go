// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package store provides the PostgreSQL-backed collaborators of the fan-out
// core: token lookup, the durable offline-notification sink and the
// preference, bookmark and inquiry stores written to by client requests.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgxpool.Pool the repositories need. pgxmock's
// PgxPoolIface satisfies it, keeping repository tests database-free.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
