package domain

import "context"

// DataStore is the capability the dispatcher needs from the relational
// engine. The pgx-backed gateway implements it; tests use fakes.
type DataStore interface {
	// Query runs a statement on a pooled connection and returns its rows.
	// The connection is released on every exit path.
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)

	// QueryReadOnly runs caller-supplied SQL verbatim inside a transaction
	// explicitly marked read-only. The transaction is always rolled back,
	// never committed, regardless of outcome.
	QueryReadOnly(ctx context.Context, sql string) ([]Row, error)
}
