// Package postgres implements the data-store gateway on top of a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
)

// Pool is the slice of pgxpool the gateway depends on. Tests substitute a
// fake; production uses the adapter in pool.go.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Close()
}

// Conn is one pooled connection. Release must be safe to call exactly once
// per acquisition and is attempted on all exit paths.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error)
	Release()
}

// Tx is the narrow transaction surface the gateway uses. pgx.Tx satisfies
// it directly.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Rollback(ctx context.Context) error
}

// Gateway runs statements against the data store. It holds no state beyond
// its dependencies.
type Gateway struct {
	pool    Pool
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewGateway creates a gateway over the given pool.
func NewGateway(pool Pool, logger *logging.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{pool: pool, logger: logger, metrics: m}
}

// Query acquires a pooled connection, executes the statement, and releases
// the connection before returning, on success and on error.
func (g *Gateway) Query(ctx context.Context, sql string, args ...any) ([]domain.Row, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, domain.NewInfrastructureError("failed to acquire connection", err)
	}
	defer conn.Release()

	return g.observe(func() ([]domain.Row, error) {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return nil, domain.NewInfrastructureError("query failed", err)
		}
		return collectRows(rows)
	})
}

// QueryReadOnly executes caller-supplied SQL verbatim inside a read-only
// transaction. The transaction is always rolled back, never committed; a
// rollback failure is logged and swallowed so it cannot mask the primary
// result or error.
func (g *Gateway) QueryReadOnly(ctx context.Context, sql string) ([]domain.Row, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, domain.NewInfrastructureError("failed to acquire connection", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, domain.NewInfrastructureError("failed to begin read-only transaction", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			g.logger.Warn("rollback failed", logging.Fields{"error": err.Error()})
		}
	}()

	return g.observe(func() ([]domain.Row, error) {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return nil, domain.NewToolExecutionError("query failed", err)
		}
		return collectRows(rows)
	})
}

// observe wraps a query execution with metrics recording.
func (g *Gateway) observe(run func() ([]domain.Row, error)) ([]domain.Row, error) {
	start := time.Now()
	result, err := run()
	g.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.Queries.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	g.metrics.Queries.WithLabelValues(metrics.OutcomeOK).Inc()
	return result, nil
}

// collectRows drains a result set into ordered column-to-value maps.
func collectRows(rows pgx.Rows) ([]domain.Row, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []domain.Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, domain.NewInfrastructureError("failed to read row", err)
		}
		row := make(domain.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewToolExecutionError("query failed", err)
	}
	return out, nil
}
