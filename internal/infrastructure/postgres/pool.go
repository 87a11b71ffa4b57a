package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool adapts *pgxpool.Pool to the Pool interface.
type pgxPool struct {
	pool *pgxpool.Pool
}

// pgxConn adapts *pgxpool.Conn to the Conn interface.
type pgxConn struct {
	conn *pgxpool.Conn
}

// NewPool connects to the data store at the given URL and verifies the
// connection with a ping.
func NewPool(ctx context.Context, databaseURL string) (Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach data store: %w", err)
	}
	return &pgxPool{pool: pool}, nil
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: conn}, nil
}

func (p *pgxPool) Close() {
	p.pool.Close()
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *pgxConn) Release() {
	c.conn.Release()
}
