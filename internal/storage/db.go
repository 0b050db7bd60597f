package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"calmchat/internal/util"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

// NewDB connects and pings, so an unreachable database fails here rather than on first use.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &util.StoreUnavailableError{Op: "connect", Err: err}
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// storeErr wraps err with op, mapping connectivity failures to *util.StoreUnavailableError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return &util.StoreUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	var (
		connErr *pgconn.ConnectError
		pgErr   *pgconn.PgError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &connErr):
		return true
	case errors.As(err, &pgErr):
		// Class 08 is connection exceptions; 57P0x is server shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	case errors.As(err, &netErr):
		return true
	case pgconn.Timeout(err), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
