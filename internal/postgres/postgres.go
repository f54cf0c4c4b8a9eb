// Package postgres holds the plumbing shared by every store: pool setup,
// transactions and the mapping of driver errors onto the error taxonomy.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
)

const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

type Config struct {
	Addr     string
	User     string
	Pass     string
	Name     string
	MaxConns int32
}

// DSN renders the connection string understood by both pgx and bun's pgdriver.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", c.User, c.Pass, c.Addr, c.Name)
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, c Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, err
	}
	if c.MaxConns > 0 {
		cc.MaxConns = c.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// WithTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Nothing is retried.
func WithTx(ctx context.Context, db *pgxpool.Pool, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}

	return nil
}

// Classify turns contention and connectivity failures into ErrStoreUnavailable
// and leaves every other error untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if IsCode(err, CodeSerializationFailure) || IsCode(err, CodeDeadlockDetected) {
		return domain.ErrStoreUnavailable.With(
			errors.WithCause(err),
			errors.WithMessagef("transaction aborted by a concurrent writer"),
		)
	}

	var (
		netErr  net.Error
		connErr *pgconn.ConnectError
	)
	if stderrors.As(err, &netErr) || stderrors.As(err, &connErr) || pgconn.SafeToRetry(err) || stderrors.Is(err, pgx.ErrTxClosed) {
		return domain.ErrStoreUnavailable.With(
			errors.WithCause(err),
			errors.WithMessagef("store unreachable"),
		)
	}

	return err
}

// IsCode reports whether err carries the Postgres SQLSTATE code.
func IsCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == code
}
