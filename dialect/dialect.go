// Package dialect provides the database driver abstraction used by warden.
//
// The authorization layer itself performs no I/O; all statement execution
// is delegated to a Driver. Any database/sql-compatible backend can be
// plugged in through the dialect/sql sub-package.
package dialect

import "context"

// Supported dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard database operations.
//
// Exec executes a statement that returns no rows. If v is not nil, it must
// be a *sql.Result that receives the execution result.
//
// Query executes a statement that returns rows. v must be a *sql.Rows
// provided by the dialect/sql package.
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface every database backend implements.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction execution. A Tx is also an ExecQuerier, so it can
// stand in for a Driver connection for the duration of the transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// NopTx returns a Tx that executes statements on drv and treats
// Commit and Rollback as no-ops.
func NopTx(drv Driver) Tx {
	return nopTx{drv}
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
