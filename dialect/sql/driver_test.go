package sql

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/warden/dialect"
)

func mockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return OpenDB(dialect.SQLite, db), mock
}

func TestDriverExec(t *testing.T) {
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE users").
		WithArgs("a", 1).
		WillReturnResult(sqlmock.NewResult(0, 3))

	var res Result
	err := drv.Exec(ctx, "UPDATE users SET name = ? WHERE id = ?", []any{"a", 1}, &res)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Invalid result receiver.
	err = drv.Exec(ctx, "UPDATE users SET name = ?", []any{"a"}, "not a result")
	assert.Error(t, err)

	// Invalid args type.
	err = drv.Exec(ctx, "UPDATE users SET name = ?", "a", nil)
	assert.Error(t, err)
}

func TestDriverQuery(t *testing.T) {
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "a").
			AddRow(2, "b"))

	var rows Rows
	require.NoError(t, drv.Query(ctx, "SELECT id, name FROM users", []any{}, &rows))
	defer rows.Close()

	var got []string
	for rows.Next() {
		var (
			id   int64
			name string
		)
		require.NoError(t, rows.Scan(&id, &name))
		got = append(got, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b"}, got)

	// Invalid rows receiver.
	err := drv.Query(ctx, "SELECT 1", []any{}, new(int))
	assert.Error(t, err)
}

func TestDriverTx(t *testing.T) {
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO users DEFAULT VALUES", []any{}, nil))
	require.NoError(t, tx.Commit())

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err = drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dialect.SQLite, OpenDB("sqlite", db).Dialect())
	// Instrumented driver names keep their dialect prefix.
	assert.Equal(t, dialect.MySQL, OpenDB("mysql-instrumented", db).Dialect())
	assert.Equal(t, dialect.Postgres, OpenDB("postgres", db).Dialect())
}

func TestStatsDriver(t *testing.T) {
	drv, mock := mockDriver(t)
	stats := NewStatsDriver(drv)
	ctx := context.Background()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))

	var rows Rows
	require.NoError(t, stats.Query(ctx, "SELECT 1", []any{}, &rows))
	rows.Close()
	require.NoError(t, stats.Exec(ctx, "UPDATE users SET a = 1", []any{}, nil))

	snap := stats.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.TotalQueries)
	assert.EqualValues(t, 1, snap.TotalExecs)
	assert.EqualValues(t, 0, snap.Errors)

	// Failed statements are counted as errors.
	require.Error(t, stats.Exec(ctx, "UPDATE nope", []any{}, nil))
	assert.EqualValues(t, 1, stats.Stats().Snapshot().Errors)

	stats.Stats().Reset()
	assert.EqualValues(t, 0, stats.Stats().Snapshot().TotalQueries)
}

func TestStatsDriverSlowQueryLog(t *testing.T) {
	drv, mock := mockDriver(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	// Threshold zero: every statement is slow.
	stats := NewStatsDriver(drv, WithSlowQueryLog(log, 0))

	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, stats.Exec(context.Background(), "UPDATE users SET a = 1", []any{}, nil))
	assert.Contains(t, buf.String(), "slow statement")
	assert.Contains(t, buf.String(), "UPDATE users SET a = 1")
}

func TestDebugDriverLogsStatements(t *testing.T) {
	drv, mock := mockDriver(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	debug := NewDebugDriver(drv, log)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	var rows Rows
	require.NoError(t, debug.Query(context.Background(), "SELECT 1", []any{}, &rows))
	rows.Close()
	assert.Contains(t, buf.String(), "SELECT 1")
}

func TestNopTx(t *testing.T) {
	drv, _ := mockDriver(t)
	tx := dialect.NopTx(drv)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}
