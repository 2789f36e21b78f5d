package pgsql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql"
	"github.com/pgkit/pgsql/internal/pgmock"
	"github.com/pgkit/pgsql/pgproto"
)

func simpleQuerySteps(sql, commandTag string, txStatus byte) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto.Query{String: sql}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: commandTag}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: txStatus}),
	}
}

func TestTxCommit(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps, simpleQuerySteps("commit", "COMMIT", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.Depth())

	require.NoError(t, tx.Commit(ctx))

	// The handle is single use.
	require.Equal(t, pgsql.ErrTxClosed, tx.Commit(ctx))
	require.Equal(t, pgsql.ErrTxClosed, tx.Rollback(ctx))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxBeginTxOptions(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin isolation level serializable read only", "BEGIN", 'T')...)
	steps = append(steps, simpleQuerySteps("rollback", "ROLLBACK", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	tx, err := conn.BeginTx(ctx, pgsql.TxOptions{IsoLevel: pgsql.Serializable, AccessMode: pgsql.ReadOnly})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxNestedSavepoints(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps, simpleQuerySteps("savepoint s1", "SAVEPOINT", 'T')...)
	steps = append(steps, simpleQuerySteps("savepoint s2", "SAVEPOINT", 'T')...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "rollback to savepoint s2; release savepoint s2"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "ROLLBACK"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "RELEASE"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'T'}),
	)
	steps = append(steps, simpleQuerySteps("release savepoint s1", "RELEASE", 'T')...)
	steps = append(steps, simpleQuerySteps("commit", "COMMIT", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	outer, err := conn.Begin(ctx)
	require.NoError(t, err)

	mid, err := conn.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mid.Depth())

	inner, err := conn.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.Depth())

	require.NoError(t, inner.Rollback(ctx))
	require.NoError(t, mid.Commit(ctx))
	require.NoError(t, outer.Commit(ctx))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxLIFOViolation(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps, simpleQuerySteps("savepoint s1", "SAVEPOINT", 'T')...)
	steps = append(steps, simpleQuerySteps("release savepoint s1", "RELEASE", 'T')...)
	steps = append(steps, simpleQuerySteps("commit", "COMMIT", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	outer, err := conn.Begin(ctx)
	require.NoError(t, err)

	inner, err := conn.Begin(ctx)
	require.NoError(t, err)

	// Closing the outer frame with the inner still open issues no SQL.
	var nestingErr *pgsql.TxNestingError
	err = outer.Commit(ctx)
	require.ErrorAs(t, err, &nestingErr)
	assert.Equal(t, "commit", nestingErr.Op)
	assert.Equal(t, 2, nestingErr.Depth)

	err = outer.Rollback(ctx)
	require.ErrorAs(t, err, &nestingErr)
	assert.Equal(t, "rollback", nestingErr.Op)

	// Unwinding in order works.
	require.NoError(t, inner.Commit(ctx))
	require.NoError(t, outer.Commit(ctx))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxNestedOptionsRejected(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps, simpleQuerySteps("rollback", "ROLLBACK", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	_, err = conn.BeginTx(ctx, pgsql.TxOptions{IsoLevel: pgsql.Serializable})
	require.Error(t, err)

	require.NoError(t, tx.Rollback(ctx))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxFailedTransaction(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "update widgets set name = 'x'"}),
		pgmock.SendMessage(&pgproto.ErrorResponse{Severity: "ERROR", Code: "42703", Message: "column does not exist"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'E'}),
	)
	steps = append(steps, simpleQuerySteps("rollback", "ROLLBACK", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "update widgets set name = 'x'")
	require.Error(t, err)
	require.EqualValues(t, 'E', conn.PgConn().TxStatus())

	// Everything but rollback is refused locally while the transaction is
	// failed.
	_, err = conn.Exec(ctx, "select 1")
	require.Equal(t, pgsql.ErrTxAborted, err)

	require.NoError(t, tx.Rollback(ctx))
	require.EqualValues(t, 'I', conn.PgConn().TxStatus())

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestTxCommitOnFailedTransaction(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, simpleQuerySteps("begin", "BEGIN", 'T')...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "update widgets set name = 'x'"}),
		pgmock.SendMessage(&pgproto.ErrorResponse{Severity: "ERROR", Code: "42703", Message: "column does not exist"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'E'}),
	)
	steps = append(steps, simpleQuerySteps("rollback", "ROLLBACK", 'I')...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "update widgets set name = 'x'")
	require.Error(t, err)

	// Commit of a failed transaction rolls back instead and says so.
	require.Equal(t, pgsql.ErrTxCommitRollback, tx.Commit(ctx))
	require.EqualValues(t, 'I', conn.PgConn().TxStatus())

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}
