package pgsql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql"
	"github.com/pgkit/pgsql/internal/pgmock"
	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgproto"
)

const insertWidgetSQL = "insert into widgets(id, name) values ($1, $2)"

func insertBindStep(id int32, name string) pgmock.Step {
	return pgmock.ExpectMessage(&pgproto.Bind{
		PreparedStatement:    "ins",
		ParameterFormatCodes: []int16{1, 1},
		Parameters:           [][]byte{int4Bytes(id), []byte(name)},
		ResultFormatCodes:    []int16{},
	})
}

func TestLoadRows(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ins", insertWidgetSQL, []uint32{23, 25}, nil)...)
	steps = append(steps,
		insertBindStep(1, "gear"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		insertBindStep(2, "cog"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ins", insertWidgetSQL)
	require.NoError(t, err)

	rowsAffected, err := ps.LoadRows(ctx, [][]interface{}{
		{1, "gear"},
		{2, "cog"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, rowsAffected)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestLoadRowsArityError(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ins", insertWidgetSQL, []uint32{23, 25}, nil)...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ins", insertWidgetSQL)
	require.NoError(t, err)

	// The bad tuple aborts the whole batch before anything is sent, even
	// though the first tuple is valid.
	rowsAffected, err := ps.LoadRows(ctx, [][]interface{}{
		{1, "gear"},
		{2},
		{3, "sprocket"},
	})
	var arityErr *pgsql.BatchArityError
	require.ErrorAs(t, err, &arityErr)
	assert.Equal(t, 1, arityErr.Position)
	assert.Equal(t, 2, arityErr.Expected)
	assert.Equal(t, 1, arityErr.Actual)
	assert.EqualValues(t, 0, rowsAffected)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestLoadChunksGlobalPosition(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ins", insertWidgetSQL, []uint32{23, 25}, nil)...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ins", insertWidgetSQL)
	require.NoError(t, err)

	// A bad tuple in a later chunk aborts the whole load before the first
	// chunk is sent. Its position counts across chunks.
	rowsAffected, err := ps.LoadChunks(ctx, [][][]interface{}{
		{{1, "gear"}, {2, "cog"}},
		{{3, "sprocket", "extra"}},
	})
	var arityErr *pgsql.BatchArityError
	require.ErrorAs(t, err, &arityErr)
	assert.Equal(t, 2, arityErr.Position)
	assert.Equal(t, 2, arityErr.Expected)
	assert.Equal(t, 3, arityErr.Actual)
	assert.EqualValues(t, 0, rowsAffected)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestLoadChunks(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ins", insertWidgetSQL, []uint32{23, 25}, nil)...)
	steps = append(steps,
		insertBindStep(1, "gear"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		insertBindStep(2, "cog"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),

		insertBindStep(3, "sprocket"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ins", insertWidgetSQL)
	require.NoError(t, err)

	rowsAffected, err := ps.LoadChunks(ctx, [][][]interface{}{
		{{1, "gear"}, {2, "cog"}},
		{{3, "sprocket"}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, rowsAffected)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestLoadRowsServerError(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ins", insertWidgetSQL, []uint32{23, 25}, nil)...)
	steps = append(steps,
		insertBindStep(1, "gear"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		insertBindStep(1, "dup"),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "INSERT 0 1"}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.ErrorResponse{Severity: "ERROR", Code: "23505", Message: "duplicate key value"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ins", insertWidgetSQL)
	require.NoError(t, err)

	_, err = ps.LoadRows(ctx, [][]interface{}{
		{1, "gear"},
		{1, "dup"},
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}
