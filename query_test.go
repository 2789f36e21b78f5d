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

var widgetFields = []pgproto.FieldDescription{
	{Name: "id", DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1},
	{Name: "name", DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
}

func TestPrepareQuery(t *testing.T) {
	sql := "select id, name from widgets where id = $1"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ps1", sql, []uint32{23}, widgetFields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Bind{
			PreparedStatement:    "ps1",
			ParameterFormatCodes: []int16{1},
			Parameters:           [][]byte{int4Bytes(42)},
			ResultFormatCodes:    []int16{1, 1},
		}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.DataRow{Values: [][]byte{int4Bytes(42), []byte("sprocket")}}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ps1", sql)
	require.NoError(t, err)
	require.Len(t, ps.ParameterOIDs, 1)
	require.Len(t, ps.FieldDescriptions, 2)

	rows, err := ps.Query(ctx, 42)
	require.NoError(t, err)

	require.True(t, rows.Next())
	var id int32
	var name string
	require.NoError(t, rows.Scan(&id, &name))
	assert.EqualValues(t, 42, id)
	assert.Equal(t, "sprocket", name)

	assert.False(t, rows.Next())
	assert.EqualValues(t, "SELECT 1", rows.CommandTag())

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestQueryRowNoRows(t *testing.T) {
	sql := "select id, name from widgets where id = $1"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("", sql, []uint32{23}, widgetFields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Bind{
			ParameterFormatCodes: []int16{1},
			Parameters:           [][]byte{int4Bytes(0)},
			ResultFormatCodes:    []int16{1, 1},
		}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 0"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	var id int32
	var name string
	err = conn.QueryRow(ctx, sql, 0).Scan(&id, &name)
	require.Equal(t, pgsql.ErrNoRows, err)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestQueryParameterCountError(t *testing.T) {
	sql := "select id, name from widgets where id = $1"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ps1", sql, []uint32{23}, widgetFields)...)
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	ps, err := conn.Prepare(ctx, "ps1", sql)
	require.NoError(t, err)

	// Mismatched arity is refused locally; the server sees no Bind.
	_, err = ps.Query(ctx)
	var countErr *pgsql.ParameterCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 1, countErr.Expected)
	assert.Equal(t, 0, countErr.Actual)

	_, err = ps.Query(ctx, 1, 2)
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 2, countErr.Actual)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestQueryDatabaseError(t *testing.T) {
	sql := "select 1/0"
	fields := []pgproto.FieldDescription{
		{Name: "?column?", DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1},
	}

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("", sql, nil, fields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Bind{ResultFormatCodes: []int16{1}}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.ErrorResponse{Severity: "ERROR", Code: "22012", Message: "division by zero"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	_, err = conn.Query(ctx, sql)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "22012", pgErr.Code)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestQueryRowShapeError(t *testing.T) {
	sql := "select id, name from widgets"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("", sql, nil, widgetFields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Bind{ResultFormatCodes: []int16{1, 1}}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		// one value for a statement described with two columns
		pgmock.SendMessage(&pgproto.DataRow{Values: [][]byte{int4Bytes(7)}}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),

		pgmock.ExpectMessage(&pgproto.Query{String: "select 1"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	_, err = conn.Query(ctx, sql)
	var shapeErr *pgsql.RowShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 2, shapeErr.ExpectedColumns)
	assert.Equal(t, 1, shapeErr.ActualColumns)

	// The sequence was synced, so the connection is usable again.
	_, err = conn.Exec(ctx, "select 1")
	require.NoError(t, err)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestRowsValues(t *testing.T) {
	sql := "select id, name from widgets"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("", sql, nil, widgetFields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Bind{ResultFormatCodes: []int16{1, 1}}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.DataRow{Values: [][]byte{int4Bytes(7), []byte("gear")}}),
		pgmock.SendMessage(&pgproto.DataRow{Values: [][]byte{int4Bytes(8), nil}}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 2"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	rows, err := conn.Query(ctx, sql)
	require.NoError(t, err)
	require.Equal(t, 2, rows.Len())

	require.True(t, rows.Next())
	values, err := rows.Values()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(7), "gear"}, values)

	require.True(t, rows.Next())
	values, err = rows.Values()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(8), nil}, values)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}
