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

func TestUnnamedStatementReplaced(t *testing.T) {
	oldSQL := "select n from generate_series(1, 3) n"
	newSQL := "select n from generate_series(4, 6) n"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("", oldSQL, nil, seriesFields)...)
	steps = append(steps, prepareSteps("", newSQL, nil, seriesFields)...)
	steps = append(steps,
		// only the replacement statement reaches the wire
		pgmock.ExpectMessage(&pgproto.Bind{ResultFormatCodes: []int16{1}}),
		pgmock.ExpectMessage(&pgproto.Execute{}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.BindComplete{}),
		pgmock.SendMessage(&pgproto.DataRow{Values: [][]byte{int4Bytes(4)}}),
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

	stale, err := conn.Prepare(ctx, "", oldSQL)
	require.NoError(t, err)

	// Reusing the unnamed slot invalidates the earlier handle.
	replacement, err := conn.Prepare(ctx, "", newSQL)
	require.NoError(t, err)

	_, err = stale.Query(ctx)
	require.Equal(t, pgsql.ErrInvalidatedPortal, err)

	_, err = stale.Chunks(ctx, 2)
	require.Equal(t, pgsql.ErrInvalidatedPortal, err)

	rows, err := replacement.Query(ctx)
	require.NoError(t, err)
	require.True(t, rows.Next())
	var n int32
	require.NoError(t, rows.Scan(&n))
	assert.EqualValues(t, 4, n)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}
