package pgsql_test

import (
	"encoding/binary"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/internal/pgmock"
	"github.com/pgkit/pgsql/pgproto"
)

func startMockServer(t *testing.T, script *pgmock.Script) (connString string, serverErrChan chan error) {
	t.Helper()

	server, err := pgmock.NewServer(script)
	require.NoError(t, err)

	serverErrChan = make(chan error, 1)
	go func() {
		serverErrChan <- server.ServeOne()
	}()

	host, port, err := net.SplitHostPort(server.Addr().String())
	require.NoError(t, err)

	connString = fmt.Sprintf("host=%s port=%s user=jack password=secret database=mydb sslmode=disable", host, port)
	return connString, serverErrChan
}

// prepareSteps scripts the Parse/Describe/Sync exchange for one statement.
func prepareSteps(name, sql string, paramOIDs []uint32, fields []pgproto.FieldDescription) []pgmock.Step {
	steps := []pgmock.Step{
		pgmock.ExpectMessage(&pgproto.Parse{Name: name, Query: sql}),
		pgmock.ExpectMessage(&pgproto.Describe{ObjectType: 'S', Name: name}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.ParseComplete{}),
		pgmock.SendMessage(&pgproto.ParameterDescription{ParameterOIDs: paramOIDs}),
	}
	if len(fields) > 0 {
		steps = append(steps, pgmock.SendMessage(&pgproto.RowDescription{Fields: fields}))
	} else {
		steps = append(steps, pgmock.SendMessage(&pgproto.NoData{}))
	}
	steps = append(steps, pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}))
	return steps
}

func int4Bytes(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}
