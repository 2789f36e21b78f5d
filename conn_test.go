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

type testLogEntry struct {
	lvl  pgsql.LogLevel
	msg  string
	data map[string]interface{}
}

type testLogger struct {
	logs []testLogEntry
}

func (l *testLogger) Log(ctx context.Context, level pgsql.LogLevel, msg string, data map[string]interface{}) {
	l.logs = append(l.logs, testLogEntry{lvl: level, msg: msg, data: data})
}

func TestServerVersion(t *testing.T) {
	steps := []pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto.StartupMessage{ProtocolVersion: pgproto.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto.Authentication{Type: pgproto.AuthTypeOk}),
		pgmock.SendMessage(&pgproto.ParameterStatus{Name: "server_version", Value: "13.3 (Debian 13.3-1.pgdg100+1)"}),
		pgmock.SendMessage(&pgproto.BackendKeyData{ProcessID: 42, SecretKey: 4242}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	}
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	version, err := conn.ServerVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 13, version.Major())
	assert.EqualValues(t, 3, version.Minor())

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestLogger(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "select 1"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "SELECT 1"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := &testLogger{}

	config, err := pgsql.ParseConfig(connString)
	require.NoError(t, err)
	config.Logger = logger
	config.LogLevel = pgsql.LogLevelTrace

	conn, err := pgsql.ConnectConfig(ctx, config)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "select 1")
	require.NoError(t, err)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)

	var found bool
	for _, entry := range logger.logs {
		if entry.msg == "Exec" && entry.lvl == pgsql.LogLevelInfo {
			found = true
			assert.Equal(t, "select 1", entry.data["sql"])
		}
	}
	require.True(t, found, "expected an Exec log entry")
}

func TestDeallocate(t *testing.T) {
	sql := "select id, name from widgets where id = $1"

	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps("ps1", sql, []uint32{23}, widgetFields)...)
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Close{ObjectType: 'S', Name: "ps1"}),
		pgmock.ExpectMessage(&pgproto.Sync{}),
		pgmock.SendMessage(&pgproto.CloseComplete{}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgsql.Connect(ctx, connString)
	require.NoError(t, err)

	_, err = conn.Prepare(ctx, "ps1", sql)
	require.NoError(t, err)

	require.NoError(t, conn.Deallocate(ctx, "ps1"))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestParseConfigDefaults(t *testing.T) {
	config, err := pgsql.ParseConfig("host=localhost user=jack")
	require.NoError(t, err)

	assert.EqualValues(t, 256, config.DefaultChunkSize)
	assert.Equal(t, pgsql.LogLevelInfo, config.LogLevel)

	clone := config.Copy()
	clone.DefaultChunkSize = 1000
	assert.EqualValues(t, 256, config.DefaultChunkSize)
}
