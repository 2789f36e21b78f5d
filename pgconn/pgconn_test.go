package pgconn_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/internal/pgmock"
	"github.com/pgkit/pgsql/pgconn"
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

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestConnectMD5(t *testing.T) {
	salt := [4]byte{0x01, 0x02, 0x03, 0x04}
	digested := "md5" + md5Hex(md5Hex("secretjack")+string(salt[:]))

	script := &pgmock.Script{
		Steps: []pgmock.Step{
			pgmock.ExpectAnyMessage(&pgproto.StartupMessage{ProtocolVersion: pgproto.ProtocolVersionNumber, Parameters: map[string]string{}}),
			pgmock.SendMessage(&pgproto.Authentication{Type: pgproto.AuthTypeMD5Password, Salt: salt}),
			pgmock.ExpectMessage(&pgproto.PasswordMessage{Password: digested}),
			pgmock.SendMessage(&pgproto.Authentication{Type: pgproto.AuthTypeOk}),
			pgmock.SendMessage(&pgproto.ParameterStatus{Name: "server_version", Value: "13.3"}),
			pgmock.SendMessage(&pgproto.BackendKeyData{ProcessID: 42, SecretKey: 4242}),
			pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
			pgmock.WaitForClose(),
		},
	}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgconn.Connect(ctx, connString)
	require.NoError(t, err)

	assert.EqualValues(t, 42, conn.PID())
	assert.EqualValues(t, 4242, conn.SecretKey())
	assert.EqualValues(t, 'I', conn.TxStatus())
	assert.Equal(t, "13.3", conn.ParameterStatus("server_version"))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestConnectAuthFailure(t *testing.T) {
	script := &pgmock.Script{
		Steps: []pgmock.Step{
			pgmock.ExpectAnyMessage(&pgproto.StartupMessage{ProtocolVersion: pgproto.ProtocolVersionNumber, Parameters: map[string]string{}}),
			pgmock.SendMessage(&pgproto.ErrorResponse{
				Severity: "FATAL",
				Code:     "28P01",
				Message:  `password authentication failed for user "jack"`,
			}),
		},
	}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pgconn.Connect(ctx, connString)
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "28P01", pgErr.Code)

	<-serverErrChan
}

func TestExecSimpleQuery(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "create table widgets(id int)"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "CREATE TABLE"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgconn.Connect(ctx, connString)
	require.NoError(t, err)

	tag, err := conn.Exec(context.Background(), "create table widgets(id int)")
	require.NoError(t, err)
	assert.EqualValues(t, "CREATE TABLE", tag)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestExecQueryError(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "select 1/0"}),
		pgmock.SendMessage(&pgproto.ErrorResponse{Severity: "ERROR", Code: "22012", Message: "division by zero"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgconn.Connect(ctx, connString)
	require.NoError(t, err)

	_, err = conn.Exec(context.Background(), "select 1/0")
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "22012", pgErr.Code)

	// The error was statement-level. The connection survives.
	require.False(t, conn.IsClosed())

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestExecNoticeHandler(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "drop table if exists widgets"}),
		pgmock.SendMessage(&pgproto.NoticeResponse{Severity: "NOTICE", Code: "00000", Message: `table "widgets" does not exist, skipping`}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "DROP TABLE"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config, err := pgconn.ParseConfig(connString)
	require.NoError(t, err)

	var notice *pgconn.Notice
	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		notice = n
	}

	conn, err := pgconn.ConnectConfig(ctx, config)
	require.NoError(t, err)

	_, err = conn.Exec(context.Background(), "drop table if exists widgets")
	require.NoError(t, err)

	require.NotNil(t, notice)
	assert.Equal(t, "NOTICE", notice.Severity)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestNotificationHandler(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.ExpectMessage(&pgproto.Query{String: "listen inventory"}),
		pgmock.SendMessage(&pgproto.CommandComplete{CommandTag: "LISTEN"}),
		pgmock.SendMessage(&pgproto.NotificationResponse{PID: 123, Channel: "inventory", Payload: "restocked"}),
		pgmock.SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	)
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config, err := pgconn.ParseConfig(connString)
	require.NoError(t, err)

	var notification *pgconn.Notification
	config.OnNotification = func(_ *pgconn.PgConn, n *pgconn.Notification) {
		notification = n
	}

	conn, err := pgconn.ConnectConfig(ctx, config)
	require.NoError(t, err)

	_, err = conn.Exec(context.Background(), "listen inventory")
	require.NoError(t, err)

	require.NotNil(t, notification)
	assert.Equal(t, "inventory", notification.Channel)
	assert.Equal(t, "restocked", notification.Payload)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)
}

func TestConnClosedFailsFast(t *testing.T) {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, pgmock.WaitForClose())
	script := &pgmock.Script{Steps: steps}

	connString, serverErrChan := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgconn.Connect(ctx, connString)
	require.NoError(t, err)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, <-serverErrChan)

	_, err = conn.Exec(context.Background(), "select 1")
	require.Error(t, err)

	_, err = conn.ReceiveMessage(context.Background())
	require.Error(t, err)
}

func TestCommandTagRowsAffected(t *testing.T) {
	tests := []struct {
		commandTag   pgconn.CommandTag
		rowsAffected int64
	}{
		{commandTag: "INSERT 0 5", rowsAffected: 5},
		{commandTag: "UPDATE 0", rowsAffected: 0},
		{commandTag: "UPDATE 1", rowsAffected: 1},
		{commandTag: "DELETE 3", rowsAffected: 3},
		{commandTag: "CREATE TABLE", rowsAffected: 0},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.rowsAffected, tt.commandTag.RowsAffected(), "%s", tt.commandTag)
	}
}
