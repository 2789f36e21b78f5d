package pgconn

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgconn/internal/ctxwatch"
	"github.com/pgkit/pgsql/pgproto"
)

const (
	connStatusUninitialized = iota
	connStatusConnecting
	connStatusClosed
	connStatusIdle
	connStatusBusy
)

// ErrTLSRefused occurs when the connection attempt requires TLS and the
// PostgreSQL server refuses to use TLS
var ErrTLSRefused = errors.New("server refused TLS connection")

// Notice represents a notice response message reported by the PostgreSQL
// server. Be aware that this is distinct from LISTEN/NOTIFY notification.
type Notice PgError

// Notification is a message received from the PostgreSQL LISTEN/NOTIFY
// system.
type Notification struct {
	PID     uint32 // backend pid that sent the notification
	Channel string // channel from which notification was received
	Payload string
}

// PgConn is a low-level PostgreSQL connection handle. It is not safe for
// concurrent usage.
type PgConn struct {
	conn              net.Conn // the underlying TCP or unix domain socket connection
	pid               uint32   // backend pid
	secretKey         uint32   // key to use to send a cancel query message to the server
	parameterStatuses map[string]string
	txStatus          byte
	frontend          *pgproto.Frontend

	config *Config

	status byte

	contextWatcher *ctxwatch.ContextWatcher
}

// Connect establishes a connection to a PostgreSQL server using the
// environment and connString (in URL or DSN format) to provide
// configuration. See documentation for ParseConfig for details.
func Connect(ctx context.Context, connString string) (*PgConn, error) {
	config, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	return ConnectConfig(ctx, config)
}

// ConnectConfig establishes a connection to a PostgreSQL server using
// config. config must have been constructed with ParseConfig. This is
// required to ensure that the fields are set in a compatible way.
//
// If config.Fallbacks are present they will sequentially be tried in case
// of error establishing a network connection.
func ConnectConfig(ctx context.Context, config *Config) (pgConn *PgConn, err error) {
	// Default values are set in ParseConfig. Enforce initial creation by
	// ParseConfig rather than setting defaults from zero values.
	if !config.createdByParseConfig {
		panic("config must be created by ParseConfig")
	}

	fallbackConfigs := []*FallbackConfig{
		{
			Host:      config.Host,
			Port:      config.Port,
			TLSConfig: config.TLSConfig,
		},
	}
	fallbackConfigs = append(fallbackConfigs, config.Fallbacks...)

	for _, fc := range fallbackConfigs {
		pgConn, err = connect(ctx, config, fc)
		if err == nil {
			return pgConn, nil
		} else if pgerr, ok := errors.Cause(err).(*PgError); ok {
			// A server that answered with a PgError was reached, so trying
			// the next address cannot succeed either.
			return nil, &connectError{config: config, msg: "server error", err: pgerr}
		}
	}

	return nil, &connectError{config: config, msg: "dial error", err: err}
}

func connect(ctx context.Context, config *Config, fallbackConfig *FallbackConfig) (*PgConn, error) {
	pgConn := new(PgConn)
	pgConn.config = config
	pgConn.status = connStatusConnecting

	var err error
	network, address := NetworkAddress(fallbackConfig.Host, fallbackConfig.Port)
	pgConn.conn, err = config.DialFunc(ctx, network, address)
	if err != nil {
		return nil, err
	}

	pgConn.parameterStatuses = make(map[string]string)

	if fallbackConfig.TLSConfig != nil {
		if err := pgConn.startTLS(fallbackConfig.TLSConfig); err != nil {
			pgConn.conn.Close()
			return nil, err
		}
	}

	pgConn.contextWatcher = ctxwatch.NewContextWatcher(
		func() { pgConn.conn.SetDeadline(time.Date(1, 1, 1, 1, 1, 1, 1, time.UTC)) },
		func() { pgConn.conn.SetDeadline(time.Time{}) },
	)

	pgConn.contextWatcher.Watch(ctx)
	defer pgConn.contextWatcher.Unwatch()

	pgConn.frontend = config.BuildFrontend(pgConn.conn, pgConn.conn)

	neg := newNegotiation(config)

	pgConn.frontend.Send(neg.startupMessage())
	if err := pgConn.frontend.Flush(); err != nil {
		pgConn.conn.Close()
		return nil, err
	}

	for !neg.complete() {
		msg, err := pgConn.receiveMessage()
		if err != nil {
			pgConn.conn.Close()
			return nil, normalizeTimeoutError(ctx, err)
		}

		replies, err := neg.step(msg)
		if err != nil {
			pgConn.conn.Close()
			return nil, err
		}

		for _, reply := range replies {
			pgConn.frontend.Send(reply)
		}
		if err := pgConn.frontend.Flush(); err != nil {
			pgConn.conn.Close()
			return nil, err
		}
	}

	pgConn.pid = neg.pid
	pgConn.secretKey = neg.secretKey
	pgConn.status = connStatusIdle

	return pgConn, nil
}

func (pgConn *PgConn) startTLS(tlsConfig *tls.Config) (err error) {
	if _, err = pgConn.conn.Write((&pgproto.SSLRequest{}).Encode(nil)); err != nil {
		return
	}

	response := make([]byte, 1)
	if _, err = io.ReadFull(pgConn.conn, response); err != nil {
		return
	}

	if response[0] != 'S' {
		return ErrTLSRefused
	}

	pgConn.conn = tls.Client(pgConn.conn, tlsConfig)

	return nil
}

// ReceiveMessage receives one message from the server. It also handles the
// asynchronous traffic every receive path must handle: transaction status,
// run-time parameter changes, notices and notifications. A FATAL error or
// any IO or framing error closes the connection.
//
// The returned message is only valid until the next call to ReceiveMessage
// or any method that reads from the connection.
func (pgConn *PgConn) ReceiveMessage(ctx context.Context) (pgproto.BackendMessage, error) {
	if err := pgConn.lock(); err != nil {
		return nil, err
	}
	defer pgConn.unlock()

	if ctx != context.Background() {
		select {
		case <-ctx.Done():
			return nil, newContextAlreadyDoneError(ctx)
		default:
		}
		pgConn.contextWatcher.Watch(ctx)
		defer pgConn.contextWatcher.Unwatch()
	}

	msg, err := pgConn.receiveMessage()
	if err != nil {
		err = &pgconnError{
			msg:         "receive message failed",
			err:         normalizeTimeoutError(ctx, err),
			safeToRetry: true,
		}
	}
	return msg, err
}

// receiveMessage receives a message without setting up context
// cancellation or locking.
func (pgConn *PgConn) receiveMessage() (pgproto.BackendMessage, error) {
	msg, err := pgConn.frontend.Receive()
	if err != nil {
		// The protocol stream cannot be realigned after an unexpected
		// error. Close the underlying connection immediately.
		pgConn.asyncClose()
		return nil, err
	}

	switch msg := msg.(type) {
	case *pgproto.ReadyForQuery:
		pgConn.txStatus = msg.TxStatus
	case *pgproto.ParameterStatus:
		pgConn.parameterStatuses[msg.Name] = msg.Value
	case *pgproto.ErrorResponse:
		if msg.Severity == "FATAL" {
			pgConn.status = connStatusClosed
			pgConn.conn.Close() // Ignore error as the connection is already broken and there is already an error to return.
			return nil, ErrorResponseToPgError(msg)
		}
	case *pgproto.NoticeResponse:
		if pgConn.config.OnNotice != nil {
			pgConn.config.OnNotice(pgConn, noticeResponseToNotice(msg))
		}
	case *pgproto.NotificationResponse:
		if pgConn.config.OnNotification != nil {
			pgConn.config.OnNotification(pgConn, &Notification{PID: msg.PID, Channel: msg.Channel, Payload: msg.Payload})
		}
	}

	return msg, nil
}

func noticeResponseToNotice(msg *pgproto.NoticeResponse) *Notice {
	pgerr := ErrorResponseToPgError((*pgproto.ErrorResponse)(msg))
	return (*Notice)(pgerr)
}

// Send buffers a frontend message. It is not put on the wire until Flush is
// called.
func (pgConn *PgConn) Send(msg pgproto.FrontendMessage) {
	pgConn.frontend.Send(msg)
}

// Flush writes any buffered frontend messages to the wire.
func (pgConn *PgConn) Flush(ctx context.Context) error {
	if pgConn.status == connStatusClosed {
		return &connLockError{status: "conn closed"}
	}

	if ctx != context.Background() {
		select {
		case <-ctx.Done():
			return newContextAlreadyDoneError(ctx)
		default:
		}
		pgConn.contextWatcher.Watch(ctx)
		defer pgConn.contextWatcher.Unwatch()
	}

	if err := pgConn.frontend.Flush(); err != nil {
		if !SafeToRetry(err) {
			pgConn.asyncClose()
		}
		return normalizeTimeoutError(ctx, err)
	}

	return nil
}

// Exec executes sql via the PostgreSQL simple query protocol and returns
// the command tag of the last command executed. sql may contain multiple
// statements; they run in a single implicit transaction and all results
// other than command completion are discarded.
func (pgConn *PgConn) Exec(ctx context.Context, sql string) (CommandTag, error) {
	if err := pgConn.lock(); err != nil {
		return "", err
	}
	defer pgConn.unlock()

	if ctx != context.Background() {
		select {
		case <-ctx.Done():
			return "", newContextAlreadyDoneError(ctx)
		default:
		}
		pgConn.contextWatcher.Watch(ctx)
		defer pgConn.contextWatcher.Unwatch()
	}

	pgConn.frontend.Send(&pgproto.Query{String: sql})
	if err := pgConn.frontend.Flush(); err != nil {
		if !SafeToRetry(err) {
			pgConn.asyncClose()
		}
		return "", normalizeTimeoutError(ctx, err)
	}

	var commandTag CommandTag
	var pgErr error

	for {
		msg, err := pgConn.receiveMessage()
		if err != nil {
			return "", normalizeTimeoutError(ctx, err)
		}

		switch msg := msg.(type) {
		case *pgproto.CommandComplete:
			commandTag = CommandTag(msg.CommandTag)
		case *pgproto.ErrorResponse:
			pgErr = ErrorResponseToPgError(msg)
		case *pgproto.ReadyForQuery:
			return commandTag, pgErr
		}
	}
}

// CancelRequest sends a cancel request to the PostgreSQL server. It returns
// an error if unable to deliver the cancel request, but lack of an error
// does not ensure that the query was canceled. As specified in the
// documentation, there is no way to be sure a query was canceled.
func (pgConn *PgConn) CancelRequest(ctx context.Context) error {
	// Open a cancellation request to the same server. The address is taken
	// from the net.Conn directly instead of reusing the connection config.
	// This is important in high availability configurations where fallback
	// connections may be specified or DNS may be used to load balance.
	serverAddr := pgConn.conn.RemoteAddr()
	cancelConn, err := pgConn.config.DialFunc(ctx, serverAddr.Network(), serverAddr.String())
	if err != nil {
		return err
	}
	defer cancelConn.Close()

	if ctx != context.Background() {
		contextWatcher := ctxwatch.NewContextWatcher(
			func() { cancelConn.SetDeadline(time.Date(1, 1, 1, 1, 1, 1, 1, time.UTC)) },
			func() { cancelConn.SetDeadline(time.Time{}) },
		)
		contextWatcher.Watch(ctx)
		defer contextWatcher.Unwatch()
	}

	msg := &pgproto.CancelRequest{ProcessID: pgConn.pid, SecretKey: pgConn.secretKey}
	_, err = cancelConn.Write(msg.Encode(nil))
	if err != nil {
		return err
	}

	_, err = cancelConn.Read(make([]byte, 1))
	if err != io.EOF {
		return err
	}

	return nil
}

// Close closes a connection. It is safe to call Close on an already closed
// connection. The sequence is the orderly shutdown the protocol describes:
// send Terminate, then close the socket once the server has closed its
// side.
func (pgConn *PgConn) Close(ctx context.Context) error {
	if pgConn.status == connStatusClosed {
		return nil
	}
	pgConn.status = connStatusClosed

	defer pgConn.conn.Close()

	if ctx != context.Background() {
		pgConn.contextWatcher.Watch(ctx)
		defer pgConn.contextWatcher.Unwatch()
	}

	// Ignore any errors sending Terminate and waiting for the server to
	// close the connection. This mimics the behavior of libpq PQfinish. It
	// calls closePGconn which calls sendTerminateConn which purposefully
	// ignores errors.
	pgConn.conn.Write((&pgproto.Terminate{}).Encode(nil))
	pgConn.conn.Read(make([]byte, 1))

	return pgConn.conn.Close()
}

// asyncClose marks the connection dead and closes the underlying socket
// without the Terminate handshake. Used when the protocol stream is no
// longer trustworthy.
func (pgConn *PgConn) asyncClose() {
	if pgConn.status == connStatusClosed {
		return
	}
	pgConn.status = connStatusClosed
	pgConn.conn.Close()
}

func (pgConn *PgConn) lock() error {
	switch pgConn.status {
	case connStatusBusy:
		return &connLockError{status: "conn busy"} // This only should be possible in case of an application bug.
	case connStatusClosed:
		return &connLockError{status: "conn closed"}
	case connStatusUninitialized:
		return &connLockError{status: "conn uninitialized"}
	}
	pgConn.status = connStatusBusy
	return nil
}

func (pgConn *PgConn) unlock() {
	switch pgConn.status {
	case connStatusBusy:
		pgConn.status = connStatusIdle
	case connStatusClosed:
	default:
		panic("BUG: cannot unlock unlocked connection") // This should only be possible if there is a bug in this package.
	}
}

// IsClosed reports if the connection has been closed.
func (pgConn *PgConn) IsClosed() bool {
	return pgConn.status < connStatusIdle
}

// Conn returns the underlying net.Conn.
func (pgConn *PgConn) Conn() net.Conn {
	return pgConn.conn
}

// PID returns the backend PID.
func (pgConn *PgConn) PID() uint32 {
	return pgConn.pid
}

// SecretKey returns the backend secret key used to send a cancel query
// message to the server.
func (pgConn *PgConn) SecretKey() uint32 {
	return pgConn.secretKey
}

// TxStatus returns the current TxStatus as reported by the server. The
// status can be either 'I' for idle, 'T' when a transaction is in progress
// or 'E' if the current transaction has failed.
func (pgConn *PgConn) TxStatus() byte {
	return pgConn.txStatus
}

// ParameterStatus returns the value of a parameter reported by the server
// (e.g. server_version). Returns an empty string for unknown parameters.
func (pgConn *PgConn) ParameterStatus(key string) string {
	return pgConn.parameterStatuses[key]
}

// CommandTag is the result of an Exec function
type CommandTag string

// RowsAffected returns the number of rows affected. If the CommandTag was
// not for a row affecting command (e.g. "CREATE TABLE") then it returns 0.
func (ct CommandTag) RowsAffected() int64 {
	s := string(ct)
	index := strings.LastIndex(s, " ")
	if index == -1 {
		return 0
	}
	n, _ := strconv.ParseInt(s[index+1:], 10, 64)
	return n
}
