package pgconn

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgproto"
)

// negotiationState is the phase of the connection handshake.
type negotiationState int

const (
	// negotiationStartup means the startup packet has been sent and the
	// first authentication response is awaited.
	negotiationStartup negotiationState = iota

	// negotiationAuthenticating means an authentication challenge has been
	// answered and the verdict is awaited.
	negotiationAuthenticating

	// negotiationBackendStarting means authentication succeeded and the
	// server is streaming its session setup (ParameterStatus,
	// BackendKeyData) ahead of ReadyForQuery.
	negotiationBackendStarting

	// negotiationComplete means ReadyForQuery arrived and the connection is
	// usable.
	negotiationComplete

	// negotiationFailed is terminal. Once the handshake has failed no
	// further input is acceptable.
	negotiationFailed
)

func (s negotiationState) String() string {
	switch s {
	case negotiationStartup:
		return "startup"
	case negotiationAuthenticating:
		return "authenticating"
	case negotiationBackendStarting:
		return "backend starting"
	case negotiationComplete:
		return "complete"
	case negotiationFailed:
		return "failed"
	}
	return "invalid"
}

// negotiation drives the connection handshake as an explicit state machine.
// It consumes backend messages one at a time and returns the frontend
// messages to send in response, performing no IO of its own. That keeps the
// handshake testable against a scripted message sequence and keeps all
// socket handling in Connect.
type negotiation struct {
	config *Config
	state  negotiationState

	scram *scramClient

	pid       uint32
	secretKey uint32
	txStatus  byte
}

func newNegotiation(config *Config) *negotiation {
	return &negotiation{config: config}
}

// startupMessage builds the message that opens the handshake.
func (n *negotiation) startupMessage() *pgproto.StartupMessage {
	startupMsg := &pgproto.StartupMessage{
		ProtocolVersion: pgproto.ProtocolVersionNumber,
		Parameters:      make(map[string]string),
	}

	// Copy default run-time params
	for k, v := range n.config.RuntimeParams {
		startupMsg.Parameters[k] = v
	}

	startupMsg.Parameters["user"] = n.config.User
	if n.config.Database != "" {
		startupMsg.Parameters["database"] = n.config.Database
	}

	return startupMsg
}

func (n *negotiation) complete() bool {
	return n.state == negotiationComplete
}

// step consumes one backend message and returns the frontend messages to
// send in response, if any. A returned error is fatal to the handshake.
func (n *negotiation) step(msg pgproto.BackendMessage) ([]pgproto.FrontendMessage, error) {
	switch n.state {
	case negotiationComplete:
		return nil, errors.New("handshake already complete")
	case negotiationFailed:
		return nil, errors.New("handshake already failed")
	}

	switch msg := msg.(type) {
	case *pgproto.Authentication:
		return n.stepAuthentication(msg)
	case *pgproto.BackendKeyData:
		// Servers are free to send this any time between authentication and
		// ReadyForQuery.
		n.pid = msg.ProcessID
		n.secretKey = msg.SecretKey
		return nil, nil
	case *pgproto.ParameterStatus, *pgproto.NoticeResponse, *pgproto.UnknownMessage:
		return nil, nil
	case *pgproto.ReadyForQuery:
		n.state = negotiationComplete
		n.txStatus = msg.TxStatus
		return nil, nil
	case *pgproto.ErrorResponse:
		n.state = negotiationFailed
		return nil, ErrorResponseToPgError(msg)
	default:
		n.state = negotiationFailed
		return nil, errors.Errorf("unexpected message during handshake (%T)", msg)
	}
}

func (n *negotiation) stepAuthentication(msg *pgproto.Authentication) ([]pgproto.FrontendMessage, error) {
	switch msg.Type {
	case pgproto.AuthTypeOk:
		n.state = negotiationBackendStarting
		return nil, nil

	case pgproto.AuthTypeCleartextPassword:
		n.state = negotiationAuthenticating
		return []pgproto.FrontendMessage{&pgproto.PasswordMessage{Password: n.config.Password}}, nil

	case pgproto.AuthTypeMD5Password:
		n.state = negotiationAuthenticating
		digestedPassword := "md5" + hexMD5(hexMD5(n.config.Password+n.config.User)+string(msg.Salt[:]))
		return []pgproto.FrontendMessage{&pgproto.PasswordMessage{Password: digestedPassword}}, nil

	case pgproto.AuthTypeCryptPassword:
		n.state = negotiationAuthenticating
		return []pgproto.FrontendMessage{&pgproto.PasswordMessage{Password: crypt(n.config.Password, msg.CryptSalt)}}, nil

	case pgproto.AuthTypeSASL:
		sc, err := newScramClient(msg.SASLMechanisms, n.config.Password)
		if err != nil {
			n.state = negotiationFailed
			return nil, err
		}
		n.scram = sc
		n.state = negotiationAuthenticating
		return []pgproto.FrontendMessage{&pgproto.SASLInitialResponse{
			AuthMechanism: "SCRAM-SHA-256",
			Data:          sc.clientFirstMessage(),
		}}, nil

	case pgproto.AuthTypeSASLContinue:
		if n.scram == nil {
			n.state = negotiationFailed
			return nil, errors.New("received SASL continue without in-progress SASL exchange")
		}
		// SASLData references the read buffer, but the scram client retains
		// it across messages.
		data := make([]byte, len(msg.SASLData))
		copy(data, msg.SASLData)
		if err := n.scram.recvServerFirstMessage(data); err != nil {
			n.state = negotiationFailed
			return nil, err
		}
		return []pgproto.FrontendMessage{&pgproto.SASLResponse{Data: []byte(n.scram.clientFinalMessage())}}, nil

	case pgproto.AuthTypeSASLFinal:
		if n.scram == nil {
			n.state = negotiationFailed
			return nil, errors.New("received SASL final without in-progress SASL exchange")
		}
		if err := n.scram.recvServerFinalMessage(msg.SASLData); err != nil {
			n.state = negotiationFailed
			return nil, err
		}
		return nil, nil

	default:
		n.state = negotiationFailed
		return nil, errors.Errorf("received unknown authentication type %d", msg.Type)
	}
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}

// ErrorResponseToPgError converts a wire ErrorResponse into a *PgError.
func ErrorResponseToPgError(msg *pgproto.ErrorResponse) *PgError {
	return &PgError{
		Severity:         msg.Severity,
		Code:             msg.Code,
		Message:          msg.Message,
		Detail:           msg.Detail,
		Hint:             msg.Hint,
		Position:         msg.Position,
		InternalPosition: msg.InternalPosition,
		InternalQuery:    msg.InternalQuery,
		Where:            msg.Where,
		SchemaName:       msg.SchemaName,
		TableName:        msg.TableName,
		ColumnName:       msg.ColumnName,
		DataTypeName:     msg.DataTypeName,
		ConstraintName:   msg.ConstraintName,
		File:             msg.File,
		Line:             msg.Line,
		Routine:          msg.Routine,
	}
}
