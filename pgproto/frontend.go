package pgproto

import (
	"encoding/binary"
	"io"
)

// Frontend acts as a client for the PostgreSQL wire protocol version 3.
//
// Sent messages accumulate in an internal buffer until Flush, so an entire
// extended query sequence reaches the socket in one write. Received
// messages are decoded into reused Frontend-owned structs: a returned
// BackendMessage is only valid until the next call to Receive.
type Frontend struct {
	cr *chunkReader
	w  io.Writer

	wbuf []byte

	// Frontend must be at most one message ahead of the byte stream, so a
	// partially read message is tracked across Receive calls.
	partialMsg bool
	msgType    byte
	bodyLen    int

	authentication       Authentication
	backendKeyData       BackendKeyData
	bindComplete         BindComplete
	closeComplete        CloseComplete
	commandComplete      CommandComplete
	dataRow              DataRow
	emptyQueryResponse   EmptyQueryResponse
	errorResponse        ErrorResponse
	noData               NoData
	noticeResponse       NoticeResponse
	notificationResponse NotificationResponse
	parameterDescription ParameterDescription
	parameterStatus      ParameterStatus
	parseComplete        ParseComplete
	portalSuspended      PortalSuspended
	readyForQuery        ReadyForQuery
	rowDescription       RowDescription
	unknownMessage       UnknownMessage
}

// NewFrontend creates a Frontend that reads from r and writes to w.
func NewFrontend(r io.Reader, w io.Writer) *Frontend {
	return &Frontend{cr: newChunkReader(r, 0), w: w}
}

// Send buffers msg. It is not sent until Flush is called.
func (f *Frontend) Send(msg FrontendMessage) {
	f.wbuf = msg.Encode(f.wbuf)
}

// Flush writes any pending buffered messages.
func (f *Frontend) Flush() error {
	if len(f.wbuf) == 0 {
		return nil
	}

	n, err := f.w.Write(f.wbuf)

	const maxLen = 1024
	if len(f.wbuf) > maxLen {
		f.wbuf = make([]byte, 0, maxLen)
	} else {
		f.wbuf = f.wbuf[:0]
	}

	if err != nil {
		return &writeError{err: err, safeToRetry: n == 0}
	}

	return nil
}

// Receive receives a message from the backend. The returned message is
// only valid until the next call to Receive.
func (f *Frontend) Receive() (BackendMessage, error) {
	if !f.partialMsg {
		header, err := f.cr.Next(5)
		if err != nil {
			return nil, err
		}

		f.msgType = header[0]
		f.bodyLen = int(binary.BigEndian.Uint32(header[1:])) - 4
		if f.bodyLen < 0 {
			return nil, &FramingError{Details: "invalid message with negative body length received"}
		}
		if f.bodyLen > maxMessageBodyLen {
			return nil, &FramingError{Details: "invalid message with excessive length received"}
		}
		f.partialMsg = true
	}

	msgBody, err := f.cr.Next(f.bodyLen)
	if err != nil {
		return nil, err
	}

	f.partialMsg = false

	var msg BackendMessage
	switch f.msgType {
	case '1':
		msg = &f.parseComplete
	case '2':
		msg = &f.bindComplete
	case '3':
		msg = &f.closeComplete
	case 'A':
		msg = &f.notificationResponse
	case 'C':
		msg = &f.commandComplete
	case 'D':
		msg = &f.dataRow
	case 'E':
		msg = &f.errorResponse
	case 'I':
		msg = &f.emptyQueryResponse
	case 'K':
		msg = &f.backendKeyData
	case 'N':
		msg = &f.noticeResponse
	case 'R':
		msg = &f.authentication
	case 'S':
		msg = &f.parameterStatus
	case 'T':
		msg = &f.rowDescription
	case 'Z':
		msg = &f.readyForQuery
	case 'n':
		msg = &f.noData
	case 's':
		msg = &f.portalSuspended
	case 't':
		msg = &f.parameterDescription
	default:
		// An unknown but well-framed message is skippable, not fatal. It is
		// handed to the caller tag and all so higher layers can decide what
		// to do with it.
		f.unknownMessage.Tag = f.msgType
		msg = &f.unknownMessage
	}

	err = msg.Decode(msgBody)
	return msg, err
}

// writeError is returned when a write to the underlying connection fails.
// SafeToRetry reports whether the connection can still be used: only a
// write that put no bytes on the wire leaves the protocol stream intact.
type writeError struct {
	err         error
	safeToRetry bool
}

func (e *writeError) Error() string {
	return "write failed: " + e.err.Error()
}

func (e *writeError) SafeToRetry() bool {
	return e.safeToRetry
}

func (e *writeError) Unwrap() error {
	return e.err
}
