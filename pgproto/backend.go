package pgproto

import (
	"encoding/binary"
	"io"
)

// Backend acts as a server for the PostgreSQL wire protocol version 3. Its
// main use here is scripting a fake server in tests.
type Backend struct {
	cr *chunkReader
	w  io.Writer

	partialMsg bool
	msgType    byte
	bodyLen    int

	bind                Bind
	close               Close
	describe            Describe
	execute             Execute
	flush               Flush
	parse               Parse
	passwordMessage     PasswordMessage
	query               Query
	saslInitialResponse SASLInitialResponse
	saslResponse        SASLResponse
	sync                Sync
	terminate           Terminate
	unknownMessage      UnknownMessage

	// The SASL exchange reuses the 'p' tag, so the expected message type
	// must be tracked out of band.
	authType uint32
}

// NewBackend creates a Backend that reads from r and writes to w.
func NewBackend(r io.Reader, w io.Writer) *Backend {
	return &Backend{cr: newChunkReader(r, 0), w: w}
}

// Send writes msg immediately.
func (b *Backend) Send(msg BackendMessage) error {
	_, err := b.w.Write(msg.Encode(nil))
	return err
}

// SetAuthType records which authentication challenge was issued, so that
// the next 'p' message is decoded as the matching response type.
func (b *Backend) SetAuthType(authType uint32) {
	b.authType = authType
}

// ReceiveStartupMessage receives the initial connection message. This
// message is "special" in that it does not have a message type byte, and
// it may instead be an SSLRequest or CancelRequest.
func (b *Backend) ReceiveStartupMessage() (FrontendMessage, error) {
	header, err := b.cr.Next(4)
	if err != nil {
		return nil, err
	}
	msgSize := int(binary.BigEndian.Uint32(header)) - 4
	if msgSize < 4 || msgSize > maxMessageBodyLen {
		return nil, &FramingError{MessageType: "StartupMessage", Details: "invalid length"}
	}

	buf, err := b.cr.Next(msgSize)
	if err != nil {
		return nil, err
	}

	code := binary.BigEndian.Uint32(buf)

	switch code {
	case ProtocolVersionNumber:
		startupMessage := &StartupMessage{}
		if err := startupMessage.Decode(buf); err != nil {
			return nil, err
		}
		return startupMessage, nil
	case sslRequestNumber:
		sslRequest := &SSLRequest{}
		if err := sslRequest.Decode(buf); err != nil {
			return nil, err
		}
		return sslRequest, nil
	case cancelRequestCode:
		cancelRequest := &CancelRequest{}
		if err := cancelRequest.Decode(buf); err != nil {
			return nil, err
		}
		return cancelRequest, nil
	default:
		return nil, &FramingError{MessageType: "StartupMessage", Details: "unknown startup message code"}
	}
}

// Receive receives a message from the frontend. The returned message is
// only valid until the next call to Receive.
func (b *Backend) Receive() (FrontendMessage, error) {
	if !b.partialMsg {
		header, err := b.cr.Next(5)
		if err != nil {
			return nil, err
		}

		b.msgType = header[0]
		b.bodyLen = int(binary.BigEndian.Uint32(header[1:])) - 4
		if b.bodyLen < 0 || b.bodyLen > maxMessageBodyLen {
			return nil, &FramingError{Details: "invalid message length"}
		}
		b.partialMsg = true
	}

	var msg FrontendMessage
	switch b.msgType {
	case 'B':
		msg = &b.bind
	case 'C':
		msg = &b.close
	case 'D':
		msg = &b.describe
	case 'E':
		msg = &b.execute
	case 'H':
		msg = &b.flush
	case 'P':
		msg = &b.parse
	case 'Q':
		msg = &b.query
	case 'S':
		msg = &b.sync
	case 'X':
		msg = &b.terminate
	case 'p':
		switch b.authType {
		case AuthTypeSASL:
			msg = &b.saslInitialResponse
		case AuthTypeSASLContinue:
			msg = &b.saslResponse
		default:
			msg = &b.passwordMessage
		}
	default:
		b.unknownMessage.Tag = b.msgType
		msg = &b.unknownMessage
	}

	msgBody, err := b.cr.Next(b.bodyLen)
	if err != nil {
		return nil, err
	}

	b.partialMsg = false

	err = msg.Decode(msgBody)
	return msg, err
}
