// Package pgproto is an encoder and decoder of the PostgreSQL wire protocol
// version 3.
//
// pgproto contains no protocol state beyond the framing itself. Each message
// type knows how to decode its own body and how to append its encoded form,
// tag and length prefix included, to a buffer. Frontend and Backend pair a
// buffered reader with a writer for the client and server side of a
// connection respectively.
package pgproto

import "fmt"

// maxMessageBodyLen is the safety ceiling for a declared message body
// length. A length beyond this is treated as a corrupt stream rather than
// an allocation request.
const maxMessageBodyLen = 64 * 1024 * 1024

// Message is the interface implemented by an object that can decode and
// encode a particular PostgreSQL message.
type Message interface {
	// Decode is allowed and expected to retain a reference to data after
	// returning (unlike encoding.BinaryUnmarshaler).
	Decode(data []byte) error

	// Encode appends itself to dst and returns the new buffer.
	Encode(dst []byte) []byte
}

// FrontendMessage is a message sent by the frontend (i.e. the client).
type FrontendMessage interface {
	Message
	Frontend() // no-op method to distinguish frontend from backend messages
}

// BackendMessage is a message sent by the backend (i.e. the server).
type BackendMessage interface {
	Message
	Backend() // no-op method to distinguish frontend from backend messages
}

// FramingError reports a malformed byte stream. A FramingError is fatal to
// the connection that produced it: resynchronizing within a corrupt stream
// is not possible.
type FramingError struct {
	MessageType string
	Details     string
}

func (e *FramingError) Error() string {
	if e.MessageType == "" {
		return fmt.Sprintf("malformed message: %s", e.Details)
	}
	return fmt.Sprintf("malformed %s message: %s", e.MessageType, e.Details)
}

func errBodyLen(messageType string, expected, actual int) error {
	return &FramingError{
		MessageType: messageType,
		Details:     fmt.Sprintf("body must have length of %d, but it is %d", expected, actual),
	}
}

func errFormat(messageType string) error {
	return &FramingError{MessageType: messageType, Details: "body is invalid"}
}
