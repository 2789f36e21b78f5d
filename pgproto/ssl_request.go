package pgproto

import (
	"encoding/binary"

	"github.com/pgkit/pgsql/internal/pgio"
)

const sslRequestNumber = 80877103

// SSLRequest asks the server to switch to TLS before any protocol message
// is exchanged. Like StartupMessage it has no leading type byte, and the
// server answers with a single 'S' or 'N' byte rather than a framed
// message.
type SSLRequest struct{}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*SSLRequest) Frontend() {}

func (dst *SSLRequest) Decode(src []byte) error {
	if len(src) < 4 {
		return errFormat("SSLRequest")
	}
	if binary.BigEndian.Uint32(src) != sslRequestNumber {
		return &FramingError{MessageType: "SSLRequest", Details: "bad SSL request code"}
	}
	return nil
}

func (src *SSLRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendInt32(dst, sslRequestNumber)
	return dst
}
