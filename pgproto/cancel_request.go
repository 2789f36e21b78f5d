package pgproto

import (
	"encoding/binary"

	"github.com/pgkit/pgsql/internal/pgio"
)

const cancelRequestCode = 80877102

// CancelRequest is sent on a fresh connection, in place of a
// StartupMessage, to ask the server to cancel the query running on
// another connection. The other connection is identified by the process
// ID and secret key it received in BackendKeyData.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*CancelRequest) Frontend() {}

func (dst *CancelRequest) Decode(src []byte) error {
	if len(src) != 12 {
		return errBodyLen("CancelRequest", 12, len(src))
	}

	requestCode := binary.BigEndian.Uint32(src)
	if requestCode != cancelRequestCode {
		return &FramingError{MessageType: "CancelRequest", Details: "bad cancel request code"}
	}

	dst.ProcessID = binary.BigEndian.Uint32(src[4:])
	dst.SecretKey = binary.BigEndian.Uint32(src[8:])
	return nil
}

func (src *CancelRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 16)
	dst = pgio.AppendInt32(dst, cancelRequestCode)
	dst = pgio.AppendUint32(dst, src.ProcessID)
	dst = pgio.AppendUint32(dst, src.SecretKey)
	return dst
}
