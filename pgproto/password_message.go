package pgproto

import (
	"bytes"

	"github.com/pgkit/pgsql/internal/pgio"
)

// PasswordMessage carries the response to a cleartext, md5 or crypt
// password challenge. For md5 and crypt the Password field holds the
// already-hashed form.
type PasswordMessage struct {
	Password string
}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*PasswordMessage) Frontend() {}

func (dst *PasswordMessage) Decode(src []byte) error {
	idx := bytes.IndexByte(src, 0)
	if idx != len(src)-1 {
		return errFormat("PasswordMessage")
	}

	dst.Password = string(src[:idx])
	return nil
}

func (src *PasswordMessage) Encode(dst []byte) []byte {
	dst = append(dst, 'p')
	dst = pgio.AppendInt32(dst, int32(4+len(src.Password)+1))

	dst = append(dst, src.Password...)
	dst = append(dst, 0)

	return dst
}
