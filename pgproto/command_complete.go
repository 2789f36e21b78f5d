package pgproto

import (
	"bytes"

	"github.com/pgkit/pgsql/internal/pgio"
)

// CommandComplete ends a successfully executed command. CommandTag is the
// server's completion tag, e.g. "SELECT 5" or "INSERT 0 1".
type CommandComplete struct {
	CommandTag string
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*CommandComplete) Backend() {}

func (dst *CommandComplete) Decode(src []byte) error {
	idx := bytes.IndexByte(src, 0)
	if idx != len(src)-1 {
		return errFormat("CommandComplete")
	}

	dst.CommandTag = string(src[:idx])
	return nil
}

func (src *CommandComplete) Encode(dst []byte) []byte {
	dst = append(dst, 'C')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.CommandTag...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
