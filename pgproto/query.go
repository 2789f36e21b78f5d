package pgproto

import (
	"bytes"

	"github.com/pgkit/pgsql/internal/pgio"
)

// Query is a simple query protocol request. The server runs the SQL with
// all results in the text format and finishes with ReadyForQuery.
type Query struct {
	String string
}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Query) Frontend() {}

func (dst *Query) Decode(src []byte) error {
	i := bytes.IndexByte(src, 0)
	if i != len(src)-1 {
		return errFormat("Query")
	}

	dst.String = string(src[:i])
	return nil
}

func (src *Query) Encode(dst []byte) []byte {
	dst = append(dst, 'Q')
	dst = pgio.AppendInt32(dst, int32(4+len(src.String)+1))

	dst = append(dst, src.String...)
	dst = append(dst, 0)

	return dst
}
