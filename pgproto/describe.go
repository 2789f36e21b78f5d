package pgproto

import (
	"bytes"

	"github.com/pgkit/pgsql/internal/pgio"
)

// Describe requests a description of a prepared statement ('S') or portal
// ('P'). A statement is answered with ParameterDescription then
// RowDescription or NoData; a portal with RowDescription or NoData alone.
type Describe struct {
	ObjectType byte // 'S' = prepared statement, 'P' = portal
	Name       string
}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Describe) Frontend() {}

func (dst *Describe) Decode(src []byte) error {
	if len(src) < 2 {
		return errFormat("Describe")
	}

	dst.ObjectType = src[0]
	rp := 1

	idx := bytes.IndexByte(src[rp:], 0)
	if idx != len(src[rp:])-1 {
		return errFormat("Describe")
	}

	dst.Name = string(src[rp : len(src)-1])
	return nil
}

func (src *Describe) Encode(dst []byte) []byte {
	dst = append(dst, 'D')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.ObjectType)
	dst = append(dst, src.Name...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
