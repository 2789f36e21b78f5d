package pgproto

// NoData reports that a described statement or portal returns no rows.
type NoData struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*NoData) Backend() {}

func (dst *NoData) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("NoData", 0, len(src))
	}
	return nil
}

func (src *NoData) Encode(dst []byte) []byte {
	return append(dst, 'n', 0, 0, 0, 4)
}
