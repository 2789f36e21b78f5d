package pgproto

// ReadyForQuery marks the server idle and able to accept a new command
// cycle. TxStatus is 'I' outside a transaction, 'T' inside one and 'E'
// inside a failed one.
type ReadyForQuery struct {
	TxStatus byte
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*ReadyForQuery) Backend() {}

func (dst *ReadyForQuery) Decode(src []byte) error {
	if len(src) != 1 {
		return errBodyLen("ReadyForQuery", 1, len(src))
	}

	dst.TxStatus = src[0]
	return nil
}

func (src *ReadyForQuery) Encode(dst []byte) []byte {
	return append(dst, 'Z', 0, 0, 0, 5, src.TxStatus)
}
