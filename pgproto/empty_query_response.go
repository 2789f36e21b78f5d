package pgproto

// EmptyQueryResponse replaces CommandComplete when the query string was
// empty.
type EmptyQueryResponse struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*EmptyQueryResponse) Backend() {}

func (dst *EmptyQueryResponse) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("EmptyQueryResponse", 0, len(src))
	}
	return nil
}

func (src *EmptyQueryResponse) Encode(dst []byte) []byte {
	return append(dst, 'I', 0, 0, 0, 4)
}
