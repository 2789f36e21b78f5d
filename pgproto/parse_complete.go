package pgproto

// ParseComplete acknowledges a Parse.
type ParseComplete struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*ParseComplete) Backend() {}

func (dst *ParseComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("ParseComplete", 0, len(src))
	}
	return nil
}

func (src *ParseComplete) Encode(dst []byte) []byte {
	return append(dst, '1', 0, 0, 0, 4)
}
