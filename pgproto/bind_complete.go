package pgproto

// BindComplete acknowledges a Bind.
type BindComplete struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*BindComplete) Backend() {}

func (dst *BindComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("BindComplete", 0, len(src))
	}
	return nil
}

func (src *BindComplete) Encode(dst []byte) []byte {
	return append(dst, '2', 0, 0, 0, 4)
}
