package pgproto

// CloseComplete acknowledges a Close.
type CloseComplete struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*CloseComplete) Backend() {}

func (dst *CloseComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("CloseComplete", 0, len(src))
	}
	return nil
}

func (src *CloseComplete) Encode(dst []byte) []byte {
	return append(dst, '3', 0, 0, 0, 4)
}
