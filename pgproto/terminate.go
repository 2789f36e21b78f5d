package pgproto

// Terminate announces an orderly shutdown. The frontend closes its end of
// the connection after sending it.
type Terminate struct{}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Terminate) Frontend() {}

func (dst *Terminate) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("Terminate", 0, len(src))
	}
	return nil
}

func (src *Terminate) Encode(dst []byte) []byte {
	return append(dst, 'X', 0, 0, 0, 4)
}
