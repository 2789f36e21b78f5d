package pgproto

// Flush asks the server to deliver any pending responses without ending
// the current extended query sequence.
type Flush struct{}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Flush) Frontend() {}

func (dst *Flush) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("Flush", 0, len(src))
	}
	return nil
}

func (src *Flush) Encode(dst []byte) []byte {
	return append(dst, 'H', 0, 0, 0, 4)
}
