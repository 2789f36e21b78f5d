package pgproto

// Sync closes the current implicit transaction and asks for ReadyForQuery.
// It is the resynchronization point after an error in the extended query
// protocol.
type Sync struct{}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*Sync) Frontend() {}

func (dst *Sync) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("Sync", 0, len(src))
	}
	return nil
}

func (src *Sync) Encode(dst []byte) []byte {
	return append(dst, 'S', 0, 0, 0, 4)
}
