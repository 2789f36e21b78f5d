package pgproto

// PortalSuspended reports that Execute stopped at its row limit with more
// rows still pending in the portal.
type PortalSuspended struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*PortalSuspended) Backend() {}

func (dst *PortalSuspended) Decode(src []byte) error {
	if len(src) != 0 {
		return errBodyLen("PortalSuspended", 0, len(src))
	}
	return nil
}

func (src *PortalSuspended) Encode(dst []byte) []byte {
	return append(dst, 's', 0, 0, 0, 4)
}
