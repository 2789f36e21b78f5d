package pgproto

import (
	"bytes"
	"encoding/binary"

	"github.com/pgkit/pgsql/internal/pgio"
)

// PostgreSQL authentication method codes carried in the Authentication
// message.
const (
	AuthTypeOk                = 0
	AuthTypeCleartextPassword = 3
	AuthTypeMD5Password       = 5
	AuthTypeCryptPassword     = 6
	AuthTypeSASL              = 10
	AuthTypeSASLContinue      = 11
	AuthTypeSASLFinal         = 12
)

// Authentication is the backend's 'R' message. A single type covers every
// authentication method; Type selects which of the remaining fields are
// meaningful.
type Authentication struct {
	Type uint32

	// MD5Password fields
	Salt [4]byte

	// CryptPassword fields
	CryptSalt [2]byte

	// SASL fields
	SASLMechanisms []string

	// SASLContinue and SASLFinal fields
	SASLData []byte
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*Authentication) Backend() {}

func (dst *Authentication) Decode(src []byte) error {
	*dst = Authentication{}

	if len(src) < 4 {
		return errFormat("Authentication")
	}
	dst.Type = binary.BigEndian.Uint32(src)
	rp := 4

	switch dst.Type {
	case AuthTypeOk:
	case AuthTypeCleartextPassword:
	case AuthTypeMD5Password:
		if len(src) != 8 {
			return errBodyLen("AuthenticationMD5Password", 8, len(src))
		}
		copy(dst.Salt[:], src[rp:])
	case AuthTypeCryptPassword:
		if len(src) != 6 {
			return errBodyLen("AuthenticationCryptPassword", 6, len(src))
		}
		copy(dst.CryptSalt[:], src[rp:])
	case AuthTypeSASL:
		for len(src[rp:]) > 1 {
			idx := bytes.IndexByte(src[rp:], 0)
			if idx < 0 {
				return errFormat("AuthenticationSASL")
			}
			dst.SASLMechanisms = append(dst.SASLMechanisms, string(src[rp:rp+idx]))
			rp += idx + 1
		}
	case AuthTypeSASLContinue, AuthTypeSASLFinal:
		dst.SASLData = src[rp:]
	default:
		return &FramingError{MessageType: "Authentication", Details: "unknown authentication type"}
	}

	return nil
}

func (src *Authentication) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	dst = pgio.AppendUint32(dst, src.Type)

	switch src.Type {
	case AuthTypeMD5Password:
		dst = append(dst, src.Salt[:]...)
	case AuthTypeCryptPassword:
		dst = append(dst, src.CryptSalt[:]...)
	case AuthTypeSASL:
		for _, s := range src.SASLMechanisms {
			dst = append(dst, s...)
			dst = append(dst, 0)
		}
		dst = append(dst, 0)
	case AuthTypeSASLContinue, AuthTypeSASLFinal:
		dst = append(dst, src.SASLData...)
	}

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
