package pgtype

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/internal/pgio"
)

// OIDValue is the oid type as a column value. The OID type itself stays a
// plain integer because it is used as a registry key throughout.
type OIDValue struct {
	Uint   uint32
	Status Status
}

func (dst *OIDValue) Set(src interface{}) error {
	if src == nil {
		*dst = OIDValue{Status: Null}
		return nil
	}

	switch value := src.(type) {
	case OID:
		*dst = OIDValue{Uint: uint32(value), Status: Present}
	case uint32:
		*dst = OIDValue{Uint: value, Status: Present}
	case int32:
		if value < 0 {
			return errors.Errorf("%d is less than minimum value for OIDValue", value)
		}
		*dst = OIDValue{Uint: uint32(value), Status: Present}
	case int64:
		if value < 0 || value > math.MaxUint32 {
			return errors.Errorf("%d is out of range for OIDValue", value)
		}
		*dst = OIDValue{Uint: uint32(value), Status: Present}
	case uint64:
		if value > math.MaxUint32 {
			return errors.Errorf("%d is greater than maximum value for OIDValue", value)
		}
		*dst = OIDValue{Uint: uint32(value), Status: Present}
	case int:
		if value < 0 || int64(value) > math.MaxUint32 {
			return errors.Errorf("%d is out of range for OIDValue", value)
		}
		*dst = OIDValue{Uint: uint32(value), Status: Present}
	case string:
		num, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		*dst = OIDValue{Uint: uint32(num), Status: Present}
	default:
		if originalSrc, ok := underlyingNumberType(src); ok {
			return dst.Set(originalSrc)
		}
		return errors.Errorf("cannot convert %v to OIDValue", value)
	}

	return nil
}

func (dst *OIDValue) Get() interface{} {
	switch dst.Status {
	case Present:
		return dst.Uint
	case Null:
		return nil
	default:
		return dst.Status
	}
}

func (src *OIDValue) AssignTo(dst interface{}) error {
	return int64AssignTo(int64(src.Uint), src.Status, dst)
}

func (dst *OIDValue) DecodeText(ci *ConnInfo, src []byte) error {
	if src == nil {
		*dst = OIDValue{Status: Null}
		return nil
	}

	n, err := strconv.ParseUint(string(src), 10, 32)
	if err != nil {
		return err
	}

	*dst = OIDValue{Uint: uint32(n), Status: Present}
	return nil
}

func (dst *OIDValue) DecodeBinary(ci *ConnInfo, src []byte) error {
	if src == nil {
		*dst = OIDValue{Status: Null}
		return nil
	}

	if len(src) != 4 {
		return errors.Errorf("invalid length for oid: %v", len(src))
	}

	*dst = OIDValue{Uint: binary.BigEndian.Uint32(src), Status: Present}
	return nil
}

func (src OIDValue) EncodeText(ci *ConnInfo, buf []byte) ([]byte, error) {
	switch src.Status {
	case Null:
		return nil, nil
	case Undefined:
		return nil, errUndefined
	}

	return append(buf, strconv.FormatUint(uint64(src.Uint), 10)...), nil
}

func (src OIDValue) EncodeBinary(ci *ConnInfo, buf []byte) ([]byte, error) {
	switch src.Status {
	case Null:
		return nil, nil
	case Undefined:
		return nil, errUndefined
	}

	return pgio.AppendUint32(buf, src.Uint), nil
}
