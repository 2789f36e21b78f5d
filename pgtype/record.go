package pgtype

import (
	"github.com/pkg/errors"
)

// Record is the generic PostgreSQL record type such as is created with the
// "row" function. Record only implements BinaryDecoder and Value. The text
// format output from PostgreSQL does not include type information and is
// therefore impossible to decode. No encoders are implemented because
// PostgreSQL does not support input of generic records.
type Record struct {
	Fields []Value
	Status Status
}

func (dst *Record) Set(src interface{}) error {
	if src == nil {
		*dst = Record{Status: Null}
		return nil
	}

	switch value := src.(type) {
	case []Value:
		*dst = Record{Fields: value, Status: Present}
	default:
		return errors.Errorf("cannot convert %v to Record", src)
	}

	return nil
}

func (dst *Record) Get() interface{} {
	switch dst.Status {
	case Present:
		return dst.Fields
	case Null:
		return nil
	default:
		return dst.Status
	}
}

func (src *Record) AssignTo(dst interface{}) error {
	switch v := dst.(type) {
	case *[]Value:
		switch src.Status {
		case Present:
			*v = make([]Value, len(src.Fields))
			copy(*v, src.Fields)
		case Null:
			*v = nil
		default:
			return errors.Errorf("cannot decode %#v into %T", src, dst)
		}
	case *[]interface{}:
		switch src.Status {
		case Present:
			*v = make([]interface{}, len(src.Fields))
			for i := range *v {
				(*v)[i] = src.Fields[i].Get()
			}
		case Null:
			*v = nil
		default:
			return errors.Errorf("cannot decode %#v into %T", src, dst)
		}
	default:
		if nextDst, retry := GetAssignToDstType(dst); retry {
			return src.AssignTo(nextDst)
		}
		return errors.Errorf("unable to assign to %T", dst)
	}

	return nil
}

func (dst *Record) DecodeBinary(ci *ConnInfo, src []byte) error {
	if src == nil {
		*dst = Record{Status: Null}
		return nil
	}

	scanner := NewCompositeBinaryScanner(src)

	fields := make([]Value, 0, scanner.FieldCount())

	for scanner.Next() {
		var binaryDecoder BinaryDecoder
		if dt, ok := ci.DataTypeForOID(OID(scanner.OID())); ok {
			value := NewValueForDataType(dt)
			if binaryDecoder, ok = value.(BinaryDecoder); !ok {
				return errors.Errorf("oid %v cannot decode binary format", scanner.OID())
			}
		} else {
			return errors.Errorf("unknown oid while decoding record: %v", scanner.OID())
		}

		if err := binaryDecoder.DecodeBinary(ci, scanner.Bytes()); err != nil {
			return err
		}

		fields = append(fields, binaryDecoder.(Value))
	}

	if scanner.Err() != nil {
		return scanner.Err()
	}

	*dst = Record{Fields: fields, Status: Present}

	return nil
}
