package numeric

import (
	"math/big"
	"strconv"

	"github.com/cockroachdb/apd"
	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgtype"
)

var errUndefined = errors.New("cannot encode status undefined")

// Numeric wraps a github.com/cockroachdb/apd Decimal so it can be registered
// as the transcoder for the numeric type.
type Numeric struct {
	Decimal apd.Decimal
	Status  pgtype.Status
}

func (dst *Numeric) Set(src interface{}) error {
	if src == nil {
		*dst = Numeric{Status: pgtype.Null}
		return nil
	}

	switch value := src.(type) {
	case apd.Decimal:
		*dst = Numeric{Decimal: value, Status: pgtype.Present}
	case *apd.Decimal:
		*dst = Numeric{Decimal: *value, Status: pgtype.Present}
	case float32:
		dec := &apd.Decimal{}
		if _, err := dec.SetFloat64(float64(value)); err != nil {
			return err
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	case float64:
		dec := &apd.Decimal{}
		if _, err := dec.SetFloat64(value); err != nil {
			return err
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	case int8:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case uint8:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case int16:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case uint16:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case int32:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case uint32:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case int64:
		*dst = Numeric{Decimal: *apd.New(value, 0), Status: pgtype.Present}
	case uint64:
		// uint64 could be greater than int64 so convert to string then to decimal
		dec, _, err := apd.NewFromString(strconv.FormatUint(value, 10))
		if err != nil {
			return err
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	case int:
		*dst = Numeric{Decimal: *apd.New(int64(value), 0), Status: pgtype.Present}
	case uint:
		// uint could be greater than int64 so convert to string then to decimal
		dec, _, err := apd.NewFromString(strconv.FormatUint(uint64(value), 10))
		if err != nil {
			return err
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	case string:
		dec, _, err := apd.NewFromString(value)
		if err != nil {
			return err
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	default:
		// If all else fails see if pgtype.Numeric can handle it. If so, translate through that.
		num := &pgtype.Numeric{}
		if err := num.Set(value); err != nil {
			return errors.Errorf("cannot convert %v to Numeric", value)
		}

		buf, err := num.EncodeText(nil, nil)
		if err != nil {
			return errors.Errorf("cannot convert %v to Numeric", value)
		}

		dec, _, err := apd.NewFromString(string(buf))
		if err != nil {
			return errors.Errorf("cannot convert %v to Numeric", value)
		}
		*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	}

	return nil
}

func (dst *Numeric) Get() interface{} {
	switch dst.Status {
	case pgtype.Present:
		return dst.Decimal
	case pgtype.Null:
		return nil
	default:
		return dst.Status
	}
}

func (src *Numeric) AssignTo(dst interface{}) error {
	switch src.Status {
	case pgtype.Present:
		switch v := dst.(type) {
		case *apd.Decimal:
			v.Set(&src.Decimal)
		case *float32:
			f, err := src.Decimal.Float64()
			if err != nil {
				return err
			}
			*v = float32(f)
		case *float64:
			f, err := src.Decimal.Float64()
			if err != nil {
				return err
			}
			*v = f
		case *int64:
			if src.Decimal.Exponent < 0 {
				return errors.Errorf("cannot convert %v to integer", src)
			}
			n, err := strconv.ParseInt(src.Decimal.String(), 10, 64)
			if err != nil {
				return err
			}
			*v = n
		case *string:
			*v = src.Decimal.String()
		default:
			if nextDst, retry := pgtype.GetAssignToDstType(dst); retry {
				return src.AssignTo(nextDst)
			}
			return errors.Errorf("unable to assign to %T", dst)
		}
	case pgtype.Null:
		return pgtype.NullAssignTo(dst)
	}

	return nil
}

func (dst *Numeric) DecodeText(ci *pgtype.ConnInfo, src []byte) error {
	if src == nil {
		*dst = Numeric{Status: pgtype.Null}
		return nil
	}

	dec, _, err := apd.NewFromString(string(src))
	if err != nil {
		return err
	}

	*dst = Numeric{Decimal: *dec, Status: pgtype.Present}
	return nil
}

func (dst *Numeric) DecodeBinary(ci *pgtype.ConnInfo, src []byte) error {
	if src == nil {
		*dst = Numeric{Status: pgtype.Null}
		return nil
	}

	// The binary format is implemented by pgtype.Numeric. Decode through it.
	num := &pgtype.Numeric{}
	if err := num.DecodeBinary(ci, src); err != nil {
		return err
	}

	if num.NaN {
		return errors.New("cannot decode NaN into apd.Decimal")
	}

	dec := apd.Decimal{Exponent: num.Exp}
	dec.Coeff.Abs(num.Int)
	dec.Negative = num.Int.Sign() < 0

	*dst = Numeric{Decimal: dec, Status: pgtype.Present}
	return nil
}

func (src Numeric) EncodeText(ci *pgtype.ConnInfo, buf []byte) ([]byte, error) {
	switch src.Status {
	case pgtype.Null:
		return nil, nil
	case pgtype.Undefined:
		return nil, errUndefined
	}

	return append(buf, src.Decimal.String()...), nil
}

func (src Numeric) EncodeBinary(ci *pgtype.ConnInfo, buf []byte) ([]byte, error) {
	switch src.Status {
	case pgtype.Null:
		return nil, nil
	case pgtype.Undefined:
		return nil, errUndefined
	}

	coeff := new(big.Int).Set(&src.Decimal.Coeff)
	if src.Decimal.Negative {
		coeff.Neg(coeff)
	}

	num := pgtype.Numeric{Int: coeff, Exp: src.Decimal.Exponent, Status: pgtype.Present}
	return num.EncodeBinary(ci, buf)
}
