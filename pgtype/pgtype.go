package pgtype

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// OID (Object Identifier Type) is, put simply, an unsigned four byte integer.
// It is used internally by PostgreSQL as a primary key for system tables. It
// also identifies the type of a value on the wire.
type OID uint32

// PostgreSQL oids for common types
const (
	BoolOID             = 16
	ByteaOID            = 17
	CharOID             = 18
	NameOID             = 19
	Int8OID             = 20
	Int2OID             = 21
	Int4OID             = 23
	TextOID             = 25
	OIDOID              = 26
	JSONOID             = 114
	Float4OID           = 700
	Float8OID           = 701
	UnknownOID          = 705
	BoolArrayOID        = 1000
	ByteaArrayOID       = 1001
	Int2ArrayOID        = 1005
	Int4ArrayOID        = 1007
	TextArrayOID        = 1009
	VarcharArrayOID     = 1015
	Int8ArrayOID        = 1016
	Float4ArrayOID      = 1021
	Float8ArrayOID      = 1022
	VarcharOID          = 1043
	DateOID             = 1082
	TimestampOID        = 1114
	TimestampArrayOID   = 1115
	DateArrayOID        = 1182
	TimestamptzOID      = 1184
	TimestamptzArrayOID = 1185
	NumericOID          = 1700
	NumericArrayOID     = 1231
	RecordOID           = 2249
	UUIDOID             = 2950
	UUIDArrayOID        = 2951
	JSONBOID            = 3802
)

// PostgreSQL format codes
const (
	TextFormatCode   int16 = 0
	BinaryFormatCode int16 = 1
)

type Status byte

const (
	Undefined Status = iota
	Null
	Present
)

type InfinityModifier int8

const (
	Infinity         InfinityModifier = 1
	None             InfinityModifier = 0
	NegativeInfinity InfinityModifier = -Infinity
)

func (im InfinityModifier) String() string {
	switch im {
	case None:
		return "none"
	case Infinity:
		return "infinity"
	case NegativeInfinity:
		return "-infinity"
	default:
		return "invalid"
	}
}

type Value interface {
	// Set converts and assigns src to itself.
	Set(src interface{}) error

	// Get returns the simplest representation of Value. If the Value is Null or
	// Undefined that is the return value. If no simpler representation is
	// possible, then Get() returns Value.
	Get() interface{}

	// AssignTo converts and assigns the Value to dst. It MUST make a deep copy of
	// any reference types.
	AssignTo(dst interface{}) error
}

type BinaryDecoder interface {
	// DecodeBinary decodes src into BinaryDecoder. If src is nil then the
	// original SQL value is NULL. BinaryDecoder takes ownership of src. The
	// caller MUST not use it again.
	DecodeBinary(ci *ConnInfo, src []byte) error
}

type TextDecoder interface {
	// DecodeText decodes src into TextDecoder. If src is nil then the original
	// SQL value is NULL. TextDecoder takes ownership of src. The caller MUST not
	// use it again.
	DecodeText(ci *ConnInfo, src []byte) error
}

// BinaryEncoder is implemented by types that can encode themselves into the
// PostgreSQL binary wire format.
type BinaryEncoder interface {
	// EncodeBinary should append the binary format of self to buf. If self is the
	// SQL value NULL then append nothing and return (nil, nil). The caller of
	// EncodeBinary is responsible for writing the correct NULL value or the
	// length of the data written.
	EncodeBinary(ci *ConnInfo, buf []byte) (newBuf []byte, err error)
}

// TextEncoder is implemented by types that can encode themselves into the
// PostgreSQL text wire format.
type TextEncoder interface {
	// EncodeText should append the text format of self to buf. If self is the
	// SQL value NULL then append nothing and return (nil, nil). The caller of
	// EncodeText is responsible for writing the correct NULL value or the
	// length of the data written.
	EncodeText(ci *ConnInfo, buf []byte) (newBuf []byte, err error)
}

var errUndefined = errors.New("cannot encode status undefined")
var errBadStatus = errors.New("invalid status")

// UnsupportedTypeError occurs when a value must be transcoded for an OID with
// no registered codec and the value is not already textual.
type UnsupportedTypeError struct {
	OID OID
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no codec registered for oid %d", e.OID)
}

// DecodeError wraps a failure to decode a wire value with the OID, wire
// format and byte length of the offending value.
type DecodeError struct {
	OID    OID
	Format int16
	Len    int
	Err    error
}

func (e *DecodeError) Error() string {
	format := "text"
	if e.Format == BinaryFormatCode {
		format = "binary"
	}
	return fmt.Sprintf("cannot decode oid %d in %s format (%d bytes): %v", e.OID, format, e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type DataType struct {
	Value      Value
	Name       string
	OID        OID
	FormatCode int16
}

type ConnInfo struct {
	oidToDataType         map[OID]*DataType
	nameToDataType        map[string]*DataType
	reflectTypeToDataType map[reflect.Type]*DataType
}

func newConnInfo() *ConnInfo {
	return &ConnInfo{
		oidToDataType:         make(map[OID]*DataType, 64),
		nameToDataType:        make(map[string]*DataType, 64),
		reflectTypeToDataType: make(map[reflect.Type]*DataType, 64),
	}
}

// NewConnInfo returns a ConnInfo with the common PostgreSQL types already
// registered.
func NewConnInfo() *ConnInfo {
	ci := newConnInfo()

	ci.RegisterDataType(DataType{Value: &Bool{}, Name: "bool", OID: BoolOID})
	ci.RegisterDataType(DataType{Value: &Bytea{}, Name: "bytea", OID: ByteaOID})
	ci.RegisterDataType(DataType{Value: &Date{}, Name: "date", OID: DateOID})
	ci.RegisterDataType(DataType{Value: &Float4{}, Name: "float4", OID: Float4OID})
	ci.RegisterDataType(DataType{Value: &Float8{}, Name: "float8", OID: Float8OID})
	ci.RegisterDataType(DataType{Value: &Int2{}, Name: "int2", OID: Int2OID})
	ci.RegisterDataType(DataType{Value: &Int4{}, Name: "int4", OID: Int4OID})
	ci.RegisterDataType(DataType{Value: &Int8{}, Name: "int8", OID: Int8OID})
	ci.RegisterDataType(DataType{Value: &JSON{}, Name: "json", OID: JSONOID})
	ci.RegisterDataType(DataType{Value: &JSONB{}, Name: "jsonb", OID: JSONBOID})
	ci.RegisterDataType(DataType{Value: &Numeric{}, Name: "numeric", OID: NumericOID})
	ci.RegisterDataType(DataType{Value: &OIDValue{}, Name: "oid", OID: OIDOID})
	ci.RegisterDataType(DataType{Value: &Record{}, Name: "record", OID: RecordOID})
	ci.RegisterDataType(DataType{Value: &Text{}, Name: "text", OID: TextOID})
	ci.RegisterDataType(DataType{Value: &Timestamp{}, Name: "timestamp", OID: TimestampOID})
	ci.RegisterDataType(DataType{Value: &Timestamptz{}, Name: "timestamptz", OID: TimestamptzOID})
	ci.RegisterDataType(DataType{Value: &Unknown{}, Name: "unknown", OID: UnknownOID})
	ci.RegisterDataType(DataType{Value: &UUID{}, Name: "uuid", OID: UUIDOID})
	ci.RegisterDataType(DataType{Value: &Varchar{}, Name: "varchar", OID: VarcharOID})

	registerArrayType := func(name string, oid OID, elementName string, elementOID OID) {
		newElement := func() Value {
			dt, _ := ci.DataTypeForName(elementName)
			return reflect.New(reflect.ValueOf(dt.Value).Elem().Type()).Interface().(Value)
		}
		ci.RegisterDataType(DataType{Value: NewArrayType(name, elementOID, newElement), Name: name, OID: oid})
	}

	registerArrayType("_bool", BoolArrayOID, "bool", BoolOID)
	registerArrayType("_bytea", ByteaArrayOID, "bytea", ByteaOID)
	registerArrayType("_date", DateArrayOID, "date", DateOID)
	registerArrayType("_float4", Float4ArrayOID, "float4", Float4OID)
	registerArrayType("_float8", Float8ArrayOID, "float8", Float8OID)
	registerArrayType("_int2", Int2ArrayOID, "int2", Int2OID)
	registerArrayType("_int4", Int4ArrayOID, "int4", Int4OID)
	registerArrayType("_int8", Int8ArrayOID, "int8", Int8OID)
	registerArrayType("_numeric", NumericArrayOID, "numeric", NumericOID)
	registerArrayType("_text", TextArrayOID, "text", TextOID)
	registerArrayType("_timestamp", TimestampArrayOID, "timestamp", TimestampOID)
	registerArrayType("_timestamptz", TimestamptzArrayOID, "timestamptz", TimestamptzOID)
	registerArrayType("_uuid", UUIDArrayOID, "uuid", UUIDOID)
	registerArrayType("_varchar", VarcharArrayOID, "varchar", VarcharOID)

	return ci
}

func (ci *ConnInfo) DataTypes() map[OID]DataType {
	out := make(map[OID]DataType, len(ci.oidToDataType))
	for _, dt := range ci.oidToDataType {
		out[dt.OID] = *dt
	}
	return out
}

// RegisterDataType makes t available by OID, name and Go type. t.FormatCode
// defaults to the richest format the value can decode.
func (ci *ConnInfo) RegisterDataType(t DataType) {
	if t.FormatCode == TextFormatCode {
		t.FormatCode = preferredFormatCode(t.Value)
	}

	ci.oidToDataType[t.OID] = &t
	ci.nameToDataType[t.Name] = &t
	ci.reflectTypeToDataType[reflect.ValueOf(t.Value).Type()] = &t
}

func (ci *ConnInfo) DataTypeForOID(oid OID) (*DataType, bool) {
	dt, ok := ci.oidToDataType[oid]
	return dt, ok
}

func (ci *ConnInfo) DataTypeForName(name string) (*DataType, bool) {
	dt, ok := ci.nameToDataType[name]
	return dt, ok
}

func (ci *ConnInfo) DataTypeForValue(v Value) (*DataType, bool) {
	dt, ok := ci.reflectTypeToDataType[reflect.ValueOf(v).Type()]
	return dt, ok
}

// ResultFormatCodeForOID returns the format code results for oid should be
// requested in. Types never registered decode through the text fallback.
func (ci *ConnInfo) ResultFormatCodeForOID(oid OID) int16 {
	if dt, ok := ci.oidToDataType[oid]; ok {
		return dt.FormatCode
	}
	return TextFormatCode
}

// DeepCopy makes a deep copy of the ConnInfo.
func (ci *ConnInfo) DeepCopy() *ConnInfo {
	ci2 := newConnInfo()

	for _, dt := range ci.oidToDataType {
		var value Value
		if cloner, ok := dt.Value.(ValueCloner); ok {
			value = cloner.CloneTypeValue()
		} else {
			value = reflect.New(reflect.ValueOf(dt.Value).Elem().Type()).Interface().(Value)
		}
		ci2.RegisterDataType(DataType{
			Value:      value,
			Name:       dt.Name,
			OID:        dt.OID,
			FormatCode: dt.FormatCode,
		})
	}

	return ci2
}

// NewValueForDataType returns a fresh Value of dt's type. Registered Values
// are prototypes and must never be decoded into directly.
func NewValueForDataType(dt *DataType) Value {
	if cloner, ok := dt.Value.(ValueCloner); ok {
		return cloner.CloneTypeValue()
	}
	return reflect.New(reflect.ValueOf(dt.Value).Elem().Type()).Interface().(Value)
}

// ValueCloner is implemented by Values whose zero value is not usable, such
// as runtime constructed array and composite types. DeepCopy uses it instead
// of reflection.
type ValueCloner interface {
	CloneTypeValue() Value
}

// FormatPreferrer is implemented by container values such as arrays and
// composites whose wire format depends on their element types. A container
// with any text-only element must be transcoded in text as a whole; a
// partially binary container is unparseable by the server.
type FormatPreferrer interface {
	PreferredFormat() int16
}

// preferredFormatCode selects binary when the value can decode it. Everything
// else stays on the text format.
func preferredFormatCode(value Value) int16 {
	if fp, ok := value.(FormatPreferrer); ok {
		return fp.PreferredFormat()
	}
	if _, ok := value.(BinaryDecoder); ok {
		return BinaryFormatCode
	}
	return TextFormatCode
}
