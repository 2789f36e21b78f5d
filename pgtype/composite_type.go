package pgtype

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/internal/pgio"
)

// CompositeTypeField describes one attribute of a composite type.
type CompositeTypeField struct {
	Name string
	OID  OID
}

// CompositeType is a runtime constructed composite (row) type. Attribute
// types must already be registered in the ConnInfo used to build it.
type CompositeType struct {
	typeName string

	fields           []CompositeTypeField
	valueTranscoders []Value

	status Status
}

// NewCompositeType creates a CompositeType for typeName with fields. ci is
// used to find the transcoder for each attribute type.
func NewCompositeType(typeName string, fields []CompositeTypeField, ci *ConnInfo) (*CompositeType, error) {
	valueTranscoders := make([]Value, len(fields))

	for i := range fields {
		dt, ok := ci.DataTypeForOID(fields[i].OID)
		if !ok {
			return nil, errors.Errorf("no data type registered for oid: %d", fields[i].OID)
		}

		valueTranscoders[i] = NewValueForDataType(dt)
	}

	return &CompositeType{typeName: typeName, fields: fields, valueTranscoders: valueTranscoders}, nil
}

func (ct *CompositeType) TypeName() string {
	return ct.typeName
}

// CloneTypeValue implements ValueCloner. A zero CompositeType has no fields
// so reflection based copies are unusable.
func (ct *CompositeType) CloneTypeValue() Value {
	a := &CompositeType{typeName: ct.typeName, fields: ct.fields}
	a.valueTranscoders = make([]Value, len(ct.valueTranscoders))
	for i := range ct.valueTranscoders {
		if cloner, ok := ct.valueTranscoders[i].(ValueCloner); ok {
			a.valueTranscoders[i] = cloner.CloneTypeValue()
		} else {
			a.valueTranscoders[i] = NewValueForDataType(&DataType{Value: ct.valueTranscoders[i]})
		}
	}
	return a
}

func (ct *CompositeType) Fields() []CompositeTypeField {
	return ct.fields
}

// PreferredFormat returns text when any field type has no binary codec.
func (ct *CompositeType) PreferredFormat() int16 {
	for _, vt := range ct.valueTranscoders {
		if _, ok := vt.(BinaryDecoder); !ok {
			return TextFormatCode
		}
	}
	return BinaryFormatCode
}

func (dst *CompositeType) Set(src interface{}) error {
	if src == nil {
		dst.status = Null
		return nil
	}

	switch value := src.(type) {
	case []interface{}:
		if len(value) != len(dst.valueTranscoders) {
			return errors.Errorf("Number of fields don't match. CompositeType has %d fields", len(dst.valueTranscoders))
		}
		for i, v := range value {
			if err := dst.valueTranscoders[i].Set(v); err != nil {
				return err
			}
		}
		dst.status = Present
	case *[]interface{}:
		if value == nil {
			dst.status = Null
			return nil
		}
		return dst.Set(*value)
	default:
		return errors.Errorf("Can not convert %v to CompositeType", src)
	}

	return nil
}

// Get returns a map of attribute name to the simplest representation of each
// present attribute.
func (src CompositeType) Get() interface{} {
	switch src.status {
	case Present:
		results := make(map[string]interface{}, len(src.valueTranscoders))
		for i, v := range src.valueTranscoders {
			results[src.fields[i].Name] = v.Get()
		}
		return results
	case Null:
		return nil
	default:
		return src.status
	}
}

// AssignTo assigns to dst. *[]interface{} receives each attribute converted
// by its transcoder; a []interface{} of pointers scans each attribute into
// the corresponding pointer.
func (src CompositeType) AssignTo(dst interface{}) error {
	switch src.status {
	case Present:
		switch v := dst.(type) {
		case []interface{}:
			if len(v) != len(src.valueTranscoders) {
				return errors.Errorf("Number of fields don't match. CompositeType has %d fields", len(src.valueTranscoders))
			}
			for i := range src.valueTranscoders {
				if v[i] == nil {
					continue
				}
				if err := src.valueTranscoders[i].AssignTo(v[i]); err != nil {
					return err
				}
			}
			return nil
		case *[]interface{}:
			*v = make([]interface{}, len(src.valueTranscoders))
			for i := range src.valueTranscoders {
				(*v)[i] = src.valueTranscoders[i].Get()
			}
			return nil
		default:
			return errors.Errorf("unable to assign to %T", dst)
		}
	case Null:
		return NullAssignTo(dst)
	}

	return errors.Errorf("cannot assign %v into %T", src, dst)
}

func (dst *CompositeType) DecodeBinary(ci *ConnInfo, src []byte) error {
	if src == nil {
		dst.status = Null
		return nil
	}

	scanner := NewCompositeBinaryScanner(src)

	if scanner.FieldCount() != len(dst.valueTranscoders) {
		return errors.Errorf("expected %d fields, got %d", len(dst.valueTranscoders), scanner.FieldCount())
	}

	for i := 0; scanner.Next(); i++ {
		binaryDecoder, ok := dst.valueTranscoders[i].(BinaryDecoder)
		if !ok {
			return errors.Errorf("%T cannot decode binary format", dst.valueTranscoders[i])
		}

		if err := binaryDecoder.DecodeBinary(ci, scanner.Bytes()); err != nil {
			return err
		}
	}

	if scanner.Err() != nil {
		return scanner.Err()
	}

	dst.status = Present

	return nil
}

func (dst *CompositeType) DecodeText(ci *ConnInfo, src []byte) error {
	if src == nil {
		dst.status = Null
		return nil
	}

	scanner := NewCompositeTextScanner(src)

	for i := 0; scanner.Next(); i++ {
		if i >= len(dst.valueTranscoders) {
			return errors.Errorf("expected %d fields, got more", len(dst.valueTranscoders))
		}

		textDecoder, ok := dst.valueTranscoders[i].(TextDecoder)
		if !ok {
			return errors.Errorf("%T cannot decode text format", dst.valueTranscoders[i])
		}

		if err := textDecoder.DecodeText(ci, scanner.Bytes()); err != nil {
			return err
		}
	}

	if scanner.Err() != nil {
		return scanner.Err()
	}

	dst.status = Present

	return nil
}

func (src CompositeType) EncodeBinary(ci *ConnInfo, buf []byte) ([]byte, error) {
	switch src.status {
	case Null:
		return nil, nil
	case Undefined:
		return nil, errUndefined
	}

	b := NewCompositeBinaryBuilder(ci, buf)
	for i := range src.valueTranscoders {
		b.AppendValue(uint32(src.fields[i].OID), src.valueTranscoders[i])
	}

	return b.Finish()
}

func (src CompositeType) EncodeText(ci *ConnInfo, buf []byte) ([]byte, error) {
	switch src.status {
	case Null:
		return nil, nil
	case Undefined:
		return nil, errUndefined
	}

	b := NewCompositeTextBuilder(ci, buf)
	for i := range src.valueTranscoders {
		b.AppendValue(src.valueTranscoders[i])
	}

	return b.Finish()
}

type CompositeBinaryScanner struct {
	rp  int
	src []byte

	fieldCount int32
	fieldBytes []byte
	fieldOID   uint32
	err        error
}

// NewCompositeBinaryScanner creates a scanner over a binary encoded
// composite value.
func NewCompositeBinaryScanner(src []byte) *CompositeBinaryScanner {
	rp := 0
	if len(src[rp:]) < 4 {
		return &CompositeBinaryScanner{err: errors.Errorf("record incomplete %v", src)}
	}

	fieldCount := int32(binary.BigEndian.Uint32(src[rp:]))
	rp += 4

	return &CompositeBinaryScanner{
		rp:         rp,
		src:        src,
		fieldCount: fieldCount,
	}
}

// Next advances the scanner to the next field. It returns false after the
// last field is read or an error occurs. After Next returns false, the Err
// method can be called to check if any errors occurred.
func (cfs *CompositeBinaryScanner) Next() bool {
	if cfs.err != nil {
		return false
	}

	if cfs.rp == len(cfs.src) {
		return false
	}

	if len(cfs.src[cfs.rp:]) < 8 {
		cfs.err = errors.Errorf("record incomplete %v", cfs.src)
		return false
	}
	cfs.fieldOID = binary.BigEndian.Uint32(cfs.src[cfs.rp:])
	cfs.rp += 4

	fieldLen := int(int32(binary.BigEndian.Uint32(cfs.src[cfs.rp:])))
	cfs.rp += 4

	if fieldLen >= 0 {
		if len(cfs.src[cfs.rp:]) < fieldLen {
			cfs.err = errors.Errorf("record incomplete rp=%d src=%v", cfs.rp, cfs.src)
			return false
		}
		cfs.fieldBytes = cfs.src[cfs.rp : cfs.rp+fieldLen]
		cfs.rp += fieldLen
	} else {
		cfs.fieldBytes = nil
	}

	return true
}

func (cfs *CompositeBinaryScanner) FieldCount() int {
	return int(cfs.fieldCount)
}

// Bytes returns the bytes of the field most recently read by Next().
func (cfs *CompositeBinaryScanner) Bytes() []byte {
	return cfs.fieldBytes
}

// OID returns the OID of the field most recently read by Next().
func (cfs *CompositeBinaryScanner) OID() uint32 {
	return cfs.fieldOID
}

// Err returns any error encountered by the scanner.
func (cfs *CompositeBinaryScanner) Err() error {
	return cfs.err
}

type CompositeTextScanner struct {
	rp  int
	src []byte

	fieldBytes []byte
	err        error
}

// NewCompositeTextScanner creates a scanner over a text encoded composite
// value.
func NewCompositeTextScanner(src []byte) *CompositeTextScanner {
	if len(src) < 2 {
		return &CompositeTextScanner{err: errors.Errorf("record incomplete %v", src)}
	}

	if src[0] != '(' {
		return &CompositeTextScanner{err: errors.Errorf("composite text format must start with '('")}
	}

	if src[len(src)-1] != ')' {
		return &CompositeTextScanner{err: errors.Errorf("composite text format must end with ')'")}
	}

	return &CompositeTextScanner{
		rp:  1,
		src: src,
	}
}

// Next advances the scanner to the next field. It returns false after the
// last field is read or an error occurs. After Next returns false, the Err
// method can be called to check if any errors occurred.
func (cfs *CompositeTextScanner) Next() bool {
	if cfs.err != nil {
		return false
	}

	if cfs.rp == len(cfs.src) {
		return false
	}

	switch cfs.src[cfs.rp] {
	case ',', ')': // null
		cfs.rp++
		cfs.fieldBytes = nil
		return true
	case '"': // quoted value
		cfs.rp++
		cfs.fieldBytes = make([]byte, 0, 16)
		for {
			ch := cfs.src[cfs.rp]

			if ch == '"' {
				cfs.rp++
				if cfs.src[cfs.rp] == '"' {
					cfs.fieldBytes = append(cfs.fieldBytes, '"')
					cfs.rp++
				} else {
					break
				}
			} else if ch == '\\' {
				cfs.rp++
				cfs.fieldBytes = append(cfs.fieldBytes, cfs.src[cfs.rp])
				cfs.rp++
			} else {
				cfs.fieldBytes = append(cfs.fieldBytes, ch)
				cfs.rp++
			}
		}
		cfs.rp++
		return true
	default: // unquoted value
		start := cfs.rp
		for {
			ch := cfs.src[cfs.rp]
			if ch == ',' || ch == ')' {
				break
			}
			cfs.rp++
		}
		cfs.fieldBytes = cfs.src[start:cfs.rp]
		cfs.rp++
		return true
	}
}

// Bytes returns the bytes of the field most recently read by Next().
func (cfs *CompositeTextScanner) Bytes() []byte {
	return cfs.fieldBytes
}

// Err returns any error encountered by the scanner.
func (cfs *CompositeTextScanner) Err() error {
	return cfs.err
}

type CompositeBinaryBuilder struct {
	ci         *ConnInfo
	buf        []byte
	startIdx   int
	fieldCount uint32
	err        error
}

func NewCompositeBinaryBuilder(ci *ConnInfo, buf []byte) *CompositeBinaryBuilder {
	startIdx := len(buf)
	buf = append(buf, 0, 0, 0, 0) // allocate room for number of fields
	return &CompositeBinaryBuilder{ci: ci, buf: buf, startIdx: startIdx}
}

func (b *CompositeBinaryBuilder) AppendValue(oid uint32, field Value) {
	if b.err != nil {
		return
	}

	binaryEncoder, ok := field.(BinaryEncoder)
	if !ok {
		b.err = errors.Errorf("unable to encode %v into composite field", field)
		return
	}

	b.buf = pgio.AppendUint32(b.buf, oid)
	lengthPos := len(b.buf)
	b.buf = pgio.AppendInt32(b.buf, -1)
	fieldBuf, err := binaryEncoder.EncodeBinary(b.ci, b.buf)
	if err != nil {
		b.err = err
		return
	}
	if fieldBuf != nil {
		b.buf = fieldBuf
		pgio.SetInt32(b.buf[lengthPos:], int32(len(b.buf[lengthPos:])-4))
	}

	b.fieldCount++
}

func (b *CompositeBinaryBuilder) Finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	binary.BigEndian.PutUint32(b.buf[b.startIdx:], b.fieldCount)
	return b.buf, nil
}

type CompositeTextBuilder struct {
	ci         *ConnInfo
	buf        []byte
	startIdx   int
	fieldCount uint32
	err        error
	fieldBuf   [32]byte
}

func NewCompositeTextBuilder(ci *ConnInfo, buf []byte) *CompositeTextBuilder {
	buf = append(buf, '(') // allocate room for number of fields
	return &CompositeTextBuilder{ci: ci, buf: buf}
}

func (b *CompositeTextBuilder) AppendValue(field Value) {
	if b.err != nil {
		return
	}

	textEncoder, ok := field.(TextEncoder)
	if !ok {
		b.err = errors.Errorf("unable to encode %v into composite field", field)
		return
	}

	fieldBuf, err := textEncoder.EncodeText(b.ci, b.fieldBuf[0:0])
	if err != nil {
		b.err = err
		return
	}
	if fieldBuf != nil {
		b.buf = append(b.buf, quoteCompositeFieldIfNeeded(string(fieldBuf))...)
	}

	b.buf = append(b.buf, ',')
	b.fieldCount++
}

func (b *CompositeTextBuilder) Finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	b.buf[len(b.buf)-1] = ')'
	return b.buf, nil
}

var quoteCompositeReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteCompositeField(src string) string {
	return `"` + quoteCompositeReplacer.Replace(src) + `"`
}

func quoteCompositeFieldIfNeeded(src string) string {
	if src == "" || src[0] == ' ' || src[len(src)-1] == ' ' || strings.ContainsAny(src, `(),"\`) {
		return quoteCompositeField(src)
	}
	return src
}
