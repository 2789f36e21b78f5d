package pgtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/pgtype"
)

func TestNewConnInfoRegistersCommonTypes(t *testing.T) {
	ci := pgtype.NewConnInfo()

	byOID, ok := ci.DataTypeForOID(pgtype.Int4OID)
	require.True(t, ok)
	assert.Equal(t, "int4", byOID.Name)

	byName, ok := ci.DataTypeForName("int4")
	require.True(t, ok)
	assert.Equal(t, byOID, byName)

	byValue, ok := ci.DataTypeForValue(&pgtype.Int4{})
	require.True(t, ok)
	assert.Equal(t, byOID, byValue)

	_, ok = ci.DataTypeForName("_int4")
	assert.True(t, ok)
}

func TestResultFormatCodeForOID(t *testing.T) {
	ci := pgtype.NewConnInfo()

	assert.Equal(t, pgtype.BinaryFormatCode, ci.ResultFormatCodeForOID(pgtype.Int4OID))
	assert.Equal(t, pgtype.BinaryFormatCode, ci.ResultFormatCodeForOID(pgtype.Int4ArrayOID))

	// unregistered types must be requested in text format
	assert.Equal(t, pgtype.TextFormatCode, ci.ResultFormatCodeForOID(pgtype.OID(999999)))
}

func TestNewValueForDataType(t *testing.T) {
	ci := pgtype.NewConnInfo()

	dt, ok := ci.DataTypeForOID(pgtype.Int4OID)
	require.True(t, ok)

	v1 := pgtype.NewValueForDataType(dt)
	v2 := pgtype.NewValueForDataType(dt)
	require.IsType(t, &pgtype.Int4{}, v1)
	assert.NotSame(t, v1, v2)
	assert.NotSame(t, dt.Value, v1)

	arrayDT, ok := ci.DataTypeForOID(pgtype.Int4ArrayOID)
	require.True(t, ok)

	av := pgtype.NewValueForDataType(arrayDT)
	require.IsType(t, &pgtype.ArrayType{}, av)
	assert.NotSame(t, arrayDT.Value, av)
	require.NoError(t, av.Set([]int32{1, 2}))
}

func TestConnInfoDeepCopy(t *testing.T) {
	ci := pgtype.NewConnInfo()
	ci2 := ci.DeepCopy()

	dt, ok := ci.DataTypeForOID(pgtype.TextOID)
	require.True(t, ok)
	dt2, ok := ci2.DataTypeForOID(pgtype.TextOID)
	require.True(t, ok)

	assert.Equal(t, dt.Name, dt2.Name)
	assert.Equal(t, dt.FormatCode, dt2.FormatCode)
	assert.NotSame(t, dt.Value, dt2.Value)

	// runtime array types survive the copy with a working element constructor
	arrayDT, ok := ci2.DataTypeForOID(pgtype.Int4ArrayOID)
	require.True(t, ok)
	av := pgtype.NewValueForDataType(arrayDT)
	require.NoError(t, av.(pgtype.TextDecoder).DecodeText(ci2, []byte("{1,2,3}")))

	var dst []int32
	require.NoError(t, av.AssignTo(&dst))
	assert.Equal(t, []int32{1, 2, 3}, dst)

	// registering in the copy must not leak into the original
	ci2.RegisterDataType(pgtype.DataType{Value: &pgtype.Text{}, Name: "citext", OID: pgtype.OID(999001)})
	_, ok = ci2.DataTypeForName("citext")
	assert.True(t, ok)
	_, ok = ci.DataTypeForName("citext")
	assert.False(t, ok)
}

func TestRegisterDataTypeFormatCodeDefault(t *testing.T) {
	ci := pgtype.NewConnInfo()

	// Unknown only decodes text so it must stay on the text format
	dt, ok := ci.DataTypeForName("unknown")
	require.True(t, ok)
	assert.Equal(t, pgtype.TextFormatCode, dt.FormatCode)

	dt, ok = ci.DataTypeForName("int8")
	require.True(t, ok)
	assert.Equal(t, pgtype.BinaryFormatCode, dt.FormatCode)
}

func TestRegisterContainerTextOnlyElementFallsBackToText(t *testing.T) {
	ci := pgtype.NewConnInfo()

	// citext stands in for any type with no binary codec
	citextOID := pgtype.OID(999100)
	ci.RegisterDataType(pgtype.DataType{Value: &pgtype.GenericText{}, Name: "citext", OID: citextOID})

	// an array over a text-only element must be transcoded in text as a whole
	citextArrayOID := pgtype.OID(999101)
	ci.RegisterDataType(pgtype.DataType{
		Value: pgtype.NewArrayType("_citext", citextOID, func() pgtype.Value { return &pgtype.GenericText{} }),
		Name:  "_citext",
		OID:   citextArrayOID,
	})

	dt, ok := ci.DataTypeForOID(citextArrayOID)
	require.True(t, ok)
	assert.Equal(t, pgtype.TextFormatCode, dt.FormatCode)
	assert.Equal(t, pgtype.TextFormatCode, ci.ResultFormatCodeForOID(citextArrayOID))

	// same for a composite with one text-only field, even when others are binary
	ct, err := pgtype.NewCompositeType("tagged", []pgtype.CompositeTypeField{
		{Name: "id", OID: pgtype.Int4OID},
		{Name: "label", OID: citextOID},
	}, ci)
	require.NoError(t, err)

	taggedOID := pgtype.OID(999102)
	ci.RegisterDataType(pgtype.DataType{Value: ct, Name: "tagged", OID: taggedOID})

	dt, ok = ci.DataTypeForOID(taggedOID)
	require.True(t, ok)
	assert.Equal(t, pgtype.TextFormatCode, dt.FormatCode)
	assert.Equal(t, pgtype.TextFormatCode, ci.ResultFormatCodeForOID(taggedOID))

	// containers over binary-capable elements stay binary
	arrayDT, ok := ci.DataTypeForOID(pgtype.Int4ArrayOID)
	require.True(t, ok)
	assert.Equal(t, pgtype.BinaryFormatCode, arrayDT.FormatCode)

	allBinary, err := pgtype.NewCompositeType("point_pair", []pgtype.CompositeTypeField{
		{Name: "a", OID: pgtype.Int4OID},
		{Name: "b", OID: pgtype.Int4OID},
	}, ci)
	require.NoError(t, err)
	assert.Equal(t, pgtype.BinaryFormatCode, allBinary.PreferredFormat())
}
