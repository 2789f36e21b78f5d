package pgtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/pgtype"
)

func TestUUIDSet(t *testing.T) {
	successfulTests := []struct {
		source interface{}
		result pgtype.UUID
	}{
		{
			source: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			result: pgtype.UUID{Bytes: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, Status: pgtype.Present},
		},
		{
			source: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			result: pgtype.UUID{Bytes: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, Status: pgtype.Present},
		},
		{
			source: "00010203-0405-0607-0809-0a0b0c0d0e0f",
			result: pgtype.UUID{Bytes: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, Status: pgtype.Present},
		},
	}

	for i, tt := range successfulTests {
		var r pgtype.UUID
		err := r.Set(tt.source)
		require.NoError(t, err, "%d", i)
		assert.Equalf(t, tt.result, r, "%d", i)
	}

	var r pgtype.UUID
	assert.Error(t, r.Set("not-a-uuid"))
	assert.Error(t, r.Set([]byte{1, 2, 3}))
}

func TestUUIDAssignTo(t *testing.T) {
	src := pgtype.UUID{Bytes: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, Status: pgtype.Present}

	var s string
	require.NoError(t, src.AssignTo(&s))
	assert.Equal(t, "00010203-0405-0607-0809-0a0b0c0d0e0f", s)

	var b []byte
	require.NoError(t, src.AssignTo(&b))
	assert.Equal(t, src.Bytes[:], b)

	var a [16]byte
	require.NoError(t, src.AssignTo(&a))
	assert.Equal(t, src.Bytes, a)
}

func TestUUIDTranscode(t *testing.T) {
	ci := pgtype.NewConnInfo()
	src := pgtype.UUID{Bytes: [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, Status: pgtype.Present}

	textBuf, err := src.EncodeText(ci, nil)
	require.NoError(t, err)
	assert.Equal(t, "00010203-0405-0607-0809-0a0b0c0d0e0f", string(textBuf))

	var fromText pgtype.UUID
	require.NoError(t, fromText.DecodeText(ci, textBuf))
	assert.Equal(t, src, fromText)

	binBuf, err := src.EncodeBinary(ci, nil)
	require.NoError(t, err)
	require.Len(t, binBuf, 16)

	var fromBinary pgtype.UUID
	require.NoError(t, fromBinary.DecodeBinary(ci, binBuf))
	assert.Equal(t, src, fromBinary)
}
