package pgtype_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/pgtype"
)

func TestDateTranscode(t *testing.T) {
	ci := pgtype.NewConnInfo()

	dates := []pgtype.Date{
		{Time: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Status: pgtype.Present},
		{Time: time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), Status: pgtype.Present},
		{Time: time.Date(2021, 7, 4, 0, 0, 0, 0, time.UTC), Status: pgtype.Present},
		{Time: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), Status: pgtype.Present},
		{Status: pgtype.Present, InfinityModifier: pgtype.Infinity},
		{Status: pgtype.Present, InfinityModifier: pgtype.NegativeInfinity},
	}

	for i, src := range dates {
		binBuf, err := src.EncodeBinary(ci, nil)
		require.NoError(t, err, "%d", i)

		var fromBinary pgtype.Date
		require.NoError(t, fromBinary.DecodeBinary(ci, binBuf), "%d", i)
		assert.Truef(t, src.Time.Equal(fromBinary.Time), "%d: %v != %v", i, src.Time, fromBinary.Time)
		assert.Equalf(t, src.InfinityModifier, fromBinary.InfinityModifier, "%d", i)

		textBuf, err := src.EncodeText(ci, nil)
		require.NoError(t, err, "%d", i)

		var fromText pgtype.Date
		require.NoError(t, fromText.DecodeText(ci, textBuf), "%d", i)
		assert.Truef(t, src.Time.Equal(fromText.Time), "%d: %v != %v", i, src.Time, fromText.Time)
		assert.Equalf(t, src.InfinityModifier, fromText.InfinityModifier, "%d", i)
	}
}

func TestDateDecodeText(t *testing.T) {
	ci := pgtype.NewConnInfo()

	var d pgtype.Date
	require.NoError(t, d.DecodeText(ci, []byte("2013-01-24")))
	assert.True(t, d.Time.Equal(time.Date(2013, 1, 24, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, d.DecodeText(ci, []byte("infinity")))
	assert.Equal(t, pgtype.Infinity, d.InfinityModifier)

	require.NoError(t, d.DecodeText(ci, nil))
	assert.Equal(t, pgtype.Null, d.Status)
}
