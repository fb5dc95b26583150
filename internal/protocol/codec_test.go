package protocol

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := cbor.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDecodeRecord_MapAndArray(t *testing.T) {
	fromMap, err := decodeRecord(mustMarshal(t, map[uint64]any{0: 135, 1: 2}))
	require.NoError(t, err)
	fromArray, err := decodeRecord(mustMarshal(t, []any{135, 2}))
	require.NoError(t, err)

	for _, r := range []record{fromMap, fromArray} {
		angle, err := r.intField(0)
		require.NoError(t, err)
		require.NotNil(t, angle)
		assert.Equal(t, 135, *angle)

		missing, err := r.intField(7)
		require.NoError(t, err)
		assert.Nil(t, missing)
	}
}

func TestDecodeRecord_NullIsAbsent(t *testing.T) {
	r, err := decodeRecord(mustMarshal(t, map[uint64]any{0: -60, 4: nil}))
	require.NoError(t, err)

	battery, err := r.intField(4)
	require.NoError(t, err)
	assert.Nil(t, battery)

	rssi, err := r.intOr(0, 0)
	require.NoError(t, err)
	assert.Equal(t, -60, rssi)
}

func TestDecodeRecord_Rejects(t *testing.T) {
	_, err := decodeRecord(nil)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decodeRecord(mustMarshal(t, "not a record"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decodeRecord([]byte{0xa1, 0x00})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRecord_WrongFieldType(t *testing.T) {
	r, err := decodeRecord(mustMarshal(t, map[uint64]any{0: "ninety"}))
	require.NoError(t, err)

	_, err = r.intField(0)
	assert.ErrorIs(t, err, ErrDecode)

	s, err := r.stringOr(0, "")
	require.NoError(t, err)
	assert.Equal(t, "ninety", s)
}

func TestEncodeRecord_Canonical(t *testing.T) {
	b, err := encodeRecord(map[uint64]any{2: "x", 0: "kitchen", 1: "1"})
	require.NoError(t, err)

	var decoded map[uint64]string
	require.NoError(t, cbor.Unmarshal(b, &decoded))
	assert.Equal(t, map[uint64]string{0: "kitchen", 1: "1", 2: "x"}, decoded)
	// Canonical form orders keys 0, 1, 2.
	assert.Equal(t, byte(0xa3), b[0])
	assert.Equal(t, byte(0x00), b[1])
}
