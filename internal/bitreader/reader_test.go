package bitreader_test

import (
	"math"
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadU32BE(t *testing.T) {
	r := bitreader.FromBytes([]byte{0x00, 0x00, 0x01, 0x00, 0xFF})
	v, ok := r.ReadU32BE(0)
	require.True(t, ok)
	assert.Equal(t, uint32(256), v)
}

func TestReadOutOfBoundsReturnsZeroFalse(t *testing.T) {
	r := bitreader.FromBytes([]byte{0x01, 0x02})
	v, ok := r.ReadU32BE(0)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), v)
}

func TestReadU64BE(t *testing.T) {
	b := []byte{0, 0, 0, 0, 0, 0, 0, 42}
	r := bitreader.FromBytes(b)
	v, ok := r.ReadU64BE(0)
	require.True(t, ok)
	assert.Equal(t, uint64(42), v)
}

func TestSignedReads(t *testing.T) {
	r := bitreader.FromBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	v32, ok := r.ReadI32BE(0)
	require.True(t, ok)
	assert.Equal(t, int32(-1), v32)

	v16, ok := r.ReadI16BE(0)
	require.True(t, ok)
	assert.Equal(t, int16(-1), v16)
}

func TestInBoundsRejectsOverflow(t *testing.T) {
	r := bitreader.FromBytes(make([]byte, 10))
	assert.False(t, r.InBounds(5, -1))
	assert.False(t, r.InBounds(-1, 5))
	assert.True(t, r.InBounds(0, 10))
	assert.False(t, r.InBounds(0, 11))
	assert.False(t, r.InBounds(1, math.MaxInt64))
}

func TestSliceNilWhenOutOfRange(t *testing.T) {
	r := bitreader.FromBytes([]byte{1, 2, 3})
	assert.Nil(t, r.Slice(0, 4))
	assert.NotNil(t, r.Slice(0, 3))
}
