package ber_test

import (
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/ber"
	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeShortForm(t *testing.T) {
	r := bitreader.FromBytes([]byte{0x10})
	l, err := ber.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), l.Value)
	assert.Equal(t, 1, l.Encoded)
}

func TestDecodeLongForm(t *testing.T) {
	// 0x82 = long form, N=2, followed by 0x01 0x00 = 256.
	r := bitreader.FromBytes([]byte{0x82, 0x01, 0x00})
	l, err := ber.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), l.Value)
	assert.Equal(t, 3, l.Encoded)
}

func TestDecodeRejectsZeroLengthCount(t *testing.T) {
	r := bitreader.FromBytes([]byte{0x80})
	_, err := ber.Decode(r, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizeLengthCount(t *testing.T) {
	r := bitreader.FromBytes([]byte{0x89, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	_, err := ber.Decode(r, 0)
	assert.Error(t, err)
}

func TestDecodeMaxLongForm(t *testing.T) {
	b := append([]byte{0x88}, []byte{0, 0, 0, 0, 0, 0, 0, 7}...)
	r := bitreader.FromBytes(b)
	l, err := ber.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), l.Value)
	assert.Equal(t, 9, l.Encoded)
}

func TestDecodeOutOfBounds(t *testing.T) {
	r := bitreader.FromBytes([]byte{})
	_, err := ber.Decode(r, 0)
	assert.Error(t, err)
}
