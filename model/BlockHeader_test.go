package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mainnet block 1.
const block1HeaderHex = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d619000" +
	"0000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e36299"

func TestNewBlockHeaderFromString(t *testing.T) {
	bh, err := NewBlockHeaderFromString(block1HeaderHex)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), bh.Version)
	assert.Equal(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", bh.HashPrevBlock.String())
	assert.Equal(t, "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098", bh.HashMerkleRoot.String())
	assert.Equal(t, uint32(1231469665), bh.Timestamp)
	assert.Equal(t, "1d00ffff", bh.Bits.String())
	assert.Equal(t, uint32(2573394689), bh.Nonce)

	assert.Equal(t, "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048", bh.Hash().String())
}

func TestNewBlockHeaderFromBytesWrongLength(t *testing.T) {
	_, err := NewBlockHeaderFromBytes(make([]byte, 79))
	require.Error(t, err)

	_, err = NewBlockHeaderFromBytes(make([]byte, 81))
	require.Error(t, err)
}

func TestBlockHeaderBytesRoundTrip(t *testing.T) {
	bh, err := NewBlockHeaderFromString(block1HeaderHex)
	require.NoError(t, err)

	bh2, err := NewBlockHeaderFromBytes(bh.Bytes())
	require.NoError(t, err)

	assert.Equal(t, bh, bh2)
}

func TestBlockHeaderValid(t *testing.T) {
	bh, err := NewBlockHeaderFromString(block1HeaderHex)
	require.NoError(t, err)

	assert.True(t, bh.Valid())

	// Flip the nonce and the proof of work no longer holds.
	bh.Nonce++
	assert.False(t, bh.Valid())
}

func TestBlockHeaderWireRoundTrip(t *testing.T) {
	bh, err := NewBlockHeaderFromString(block1HeaderHex)
	require.NoError(t, err)

	wh := bh.ToWire()
	bh2 := NewBlockHeaderFromWire(wh)

	assert.Equal(t, bh.Hash(), bh2.Hash())
	assert.Equal(t, bh.Bytes(), bh2.Bytes())
}
