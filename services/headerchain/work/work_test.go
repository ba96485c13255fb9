package work

import (
	"encoding/hex"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/model"
)

func workHash(t *testing.T, hexStr string) *chainhash.Hash {
	t.Helper()

	b, err := hex.DecodeString(hexStr)
	require.NoError(t, err)

	h, err := chainhash.NewHash(b)
	require.NoError(t, err)

	return h
}

func TestCalculateWork(t *testing.T) {
	tests := []struct {
		name     string
		prevWork string
		nBits    string
		expected string
	}{
		{
			name:     "genesis, zero previous work",
			prevWork: "0000000000000000000000000000000000000000000000000000000000000000",
			nBits:    "1d00ffff",
			expected: "0100010001000000000000000000000000000000000000000000000000000000",
		},
		{
			name:     "second block at same difficulty",
			prevWork: "0100010001000000000000000000000000000000000000000000000000000000",
			nBits:    "1d00ffff",
			expected: "0200020002000000000000000000000000000000000000000000000000000000",
		},
		{
			name:     "higher difficulty adds more work",
			prevWork: "0000000000000000000000000000000000000000000000000001000000000000",
			nBits:    "1a05db8b",
			expected: "9c1c383638b42b00000000000000000000000000000000000001000000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nBit, err := model.NewNBitFromString(tt.nBits)
			require.NoError(t, err)

			newWork, err := CalculateWork(workHash(t, tt.prevWork), *nBit)
			require.NoError(t, err)

			assert.Equal(t, workHash(t, tt.expected).String(), newWork.String())
		})
	}
}

func TestCalculateWorkAccumulates(t *testing.T) {
	prevWork := &chainhash.Hash{}
	nBit, err := model.NewNBitFromString("1d00ffff")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		newWork, err := CalculateWork(prevWork, *nBit)
		require.NoError(t, err)

		assert.Equal(t, 1, Compare(newWork, prevWork), "block %d: cumulative work must increase", i)

		prevWork = newWork
	}
}

func TestCompare(t *testing.T) {
	low := workHash(t, "0100010001000000000000000000000000000000000000000000000000000000")
	high := workHash(t, "0200020002000000000000000000000000000000000000000000000000000000")

	assert.Equal(t, -1, Compare(low, high))
	assert.Equal(t, 1, Compare(high, low))
	assert.Equal(t, 0, Compare(low, low))
}
