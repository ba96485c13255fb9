package model

import (
	"encoding/hex"
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2"

	"github.com/samrock5000/nakamoto-cash/errors"
)

// NBit is the compact representation of a block's difficulty target, stored
// little-endian as it appears in the serialized header.
type NBit [4]byte

// NewNBitFromString creates an NBit from a big-endian hex string such as
// "1d00ffff".
func NewNBitFromString(s string) (*NBit, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("invalid nBits hex string %q", s, err)
	}

	return NewNBitFromSlice(bt.ReverseBytes(b))
}

// NewNBitFromSlice creates an NBit from a little-endian 4-byte slice.
func NewNBitFromSlice(b []byte) (*NBit, error) {
	if len(b) != 4 {
		return nil, errors.NewInvalidArgumentError("nBits must be 4 bytes, got %d", len(b))
	}

	var nb NBit

	copy(nb[:], b)

	return &nb, nil
}

// NewNBitFromUint32 creates an NBit from the native uint32 form used by the
// wire protocol.
func NewNBitFromUint32(v uint32) NBit {
	var nb NBit

	nb[0] = byte(v)
	nb[1] = byte(v >> 8)
	nb[2] = byte(v >> 16)
	nb[3] = byte(v >> 24)

	return nb
}

// Uint32 returns the native uint32 form used by the wire protocol.
func (nb NBit) Uint32() uint32 {
	return uint32(nb[0]) | uint32(nb[1])<<8 | uint32(nb[2])<<16 | uint32(nb[3])<<24
}

// String returns the big-endian hex form, e.g. "1d00ffff".
func (nb NBit) String() string {
	return hex.EncodeToString(bt.ReverseBytes(nb[:]))
}

// CloneBytes returns a copy of the little-endian bytes.
func (nb NBit) CloneBytes() []byte {
	b := make([]byte, 4)
	copy(b, nb[:])

	return b
}

// CalculateTarget expands the compact form into the full 256-bit target.
func (nb NBit) CalculateTarget() *big.Int {
	v := nb.Uint32()
	exponent := v >> 24
	mantissa := v & 0x007fffff

	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		return big.NewInt(int64(mantissa))
	}

	target := big.NewInt(int64(mantissa))
	target.Lsh(target, uint(8*(exponent-3)))

	return target
}
