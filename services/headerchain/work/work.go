// Package work implements the proof-of-work accounting used by the header
// index to rank competing chains.
//
// The work value of a single header is the expected number of hash operations
// needed to find a block at its difficulty target. Cumulative work is the sum
// of those values along the chain back to genesis, and the chain with the
// most cumulative work wins fork choice.
package work

import (
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/samrock5000/nakamoto-cash/model"
)

// CalculateWork returns the cumulative work after extending prevWork by one
// header at the given difficulty target.
//
// Work done is proportional to 1/difficulty:
//
//	work = 2^256 / target
//	cumulative_work = previous_work + work
//
// The result is stored little-endian in a chainhash.Hash, matching the byte
// order the rest of the codebase uses for hashes.
func CalculateWork(prevWork *chainhash.Hash, nBits model.NBit) (*chainhash.Hash, error) {
	target := nBits.CalculateTarget()

	work := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 256), target)

	newWork := new(big.Int).Add(new(big.Int).SetBytes(bt.ReverseBytes(prevWork.CloneBytes())), work)

	b := bt.ReverseBytes(newWork.Bytes())
	hash := &chainhash.Hash{}
	copy(hash[:], b)

	return hash, nil
}

// Compare orders two cumulative work values. It returns -1 if a < b, 0 if
// equal and +1 if a > b.
func Compare(a, b *chainhash.Hash) int {
	ai := new(big.Int).SetBytes(bt.ReverseBytes(a.CloneBytes()))
	bi := new(big.Int).SetBytes(bt.ReverseBytes(b.CloneBytes()))

	return ai.Cmp(bi)
}
