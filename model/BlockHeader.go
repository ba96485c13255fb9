package model

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/libsv/go-bk/crypto"

	"github.com/samrock5000/nakamoto-cash/errors"
)

// BlockHeaderSize is the length of a serialized block header in bytes.
const BlockHeaderSize = 80

type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version uint32

	// Hash of the previous block header in the blockchain.
	HashPrevBlock *chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	HashMerkleRoot *chainhash.Hash

	// Time the block was created in unix time.
	Timestamp uint32

	// Difficulty target for the block.
	Bits NBit

	// Nonce used to generate the block.
	Nonce uint32
}

func NewBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	if len(headerBytes) != BlockHeaderSize {
		return nil, errors.NewInvalidArgumentError("block header should be %d bytes long, got %d", BlockHeaderSize, len(headerBytes))
	}

	hashPrevBlock, err := chainhash.NewHash(headerBytes[4:36])
	if err != nil {
		return nil, errors.NewProcessingError("error creating previous block hash from bytes", err)
	}

	hashMerkleRoot, err := chainhash.NewHash(headerBytes[36:68])
	if err != nil {
		return nil, errors.NewProcessingError("error creating merkle root hash from bytes", err)
	}

	bits, err := NewNBitFromSlice(headerBytes[72:76])
	if err != nil {
		return nil, err
	}

	return &BlockHeader{
		Version:        binary.LittleEndian.Uint32(headerBytes[:4]),
		HashPrevBlock:  hashPrevBlock,
		HashMerkleRoot: hashMerkleRoot,
		Timestamp:      binary.LittleEndian.Uint32(headerBytes[68:72]),
		Bits:           *bits,
		Nonce:          binary.LittleEndian.Uint32(headerBytes[76:]),
	}, nil
}

func NewBlockHeaderFromString(headerHex string) (*BlockHeader, error) {
	headerBytes, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("error decoding hex string to bytes", err)
	}

	return NewBlockHeaderFromBytes(headerBytes)
}

// NewBlockHeaderFromWire converts a wire protocol header into the internal
// representation.
func NewBlockHeaderFromWire(wh *wire.BlockHeader) *BlockHeader {
	prev := wh.PrevBlock
	merkle := wh.MerkleRoot

	return &BlockHeader{
		Version:        uint32(wh.Version),
		HashPrevBlock:  &prev,
		HashMerkleRoot: &merkle,
		Timestamp:      uint32(wh.Timestamp.Unix()),
		Bits:           NewNBitFromUint32(wh.Bits),
		Nonce:          wh.Nonce,
	}
}

// ToWire converts the header back into its wire protocol form.
func (bh *BlockHeader) ToWire() *wire.BlockHeader {
	return &wire.BlockHeader{
		Version:    int32(bh.Version),
		PrevBlock:  *bh.HashPrevBlock,
		MerkleRoot: *bh.HashMerkleRoot,
		Timestamp:  time.Unix(int64(bh.Timestamp), 0),
		Bits:       bh.Bits.Uint32(),
		Nonce:      bh.Nonce,
	}
}

func (bh *BlockHeader) Hash() *chainhash.Hash {
	hash := chainhash.DoubleHashH(bh.Bytes())
	return &hash
}

// Valid reports whether the header's hash satisfies its own declared
// difficulty target.  It says nothing about whether that target is the
// correct one for the header's height.
func (bh *BlockHeader) Valid() bool {
	target := bh.Bits.CalculateTarget()

	digest := bt.ReverseBytes(crypto.Sha256d(bh.Bytes()))

	bn := new(big.Int).SetBytes(digest)

	return bn.Cmp(target) < 0
}

func (bh *BlockHeader) Bytes() []byte {
	blockHeaderBytes := make([]byte, 0, BlockHeaderSize)

	b4 := make([]byte, 4)

	binary.LittleEndian.PutUint32(b4, bh.Version)
	blockHeaderBytes = append(blockHeaderBytes, b4...)
	blockHeaderBytes = append(blockHeaderBytes, bh.HashPrevBlock.CloneBytes()...)
	blockHeaderBytes = append(blockHeaderBytes, bh.HashMerkleRoot.CloneBytes()...)
	binary.LittleEndian.PutUint32(b4, bh.Timestamp)
	blockHeaderBytes = append(blockHeaderBytes, b4...)
	blockHeaderBytes = append(blockHeaderBytes, bh.Bits[:]...)
	binary.LittleEndian.PutUint32(b4, bh.Nonce)
	blockHeaderBytes = append(blockHeaderBytes, b4...)

	return blockHeaderBytes
}

func (bh *BlockHeader) String() string {
	return bh.Hash().String()
}
