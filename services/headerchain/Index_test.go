package headerchain

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/model"
	"github.com/samrock5000/nakamoto-cash/services/headerchain/work"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// mineHeader produces a header extending prev that satisfies the regression
// network difficulty target. At that target roughly every second nonce
// works, so this is cheap enough for tests.
func mineHeader(t *testing.T, prev *chainhash.Hash, timestamp uint32) *model.BlockHeader {
	t.Helper()

	merkle, err := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	require.NoError(t, err)

	bits, err := model.NewNBitFromString("207fffff")
	require.NoError(t, err)

	header := &model.BlockHeader{
		Version:        1,
		HashPrevBlock:  prev,
		HashMerkleRoot: merkle,
		Timestamp:      timestamp,
		Bits:           *bits,
	}

	for !header.Valid() {
		header.Nonce++
	}

	return header
}

func newTestIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()

	idx, err := NewIndex(ulogger.TestLogger{}, &chaincfg.RegressionNetParams, opts...)
	require.NoError(t, err)

	return idx
}

// extendChain mines and accepts n headers on top of prev, returning the
// accepted entries in ascending height order. Branches are distinguished by
// their timestamp base.
func extendChain(t *testing.T, idx *Index, prev *chainhash.Hash, n int, timeBase uint32) []*Entry {
	t.Helper()

	entries := make([]*Entry, 0, n)

	for i := 0; i < n; i++ {
		header := mineHeader(t, prev, timeBase+uint32(i))

		outcome, err := idx.Accept(header)
		require.NoError(t, err)

		entries = append(entries, outcome.Entry)
		prev = header.Hash()
	}

	return entries
}

func TestIndexGenesis(t *testing.T) {
	idx := newTestIndex(t)

	tip := idx.Tip()
	assert.Equal(t, uint32(0), tip.Height)
	assert.Equal(t, StatusActive, tip.Status)
	assert.True(t, tip.Hash.IsEqual(chaincfg.RegressionNetParams.GenesisHash))
}

func TestIndexAcceptLinearChain(t *testing.T) {
	idx := newTestIndex(t)

	prev := &idx.Tip().Hash
	tipChanges := 0

	for i := 0; i < 10; i++ {
		header := mineHeader(t, prev, 1296688602+uint32(i))

		outcome, err := idx.Accept(header)
		require.NoError(t, err)

		require.True(t, outcome.TipChanged)
		assert.Empty(t, outcome.Disconnected)
		require.Len(t, outcome.Connected, 1)
		assert.Equal(t, outcome.Entry, outcome.Connected[0])

		tipChanges++
		prev = header.Hash()
	}

	assert.Equal(t, 10, tipChanges)
	assert.Equal(t, uint32(10), idx.Height())
	assert.True(t, idx.Tip().Hash.IsEqual(prev))
}

func TestIndexRejectDuplicate(t *testing.T) {
	idx := newTestIndex(t)

	header := mineHeader(t, &idx.Tip().Hash, 1296688602)

	_, err := idx.Accept(header)
	require.NoError(t, err)

	tipBefore := idx.Tip()
	workBefore := tipBefore.ChainWork

	_, err = idx.Accept(header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHeaderDuplicate))

	assert.Equal(t, tipBefore, idx.Tip())
	assert.Equal(t, 0, work.Compare(workBefore, idx.Tip().ChainWork))
}

func TestIndexRejectUnknownParent(t *testing.T) {
	idx := newTestIndex(t)

	unknown, err := chainhash.NewHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	require.NoError(t, err)

	// Valid proof of work does not rescue an orphan.
	header := mineHeader(t, unknown, 1296688602)

	_, err = idx.Accept(header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHeaderUnknownParent))
	assert.False(t, idx.HaveHeader(header.Hash()))
}

func TestIndexRejectInsufficientWork(t *testing.T) {
	idx := newTestIndex(t)

	header := mineHeader(t, &idx.Tip().Hash, 1296688602)

	// Claim mainnet difficulty, which this nonce has essentially no chance
	// of satisfying.
	bits, err := model.NewNBitFromString("1d00ffff")
	require.NoError(t, err)
	header.Bits = *bits

	_, err = idx.Accept(header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHeaderInsufficientWork))
}

func TestIndexRejectTimestampTooFarFuture(t *testing.T) {
	now := time.Unix(1296688602, 0)

	idx := newTestIndex(t, WithTimeSource(func() time.Time { return now }))

	header := mineHeader(t, &idx.Tip().Hash, uint32(now.Add(maxFutureBlockTime).Unix())+1)

	_, err := idx.Accept(header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHeaderTimeTooNew))

	// Just inside the window is fine.
	header = mineHeader(t, &idx.Tip().Hash, uint32(now.Add(maxFutureBlockTime).Unix())-1)

	_, err = idx.Accept(header)
	require.NoError(t, err)
}

func TestIndexReorg(t *testing.T) {
	idx := newTestIndex(t)

	// Chain A: genesis -> A1..A5.
	chainA := extendChain(t, idx, &idx.Tip().Hash, 5, 1296688602)
	require.True(t, idx.Tip().Hash.IsEqual(&chainA[4].Hash))

	// Chain B branches at A2 and grows to height 6.
	chainB := extendChain(t, idx, &chainA[1].Hash, 3, 1296689602)

	// B5 ties A5 on cumulative work, the first-seen branch keeps the tip.
	assert.True(t, idx.Tip().Hash.IsEqual(&chainA[4].Hash))
	assert.Equal(t, StatusValidFork, chainB[2].Status)

	// B6 puts chain B strictly ahead, triggering exactly one reorg.
	header := mineHeader(t, &chainB[2].Hash, 1296689700)

	outcome, err := idx.Accept(header)
	require.NoError(t, err)

	require.True(t, outcome.TipChanged)
	assert.True(t, outcome.OldTip.Hash.IsEqual(&chainA[4].Hash))
	assert.True(t, outcome.NewTip.Hash.IsEqual(header.Hash()))

	// Disconnected is A5..A3 in descending height order.
	require.Len(t, outcome.Disconnected, 3)
	assert.Equal(t, chainA[4], outcome.Disconnected[0])
	assert.Equal(t, chainA[3], outcome.Disconnected[1])
	assert.Equal(t, chainA[2], outcome.Disconnected[2])

	// Connected is B3..B6 in ascending height order.
	require.Len(t, outcome.Connected, 4)
	assert.Equal(t, chainB[0], outcome.Connected[0])
	assert.Equal(t, chainB[1], outcome.Connected[1])
	assert.Equal(t, chainB[2], outcome.Connected[2])
	assert.True(t, outcome.Connected[3].Hash.IsEqual(header.Hash()))

	assert.Equal(t, StatusValidFork, chainA[4].Status)
	assert.Equal(t, StatusActive, idx.Tip().Status)
	assert.Equal(t, uint32(6), idx.Height())
}

func TestIndexForkChoiceInvariant(t *testing.T) {
	idx := newTestIndex(t)

	chainA := extendChain(t, idx, &idx.Tip().Hash, 6, 1296688602)
	extendChain(t, idx, &chainA[2].Hash, 5, 1296689602)
	extendChain(t, idx, &chainA[0].Hash, 3, 1296690602)

	// The active tip must dominate every entry in the index.
	tip := idx.Tip()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, entry := range idx.entries {
		assert.GreaterOrEqual(t, work.Compare(tip.ChainWork, entry.ChainWork), 0,
			"tip work must be >= entry %s at height %d", entry.Hash, entry.Height)
	}
}

func TestIndexMaxReorgDepth(t *testing.T) {
	idx := newTestIndex(t, WithMaxReorgDepth(2))

	chainA := extendChain(t, idx, &idx.Tip().Hash, 5, 1296688602)

	// A competing branch from genesis would disconnect all five entries.
	prev := chaincfg.RegressionNetParams.GenesisHash
	var lastHeader *model.BlockHeader

	for i := 0; i < 5; i++ {
		lastHeader = mineHeader(t, prev, 1296689602+uint32(i))

		_, err := idx.Accept(lastHeader)
		require.NoError(t, err)

		prev = lastHeader.Hash()
	}

	// The sixth header would win fork choice but needs a depth-5 rollback.
	winning := mineHeader(t, prev, 1296689700)

	_, err := idx.Accept(winning)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExcessiveReorg))

	// Chain state is unchanged and the refused entry is kept as a fork.
	assert.True(t, idx.Tip().Hash.IsEqual(&chainA[4].Hash))
	assert.True(t, idx.HaveHeader(winning.Hash()))

	entry, ok := idx.GetEntry(winning.Hash())
	require.True(t, ok)
	assert.Equal(t, StatusValidFork, entry.Status)
}

func TestIndexLocator(t *testing.T) {
	idx := newTestIndex(t)

	entries := extendChain(t, idx, &idx.Tip().Hash, 40, 1296688602)

	locator := idx.Locator()

	// Step one for the last ten, then doubling, terminating at genesis.
	expectedHeights := []uint32{40, 39, 38, 37, 36, 35, 34, 33, 32, 31, 29, 25, 17, 1, 0}
	require.Len(t, locator, len(expectedHeights))

	for i, height := range expectedHeights {
		if height == 0 {
			assert.True(t, locator[i].IsEqual(chaincfg.RegressionNetParams.GenesisHash))
			continue
		}

		assert.True(t, locator[i].IsEqual(&entries[height-1].Hash), "locator[%d] should be height %d", i, height)
	}
}

func TestIndexLocateHeaders(t *testing.T) {
	idx := newTestIndex(t)

	entries := extendChain(t, idx, &idx.Tip().Hash, 20, 1296688602)

	t.Run("from known hash", func(t *testing.T) {
		headers := idx.LocateHeaders([]*chainhash.Hash{&entries[9].Hash}, nil, 2000)
		require.Len(t, headers, 10)
		assert.True(t, headers[0].Hash().IsEqual(&entries[10].Hash))
		assert.True(t, headers[9].Hash().IsEqual(&entries[19].Hash))
	})

	t.Run("unknown locator falls back to genesis", func(t *testing.T) {
		unknown, err := chainhash.NewHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
		require.NoError(t, err)

		headers := idx.LocateHeaders([]*chainhash.Hash{unknown}, nil, 2000)
		require.Len(t, headers, 20)
		assert.True(t, headers[0].Hash().IsEqual(&entries[0].Hash))
	})

	t.Run("respects max", func(t *testing.T) {
		headers := idx.LocateHeaders([]*chainhash.Hash{chaincfg.RegressionNetParams.GenesisHash}, nil, 5)
		require.Len(t, headers, 5)
	})

	t.Run("stops at stop hash", func(t *testing.T) {
		headers := idx.LocateHeaders([]*chainhash.Hash{chaincfg.RegressionNetParams.GenesisHash}, &entries[4].Hash, 2000)
		require.Len(t, headers, 5)
		assert.True(t, headers[4].Hash().IsEqual(&entries[4].Hash))
	})
}

func TestIndexCheckpoints(t *testing.T) {
	h1 := mineHeader(t, chaincfg.RegressionNetParams.GenesisHash, 1296688602)
	h2 := mineHeader(t, h1.Hash(), 1296688603)

	params := chaincfg.RegressionNetParams
	params.Checkpoints = []chaincfg.Checkpoint{{Height: 2, Hash: h2.Hash()}}

	idx, err := NewIndex(ulogger.TestLogger{}, &params)
	require.NoError(t, err)

	_, err = idx.Accept(h1)
	require.NoError(t, err)

	t.Run("mismatch at checkpoint height", func(t *testing.T) {
		wrong := mineHeader(t, h1.Hash(), 1296689602)

		_, err := idx.Accept(wrong)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrHeaderInvalid))
		assert.False(t, idx.HaveHeader(wrong.Hash()))
	})

	t.Run("checkpointed header accepted", func(t *testing.T) {
		_, err := idx.Accept(h2)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), idx.Height())
	})

	t.Run("fork below last checkpoint refused", func(t *testing.T) {
		fork := mineHeader(t, chaincfg.RegressionNetParams.GenesisHash, 1296690602)

		_, err := idx.Accept(fork)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrHeaderInvalid))
		assert.Equal(t, uint32(2), idx.Height())
	})

	t.Run("extension past checkpoint accepted", func(t *testing.T) {
		h3 := mineHeader(t, h2.Hash(), 1296688604)

		outcome, err := idx.Accept(h3)
		require.NoError(t, err)
		assert.True(t, outcome.TipChanged)
	})
}

func TestIndexEntryAtHeight(t *testing.T) {
	idx := newTestIndex(t)

	entries := extendChain(t, idx, &idx.Tip().Hash, 5, 1296688602)

	entry, ok := idx.EntryAtHeight(3)
	require.True(t, ok)
	assert.Equal(t, entries[2], entry)

	_, ok = idx.EntryAtHeight(6)
	assert.False(t, ok)
}
