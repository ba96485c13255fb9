// Package headerchain maintains the in-memory forest of block headers and is
// the sole authority over which chain is best.
//
// The index is anchored at a network's genesis header. Every accepted header
// links to an already-known parent, carries a height and cumulative work
// derived once at insertion, and is ranked against the current best tip.
// When a competing branch accumulates strictly more work than the active
// branch, the index reports the reorganization path (entries to disconnect
// and connect) to the caller. The index itself has no network awareness;
// feeding it headers and applying the reported reorgs is the sync manager's
// job.
package headerchain

import (
	"fmt"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/go-utils"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/model"
	"github.com/samrock5000/nakamoto-cash/services/headerchain/work"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// maxFutureBlockTime is how far ahead of local time a header timestamp may
// be before the header is rejected.
const maxFutureBlockTime = 2 * time.Hour

// Status describes an entry's standing in fork choice.
type Status uint8

const (
	// StatusActive marks the current best tip. Exactly one entry holds
	// this status at any time.
	StatusActive Status = iota

	// StatusValidFork marks a valid header that is not the best tip.
	StatusValidFork

	// StatusInvalid marks a header that failed validation.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusValidFork:
		return "valid-fork"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Entry is a single header in the index. Parent is a lookup key into the
// index, never an owning pointer, so the forest needs only "child knows
// parent's key".
type Entry struct {
	Header    *model.BlockHeader
	Hash      chainhash.Hash
	Parent    chainhash.Hash
	Height    uint32
	ChainWork *chainhash.Hash
	Status    Status
}

// String renders the entry for log lines, with the cumulative work in
// big-endian hex.
func (e *Entry) String() string {
	return fmt.Sprintf("%s height=%d work=%s status=%s",
		e.Hash, e.Height, utils.ReverseAndHexEncodeSlice(e.ChainWork[:]), e.Status)
}

// AcceptOutcome reports the result of a successful header acceptance.
type AcceptOutcome struct {
	Entry *Entry

	// TipChanged is true when the acceptance moved the active tip. When
	// set, OldTip and NewTip are populated, Disconnected holds the
	// displaced entries in descending height order and Connected holds the
	// newly active entries in ascending height order. A plain chain
	// extension has an empty Disconnected list and a single-element
	// Connected list.
	TipChanged   bool
	OldTip       *Entry
	NewTip       *Entry
	Disconnected []*Entry
	Connected    []*Entry
}

// Options configure an Index.
type Options struct {
	maxReorgDepth uint32
	timeSource    func() time.Time
}

type Option func(*Options)

// WithMaxReorgDepth sets a policy ceiling on reorg depth. A reorg that
// would disconnect more than depth entries is refused with an excessive
// reorg error and the chain state is left unchanged. Zero means unbounded.
func WithMaxReorgDepth(depth uint32) Option {
	return func(o *Options) {
		o.maxReorgDepth = depth
	}
}

// WithTimeSource overrides the clock used for the future-timestamp check.
func WithTimeSource(now func() time.Time) Option {
	return func(o *Options) {
		o.timeSource = now
	}
}

// Index is the flat hash-keyed header forest. All methods are safe for
// concurrent use, though in practice the sync manager is the only writer.
type Index struct {
	mu sync.RWMutex

	logger ulogger.Logger
	params *chaincfg.Params

	entries map[chainhash.Hash]*Entry
	tip     *Entry
	genesis *Entry

	// activeAtHeight maps each height on the active chain to its entry
	// hash. Maintained on every tip change so locator construction and
	// header serving never walk forks.
	activeAtHeight map[uint32]chainhash.Hash

	// checkpoints pins known-good hashes at fixed heights; lastCheckpoint
	// is the greatest checkpointed height.
	checkpoints    map[uint32]chainhash.Hash
	lastCheckpoint uint32

	maxReorgDepth uint32
	timeSource    func() time.Time
}

// NewIndex creates an index seeded with the network's genesis header.
func NewIndex(logger ulogger.Logger, params *chaincfg.Params, opts ...Option) (*Index, error) {
	options := &Options{
		timeSource: time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	genesisHeader := model.NewBlockHeaderFromWire(&params.GenesisBlock.Header)

	genesisWork, err := work.CalculateWork(&chainhash.Hash{}, genesisHeader.Bits)
	if err != nil {
		return nil, errors.NewProcessingError("failed to calculate genesis work", err)
	}

	genesis := &Entry{
		Header:    genesisHeader,
		Hash:      *genesisHeader.Hash(),
		Height:    0,
		ChainWork: genesisWork,
		Status:    StatusActive,
	}

	if !genesis.Hash.IsEqual(params.GenesisHash) {
		return nil, errors.NewConfigurationError("genesis header hash %s does not match expected %s for network %s",
			genesis.Hash, params.GenesisHash, params.Name)
	}

	checkpoints := make(map[uint32]chainhash.Hash, len(params.Checkpoints))

	var lastCheckpoint uint32

	for _, cp := range params.Checkpoints {
		height := uint32(cp.Height)
		checkpoints[height] = *cp.Hash

		if height > lastCheckpoint {
			lastCheckpoint = height
		}
	}

	idx := &Index{
		logger:         logger,
		params:         params,
		entries:        map[chainhash.Hash]*Entry{genesis.Hash: genesis},
		tip:            genesis,
		genesis:        genesis,
		activeAtHeight: map[uint32]chainhash.Hash{0: genesis.Hash},
		checkpoints:    checkpoints,
		lastCheckpoint: lastCheckpoint,
		maxReorgDepth:  options.maxReorgDepth,
		timeSource:     options.timeSource,
	}

	return idx, nil
}

// Accept validates a header against its declared difficulty target, the
// local clock and the network checkpoints, links it to its parent and
// re-runs fork choice.
//
// Orphan headers are rejected, not buffered. Re-requesting headers in parent
// order is the sync manager's job.
func (idx *Index) Accept(header *model.BlockHeader) (*AcceptOutcome, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	hash := header.Hash()

	if _, ok := idx.entries[*hash]; ok {
		return nil, errors.NewHeaderDuplicateError("header %s already known", hash)
	}

	parent, ok := idx.entries[*header.HashPrevBlock]
	if !ok {
		return nil, errors.NewHeaderUnknownParentError("header %s references unknown parent %s", hash, header.HashPrevBlock)
	}

	if !header.Valid() {
		return nil, errors.NewHeaderInsufficientWorkError("header %s hash does not satisfy target %s", hash, header.Bits.String())
	}

	maxTime := idx.timeSource().Add(maxFutureBlockTime)
	if int64(header.Timestamp) > maxTime.Unix() {
		return nil, errors.NewHeaderTimeTooNewError("header %s timestamp %d is more than %s in the future", hash, header.Timestamp, maxFutureBlockTime)
	}

	height := parent.Height + 1

	// Checkpoints pin the chain: a header landing on a checkpointed height
	// must carry the checkpointed hash, and once the active chain has
	// reached the last checkpoint no fork may branch below it.
	if want, ok := idx.checkpoints[height]; ok && !hash.IsEqual(&want) {
		return nil, errors.NewHeaderInvalidError("header %s at height %d conflicts with checkpoint %s", hash, height, want)
	}

	if idx.lastCheckpoint > 0 && height <= idx.lastCheckpoint && idx.tip.Height >= idx.lastCheckpoint {
		return nil, errors.NewHeaderInvalidError("header %s at height %d forks below last checkpoint %d", hash, height, idx.lastCheckpoint)
	}

	chainWork, err := work.CalculateWork(parent.ChainWork, header.Bits)
	if err != nil {
		return nil, errors.NewProcessingError("failed to calculate chain work for header %s", hash, err)
	}

	entry := &Entry{
		Header:    header,
		Hash:      *hash,
		Parent:    parent.Hash,
		Height:    height,
		ChainWork: chainWork,
		Status:    StatusValidFork,
	}

	idx.entries[entry.Hash] = entry

	outcome := &AcceptOutcome{Entry: entry}

	// Strictly greater work displaces the tip; on a tie the first-seen
	// branch stays active.
	if work.Compare(entry.ChainWork, idx.tip.ChainWork) <= 0 {
		idx.logger.Debugf("[HeaderIndex] accepted %s as valid fork", entry)
		return outcome, nil
	}

	disconnected, connected := idx.reorgPath(idx.tip, entry)

	if idx.maxReorgDepth > 0 && uint32(len(disconnected)) > idx.maxReorgDepth {
		// The entry stays in the index as a valid fork. The chain state
		// is left unchanged rather than rolled back deeper than policy
		// allows.
		return nil, errors.NewExcessiveReorgError("reorg to %s would disconnect %d entries, policy ceiling is %d",
			entry.Hash, len(disconnected), idx.maxReorgDepth)
	}

	outcome.TipChanged = true
	outcome.OldTip = idx.tip
	outcome.NewTip = entry
	outcome.Disconnected = disconnected
	outcome.Connected = connected

	idx.tip.Status = StatusValidFork
	entry.Status = StatusActive
	idx.tip = entry

	for _, e := range disconnected {
		delete(idx.activeAtHeight, e.Height)
	}
	for _, e := range connected {
		idx.activeAtHeight[e.Height] = e.Hash
	}

	if len(disconnected) > 0 {
		idx.logger.Infof("[HeaderIndex] reorg to %s at height %d, disconnected %d, connected %d",
			entry.Hash, entry.Height, len(disconnected), len(connected))
	} else {
		idx.logger.Debugf("[HeaderIndex] new tip %s", entry)
	}

	return outcome, nil
}

// reorgPath computes the entries displaced and activated when the tip moves
// from oldTip to newTip. Disconnected is returned tip-first (descending
// height), connected in ascending height order, both exclusive of the last
// common ancestor.
func (idx *Index) reorgPath(oldTip, newTip *Entry) (disconnected, connected []*Entry) {
	a, b := oldTip, newTip

	for b.Height > a.Height {
		connected = append(connected, b)
		b = idx.entries[b.Parent]
	}

	for a.Height > b.Height {
		disconnected = append(disconnected, a)
		a = idx.entries[a.Parent]
	}

	for a.Hash != b.Hash {
		disconnected = append(disconnected, a)
		connected = append(connected, b)
		a = idx.entries[a.Parent]
		b = idx.entries[b.Parent]
	}

	// connected was collected tip-first, reverse into ascending order.
	for i, j := 0, len(connected)-1; i < j; i, j = i+1, j-1 {
		connected[i], connected[j] = connected[j], connected[i]
	}

	return disconnected, connected
}

// Tip returns the current best entry.
func (idx *Index) Tip() *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.tip
}

// Height returns the height of the current best entry.
func (idx *Index) Height() uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.tip.Height
}

// GetEntry looks up an entry by header hash.
func (idx *Index) GetEntry(hash *chainhash.Hash) (*Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entry, ok := idx.entries[*hash]

	return entry, ok
}

// HaveHeader reports whether the header hash is known, on any branch.
func (idx *Index) HaveHeader(hash *chainhash.Hash) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.entries[*hash]

	return ok
}

// EntryAtHeight returns the active-chain entry at the given height.
func (idx *Index) EntryAtHeight(height uint32) (*Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hash, ok := idx.activeAtHeight[height]
	if !ok {
		return nil, false
	}

	return idx.entries[hash], true
}

// Locator builds a sparse block locator for the active chain: the last ten
// tip hashes at step one, then exponentially wider steps, always ending at
// genesis. Peers answer a getheaders carrying this locator with headers
// descending from the first hash they recognize.
func (idx *Index) Locator() []*chainhash.Hash {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	locator := make([]*chainhash.Hash, 0, 32)

	height := int64(idx.tip.Height)
	step := int64(1)

	for height > 0 {
		hash := idx.activeAtHeight[uint32(height)]
		locator = append(locator, &hash)

		if len(locator) >= 10 {
			step *= 2
		}

		height -= step
	}

	locator = append(locator, &idx.genesis.Hash)

	return locator
}

// LocateHeaders serves a peer's getheaders request: it finds the first
// locator hash on the active chain (falling back to genesis) and returns up
// to maxHeaders of its active-chain descendants, stopping early at stopHash.
func (idx *Index) LocateHeaders(locator []*chainhash.Hash, stopHash *chainhash.Hash, maxHeaders int) []*model.BlockHeader {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := idx.genesis
	for _, hash := range locator {
		entry, ok := idx.entries[*hash]
		if !ok {
			continue
		}

		if idx.activeAtHeight[entry.Height] == entry.Hash {
			start = entry
			break
		}
	}

	headers := make([]*model.BlockHeader, 0, maxHeaders)

	for height := start.Height + 1; height <= idx.tip.Height && len(headers) < maxHeaders; height++ {
		entry := idx.entries[idx.activeAtHeight[height]]
		headers = append(headers, entry.Header)

		if stopHash != nil && entry.Hash.IsEqual(stopHash) {
			break
		}
	}

	return headers
}
