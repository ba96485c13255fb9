package netsync

import (
	"github.com/bsv-blockchain/go-wire"

	"github.com/samrock5000/nakamoto-cash/model"
)

// ChainEventSink receives chain notifications from the sync manager. These
// are the only notifications wallet and application code get from the core.
//
// Callbacks run on the sync manager's handler goroutine: reorg events are
// always delivered as a contiguous rollback followed by a contiguous
// application, never a partial view, and no two callbacks run concurrently.
type ChainEventSink interface {
	// OnTipChanged fires at most once per processed header batch, carrying
	// the tip before the batch and the tip after it. A batch of n extending
	// headers produces one event, not n.
	OnTipChanged(oldTip, newTip *model.BlockHeader, newHeight uint32)

	// OnReorg fires when the best chain switches branches. Disconnected
	// headers are ordered by descending height, connected by ascending.
	OnReorg(disconnected, connected []*model.BlockHeader)

	// OnBlockConnected fires when a block body for an active-chain header
	// has been downloaded, in ascending height order.
	OnBlockConnected(header *model.BlockHeader, block *wire.MsgBlock)
}

// NoopEventSink discards all events. Useful as a default and in tests.
type NoopEventSink struct{}

func (NoopEventSink) OnTipChanged(_, _ *model.BlockHeader, _ uint32) {}

func (NoopEventSink) OnReorg(_, _ []*model.BlockHeader) {}

func (NoopEventSink) OnBlockConnected(_ *model.BlockHeader, _ *wire.MsgBlock) {}

var _ ChainEventSink = NoopEventSink{}

// SyncPeer is the view of a peer session the sync manager needs. It is
// satisfied by *peer.Peer; tests substitute lightweight fakes.
type SyncPeer interface {
	ID() uint64
	String() string
	IsReady() bool
	StartingHeight() int32
	QueueMessage(msg wire.Message, doneChan chan<- struct{})
	Penalize(persistent, transient uint32, reason string) bool
	Disconnect()
}
