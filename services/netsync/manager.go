// Package netsync drives header and block acquisition across all ready
// peers. A single handler goroutine owns the header index and all request
// bookkeeping, so fork choice recomputation is serialized by construction
// and no other component mutates chain state.
package netsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/looplab/fsm"

	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/model"
	"github.com/samrock5000/nakamoto-cash/services/headerchain"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// Misbehavior penalties applied by the sync manager. The ban threshold is
// configured on the peer session.
const (
	penaltyUnsolicited    = 20
	penaltyBadHeader      = 50
	penaltyExcessiveReorg = 100
	penaltyStall          = 25
)

// RequestKind distinguishes the two kinds of outstanding fetches.
type RequestKind uint8

const (
	KindHeaderBatch RequestKind = iota
	KindBlock
)

func (k RequestKind) String() string {
	switch k {
	case KindHeaderBatch:
		return "header-batch"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// requestKey identifies a pending request. Requests are unique per
// (target hash, kind); a second request for the same target before
// resolution is rejected, not duplicated.
type requestKey struct {
	hash chainhash.Hash
	kind RequestKind
}

type pendingRequest struct {
	key      requestKey
	peerID   uint64
	issuedAt time.Time
}

// Messages processed by the handler goroutine.
type (
	newPeerMsg struct {
		peer SyncPeer
	}

	donePeerMsg struct {
		peer SyncPeer
	}

	headersMsg struct {
		headers *wire.MsgHeaders
		peer    SyncPeer
	}

	invMsg struct {
		inv  *wire.MsgInv
		peer SyncPeer
	}

	blockMsg struct {
		block *wire.MsgBlock
		peer  SyncPeer
	}

	getHeadersMsg struct {
		msg  *wire.MsgGetHeaders
		peer SyncPeer
	}

	getDataMsg struct {
		msg  *wire.MsgGetData
		peer SyncPeer
	}

	getStateMsg struct {
		reply chan managerState
	}
)

// managerState is a snapshot of the handler's internal state, used by
// telemetry and tests.
type managerState struct {
	fsmState        string
	syncPeerID      uint64
	peerCount       int
	pendingRequests int
	tipHeight       uint32
	connectedHeight uint32
}

// Config holds the collaborators a SyncManager needs.
type Config struct {
	Logger   ulogger.Logger
	Settings *settings.Settings
	Index    *headerchain.Index
	Sink     ChainEventSink
}

// SyncManager coordinates header and block download. All chain state
// mutations happen on its handler goroutine; the exported Queue methods
// only hand messages over.
type SyncManager struct {
	logger   ulogger.Logger
	settings *settings.Settings
	index    *headerchain.Index
	sink     ChainEventSink

	fsm *fsm.FSM

	msgChan chan interface{}
	wg      sync.WaitGroup
	started int32
	stopped int32
	quit    chan struct{}

	timeSource func() time.Time

	// Everything below is owned by the handler goroutine.
	peers          map[uint64]SyncPeer
	syncPeer       SyncPeer
	pending        map[requestKey]*pendingRequest
	blocksInFlight map[uint64]int
	receivedBlocks map[chainhash.Hash]*wire.MsgBlock

	// connectedHeight is the height up to which block bodies have been
	// delivered to the event sink.
	connectedHeight uint32
}

// New creates a sync manager. Start must be called before any messages are
// queued.
func New(cfg *Config) *SyncManager {
	initPrometheusMetrics()

	sink := cfg.Sink
	if sink == nil {
		sink = NoopEventSink{}
	}

	return &SyncManager{
		logger:         cfg.Logger,
		settings:       cfg.Settings,
		index:          cfg.Index,
		sink:           sink,
		fsm:            newSyncFSM(),
		msgChan:        make(chan interface{}, 256),
		quit:           make(chan struct{}),
		timeSource:     time.Now,
		peers:          make(map[uint64]SyncPeer),
		pending:        make(map[requestKey]*pendingRequest),
		blocksInFlight: make(map[uint64]int),
		receivedBlocks: make(map[chainhash.Hash]*wire.MsgBlock),
	}
}

// Start launches the handler goroutine.
func (sm *SyncManager) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&sm.started, 0, 1) {
		return
	}

	sm.logger.Infof("[SyncManager] starting at height %d", sm.index.Height())

	sm.wg.Add(1)

	go sm.handler(ctx)
}

// Stop shuts the handler down and waits for it to drain.
func (sm *SyncManager) Stop() {
	if !atomic.CompareAndSwapInt32(&sm.stopped, 0, 1) {
		return
	}

	close(sm.quit)
	sm.wg.Wait()
}

// NewPeer informs the manager that a peer completed its handshake.
func (sm *SyncManager) NewPeer(p SyncPeer) {
	sm.enqueue(newPeerMsg{peer: p})
}

// DonePeer informs the manager that a peer disconnected.
func (sm *SyncManager) DonePeer(p SyncPeer) {
	sm.enqueue(donePeerMsg{peer: p})
}

// QueueHeaders hands a headers message to the manager.
func (sm *SyncManager) QueueHeaders(headers *wire.MsgHeaders, p SyncPeer) {
	sm.enqueue(headersMsg{headers: headers, peer: p})
}

// QueueInv hands an inv message to the manager.
func (sm *SyncManager) QueueInv(inv *wire.MsgInv, p SyncPeer) {
	sm.enqueue(invMsg{inv: inv, peer: p})
}

// QueueBlock hands a block message to the manager.
func (sm *SyncManager) QueueBlock(block *wire.MsgBlock, p SyncPeer) {
	sm.enqueue(blockMsg{block: block, peer: p})
}

// QueueGetHeaders hands a peer's getheaders request to the manager.
func (sm *SyncManager) QueueGetHeaders(msg *wire.MsgGetHeaders, p SyncPeer) {
	sm.enqueue(getHeadersMsg{msg: msg, peer: p})
}

// QueueGetData hands a peer's getdata request to the manager.
func (sm *SyncManager) QueueGetData(msg *wire.MsgGetData, p SyncPeer) {
	sm.enqueue(getDataMsg{msg: msg, peer: p})
}

func (sm *SyncManager) enqueue(msg interface{}) {
	select {
	case sm.msgChan <- msg:
	case <-sm.quit:
	}
}

// State returns the current coordinator state name.
func (sm *SyncManager) State() string {
	return sm.snapshot().fsmState
}

// SyncPeerID returns the id of the current sync peer, or zero.
func (sm *SyncManager) SyncPeerID() uint64 {
	return sm.snapshot().syncPeerID
}

// ConnectedHeight returns the height up to which block bodies have been
// delivered.
func (sm *SyncManager) ConnectedHeight() uint32 {
	return sm.snapshot().connectedHeight
}

func (sm *SyncManager) snapshot() managerState {
	reply := make(chan managerState, 1)

	select {
	case sm.msgChan <- getStateMsg{reply: reply}:
	case <-sm.quit:
		return managerState{fsmState: StateIdle}
	}

	select {
	case state := <-reply:
		return state
	case <-sm.quit:
		return managerState{fsmState: StateIdle}
	}
}

// handler is the message pump. It is the sole owner of the header index and
// all request bookkeeping; messages from a single peer arrive in receipt
// order because the peer session delivers them from one goroutine.
func (sm *SyncManager) handler(ctx context.Context) {
	defer sm.wg.Done()

	tickInterval := sm.settings.Sync.TickInterval
	if tickInterval <= 0 {
		tickInterval = time.Second
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

out:
	for {
		select {
		case m := <-sm.msgChan:
			switch msg := m.(type) {
			case newPeerMsg:
				sm.handleNewPeer(ctx, msg.peer)
			case donePeerMsg:
				sm.handleDonePeer(ctx, msg.peer)
			case headersMsg:
				sm.handleHeaders(ctx, msg.peer, msg.headers)
			case invMsg:
				sm.handleInv(ctx, msg.peer, msg.inv)
			case blockMsg:
				sm.handleBlock(ctx, msg.peer, msg.block)
			case getHeadersMsg:
				sm.handleGetHeaders(msg.peer, msg.msg)
			case getDataMsg:
				sm.handleGetData(msg.peer, msg.msg)
			case getStateMsg:
				msg.reply <- sm.stateSnapshotLocked()
			default:
				sm.logger.Warnf("[SyncManager] invalid message type in handler: %T", msg)
			}

		case <-ticker.C:
			sm.handleTick(ctx)

		case <-sm.quit:
			break out

		case <-ctx.Done():
			break out
		}
	}

	sm.logger.Infof("[SyncManager] handler done at height %d", sm.index.Height())
}

func (sm *SyncManager) stateSnapshotLocked() managerState {
	var syncPeerID uint64
	if sm.syncPeer != nil {
		syncPeerID = sm.syncPeer.ID()
	}

	return managerState{
		fsmState:        sm.fsm.Current(),
		syncPeerID:      syncPeerID,
		peerCount:       len(sm.peers),
		pendingRequests: len(sm.pending),
		tipHeight:       sm.index.Height(),
		connectedHeight: sm.connectedHeight,
	}
}

func (sm *SyncManager) handleNewPeer(ctx context.Context, p SyncPeer) {
	if !p.IsReady() {
		sm.logger.Debugf("[SyncManager] ignoring peer %s that is not ready", p)
		return
	}

	sm.peers[p.ID()] = p
	prometheusSyncPeers.Set(float64(len(sm.peers)))

	sm.logger.Infof("[SyncManager] new peer %s at height %d", p, p.StartingHeight())

	if sm.syncPeer == nil {
		sm.startSync(ctx)
	}
}

func (sm *SyncManager) handleDonePeer(ctx context.Context, p SyncPeer) {
	if _, ok := sm.peers[p.ID()]; !ok {
		return
	}

	delete(sm.peers, p.ID())
	delete(sm.blocksInFlight, p.ID())
	prometheusSyncPeers.Set(float64(len(sm.peers)))

	// Cancel the departed peer's requests immediately and requeue their
	// targets.
	requeueBlocks := false

	for key, req := range sm.pending {
		if req.peerID != p.ID() {
			continue
		}

		delete(sm.pending, key)

		if key.kind == KindBlock {
			requeueBlocks = true
		}
	}

	sm.logger.Infof("[SyncManager] peer %s done, %d peers remaining", p, len(sm.peers))

	if sm.syncPeer != nil && sm.syncPeer.ID() == p.ID() {
		sm.syncPeer = nil
		sm.startSync(ctx)
	}

	if requeueBlocks {
		sm.requestBlocks()
	}
}

// startSync selects the ready peer with the greatest advertised height as
// the sync peer and begins header download from it. With no usable peers
// the coordinator falls back to Idle.
func (sm *SyncManager) startSync(ctx context.Context) {
	var best SyncPeer

	for _, p := range sm.peers {
		if !p.IsReady() {
			continue
		}

		if best == nil || p.StartingHeight() > best.StartingHeight() {
			best = p
		}
	}

	if best == nil {
		sm.toIdle(ctx)
		return
	}

	sm.syncPeer = best

	if sm.fsm.Current() != StateHeaderSync {
		if err := sm.fsm.Event(ctx, eventStartHeaderSync); err != nil {
			sm.logger.Warnf("[SyncManager] cannot enter header sync: %v", err)
			return
		}
	}

	sm.logger.Infof("[SyncManager] syncing headers from %s (height %d, local %d)",
		best, best.StartingHeight(), sm.index.Height())

	sm.pushGetHeaders(best)
}

func (sm *SyncManager) toIdle(ctx context.Context) {
	if sm.fsm.Current() == StateIdle {
		return
	}

	if err := sm.fsm.Event(ctx, eventReset); err != nil {
		sm.logger.Warnf("[SyncManager] cannot reset to idle: %v", err)
		return
	}

	sm.logger.Infof("[SyncManager] idle, waiting for peers")
}

// pushGetHeaders issues a locator-based header request to the peer. Header
// batches are one in flight per peer since they are inherently ordered.
func (sm *SyncManager) pushGetHeaders(p SyncPeer) {
	for _, req := range sm.pending {
		if req.key.kind == KindHeaderBatch && req.peerID == p.ID() {
			sm.logger.Debugf("[SyncManager] header batch already in flight for peer %s", p)
			return
		}
	}

	locator := sm.index.Locator()

	key := requestKey{hash: *locator[0], kind: KindHeaderBatch}
	if _, ok := sm.pending[key]; ok {
		sm.logger.Debugf("[SyncManager] header batch for %s already pending", locator[0])
		return
	}

	sm.pending[key] = &pendingRequest{
		key:      key,
		peerID:   p.ID(),
		issuedAt: sm.timeSource(),
	}

	msg := wire.NewMsgGetHeaders()
	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			break
		}
	}

	p.QueueMessage(msg, nil)
}

func (sm *SyncManager) maxHeadersPerBatch() int {
	maxHeaders := sm.settings.Sync.MaxHeadersPerBatch
	if maxHeaders <= 0 || maxHeaders > wire.MaxBlockHeadersPerMsg {
		maxHeaders = wire.MaxBlockHeadersPerMsg
	}

	return maxHeaders
}

func (sm *SyncManager) handleHeaders(ctx context.Context, p SyncPeer, msg *wire.MsgHeaders) {
	if _, ok := sm.peers[p.ID()]; !ok {
		sm.logger.Debugf("[SyncManager] headers from unknown peer %s", p)
		return
	}

	// Resolve this peer's outstanding header batch, if any. Unsolicited
	// header messages are tolerated: peers announce new blocks via
	// headers once we are synced.
	for key, req := range sm.pending {
		if key.kind == KindHeaderBatch && req.peerID == p.ID() {
			delete(sm.pending, key)
			break
		}
	}

	oldTip := sm.index.Tip()

	accepted := 0
	stopped := false

	for _, wh := range msg.Headers {
		header := model.NewBlockHeaderFromWire(wh)

		outcome, err := sm.index.Accept(header)
		if err != nil {
			if sm.handleRejectedHeader(p, header, err) {
				stopped = true
				break
			}

			continue
		}

		accepted++
		prometheusSyncHeadersAccepted.Inc()

		if outcome.TipChanged && len(outcome.Disconnected) > 0 {
			sm.applyReorg(outcome)
		}
	}

	// Tip changes are reported once per batch, not per header: reorgs within
	// it have already been delivered, so the sink sees the rollbacks first
	// and then a single move from the pre-batch tip to the new one.
	if newTip := sm.index.Tip(); newTip.Hash != oldTip.Hash {
		sm.sink.OnTipChanged(oldTip.Header, newTip.Header, newTip.Height)
	}

	prometheusSyncTipHeight.Set(float64(sm.index.Height()))

	if accepted > 0 {
		sm.logger.Debugf("[SyncManager] accepted %d headers from %s, tip now %d",
			accepted, p, sm.index.Height())
	}

	if stopped {
		return
	}

	if len(msg.Headers) >= sm.maxHeadersPerBatch() && p == sm.syncPeer {
		// A full batch means the peer likely has more.
		sm.pushGetHeaders(p)
		return
	}

	// Headers caught up; move on to block bodies.
	if sm.fsm.Current() == StateHeaderSync {
		if err := sm.fsm.Event(ctx, eventHeadersCaughtUp); err != nil {
			sm.logger.Warnf("[SyncManager] cannot enter block sync: %v", err)
		} else {
			sm.logger.Infof("[SyncManager] header sync complete at height %d", sm.index.Height())
		}
	}

	sm.requestBlocks()
	sm.maybeSynced(ctx)
}

// handleRejectedHeader reacts to a header rejection: misbehavior penalizes
// the announcing peer, an unknown parent triggers a locator re-request. It
// returns true when processing of the remaining batch should stop.
func (sm *SyncManager) handleRejectedHeader(p SyncPeer, header *model.BlockHeader, err error) bool {
	switch {
	case errors.Is(err, errors.ErrHeaderDuplicate):
		// Locator overlap; normal.
		prometheusSyncHeadersRejected.WithLabelValues("duplicate").Inc()
		return false

	case errors.Is(err, errors.ErrHeaderUnknownParent):
		// An unknown parent is not misbehavior, the peer may simply be
		// announcing a block we have not caught up to. Recover by asking it
		// for headers from a fresh locator.
		prometheusSyncHeadersRejected.WithLabelValues("unknown-parent").Inc()
		sm.logger.Debugf("[SyncManager] orphan header %s from %s, re-requesting with fresh locator", header.Hash(), p)
		sm.pushGetHeaders(p)

		return true

	case errors.Is(err, errors.ErrExcessiveReorg):
		prometheusSyncHeadersRejected.WithLabelValues("excessive-reorg").Inc()
		sm.logger.Warnf("[SyncManager] refusing excessive reorg announced by %s: %v", p, err)
		p.Penalize(penaltyExcessiveReorg, 0, "excessive reorg")

		return true

	case errors.Is(err, errors.ErrHeaderInsufficientWork),
		errors.Is(err, errors.ErrHeaderTimeTooNew),
		errors.Is(err, errors.ErrHeaderInvalid):
		prometheusSyncHeadersRejected.WithLabelValues("invalid").Inc()
		sm.logger.Warnf("[SyncManager] invalid header %s from %s: %v", header.Hash(), p, err)
		p.Penalize(penaltyBadHeader, 0, "invalid header")

		return true

	default:
		sm.logger.Errorf("[SyncManager] error accepting header %s: %v", header.Hash(), err)
		return true
	}
}

// applyReorg forwards a reorg to the event sink, rollback first, then the
// newly active branch. The tip notification itself is the caller's job once
// its whole header batch has been processed.
func (sm *SyncManager) applyReorg(outcome *headerchain.AcceptOutcome) {
	disconnected := make([]*model.BlockHeader, 0, len(outcome.Disconnected))
	for _, e := range outcome.Disconnected {
		disconnected = append(disconnected, e.Header)
	}

	connected := make([]*model.BlockHeader, 0, len(outcome.Connected))
	for _, e := range outcome.Connected {
		connected = append(connected, e.Header)
	}

	sm.sink.OnReorg(disconnected, connected)

	prometheusSyncReorgs.Inc()
	prometheusSyncReorgDepth.Observe(float64(len(outcome.Disconnected)))

	// Bodies connected past the fork point belong to the displaced branch
	// now; rewind the download cursor and drop any buffered bodies for the
	// stale branch.
	forkHeight := outcome.Connected[0].Height - 1
	if sm.connectedHeight > forkHeight {
		sm.connectedHeight = forkHeight
	}

	for _, e := range outcome.Disconnected {
		delete(sm.receivedBlocks, e.Hash)
	}
}

// requestBlocks fills the download pipeline: block bodies for active-chain
// entries above the connected height are assigned to ready peers, at most
// MaxBlocksInFlight outstanding per peer.
func (sm *SyncManager) requestBlocks() {
	state := sm.fsm.Current()
	if state != StateBlockSync && state != StateSynced {
		return
	}

	maxInFlight := sm.settings.Sync.MaxBlocksInFlight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	window := sm.settings.Sync.BlockDownloadWindow
	if window <= 0 {
		window = 1024
	}

	tipHeight := sm.index.Height()

	gdMsgs := make(map[uint64]*wire.MsgGetData)

	for height := sm.connectedHeight + 1; height <= tipHeight; height++ {
		if height > sm.connectedHeight+uint32(window) {
			break
		}

		entry, ok := sm.index.EntryAtHeight(height)
		if !ok {
			break
		}

		if _, ok := sm.receivedBlocks[entry.Hash]; ok {
			continue
		}

		key := requestKey{hash: entry.Hash, kind: KindBlock}
		if _, ok := sm.pending[key]; ok {
			continue
		}

		p := sm.pickBlockPeer(maxInFlight)
		if p == nil {
			break
		}

		sm.pending[key] = &pendingRequest{
			key:      key,
			peerID:   p.ID(),
			issuedAt: sm.timeSource(),
		}
		sm.blocksInFlight[p.ID()]++

		gd, ok := gdMsgs[p.ID()]
		if !ok {
			gd = wire.NewMsgGetData()
			gdMsgs[p.ID()] = gd
		}

		hash := entry.Hash
		_ = gd.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash))
	}

	for peerID, gd := range gdMsgs {
		if p, ok := sm.peers[peerID]; ok {
			sm.logger.Debugf("[SyncManager] requesting %d blocks from %s", len(gd.InvList), p)
			p.QueueMessage(gd, nil)
		}
	}
}

// pickBlockPeer returns a ready peer with spare in-flight capacity.
func (sm *SyncManager) pickBlockPeer(maxInFlight int) SyncPeer {
	var best SyncPeer

	for _, p := range sm.peers {
		if !p.IsReady() || sm.blocksInFlight[p.ID()] >= maxInFlight {
			continue
		}

		if best == nil || sm.blocksInFlight[p.ID()] < sm.blocksInFlight[best.ID()] {
			best = p
		}
	}

	return best
}

func (sm *SyncManager) handleBlock(ctx context.Context, p SyncPeer, block *wire.MsgBlock) {
	if _, ok := sm.peers[p.ID()]; !ok {
		return
	}

	header := model.NewBlockHeaderFromWire(&block.Header)
	hash := header.Hash()

	key := requestKey{hash: *hash, kind: KindBlock}

	req, ok := sm.pending[key]
	if !ok || req.peerID != p.ID() {
		p.Penalize(0, penaltyUnsolicited, "unsolicited block "+hash.String())
		return
	}

	delete(sm.pending, key)

	if sm.blocksInFlight[p.ID()] > 0 {
		sm.blocksInFlight[p.ID()]--
	}

	if _, known := sm.index.GetEntry(hash); !known {
		// The entry can only vanish if it never existed; treat as
		// unsolicited.
		p.Penalize(0, penaltyUnsolicited, "block without header "+hash.String())
		return
	}

	sm.receivedBlocks[*hash] = block

	sm.connectReadyBlocks()
	sm.requestBlocks()
	sm.maybeSynced(ctx)
}

// connectReadyBlocks delivers downloaded bodies to the sink strictly in
// ascending height order along the active chain.
func (sm *SyncManager) connectReadyBlocks() {
	for {
		entry, ok := sm.index.EntryAtHeight(sm.connectedHeight + 1)
		if !ok {
			return
		}

		block, ok := sm.receivedBlocks[entry.Hash]
		if !ok {
			return
		}

		delete(sm.receivedBlocks, entry.Hash)

		sm.sink.OnBlockConnected(entry.Header, block)
		sm.connectedHeight = entry.Height

		prometheusSyncBlocksConnected.Inc()
	}
}

// maybeSynced transitions BlockSync to Synced once every active-chain body
// up to the tip has been connected.
func (sm *SyncManager) maybeSynced(ctx context.Context) {
	if sm.fsm.Current() != StateBlockSync {
		return
	}

	if sm.connectedHeight < sm.index.Height() {
		return
	}

	if err := sm.fsm.Event(ctx, eventBlocksCaughtUp); err != nil {
		sm.logger.Warnf("[SyncManager] cannot enter synced: %v", err)
		return
	}

	sm.logger.Infof("[SyncManager] synced at height %d", sm.index.Height())
}

func (sm *SyncManager) handleInv(ctx context.Context, p SyncPeer, inv *wire.MsgInv) {
	if _, ok := sm.peers[p.ID()]; !ok {
		return
	}

	unknown := false

	for _, iv := range inv.InvList {
		if iv.Type != wire.InvTypeBlock {
			continue
		}

		hash := iv.Hash
		if !sm.index.HaveHeader(&hash) {
			unknown = true
		}
	}

	if !unknown {
		return
	}

	// An unknown block announcement; ask the announcer for the headers
	// leading up to it.
	if sm.fsm.Current() == StateSynced || sm.fsm.Current() == StateBlockSync {
		if err := sm.fsm.Event(ctx, eventStartHeaderSync); err == nil {
			sm.syncPeer = p
		}
	}

	sm.pushGetHeaders(p)
}

// handleGetHeaders serves a peer's getheaders request from the active
// chain.
func (sm *SyncManager) handleGetHeaders(p SyncPeer, msg *wire.MsgGetHeaders) {
	headers := sm.index.LocateHeaders(msg.BlockLocatorHashes, &msg.HashStop, sm.maxHeadersPerBatch())

	reply := wire.NewMsgHeaders()
	for _, header := range headers {
		if err := reply.AddBlockHeader(header.ToWire()); err != nil {
			break
		}
	}

	p.QueueMessage(reply, nil)
}

// handleGetData answers with notfound: block bodies are not retained after
// delivery to the event sink.
func (sm *SyncManager) handleGetData(p SyncPeer, msg *wire.MsgGetData) {
	notFound := wire.NewMsgNotFound()
	for _, iv := range msg.InvList {
		_ = notFound.AddInvVect(iv)
	}

	if len(notFound.InvList) > 0 {
		p.QueueMessage(notFound, nil)
	}
}

// handleTick expires pending requests that outlived the request timeout,
// penalizes the assigned peer and reissues the request to a different
// ready peer if one exists.
func (sm *SyncManager) handleTick(ctx context.Context) {
	timeout := sm.settings.Sync.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	now := sm.timeSource()

	expiredHeaderBatch := false

	for key, req := range sm.pending {
		if now.Sub(req.issuedAt) < timeout {
			continue
		}

		delete(sm.pending, key)
		prometheusSyncRequestTimeouts.Inc()

		if key.kind == KindBlock && sm.blocksInFlight[req.peerID] > 0 {
			sm.blocksInFlight[req.peerID]--
		}

		if p, ok := sm.peers[req.peerID]; ok {
			sm.logger.Warnf("[SyncManager] %s request %s to %s timed out", key.kind, key.hash, p)
			p.Penalize(penaltyStall, 0, key.kind.String()+" request timeout")
		}

		if key.kind == KindHeaderBatch {
			expiredHeaderBatch = true
		}
	}

	if expiredHeaderBatch {
		// Reselect a sync peer other than the one that stalled, when
		// possible.
		stalled := sm.syncPeer
		sm.syncPeer = nil

		if next := sm.otherReadyPeer(stalled); next != nil {
			sm.syncPeer = next
			sm.pushGetHeaders(next)
		} else {
			sm.toIdle(ctx)
		}
	}

	sm.requestBlocks()
}

// otherReadyPeer returns a ready peer different from except, preferring the
// greatest advertised height.
func (sm *SyncManager) otherReadyPeer(except SyncPeer) SyncPeer {
	var best SyncPeer

	for _, p := range sm.peers {
		if !p.IsReady() {
			continue
		}

		if except != nil && p.ID() == except.ID() {
			continue
		}

		if best == nil || p.StartingHeight() > best.StartingHeight() {
			best = p
		}
	}

	return best
}
