package p2p

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	txmap "github.com/bsv-blockchain/go-tx-map"
	"github.com/bsv-blockchain/go-wire"

	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/services/headerchain"
	"github.com/samrock5000/nakamoto-cash/services/netsync"
	peerpkg "github.com/samrock5000/nakamoto-cash/services/p2p/peer"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

const (
	// connectionRetryInterval is the base delay between attempts to
	// reconnect a configured peer. The delay doubles per failure up to
	// maxConnectionRetries doublings.
	connectionRetryInterval = 5 * time.Second
	maxConnectionRetries    = 6
)

// peerState is the bookkeeping owned by the peerHandler goroutine.
type peerState struct {
	inboundPeers    *txmap.SyncedMap[uint64, *peerpkg.Peer]
	outboundPeers   *txmap.SyncedMap[uint64, *peerpkg.Peer]
	connectionCount *txmap.SyncedMap[string, int]
}

func newPeerState() *peerState {
	return &peerState{
		inboundPeers:    txmap.NewSyncedMap[uint64, *peerpkg.Peer](),
		outboundPeers:   txmap.NewSyncedMap[uint64, *peerpkg.Peer](),
		connectionCount: txmap.NewSyncedMap[string, int](),
	}
}

// Count returns the number of connected peers.
func (ps *peerState) Count() int {
	return ps.inboundPeers.Length() + ps.outboundPeers.Length()
}

// CountIP returns the number of connections from the given host.
func (ps *peerState) CountIP(host string) int {
	count, _ := ps.connectionCount.Get(host)
	return count
}

func (ps *peerState) forAllPeers(fn func(p *peerpkg.Peer)) {
	for _, p := range ps.inboundPeers.Range() {
		fn(p)
	}

	for _, p := range ps.outboundPeers.Range() {
		fn(p)
	}
}

// Server accepts and dials peer connections and bridges their messages into
// the sync manager.
type Server struct {
	logger   ulogger.Logger
	settings *settings.Settings

	index       *headerchain.Index
	syncManager *netsync.SyncManager
	banList     *BanList

	whitelist []*net.IPNet

	started  atomic.Bool
	shutdown atomic.Bool

	newPeers  chan *peerpkg.Peer
	donePeers chan *peerpkg.Peer
	banPeers  chan *peerpkg.Peer
	quit      chan struct{}
	wg        sync.WaitGroup

	listeners []net.Listener
}

// NewServer creates a peer server. Start must be called before it accepts or
// dials anything.
func NewServer(logger ulogger.Logger, tSettings *settings.Settings, index *headerchain.Index,
	syncManager *netsync.SyncManager, banList *BanList) (*Server, error) {
	whitelist, err := parseWhitelist(tSettings.P2P.Whitelist)
	if err != nil {
		return nil, err
	}

	return &Server{
		logger:      logger,
		settings:    tSettings,
		index:       index,
		syncManager: syncManager,
		banList:     banList,
		whitelist:   whitelist,
		newPeers:    make(chan *peerpkg.Peer, tSettings.P2P.MaxPeers),
		donePeers:   make(chan *peerpkg.Peer, tSettings.P2P.MaxPeers),
		banPeers:    make(chan *peerpkg.Peer, tSettings.P2P.MaxPeers),
		quit:        make(chan struct{}),
	}, nil
}

func parseWhitelist(entries []string) ([]*net.IPNet, error) {
	whitelist := make([]*net.IPNet, 0, len(entries))

	for _, entry := range entries {
		if entry == "" {
			continue
		}

		_, subnet, err := parseKey(entry)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid whitelist entry %s", entry, err)
		}

		whitelist = append(whitelist, subnet)
	}

	return whitelist, nil
}

// Start begins listening for inbound connections and dialing the configured
// peers.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.NewServiceError("p2p server already started")
	}

	// The wire message ceiling applies process-wide.
	wire.SetLimits(uint64(s.settings.P2P.ExcessiveMessageSize))

	initPrometheusMetrics()

	if !s.settings.P2P.DisableListen {
		for _, addr := range s.settings.P2P.ListenAddresses {
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				s.stopListeners()
				return errors.NewServiceError("cannot listen on %s", addr, err)
			}

			s.logger.Infof("[Server] listening on %s", listener.Addr())
			s.listeners = append(s.listeners, listener)

			s.wg.Add(1)

			go s.listenHandler(listener)
		}
	}

	s.wg.Add(1)

	go s.peerHandler(ctx)

	for _, addr := range s.settings.P2P.ConnectPeers {
		if addr == "" {
			continue
		}

		s.wg.Add(1)

		go s.connectHandler(ctx, addr)
	}

	return nil
}

// Stop disconnects all peers and shuts the server down. It blocks until all
// handler goroutines exit.
func (s *Server) Stop() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Infof("[Server] shutting down")

	s.stopListeners()
	close(s.quit)
	s.wg.Wait()

	return nil
}

func (s *Server) stopListeners() {
	for _, listener := range s.listeners {
		if err := listener.Close(); err != nil {
			s.logger.Warnf("[Server] cannot close listener %s: %v", listener.Addr(), err)
		}
	}
}

// listenHandler accepts inbound connections on a single listener.
func (s *Server) listenHandler(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return
			}

			s.logger.Warnf("[Server] accept failed: %v", err)

			continue
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			_ = conn.Close()
			continue
		}

		if s.banList.IsBanned(host) {
			s.logger.Infof("[Server] rejecting banned peer %s", host)
			prometheusConnectionsRefused.WithLabelValues("banned").Inc()
			_ = conn.Close()

			continue
		}

		sp := peerpkg.NewInboundPeer(s.newPeerConfig(host))
		sp.AssociateConnection(conn)
	}
}

// connectHandler maintains an outbound connection to a configured peer,
// redialing with backoff whenever the session ends.
func (s *Server) connectHandler(ctx context.Context, addr string) {
	defer s.wg.Done()

	retries := 0

	for {
		if s.shutdown.Load() {
			return
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			s.logger.Errorf("[Server] malformed connect address %s: %v", addr, err)
			return
		}

		if s.banList.IsBanned(host) {
			s.logger.Warnf("[Server] not dialing banned peer %s", addr)
			return
		}

		sp, err := peerpkg.NewOutboundPeer(s.newPeerConfig(host), addr)
		if err != nil {
			s.logger.Errorf("[Server] cannot create outbound peer %s: %v", addr, err)
			return
		}

		var d net.Dialer

		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			s.logger.Warnf("[Server] cannot dial %s: %v", addr, err)
		} else {
			retries = 0

			sp.AssociateConnection(conn)
			sp.WaitForDisconnect()
		}

		retries++

		retryDelay := connectionRetryInterval
		if retries > 1 {
			shift := retries - 1
			if shift > maxConnectionRetries {
				shift = maxConnectionRetries
			}

			retryDelay = connectionRetryInterval << shift
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		}
	}
}

// peerHandler owns the peer bookkeeping. All peer add, remove and ban
// decisions funnel through here so no locking is needed on the state.
func (s *Server) peerHandler(ctx context.Context) {
	defer s.wg.Done()

	state := newPeerState()

	for {
		select {
		case p := <-s.newPeers:
			s.handleAddPeerMsg(state, p)

		case p := <-s.donePeers:
			s.handleDonePeerMsg(state, p)

		case p := <-s.banPeers:
			s.handleBanPeerMsg(state, p)

		case <-ctx.Done():
			s.disconnectAll(state)
			return

		case <-s.quit:
			s.disconnectAll(state)
			return
		}
	}
}

func (s *Server) disconnectAll(state *peerState) {
	state.forAllPeers(func(p *peerpkg.Peer) {
		p.Disconnect()
	})
}

// handleAddPeerMsg admits a peer that completed its handshake, enforcing the
// connection limits. It is invoked from the peerHandler goroutine.
func (s *Server) handleAddPeerMsg(state *peerState, p *peerpkg.Peer) {
	if s.shutdown.Load() {
		p.Disconnect()
		return
	}

	host, _, err := net.SplitHostPort(p.Addr())
	if err != nil {
		s.logger.Debugf("[Server] can't split host port for %s: %v", p, err)
		p.Disconnect()

		return
	}

	if state.CountIP(host) >= s.settings.P2P.MaxPeersPerIP {
		s.logger.Infof("[Server] max peers per IP reached [%d], disconnecting %s",
			s.settings.P2P.MaxPeersPerIP, p)
		prometheusConnectionsRefused.WithLabelValues("max_peers_per_ip").Inc()
		p.Disconnect()

		return
	}

	if state.Count() >= s.settings.P2P.MaxPeers {
		s.logger.Infof("[Server] max peers reached [%d], disconnecting %s",
			s.settings.P2P.MaxPeers, p)
		prometheusConnectionsRefused.WithLabelValues("max_peers").Inc()
		p.Disconnect()

		return
	}

	s.logger.Debugf("[Server] new peer %s", p)

	if p.Inbound() {
		state.inboundPeers.Set(p.ID(), p)
	} else {
		state.outboundPeers.Set(p.ID(), p)
	}

	count, _ := state.connectionCount.Get(host)
	state.connectionCount.Set(host, count+1)

	prometheusPeersConnected.Set(float64(state.Count()))

	s.syncManager.NewPeer(p)
}

// handleDonePeerMsg removes a disconnected peer. It is invoked from the
// peerHandler goroutine.
func (s *Server) handleDonePeerMsg(state *peerState, p *peerpkg.Peer) {
	list := state.outboundPeers
	if p.Inbound() {
		list = state.inboundPeers
	}

	if _, ok := list.Get(p.ID()); !ok {
		// Never admitted, nothing to undo.
		return
	}

	list.Delete(p.ID())

	if host, _, err := net.SplitHostPort(p.Addr()); err == nil {
		count, _ := state.connectionCount.Get(host)
		if count <= 1 {
			state.connectionCount.Delete(host)
		} else {
			state.connectionCount.Set(host, count-1)
		}
	}

	prometheusPeersConnected.Set(float64(state.Count()))

	s.logger.Debugf("[Server] removed peer %s", p)
	s.syncManager.DonePeer(p)
}

// handleBanPeerMsg bans a misbehaving peer's host. It is invoked from the
// peerHandler goroutine.
func (s *Server) handleBanPeerMsg(state *peerState, p *peerpkg.Peer) {
	host, _, err := net.SplitHostPort(p.Addr())
	if err != nil {
		s.logger.Debugf("[Server] can't split ban peer %s: %v", p.Addr(), err)
		return
	}

	direction := directionString(p.Inbound())
	banUntil := time.Now().Add(s.settings.P2P.BanDuration)

	s.logger.Infof("[Server] banned peer %s (%s) for %v", host, direction, s.settings.P2P.BanDuration)
	prometheusPeersBanned.Inc()

	if err := s.banList.Add(host, banUntil); err != nil {
		s.logger.Errorf("[Server] failed to add ban for peer %s: %v", host, err)
	}

	// Drop every other connection from the banned host.
	state.forAllPeers(func(other *peerpkg.Peer) {
		if otherHost, _, err := net.SplitHostPort(other.Addr()); err == nil && otherHost == host {
			other.Disconnect()
		}
	})
}

// isWhitelisted checks whether the host matches a whitelist entry.
func (s *Server) isWhitelisted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, subnet := range s.whitelist {
		if subnet.Contains(ip) {
			return true
		}
	}

	return false
}

// newestBlock reports the active tip to the version handshake.
func (s *Server) newestBlock() (*chainhash.Hash, int32, error) {
	tip := s.index.Tip()

	height, err := safeconversion.Uint32ToInt32(tip.Height)
	if err != nil {
		return nil, 0, err
	}

	hash := tip.Hash

	return &hash, height, nil
}

// newPeerConfig builds the per-peer configuration, routing the peer's
// protocol messages into the sync manager.
func (s *Server) newPeerConfig(host string) *peerpkg.Config {
	return &peerpkg.Config{
		Logger:           s.logger,
		ChainParams:      s.settings.ChainCfgParams,
		Services:         0,
		UserAgentName:    s.settings.P2P.UserAgentName,
		UserAgentVersion: s.settings.P2P.UserAgentVersion,
		NewestBlock:      s.newestBlock,
		BanThreshold:     s.settings.P2P.BanThreshold,
		Whitelisted:      s.isWhitelisted(host),
		PingInterval:     s.settings.P2P.PingInterval,
		StallTimeout:     s.settings.P2P.StallTimeout,
		Listeners: peerpkg.MessageListeners{
			OnHeaders: func(p *peerpkg.Peer, msg *wire.MsgHeaders) {
				prometheusMessagesReceived.WithLabelValues("headers").Inc()
				s.syncManager.QueueHeaders(msg, p)
			},
			OnInv: func(p *peerpkg.Peer, msg *wire.MsgInv) {
				prometheusMessagesReceived.WithLabelValues("inv").Inc()
				s.syncManager.QueueInv(msg, p)
			},
			OnBlock: func(p *peerpkg.Peer, msg *wire.MsgBlock) {
				prometheusMessagesReceived.WithLabelValues("block").Inc()
				s.syncManager.QueueBlock(msg, p)
			},
			OnGetHeaders: func(p *peerpkg.Peer, msg *wire.MsgGetHeaders) {
				prometheusMessagesReceived.WithLabelValues("getheaders").Inc()
				s.syncManager.QueueGetHeaders(msg, p)
			},
			OnGetData: func(p *peerpkg.Peer, msg *wire.MsgGetData) {
				prometheusMessagesReceived.WithLabelValues("getdata").Inc()
				s.syncManager.QueueGetData(msg, p)
			},
			OnReady: func(p *peerpkg.Peer) {
				select {
				case s.newPeers <- p:
				case <-s.quit:
				}
			},
			OnDisconnect: func(p *peerpkg.Peer) {
				select {
				case s.donePeers <- p:
				case <-s.quit:
				}
			},
			OnBanScoreExceeded: func(p *peerpkg.Peer, reason string) {
				s.logger.Warnf("[Server] peer %s exceeded ban threshold: %s", p, reason)

				select {
				case s.banPeers <- p:
				case <-s.quit:
				}
			},
		},
	}
}

func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}

	return "outbound"
}

// String implements fmt.Stringer for log lines.
func (s *Server) String() string {
	return fmt.Sprintf("p2p server (%d listeners)", len(s.listeners))
}
