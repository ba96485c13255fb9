// Package peer implements one Bitcoin Cash protocol session over a single
// connection: version negotiation, message exchange and per-peer misbehavior
// accounting. Malformed or out-of-order traffic is contained here and never
// reaches the sync layer.
package peer

import (
	"container/list"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/bsv-blockchain/go-wire"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

const (
	// outputBufferSize is the number of elements the output channels use.
	outputBufferSize = 50

	// negotiateTimeout is the duration of inactivity before we timeout a
	// peer that hasn't completed the initial version negotiation.
	negotiateTimeout = 30 * time.Second

	// defaultPingInterval is the interval of time to wait in between
	// sending ping messages.
	defaultPingInterval = 2 * time.Minute

	// defaultStallTimeout is how long a peer may be silent before it is
	// considered stalled and disconnected.
	defaultStallTimeout = 5 * time.Minute

	// defaultBanThreshold is the misbehavior score at which a peer is
	// disconnected.
	defaultBanThreshold = 100
)

// nodeCount is the total number of peer connections made since startup and
// is used to assign an id to a peer. Ids are never reused.
var nodeCount uint64

// zeroHash is the zero value hash (all zeros). It is defined as a
// convenience.
var zeroHash chainhash.Hash

// MessageListeners defines callback function pointers to invoke with wire
// messages. Since all of the functions are nil by default, all listeners
// are effectively ignored until set to a concrete callback.
//
// Listener invocation is serialized per peer: they run on the peer's input
// handler goroutine in receipt order.
type MessageListeners struct {
	OnVersion    func(p *Peer, msg *wire.MsgVersion)
	OnHeaders    func(p *Peer, msg *wire.MsgHeaders)
	OnGetHeaders func(p *Peer, msg *wire.MsgGetHeaders)
	OnInv        func(p *Peer, msg *wire.MsgInv)
	OnGetData    func(p *Peer, msg *wire.MsgGetData)
	OnBlock      func(p *Peer, msg *wire.MsgBlock)
	OnPing       func(p *Peer, msg *wire.MsgPing)
	OnPong       func(p *Peer, msg *wire.MsgPong)

	// OnReady is invoked once when the handshake completes.
	OnReady func(p *Peer)

	// OnDisconnect is invoked when the session ends, after the connection
	// is torn down. It fires at most once.
	OnDisconnect func(p *Peer)

	// OnBanScoreExceeded is invoked when a penalty pushes the peer's
	// misbehavior score over the ban threshold, just before the peer is
	// disconnected.
	OnBanScoreExceeded func(p *Peer, reason string)
}

// Config is the struct to hold configuration options useful to Peer.
type Config struct {
	Logger ulogger.Logger

	// ChainParams identifies the network the peer is associated with.
	ChainParams *chaincfg.Params

	// Services specifies which services to advertise as supported by the
	// local peer.
	Services wire.ServiceFlag

	// UserAgentName and UserAgentVersion specify the user agent to
	// advertise. They are required.
	UserAgentName    string
	UserAgentVersion string

	// NewestBlock specifies a callback which provides the newest block
	// details to the peer as needed. This can be nil in which case the
	// peer will report a block height of 0.
	NewestBlock func() (*chainhash.Hash, int32, error)

	// BanThreshold is the misbehavior score that triggers disconnection.
	// Zero selects the default.
	BanThreshold uint32

	// Whitelisted exempts the peer from misbehavior scoring.
	Whitelisted bool

	// PingInterval and StallTimeout override the keepalive defaults when
	// non-zero.
	PingInterval time.Duration
	StallTimeout time.Duration

	Listeners MessageListeners
}

// outMsg is an outgoing message queued for the writer goroutine, with an
// optional channel signalled once the message hits the wire.
type outMsg struct {
	msg      wire.Message
	doneChan chan<- struct{}
}

// Peer provides a bitcoin peer for handling bitcoin communications via the
// peer-to-peer protocol. Messages are read and written on dedicated
// goroutines; queueing a message never blocks the caller.
type Peer struct {
	// The following variables must only be used atomically.
	connected  int32
	disconnect int32
	lastRecv   int64
	lastSend   int64

	id      uint64
	inbound bool
	addr    string
	cfg     Config
	logger  ulogger.Logger

	conn net.Conn

	flagsMtx        sync.Mutex
	na              *wire.NetAddress
	services        wire.ServiceFlag
	userAgent       string
	protocolVersion uint32
	startingHeight  int32
	versionNonce    uint64
	state           HandshakeState

	banScore DynamicBanScore

	outputQueue   chan outMsg
	sendQueue     chan outMsg
	sendDoneQueue chan struct{}
	inQuit        chan struct{}
	queueQuit     chan struct{}
	outQuit       chan struct{}
	quit          chan struct{}
}

// NewInboundPeer returns a new inbound bitcoin peer. Use AssociateConnection
// to hand it an accepted connection.
func NewInboundPeer(cfg *Config) *Peer {
	return newPeerBase(cfg, true, "")
}

// NewOutboundPeer returns a new outbound bitcoin peer for the given address.
func NewOutboundPeer(cfg *Config, addr string) (*Peer, error) {
	p := newPeerBase(cfg, false, addr)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("malformed peer address %q", addr, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("malformed peer port in %q", addr, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}

	p.na = wire.NewNetAddressIPPort(ip, uint16(port), 0)

	return p, nil
}

func newPeerBase(cfg *Config, inbound bool, addr string) *Peer {
	c := *cfg

	if c.BanThreshold == 0 {
		c.BanThreshold = defaultBanThreshold
	}

	if c.StallTimeout == 0 {
		c.StallTimeout = defaultStallTimeout
	}

	logger := c.Logger
	if logger == nil {
		logger = ulogger.New("peer")
	}

	return &Peer{
		id:              atomic.AddUint64(&nodeCount, 1),
		inbound:         inbound,
		addr:            addr,
		cfg:             c,
		logger:          logger,
		services:        c.Services,
		protocolVersion: wire.ProtocolVersion,
		state:           StateConnecting,
		outputQueue:     make(chan outMsg, outputBufferSize),
		sendQueue:       make(chan outMsg, 1),
		sendDoneQueue:   make(chan struct{}, 1),
		inQuit:          make(chan struct{}),
		queueQuit:       make(chan struct{}),
		outQuit:         make(chan struct{}),
		quit:            make(chan struct{}),
	}
}

// ID returns the peer id. Ids are unique for the lifetime of the process.
func (p *Peer) ID() uint64 {
	return p.id
}

// Addr returns the peer address.
func (p *Peer) Addr() string {
	return p.addr
}

// Inbound returns whether the peer is inbound.
func (p *Peer) Inbound() bool {
	return p.inbound
}

func (p *Peer) String() string {
	if p.inbound {
		return p.addr + " (inbound)"
	}

	return p.addr + " (outbound)"
}

// NA returns the peer network address.
func (p *Peer) NA() *wire.NetAddress {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.na
}

// Services returns the services flag advertised by the remote peer.
func (p *Peer) Services() wire.ServiceFlag {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.services
}

// UserAgent returns the user agent advertised by the remote peer.
func (p *Peer) UserAgent() string {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.userAgent
}

// StartingHeight returns the chain height the remote peer advertised during
// the handshake.
func (p *Peer) StartingHeight() int32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.startingHeight
}

// State returns the current handshake state.
func (p *Peer) State() HandshakeState {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.state
}

// IsReady reports whether the handshake has completed. The sync layer gates
// all chain-relevant requests on this.
func (p *Peer) IsReady() bool {
	return p.State() == StateReady
}

// LastRecv returns the last time the peer received a message.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastRecv), 0)
}

// LastSend returns the last time the peer sent a message.
func (p *Peer) LastSend() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastSend), 0)
}

// BanScore returns the current misbehavior score.
func (p *Peer) BanScore() uint32 {
	return p.banScore.Int()
}

// applyEvent runs the handshake transition function under the flags mutex.
func (p *Peer) applyEvent(event handshakeEvent) error {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	next, err := p.state.transition(event)
	if err != nil {
		return err
	}

	p.state = next

	return nil
}

// Penalize increases the peer's misbehavior score by the persistent and
// decaying amounts given. If the resulting score crosses the ban threshold
// the peer is disconnected and true is returned. Whitelisted peers are
// never penalized.
func (p *Peer) Penalize(persistent, transient uint32, reason string) bool {
	if p.cfg.Whitelisted {
		p.logger.Debugf("[Peer] misbehaving whitelisted peer %s: %s", p, reason)
		return false
	}

	warnThreshold := p.cfg.BanThreshold >> 1

	score := p.banScore.Increase(persistent, transient)
	if score > warnThreshold {
		p.logger.Warnf("[Peer] misbehaving peer %s: %s -- ban score increased to %d", p, reason, score)

		if score > p.cfg.BanThreshold {
			if p.cfg.Listeners.OnBanScoreExceeded != nil {
				p.cfg.Listeners.OnBanScoreExceeded(p, reason)
			}

			p.Disconnect()

			return true
		}
	}

	return false
}

// QueueMessage adds the passed bitcoin message to the peer send queue. It
// returns immediately; doneChan, if non-nil, is signalled once the message
// has been written to the wire or the peer disconnects.
func (p *Peer) QueueMessage(msg wire.Message, doneChan chan<- struct{}) {
	if !p.Connected() {
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}

		return
	}

	select {
	case p.outputQueue <- outMsg{msg: msg, doneChan: doneChan}:
	case <-p.quit:
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}
	}
}

// Connected returns whether the peer is currently connected.
func (p *Peer) Connected() bool {
	return atomic.LoadInt32(&p.connected) != 0 && atomic.LoadInt32(&p.disconnect) == 0
}

// Disconnect disconnects the peer by closing the connection. Calling this
// function when the peer is already disconnected or in the process of
// disconnecting will have no effect.
func (p *Peer) Disconnect() {
	if atomic.AddInt32(&p.disconnect, 1) != 1 {
		return
	}

	p.logger.Debugf("[Peer] disconnecting %s", p)

	if atomic.LoadInt32(&p.connected) != 0 {
		_ = p.conn.Close()
	}

	close(p.quit)
}

// WaitForDisconnect waits until the peer has completely disconnected and all
// resources are cleaned up.
func (p *Peer) WaitForDisconnect() {
	<-p.quit
}

// AssociateConnection associates the given conn to the peer and kicks off
// all processing: version negotiation followed by the read, queue and write
// handlers.
func (p *Peer) AssociateConnection(conn net.Conn) {
	if !atomic.CompareAndSwapInt32(&p.connected, 0, 1) {
		return
	}

	p.conn = conn

	if p.inbound {
		p.addr = conn.RemoteAddr().String()

		// Set up a NetAddress for the peer to be used with services as
		// reported by the remote version message.
		na, err := newNetAddress(conn.RemoteAddr(), 0)
		if err != nil {
			p.logger.Errorf("[Peer] cannot create remote net address: %v", err)
			p.Disconnect()

			return
		}

		p.na = na
	}

	go func() {
		if err := p.start(); err != nil {
			p.logger.Debugf("[Peer] cannot start peer %v: %v", p, err)
			p.Disconnect()
		}
	}()
}

func (p *Peer) start() error {
	negotiateErr := make(chan error, 1)
	go func() {
		if p.inbound {
			negotiateErr <- p.negotiateInboundProtocol()
		} else {
			negotiateErr <- p.negotiateOutboundProtocol()
		}
	}()

	select {
	case err := <-negotiateErr:
		if err != nil {
			_ = p.applyEvent(eventDisconnect)
			return err
		}
	case <-time.After(negotiateTimeout):
		_ = p.applyEvent(eventDisconnect)
		return errors.NewHandshakeFailedError("protocol negotiation timeout for peer %s", p)
	}

	p.logger.Debugf("[Peer] connected to %s", p)

	go p.inHandler()
	go p.queueHandler()
	go p.outHandler()
	go p.pingHandler()

	if p.cfg.Listeners.OnReady != nil {
		p.cfg.Listeners.OnReady(p)
	}

	go func() {
		<-p.quit

		if p.cfg.Listeners.OnDisconnect != nil {
			p.cfg.Listeners.OnDisconnect(p)
		}
	}()

	return nil
}

// localVersionMsg creates a version message that can be used to send to the
// remote peer.
func (p *Peer) localVersionMsg() (*wire.MsgVersion, error) {
	var (
		blockNum int32
		err      error
	)

	if p.cfg.NewestBlock != nil {
		_, blockNum, err = p.cfg.NewestBlock()
		if err != nil {
			return nil, err
		}
	}

	theirNA := p.na

	ourNA := &wire.NetAddress{
		Services: p.cfg.Services,
	}

	nonce, err := randomUint64()
	if err != nil {
		return nil, err
	}

	p.flagsMtx.Lock()
	p.versionNonce = nonce
	p.flagsMtx.Unlock()

	msg := wire.NewMsgVersion(ourNA, theirNA, nonce, blockNum)
	_ = msg.AddUserAgent(p.cfg.UserAgentName, p.cfg.UserAgentVersion)

	msg.Services = p.cfg.Services
	msg.ProtocolVersion = int32(wire.ProtocolVersion)

	return msg, nil
}

func (p *Peer) writeLocalVersionMsg() error {
	localVerMsg, err := p.localVersionMsg()
	if err != nil {
		return err
	}

	if err := p.writeMessage(localVerMsg); err != nil {
		return err
	}

	return p.applyEvent(eventVersionSent)
}

func (p *Peer) readRemoteVersionMsg() error {
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}

	remoteVerMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		p.Penalize(0, 20, "expected version message, got "+msg.Command())
		return errors.NewHandshakeFailedError("peer %s sent %s before version", p, msg.Command())
	}

	p.flagsMtx.Lock()
	selfConnect := remoteVerMsg.Nonce == p.versionNonce
	p.flagsMtx.Unlock()

	if selfConnect {
		return errors.NewHandshakeFailedError("disconnecting peer %s, connected to self", p)
	}

	p.flagsMtx.Lock()
	p.services = remoteVerMsg.Services
	p.userAgent = remoteVerMsg.UserAgent
	p.startingHeight = remoteVerMsg.LastBlock

	pver, err := safeconversion.Int32ToUint32(remoteVerMsg.ProtocolVersion)
	if err == nil && pver < p.protocolVersion {
		p.protocolVersion = pver
	}
	p.flagsMtx.Unlock()

	if p.cfg.Listeners.OnVersion != nil {
		p.cfg.Listeners.OnVersion(p, remoteVerMsg)
	}

	return p.applyEvent(eventVersionReceived)
}

func (p *Peer) readVerAckMsg() error {
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}

	if _, ok := msg.(*wire.MsgVerAck); !ok {
		p.Penalize(0, 20, "expected verack message, got "+msg.Command())
		return errors.NewHandshakeFailedError("peer %s sent %s before verack", p, msg.Command())
	}

	return p.applyEvent(eventVerAckReceived)
}

// negotiateOutboundProtocol performs the handshake for a connection we
// dialed: send version, read version, exchange verack.
func (p *Peer) negotiateOutboundProtocol() error {
	if err := p.writeLocalVersionMsg(); err != nil {
		return err
	}

	if err := p.readRemoteVersionMsg(); err != nil {
		return err
	}

	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}

	return p.readVerAckMsg()
}

// negotiateInboundProtocol performs the handshake for an accepted
// connection. The remote side speaks first; our version goes out as the
// reply. Reads and writes strictly alternate with the dialing side so the
// exchange cannot deadlock even over a synchronous transport.
func (p *Peer) negotiateInboundProtocol() error {
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}

	remoteVerMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		p.Penalize(0, 20, "expected version message, got "+msg.Command())
		return errors.NewHandshakeFailedError("peer %s sent %s before version", p, msg.Command())
	}

	if err := p.writeLocalVersionMsg(); err != nil {
		return err
	}

	p.flagsMtx.Lock()
	p.services = remoteVerMsg.Services
	p.userAgent = remoteVerMsg.UserAgent
	p.startingHeight = remoteVerMsg.LastBlock
	p.flagsMtx.Unlock()

	if p.cfg.Listeners.OnVersion != nil {
		p.cfg.Listeners.OnVersion(p, remoteVerMsg)
	}

	if err := p.applyEvent(eventVersionReceived); err != nil {
		return err
	}

	if err := p.readVerAckMsg(); err != nil {
		return err
	}

	return p.writeMessage(wire.NewMsgVerAck())
}

// readMessage reads the next bitcoin message from the peer with logging.
func (p *Peer) readMessage() (wire.Message, []byte, error) {
	msg, buf, err := wire.ReadMessage(p.conn, p.protocolVersion, p.cfg.ChainParams.Net)

	atomic.StoreInt64(&p.lastRecv, time.Now().Unix())

	if err != nil {
		return nil, nil, err
	}

	p.logger.Debugf("[Peer] received %s (%d bytes) from %s", msg.Command(), len(buf), p)

	return msg, buf, nil
}

// writeMessage sends a bitcoin message to the peer with logging.
func (p *Peer) writeMessage(msg wire.Message) error {
	if atomic.LoadInt32(&p.disconnect) != 0 {
		return nil
	}

	p.logger.Debugf("[Peer] sending %s to %s", msg.Command(), p)

	err := wire.WriteMessage(p.conn, msg, p.protocolVersion, p.cfg.ChainParams.Net)

	atomic.StoreInt64(&p.lastSend, time.Now().Unix())

	return err
}

// inHandler handles all incoming messages for the peer. It must be run as a
// goroutine.
func (p *Peer) inHandler() {
out:
	for atomic.LoadInt32(&p.disconnect) == 0 {
		rmsg, _, err := p.readMessage()
		if err != nil {
			if atomic.LoadInt32(&p.disconnect) == 0 && err != io.EOF {
				// Malformed traffic penalizes the peer rather than
				// crashing the session, but the read stream is no
				// longer trustworthy, so the session ends.
				p.Penalize(0, 10, "malformed message: "+err.Error())
				p.logger.Debugf("[Peer] cannot read message from %s: %v", p, err)
			}

			break out
		}

		switch msg := rmsg.(type) {
		case *wire.MsgVersion:
			// A version message after negotiation is a protocol
			// violation.
			p.Penalize(0, 20, "duplicate version message")

		case *wire.MsgVerAck:
			p.Penalize(0, 20, "duplicate verack message")

		case *wire.MsgPing:
			p.handlePing(msg)

			if p.cfg.Listeners.OnPing != nil {
				p.cfg.Listeners.OnPing(p, msg)
			}

		case *wire.MsgPong:
			if p.cfg.Listeners.OnPong != nil {
				p.cfg.Listeners.OnPong(p, msg)
			}

		case *wire.MsgHeaders:
			if p.cfg.Listeners.OnHeaders != nil {
				p.cfg.Listeners.OnHeaders(p, msg)
			}

		case *wire.MsgGetHeaders:
			if p.cfg.Listeners.OnGetHeaders != nil {
				p.cfg.Listeners.OnGetHeaders(p, msg)
			}

		case *wire.MsgInv:
			if p.cfg.Listeners.OnInv != nil {
				p.cfg.Listeners.OnInv(p, msg)
			}

		case *wire.MsgGetData:
			if p.cfg.Listeners.OnGetData != nil {
				p.cfg.Listeners.OnGetData(p, msg)
			}

		case *wire.MsgBlock:
			if p.cfg.Listeners.OnBlock != nil {
				p.cfg.Listeners.OnBlock(p, msg)
			}

		default:
			p.logger.Debugf("[Peer] received unhandled message of type %T from %s", rmsg, p)
		}
	}

	close(p.inQuit)
	p.Disconnect()
}

func (p *Peer) handlePing(msg *wire.MsgPing) {
	// Include the nonce from the ping so the partner can identify the pong.
	p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
}

// queueHandler handles the queuing of outgoing data for the peer. It keeps
// an unbounded backlog so QueueMessage never blocks senders.
func (p *Peer) queueHandler() {
	pendingMsgs := list.New()

	// We keep the waiting flag so that we know if we have a message queued
	// to the outHandler or not.
	waiting := false

	queuePacket := func(msg outMsg, list *list.List, waiting bool) bool {
		if !waiting {
			p.sendQueue <- msg
		} else {
			list.PushBack(msg)
		}

		return true
	}

out:
	for {
		select {
		case msg := <-p.outputQueue:
			waiting = queuePacket(msg, pendingMsgs, waiting)

		case <-p.sendDoneQueue:
			next := pendingMsgs.Front()
			if next == nil {
				waiting = false
				continue
			}

			val := pendingMsgs.Remove(next)
			p.sendQueue <- val.(outMsg)

		case <-p.quit:
			break out
		}
	}

	// Drain any wait channels before going away so nothing is left waiting
	// on us.
	for e := pendingMsgs.Front(); e != nil; e = pendingMsgs.Front() {
		val := pendingMsgs.Remove(e)
		msg := val.(outMsg)

		if msg.doneChan != nil {
			msg.doneChan <- struct{}{}
		}
	}

cleanup:
	for {
		select {
		case msg := <-p.outputQueue:
			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}
		default:
			break cleanup
		}
	}

	close(p.queueQuit)
}

// outHandler handles all outgoing messages for the peer. It must be run as
// a goroutine. It uses a buffered channel to serialize output messages
// while allowing the sender to continue running asynchronously.
func (p *Peer) outHandler() {
out:
	for {
		select {
		case msg := <-p.sendQueue:
			if err := p.writeMessage(msg.msg); err != nil {
				p.Disconnect()
				p.logger.Debugf("[Peer] failed to send message to %s: %v", p, err)
			}

			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}

			p.sendDoneQueue <- struct{}{}

		case <-p.quit:
			break out
		}
	}

	<-p.queueQuit

	// Drain any wait channels before we go away so we don't leave something
	// waiting for us. We have waited on queueQuit and thus we can be sure
	// that we will not miss anything sent on sendQueue.
cleanup:
	for {
		select {
		case msg := <-p.sendQueue:
			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}
		default:
			break cleanup
		}
	}

	close(p.outQuit)
}

// pingHandler periodically pings the peer and watches for stalls. It must
// be run as a goroutine.
func (p *Peer) pingHandler() {
	pingInterval := p.cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = defaultPingInterval
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

out:
	for {
		select {
		case <-pingTicker.C:
			if time.Since(p.LastRecv()) > p.cfg.StallTimeout {
				p.logger.Infof("[Peer] peer %s stalled for more than %s, disconnecting", p, p.cfg.StallTimeout)
				p.Disconnect()

				break out
			}

			nonce, err := randomUint64()
			if err != nil {
				p.logger.Errorf("[Peer] failed to generate ping nonce: %v", err)
				continue
			}

			p.QueueMessage(wire.NewMsgPing(nonce), nil)

		case <-p.quit:
			break out
		}
	}
}

// randomUint64 returns a cryptographically random uint64.
func randomUint64() (uint64, error) {
	var b [8]byte

	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(b[:]), nil
}

// newNetAddress attempts to extract the IP address and port from the passed
// net.Addr interface and create a bitcoin NetAddress structure using that
// information.
func newNetAddress(addr net.Addr, services wire.ServiceFlag) (*wire.NetAddress, error) {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return wire.NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port), services), nil
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, errors.NewInvalidArgumentError("malformed address %q", addr.String(), err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("malformed port in %q", addr.String(), err)
	}

	return wire.NewNetAddressIPPort(ip, uint16(port), services), nil
}
