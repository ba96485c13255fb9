package peer

import (
	"net"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

func testConfig(listeners MessageListeners) *Config {
	return &Config{
		Logger:           ulogger.TestLogger{},
		ChainParams:      &chaincfg.RegressionNetParams,
		Services:         wire.SFNodeNetwork,
		UserAgentName:    "nakamoto-cash-test",
		UserAgentVersion: "0.1.0",
		Listeners:        listeners,
	}
}

// connectPeers wires an inbound and an outbound peer together over an
// in-memory pipe and waits for both handshakes to complete.
func connectPeers(t *testing.T, inCfg, outCfg *Config) (*Peer, *Peer) {
	t.Helper()

	inReady := make(chan struct{}, 1)
	outReady := make(chan struct{}, 1)

	prevInReady := inCfg.Listeners.OnReady
	inCfg.Listeners.OnReady = func(p *Peer) {
		if prevInReady != nil {
			prevInReady(p)
		}
		inReady <- struct{}{}
	}

	prevOutReady := outCfg.Listeners.OnReady
	outCfg.Listeners.OnReady = func(p *Peer) {
		if prevOutReady != nil {
			prevOutReady(p)
		}
		outReady <- struct{}{}
	}

	inConn, outConn := net.Pipe()

	inPeer := NewInboundPeer(inCfg)
	inPeer.AssociateConnection(inConn)

	outPeer, err := NewOutboundPeer(outCfg, "127.0.0.1:18444")
	require.NoError(t, err)
	outPeer.AssociateConnection(outConn)

	for _, ready := range []chan struct{}{inReady, outReady} {
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("handshake did not complete")
		}
	}

	t.Cleanup(func() {
		inPeer.Disconnect()
		outPeer.Disconnect()
	})

	return inPeer, outPeer
}

func TestPeerHandshake(t *testing.T) {
	inPeer, outPeer := connectPeers(t, testConfig(MessageListeners{}), testConfig(MessageListeners{}))

	assert.True(t, inPeer.IsReady())
	assert.True(t, outPeer.IsReady())

	assert.True(t, inPeer.Inbound())
	assert.False(t, outPeer.Inbound())

	assert.Contains(t, inPeer.UserAgent(), "nakamoto-cash-test")
	assert.Contains(t, outPeer.UserAgent(), "nakamoto-cash-test")

	assert.NotEqual(t, inPeer.ID(), outPeer.ID())
}

func TestPeerPingPong(t *testing.T) {
	pongCh := make(chan uint64, 1)

	outCfg := testConfig(MessageListeners{
		OnPong: func(_ *Peer, msg *wire.MsgPong) {
			pongCh <- msg.Nonce
		},
	})

	_, outPeer := connectPeers(t, testConfig(MessageListeners{}), outCfg)

	// The inbound peer answers pings automatically.
	outPeer.QueueMessage(wire.NewMsgPing(42), nil)

	select {
	case nonce := <-pongCh:
		assert.Equal(t, uint64(42), nonce)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestPeerQueueMessageDone(t *testing.T) {
	inPeer, outPeer := connectPeers(t, testConfig(MessageListeners{}), testConfig(MessageListeners{}))
	_ = inPeer

	done := make(chan struct{}, 1)
	outPeer.QueueMessage(wire.NewMsgGetAddr(), done)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued message was never flushed")
	}
}

func TestPeerDisconnectNotification(t *testing.T) {
	disconnected := make(chan struct{}, 1)

	inCfg := testConfig(MessageListeners{
		OnDisconnect: func(*Peer) {
			disconnected <- struct{}{}
		},
	})

	inPeer, outPeer := connectPeers(t, inCfg, testConfig(MessageListeners{}))

	outPeer.Disconnect()
	inPeer.Disconnect()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnect notification")
	}

	assert.False(t, inPeer.Connected())
	assert.Equal(t, StateDisconnected, inPeer.State())
}

func TestPeerPenalize(t *testing.T) {
	t.Run("crossing threshold disconnects", func(t *testing.T) {
		banned := make(chan string, 1)

		cfg := testConfig(MessageListeners{
			OnBanScoreExceeded: func(_ *Peer, reason string) {
				banned <- reason
			},
		})
		cfg.BanThreshold = 50

		inPeer, _ := connectPeers(t, cfg, testConfig(MessageListeners{}))

		assert.False(t, inPeer.Penalize(30, 0, "first offence"))
		assert.True(t, inPeer.Penalize(30, 0, "second offence"))

		select {
		case reason := <-banned:
			assert.Equal(t, "second offence", reason)
		case <-time.After(time.Second):
			t.Fatal("ban callback not invoked")
		}

		assert.False(t, inPeer.Connected())
	})

	t.Run("whitelisted peers are exempt", func(t *testing.T) {
		cfg := testConfig(MessageListeners{})
		cfg.BanThreshold = 10
		cfg.Whitelisted = true

		inPeer, _ := connectPeers(t, cfg, testConfig(MessageListeners{}))

		assert.False(t, inPeer.Penalize(1000, 0, "ignored"))
		assert.True(t, inPeer.Connected())
		assert.Equal(t, uint32(0), inPeer.BanScore())
	})
}

func TestPeerSelfConnectionRejected(t *testing.T) {
	// Force both ends to present the same nonce by connecting a peer's
	// version message back to itself.
	inConn, outConn := net.Pipe()

	outPeer, err := NewOutboundPeer(testConfig(MessageListeners{}), "127.0.0.1:18444")
	require.NoError(t, err)

	outPeer.AssociateConnection(outConn)

	// Echo every message straight back.
	go func() {
		for {
			msg, _, err := wire.ReadMessage(inConn, wire.ProtocolVersion, chaincfg.RegressionNetParams.Net)
			if err != nil {
				return
			}

			if err := wire.WriteMessage(inConn, msg, wire.ProtocolVersion, chaincfg.RegressionNetParams.Net); err != nil {
				return
			}
		}
	}()

	select {
	case <-outPeer.quit:
	case <-time.After(5 * time.Second):
		t.Fatal("self connection was not rejected")
	}

	assert.False(t, outPeer.IsReady())
}
