package p2p

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
	"github.com/samrock5000/nakamoto-cash/services/headerchain"
	"github.com/samrock5000/nakamoto-cash/services/netsync"
	peerpkg "github.com/samrock5000/nakamoto-cash/services/p2p/peer"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

func testServerSettings() *settings.Settings {
	return &settings.Settings{
		ChainCfgParams: &chaincfg.RegressionNetParams,
		P2P: settings.P2PSettings{
			ListenAddresses:      []string{"127.0.0.1:0"},
			MaxPeers:             8,
			MaxPeersPerIP:        4,
			UserAgentName:        "test",
			UserAgentVersion:     "0.0.1",
			ExcessiveMessageSize: 128 * 1024 * 1024,
			BanThreshold:         100,
			BanDuration:          time.Hour,
		},
		Sync: settings.SyncSettings{
			RequestTimeout:      30 * time.Second,
			TickInterval:        time.Second,
			MaxBlocksInFlight:   16,
			MaxHeadersPerBatch:  2000,
			BlockDownloadWindow: 1024,
		},
	}
}

type testNode struct {
	server      *Server
	syncManager *netsync.SyncManager
	index       *headerchain.Index
	banList     *BanList
}

func newTestNode(t *testing.T, tSettings *settings.Settings) *testNode {
	t.Helper()

	// Tests drive the handler methods directly without Server.Start, which
	// is where the metrics are normally initialized.
	initPrometheusMetrics()

	logger := ulogger.TestLogger{}

	index, err := headerchain.NewIndex(logger, tSettings.ChainCfgParams)
	require.NoError(t, err)

	syncManager := netsync.New(&netsync.Config{
		Logger:   logger,
		Settings: tSettings,
		Index:    index,
	})

	banList := NewBanList(logger)
	t.Cleanup(banList.Stop)

	server, err := NewServer(logger, tSettings, index, syncManager, banList)
	require.NoError(t, err)

	return &testNode{
		server:      server,
		syncManager: syncManager,
		index:       index,
		banList:     banList,
	}
}

func newOutboundTestPeer(t *testing.T, s *Server, addr string) *peerpkg.Peer {
	t.Helper()

	host, _, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	p, err := peerpkg.NewOutboundPeer(s.newPeerConfig(host), addr)
	require.NoError(t, err)

	return p
}

func TestParseWhitelist(t *testing.T) {
	t.Run("valid entries", func(t *testing.T) {
		tSettings := testServerSettings()
		tSettings.P2P.Whitelist = []string{"127.0.0.1", "10.0.0.0/8"}

		node := newTestNode(t, tSettings)

		assert.True(t, node.server.isWhitelisted("127.0.0.1"))
		assert.True(t, node.server.isWhitelisted("10.20.30.40"))
		assert.False(t, node.server.isWhitelisted("192.168.1.1"))
	})

	t.Run("invalid entry rejected", func(t *testing.T) {
		tSettings := testServerSettings()
		tSettings.P2P.Whitelist = []string{"not-an-ip"}

		logger := ulogger.TestLogger{}

		index, err := headerchain.NewIndex(logger, tSettings.ChainCfgParams)
		require.NoError(t, err)

		syncManager := netsync.New(&netsync.Config{
			Logger:   logger,
			Settings: tSettings,
			Index:    index,
		})

		banList := NewBanList(logger)
		defer banList.Stop()

		_, err = NewServer(logger, tSettings, index, syncManager, banList)
		require.Error(t, err)
	})
}

func TestPeerStateLimits(t *testing.T) {
	tSettings := testServerSettings()
	tSettings.P2P.MaxPeersPerIP = 2
	tSettings.P2P.MaxPeers = 3

	node := newTestNode(t, tSettings)
	state := newPeerState()

	// Two peers from the same host are admitted.
	for i := 0; i < 2; i++ {
		p := newOutboundTestPeer(t, node.server, fmt.Sprintf("10.0.0.9:%d", 8333+i))
		node.server.handleAddPeerMsg(state, p)
	}

	require.Equal(t, 2, state.Count())
	require.Equal(t, 2, state.CountIP("10.0.0.9"))

	// The third connection from the same host is refused.
	extra := newOutboundTestPeer(t, node.server, "10.0.0.9:8335")
	node.server.handleAddPeerMsg(state, extra)
	assert.Equal(t, 2, state.Count())

	// A peer from a different host still fits.
	other := newOutboundTestPeer(t, node.server, "10.0.0.10:8333")
	node.server.handleAddPeerMsg(state, other)
	require.Equal(t, 3, state.Count())

	// Total peer limit reached.
	overflow := newOutboundTestPeer(t, node.server, "10.0.0.11:8333")
	node.server.handleAddPeerMsg(state, overflow)
	assert.Equal(t, 3, state.Count())

	// Removing a peer frees its host slot.
	node.server.handleDonePeerMsg(state, other)
	assert.Equal(t, 2, state.Count())
	assert.Equal(t, 0, state.CountIP("10.0.0.10"))
}

func TestHandleBanPeerMsg(t *testing.T) {
	node := newTestNode(t, testServerSettings())
	state := newPeerState()

	p := newOutboundTestPeer(t, node.server, "10.0.0.9:8333")
	node.server.handleAddPeerMsg(state, p)
	require.Equal(t, 1, state.Count())

	node.server.handleBanPeerMsg(state, p)

	assert.True(t, node.banList.IsBanned("10.0.0.9"))
}

func TestServerSyncsOverTCP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Node A listens.
	nodeA := newTestNode(t, testServerSettings())
	nodeA.syncManager.Start(ctx)
	defer nodeA.syncManager.Stop()

	require.NoError(t, nodeA.server.Start(ctx))
	defer func() { _ = nodeA.server.Stop() }()

	require.NotEmpty(t, nodeA.server.listeners)
	listenAddr := nodeA.server.listeners[0].Addr().String()

	// Node B dials A.
	settingsB := testServerSettings()
	settingsB.P2P.DisableListen = true
	settingsB.P2P.ConnectPeers = []string{listenAddr}

	nodeB := newTestNode(t, settingsB)
	nodeB.syncManager.Start(ctx)
	defer nodeB.syncManager.Stop()

	require.NoError(t, nodeB.server.Start(ctx))
	defer func() { _ = nodeB.server.Stop() }()

	// Both nodes sit at genesis, so B's header sync drains immediately and
	// it settles in the synced state.
	require.Eventually(t, func() bool {
		return nodeB.syncManager.State() == netsync.StateSynced
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, uint32(0), nodeB.index.Height())
}

func TestServerRejectsBannedHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := newTestNode(t, testServerSettings())
	node.syncManager.Start(ctx)
	defer node.syncManager.Stop()

	require.NoError(t, node.banList.Add("127.0.0.1", time.Now().Add(time.Hour)))

	require.NoError(t, node.server.Start(ctx))
	defer func() { _ = node.server.Stop() }()

	listenAddr := node.server.listeners[0].Addr().String()

	conn, err := net.Dial("tcp", listenAddr)
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	// The server closes the connection without speaking the protocol.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
