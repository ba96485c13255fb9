package settings

import (
	"time"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
)

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	return &Settings{
		ClientName:         getString("clientName", "nakamoto-cash"),
		DataFolder:         getString("dataFolder", "data"),
		StatsListenAddress: getString("statsListenAddress", "localhost:9292"),
		ChainCfgParams:     params,
		P2P: P2PSettings{
			ListenAddresses:  getMultiString("p2p_listenAddresses", ":"+params.DefaultPort),
			ConnectPeers:     getMultiString("p2p_connectPeers", ""),
			MaxPeers:         getInt("p2p_maxPeers", 125),
			MaxPeersPerIP:    getInt("p2p_maxPeersPerIP", 5),
			UserAgentName:    getString("p2p_userAgentName", "nakamoto-cash"),
			UserAgentVersion: getString("p2p_userAgentVersion", "0.1.0"),
			// The historical 32MiB default is raised to cover post-upgrade
			// block sizes on the larger networks.
			ExcessiveMessageSize: uint32(getInt("p2p_excessiveMessageSize", 128*1024*1024)),
			BanThreshold:         uint32(getInt("p2p_banThreshold", 100)),
			BanDuration:          getDuration("p2p_banDuration", 24*time.Hour),
			Whitelist:            getMultiString("p2p_whitelist", ""),
			DisableListen:        getBool("p2p_disableListen", false),
			PingInterval:         getDuration("p2p_pingInterval", 2*time.Minute),
			StallTimeout:         getDuration("p2p_stallTimeout", 5*time.Minute),
		},
		Sync: SyncSettings{
			RequestTimeout:      getDuration("sync_requestTimeout", 30*time.Second),
			TickInterval:        getDuration("sync_tickInterval", 5*time.Second),
			MaxBlocksInFlight:   getInt("sync_maxBlocksInFlight", 16),
			MaxReorgDepth:       getInt("sync_maxReorgDepth", 100),
			MaxHeadersPerBatch:  getInt("sync_maxHeadersPerBatch", 2000),
			BlockDownloadWindow: getInt("sync_blockDownloadWindow", 1024),
		},
		Wallet: WalletSettings{
			Enabled:  getBool("wallet_enabled", false),
			XPub:     getString("wallet_xpub", ""),
			GapLimit: getInt("wallet_gapLimit", 20),
		},
	}
}
