package settings

import (
	"time"

	"github.com/samrock5000/nakamoto-cash/chaincfg"
)

type P2PSettings struct {
	ListenAddresses      []string
	ConnectPeers         []string
	MaxPeers             int
	MaxPeersPerIP        int
	UserAgentName        string
	UserAgentVersion     string
	ExcessiveMessageSize uint32
	BanThreshold         uint32
	BanDuration          time.Duration
	Whitelist            []string
	DisableListen        bool
	PingInterval         time.Duration
	StallTimeout         time.Duration
}

type SyncSettings struct {
	RequestTimeout      time.Duration
	TickInterval        time.Duration
	MaxBlocksInFlight   int
	MaxReorgDepth       int
	MaxHeadersPerBatch  int
	BlockDownloadWindow int
}

type WalletSettings struct {
	Enabled  bool
	XPub     string
	GapLimit int
}

type Settings struct {
	ClientName         string
	DataFolder         string
	StatsListenAddress string
	ChainCfgParams     *chaincfg.Params
	P2P                P2PSettings
	Sync               SyncSettings
	Wallet             WalletSettings
}
