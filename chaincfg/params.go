// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"strings"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"

	"github.com/samrock5000/nakamoto-cash/errors"
)

// These variables are the chain proof-of-work limit parameters for each
// default network.
var (
	// bigOne is 1 represented as a big.Int.  It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a Bitcoin Cash block
	// can have for the main network.  It is the value 2^224 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// testNetPowLimit is the highest proof of work value a Bitcoin Cash
	// block can have for the test networks.  It is the value 2^224 - 1.
	testNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// regressionPowLimit is the highest proof of work value a Bitcoin Cash
	// block can have for the regression test network.  It is the value
	// 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// Checkpoint identifies a known good point in the block chain.  Using
// checkpoints allows the header synchronizer to reject forks branching off
// prior to the last checkpoint without walking the whole chain.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// DNSSeed identifies a DNS seed used to bootstrap peer discovery.
type DNSSeed struct {
	// Host defines the hostname of the seed.
	Host string

	// HasFiltering defines whether the seed supports filtering
	// by service flags (wire.ServiceFlag).
	HasFiltering bool
}

// Params defines a Bitcoin Cash network by its parameters.  These parameters
// may be used by applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.BitcoinNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// DNSSeeds defines a list of DNS seeds for the network that are used
	// as one method to discover peers.
	DNSSeeds []DNSSeed

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	// CashAddrPrefix is the address prefix used for CashAddr encoded
	// addresses on this network.
	CashAddrPrefix string

	// LegacyPubKeyHashAddrID is the base58 version byte for legacy
	// pay-to-pubkey-hash addresses.
	LegacyPubKeyHashAddrID byte

	// LegacyScriptHashAddrID is the base58 version byte for legacy
	// pay-to-script-hash addresses.
	LegacyScriptHashAddrID byte

	// HDPrivateKeyID and HDPublicKeyID are the BIP32 extended key version
	// bytes.
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// HDCoinType is the BIP44 coin type used in HD derivation paths.
	HDCoinType uint32
}

// MainNetParams defines the network parameters for the main Bitcoin Cash
// network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         0xe8f3e1e3,
	DefaultPort: "8333",
	DNSSeeds: []DNSSeed{
		{"seed.bchd.cash", true},
		{"seed-bch.bitcoinforks.org", true},
		{"btccash-seeder.bitcoinunlimited.info", false},
		{"seed.bch.loping.net", true},
		{"dnsseed.electroncash.de", true},
	},

	// Chain parameters
	GenesisBlock:       &genesisBlock,
	GenesisHash:        &genesisHash,
	PowLimit:           mainPowLimit,
	PowLimitBits:       0x1d00ffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: []Checkpoint{
		{11111, newHashFromStr("0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d")},
		{33333, newHashFromStr("000000002dd5588a74784eaa7ab0507a18ad16a236e7b1ce69f00d7ddfb5d0a6")},
		{105000, newHashFromStr("00000000000291ce28027faea320c8d2b054b2e0fe44a773f3eefb151d6bdc97")},
		{134444, newHashFromStr("00000000000005b12ffd4cd315cd34ffd4a594f430ac814c91184a0d42d2b0fe")},
		{168000, newHashFromStr("000000000000099e61ea72015e79632f216fe6cb33d7899acb35b75c8303b763")},
		{216116, newHashFromStr("00000000000001b4f4b433e81ee46494af945cf96014816a4e2370f11b23df4e")},
		{278000, newHashFromStr("00000000000000014bb43e9a3e6f60015587aa24cde11ebb50b6a2893ce43f70")},
		{478559, newHashFromStr("000000000000000000651ef99cb9fcbe0dadde1d424bd9f15ff20136191a5eec")},
		{556767, newHashFromStr("0000000000000000004626ff6e3b936941d341c5932ece4357eeccac44e6d56c")},
	},

	CashAddrPrefix: "bitcoincash",

	LegacyPubKeyHashAddrID: 0x00,
	LegacyScriptHashAddrID: 0x05,
	HDPrivateKeyID:         [4]byte{0x04, 0x88, 0xad, 0xe4}, // xprv
	HDPublicKeyID:          [4]byte{0x04, 0x88, 0xb2, 0x1e}, // xpub
	HDCoinType:             145,
}

// TestNet3Params defines the network parameters for the test Bitcoin Cash
// network (version 3).
var TestNet3Params = Params{
	Name:        "testnet3",
	Net:         0xf4f3e5f4,
	DefaultPort: "18333",
	DNSSeeds: []DNSSeed{
		{"testnet-seed-bch.bitcoinforks.org", true},
		{"testnet-seed.bchd.cash", true},
		{"seed.tbch.loping.net", true},
	},

	// Chain parameters
	GenesisBlock:       &testNet3GenesisBlock,
	GenesisHash:        &testNet3GenesisHash,
	PowLimit:           testNetPowLimit,
	PowLimitBits:       0x1d00ffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: nil,

	CashAddrPrefix: "bchtest",

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	HDPrivateKeyID:         [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
	HDPublicKeyID:          [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub
	HDCoinType:             1,
}

// TestNet4Params defines the network parameters for the fourth test network.
var TestNet4Params = Params{
	Name:        "testnet4",
	Net:         0xafdab7e2,
	DefaultPort: "28333",
	DNSSeeds: []DNSSeed{
		{"testnet4-seed-bch.bitcoinforks.org", true},
		{"seed.tbch4.loping.net", true},
	},

	// Chain parameters
	GenesisBlock:       &testNet4GenesisBlock,
	GenesisHash:        &testNet4GenesisHash,
	PowLimit:           testNetPowLimit,
	PowLimitBits:       0x1d00ffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: nil,

	CashAddrPrefix: "bchtest",

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	HDPrivateKeyID:         [4]byte{0x04, 0x35, 0x83, 0x94},
	HDPublicKeyID:          [4]byte{0x04, 0x35, 0x87, 0xcf},
	HDCoinType:             1,
}

// ChipNetParams defines the network parameters for the chipnet test network.
// Chipnet shares the testnet4 genesis block but uses a different network
// magic so upgraded and non-upgraded nodes do not mix.
var ChipNetParams = Params{
	Name:        "chipnet",
	Net:         0xafdab7e2,
	DefaultPort: "48333",
	DNSSeeds: []DNSSeed{
		{"chipnet.bitjson.com", false},
	},

	// Chain parameters
	GenesisBlock:       &testNet4GenesisBlock,
	GenesisHash:        &testNet4GenesisHash,
	PowLimit:           testNetPowLimit,
	PowLimitBits:       0x1d00ffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: nil,

	CashAddrPrefix: "bchtest",

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	HDPrivateKeyID:         [4]byte{0x04, 0x35, 0x83, 0x94},
	HDPublicKeyID:          [4]byte{0x04, 0x35, 0x87, 0xcf},
	HDCoinType:             1,
}

// ScaleNetParams defines the network parameters for the scaling test network.
var ScaleNetParams = Params{
	Name:        "scalenet",
	Net:         0xa2e1afc3,
	DefaultPort: "38333",
	DNSSeeds: []DNSSeed{
		{"scalenet-seed-bch.bitcoinforks.org", true},
		{"seed.sbch.loping.net", true},
	},

	// Chain parameters
	GenesisBlock:       &scaleNetGenesisBlock,
	GenesisHash:        &scaleNetGenesisHash,
	PowLimit:           testNetPowLimit,
	PowLimitBits:       0x1d00ffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: nil,

	CashAddrPrefix: "bchtest",

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	HDPrivateKeyID:         [4]byte{0x04, 0x35, 0x83, 0x94},
	HDPublicKeyID:          [4]byte{0x04, 0x35, 0x87, 0xcf},
	HDCoinType:             1,
}

// RegressionNetParams defines the network parameters for the regression test
// network.  Not to be confused with the public test networks, this network is
// sometimes simply called "regtest".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         0xfabfb5da,
	DefaultPort: "18444",
	DNSSeeds:    []DNSSeed{},

	// Chain parameters
	GenesisBlock:       &regTestGenesisBlock,
	GenesisHash:        &regTestGenesisHash,
	PowLimit:           regressionPowLimit,
	PowLimitBits:       0x207fffff,
	TargetTimePerBlock: time.Minute * 10,

	Checkpoints: nil,

	CashAddrPrefix: "bchreg",

	LegacyPubKeyHashAddrID: 0x6f,
	LegacyScriptHashAddrID: 0xc4,
	HDPrivateKeyID:         [4]byte{0x04, 0x35, 0x83, 0x94},
	HDPublicKeyID:          [4]byte{0x04, 0x35, 0x87, 0xcf},
	HDCoinType:             1,
}

// GetChainParams returns the network parameters for the given network name.
func GetChainParams(network string) (*Params, error) {
	switch strings.ToLower(network) {
	case "mainnet", "main":
		return &MainNetParams, nil
	case "testnet", "testnet3":
		return &TestNet3Params, nil
	case "testnet4":
		return &TestNet4Params, nil
	case "chipnet":
		return &ChipNetParams, nil
	case "scalenet":
		return &ScaleNetParams, nil
	case "regtest", "regressionnet":
		return &RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network: %s", network)
	}
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash.  It only differs from the one available in chainhash in
// that it panics on an error since it will only (and must only) be called
// with hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}

	return hash
}
