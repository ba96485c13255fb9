// Package wallet implements a watch-only wallet fed by chain events. It
// tracks pay-to-public-key-hash outputs for a set of watched addresses,
// either added explicitly or derived from an extended public key, and rolls
// its state back when the chain reorganizes.
package wallet

import (
	"encoding/binary"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/greatroar/blobloom"
	"github.com/libsv/go-bk/bip32"
	"github.com/libsv/go-bk/crypto"

	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/model"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
	"github.com/samrock5000/nakamoto-cash/util/cashaddr"
)

const (
	defaultGapLimit = 20

	// receiveChain and changeChain are the BIP44 chain indices watched for
	// a derived wallet.
	receiveChain = 0
	changeChain  = 1

	// bloomCapacity sizes the script pre-filter. False positives only cost
	// a map lookup.
	bloomCapacity = 1 << 16
)

// Outpoint identifies a transaction output.
type Outpoint struct {
	TxID chainhash.Hash
	Vout uint32
}

// UTXO is an unspent output paying to a watched address.
type UTXO struct {
	Outpoint Outpoint
	Value    uint64
	Address  string

	// Block is the hash of the block that created the output, used to undo
	// the output when that block is disconnected.
	Block chainhash.Hash
}

// spentRecord journals a spend so a reorg can restore the output.
type spentRecord struct {
	utxo  UTXO
	block chainhash.Hash
}

// watchedScript is one address under watch.
type watchedScript struct {
	address string
	chain   uint32
	index   uint32
	derived bool
}

// Wallet consumes chain events and maintains the balance of its watched
// addresses. All exported methods are safe for concurrent use.
type Wallet struct {
	mu sync.RWMutex

	logger   ulogger.Logger
	settings *settings.Settings

	key      *bip32.ExtendedKey
	gapLimit uint32

	// watched maps a 20-byte public key hash to its address record.
	watched map[string]*watchedScript
	filter  *blobloom.Filter

	// lastUsed tracks the highest derived index seen in a block, per chain.
	lastUsed    map[uint32]uint32
	anyUsed     map[uint32]bool
	nextDerived map[uint32]uint32

	utxos map[Outpoint]*UTXO
	spent []spentRecord

	tipHeight uint32
}

// New creates a wallet from the wallet settings. When an xpub is configured
// the receive and change chains are derived ahead up to the gap limit.
func New(logger ulogger.Logger, tSettings *settings.Settings) (*Wallet, error) {
	gapLimit := uint32(defaultGapLimit)
	if tSettings.Wallet.GapLimit > 0 {
		gapLimit = uint32(tSettings.Wallet.GapLimit)
	}

	w := &Wallet{
		logger:      logger,
		settings:    tSettings,
		gapLimit:    gapLimit,
		watched:     make(map[string]*watchedScript),
		filter:      blobloom.NewOptimized(blobloom.Config{Capacity: bloomCapacity, FPRate: 1e-4}),
		lastUsed:    make(map[uint32]uint32),
		anyUsed:     make(map[uint32]bool),
		nextDerived: make(map[uint32]uint32),
		utxos:       make(map[Outpoint]*UTXO),
	}

	if xpub := tSettings.Wallet.XPub; xpub != "" {
		key, err := bip32.NewKeyFromString(xpub)
		if err != nil {
			return nil, errors.NewConfigurationError("cannot parse wallet xpub", err)
		}

		if key.IsPrivate() {
			return nil, errors.NewConfigurationError("wallet key must be an extended public key")
		}

		w.key = key

		w.mu.Lock()
		defer w.mu.Unlock()

		if err := w.deriveAhead(receiveChain); err != nil {
			return nil, err
		}

		if err := w.deriveAhead(changeChain); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// bloomKey folds a public key hash into the filter's 64-bit key space.
func bloomKey(pkHash []byte) uint64 {
	sum := crypto.Sha256(pkHash)
	return binary.LittleEndian.Uint64(sum[:8])
}

// deriveAhead extends the given chain so gapLimit unused addresses exist
// beyond the highest used index. Caller holds the lock.
func (w *Wallet) deriveAhead(chain uint32) error {
	if w.key == nil {
		return nil
	}

	target := w.gapLimit
	if w.anyUsed[chain] {
		target = w.lastUsed[chain] + 1 + w.gapLimit
	}

	chainKey, err := w.key.Child(chain)
	if err != nil {
		return errors.NewProcessingError("cannot derive chain %d", chain, err)
	}

	for i := w.nextDerived[chain]; i < target; i++ {
		childKey, err := chainKey.Child(i)
		if err != nil {
			return errors.NewProcessingError("cannot derive child %d/%d", chain, i, err)
		}

		pubKey, err := childKey.ECPubKey()
		if err != nil {
			return errors.NewProcessingError("cannot extract public key %d/%d", chain, i, err)
		}

		pkHash := crypto.Hash160(pubKey.SerialiseCompressed())

		address, err := cashaddr.Encode(w.settings.ChainCfgParams.CashAddrPrefix, cashaddr.TypeP2PKH, pkHash)
		if err != nil {
			return err
		}

		w.watched[string(pkHash)] = &watchedScript{
			address: address,
			chain:   chain,
			index:   i,
			derived: true,
		}
		w.filter.Add(bloomKey(pkHash))
	}

	if target > w.nextDerived[chain] {
		w.nextDerived[chain] = target
	}

	return nil
}

// WatchAddress adds an explicit address to the watch set.
func (w *Wallet) WatchAddress(address string) error {
	addrType, pkHash, err := cashaddr.Decode(address, w.settings.ChainCfgParams.CashAddrPrefix)
	if err != nil {
		return err
	}

	if addrType != cashaddr.TypeP2PKH || len(pkHash) != 20 {
		return errors.NewInvalidArgumentError("only 20-byte P2PKH addresses can be watched")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[string(pkHash)]; ok {
		return nil
	}

	w.watched[string(pkHash)] = &watchedScript{address: address}
	w.filter.Add(bloomKey(pkHash))

	return nil
}

// Addresses returns every watched address.
func (w *Wallet) Addresses() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	addresses := make([]string, 0, len(w.watched))
	for _, ws := range w.watched {
		addresses = append(addresses, ws.address)
	}

	return addresses
}

// ReceiveAddress returns the first unused derived receive address, or an
// error when the wallet has no xpub configured.
func (w *Wallet) ReceiveAddress() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.key == nil {
		return "", errors.NewConfigurationError("wallet has no extended public key")
	}

	index := uint32(0)
	if w.anyUsed[receiveChain] {
		index = w.lastUsed[receiveChain] + 1
	}

	for _, ws := range w.watched {
		if ws.derived && ws.chain == receiveChain && ws.index == index {
			return ws.address, nil
		}
	}

	return "", errors.NewProcessingError("receive address %d not derived", index)
}

// Balance returns the sum of all unspent watched outputs.
func (w *Wallet) Balance() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var balance uint64
	for _, u := range w.utxos {
		balance += u.Value
	}

	return balance
}

// UTXOs returns the current unspent outputs.
func (w *Wallet) UTXOs() []UTXO {
	w.mu.RLock()
	defer w.mu.RUnlock()

	utxos := make([]UTXO, 0, len(w.utxos))
	for _, u := range w.utxos {
		utxos = append(utxos, *u)
	}

	return utxos
}

// TipHeight returns the last tip height reported by the chain.
func (w *Wallet) TipHeight() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.tipHeight
}

// extractP2PKHHash returns the 20-byte hash of a canonical P2PKH locking
// script, or nil.
func extractP2PKHHash(script []byte) []byte {
	// OP_DUP OP_HASH160 <20> ... OP_EQUALVERIFY OP_CHECKSIG
	if len(script) != 25 {
		return nil
	}

	if script[0] != 0x76 || script[1] != 0xa9 || script[2] != 0x14 ||
		script[23] != 0x88 || script[24] != 0xac {
		return nil
	}

	return script[3:23]
}

// OnBlockConnected scans the block for spends of tracked outputs and for new
// outputs paying to watched addresses.
func (w *Wallet) OnBlockConnected(header *model.BlockHeader, block *wire.MsgBlock) {
	if block == nil {
		return
	}

	blockHash := *header.Hash()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tx := range block.Transactions {
		txid := tx.TxHash()

		for _, in := range tx.TxIn {
			op := Outpoint{TxID: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}

			u, ok := w.utxos[op]
			if !ok {
				continue
			}

			delete(w.utxos, op)
			w.spent = append(w.spent, spentRecord{utxo: *u, block: blockHash})

			w.logger.Debugf("[Wallet] spent %d sat from %s in %s", u.Value, u.Address, txid)
		}

		for vout, out := range tx.TxOut {
			pkHash := extractP2PKHHash(out.PkScript)
			if pkHash == nil {
				continue
			}

			if !w.filter.Has(bloomKey(pkHash)) {
				continue
			}

			ws, ok := w.watched[string(pkHash)]
			if !ok {
				continue
			}

			op := Outpoint{TxID: txid, Vout: uint32(vout)}
			w.utxos[op] = &UTXO{
				Outpoint: op,
				Value:    uint64(out.Value),
				Address:  ws.address,
				Block:    blockHash,
			}

			w.logger.Debugf("[Wallet] received %d sat to %s in %s", out.Value, ws.address, txid)

			w.markUsed(ws)
		}
	}
}

// markUsed records a derived address as used and keeps the gap limit ahead
// of it. Caller holds the lock.
func (w *Wallet) markUsed(ws *watchedScript) {
	if !ws.derived {
		return
	}

	if w.anyUsed[ws.chain] && ws.index <= w.lastUsed[ws.chain] {
		return
	}

	w.lastUsed[ws.chain] = ws.index
	w.anyUsed[ws.chain] = true

	if err := w.deriveAhead(ws.chain); err != nil {
		w.logger.Errorf("[Wallet] cannot extend chain %d: %v", ws.chain, err)
	}
}

// OnReorg undoes the effects of the disconnected blocks: outputs they
// created are dropped and outputs they spent are restored. The newly
// connected branch's blocks arrive through OnBlockConnected afterwards.
func (w *Wallet) OnReorg(disconnected, connected []*model.BlockHeader) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, header := range disconnected {
		blockHash := *header.Hash()

		// Restore spends first so an output both created and spent in this
		// block is dropped by the create pass below.
		kept := w.spent[:0]

		for _, record := range w.spent {
			if record.block == blockHash {
				restored := record.utxo
				w.utxos[restored.Outpoint] = &restored

				continue
			}

			kept = append(kept, record)
		}

		w.spent = kept

		for op, u := range w.utxos {
			if u.Block == blockHash {
				delete(w.utxos, op)
			}
		}
	}

	w.logger.Infof("[Wallet] rolled back %d blocks, %d headers reconnect", len(disconnected), len(connected))
}

// OnTipChanged records the new tip height.
func (w *Wallet) OnTipChanged(_, _ *model.BlockHeader, newHeight uint32) {
	w.mu.Lock()
	w.tipHeight = newHeight
	w.mu.Unlock()
}
