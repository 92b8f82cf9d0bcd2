// Package wallet implements the Wallet Core of spec.md §4.8: the single
// coordinator owning the Transaction Store, UTXO Set, Address Book, Asset
// Registry, and one Grouped Asset Ledger per asset, serialized behind one
// coarse lock with ordered, lock-free listener dispatch.
//
// Grounded on pktwallet/wallet's Wallet struct (single struct owning every
// subsystem, event-driven notification, a Loader for construction) adapted
// from btcd block-chain synchronization to this module's Database-backed,
// chain-agnostic event model.
package wallet

import (
	"encoding/base64"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/asset"
	"github.com/elastos-sidechain/spvwallet/did"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
	"github.com/elastos-sidechain/spvwallet/ledger"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txbuilder"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Err is the error family for this package.
var Err = er.NewErrorType("wallet.Err")

var (
	// ErrShutdown is returned by any operation invoked after the wallet's
	// shutdown flag has been set.
	ErrShutdown = Err.Code("Shutdown")
)

// Wallet is the Wallet Core: the sole owner of every in-memory component,
// guarded by a single lock. Listener notifications are always delivered
// after the lock is released (spec.md §5).
type Wallet struct {
	mu sync.Mutex

	chainID  string
	signer   keys.Provider
	book     *addr.Book
	assets   *asset.Registry
	txStore  *store.Store
	groups   map[txtypes.AssetId]*ledger.Group
	database store.Database

	currentHeight uint32
	feePerKB      int64
	voteLocked    map[txtypes.Outpoint]bool

	listener     Listener
	shuttingDown bool
}

// New constructs a Wallet Core over an already-derived signer and a
// persistence collaborator. nativeAssetName/precision install the Asset
// Registry's always-present native asset.
func New(chainID string, signer keys.Provider, database store.Database, nativeAssetName string, nativePrecision uint8) (*Wallet, er.R) {
	book, err := addr.NewBook(signer)
	if err != nil {
		return nil, err
	}
	w := &Wallet{
		chainID:    chainID,
		signer:     signer,
		book:       book,
		assets:     asset.NewRegistry(nativeAssetName, nativePrecision),
		database:   database,
		groups:     make(map[txtypes.AssetId]*ledger.Group),
		feePerKB:   money.DefaultFeePerKB,
		voteLocked: make(map[txtypes.Outpoint]bool),
	}
	w.txStore = store.New(chainID, w.book.Contains)
	w.groupFor(txtypes.NativeAssetId)

	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// reload replays every transaction the Database already holds for this
// chain back into the Transaction Store, reconstructing in-memory state
// after a restart. Caller must not yet have published w to other
// goroutines (called only from New, before lock discipline matters).
func (w *Wallet) reload() er.R {
	confirmed, err := w.database.LoadTxnByPartition(w.chainID, store.PartitionConfirmed)
	if err != nil {
		return err
	}
	pending, err := w.database.LoadTxnByPartition(w.chainID, store.PartitionPending)
	if err != nil {
		return err
	}
	coinbase, err := w.database.LoadTxnByPartition(w.chainID, store.PartitionCoinbase)
	if err != nil {
		return err
	}
	if len(confirmed) == 0 && len(pending) == 0 && len(coinbase) == 0 {
		return nil
	}
	if _, err := w.txStore.Replace(confirmed, pending, coinbase); err != nil {
		return err
	}
	for id := range w.groups {
		w.groups[id].Invalidate()
	}
	return nil
}

// SetListener installs l as the weak notification target, replacing any
// previous one. Pass nil to detach.
func (w *Wallet) SetListener(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = l
}

// groupFor returns (creating if necessary) the Grouped Asset Ledger for id.
// Caller must hold w.mu.
func (w *Wallet) groupFor(id txtypes.AssetId) *ledger.Group {
	g, ok := w.groups[id]
	if !ok {
		g = ledger.NewGroup(id, w.txStore.UTXOs(), w)
		w.groups[id] = g
	}
	return g
}

// --- ledger.WalletView ---

// CurrentHeight implements ledger.WalletView.
func (w *Wallet) CurrentHeight() uint32 { return w.currentHeight }

// IsVoteLocked implements ledger.WalletView.
func (w *Wallet) IsVoteLocked(op txtypes.Outpoint) bool { return w.voteLocked[op] }

// FeePerKB implements ledger.WalletView.
func (w *Wallet) FeePerKB() int64 { return w.feePerKB }

// --- txbuilder.AddressLocator ---

// PathFor implements txbuilder.AddressLocator.
func (w *Wallet) PathFor(a addr.Address) (keys.Path, bool) { return w.book.PathFor(a) }

// ChangeAddress implements txbuilder.AddressLocator.
func (w *Wallet) ChangeAddress() (addr.Address, er.R) { return w.book.ChangeAddress() }

func (w *Wallet) checkShutdown() er.R {
	if w.shuttingDown {
		return ErrShutdown.New("", nil)
	}
	return nil
}

// Shutdown sets the shutdown flag; every ingress event refused thereafter
// returns Shutdown. Pending operations already past the flag check
// complete normally (spec.md §5).
func (w *Wallet) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shuttingDown = true
}

// --- ingress events (spec.md §4.8) ---

// RegisterTx registers tx as newly observed at height (TxUnconfirmed for a
// mempool-only transaction) with the given arrival timestamp.
func (w *Wallet) RegisterTx(tx *txtypes.Transaction, height uint32, arrivalTimestamp uint64) er.R {
	w.mu.Lock()
	if err := w.checkShutdown(); err != nil {
		w.mu.Unlock()
		return err
	}

	var registeredAsset *asset.Asset
	if payload, ok := tx.Payload.(txtypes.PayloadRegisterAsset); ok && tx.Type == txtypes.TypeRegisterAsset {
		assetID := assetIDFromTx(tx)
		if !w.assets.Contains(assetID) {
			a, aerr := asset.FromRegisterAssetPayload(assetID, payload)
			if aerr == nil {
				_ = w.assets.Register(a)
				registeredAsset = &a
			}
		}
	}

	rec, delta, err := w.txStore.Register(tx, height, arrivalTimestamp)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.database.SaveTxn(w.chainID, rec); err != nil {
		w.mu.Unlock()
		return err
	}

	ob := newOutbox()
	ob.added = append(ob.added, rec)
	ob.utxoAdded = delta.Added
	ob.utxoRemoved = delta.Removed
	if registeredAsset != nil {
		ob.assetsAdded = append(ob.assetsAdded, *registeredAsset)
	}

	var usedAddrs []addr.Address
	for _, out := range tx.Outputs {
		if w.book.Contains(out.Address) {
			_ = w.book.MarkUsed(out.Address)
			if err := w.database.SaveUsedAddress(w.chainID, out.Address); err != nil {
				log.Warnf("persist used address: %v", err)
			}
			usedAddrs = append(usedAddrs, out.Address)
		}
	}
	ob.usedAddresses = usedAddrs

	w.invalidateAffected(ob, delta)

	l := w.listener
	w.mu.Unlock()

	ob.flush(l)
	return nil
}

// assetIDFromTx derives a deterministic asset id for a freshly registered
// asset from its defining transaction's hash, mirroring how an on-chain
// register-asset transaction's own hash becomes its asset id.
func assetIDFromTx(tx *txtypes.Transaction) txtypes.AssetId {
	return txtypes.AssetId(tx.Hash())
}

// UpdateTxs moves hashes to confirmed at height (or back to pending if
// height == 0), per spec.md §4.8.
func (w *Wallet) UpdateTxs(hashes [][32]byte, height uint32, timestamp uint64) er.R {
	w.mu.Lock()
	if err := w.checkShutdown(); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.txStore.Update(hashes, height, timestamp); err != nil {
		w.mu.Unlock()
		return err
	}
	for _, h := range hashes {
		if err := w.database.UpdateTxn(w.chainID, h, height, timestamp); err != nil {
			w.mu.Unlock()
			return err
		}
	}

	ob := newOutbox()
	for _, h := range hashes {
		if rec, gerr := w.txStore.Get(h); gerr == nil {
			ob.updated = append(ob.updated, rec)
		}
	}
	w.invalidateAllGroups()
	w.fillBalanceChanges(ob)

	l := w.listener
	w.mu.Unlock()

	ob.flush(l)
	return nil
}

// RemoveTx removes hash and its cascaded dependents, per spec.md §4.8.
func (w *Wallet) RemoveTx(hash [32]byte) er.R {
	w.mu.Lock()
	if err := w.checkShutdown(); err != nil {
		w.mu.Unlock()
		return err
	}
	removed, delta, err := w.txStore.Remove(hash)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, h := range removed {
		if err := w.database.DeleteTxn(w.chainID, h); err != nil {
			w.mu.Unlock()
			return err
		}
	}

	ob := newOutbox()
	ob.deleted = removed
	ob.utxoAdded = delta.Added
	ob.utxoRemoved = delta.Removed
	w.invalidateAffected(ob, delta)

	l := w.listener
	w.mu.Unlock()

	ob.flush(l)
	return nil
}

// SetBlockHeight updates the wallet's notion of chain tip, recomputing
// coinbase-maturity-gated locked balance, per spec.md §4.8.
func (w *Wallet) SetBlockHeight(height uint32) {
	w.mu.Lock()
	if w.shuttingDown {
		w.mu.Unlock()
		return
	}
	w.currentHeight = height

	ob := newOutbox()
	w.invalidateAllGroups()
	w.fillBalanceChanges(ob)

	l := w.listener
	w.mu.Unlock()

	ob.flush(l)
}

// Replace atomically reloads every partition, firing TxnReplace before any
// other notification and a single coalesced UTXOUpdated, per spec.md §4.8.
func (w *Wallet) Replace(confirmed, pending, coinbase []*txtypes.Transaction) er.R {
	w.mu.Lock()
	if err := w.checkShutdown(); err != nil {
		w.mu.Unlock()
		return err
	}
	delta, err := w.txStore.Replace(confirmed, pending, coinbase)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	// Replace overwrites the persisted record for everything the new
	// partitions still contain; a record belonging to a chain branch the
	// reorg discarded is left stale in the database until the next
	// SaveTxn/DeleteTxn touches its hash — harmless since the in-memory
	// Transaction Store (the source of truth for queries) no longer
	// references it.
	for _, rec := range w.txStore.AllTransactions() {
		if err := w.database.SaveTxn(w.chainID, rec); err != nil {
			w.mu.Unlock()
			return err
		}
	}

	ob := newOutbox()
	ob.replace = true
	ob.utxoAdded = delta.Added
	ob.utxoRemoved = delta.Removed
	ob.utxoReplace = true
	w.invalidateAllGroups()
	w.fillBalanceChanges(ob)

	l := w.listener
	w.mu.Unlock()

	ob.flush(l)
	return nil
}

func (w *Wallet) invalidateAffected(ob *outbox, delta store.Delta) {
	touched := make(map[txtypes.AssetId]bool)
	for _, u := range delta.Added {
		touched[u.Output.Asset] = true
	}
	// A removed outpoint no longer carries its asset, so any removal
	// invalidates every group.
	if len(delta.Removed) > 0 {
		for id := range w.groups {
			touched[id] = true
		}
	}
	for id := range touched {
		w.groupFor(id).Invalidate()
	}
	w.fillBalanceChangesFor(ob, touched)
}

func (w *Wallet) invalidateAllGroups() {
	for _, g := range w.groups {
		g.Invalidate()
	}
}

func (w *Wallet) fillBalanceChanges(ob *outbox) {
	all := make(map[txtypes.AssetId]bool, len(w.groups))
	for id := range w.groups {
		all[id] = true
	}
	w.fillBalanceChangesFor(ob, all)
}

func (w *Wallet) fillBalanceChangesFor(ob *outbox, ids map[txtypes.AssetId]bool) {
	for id := range ids {
		ob.balanceChanges[id] = w.groupFor(id).Balance()
	}
}

// --- public query API (spec.md §6) ---

// Balance returns the available balance of asset.
func (w *Wallet) Balance(assetID txtypes.AssetId) money.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groupFor(assetID).Balance()
}

// ReceiveAddress returns the first unused external address.
func (w *Wallet) ReceiveAddress() (addr.Address, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.book.ReceiveAddress()
}

// AllAssets lists every registered asset.
func (w *Wallet) AllAssets() []asset.Asset {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.assets.List()
}

// Asset looks up one asset by id.
func (w *Wallet) Asset(id txtypes.AssetId) (asset.Asset, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.assets.Get(id)
}

// AssetBalance is one asset's balance breakdown, per spec.md §6's
// balance_info() — a typed stand-in for the teacher's ad hoc JSON summary
// (GetBalanceInfo in the original source).
type AssetBalance struct {
	AssetID   txtypes.AssetId
	Available money.Amount
	Locked    money.Amount
}

// BalanceInfo returns the available/locked breakdown for every asset that
// has a ledger group: the native asset, plus every asset that has appeared
// in a UTXO delta or been named in a wallet call.
func (w *Wallet) BalanceInfo() []AssetBalance {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AssetBalance, 0, len(w.groups))
	for id, g := range w.groups {
		out = append(out, AssetBalance{
			AssetID:   id,
			Available: g.Balance(),
			Locked:    g.LockedBalance(),
		})
	}
	return out
}

// AllAddresses returns count consecutive addresses starting at index start
// on the external (internal=false) or change (internal=true) chain, per
// spec.md §6's all_addresses(start, count, internal).
func (w *Wallet) AllAddresses(start uint32, count int, internal bool) ([]addr.Address, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.book.AddressRange(start, count, internal)
}

// AllUTXO lists every available UTXO owned by address.
func (w *Wallet) AllUTXO(address addr.Address) []store.UTXO {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []store.UTXO
	w.txStore.UTXOs().ForEachAvailable(func(u store.UTXO) bool {
		if u.Output.Address.Equal(address) {
			out = append(out, u)
		}
		return true
	})
	return out
}

// --- build & sign (spec.md §4.7, §6) ---

// builderFor constructs a Transaction Builder bound to the group owning
// assetID. Caller must hold w.mu.
func (w *Wallet) builderFor(assetID txtypes.AssetId) *txbuilder.Builder {
	return txbuilder.NewBuilder(assetID, w.groupFor(assetID), w.signer, w.book.Contains, w)
}

// CreateTransaction builds (but does not sign) an unsigned transaction per
// the given request.
func (w *Wallet) CreateTransaction(assetID txtypes.AssetId, req txbuilder.Request) (*txtypes.Transaction, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return nil, err
	}
	return w.builderFor(assetID).CreateTx(req)
}

// Consolidate builds a transaction spending every own UTXO of assetID into
// one fresh receive-address output, per spec.md §4.6.
func (w *Wallet) Consolidate(memo string, assetID txtypes.AssetId) (*txtypes.Transaction, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return nil, err
	}
	dest, err := w.book.ReceiveAddress()
	if err != nil {
		return nil, err
	}
	return w.builderFor(assetID).CreateTx(txbuilder.Request{
		Type:             txtypes.TypeNormal,
		Payload:          txtypes.PayloadNormal{},
		Outputs:          []txbuilder.OutputRequest{{Address: dest}},
		Memo:             memo,
		Max:              true,
		AllowVoteConsume: true,
	})
}

// SignTransaction fills in every program slot's signature.
func (w *Wallet) SignTransaction(assetID txtypes.AssetId, tx *txtypes.Transaction, password []byte) er.R {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builderFor(assetID).Sign(tx, password)
}

// CreateDIDTransaction assembles a DID document via the Identity Builder
// and wraps it into an unsigned did transaction, per spec.md §4.9 step 10.
func (w *Wallet) CreateDIDTransaction(desc did.Descriptor, memo string, password []byte) (*txtypes.Transaction, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return nil, err
	}

	builder := did.NewBuilder(w.signer, nil)
	info, idAddr, err := builder.Build(desc, password)
	if err != nil {
		return nil, err
	}
	docBytes, merr := info.Serialize()
	if merr != nil {
		return nil, er.E(merr)
	}

	return w.builderFor(txtypes.NativeAssetId).CreateTx(txbuilder.Request{
		Type:    txtypes.TypeDID,
		Payload: txtypes.PayloadDID{DIDInfoJSON: docBytes},
		Outputs: []txbuilder.OutputRequest{{Address: idAddr, Amount: money.Zero}},
		Memo:    memo,
	})
}

// Vote builds a self-send transaction carrying vote content, locking the
// wallet's available native-asset balance behind it, per spec.md §6's
// vote(content, memo, max). max additionally allows the selection to sweep
// UTXOs already locked by a standing vote (a full re-vote); without it,
// standing votes are left untouched. Contents with no candidate or a zero
// weight are invalid and are returned separately rather than included,
// mirroring the teacher's droppedVotes out-parameter (Wallet.h's
// VoteContentArray &droppedVotes).
func (w *Wallet) Vote(content []txtypes.VoteContent, memo string, max bool) (*txtypes.Transaction, []txtypes.VoteContent, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return nil, nil, err
	}

	var kept, dropped []txtypes.VoteContent
	for _, c := range content {
		if len(c.Candidate) == 0 || c.Weight == 0 {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, dropped, txtypes.ErrInvalidPayload.New("no valid vote contents", nil)
	}

	dest, err := w.book.ReceiveAddress()
	if err != nil {
		return nil, dropped, err
	}
	tx, err := w.builderFor(txtypes.NativeAssetId).CreateTx(txbuilder.Request{
		Type:             txtypes.TypeVote,
		Payload:          txtypes.PayloadVote{Contents: kept},
		Outputs:          []txbuilder.OutputRequest{{Address: dest}},
		Memo:             memo,
		Max:              true,
		AllowVoteConsume: max,
	})
	if err != nil {
		return nil, dropped, err
	}
	return tx, dropped, nil
}

// CreateRetrieveTransaction builds an unsigned transaction of txType
// carrying payload that pays amount to a fresh receive address, per
// spec.md §6's create_retrieve_transaction(...) — grounded on Wallet.h's
// CreateRetrieveTransaction(type, payload, amount, fromAddress, memo).
// fromAddress is passed on as the request's FromAddress, which CreateTx
// does not read: inputs are selected from every eligible native-asset
// UTXO, not only from those at fromAddress.
func (w *Wallet) CreateRetrieveTransaction(txType txtypes.Type, payload txtypes.Payload, amount money.Amount, fromAddress addr.Address, memo string) (*txtypes.Transaction, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return nil, err
	}
	dest, err := w.book.ReceiveAddress()
	if err != nil {
		return nil, err
	}
	return w.builderFor(txtypes.NativeAssetId).CreateTx(txbuilder.Request{
		Type:        txType,
		Payload:     payload,
		FromAddress: &fromAddress,
		Outputs:     []txbuilder.OutputRequest{{Address: dest, Amount: amount}},
		Memo:        memo,
	})
}

// SignWithDID signs msg with didAddr's key, returning a base64 signature,
// per spec.md §6's sign_with_did(did, msg, password) — grounded on
// Wallet.h's SignWithDID and on did.Builder's own signWithDID helper, whose
// digest convention (double-SHA256 of msg) this reuses.
func (w *Wallet) SignWithDID(didAddr addr.Address, msg []byte, password []byte) (string, er.R) {
	digest := chainhash.DoubleHashB(msg)
	return w.signDigestWithDID(didAddr, digest, password)
}

// SignDigestWithDID signs a pre-computed 32-byte digest with didAddr's key,
// per spec.md §6's sign_digest_with_did(did, digest, password).
func (w *Wallet) SignDigestWithDID(didAddr addr.Address, digest [32]byte, password []byte) (string, er.R) {
	return w.signDigestWithDID(didAddr, digest[:], password)
}

func (w *Wallet) signDigestWithDID(didAddr addr.Address, digest []byte, password []byte) (string, er.R) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkShutdown(); err != nil {
		return "", err
	}
	own, ok := w.book.Special(keys.SpecialDID)
	if !ok || !own.Equal(didAddr) {
		return "", keys.ErrMissingKey.New("did address is not this wallet's identity address", nil)
	}
	var d [32]byte
	copy(d[:], digest)
	sig, err := w.signer.Sign(keys.Path{Special: keys.SpecialDID}, d, password)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks an ECDSA signature over msg using pubkey, per
// spec.md §6's verify_signature(pubkey, msg, sig); a thin wrapper so the
// public wallet API exposes it alongside the other sign/verify operations
// instead of requiring callers to reach into package keys directly.
func (w *Wallet) VerifySignature(pubkey *btcec.PublicKey, msg []byte, sig []byte) (bool, er.R) {
	return keys.VerifySignature(pubkey, msg, sig)
}
