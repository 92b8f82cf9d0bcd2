package wallet

import (
	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/asset"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Listener receives Wallet Core notifications. The Wallet holds only a weak
// (non-owning) reference: a nil Listener is valid and simply means nobody is
// watching (spec.md §5's shared-resource policy).
//
// Every method is called with the wallet's lock already released, per
// spec.md §5's "listener callbacks MUST run without holding the lock" rule.
type Listener interface {
	OnTxnReplace()
	OnTxAdded(rec *store.TxRecord)
	OnTxUpdated(recs []*store.TxRecord)
	OnTxDeleted(hash [32]byte)
	OnUTXOUpdated(added []store.UTXO, removed []txtypes.Outpoint, replace bool)
	OnUsedAddressAdded(a addr.Address)
	OnAssetRegistered(a asset.Asset)
	OnBalanceChanged(assetID txtypes.AssetId, balance money.Amount)
}

// outbox accumulates one ingress event's notifications in the fixed
// dispatch order required by spec.md §5:
//
//	TxnReplace > TxAdded/TxUpdated/TxDeleted > UTXOUpdated > UsedAddress* >
//	AssetRegistered > BalanceChanged
type outbox struct {
	replace        bool
	added          []*store.TxRecord
	updated        []*store.TxRecord
	deleted        [][32]byte
	utxoAdded      []store.UTXO
	utxoRemoved    []txtypes.Outpoint
	utxoReplace    bool
	usedAddresses  []addr.Address
	assetsAdded    []asset.Asset
	balanceChanges map[txtypes.AssetId]money.Amount
}

func newOutbox() *outbox {
	return &outbox{balanceChanges: make(map[txtypes.AssetId]money.Amount)}
}

// flush delivers every accumulated notification to l, in order, then
// discards the outbox. Called with the wallet lock already released.
func (o *outbox) flush(l Listener) {
	if l == nil {
		return
	}
	if o.replace {
		l.OnTxnReplace()
	}
	for _, rec := range o.added {
		l.OnTxAdded(rec)
	}
	if len(o.updated) > 0 {
		l.OnTxUpdated(o.updated)
	}
	for _, h := range o.deleted {
		l.OnTxDeleted(h)
	}
	if len(o.utxoAdded) > 0 || len(o.utxoRemoved) > 0 || o.utxoReplace {
		l.OnUTXOUpdated(o.utxoAdded, o.utxoRemoved, o.utxoReplace)
	}
	for _, a := range o.usedAddresses {
		l.OnUsedAddressAdded(a)
	}
	for _, a := range o.assetsAdded {
		l.OnAssetRegistered(a)
	}
	for assetID, bal := range o.balanceChanges {
		l.OnBalanceChanged(assetID, bal)
	}
}
