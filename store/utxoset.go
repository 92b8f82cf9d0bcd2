package store

import (
	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// UTXO is one unspent output known to the store.
type UTXO struct {
	Outpoint     txtypes.Outpoint
	Output       txtypes.Output
	Height       uint32
	FromCoinBase bool
}

// UTXOSet tracks two disjoint partitions of outpoints, per spec.md §4.3:
// available (truly spendable) and spending (referenced by an input of some
// pending, not-yet-finalized transaction). Invariant 1 of spec.md §3: an
// outpoint is never present in both.
type UTXOSet struct {
	available map[txtypes.Outpoint]UTXO
	spending  map[txtypes.Outpoint]UTXO

	isOwn func(addr.Address) bool
}

func newUTXOSet(isOwn func(addr.Address) bool) *UTXOSet {
	return &UTXOSet{
		available: make(map[txtypes.Outpoint]UTXO),
		spending:  make(map[txtypes.Outpoint]UTXO),
		isOwn:     isOwn,
	}
}

// applyAdd implements the delta of spec.md §4.3 step 1-2 for a newly
// registered transaction.
func (u *UTXOSet) applyAdd(rec *TxRecord) {
	pending := rec.Height >= TxUnconfirmed

	for _, in := range rec.Tx.Inputs {
		if utxo, ok := u.available[in.Outpoint]; ok {
			delete(u.available, in.Outpoint)
			if pending {
				u.spending[in.Outpoint] = utxo
			}
			// If confirmed, the outpoint is simply consumed: it leaves
			// `available` and never appears in `spending`.
		}
	}

	for i, out := range rec.Tx.Outputs {
		if !u.isOwn(out.Address) {
			continue
		}
		op := txtypes.Outpoint{TxHash: rec.Hash, Index: uint16(i)}
		u.available[op] = UTXO{
			Outpoint:     op,
			Output:       out,
			Height:       rec.Height,
			FromCoinBase: rec.Tx.Type == txtypes.TypeCoinbase,
		}
	}
}

// applyRemove is the inverse delta for a removed transaction: this tx's own
// outputs are dropped from circulation, and outpoints it had consumed are
// restored to `available` iff their producing transaction still exists and
// isn't spent by anything else (the caller passes that predicate in, since
// it requires consulting the rest of the store).
func (u *UTXOSet) applyRemove(rec *TxRecord, stillProduced func(op txtypes.Outpoint) (txtypes.Output, uint32, bool, bool)) {
	for i := range rec.Tx.Outputs {
		op := txtypes.Outpoint{TxHash: rec.Hash, Index: uint16(i)}
		delete(u.available, op)
		delete(u.spending, op)
	}

	for _, in := range rec.Tx.Inputs {
		delete(u.spending, in.Outpoint)
		if out, height, fromCoinbase, ok := stillProduced(in.Outpoint); ok {
			u.available[in.Outpoint] = UTXO{
				Outpoint: in.Outpoint, Output: out, Height: height, FromCoinBase: fromCoinbase,
			}
		}
	}
}

// finalizeConfirm moves any spending entries belonging to rec's inputs to
// fully consumed (they leave `spending` with no replacement) once rec is
// known confirmed — called from Update.
func (u *UTXOSet) finalizeConfirm(rec *TxRecord) {
	for _, in := range rec.Tx.Inputs {
		delete(u.spending, in.Outpoint)
	}
}

// Balance sums amounts over every available UTXO of asset a. Strictly
// derived, per Invariant 3 of spec.md §3 — never cached here; callers that
// need a cache (the Grouped Asset Ledger) keep their own.
func (u *UTXOSet) Balance(a txtypes.AssetId) uint64 {
	var total uint64
	for _, utxo := range u.available {
		if utxo.Output.Asset == a {
			total += utxo.Output.Amount
		}
	}
	return total
}

// ForEachAvailable calls fn for every available UTXO, stopping early if fn
// returns a non-nil result that isn't the loop-break sentinel (callers
// signal early exit the way pktwallet's ForEachUnspentOutput does, via
// er.LoopBreak from the internal/er package — kept simple here as a plain
// bool return).
func (u *UTXOSet) ForEachAvailable(fn func(UTXO) bool) {
	for _, utxo := range u.available {
		if !fn(utxo) {
			return
		}
	}
}

// IsSpending reports whether op is currently referenced by a pending,
// unconfirmed transaction's input.
func (u *UTXOSet) IsSpending(op txtypes.Outpoint) bool {
	_, ok := u.spending[op]
	return ok
}
