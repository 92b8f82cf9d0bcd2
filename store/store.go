package store

import (
	"sort"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Err is the error family for this package.
var Err = er.NewErrorType("store.Err")

var (
	// ErrDuplicate is returned by Register when the hash already exists.
	ErrDuplicate = Err.Code("Duplicate")
	// ErrNotFound is returned by lookups that miss.
	ErrNotFound = Err.Code("NotFound")
	// ErrInvariantViolated flags a broken internal contract; fatal per
	// spec.md §7.
	ErrInvariantViolated = Err.Code("InvariantViolated")
)

// Delta summarizes the UTXO-set change produced by one store mutation, for
// the Wallet Core to turn into a UTXOUpdated notification.
type Delta struct {
	Added   []UTXO
	Removed []txtypes.Outpoint
}

// Store is the Transaction Store: all known transactions by hash,
// partitioned by state, plus the UTXO Set it derives. Not internally
// synchronized — the Wallet Core serializes all access under its single
// coarse lock (spec.md §5, §9).
//
// NOT goroutine-safe on its own; see wallet.Wallet.
type Store struct {
	chainID string
	records map[[32]byte]*TxRecord
	utxos   *UTXOSet
}

// New constructs an empty store for one sub-chain. isOwn classifies output
// addresses as belonging to this wallet's Address Book.
func New(chainID string, isOwn func(addr.Address) bool) *Store {
	return &Store{
		chainID: chainID,
		records: make(map[[32]byte]*TxRecord),
		utxos:   newUTXOSet(isOwn),
	}
}

// UTXOs exposes the derived UTXO Set for read access (balance queries,
// selection).
func (s *Store) UTXOs() *UTXOSet { return s.utxos }

// Register inserts tx as a new TxRecord, rejecting a duplicate hash, and
// recomputes the UTXO delta. Per spec.md §4.5.
func (s *Store) Register(tx *txtypes.Transaction, height uint32, arrivalTimestamp uint64) (*TxRecord, Delta, er.R) {
	hash := tx.Hash()
	if _, ok := s.records[hash]; ok {
		return nil, Delta{}, ErrDuplicate.New("transaction hash already registered", nil)
	}
	rec := &TxRecord{
		Tx:               tx,
		Hash:             hash,
		Height:           height,
		ArrivalTimestamp: arrivalTimestamp,
	}
	rec.OriginPartition = rec.partitionFor()
	s.records[hash] = rec

	var wasAvailable []txtypes.Outpoint
	for _, in := range tx.Inputs {
		if _, ok := s.utxos.available[in.Outpoint]; ok {
			wasAvailable = append(wasAvailable, in.Outpoint)
		}
	}
	s.utxos.applyAdd(rec)
	delta := s.diffAfterAdd(rec, wasAvailable)
	return rec, delta, nil
}

// diffAfterAdd recomputes which outpoints were added/removed by the most
// recent applyAdd call, by re-deriving from rec directly rather than
// diffing full maps (cheap: rec's own input/output count bounds the work).
// wasAvailable lists rec's inputs that were available before that call.
func (s *Store) diffAfterAdd(rec *TxRecord, wasAvailable []txtypes.Outpoint) Delta {
	var d Delta
	for i := range rec.Tx.Outputs {
		op := txtypes.Outpoint{TxHash: rec.Hash, Index: uint16(i)}
		if u, ok := s.utxos.available[op]; ok {
			d.Added = append(d.Added, u)
		}
	}
	for _, op := range wasAvailable {
		if _, stillAvailable := s.utxos.available[op]; !stillAvailable {
			d.Removed = append(d.Removed, op)
		}
	}
	return d
}

// Remove deletes hash and every descendant transaction (one whose inputs
// reference an output of hash or of any other removed transaction),
// cascading per spec.md §4.5. Returns every removed hash in removal order
// and the resulting UTXO delta.
func (s *Store) Remove(hash [32]byte) ([][32]byte, Delta, er.R) {
	rec, ok := s.records[hash]
	if !ok {
		return nil, Delta{}, ErrNotFound.New("", nil)
	}

	toRemove := []*TxRecord{rec}
	removedSet := map[[32]byte]bool{hash: true}

	// Breadth-first cascade: find every remaining record whose input
	// spends an output of something already queued for removal.
	for i := 0; i < len(toRemove); i++ {
		cur := toRemove[i]
		for _, other := range s.records {
			if removedSet[other.Hash] {
				continue
			}
			for _, in := range other.Tx.Inputs {
				if in.Outpoint.TxHash == cur.Hash {
					toRemove = append(toRemove, other)
					removedSet[other.Hash] = true
					break
				}
			}
		}
	}

	var delta Delta
	var removedHashes [][32]byte
	// Remove leaves-first (reverse of discovery order) so stillProduced
	// lookups below never see an already-deleted producer out of order.
	for i := len(toRemove) - 1; i >= 0; i-- {
		r := toRemove[i]
		delete(s.records, r.Hash)
		s.utxos.applyRemove(r, s.stillProduced)
		removedHashes = append(removedHashes, r.Hash)
	}
	// Recompute delta.Removed/Added by diffing is more complex than the
	// add path since many records changed; a conservative summary lists
	// every outpoint this cascade touched.
	for _, r := range toRemove {
		for i := range r.Tx.Outputs {
			delta.Removed = append(delta.Removed, txtypes.Outpoint{TxHash: r.Hash, Index: uint16(i)})
		}
	}
	for _, r := range toRemove {
		for _, in := range r.Tx.Inputs {
			if u, ok := s.utxos.available[in.Outpoint]; ok {
				delta.Added = append(delta.Added, u)
			}
		}
	}

	return removedHashes, delta, nil
}

func (s *Store) stillProduced(op txtypes.Outpoint) (txtypes.Output, uint32, bool, bool) {
	rec, ok := s.records[op.TxHash]
	if !ok || int(op.Index) >= len(rec.Tx.Outputs) {
		return txtypes.Output{}, 0, false, false
	}
	// If any remaining transaction still consumes this outpoint, it's not
	// free to return to `available`.
	for _, other := range s.records {
		for _, in := range other.Tx.Inputs {
			if in.Outpoint == op {
				return txtypes.Output{}, 0, false, false
			}
		}
	}
	return rec.Tx.Outputs[op.Index], rec.Height, rec.Tx.Type == txtypes.TypeCoinbase, true
}

// Update moves every hash in hashes from pending to confirmed at height,
// updating timestamp. height == 0 means "unconfirm" (move back to pending),
// per spec.md §4.5.
func (s *Store) Update(hashes [][32]byte, height uint32, timestamp uint64) er.R {
	for _, h := range hashes {
		rec, ok := s.records[h]
		if !ok {
			return ErrNotFound.New("", nil)
		}
		if height == 0 {
			rec.Height = TxUnconfirmed
		} else {
			rec.Height = height
			s.utxos.finalizeConfirm(rec)
		}
		rec.ArrivalTimestamp = timestamp
		rec.OriginPartition = rec.partitionFor()
	}
	return nil
}

// UnconfirmedBefore returns every pending transaction, plus every confirmed
// transaction recorded at a block height below height (a reorg cutoff, per
// spec.md §4.5's reorg-support operation).
func (s *Store) UnconfirmedBefore(height uint32) []*TxRecord {
	var out []*TxRecord
	for _, rec := range s.records {
		if rec.Height >= TxUnconfirmed || uint64(rec.Height) < uint64(height) {
			out = append(out, rec)
		}
	}
	return out
}

// Get returns the record for hash, or NotFound.
func (s *Store) Get(hash [32]byte) (*TxRecord, er.R) {
	rec, ok := s.records[hash]
	if !ok {
		return nil, ErrNotFound.New("", nil)
	}
	return rec, nil
}

// Contains reports whether hash is known to the store.
func (s *Store) Contains(hash [32]byte) bool {
	_, ok := s.records[hash]
	return ok
}

// AllTransactions yields every known transaction in the canonical ordering
// of spec.md §4.5: confirmed and coinbase interleaved by height, then
// pending by arrival.
func (s *Store) AllTransactions() []*TxRecord {
	var mined, pending []*TxRecord
	for _, rec := range s.records {
		if rec.Height >= TxUnconfirmed {
			pending = append(pending, rec)
		} else {
			mined = append(mined, rec)
		}
	}
	sort.Slice(mined, func(i, j int) bool {
		if mined[i].Height != mined[j].Height {
			return mined[i].Height < mined[j].Height
		}
		return mined[i].ArrivalTimestamp < mined[j].ArrivalTimestamp
	})
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ArrivalTimestamp < pending[j].ArrivalTimestamp
	})
	return append(mined, pending...)
}

// Replace atomically discards every known record and reloads from the three
// given partitions, per spec.md §4.8's Replace event. Returns the single
// coalesced delta.
func (s *Store) Replace(confirmed, pending, coinbase []*txtypes.Transaction) (Delta, er.R) {
	s.records = make(map[[32]byte]*TxRecord)
	// Reset in place: the Grouped Asset Ledgers hold this same *UTXOSet.
	*s.utxos = *newUTXOSet(s.utxos.isOwn)

	var delta Delta
	load := func(txs []*txtypes.Transaction, height func(*txtypes.Transaction) uint32) er.R {
		for _, tx := range txs {
			h := tx.Hash()
			if _, ok := s.records[h]; ok {
				return ErrInvariantViolated.New("duplicate hash across replace partitions", nil)
			}
			rec := &TxRecord{Tx: tx, Hash: h, Height: height(tx)}
			rec.OriginPartition = rec.partitionFor()
			s.records[h] = rec
			s.utxos.applyAdd(rec)
		}
		return nil
	}
	if err := load(confirmed, func(*txtypes.Transaction) uint32 { return 0 }); err != nil {
		return Delta{}, err
	}
	if err := load(coinbase, func(*txtypes.Transaction) uint32 { return 0 }); err != nil {
		return Delta{}, err
	}
	if err := load(pending, func(*txtypes.Transaction) uint32 { return TxUnconfirmed }); err != nil {
		return Delta{}, err
	}
	for _, u := range s.utxos.available {
		delta.Added = append(delta.Added, u)
	}
	return delta, nil
}
