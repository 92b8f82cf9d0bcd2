package store

import (
	"sync"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// MemDatabase is an in-memory Database, for tests and the walletctl CLI's
// ephemeral mode. Grounded on pktwallet/wtxmgr's bucket-backed Store, but
// keyed straight off Go maps instead of a walletdb transaction.
type MemDatabase struct {
	mu sync.Mutex

	byChain map[string]map[[32]byte]*memRecord
	addrs   map[string][]addr.Address
}

type memRecord struct {
	tx        *txtypes.Transaction
	height    uint32
	timestamp uint64
	partition Partition
}

// NewMemDatabase constructs an empty in-memory Database.
func NewMemDatabase() *MemDatabase {
	return &MemDatabase{
		byChain: make(map[string]map[[32]byte]*memRecord),
		addrs:   make(map[string][]addr.Address),
	}
}

func (d *MemDatabase) chain(chainID string) map[[32]byte]*memRecord {
	m, ok := d.byChain[chainID]
	if !ok {
		m = make(map[[32]byte]*memRecord)
		d.byChain[chainID] = m
	}
	return m
}

// LoadTxnByPartition returns every transaction recorded under partition.
func (d *MemDatabase) LoadTxnByPartition(chainID string, partition Partition) ([]*txtypes.Transaction, er.R) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*txtypes.Transaction
	for _, r := range d.chain(chainID) {
		if r.partition == partition {
			out = append(out, r.tx)
		}
	}
	return out, nil
}

// LoadTxnAfter returns every transaction whose recorded height is at or
// above height; a pending transaction, saved at TxUnconfirmed, counts as
// above every height.
func (d *MemDatabase) LoadTxnAfter(chainID string, height uint32) ([]*txtypes.Transaction, er.R) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*txtypes.Transaction
	for _, r := range d.chain(chainID) {
		if r.height >= height {
			out = append(out, r.tx)
		}
	}
	return out, nil
}

// LoadTxnByHash returns the transaction recorded under hash, if any.
func (d *MemDatabase) LoadTxnByHash(chainID string, hash [32]byte) (*txtypes.Transaction, er.R) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.chain(chainID)[hash]
	if !ok {
		return nil, ErrNotFound.New("", nil)
	}
	return r.tx, nil
}

// ContainsTxn reports whether hash is recorded under any chain.
func (d *MemDatabase) ContainsTxn(hash [32]byte) (bool, er.R) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.byChain {
		if _, ok := m[hash]; ok {
			return true, nil
		}
	}
	return false, nil
}

// LoadUTXOTxn returns every transaction needed to reconstruct the UTXO Set:
// everything except unconfirmed transactions that predate the gap limit's
// window is out of scope here, so this simply returns every known
// transaction for chainID.
func (d *MemDatabase) LoadUTXOTxn(chainID string) ([]*txtypes.Transaction, er.R) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*txtypes.Transaction
	for _, r := range d.chain(chainID) {
		out = append(out, r.tx)
	}
	return out, nil
}

// SaveTxn persists rec under chainID.
func (d *MemDatabase) SaveTxn(chainID string, rec *TxRecord) er.R {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain(chainID)[rec.Hash] = &memRecord{
		tx:        rec.Tx,
		height:    rec.Height,
		timestamp: rec.ArrivalTimestamp,
		partition: rec.OriginPartition,
	}
	return nil
}

// UpdateTxn updates the height/timestamp of an already-saved transaction.
func (d *MemDatabase) UpdateTxn(chainID string, hash [32]byte, height uint32, timestamp uint64) er.R {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.chain(chainID)[hash]
	if !ok {
		return ErrNotFound.New("", nil)
	}
	r.height = height
	r.timestamp = timestamp
	if height == 0 {
		r.partition = PartitionPending
	} else if r.partition == PartitionPending {
		r.partition = PartitionConfirmed
	}
	return nil
}

// DeleteTxn removes hash from chainID's records.
func (d *MemDatabase) DeleteTxn(chainID string, hash [32]byte) er.R {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.chain(chainID), hash)
	return nil
}

// SaveUsedAddress records a appearing as used. Nothing in this module reads
// the list back.
func (d *MemDatabase) SaveUsedAddress(chainID string, a addr.Address) er.R {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs[chainID] = append(d.addrs[chainID], a)
	return nil
}
