package store

import (
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Partition names the three buckets a TxRecord can live in, per spec.md §3.
type Partition uint8

const (
	PartitionConfirmed Partition = iota
	PartitionPending
	PartitionCoinbase
)

// TxUnconfirmed is the height sentinel for a transaction with no known
// confirming block (spec.md §3: "TX_UNCONFIRMED = INT32_MAX").
const TxUnconfirmed uint32 = 0x7fffffff

// TxRecord is one transaction as tracked by the store.
type TxRecord struct {
	Tx               *txtypes.Transaction
	Hash             [32]byte
	Height           uint32
	ArrivalTimestamp uint64
	OriginPartition  Partition
}

func (r *TxRecord) partitionFor() Partition {
	if r.Tx.Type == txtypes.TypeCoinbase && r.Height < TxUnconfirmed {
		return PartitionCoinbase
	}
	if r.Height >= TxUnconfirmed {
		return PartitionPending
	}
	return PartitionConfirmed
}
