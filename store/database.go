// Package store implements the Transaction Store and UTXO Set: the
// persistent ledger view reconstructed from — and kept in sync with — a
// Database collaborator, plus the derived available/spending outpoint maps.
//
// Grounded on pktwallet/wtxmgr's Store, adapted from that package's
// single-asset, single-chain model to this wallet's multi-asset, canonical-
// ordering, cascading-remove requirements (spec.md §4.5).
package store

import (
	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Database is the external persistence collaborator contract of spec.md
// §6. The wallet core only ever calls through this interface; how it's
// implemented (embedded KV store, remote RPC, etc.) is out of scope here.
type Database interface {
	LoadTxnByPartition(chainID string, partition Partition) ([]*txtypes.Transaction, er.R)
	LoadTxnAfter(chainID string, height uint32) ([]*txtypes.Transaction, er.R)
	LoadTxnByHash(chainID string, hash [32]byte) (*txtypes.Transaction, er.R)
	ContainsTxn(hash [32]byte) (bool, er.R)
	LoadUTXOTxn(chainID string) ([]*txtypes.Transaction, er.R)

	SaveTxn(chainID string, rec *TxRecord) er.R
	UpdateTxn(chainID string, hash [32]byte, height uint32, timestamp uint64) er.R
	DeleteTxn(chainID string, hash [32]byte) er.R
	SaveUsedAddress(chainID string, a addr.Address) er.R
}
