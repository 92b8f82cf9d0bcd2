package store

import (
	"testing"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

func testAddress(b byte) addr.Address {
	var ph [addr.ProgramHashSize]byte
	ph[0] = b
	return addr.FromProgramHash(ph, addr.PrefixStandard)
}

func ownAllOf(addrs ...addr.Address) func(addr.Address) bool {
	return func(a addr.Address) bool {
		for _, want := range addrs {
			if a.Equal(want) {
				return true
			}
		}
		return false
	}
}

func coinbaseTx(outAddr addr.Address, amount uint64, nonce uint32) *txtypes.Transaction {
	return &txtypes.Transaction{
		Type:     txtypes.TypeCoinbase,
		Payload:  txtypes.PayloadCoinbase{CoinbaseData: []byte{byte(nonce)}},
		Outputs:  []txtypes.Output{{Amount: amount, Address: outAddr}},
		LockTime: nonce,
	}
}

func normalTx(inputs []txtypes.Input, outAddr addr.Address, amount uint64, nonce uint32) *txtypes.Transaction {
	return &txtypes.Transaction{
		Type:     txtypes.TypeNormal,
		Payload:  txtypes.PayloadNormal{},
		Inputs:   inputs,
		Outputs:  []txtypes.Output{{Amount: amount, Address: outAddr}},
		LockTime: nonce,
	}
}

// TestRegisterOwnOutputBecomesAvailable covers Invariant 3 of spec.md §3:
// balance is strictly the derived sum over `available`.
func TestRegisterOwnOutputBecomesAvailable(t *testing.T) {
	mine := testAddress(1)
	s := New("main", ownAllOf(mine))

	tx := coinbaseTx(mine, 5000, 1)
	rec, delta, err := s.Register(tx, 10, 100)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(delta.Added) != 1 {
		t.Fatalf("expected 1 added utxo, got %d", len(delta.Added))
	}
	if got := s.utxos.Balance(txtypes.NativeAssetId); got != 5000 {
		t.Fatalf("balance = %d, want 5000", got)
	}
	if rec.OriginPartition != PartitionCoinbase {
		t.Fatalf("expected coinbase partition, got %v", rec.OriginPartition)
	}
}

// TestSpendMovesToSpendingWhilePending covers the §4.3 delta: a pending
// transaction's consumed own-outpoint moves from available to spending, not
// away entirely, since the spend isn't yet final.
func TestSpendMovesToSpendingWhilePending(t *testing.T) {
	mine := testAddress(1)
	other := testAddress(2)
	s := New("main", ownAllOf(mine))

	funding := coinbaseTx(mine, 5000, 1)
	rec1, _, err := s.Register(funding, 10, 100)
	if err != nil {
		t.Fatalf("register funding: %v", err)
	}
	op := txtypes.Outpoint{TxHash: rec1.Hash, Index: 0}

	spend := normalTx([]txtypes.Input{{Outpoint: op}}, other, 4000, 2)
	_, _, err = s.Register(spend, TxUnconfirmed, 200)
	if err != nil {
		t.Fatalf("register spend: %v", err)
	}

	if _, ok := s.utxos.available[op]; ok {
		t.Fatalf("spent outpoint must leave available while spend is pending")
	}
	if !s.utxos.IsSpending(op) {
		t.Fatalf("spent outpoint must be tracked as spending")
	}
	// Invariant 1: never present in both partitions at once.
	if _, ok := s.utxos.available[op]; ok && s.utxos.IsSpending(op) {
		t.Fatalf("outpoint present in both available and spending")
	}
}

// TestConfirmSpendRemovesFromSpending models finalizeConfirm via Update.
func TestConfirmSpendRemovesFromSpending(t *testing.T) {
	mine := testAddress(1)
	other := testAddress(2)
	s := New("main", ownAllOf(mine))

	funding := coinbaseTx(mine, 5000, 1)
	rec1, _, _ := s.Register(funding, 10, 100)
	op := txtypes.Outpoint{TxHash: rec1.Hash, Index: 0}

	spend := normalTx([]txtypes.Input{{Outpoint: op}}, other, 4000, 2)
	recSpend, _, _ := s.Register(spend, TxUnconfirmed, 200)

	if err := s.Update([][32]byte{recSpend.Hash}, 11, 300); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.utxos.IsSpending(op) {
		t.Fatalf("confirmed spend must clear the spending entry")
	}
	if _, ok := s.utxos.available[op]; ok {
		t.Fatalf("confirmed spend must not restore the outpoint to available")
	}
}

// TestRemoveCascadesToDependents covers spec.md §4.5's cascading remove.
func TestRemoveCascadesToDependents(t *testing.T) {
	mine := testAddress(1)
	other := testAddress(2)
	s := New("main", ownAllOf(mine, other))

	funding := coinbaseTx(mine, 5000, 1)
	rec1, _, _ := s.Register(funding, 10, 100)
	op := txtypes.Outpoint{TxHash: rec1.Hash, Index: 0}

	dependent := normalTx([]txtypes.Input{{Outpoint: op}}, other, 4000, 2)
	recDep, _, err := s.Register(dependent, TxUnconfirmed, 200)
	if err != nil {
		t.Fatalf("register dependent: %v", err)
	}

	removed, _, err := s.Remove(rec1.Hash)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected cascade to remove 2 transactions, got %d: %v", len(removed), removed)
	}
	if s.Contains(rec1.Hash) || s.Contains(recDep.Hash) {
		t.Fatalf("both funding and dependent must be gone after cascade")
	}
	if _, ok := s.utxos.available[op]; ok {
		t.Fatalf("removed funding output must not remain available")
	}
}

// TestRegisterRemoveRoundTrip is the round-trip testable property of
// spec.md §8: registering then removing a transaction restores the prior
// UTXO set state exactly.
func TestRegisterRemoveRoundTrip(t *testing.T) {
	mine := testAddress(1)
	s := New("main", ownAllOf(mine))

	base := coinbaseTx(mine, 1000, 1)
	if _, _, err := s.Register(base, 5, 50); err != nil {
		t.Fatalf("register base: %v", err)
	}
	before := len(s.utxos.available)

	extra := coinbaseTx(mine, 2000, 2)
	rec, _, err := s.Register(extra, 6, 60)
	if err != nil {
		t.Fatalf("register extra: %v", err)
	}
	if _, _, err := s.Remove(rec.Hash); err != nil {
		t.Fatalf("remove extra: %v", err)
	}

	if after := len(s.utxos.available); after != before {
		t.Fatalf("available set size = %d after round trip, want %d", after, before)
	}
}

// TestDuplicateRegisterRejected covers Invariant 2: a hash is registered
// at most once.
func TestDuplicateRegisterRejected(t *testing.T) {
	mine := testAddress(1)
	s := New("main", ownAllOf(mine))
	tx := coinbaseTx(mine, 1000, 1)
	if _, _, err := s.Register(tx, 5, 50); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, _, err := s.Register(tx, 5, 50); err == nil {
		t.Fatalf("expected Duplicate on second register of identical tx")
	} else if !ErrDuplicate.Is(err) {
		t.Fatalf("wrong error code: %v", err)
	}
}

// TestAllTransactionsCanonicalOrder covers the ordering law of spec.md
// §4.5: confirmed/coinbase interleaved by height, then pending by arrival.
func TestAllTransactionsCanonicalOrder(t *testing.T) {
	mine := testAddress(1)
	s := New("main", ownAllOf(mine))

	low := coinbaseTx(mine, 1000, 1)
	high := coinbaseTx(mine, 1000, 2)
	pendingFirst := normalTx(nil, mine, 1, 3)
	pendingSecond := normalTx(nil, mine, 2, 4)

	s.Register(high, 20, 0)
	s.Register(low, 10, 0)
	s.Register(pendingSecond, TxUnconfirmed, 500)
	s.Register(pendingFirst, TxUnconfirmed, 100)

	all := s.AllTransactions()
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
	if all[0].Height != 10 || all[1].Height != 20 {
		t.Fatalf("mined records must sort by height ascending, got heights %d,%d", all[0].Height, all[1].Height)
	}
	if all[2].ArrivalTimestamp != 100 || all[3].ArrivalTimestamp != 500 {
		t.Fatalf("pending records must sort by arrival ascending, got %d,%d", all[2].ArrivalTimestamp, all[3].ArrivalTimestamp)
	}
}

// TestUnconfirmMovesBackToPending covers the height==0 convention of Update.
func TestUnconfirmMovesBackToPending(t *testing.T) {
	mine := testAddress(1)
	s := New("main", ownAllOf(mine))
	tx := coinbaseTx(mine, 1000, 1)
	rec, _, _ := s.Register(tx, 10, 100)

	if err := s.Update([][32]byte{rec.Hash}, 0, 200); err != nil {
		t.Fatalf("unconfirm: %v", err)
	}
	got, err := s.Get(rec.Hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Height != TxUnconfirmed {
		t.Fatalf("expected TxUnconfirmed after unconfirm, got %d", got.Height)
	}
}
