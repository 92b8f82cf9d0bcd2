package ledger

import (
	"testing"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

type fixedView struct {
	height   uint32
	feePerKB int64
	locked   map[txtypes.Outpoint]bool
}

func (v fixedView) CurrentHeight() uint32 { return v.height }
func (v fixedView) IsVoteLocked(op txtypes.Outpoint) bool {
	return v.locked != nil && v.locked[op]
}
func (v fixedView) FeePerKB() int64 { return v.feePerKB }

func testAddr(b byte) addr.Address {
	var ph [addr.ProgramHashSize]byte
	ph[0] = b
	return addr.FromProgramHash(ph, addr.PrefixStandard)
}

func ownAddr(a addr.Address) func(addr.Address) bool {
	return func(b addr.Address) bool { return a.Equal(b) }
}

// buildGroup funds a fresh Store with one confirmed, non-coinbase
// transaction per amount so every output lands in the UTXO Set's available
// partition as an ordinary spendable coin.
func buildGroup(t *testing.T, amounts []uint64, height uint32, feePerKB int64) (*Group, *store.Store) {
	t.Helper()
	mine := testAddr(7)
	s := store.New("main", ownAddr(mine))
	for i, amt := range amounts {
		tx := &txtypes.Transaction{
			Type:     txtypes.TypeNormal,
			Payload:  txtypes.PayloadNormal{},
			Outputs:  []txtypes.Output{{Amount: amt, Address: mine, Asset: txtypes.NativeAssetId}},
			LockTime: uint32(i + 1),
		}
		if _, _, err := s.Register(tx, 1, uint64(i)); err != nil {
			t.Fatalf("fund utxo %d: %v", i, err)
		}
	}
	view := fixedView{height: height, feePerKB: feePerKB}
	return NewGroup(txtypes.NativeAssetId, s.UTXOs(), view), s
}

func TestSelectCoversTargetPlusFee(t *testing.T) {
	g, _ := buildGroup(t, []uint64{1_000_000, 2_000_000, 5_000_000}, 10, money.DefaultFeePerKB)
	target := money.MustAmount(3_000_000)
	sel, err := g.Select(target, 1, 10, false)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var sum money.Amount
	for _, u := range sel.Inputs {
		amt := money.MustAmount(int64(u.Output.Amount))
		sum, _ = sum.Add(amt)
	}
	total, _ := target.Add(sel.Fee)
	total, _ = total.Add(sel.Change)
	if sum.Cmp(total) != 0 {
		t.Fatalf("inputs %s != target+fee+change %s", sum.String(), total.String())
	}
}

func TestSelectInsufficientFunds(t *testing.T) {
	g, _ := buildGroup(t, []uint64{1000}, 10, money.DefaultFeePerKB)
	target := money.MustAmount(1_000_000_000)
	_, err := g.Select(target, 1, 10, false)
	if err == nil || !ErrInsufficientFunds.Is(err) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestImmatureCoinbaseExcluded(t *testing.T) {
	mine := testAddr(7)
	s := store.New("main", ownAddr(mine))
	tx := &txtypes.Transaction{
		Type:    txtypes.TypeCoinbase,
		Payload: txtypes.PayloadCoinbase{CoinbaseData: []byte{1}},
		Outputs: []txtypes.Output{{Amount: 5_000_000, Address: mine, Asset: txtypes.NativeAssetId}},
	}
	if _, _, err := s.Register(tx, 100, 0); err != nil {
		t.Fatalf("register coinbase: %v", err)
	}

	view := fixedView{height: 150, feePerKB: money.DefaultFeePerKB}
	g := NewGroup(txtypes.NativeAssetId, s.UTXOs(), view)
	if g.Balance().Cmp(money.MustAmount(5_000_000)) != 0 {
		t.Fatalf("balance should still count immature coinbase as available")
	}
	_, err := g.Select(money.MustAmount(1_000_000), 1, 10, false)
	if err == nil || !ErrInsufficientFunds.Is(err) {
		t.Fatalf("expected immature coinbase to be unselectable, got %v", err)
	}
}

func TestConsolidateSelectsEverything(t *testing.T) {
	g, _ := buildGroup(t, []uint64{1_000_000, 2_000_000, 3_000_000}, 10, money.DefaultFeePerKB)
	sel, err := g.Consolidate(10, true)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(sel.Inputs) != 3 {
		t.Fatalf("expected all 3 utxos consolidated, got %d", len(sel.Inputs))
	}
}
