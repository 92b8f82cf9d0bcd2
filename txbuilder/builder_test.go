package txbuilder

import (
	"testing"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
	"github.com/elastos-sidechain/spvwallet/ledger"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

func testAddr(b byte) addr.Address {
	var ph [addr.ProgramHashSize]byte
	ph[0] = b
	return addr.FromProgramHash(ph, addr.PrefixStandard)
}

type fixedView struct{ changeAddr addr.Address }

func (v fixedView) CurrentHeight() uint32                         { return 100 }
func (v fixedView) IsVoteLocked(txtypes.Outpoint) bool             { return false }
func (v fixedView) FeePerKB() int64                                { return money.DefaultFeePerKB }

type fixedLocator struct {
	paths  map[addr.Address]keys.Path
	change addr.Address
}

func (l fixedLocator) PathFor(a addr.Address) (keys.Path, bool) {
	p, ok := l.paths[a]
	return p, ok
}
func (l fixedLocator) ChangeAddress() (addr.Address, er.R) { return l.change, nil }

func setup(t *testing.T, amounts []uint64) (*Builder, *store.Store) {
	t.Helper()
	mine := testAddr(7)
	change := testAddr(11)
	s := store.New("main", func(a addr.Address) bool { return a.Equal(mine) || a.Equal(change) })
	for i, amt := range amounts {
		tx := &txtypes.Transaction{
			Type:     txtypes.TypeNormal,
			Payload:  txtypes.PayloadNormal{},
			Outputs:  []txtypes.Output{{Amount: amt, Address: mine, Asset: txtypes.NativeAssetId}},
			LockTime: uint32(i + 1),
		}
		if _, _, err := s.Register(tx, 1, uint64(i)); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}
	g := ledger.NewGroup(txtypes.NativeAssetId, s.UTXOs(), fixedView{})
	locator := fixedLocator{
		paths: map[addr.Address]keys.Path{
			mine: {Chain: keys.ChainExternal, Index: 0},
		},
		change: change,
	}
	b := NewBuilder(txtypes.NativeAssetId, g, nil, func(a addr.Address) bool { return a.Equal(mine) }, locator)
	return b, s
}

func TestCreateTxSimpleSend(t *testing.T) {
	b, _ := setup(t, []uint64{10_000_000})
	dest := testAddr(9)
	tx, err := b.CreateTx(Request{
		Type:    txtypes.TypeNormal,
		Payload: txtypes.PayloadNormal{},
		Outputs: []OutputRequest{{Address: dest, Amount: money.MustAmount(1_000_000)}},
		Memo:    "hello",
	})
	if err != nil {
		t.Fatalf("create tx: %v", err)
	}
	if len(tx.Inputs) == 0 {
		t.Fatalf("expected at least one input")
	}
	var totalOut uint64
	for _, o := range tx.Outputs {
		totalOut += o.Amount
	}
	if totalOut >= 10_000_000 {
		t.Fatalf("outputs %d should be less than inputs 10000000 once fee is paid", totalOut)
	}
	if len(tx.Programs) != 1 {
		t.Fatalf("expected exactly one program slot for the single signer, got %d", len(tx.Programs))
	}
}

func TestCreateTxDustOutputRejected(t *testing.T) {
	b, _ := setup(t, []uint64{10_000_000})
	dest := testAddr(9)
	_, err := b.CreateTx(Request{
		Type:    txtypes.TypeNormal,
		Payload: txtypes.PayloadNormal{},
		Outputs: []OutputRequest{{Address: dest, Amount: money.MustAmount(1)}},
	})
	if err == nil || !money.ErrDustOutput.Is(err) {
		t.Fatalf("expected DustOutput, got %v", err)
	}
}

func TestCreateTxInsufficientFunds(t *testing.T) {
	b, _ := setup(t, []uint64{1000})
	dest := testAddr(9)
	_, err := b.CreateTx(Request{
		Type:    txtypes.TypeNormal,
		Payload: txtypes.PayloadNormal{},
		Outputs: []OutputRequest{{Address: dest, Amount: money.MustAmount(1_000_000_000)}},
	})
	if err == nil || !ledger.ErrInsufficientFunds.Is(err) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}
