package addr

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
)

func testProvider(t *testing.T) keys.Provider {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.MinSeedBytes)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	p, errr := keys.NewHDProvider(master, func(password []byte) er.R {
		if string(password) != "hunter2" {
			return keys.ErrLocked.New("wrong password", nil)
		}
		return nil
	})
	if errr != nil {
		t.Fatalf("provider: %v", errr)
	}
	return p
}

func TestGapLimitDiscovery(t *testing.T) {
	book, err := NewBook(testProvider(t))
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		a, err := book.ReceiveAddress()
		if err != nil {
			t.Fatalf("ReceiveAddress: %v", err)
		}
		if seen[a.String()] {
			t.Fatalf("duplicate receive address returned at iteration %d", i)
		}
		seen[a.String()] = true
		if err := book.MarkUsed(a); err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}
	}

	unused, err := book.UnusedAddresses(DefaultExternalGapLimit, false)
	if err != nil {
		t.Fatalf("UnusedAddresses: %v", err)
	}
	if len(unused) < DefaultExternalGapLimit {
		t.Fatalf("expected at least %d unused addresses, got %d", DefaultExternalGapLimit, len(unused))
	}
	dedup := make(map[string]bool)
	for _, a := range unused {
		if dedup[a.String()] {
			t.Fatalf("unused address set contains a duplicate: %s", a)
		}
		dedup[a.String()] = true
	}
}

func TestMarkUsedIdempotent(t *testing.T) {
	book, err := NewBook(testProvider(t))
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	a, err := book.ReceiveAddress()
	if err != nil {
		t.Fatalf("ReceiveAddress: %v", err)
	}
	if err := book.MarkUsed(a); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := book.MarkUsed(a); err != nil {
		t.Fatalf("MarkUsed (second call): %v", err)
	}
	if !book.Contains(a) {
		t.Fatalf("expected book to contain %s", a)
	}
}

func TestSpecialAddressesAlwaysOwn(t *testing.T) {
	book, err := NewBook(testProvider(t))
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	for _, name := range []string{keys.SpecialOwner, keys.SpecialDeposit, keys.SpecialCRDeposit, keys.SpecialDID} {
		a, ok := book.Special(name)
		if !ok {
			t.Fatalf("missing special address %q", name)
		}
		if !book.Contains(a) {
			t.Fatalf("special address %q should be considered own", name)
		}
	}
}

func TestAddressRange(t *testing.T) {
	book, err := NewBook(testProvider(t))
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	first, err := book.AddressRange(0, 3, false)
	if err != nil {
		t.Fatalf("AddressRange: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 addresses, got %d", len(first))
	}
	// Beyond the default gap limit window, forcing further derivation.
	more, err := book.AddressRange(DefaultExternalGapLimit+5, 2, false)
	if err != nil {
		t.Fatalf("AddressRange past gap limit: %v", err)
	}
	if len(more) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(more))
	}
	// A request overlapping the first window must return the same addresses.
	overlap, err := book.AddressRange(0, 3, false)
	if err != nil {
		t.Fatalf("AddressRange overlap: %v", err)
	}
	for i := range first {
		if !overlap[i].Equal(first[i]) {
			t.Fatalf("AddressRange not stable across calls at index %d", i)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	book, err := NewBook(testProvider(t))
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	a, err := book.ReceiveAddress()
	if err != nil {
		t.Fatalf("ReceiveAddress: %v", err)
	}
	parsed, perr := Parse(a.String())
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	if !parsed.Equal(a) {
		t.Fatalf("round trip mismatch: got %v want %v", parsed, a)
	}
}
