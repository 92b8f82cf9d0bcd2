package addr

import (
	"sync"

	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
)

// Default gap limits per spec.md §4.4.
const (
	DefaultExternalGapLimit = 10
	DefaultInternalGapLimit = 5
)

type chainState struct {
	derived   []Address // index i == derivation index i
	usedUpTo  int       // -1 means nothing used yet
	gapLimit  int
}

// Book implements the Address Book component: deterministic derivation
// along two independent chains plus gap-limit discovery, and the
// always-own special addresses.
type Book struct {
	mu sync.Mutex

	provider keys.Provider
	external chainState
	internal chainState

	// index, keyed by encoded address string, of every address this book
	// has ever derived (used or not) plus every special address — the
	// membership set backing Contains.
	known map[string]Address

	// used is the subset of known that have appeared in a recorded output;
	// invariant 5 of spec.md §3 requires used ⊆ derived.
	used map[string]bool

	special map[string]Address
}

// NewBook constructs an address book over provider, deriving the initial
// gap-limit window on both chains plus all special addresses.
func NewBook(provider keys.Provider) (*Book, er.R) {
	b := &Book{
		provider: provider,
		external: chainState{usedUpTo: -1, gapLimit: DefaultExternalGapLimit},
		internal: chainState{usedUpTo: -1, gapLimit: DefaultInternalGapLimit},
		known:    make(map[string]Address),
		used:     make(map[string]bool),
		special:  make(map[string]Address),
	}
	if err := b.extend(&b.external, keys.ChainExternal, b.external.gapLimit); err != nil {
		return nil, err
	}
	if err := b.extend(&b.internal, keys.ChainInternal, b.internal.gapLimit); err != nil {
		return nil, err
	}
	if err := b.deriveSpecials(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Book) deriveOne(chain keys.Chain, index uint32) (Address, er.R) {
	pub, err := b.provider.DerivePubkey(keys.Path{Chain: chain, Index: index})
	if err != nil {
		return Address{}, err
	}
	return FromProgramHash(keys.ProgramHash(pub), PrefixStandard), nil
}

// extend derives additional addresses on cs until at least n trailing
// entries beyond the last used index exist.
func (b *Book) extend(cs *chainState, chain keys.Chain, n int) er.R {
	target := cs.usedUpTo + 1 + n
	for len(cs.derived) < target {
		a, err := b.deriveOne(chain, uint32(len(cs.derived)))
		if err != nil {
			return err
		}
		cs.derived = append(cs.derived, a)
		b.known[a.String()] = a
	}
	return nil
}

func (b *Book) deriveSpecials() er.R {
	specs := []struct {
		name   string
		prefix Prefix
	}{
		{keys.SpecialOwner, PrefixStandard},
		{keys.SpecialDeposit, PrefixDeposit},
		{keys.SpecialCRDeposit, PrefixCRDeposit},
		{keys.SpecialDID, PrefixIDChain},
	}
	for _, s := range specs {
		ph, err := b.specialProgramHash(s.name)
		if err != nil {
			return err
		}
		a := FromProgramHash(ph, s.prefix)
		b.special[s.name] = a
		b.known[a.String()] = a
	}
	return nil
}

// specialProgramHash derives name's fixed program hash through the
// provider's SpecialProgramHash, the same specialIndexBase+N child Sign
// itself derives for Path{Special: name} — so every special address this
// book hands out is guaranteed signable.
func (b *Book) specialProgramHash(name string) ([ProgramHashSize]byte, er.R) {
	return b.provider.SpecialProgramHash(name)
}

func (b *Book) chainState(internal bool) *chainState {
	if internal {
		return &b.internal
	}
	return &b.external
}

func (b *Book) chainID(internal bool) keys.Chain {
	if internal {
		return keys.ChainInternal
	}
	return keys.ChainExternal
}

// ReceiveAddress returns the first unused external address, deriving more
// if the current window is empty (it never is, by construction, but this
// keeps the method correct under future gap-limit changes).
func (b *Book) ReceiveAddress() (Address, er.R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstUnusedLocked(&b.external)
}

// ChangeAddress returns the first unused internal address.
func (b *Book) ChangeAddress() (Address, er.R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstUnusedLocked(&b.internal)
}

func (b *Book) firstUnusedLocked(cs *chainState) (Address, er.R) {
	idx := cs.usedUpTo + 1
	if idx >= len(cs.derived) {
		chain := keys.ChainExternal
		if cs == &b.internal {
			chain = keys.ChainInternal
		}
		if err := b.extend(cs, chain, cs.gapLimit); err != nil {
			return Address{}, err
		}
	}
	return cs.derived[idx], nil
}

// UnusedAddresses returns every currently-unused trailing address on the
// requested chain, extending the chain so at least gapLimit are available.
func (b *Book) UnusedAddresses(gapLimit int, internal bool) ([]Address, er.R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs := b.chainState(internal)
	if err := b.extend(cs, b.chainID(internal), gapLimit); err != nil {
		return nil, err
	}
	out := make([]Address, 0, gapLimit)
	for i := cs.usedUpTo + 1; i < len(cs.derived); i++ {
		out = append(out, cs.derived[i])
	}
	return out, nil
}

// AddressRange returns count consecutive derived addresses on the
// requested chain, starting at index start, deriving further out if the
// window doesn't yet reach that far.
func (b *Book) AddressRange(start uint32, count int, internal bool) ([]Address, er.R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs := b.chainState(internal)
	chain := b.chainID(internal)
	need := int(start) + count
	for len(cs.derived) < need {
		a, err := b.deriveOne(chain, uint32(len(cs.derived)))
		if err != nil {
			return nil, err
		}
		cs.derived = append(cs.derived, a)
		b.known[a.String()] = a
	}
	out := make([]Address, 0, count)
	for i := int(start); i < need; i++ {
		out = append(out, cs.derived[i])
	}
	return out, nil
}

// MarkUsed records addr as used. Idempotent; extends the owning chain so
// the gap-limit invariant (used ⊆ derived, trailing gapLimit unused) keeps
// holding.
func (b *Book) MarkUsed(address Address) er.R {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := address.String()
	if _, ok := b.known[key]; !ok {
		// Neither a derived nor a special address of this book (an
		// external address) — nothing to do.
		return nil
	}
	if b.used[key] {
		return nil
	}
	b.used[key] = true

	if err := b.markUsedOnChain(&b.external, keys.ChainExternal, address); err != nil {
		return err
	}
	if err := b.markUsedOnChain(&b.internal, keys.ChainInternal, address); err != nil {
		return err
	}
	return nil
}

func (b *Book) markUsedOnChain(cs *chainState, chainID keys.Chain, address Address) er.R {
	for i, a := range cs.derived {
		if a.Equal(address) && i > cs.usedUpTo {
			cs.usedUpTo = i
			return b.extend(cs, chainID, cs.gapLimit)
		}
	}
	return nil
}

// Contains reports whether address was ever derived by this book (used or
// not) or is one of the fixed special addresses.
func (b *Book) Contains(address Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.known[address.String()]
	return ok
}

// Special returns one of the fixed non-pool addresses (owner, deposit,
// cr-deposit, did).
func (b *Book) Special(name string) (Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.special[name]
	return a, ok
}

// PathFor resolves the derivation path owning address, for the Transaction
// Builder's signer to locate the right key. Checks both chains, then the
// special addresses.
func (b *Book) PathFor(address Address) (keys.Path, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.external.derived {
		if a.Equal(address) {
			return keys.Path{Chain: keys.ChainExternal, Index: uint32(i)}, true
		}
	}
	for i, a := range b.internal.derived {
		if a.Equal(address) {
			return keys.Path{Chain: keys.ChainInternal, Index: uint32(i)}, true
		}
	}
	for name, a := range b.special {
		if a.Equal(address) {
			return keys.Path{Special: name}, true
		}
	}
	return keys.Path{}, false
}
