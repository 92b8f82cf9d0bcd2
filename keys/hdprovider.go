package keys

import (
	"crypto/sha256"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160"

	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// HDProvider is the concrete Provider backed by a single BIP32 account
// extended key. Grounded on pktwallet/waddrmgr's use of
// btcutil/hdkeychain for chain/index derivation, simplified to this
// wallet's two-chain scheme (spec.md §4.4) plus a handful of fixed special
// paths instead of full multi-account BIP44.
type HDProvider struct {
	mu sync.Mutex

	neutered *hdkeychain.ExtendedKey // account-level public key, always set
	master   *hdkeychain.ExtendedKey // account-level private key, nil when locked
	locked   bool

	checkPassword func(password []byte) er.R
}

// NewHDProvider wraps an already-derived account extended key. unlock is
// called on every private-key operation to validate the password before any
// derivation is attempted; it should be constant-time w.r.t. the real
// password where that matters to the embedder.
func NewHDProvider(accountKey *hdkeychain.ExtendedKey, unlock func(password []byte) er.R) (*HDProvider, er.R) {
	neutered, err := accountKey.Neuter()
	if err != nil {
		return nil, er.E(err)
	}
	p := &HDProvider{neutered: neutered, checkPassword: unlock}
	if !accountKey.IsPrivate() {
		p.locked = true
	} else {
		p.master = accountKey
	}
	return p, nil
}

func (p *HDProvider) ExtendedPublicKey() []byte {
	return []byte(p.neutered.String())
}

// Special paths live in a reserved, non-hardened index range so their public
// keys remain derivable from the neutered account key (no unlock needed to
// compute a deposit or owner address, only to sign from one).
const specialIndexBase = 1 << 30

func pathToChildNums(path Path) []uint32 {
	switch path.Special {
	case SpecialOwner:
		return []uint32{specialIndexBase + 0}
	case SpecialDeposit:
		return []uint32{specialIndexBase + 1}
	case SpecialCRDeposit:
		return []uint32{specialIndexBase + 2}
	case SpecialDID:
		return []uint32{specialIndexBase + 3}
	default:
		return []uint32{uint32(path.Chain), path.Index}
	}
}

func derivePublic(base *hdkeychain.ExtendedKey, nums []uint32) (*btcec.PublicKey, er.R) {
	k := base
	for _, n := range nums {
		// Every index pathToChildNums yields, special paths included, is
		// non-hardened, so it derives from the neutered key.
		child, err := k.Derive(n)
		if err != nil {
			return nil, er.E(err)
		}
		k = child
	}
	pub, err := k.ECPubKey()
	if err != nil {
		return nil, er.E(err)
	}
	return pub, nil
}

func (p *HDProvider) DerivePubkey(path Path) (*btcec.PublicKey, er.R) {
	if path.Special != "" {
		return nil, ErrMissingKey.New("special paths are derived through SpecialPublicKey", nil)
	}
	return derivePublic(p.neutered, pathToChildNums(path))
}

func (p *HDProvider) derivePrivateLocked(path Path, password []byte) (*hdkeychain.ExtendedKey, er.R) {
	if err := p.checkPassword(password); err != nil {
		return nil, ErrLocked.New("", err)
	}
	if p.master == nil {
		return nil, ErrLocked.New("provider has no private key material", nil)
	}
	k := p.master
	for _, n := range pathToChildNums(path) {
		child, err := k.Derive(n)
		if err != nil {
			return nil, er.E(err)
		}
		k = child
	}
	return k, nil
}

func (p *HDProvider) DerivePrivateKey(path Path, password []byte) (*btcec.PrivateKey, er.R) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, err := p.derivePrivateLocked(path, password)
	if err != nil {
		return nil, err
	}
	priv, e := k.ECPrivKey()
	if e != nil {
		return nil, er.E(e)
	}
	return priv, nil
}

func (p *HDProvider) Sign(path Path, digest [32]byte, password []byte) ([]byte, er.R) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, err := p.derivePrivateLocked(path, password)
	if err != nil {
		return nil, err
	}
	priv, e := k.ECPrivKey()
	if e != nil {
		return nil, er.E(e)
	}
	sig := ecdsa.Sign(priv, digest[:])
	priv.Key.Zero()
	return sig.Serialize(), nil
}

func (p *HDProvider) OwnerPublicKey() (*btcec.PublicKey, er.R) {
	return p.SpecialPublicKey(SpecialOwner)
}

// SpecialPublicKey derives the public key at one of the fixed special
// paths, through the same child Sign itself derives for Path{Special: name}.
func (p *HDProvider) SpecialPublicKey(name string) (*btcec.PublicKey, er.R) {
	return derivePublic(p.neutered, pathToChildNums(Path{Special: name}))
}

// ProgramHash computes the 21-byte program hash for a standard address: a
// one-byte sign-type prefix followed by RIPEMD160(SHA256(pubkey)).
func ProgramHash(pubkey *btcec.PublicKey) [21]byte {
	sh := sha256.Sum256(pubkey.SerializeCompressed())
	rh := ripemd160.New()
	rh.Write(sh[:])
	var out [21]byte
	copy(out[1:], rh.Sum(nil))
	out[0] = 0xac // standard single-signature program prefix
	return out
}

// SpecialProgramHash derives the program hash for any fixed special path
// through the same specialIndexBase+N child Sign would derive for it, so
// the address it produces is always signable.
func (p *HDProvider) SpecialProgramHash(name string) ([21]byte, er.R) {
	pub, err := p.SpecialPublicKey(name)
	if err != nil {
		return [21]byte{}, err
	}
	return ProgramHash(pub), nil
}

func (p *HDProvider) DIDAddressForPubkey(pubkey *btcec.PublicKey) ([21]byte, er.R) {
	return ProgramHash(pubkey), nil
}
