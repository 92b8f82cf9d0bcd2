// Package keys implements the Sub-Account (key provider) contract: BIP32
// derivation and ECDSA sign/verify, consumed through btcec/hdkeychain/bip39
// rather than reimplemented, per spec.md §1's explicit scoping.
package keys

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// Err is the error family for this package.
var Err = er.NewErrorType("keys.Err")

// ErrLocked is returned when a private-key operation is attempted on a
// locked provider, or when the password is wrong.
var ErrLocked = Err.Code("Locked")

// ErrMissingKey is returned when no key exists at the requested path.
var ErrMissingKey = Err.Code("MissingKey")

// ErrInvalidSignature names the bad-signature error kind. VerifySignature
// does not return it: it reports a bad signature as false with a nil error.
var ErrInvalidSignature = Err.Code("InvalidSignature")

// Chain selects the external or internal derivation chain, matching
// spec.md §4.4 ("external: index 0, internal: index 1").
type Chain uint32

const (
	ChainExternal Chain = 0
	ChainInternal Chain = 1
)

// Path addresses one derived key: chain/index for ordinary receive/change
// keys, or one of the fixed special paths below.
type Path struct {
	Chain Chain
	Index uint32
	// Special, when non-empty, names a fixed non-BIP44 derivation used for
	// owner/deposit/CR-deposit/DID addresses instead of chain/index.
	Special string
}

// Special path names, each a single fixed derivation off the account root —
// grounded on pktwallet/waddrmgr's pattern of reserving low account indices
// for non-address-pool purposes.
const (
	SpecialOwner    = "owner"
	SpecialDeposit  = "deposit"
	SpecialCRDeposit = "cr-deposit"
	SpecialDID      = "did"
)

// Provider is the Sub-Account contract required by the wallet core: it owns
// key material and is immutable after construction (shared, never mutated,
// across the Grouped Asset Ledgers per the ownership rules of spec.md §3).
type Provider interface {
	// ExtendedPublicKey returns the account's neutered extended public key,
	// for components that only ever need to derive public data.
	ExtendedPublicKey() []byte

	// DerivePubkey derives the compressed public key at the given
	// chain/index path without requiring the provider to be unlocked.
	// Special paths are rejected here; SpecialPublicKey derives those.
	DerivePubkey(path Path) (*btcec.PublicKey, er.R)

	// DerivePrivateKey derives the private key at path, unlocking with
	// password. The returned key's bytes are zeroed by the caller once
	// signing is complete; see Sign for the in-place signing variant that
	// never exposes the key at all.
	DerivePrivateKey(path Path, password []byte) (*btcec.PrivateKey, er.R)

	// Sign derives the key at path, signs digest, and zeroes the derived
	// private key material before returning — the plaintext secret never
	// escapes this call, per spec.md §5's shared-resource policy.
	Sign(path Path, digest [32]byte, password []byte) ([]byte, er.R)

	// OwnerPublicKey is the fixed public key address variant "owner" is
	// derived from — the same specialIndexBase+0 child Sign uses when asked
	// to sign with Path{Special: SpecialOwner}.
	OwnerPublicKey() (*btcec.PublicKey, er.R)

	// SpecialPublicKey derives the public key at one of the fixed special
	// paths (SpecialOwner/SpecialDeposit/SpecialCRDeposit/SpecialDID),
	// through the same child key Sign would derive for that path.
	SpecialPublicKey(name string) (*btcec.PublicKey, er.R)

	// SpecialProgramHash derives the program hash for one of the fixed
	// special paths, through the same child key Sign would derive for that
	// path — so an address computed here is always spendable by Sign.
	SpecialProgramHash(name string) ([21]byte, er.R)

	// DIDAddressForPubkey derives the id-chain program hash owning pubkey,
	// for DID-transaction assembly.
	DIDAddressForPubkey(pubkey *btcec.PublicKey) ([21]byte, er.R)
}

// VerifySignature checks an ECDSA signature over msg using pubkey. Exposed
// at the public wallet API per spec.md §6.
func VerifySignature(pubkey *btcec.PublicKey, msg []byte, sig []byte) (bool, er.R) {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	digest := chainhash.DoubleHashB(msg)
	return s.Verify(digest, pubkey), nil
}
