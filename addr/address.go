// Package addr implements the Address Book: deterministic address
// derivation, used-set tracking, and gap-limit discovery for a two-chain
// (external/internal) deterministic wallet, plus the fixed-path special
// addresses (owner, deposit, CR-deposit, DID).
//
// Grounded on pktwallet/waddrmgr's chain/gap-limit model, adapted from
// btcwallet's multi-account BIP44 manager down to this wallet's simpler
// two-chain-per-account scheme, and on base58check encoding the way
// btcutil/base58 does it.
package addr

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcutil/base58"

	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// Err is the error family for this package.
var Err = er.NewErrorType("addr.Err")

// ErrInvalidArgument is returned for a malformed address string or prefix.
var ErrInvalidArgument = Err.Code("InvalidArgument")

// Prefix identifies an address variant. The byte is carried as part of the
// encoded payload, not as a detachable version byte.
type Prefix byte

const (
	PrefixStandard Prefix = 0x21 // receive-external / change-internal (P2PKH-equivalent)
	PrefixMultiSig Prefix = 0x12
	PrefixCRDeposit Prefix = 0x1f
	PrefixDeposit   Prefix = 0x0f
	PrefixIDChain   Prefix = 0x67 // DID / id-chain address
)

// ProgramHashSize is the fixed length of the address's program hash.
const ProgramHashSize = 21

// Address is a prefixed program-hash. Equality is over the full encoded
// form: (programHash || prefix).
type Address struct {
	Prefix      Prefix
	ProgramHash [ProgramHashSize]byte
}

// Equal reports whether two addresses encode identically.
func (a Address) Equal(b Address) bool {
	return a.Prefix == b.Prefix && a.ProgramHash == b.ProgramHash
}

// String base58check-encodes the address as (ProgramHash || Prefix byte)
// with a trailing double-SHA256 checksum, per spec.md §6's bit-exact
// format.
func (a Address) String() string {
	payload := make([]byte, 0, ProgramHashSize+1)
	payload = append(payload, a.ProgramHash[:]...)
	payload = append(payload, byte(a.Prefix))
	checksum := chainhash.DoubleHashB(payload)[:4]
	return base58.Encode(append(payload, checksum...))
}

// Parse decodes a base58check address string, validating the checksum.
func Parse(s string) (Address, er.R) {
	decoded := base58.Decode(s)
	if len(decoded) != ProgramHashSize+1+4 {
		return Address{}, ErrInvalidArgument.New("bad address length", nil)
	}
	payload, checksum := decoded[:ProgramHashSize+1], decoded[ProgramHashSize+1:]
	want := chainhash.DoubleHashB(payload)[:4]
	if !bytes.Equal(checksum, want) {
		return Address{}, ErrInvalidArgument.New("checksum mismatch", nil)
	}
	var a Address
	copy(a.ProgramHash[:], payload[:ProgramHashSize])
	a.Prefix = Prefix(payload[ProgramHashSize])
	return a, nil
}

// FromProgramHash builds an address directly from a 21-byte program hash and
// a prefix, without going through string parsing.
func FromProgramHash(ph [ProgramHashSize]byte, prefix Prefix) Address {
	return Address{Prefix: prefix, ProgramHash: ph}
}
