// Package txtypes defines the wire-level data model shared by every other
// wallet-core package: outpoints, outputs, inputs, the tagged transaction
// payload variants, and the transaction itself. Serialization is
// little-endian, length-prefixed, matching spec.md §6's bit-exact format —
// grounded on pktd/wire's MsgTx encoding conventions.
package txtypes

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// Err is the error family for this package.
var Err = er.NewErrorType("txtypes.Err")

// ErrInvalidPayload is returned when a payload variant doesn't match its
// declared transaction type, or fails its own self-check.
var ErrInvalidPayload = Err.Code("InvalidPayload")

// AssetId is a 32-byte opaque asset identifier.
type AssetId [32]byte

// NativeAssetId is the one designated native asset id, always present in
// the Asset Registry.
var NativeAssetId = AssetId{} // the all-zero id, by convention of this chain

// Type is the closed transaction-type enum of spec.md §3.
type Type uint8

const (
	TypeNormal Type = iota
	TypeCoinbase
	TypeTransferCrossChain
	TypeRegisterProducer
	TypeVote
	TypeDID
	TypeRegisterAsset
)

// Outpoint identifies a unique transaction output: (tx_hash, index).
// Total order is (tx_hash lex, index).
type Outpoint struct {
	TxHash chainhash.Hash
	Index  uint16
}

// Less implements the total order required by spec.md §3.
func (o Outpoint) Less(other Outpoint) bool {
	c := bytes.Compare(o.TxHash[:], other.TxHash[:])
	if c != 0 {
		return c < 0
	}
	return o.Index < other.Index
}

// Output is one spendable slot created by a transaction.
type Output struct {
	Amount  uint64 // sats; wrapped to money.Amount by callers that need checked math
	Address addr.Address
	Asset   AssetId
	Payload []byte // optional, variant-specific
}

// Input references a prior output to be consumed.
type Input struct {
	Outpoint Outpoint
	Sequence uint32
}

// Program is a (locking code, unlocking parameter) slot. Code identifies the
// spend condition; Parameter is the witness the signer fills in.
type Program struct {
	Code      []byte
	Parameter []byte
}

// Payload is implemented by every payload variant. Serialization and
// self-checks go through these methods; decoding dispatches through a
// switch on the transaction type (decodePayload).
type Payload interface {
	PayloadType() Type
	SelfCheck() er.R
	Serialize() []byte
}

// Transaction is the full wallet-core transaction record.
type Transaction struct {
	Version    uint8
	Type       Type
	Payload    Payload
	Attributes [][]byte
	Inputs     []Input
	Outputs    []Output
	LockTime   uint32
	Programs   []Program
}

// AttributeKind tags the one attribute kind this wallet core emits itself
// (the memo).
const AttributeKindDescription = byte(0x90)

func serialize(tx *Transaction, includePrograms bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tx.Version)
	buf.WriteByte(byte(tx.Type))

	var payloadBytes []byte
	if tx.Payload != nil {
		payloadBytes = tx.Payload.Serialize()
	}
	writeVarBytes(&buf, payloadBytes)

	writeVarInt(&buf, uint64(len(tx.Attributes)))
	for _, a := range tx.Attributes {
		writeVarBytes(&buf, a)
	}

	writeVarInt(&buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf.Write(in.Outpoint.TxHash[:])
		binary.Write(&buf, binary.LittleEndian, in.Outpoint.Index)
		binary.Write(&buf, binary.LittleEndian, in.Sequence)
	}

	writeVarInt(&buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		binary.Write(&buf, binary.LittleEndian, out.Amount)
		writeVarBytes(&buf, out.Address.ProgramHash[:])
		buf.WriteByte(byte(out.Address.Prefix))
		buf.Write(out.Asset[:])
		writeVarBytes(&buf, out.Payload)
	}

	binary.Write(&buf, binary.LittleEndian, tx.LockTime)

	if includePrograms {
		writeVarInt(&buf, uint64(len(tx.Programs)))
		for _, p := range tx.Programs {
			writeVarBytes(&buf, p.Code)
			writeVarBytes(&buf, p.Parameter)
		}
	}

	return buf.Bytes()
}

func writeVarInt(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		binary.Write(buf, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		binary.Write(buf, binary.LittleEndian, uint32(n))
	default:
		buf.WriteByte(0xff)
		binary.Write(buf, binary.LittleEndian, n)
	}
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	writeVarInt(buf, uint64(len(b)))
	buf.Write(b)
}

// Serialize returns the full wire encoding, including programs.
func (tx *Transaction) Serialize() []byte {
	return serialize(tx, true)
}

// SerializeForHashing excludes program parameters, matching the
// signable-hash definition of spec.md §3 (programs entirely omitted, since
// they don't exist before signing).
func (tx *Transaction) SerializeForHashing() []byte {
	return serialize(tx, false)
}

// Hash computes tx_hash = double_sha256(serialize_for_hashing(tx)).
func (tx *Transaction) Hash() chainhash.Hash {
	return chainhash.DoubleHashH(tx.SerializeForHashing())
}

// SignableHash is the digest signers sign over; identical to Hash here since
// programs are excluded from both (spec.md glossary: "Signable hash —
// transaction double-SHA256 excluding program parameters").
func (tx *Transaction) SignableHash() chainhash.Hash {
	return tx.Hash()
}

// SortOutpoints returns a copy of outpoints sorted by the total order of
// spec.md §3.
func SortOutpoints(outpoints []Outpoint) []Outpoint {
	out := make([]Outpoint, len(outpoints))
	copy(out, outpoints)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
