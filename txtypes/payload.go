package txtypes

import (
	"bytes"
	"encoding/binary"

	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// PayloadNormal carries no data; used by TypeNormal and
// TypeTransferCrossChain (cross-chain details ride in attributes/outputs in
// this simplified model).
type PayloadNormal struct{}

func (PayloadNormal) PayloadType() Type { return TypeNormal }
func (PayloadNormal) SelfCheck() er.R   { return nil }
func (PayloadNormal) Serialize() []byte { return nil }

// PayloadCoinbase carries the coinbase's arbitrary extra data.
type PayloadCoinbase struct {
	CoinbaseData []byte
}

func (PayloadCoinbase) PayloadType() Type { return TypeCoinbase }
func (p PayloadCoinbase) SelfCheck() er.R { return nil }
func (p PayloadCoinbase) Serialize() []byte {
	var buf bytes.Buffer
	writeVarBytes(&buf, p.CoinbaseData)
	return buf.Bytes()
}

// PayloadRegisterAsset carries the fields needed to install a new Asset in
// the Asset Registry, observed by Wallet Core as described in spec.md §4.2.
type PayloadRegisterAsset struct {
	Name              string
	Precision         uint8
	Controller        [21]byte
	RegistrationAmount uint64
}

func (PayloadRegisterAsset) PayloadType() Type { return TypeRegisterAsset }
func (p PayloadRegisterAsset) SelfCheck() er.R {
	if p.Name == "" {
		return ErrInvalidPayload.New("asset name must not be empty", nil)
	}
	return nil
}
func (p PayloadRegisterAsset) Serialize() []byte {
	var buf bytes.Buffer
	writeVarBytes(&buf, []byte(p.Name))
	buf.WriteByte(p.Precision)
	buf.Write(p.Controller[:])
	binary.Write(&buf, binary.LittleEndian, p.RegistrationAmount)
	return buf.Bytes()
}

// PayloadRegisterProducer registers a block-producing node, keyed by its
// owner public key (the same key an owner-variant address hashes).
type PayloadRegisterProducer struct {
	OwnerPublicKey []byte
	NodePublicKey  []byte
	Nickname       string
	URL            string
	Location       uint64
	Address        string
	Amount         uint64
}

func (PayloadRegisterProducer) PayloadType() Type { return TypeRegisterProducer }
func (p PayloadRegisterProducer) SelfCheck() er.R {
	if len(p.OwnerPublicKey) != 33 || len(p.NodePublicKey) != 33 {
		return ErrInvalidPayload.New("producer public keys must be 33-byte compressed", nil)
	}
	if p.Nickname == "" {
		return ErrInvalidPayload.New("producer nickname must not be empty", nil)
	}
	return nil
}
func (p PayloadRegisterProducer) Serialize() []byte {
	var buf bytes.Buffer
	writeVarBytes(&buf, p.OwnerPublicKey)
	writeVarBytes(&buf, p.NodePublicKey)
	writeVarBytes(&buf, []byte(p.Nickname))
	writeVarBytes(&buf, []byte(p.URL))
	binary.Write(&buf, binary.LittleEndian, p.Location)
	writeVarBytes(&buf, []byte(p.Address))
	binary.Write(&buf, binary.LittleEndian, p.Amount)
	return buf.Bytes()
}

// VoteContent is one candidate/weight pair of a vote payload.
type VoteContent struct {
	Candidate []byte
	Weight    uint64
}

// PayloadVote carries the caller's vote content for the vote transaction
// type (spec.md §6's `vote(content, memo, max)`).
type PayloadVote struct {
	Contents []VoteContent
}

func (PayloadVote) PayloadType() Type { return TypeVote }
func (p PayloadVote) SelfCheck() er.R {
	if len(p.Contents) == 0 {
		return ErrInvalidPayload.New("vote payload has no contents", nil)
	}
	return nil
}
func (p PayloadVote) Serialize() []byte {
	var buf bytes.Buffer
	writeVarInt(&buf, uint64(len(p.Contents)))
	for _, c := range p.Contents {
		writeVarBytes(&buf, c.Candidate)
		binary.Write(&buf, binary.LittleEndian, c.Weight)
	}
	return buf.Bytes()
}

// PayloadDID wraps a fully-assembled DIDInfo document (see package did). It
// is kept opaque here (pre-serialized JSON bytes) so txtypes doesn't need to
// depend on the did package; the wallet package serializes the document
// and wraps it here.
type PayloadDID struct {
	DIDInfoJSON []byte
}

func (PayloadDID) PayloadType() Type { return TypeDID }
func (p PayloadDID) SelfCheck() er.R {
	if len(p.DIDInfoJSON) == 0 {
		return ErrInvalidPayload.New("empty DID payload", nil)
	}
	return nil
}
func (p PayloadDID) Serialize() []byte {
	var buf bytes.Buffer
	writeVarBytes(&buf, p.DIDInfoJSON)
	return buf.Bytes()
}

// CheckPayloadType validates that payload's declared type matches want,
// invoking the payload's own self-check too. Used by the Transaction
// Builder per spec.md §4.7 ("mismatched variant -> InvalidPayload").
func CheckPayloadType(want Type, payload Payload) er.R {
	if payload == nil {
		if want == TypeNormal {
			return nil
		}
		return ErrInvalidPayload.New("nil payload for non-normal transaction type", nil)
	}
	if payload.PayloadType() != want {
		return ErrInvalidPayload.New("payload variant does not match transaction type", nil)
	}
	return payload.SelfCheck()
}
