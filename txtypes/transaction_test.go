package txtypes

import (
	"reflect"
	"testing"

	"github.com/elastos-sidechain/spvwallet/addr"
)

func sampleTx(payload Payload, typ Type) *Transaction {
	var ph [addr.ProgramHashSize]byte
	ph[0] = 0xac
	ph[1] = 0x01
	a := addr.FromProgramHash(ph, addr.PrefixStandard)
	return &Transaction{
		Version: 0,
		Type:    typ,
		Payload: payload,
		Attributes: [][]byte{
			[]byte("hi"),
		},
		Inputs: []Input{
			{Outpoint: Outpoint{Index: 0}, Sequence: 0xffffffff},
		},
		Outputs: []Output{
			{Amount: 100000, Address: a, Asset: NativeAssetId},
		},
		LockTime: 0,
		Programs: []Program{
			{Code: []byte{0x01, 0x02}, Parameter: []byte{0x03}},
		},
	}
}

func TestSerializeParseRoundTripByType(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		payload Payload
	}{
		{"normal", TypeNormal, PayloadNormal{}},
		{"coinbase", TypeCoinbase, PayloadCoinbase{CoinbaseData: []byte("genesis")}},
		{"register-asset", TypeRegisterAsset, PayloadRegisterAsset{
			Name: "MyToken", Precision: 8, RegistrationAmount: 1000,
		}},
		{"register-producer", TypeRegisterProducer, PayloadRegisterProducer{
			OwnerPublicKey: make([]byte, 33),
			NodePublicKey:  make([]byte, 33),
			Nickname:       "node1",
			URL:            "https://example.invalid",
			Location:       1,
			Address:        "EXampleAddr",
			Amount:         5000,
		}},
		{"vote", TypeVote, PayloadVote{Contents: []VoteContent{{Candidate: []byte{1, 2, 3}, Weight: 5}}}},
		{"did", TypeDID, PayloadDID{DIDInfoJSON: []byte(`{"id":"did:elastos:foo"}`)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx := sampleTx(c.payload, c.typ)
			data := tx.Serialize()
			back, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(tx, back) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", back, tx)
			}
		})
	}
}

func TestOutpointOrdering(t *testing.T) {
	var a, b Outpoint
	a.TxHash[0] = 0x01
	b.TxHash[0] = 0x02
	if !a.Less(b) {
		t.Fatalf("expected a < b by hash")
	}
	c := a
	c.Index = 1
	if !a.Less(c) {
		t.Fatalf("expected a < c by index with equal hash")
	}
}

func TestPayloadTypeMismatchRejected(t *testing.T) {
	if err := CheckPayloadType(TypeNormal, PayloadVote{Contents: []VoteContent{{Weight: 1}}}); err == nil {
		t.Fatalf("expected InvalidPayload for mismatched variant")
	} else if !ErrInvalidPayload.Is(err) {
		t.Fatalf("wrong error code: %v", err)
	}
}
