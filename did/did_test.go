package did

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
)

func testProvider(t *testing.T) *keys.HDProvider {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	p, perr := keys.NewHDProvider(master, func([]byte) er.R { return nil })
	if perr != nil {
		t.Fatalf("provider: %v", perr)
	}
	return p
}

// didIDFor derives the id-chain address from the provider's SpecialDID
// path — the same child signWithDID always signs with — so a descriptor
// built from this id is one the resulting proof actually verifies against.
func didIDFor(t *testing.T, p *keys.HDProvider) string {
	t.Helper()
	ph, err := p.SpecialProgramHash(keys.SpecialDID)
	if err != nil {
		t.Fatalf("special program hash: %v", err)
	}
	a := addr.FromProgramHash(ph, addr.PrefixIDChain)
	return "did:elastos:" + a.String()
}

func fixedClock(ts string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return func() time.Time { return t }
}

func TestBuildCreateDocument(t *testing.T) {
	p := testProvider(t)
	id := didIDFor(t, p)
	b := NewBuilder(p, fixedClock("2026-07-30T12:00:00Z"))

	pubBytes := make([]byte, 33)
	rand.Read(pubBytes)

	desc := Descriptor{
		ID:        id,
		Operation: OperationCreate,
		PublicKeys: []PublicKeyEntry{
			{ID: "#primary", PublicKeyHex: hex.EncodeToString(pubBytes)},
		},
		CredentialSubject: map[string]string{
			"nickname": "alice",
			"phone":    "+10000000",
			"email":    "a@example.com",
		},
		Expires: "2027-07-30T12:00:00Z",
	}

	info, idAddr, err := b.Build(desc, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if info.Header.Specification != Specification {
		t.Fatalf("wrong specification: %s", info.Header.Specification)
	}
	if info.Payload.IssuerDate != "2026-07-30T12:00:00Z" {
		t.Fatalf("issuerDate = %s, want UTC-formatted fixed clock value", info.Payload.IssuerDate)
	}
	wantTypes := []string{"SelfProclaimedCredential", "BasicProfileCredential", "PhoneCredential", "InternetAccountCredential"}
	got := info.Payload.VerifiableCredential[0].Type
	if len(got) != len(wantTypes) {
		t.Fatalf("credential types = %v, want %v", got, wantTypes)
	}
	for i := range wantTypes {
		if got[i] != wantTypes[i] {
			t.Fatalf("credential types = %v, want %v", got, wantTypes)
		}
	}
	if info.Proof.VerificationMethod != "#primary" {
		t.Fatalf("wrong verificationMethod: %s", info.Proof.VerificationMethod)
	}
	if info.Proof.Signature == "" {
		t.Fatalf("expected non-empty signature")
	}
	if idAddr.Prefix != addr.PrefixIDChain {
		t.Fatalf("expected id-chain address prefix")
	}
}

func TestBuildRejectsBadExpires(t *testing.T) {
	p := testProvider(t)
	id := didIDFor(t, p)
	b := NewBuilder(p, fixedClock("2026-07-30T12:00:00Z"))

	_, _, err := b.Build(Descriptor{
		ID:        id,
		Operation: OperationCreate,
		Expires:   "not-a-date",
	}, nil)
	if err == nil || !ErrInvalidDate.Is(err) {
		t.Fatalf("expected InvalidDate, got %v", err)
	}
}

func TestBuildRejectsBadID(t *testing.T) {
	p := testProvider(t)
	b := NewBuilder(p, fixedClock("2026-07-30T12:00:00Z"))
	_, _, err := b.Build(Descriptor{
		ID:      "not-a-did",
		Expires: "2027-07-30T12:00:00Z",
	}, nil)
	if err == nil || !ErrInvalidArgument.Is(err) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

// TestProofVerifiesAgainstSigningKey covers spec.md §8 testable property 6
// (verify_signature(public_key, source_data, signature) = true): the public
// key hashed into the DID id must be the same key signWithDID actually
// signs with, so a verifier recomputing source_data from the published
// document can verify the proof with keys.VerifySignature.
func TestProofVerifiesAgainstSigningKey(t *testing.T) {
	p := testProvider(t)
	id := didIDFor(t, p)
	b := NewBuilder(p, fixedClock("2026-07-30T12:00:00Z"))

	desc := Descriptor{
		ID:        id,
		Operation: OperationCreate,
		Expires:   "2027-07-30T12:00:00Z",
	}
	info, _, err := b.Build(desc, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	h := header{Specification: Specification, Operation: string(desc.Operation)}
	vc := verifiableCredential{Type: credentialTypes(nil), CredentialSubject: nil}
	pi := payloadInfo{
		ID:                   desc.ID,
		PublicKey:            []publicKeyInfo{},
		VerifiableCredential: []verifiableCredential{vc},
		Expires:              desc.Expires,
		IssuerDate:           info.Payload.IssuerDate,
	}
	canonicalPayload, mErr := canonicalJSON(pi)
	if mErr != nil {
		t.Fatalf("canonicalJSON: %v", mErr)
	}
	var sourceData bytes.Buffer
	sourceData.WriteString(h.Specification)
	sourceData.WriteString(h.Operation)
	sourceData.Write(canonicalPayload)

	sig, dErr := base64.StdEncoding.DecodeString(info.Proof.Signature)
	if dErr != nil {
		t.Fatalf("decode signature: %v", dErr)
	}
	pub, pErr := p.SpecialPublicKey(keys.SpecialDID)
	if pErr != nil {
		t.Fatalf("special public key: %v", pErr)
	}
	ok, vErr := keys.VerifySignature(pub, sourceData.Bytes(), sig)
	if vErr != nil {
		t.Fatalf("verify: %v", vErr)
	}
	if !ok {
		t.Fatalf("proof signature did not verify against the DID's own public key")
	}
}

func TestCredentialTypesMinimal(t *testing.T) {
	got := credentialTypes(map[string]string{"nickname": "bob"})
	want := []string{"SelfProclaimedCredential", "BasicProfileCredential"}
	if len(got) != len(want) {
		t.Fatalf("credential types = %v, want %v", got, want)
	}
}
