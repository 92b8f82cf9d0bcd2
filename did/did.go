// Package did implements the Identity (DID) Builder of spec.md §4.9:
// assembling a DID operation's document, its VerifiableCredential, and its
// proof, then handing the serialized document to the Transaction Builder as
// a did-transaction payload.
//
// Grounded on pktwallet's JSON-document-construction style (plain struct
// marshaling via encoding/json, no schema library) and keys for signing.
package did

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
)

// Err is the error family for this package.
var Err = er.NewErrorType("did.Err")

var (
	// ErrInvalidArgument flags a malformed DID id or missing required
	// field.
	ErrInvalidArgument = Err.Code("InvalidArgument")
	// ErrInvalidDate flags an `expires` value that isn't RFC3339.
	ErrInvalidDate = Err.Code("InvalidDate")
)

// Operation is the DID operation kind.
type Operation string

const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationDeactivate Operation = "deactivate"
)

const idPrefix = "did:elastos:"

// Specification is the fixed DID document specification string.
const Specification = "elastos/did/1.0"

// baseCredentialTypes is always present, in this exact order.
var baseCredentialTypes = []string{"SelfProclaimedCredential", "BasicProfileCredential"}

// internetAccountFields drive appending "InternetAccountCredential" when any
// is non-empty, per spec.md §4.9 step 4.
var internetAccountFields = []string{
	"alipay", "wechat", "weibo", "twitter", "facebook",
	"microsoft_passport", "google_account", "homepage", "email",
}

// PublicKeyEntry is one entry of the descriptor's publicKey list.
type PublicKeyEntry struct {
	ID             string
	PublicKeyHex   string
	PublicKeyBase58 string
}

// resolve fills PublicKeyBase58 from PublicKeyHex when only the hex form was
// given, per spec.md §4.9 step 3.
func (p *PublicKeyEntry) resolve() er.R {
	if p.PublicKeyBase58 != "" {
		return nil
	}
	if p.PublicKeyHex == "" {
		return ErrInvalidArgument.New("public key entry has neither hex nor base58 form", nil)
	}
	raw, err := hex.DecodeString(p.PublicKeyHex)
	if err != nil {
		return ErrInvalidArgument.New("publicKey is not valid hex", nil)
	}
	p.PublicKeyBase58 = base58.Encode(raw)
	return nil
}

// Descriptor is the caller-supplied DID operation request.
type Descriptor struct {
	ID                string
	Operation         Operation
	PublicKeys        []PublicKeyEntry
	CredentialSubject map[string]string
	Expires           string
}

// header is DID document Header, per spec.md §4.9 step 2.
type header struct {
	Specification string `json:"specification"`
	Operation     string `json:"operation"`
}

// verifiableCredential is the single credential composed per step 4.
type verifiableCredential struct {
	Type              []string          `json:"type"`
	CredentialSubject map[string]string `json:"credentialSubject"`
}

// publicKeyInfo is the serialized form of one PublicKeyEntry.
type publicKeyInfo struct {
	ID              string `json:"id"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// payloadInfo is the assembled DID document before signing.
type payloadInfo struct {
	ID                   string                 `json:"id"`
	PublicKey            []publicKeyInfo        `json:"publicKey"`
	VerifiableCredential []verifiableCredential `json:"verifiableCredential"`
	Expires              string                 `json:"expires"`
	IssuerDate           string                 `json:"issuerDate"`
}

type proof struct {
	VerificationMethod string `json:"verificationMethod"`
	Signature          string `json:"signature"`
}

// DIDInfo is the fully assembled document wrapped into the did transaction
// payload.
type DIDInfo struct {
	Header  header      `json:"header"`
	Payload payloadInfo `json:"payload"`
	Proof   proof       `json:"proof"`
}

// ParseID validates a "did:elastos:<addr>" id string against the id-chain
// address variant, per step 1.
func ParseID(id string) (addr.Address, er.R) {
	if !strings.HasPrefix(id, idPrefix) {
		return addr.Address{}, ErrInvalidArgument.New("missing did:elastos: prefix", nil)
	}
	a, err := addr.Parse(strings.TrimPrefix(id, idPrefix))
	if err != nil {
		return addr.Address{}, ErrInvalidArgument.New("malformed did address", err)
	}
	if a.Prefix != addr.PrefixIDChain {
		return addr.Address{}, ErrInvalidArgument.New("address is not an id-chain address", nil)
	}
	return a, nil
}

// credentialTypes derives the ordered VerifiableCredential type list from
// which fields of subject are non-empty, per spec.md §4.9 step 4.
func credentialTypes(subject map[string]string) []string {
	types := append([]string{}, baseCredentialTypes...)
	if subject["phone"] != "" {
		types = append(types, "PhoneCredential")
	}
	for _, field := range internetAccountFields {
		if subject[field] != "" {
			types = append(types, "InternetAccountCredential")
			break
		}
	}
	return types
}

// Builder assembles and signs DID documents using a key.Provider for
// signing, per spec.md §4.9.
type Builder struct {
	signer keys.Provider
	now    func() time.Time
}

// NewBuilder constructs a Builder. now defaults to time.Now when nil; tests
// supply a fixed clock.
func NewBuilder(signer keys.Provider, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{signer: signer, now: now}
}

// Build assembles, signs, and returns the completed DIDInfo document for
// desc, along with the parsed id-chain address the resulting transaction's
// single output must target.
func (b *Builder) Build(desc Descriptor, password []byte) (DIDInfo, addr.Address, er.R) {
	idAddr, err := ParseID(desc.ID)
	if err != nil {
		return DIDInfo{}, addr.Address{}, err
	}

	if _, dErr := time.Parse(time.RFC3339, desc.Expires); dErr != nil {
		return DIDInfo{}, addr.Address{}, ErrInvalidDate.New("expires is not RFC3339", nil)
	}

	pkInfos := make([]publicKeyInfo, 0, len(desc.PublicKeys))
	for i := range desc.PublicKeys {
		entry := desc.PublicKeys[i]
		if rErr := entry.resolve(); rErr != nil {
			return DIDInfo{}, addr.Address{}, rErr
		}
		pkInfos = append(pkInfos, publicKeyInfo{ID: entry.ID, PublicKeyBase58: entry.PublicKeyBase58})
	}

	vc := verifiableCredential{
		Type:              credentialTypes(desc.CredentialSubject),
		CredentialSubject: desc.CredentialSubject,
	}

	h := header{Specification: Specification, Operation: string(desc.Operation)}

	// issuerDate resolves the open question of spec.md §9 as UTC, not
	// local time: "YYYY-MM-DDTHH:MM:SSZ" formatted from b.now() converted
	// to UTC, so the trailing Z is never a lie about the offset.
	issuerDate := b.now().UTC().Format("2006-01-02T15:04:05Z")

	pi := payloadInfo{
		ID:                   desc.ID,
		PublicKey:            pkInfos,
		VerifiableCredential: []verifiableCredential{vc},
		Expires:              desc.Expires,
		IssuerDate:           issuerDate,
	}

	canonicalPayload, mErr := canonicalJSON(pi)
	if mErr != nil {
		return DIDInfo{}, addr.Address{}, er.E(mErr)
	}

	var sourceData bytes.Buffer
	sourceData.WriteString(h.Specification)
	sourceData.WriteString(h.Operation)
	sourceData.Write(canonicalPayload)

	digest := [32]byte{}
	copy(digest[:], hashSourceData(sourceData.Bytes()))

	sig, sErr := b.signWithDID(idAddr, digest, password)
	if sErr != nil {
		return DIDInfo{}, addr.Address{}, sErr
	}

	info := DIDInfo{
		Header:  h,
		Payload: pi,
		Proof: proof{
			VerificationMethod: "#primary",
			Signature:          base64.StdEncoding.EncodeToString(sig),
		},
	}
	return info, idAddr, nil
}

// signWithDID signs digest with the private key owning idAddr's special DID
// derivation path.
func (b *Builder) signWithDID(idAddr addr.Address, digest [32]byte, password []byte) ([]byte, er.R) {
	path := keys.Path{Special: keys.SpecialDID}
	return b.signer.Sign(path, digest, password)
}

// Serialize renders info as the opaque JSON bytes carried in a PayloadDID.
func (info DIDInfo) Serialize() ([]byte, error) {
	return json.Marshal(info)
}

func canonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// hashSourceData double-SHA256es the assembled source_data string, matching
// the wire transaction's own digest convention (spec.md §3).
func hashSourceData(b []byte) []byte {
	h := chainhash.DoubleHashB(b)
	return h[:]
}
