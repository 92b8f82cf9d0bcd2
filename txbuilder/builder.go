// Package txbuilder implements the Transaction Builder of spec.md §4.7:
// assembling an unsigned transaction of a declared type from a resolved
// Grouped Asset Ledger selection, then signing it via a key.Provider.
//
// Grounded on pktwallet/wallet's createtx.go (the build-then-sign split,
// program/witness-slot emission keyed by unique signer) adapted to this
// wallet's tagged-payload transaction model instead of pktd/wire's MsgTx.
package txbuilder

import (
	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
	"github.com/elastos-sidechain/spvwallet/ledger"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Err is the error family for this package.
var Err = er.NewErrorType("txbuilder.Err")

var (
	// ErrInconsistentAsset is returned when the requested outputs cannot be
	// built: none were given, or Max is set without exactly one
	// destination. Every output takes the Builder's own asset, so a request
	// cannot mix assets.
	ErrInconsistentAsset = Err.Code("InconsistentAsset")
	// ErrMemoTooLarge is returned when the memo exceeds the 100-byte cap.
	ErrMemoTooLarge = Err.Code("MemoTooLarge")
)

// MaxMemoBytes is the hard cap on a memo attribute's UTF-8 encoding, per
// spec.md §4.7.
const MaxMemoBytes = 100

// baseOverhead approximates the fixed framing cost (version, type, payload
// length prefix, lock_time, attribute/program count prefixes) independent
// of input/output count.
const baseOverhead = 16

// OutputRequest is one caller-specified destination.
type OutputRequest struct {
	Address addr.Address
	Amount  money.Amount
}

// Request describes a create_tx call, per spec.md §4.7.
type Request struct {
	Type        txtypes.Type
	Payload     txtypes.Payload
	// FromAddress is carried with the request; CreateTx does not read it,
	// and inputs come from every eligible UTXO of the asset.
	FromAddress *addr.Address
	Outputs     []OutputRequest
	Memo        string
	Max         bool
	LockTime    uint32
	// AllowVoteConsume permits selection to spend UTXOs already locked by a
	// standing vote (spec.md §4.6's allowVoteConsume); false by default so
	// an ordinary spend never disturbs a standing vote.
	AllowVoteConsume bool
}

// Builder assembles and signs transactions for one Grouped Asset Ledger.
type Builder struct {
	asset   txtypes.AssetId
	group   *ledger.Group
	signer  keys.Provider
	isOwn   func(addr.Address) bool
	locator AddressLocator
}

// AddressLocator resolves the derivation path owning a given address, so
// Sign knows which key to derive. The Address Book implements this.
type AddressLocator interface {
	PathFor(a addr.Address) (keys.Path, bool)
	ChangeAddress() (addr.Address, er.R)
}

// NewBuilder constructs a Builder bound to one asset's ledger group.
func NewBuilder(asset txtypes.AssetId, group *ledger.Group, signer keys.Provider, isOwn func(addr.Address) bool, locator AddressLocator) *Builder {
	return &Builder{asset: asset, group: group, signer: signer, isOwn: isOwn, locator: locator}
}

// CreateTx implements spec.md §4.7's create_tx operation.
func (b *Builder) CreateTx(req Request) (*txtypes.Transaction, er.R) {
	if err := txtypes.CheckPayloadType(req.Type, req.Payload); err != nil {
		return nil, err
	}
	if len(req.Memo) > MaxMemoBytes {
		return nil, ErrMemoTooLarge.New("", nil)
	}

	// A DID transaction's single output carries no value by design (spec.md
	// §4.9 step 10: "single zero-amount output to id_address"); every other
	// type follows the ordinary dust floor.
	allowZero := req.Type == txtypes.TypeDID

	target := money.Zero
	var outputs []txtypes.Output
	if !req.Max {
		if len(req.Outputs) == 0 {
			return nil, ErrInconsistentAsset.New("no outputs requested", nil)
		}
		for _, o := range req.Outputs {
			if err := money.CheckOutputAmount(o.Amount, allowZero); err != nil {
				return nil, err
			}
			var addErr er.R
			target, addErr = target.Add(o.Amount)
			if addErr != nil {
				return nil, addErr
			}
			outputs = append(outputs, txtypes.Output{
				Amount:  uint64(o.Amount.Int64()),
				Address: o.Address,
				Asset:   b.asset,
			})
		}
	} else if len(req.Outputs) != 1 {
		return nil, ErrInconsistentAsset.New("max=true requires exactly one destination", nil)
	}

	numOutputs := len(outputs) + 1 // provisional: assume one change output
	overhead := baseOverhead
	if req.Memo != "" {
		overhead += len(req.Memo) + 2
	}

	var sel ledger.Selection
	var err er.R
	if req.Max {
		sel, err = b.group.Consolidate(overhead, req.AllowVoteConsume)
		if err != nil {
			return nil, err
		}
		outputs = []txtypes.Output{{
			Amount:  uint64(sel.Change.Int64()),
			Address: req.Outputs[0].Address,
			Asset:   b.asset,
		}}
		sel.Change = money.Zero
	} else {
		sel, err = b.group.Select(target, numOutputs, overhead, req.AllowVoteConsume)
		if err != nil {
			return nil, err
		}
	}

	if !sel.Change.IsZero() {
		changeAddr, cerr := b.locator.ChangeAddress()
		if cerr != nil {
			return nil, cerr
		}
		outputs = append(outputs, txtypes.Output{
			Amount:  uint64(sel.Change.Int64()),
			Address: changeAddr,
			Asset:   b.asset,
		})
	}

	var inputs []txtypes.Input
	for _, u := range sel.Inputs {
		inputs = append(inputs, txtypes.Input{Outpoint: u.Outpoint, Sequence: 0xffffffff})
	}

	var attributes [][]byte
	if req.Memo != "" {
		attributes = append(attributes, append([]byte{txtypes.AttributeKindDescription}, []byte(req.Memo)...))
	}

	programs := b.emitPrograms(sel.Inputs)

	tx := &txtypes.Transaction{
		Version:    0,
		Type:       req.Type,
		Payload:    req.Payload,
		Attributes: attributes,
		Inputs:     inputs,
		Outputs:    outputs,
		LockTime:   req.LockTime,
		Programs:   programs,
	}

	size := len(tx.Serialize())
	if err := money.CheckSize(size); err != nil {
		return nil, err
	}
	return tx, nil
}

// emitPrograms creates one program slot per unique input signer, per
// spec.md §4.7 step 3. Parameter is left empty for Sign to fill in later.
func (b *Builder) emitPrograms(inputs []store.UTXO) []txtypes.Program {
	seen := make(map[addr.Address]bool)
	var programs []txtypes.Program
	for _, u := range inputs {
		a := u.Output.Address
		if seen[a] {
			continue
		}
		seen[a] = true
		programs = append(programs, txtypes.Program{
			Code:      append([]byte{byte(a.Prefix)}, a.ProgramHash[:]...),
			Parameter: nil,
		})
	}
	return programs
}

// Sign fills in every program's Parameter with an ECDSA signature over the
// transaction's signable hash, per spec.md §4.7's sign operation.
func (b *Builder) Sign(tx *txtypes.Transaction, password []byte) er.R {
	digest := [32]byte(tx.SignableHash())
	for i := range tx.Programs {
		a, ok := b.programAddress(tx.Programs[i])
		if !ok {
			return keys.ErrMissingKey.New("unresolvable program address", nil)
		}
		path, ok := b.locator.PathFor(a)
		if !ok {
			return keys.ErrMissingKey.New("no derivation path for address", nil)
		}
		sig, err := b.signer.Sign(path, digest, password)
		if err != nil {
			return err
		}
		tx.Programs[i].Parameter = sig
	}
	return nil
}

func (b *Builder) programAddress(p txtypes.Program) (addr.Address, bool) {
	if len(p.Code) != addr.ProgramHashSize+1 {
		return addr.Address{}, false
	}
	var ph [addr.ProgramHashSize]byte
	copy(ph[:], p.Code[1:])
	return addr.FromProgramHash(ph, addr.Prefix(p.Code[0])), true
}
