// Package asset implements the Asset Registry: asset id to metadata,
// case-insensitive name uniqueness, and the always-present native asset.
package asset

import (
	"sort"
	"strings"
	"sync"

	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/txtypes"
)

// Err is the error family for this package.
var Err = er.NewErrorType("asset.Err")

// ErrDuplicate is returned when an asset id or case-insensitive name
// already exists.
var ErrDuplicate = Err.Code("Duplicate")

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = Err.Code("NotFound")

// Asset is the registry's metadata record for one ledger currency.
type Asset struct {
	ID                 txtypes.AssetId
	Name               string
	Precision          uint8
	Controller         [21]byte
	RegistrationAmount money.Amount
}

// Registry owns every known Asset, keyed by id, with a parallel
// case-insensitive name index. Construction always installs the native
// asset, which can never be removed.
type Registry struct {
	mu      sync.RWMutex
	byID    map[txtypes.AssetId]Asset
	byName  map[string]txtypes.AssetId // lowercased name -> id
}

// NewRegistry constructs a registry with the native asset pre-installed.
func NewRegistry(nativeName string, nativePrecision uint8) *Registry {
	r := &Registry{
		byID:   make(map[txtypes.AssetId]Asset),
		byName: make(map[string]txtypes.AssetId),
	}
	native := Asset{
		ID:        txtypes.NativeAssetId,
		Name:      nativeName,
		Precision: nativePrecision,
	}
	r.byID[native.ID] = native
	r.byName[strings.ToLower(native.Name)] = native.ID
	return r
}

// Register inserts a into the registry. Fails Duplicate if the id or
// case-insensitive name already exists.
func (r *Registry) Register(a Asset) er.R {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; ok {
		return ErrDuplicate.New("asset id already registered", nil)
	}
	lname := strings.ToLower(a.Name)
	if _, ok := r.byName[lname]; ok {
		return ErrDuplicate.New("asset name already registered", nil)
	}
	r.byID[a.ID] = a
	r.byName[lname] = a.ID
	return nil
}

// Get returns the asset for id, or NotFound.
func (r *Registry) Get(id txtypes.AssetId) (Asset, er.R) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Asset{}, ErrNotFound.New("", nil)
	}
	return a, nil
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id txtypes.AssetId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// NameExists reports whether name is already registered, case-insensitively.
func (r *Registry) NameExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[strings.ToLower(name)]
	return ok
}

// List returns every registered asset, stably sorted by id.
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Asset, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// FromRegisterAssetPayload builds the Asset metadata observed in a
// processed RegisterAsset transaction, per spec.md §4.2 ("Registration is
// triggered only by observing a RegisterAsset payload").
func FromRegisterAssetPayload(id txtypes.AssetId, p txtypes.PayloadRegisterAsset) (Asset, er.R) {
	amt, err := money.NewAmount(int64(p.RegistrationAmount))
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		ID:                 id,
		Name:               p.Name,
		Precision:          p.Precision,
		Controller:         p.Controller,
		RegistrationAmount: amt,
	}, nil
}
