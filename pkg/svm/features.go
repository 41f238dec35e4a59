package svm

import (
	"bytes"
	"sort"

	"github.com/fortiblox/seashell/internal/types"
)

// KnownFeatures lists the feature gates the builtin table consults.
func KnownFeatures() []types.Pubkey {
	return []types.Pubkey{types.FeatureSecp256r1Precompile}
}

// FeatureSet is the set of active runtime feature gates.
type FeatureSet struct {
	active map[types.Pubkey]struct{}
}

// NewFeatureSet returns a set with the given features active.
func NewFeatureSet(ids ...types.Pubkey) *FeatureSet {
	fs := &FeatureSet{active: make(map[types.Pubkey]struct{}, len(ids))}
	for _, id := range ids {
		fs.active[id] = struct{}{}
	}
	return fs
}

// AllEnabled returns a set with every known feature active.
func AllEnabled() *FeatureSet {
	return NewFeatureSet(KnownFeatures()...)
}

// IsActive reports whether id is active. A nil set has nothing active.
func (fs *FeatureSet) IsActive(id types.Pubkey) bool {
	if fs == nil {
		return false
	}
	_, ok := fs.active[id]
	return ok
}

// Activate turns id on.
func (fs *FeatureSet) Activate(id types.Pubkey) {
	fs.active[id] = struct{}{}
}

// Deactivate turns id off.
func (fs *FeatureSet) Deactivate(id types.Pubkey) {
	delete(fs.active, id)
}

// Active returns the active features in byte order.
func (fs *FeatureSet) Active() []types.Pubkey {
	if fs == nil {
		return nil
	}
	out := make([]types.Pubkey, 0, len(fs.active))
	for id := range fs.active {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
