package field

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"slices"
)

// Catalog is the deduplicated field set split by shape and arity. It never
// changes after Classify.
type Catalog struct {
	specs   []Spec
	buckets [3][2][]Spec // [Length][Arch]
}

// Classify deduplicates specs and sorts them into the six shape/arity buckets.
func Classify(specs []Spec) (Catalog, error) {
	var cat Catalog
	cat.specs = Dedup(specs)

	for _, s := range cat.specs {
		if err := s.Validate(); err != nil {
			return Catalog{}, err
		}
	}
	if dups := lo.FindDuplicatesBy(cat.specs, func(s Spec) string { return s.Label }); len(dups) > 0 {
		return Catalog{}, errors.Wrapf(ErrInvalidSpec, "label %q used with different shapes or arities", dups[0].Label)
	}

	for _, s := range cat.specs {
		cat.buckets[s.Length][s.Arch] = append(cat.buckets[s.Length][s.Arch], s)
	}
	return cat, nil
}

// Specs returns every classified spec in sorted order.
func (c Catalog) Specs() []Spec { return slices.Clone(c.specs) }

// Len returns the number of classified specs.
func (c Catalog) Len() int { return len(c.specs) }

// Fields returns the specs of one bucket.
func (c Catalog) Fields(length Length, arch Arch) []Spec {
	if !length.Valid() || !arch.Valid() {
		return nil
	}
	return slices.Clone(c.buckets[length][arch])
}

// HasShape reports whether any field of the given shape exists.
func (c Catalog) HasShape(length Length) bool {
	return length.Valid() && len(c.buckets[length][Stateless])+len(c.buckets[length][Stateful]) > 0
}

// HasArch reports whether any field of the given arity exists.
func (c Catalog) HasArch(arch Arch) bool {
	if !arch.Valid() {
		return false
	}
	for l := range c.buckets {
		if len(c.buckets[l][arch]) > 0 {
			return true
		}
	}
	return false
}

// Contains reports whether spec was classified.
func (c Catalog) Contains(spec Spec) bool {
	_, found := slices.BinarySearchFunc(c.specs, spec, Spec.Compare)
	return found
}
