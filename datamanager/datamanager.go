// Package datamanager owns the distributed maps and field buffers of a
// simulation and keeps them consistent across ghost updates and
// decomposition changes.
package datamanager

import (
	"github.com/notargets/PDData/field"
	"github.com/notargets/PDData/partitions"
	"github.com/notargets/PDData/state"
	"github.com/pkg/errors"
)

// ErrMissingMap is returned when a shape holds fields but has no map, or when
// a map is given on only one side of a rebalance.
var ErrMissingMap = errors.New("missing or inconsistent map")

// Maps is the map set of one decomposition. Scalar, Vector and Bond are
// overlap maps (owned points plus ghosts); Scalar has one point per element,
// Vector three and Bond one point per bond.
type Maps struct {
	OwnedScalar *partitions.Map
	OwnedVector *partitions.Map
	Scalar      *partitions.Map
	Vector      *partitions.Map
	Bond        *partitions.Map
}

func (m Maps) overlap(length field.Length) *partitions.Map {
	switch length {
	case field.Scalar:
		return m.Scalar
	case field.Vector3D:
		return m.Vector
	case field.Bond:
		return m.Bond
	}
	return nil
}

var shapes = []field.Length{field.Scalar, field.Vector3D, field.Bond}

// steps returns the temporal roles fields of the given arity live in
func steps(arch field.Arch) []field.Step {
	if arch == field.Stateless {
		return []field.Step{field.StepNone}
	}
	return []field.Step{field.StepN, field.StepNP1}
}

// DataManager owns the maps, the field catalog and the States of one rank.
// Slices returned by Data are valid until the next Rebalance.
type DataManager struct {
	maps      Maps
	ownedBond *partitions.Map // derived from OwnedScalar and Bond on first use

	catalog   field.Catalog
	allocated bool
	states    [3]*state.State // [field.Step]

	// Importers (overlap <- owned) per shape, valid for the current maps
	ghostImporters map[field.Length]*partitions.Importer

	rebalanceCount int
}

// New returns a DataManager without maps or fields.
func New() *DataManager {
	return &DataManager{ghostImporters: map[field.Length]*partitions.Importer{}}
}

// SetMaps installs the maps of the initial decomposition. It must be called
// before Allocate.
func (dm *DataManager) SetMaps(maps Maps) {
	dm.maps = maps
	dm.ownedBond = nil
	clear(dm.ghostImporters)
}

// Maps returns the current map set.
func (dm *DataManager) Maps() Maps { return dm.maps }

// Allocate classifies specs and allocates zeroed buffers for every field on
// the current maps.
func (dm *DataManager) Allocate(specs []field.Spec) error {
	if dm.allocated {
		return errors.New("fields already allocated")
	}
	catalog, err := field.Classify(specs)
	if err != nil {
		return err
	}
	for _, length := range shapes {
		if catalog.HasShape(length) && dm.maps.overlap(length) == nil {
			return errors.Wrapf(ErrMissingMap, "%s fields allocated before a %s map was set", length, length)
		}
	}

	states, err := dm.allocateStates(catalog, dm.maps)
	if err != nil {
		return err
	}
	dm.catalog = catalog
	dm.states = states
	dm.allocated = true
	return nil
}

// allocateStates builds zeroed States for every role the catalog needs
func (dm *DataManager) allocateStates(catalog field.Catalog, maps Maps) ([3]*state.State, error) {
	var states [3]*state.State
	for _, arch := range []field.Arch{field.Stateless, field.Stateful} {
		if !catalog.HasArch(arch) {
			continue
		}
		for _, step := range steps(arch) {
			s := state.New()
			for _, length := range shapes {
				specs := catalog.Fields(length, arch)
				if len(specs) == 0 {
					continue
				}
				var err error
				switch length {
				case field.Scalar:
					err = s.AllocateScalarData(specs, maps.Scalar)
				case field.Vector3D:
					err = s.AllocateVectorData(specs, maps.Vector)
				case field.Bond:
					err = s.AllocateBondData(specs, maps.Bond)
				}
				if err != nil {
					return states, errors.Wrapf(err, "allocating %s data for step %s", length, step)
				}
			}
			states[step] = s
		}
	}
	return states, nil
}

// Data returns the overlap-map view of spec at the given step.
func (dm *DataManager) Data(spec field.Spec, step field.Step) ([]float64, error) {
	s := dm.State(step)
	if s == nil {
		return nil, errors.Wrapf(state.ErrUnknownField, "%s: no data for step %s", spec, step)
	}
	return s.Data(spec)
}

// State returns the State of one role, nil when no field lives there.
func (dm *DataManager) State(step field.Step) *state.State {
	if step < field.StepNone || step > field.StepNP1 {
		return nil
	}
	return dm.states[step]
}

// FieldSpecs returns the classified fields.
func (dm *DataManager) FieldSpecs() []field.Spec { return dm.catalog.Specs() }

// RebalanceCount returns the number of completed rebalances.
func (dm *DataManager) RebalanceCount() int { return dm.rebalanceCount }

// UpdateState makes the NP1 buffers the N buffers and recycles the old N
// buffers as the next NP1.
func (dm *DataManager) UpdateState() {
	dm.states[field.StepN], dm.states[field.StepNP1] = dm.states[field.StepNP1], dm.states[field.StepN]
}

// CopyLocallyOwnedDataFrom copies the values of owned points for every field
// and step both managers hold. It is local; ghosts are left untouched.
func (dm *DataManager) CopyLocallyOwnedDataFrom(other *DataManager) error {
	if dm.maps.OwnedScalar == nil {
		return errors.Wrap(ErrMissingMap, "no owned scalar map")
	}
	for _, spec := range dm.catalog.Specs() {
		if !other.catalog.Contains(spec) {
			continue
		}

		owned := dm.maps.OwnedScalar
		if spec.Length == field.Vector3D {
			if dm.maps.OwnedVector == nil {
				return errors.Wrap(ErrMissingMap, "no owned vector map")
			}
			owned = dm.maps.OwnedVector
		}

		for _, step := range steps(spec.Arch) {
			dst, err := dm.Data(spec, step)
			if err != nil {
				return err
			}
			src, err := other.Data(spec, step)
			if err != nil {
				return err
			}
			err = copyElements(dst, dm.states[step].MultiVector(spec.Length).Map(),
				src, other.states[step].MultiVector(spec.Length).Map(),
				owned.MyGlobalElements(), spec.Length == field.Bond)
			if err != nil {
				return errors.Wrapf(err, "copying %s at step %s", spec, step)
			}
		}
	}
	return nil
}

// copyElements copies the element values of every gid from src to dst.
// Bond data may lack an element on both sides, meaning the point has no bonds.
func copyElements(dst []float64, dstMap *partitions.Map, src []float64, srcMap *partitions.Map,
	gids []int, bonds bool) error {
	for _, gid := range gids {
		dl, sl := dstMap.LID(gid), srcMap.LID(gid)
		switch {
		case dl < 0 && sl < 0 && bonds:
			continue
		case dl < 0 || sl < 0:
			return errors.Wrapf(partitions.ErrLookup, "global id %d missing from a map", gid)
		case dstMap.ElementSize(dl) != srcMap.ElementSize(sl):
			return errors.Wrapf(partitions.ErrMapMismatch, "global id %d has %d points here, %d there",
				gid, dstMap.ElementSize(dl), srcMap.ElementSize(sl))
		}
		d, s := dstMap.FirstPointInElement(dl), srcMap.FirstPointInElement(sl)
		n := dstMap.ElementSize(dl)
		copy(dst[d:d+n], src[s:s+n])
	}
	return nil
}
