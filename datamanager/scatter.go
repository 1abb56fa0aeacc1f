package datamanager

import (
	"context"
	"github.com/notargets/PDData/field"
	"github.com/notargets/PDData/partitions"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ScatterToGhosts overwrites every ghost value, at every step and shape, with
// the value held by the point's owner. It is collective.
func (dm *DataManager) ScatterToGhosts(ctx context.Context) error {
	if err := dm.checkScatterMaps(); err != nil {
		return err
	}

	log := logger.Get(ctx)
	for step, s := range dm.states {
		if s == nil {
			continue
		}
		for _, length := range shapes {
			overlap := s.MultiVector(length)
			if overlap == nil {
				continue
			}

			imp, err := dm.ghostImporter(ctx, length)
			if err != nil {
				return err
			}
			if err := scatter(ctx, overlap, imp, length == field.Bond); err != nil {
				return errors.Wrapf(err, "scattering %s data of step %s", length, field.Step(step))
			}
			log.Debug("Ghosts updated",
				zap.Stringer("step", field.Step(step)),
				zap.Stringer("shape", length),
				zap.Int("fields", overlap.NumVectors()),
				zap.Int("remote", imp.NumRemoteIDs()))
		}
	}
	return nil
}

// checkScatterMaps verifies every map a scatter needs before any buffer is
// touched
func (dm *DataManager) checkScatterMaps() error {
	for _, length := range shapes {
		present := false
		for _, s := range dm.states {
			present = present || (s != nil && s.MultiVector(length) != nil)
		}
		if !present {
			continue
		}

		switch length {
		case field.Scalar:
			if dm.maps.Scalar == nil || dm.maps.OwnedScalar == nil {
				return errors.Wrap(ErrMissingMap, "inconsistent scalar maps")
			}
		case field.Vector3D:
			if dm.maps.Vector == nil || dm.maps.OwnedVector == nil {
				return errors.Wrap(ErrMissingMap, "inconsistent vector maps")
			}
		case field.Bond:
			if dm.maps.Bond == nil || dm.maps.OwnedScalar == nil {
				return errors.Wrap(ErrMissingMap, "invalid bond map")
			}
		}
	}
	return nil
}

// ghostImporter returns the (overlap <- owned) importer of a shape, building
// it on first use. It is collective when it builds.
func (dm *DataManager) ghostImporter(ctx context.Context, length field.Length) (*partitions.Importer, error) {
	if imp, ok := dm.ghostImporters[length]; ok {
		return imp, nil
	}

	var owned *partitions.Map
	switch length {
	case field.Scalar:
		owned = dm.maps.OwnedScalar
	case field.Vector3D:
		owned = dm.maps.OwnedVector
	case field.Bond:
		var err error
		if owned, err = dm.ownedBondMap(ctx); err != nil {
			return nil, err
		}
	}

	imp, err := partitions.NewImporter(ctx, dm.maps.overlap(length), owned)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s ghost importer", length)
	}
	dm.ghostImporters[length] = imp
	return imp, nil
}

// ownedBondMap derives the owned bond map from the owned scalar map, taking
// each point's size from the bond map. Points with no bonds are not in the
// bond map and are left out.
func (dm *DataManager) ownedBondMap(ctx context.Context) (*partitions.Map, error) {
	if dm.ownedBond != nil {
		return dm.ownedBond, nil
	}

	var gids, sizes []int
	for _, gid := range dm.maps.OwnedScalar.MyGlobalElements() {
		lid := dm.maps.Bond.LID(gid)
		if lid < 0 {
			continue
		}
		gids = append(gids, gid)
		sizes = append(sizes, dm.maps.Bond.ElementSize(lid))
	}

	m, err := partitions.NewVariableMap(ctx, dm.maps.OwnedScalar.Comm(), gids, sizes)
	if err != nil {
		return nil, errors.Wrap(err, "deriving owned bond map")
	}
	dm.ownedBond = m
	return m, nil
}

// scatter copies the owned values of overlap into a scratch buffer on the
// importer's source map and imports them back over every copy
func scatter(ctx context.Context, overlap *partitions.MultiVector[float64], imp *partitions.Importer, bonds bool) error {
	owned := imp.Source()
	scratch := partitions.NewMultiVector[float64](owned, overlap.NumVectors())

	for v := range overlap.NumVectors() {
		err := copyElements(scratch.Vector(v), owned, overlap.Vector(v), overlap.Map(),
			owned.MyGlobalElements(), bonds)
		if err != nil {
			return err
		}
	}
	return overlap.Import(ctx, scratch, imp)
}
