package datamanager

import (
	"context"
	"github.com/notargets/PDData/field"
	"github.com/notargets/PDData/partitions"
	"github.com/notargets/PDData/state"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Rebalance moves every field at every step onto the maps of a new
// decomposition. Ghosts are made consistent first, then each buffer is
// imported into a freshly allocated one. The new maps and buffers replace the
// old ones only once all imports succeed. It is collective.
func (dm *DataManager) Rebalance(ctx context.Context, maps Maps) error {
	for _, length := range shapes {
		if (dm.maps.overlap(length) == nil) != (maps.overlap(length) == nil) {
			return errors.Wrapf(ErrMissingMap, "inconsistent %s maps", length)
		}
	}

	if err := dm.ScatterToGhosts(ctx); err != nil {
		return err
	}

	// Importers, new <- old
	var importers [3]*partitions.Importer
	for _, length := range shapes {
		if maps.overlap(length) == nil {
			continue
		}
		imp, err := partitions.NewImporter(ctx, maps.overlap(length), dm.maps.overlap(length))
		if err != nil {
			return errors.Wrapf(err, "building %s rebalance importer", length)
		}
		importers[length] = imp
	}

	var states [3]*state.State
	if dm.allocated {
		var err error
		if states, err = dm.allocateStates(dm.catalog, maps); err != nil {
			return err
		}
	}
	for step, s := range states {
		if s == nil {
			continue
		}
		for _, length := range shapes {
			dst := s.MultiVector(length)
			if dst == nil {
				continue
			}
			src := dm.states[step].MultiVector(length)
			if err := dst.Import(ctx, src, importers[length]); err != nil {
				return errors.Wrapf(err, "importing %s data of step %s", length, field.Step(step))
			}
		}
	}

	dm.states = states
	dm.SetMaps(maps)
	dm.rebalanceCount++

	logger.Get(ctx).Debug("Rebalance complete",
		zap.Int("rebalance", dm.rebalanceCount),
		zap.Int("ownedPoints", pointCount(maps.OwnedScalar)),
		zap.Int("overlapPoints", pointCount(maps.Scalar)))
	return nil
}

func pointCount(m *partitions.Map) int {
	if m == nil {
		return 0
	}
	return m.NumMyElements()
}
