package proximity

import (
	"context"
	"github.com/notargets/PDData/partitions"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/weaviate/sroar"
	"go.uber.org/zap"
)

// RebalanceNeighborhoodList carries the neighbor list of the current
// decomposition to the one described by targetOwned. It returns the target
// overlap map (target-owned points followed by the ghosts their neighbors
// need, ascending) and the target list referencing it. It is collective.
func RebalanceNeighborhoodList(
	ctx context.Context,
	currentOwned, currentOverlap *partitions.Map,
	list NeighborList,
	targetOwned *partitions.Map,
) (*partitions.Map, NeighborList, error) {
	if err := list.Validate(currentOwned.NumMyElements(), currentOverlap.NumMyElements()); err != nil {
		return nil, nil, err
	}
	c := currentOwned.Comm()

	// Step 1: neighbor counts into the target decomposition
	currentOne, err := partitions.OnePointMap(ctx, currentOwned)
	if err != nil {
		return nil, nil, err
	}
	targetOne, err := partitions.OnePointMap(ctx, targetOwned)
	if err != nil {
		return nil, nil, err
	}
	currentCounts := partitions.NewMultiVector[int](currentOne, 1)
	copy(currentCounts.Vector(0), list.Counts())

	countImporter, err := partitions.NewImporter(ctx, targetOne, currentOne)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building neighbor count importer")
	}
	targetCounts := partitions.NewMultiVector[int](targetOne, 1)
	if err := targetCounts.Import(ctx, currentCounts, countImporter); err != nil {
		return nil, nil, err
	}

	// Step 2: neighbor global IDs as variable-size elements, points without
	// neighbors left out
	currentNeighbors, err := variableMap(ctx, currentOne, currentCounts.Vector(0))
	if err != nil {
		return nil, nil, err
	}
	currentPayload := partitions.NewMultiVector[int](currentNeighbors, 1)
	globals, err := list.GlobalNeighbors(currentOverlap)
	if err != nil {
		return nil, nil, err
	}
	payload, offset := currentPayload.Vector(0), 0
	for _, gids := range globals {
		offset += copy(payload[offset:], gids)
	}

	// Step 3: the same shape on the target side, filled by import
	targetNeighbors, err := variableMap(ctx, targetOne, targetCounts.Vector(0))
	if err != nil {
		return nil, nil, err
	}
	neighborImporter, err := partitions.NewImporter(ctx, targetNeighbors, currentNeighbors)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building neighborhood importer")
	}
	targetPayload := partitions.NewMultiVector[int](targetNeighbors, 1)
	if err := targetPayload.Import(ctx, currentPayload, neighborImporter); err != nil {
		return nil, nil, err
	}

	// Step 4: target overlap map, owned points then off-rank neighbors
	ghosts := sroar.NewBitmap()
	for _, gid := range targetPayload.Vector(0) {
		if targetOwned.LID(gid) < 0 {
			ghosts.Set(uint64(gid))
		}
	}
	overlapGIDs := targetOwned.MyGlobalElements()
	for _, gid := range ghosts.ToArray() {
		overlapGIDs = append(overlapGIDs, int(gid))
	}
	targetOverlap, err := partitions.NewMap(ctx, c, overlapGIDs, 1)
	if err != nil {
		return nil, nil, err
	}

	// Step 5: flatten against the target overlap map
	var targetList NeighborList
	for _, gid := range targetOwned.MyGlobalElements() {
		lid := targetNeighbors.LID(gid)
		if lid < 0 {
			targetList = append(targetList, 0)
			continue
		}
		neighbors := targetPayload.ElementValues(0, lid)
		targetList = append(targetList, len(neighbors))
		for _, ngid := range neighbors {
			targetList = append(targetList, targetOverlap.LID(ngid))
		}
	}

	logger.Get(ctx).Debug("Neighborhood list rebalanced",
		zap.Int("rank", c.Rank()),
		zap.Int("ownedPoints", targetOwned.NumMyElements()),
		zap.Int("ghosts", ghosts.GetCardinality()),
		zap.Int("bonds", targetPayload.MyLength()))

	return targetOverlap, targetList, nil
}

// variableMap builds a map over the elements of m with counts[lid] points
// each, leaving out elements whose count is zero. It is collective.
func variableMap(ctx context.Context, m *partitions.Map, counts []int) (*partitions.Map, error) {
	var gids, sizes []int
	for lid, n := range counts {
		if n > 0 {
			gids = append(gids, m.GID(lid))
			sizes = append(sizes, n)
		}
	}
	return partitions.NewVariableMap(ctx, m.Comm(), gids, sizes)
}
