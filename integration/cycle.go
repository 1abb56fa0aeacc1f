// Package integration drives the whole data path on a simulated world: global
// neighbor search, field allocation, ghost updates and repeated rebalancing.
package integration

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/notargets/PDData/datamanager"
	"github.com/notargets/PDData/field"
	"github.com/notargets/PDData/partitions"
	"github.com/notargets/PDData/proximity"
	"github.com/notargets/PDData/utils"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Report summarizes the run of one rank
type Report struct {
	Rank        int
	Rebalances  int
	OwnedPoints int
	GhostPoints int
	Bonds       int
	Stats       partitions.PartitionStats // of the final decomposition
}

// Run executes RunCycle on every rank of a new world.
func Run(ctx context.Context, cfg Config) ([]Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	world, err := comm.NewWorld(cfg.Ranks)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, cfg.Ranks)
	err = world.Run(ctx, func(ctx context.Context, c *comm.Comm) error {
		r, err := RunCycle(ctx, c, cfg)
		reports[c.Rank()] = r
		return err
	})
	return reports, err
}

// RunCycle builds the lattice of cfg on the initial decomposition, searches
// neighbors, allocates the shared fields and rebalances cfg.Cycles times,
// alternating between the target and the initial strategy. After every step
// it checks that coordinates, neighbor counts, bond data and both temporal
// roles survived. It is collective.
func RunCycle(ctx context.Context, c *comm.Comm, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	lattice := cfg.Lattice3D()
	initial := lo.Must(partitions.ParseStrategy(cfg.InitialStrategy))
	target := lo.Must(partitions.ParseStrategy(cfg.TargetStrategy))
	log := logger.Get(ctx)

	// Initial decomposition: blocks reshaped by the initial strategy
	blocks, err := lattice.Positions(ctx, c, utils.BlockGIDs(lattice.NumPoints(), c.Size(), c.Rank()))
	if err != nil {
		return Report{}, err
	}
	dest, err := partitions.PartitionBuilder{Strategy: initial}.Partition(ctx, c, partitions.Cloud{
		GIDs:   blocks.Map().MyGlobalElements(),
		Coords: blocks.Vector(0),
	})
	if err != nil {
		return Report{}, err
	}
	owned, err := partitions.MigrateMap(ctx, blocks.Map(), dest)
	if err != nil {
		return Report{}, err
	}
	x, err := lattice.Positions(ctx, c, owned.MyGlobalElements())
	if err != nil {
		return Report{}, err
	}

	nh, err := proximity.GlobalProximitySearch(ctx, x, cfg.Horizon)
	if err != nil {
		return Report{}, err
	}
	maps, err := buildMaps(ctx, x.Map(), nh.OwnedMap, nh.OverlapMap, nh.List)
	if err != nil {
		return Report{}, err
	}

	dm := datamanager.New()
	dm.SetMaps(maps)
	if err := dm.Allocate(field.Known()); err != nil {
		return Report{}, err
	}
	if err := initialize(dm, lattice, nh.List); err != nil {
		return Report{}, err
	}
	if err := dm.ScatterToGhosts(ctx); err != nil {
		return Report{}, err
	}
	list := nh.List
	if err := verify(dm, lattice, list, 0); err != nil {
		return Report{}, errors.Wrapf(err, "rank %d after search", c.Rank())
	}

	layout, err := gatherLayout(ctx, c, dm.Maps().OwnedScalar)
	if err != nil {
		return Report{}, err
	}
	if c.Rank() == 0 {
		log.Info("Neighborhoods built",
			zap.Int("points", lattice.NumPoints()),
			zap.Float64("horizon", cfg.Horizon),
			zap.Stringer("strategy", initial),
			zap.Float64("imbalance", layout.PartitionStatistics().Imbalance))
	}

	for cycle := range cfg.Cycles {
		strategy := target
		if cycle%2 == 1 {
			strategy = initial
		}

		old := dm.Maps()
		cloud, err := ownedCloud(dm)
		if err != nil {
			return Report{}, err
		}
		dest, err := partitions.PartitionBuilder{Strategy: strategy}.Partition(ctx, c, cloud)
		if err != nil {
			return Report{}, err
		}
		ownedScalar, err := partitions.MigrateMap(ctx, old.OwnedScalar, dest)
		if err != nil {
			return Report{}, err
		}
		ownedVector, err := partitions.NewMap(ctx, c, ownedScalar.MyGlobalElements(), 3)
		if err != nil {
			return Report{}, err
		}
		overlap, newList, err := proximity.RebalanceNeighborhoodList(ctx, old.OwnedScalar, old.Scalar, list, ownedScalar)
		if err != nil {
			return Report{}, err
		}
		maps, err := buildMaps(ctx, ownedVector, ownedScalar, overlap, newList)
		if err != nil {
			return Report{}, err
		}
		if err := dm.Rebalance(ctx, maps); err != nil {
			return Report{}, err
		}
		list = newList

		if err := verify(dm, lattice, list, cycle); err != nil {
			return Report{}, errors.Wrapf(err, "rank %d after rebalance %d", c.Rank(), cycle+1)
		}
		dm.UpdateState()

		if layout, err = gatherLayout(ctx, c, ownedScalar); err != nil {
			return Report{}, err
		}
		if c.Rank() == 0 {
			stats := layout.PartitionStatistics()
			log.Info("Rebalance cycle complete",
				zap.Int("cycle", cycle+1),
				zap.Stringer("strategy", strategy),
				zap.Int("minPoints", stats.MinElements),
				zap.Int("maxPoints", stats.MaxElements),
				zap.Float64("imbalance", stats.Imbalance))
		}
	}

	final := dm.Maps()
	return Report{
		Rank:        c.Rank(),
		Rebalances:  dm.RebalanceCount(),
		OwnedPoints: final.OwnedScalar.NumMyElements(),
		GhostPoints: final.Scalar.NumMyElements() - final.OwnedScalar.NumMyElements(),
		Bonds:       lo.Sum(list.Counts()),
		Stats:       layout.PartitionStatistics(),
	}, nil
}

// buildMaps assembles the map set of a decomposition from its owned maps,
// overlap map and neighbor list. Points without neighbors stay out of the
// bond map.
func buildMaps(ctx context.Context, ownedVector, ownedScalar, overlap *partitions.Map,
	list proximity.NeighborList) (datamanager.Maps, error) {
	vector, err := partitions.NewMap(ctx, overlap.Comm(), overlap.MyGlobalElements(), 3)
	if err != nil {
		return datamanager.Maps{}, err
	}

	var gids, sizes []int
	for lid, n := range list.Counts() {
		if n > 0 {
			gids = append(gids, ownedScalar.GID(lid))
			sizes = append(sizes, n)
		}
	}
	bond, err := partitions.NewVariableMap(ctx, overlap.Comm(), gids, sizes)
	if err != nil {
		return datamanager.Maps{}, err
	}

	return datamanager.Maps{
		OwnedScalar: ownedScalar,
		OwnedVector: ownedVector,
		Scalar:      overlap,
		Vector:      vector,
		Bond:        bond,
	}, nil
}

// initialize writes owned values only; ghosts are left for ScatterToGhosts.
// Bond damage holds the neighbor's global ID so bond order can be checked.
func initialize(dm *datamanager.DataManager, lattice utils.Lattice, list proximity.NeighborList) error {
	maps := dm.Maps()
	coords, err := dm.Data(field.Coordinates3D, field.StepNone)
	if err != nil {
		return err
	}
	volume, err := dm.Data(field.Volume, field.StepNone)
	if err != nil {
		return err
	}
	numNeighbors, err := dm.Data(field.NumberOfNeighbors, field.StepNone)
	if err != nil {
		return err
	}
	dilatationN, err := dm.Data(field.Dilatation, field.StepN)
	if err != nil {
		return err
	}
	dilatationNP1, err := dm.Data(field.Dilatation, field.StepNP1)
	if err != nil {
		return err
	}
	damage, err := dm.Data(field.BondDamage, field.StepN)
	if err != nil {
		return err
	}

	globals, err := list.GlobalNeighbors(maps.Scalar)
	if err != nil {
		return err
	}
	cell := lattice.Spacing * lattice.Spacing * lattice.Spacing
	for lid, gid := range maps.OwnedScalar.MyGlobalElements() {
		xyz := lattice.Coordinates(gid)
		v := maps.Vector.LID(gid)
		copy(coords[3*v:3*v+3], xyz[:])

		s := maps.Scalar.LID(gid)
		volume[s] = cell
		numNeighbors[s] = float64(len(globals[lid]))
		dilatationN[s] = float64(gid)
		dilatationNP1[s] = float64(gid) + 0.5

		if b := maps.Bond.LID(gid); b >= 0 {
			first := maps.Bond.FirstPointInElement(b)
			for j, ngid := range globals[lid] {
				damage[first+j] = float64(ngid)
			}
		}
	}
	return nil
}

// verify checks every overlap point's coordinates and volume, and every owned
// point's neighbor count, bond data and dilatation after updates swaps
func verify(dm *datamanager.DataManager, lattice utils.Lattice, list proximity.NeighborList, updates int) error {
	maps := dm.Maps()
	coords, _ := dm.Data(field.Coordinates3D, field.StepNone)
	volume, _ := dm.Data(field.Volume, field.StepNone)
	numNeighbors, _ := dm.Data(field.NumberOfNeighbors, field.StepNone)
	dilatationN, _ := dm.Data(field.Dilatation, field.StepN)
	damage, _ := dm.Data(field.BondDamage, field.StepN)
	if updates%2 == 1 {
		// Bond damage lives in N; after an odd number of swaps it sits in NP1
		damage, _ = dm.Data(field.BondDamage, field.StepNP1)
	}

	cell := lattice.Spacing * lattice.Spacing * lattice.Spacing
	for v, gid := range maps.Vector.MyGlobalElements() {
		xyz := lattice.Coordinates(gid)
		if got := coords[3*v : 3*v+3]; got[0] != xyz[0] || got[1] != xyz[1] || got[2] != xyz[2] {
			return errors.Errorf("point %d at %v, expected %v", gid, got, xyz)
		}
		if s := maps.Scalar.LID(gid); volume[s] != cell {
			return errors.Errorf("point %d has volume %g, expected %g", gid, volume[s], cell)
		}
	}

	globals, err := list.GlobalNeighbors(maps.Scalar)
	if err != nil {
		return err
	}
	for lid, gid := range maps.OwnedScalar.MyGlobalElements() {
		s := maps.Scalar.LID(gid)
		if int(numNeighbors[s]) != len(globals[lid]) {
			return errors.Errorf("point %d records %g neighbors, list has %d", gid, numNeighbors[s], len(globals[lid]))
		}
		if expected := float64(gid) + 0.5*float64(updates%2); dilatationN[s] != expected {
			return errors.Errorf("point %d has dilatation %g, expected %g", gid, dilatationN[s], expected)
		}

		b := maps.Bond.LID(gid)
		if b < 0 {
			if len(globals[lid]) > 0 {
				return errors.Errorf("point %d has neighbors but no bonds", gid)
			}
			continue
		}
		first := maps.Bond.FirstPointInElement(b)
		for j, ngid := range globals[lid] {
			if damage[first+j] != float64(ngid) {
				return errors.Errorf("point %d bond %d carries %g, neighbor is %d", gid, j, damage[first+j], ngid)
			}
		}
	}
	return nil
}

// ownedCloud collects the owned points and their coordinates
func ownedCloud(dm *datamanager.DataManager) (partitions.Cloud, error) {
	maps := dm.Maps()
	coords, err := dm.Data(field.Coordinates3D, field.StepNone)
	if err != nil {
		return partitions.Cloud{}, err
	}
	cloud := partitions.Cloud{GIDs: maps.OwnedScalar.MyGlobalElements()}
	for _, gid := range cloud.GIDs {
		v := maps.Vector.LID(gid)
		cloud.Coords = append(cloud.Coords, coords[3*v:3*v+3]...)
	}
	return cloud, nil
}

func gatherLayout(ctx context.Context, c *comm.Comm, owned *partitions.Map) (*partitions.PartitionLayout, error) {
	gids := owned.MyGlobalElements()
	return partitions.GatherLayout(ctx, c, gids, lo.Map(gids, func(int, int) int { return c.Rank() }))
}
