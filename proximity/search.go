package proximity

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/notargets/PDData/partitions"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/weaviate/sroar"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/vptree"
	"math"
	"slices"
)

// Neighborhood is the result of a global search, laid out on the caller's
// decomposition.
type Neighborhood struct {
	OwnedMap   *partitions.Map // caller's owned points, one point per element
	OverlapMap *partitions.Map // owned points followed by ghost neighbors
	List       NeighborList    // references into OverlapMap, neighbors by ascending global ID
}

type options struct {
	filter      BondFilter
	partitioner partitions.Partitioner
}

// Option configures GlobalProximitySearch.
type Option func(*options)

// WithBondFilter sets the filter deciding which pairs within the radius bond.
func WithBondFilter(f BondFilter) Option {
	return func(o *options) { o.filter = f }
}

// WithPartitioner sets the oracle computing the working decomposition.
func WithPartitioner(p partitions.Partitioner) Option {
	return func(o *options) { o.partitioner = p }
}

// GlobalProximitySearch finds, for every owned point, all points within
// radius. positions must be laid out on a map of three points per element and
// vector 0 holds x, y, z. The search runs on a decomposition chosen by the
// partitioner; the result is carried back to the decomposition of positions.
// It is collective.
func GlobalProximitySearch(
	ctx context.Context,
	positions *partitions.MultiVector[float64],
	radius float64,
	opts ...Option,
) (Neighborhood, error) {
	o := options{
		filter:      DefaultFilter{},
		partitioner: partitions.PartitionBuilder{Strategy: partitions.RecursiveBisection},
	}
	for _, opt := range opts {
		opt(&o)
	}

	posMap := positions.Map()
	if size, ok := posMap.ConstantElementSize(); !ok || size != 3 {
		return Neighborhood{}, errors.Wrap(partitions.ErrMapMismatch, "positions need three points per element")
	}
	if positions.NumVectors() < 1 {
		return Neighborhood{}, errors.New("positions hold no coordinates")
	}
	if radius < 0 || math.IsNaN(radius) {
		return Neighborhood{}, errors.Errorf("invalid search radius %g", radius)
	}
	c := posMap.Comm()

	ownedOne, err := partitions.OnePointMap(ctx, posMap)
	if err != nil {
		return Neighborhood{}, err
	}

	// Working decomposition from the oracle, unit volumes
	cloud := partitions.Cloud{
		GIDs:   posMap.MyGlobalElements(),
		Coords: slices.Clone(positions.Vector(0)),
	}
	dest, err := o.partitioner.Partition(ctx, c, cloud)
	if err != nil {
		return Neighborhood{}, errors.Wrap(err, "partitioning point cloud")
	}
	workMap, err := partitions.MigrateMap(ctx, posMap, dest)
	if err != nil {
		return Neighborhood{}, err
	}
	imp, err := partitions.NewImporter(ctx, workMap, posMap)
	if err != nil {
		return Neighborhood{}, errors.Wrap(err, "building coordinate importer")
	}
	src := partitions.NewMultiVector[float64](posMap, 1)
	copy(src.Vector(0), positions.Vector(0))
	workX := partitions.NewMultiVector[float64](workMap, 1)
	if err := workX.Import(ctx, src, imp); err != nil {
		return Neighborhood{}, err
	}

	local := make([]searchPoint, workMap.NumMyElements())
	for lid := range local {
		local[lid] = searchPoint{gid: workMap.GID(lid), x: workX.ElementValues(0, lid)}
	}
	ghosts, err := exchangeGhosts(ctx, c, local, radius)
	if err != nil {
		return Neighborhood{}, err
	}

	// Radius queries on the working decomposition
	neighbors := make([][]int, len(local))
	if len(local) > 0 {
		items := make([]vptree.Comparable, 0, len(local)+len(ghosts))
		for _, p := range local {
			items = append(items, p)
		}
		for _, p := range ghosts {
			items = append(items, p)
		}
		tree, err := vptree.New(items, 3, nil)
		if err != nil {
			return Neighborhood{}, errors.Wrap(err, "building vantage point tree")
		}

		for i, p := range local {
			keeper := vptree.NewDistKeeper(radius)
			tree.NearestSet(keeper, p)
			for _, found := range keeper.Heap {
				q := found.Comparable.(searchPoint)
				if o.filter.Admit(p.gid, p.x, q.gid, q.x) {
					neighbors[i] = append(neighbors[i], q.gid)
				}
			}
			slices.Sort(neighbors[i])
		}
	}

	// Working overlap map and list
	workOne, err := partitions.OnePointMap(ctx, workMap)
	if err != nil {
		return Neighborhood{}, err
	}
	offRank := sroar.NewBitmap()
	for _, gids := range neighbors {
		for _, gid := range gids {
			if workOne.LID(gid) < 0 {
				offRank.Set(uint64(gid))
			}
		}
	}
	overlapGIDs := workOne.MyGlobalElements()
	for _, gid := range offRank.ToArray() {
		overlapGIDs = append(overlapGIDs, int(gid))
	}
	workOverlap, err := partitions.NewMap(ctx, c, overlapGIDs, 1)
	if err != nil {
		return Neighborhood{}, err
	}
	refs := make([][]int, len(neighbors))
	for i, gids := range neighbors {
		refs[i] = make([]int, len(gids))
		for j, gid := range gids {
			refs[i][j] = workOverlap.LID(gid)
		}
	}

	// Back to the caller's decomposition
	overlap, list, err := RebalanceNeighborhoodList(ctx, workOne, workOverlap, NewNeighborList(refs), ownedOne)
	if err != nil {
		return Neighborhood{}, err
	}

	logger.Get(ctx).Debug("Proximity search complete",
		zap.Int("rank", c.Rank()),
		zap.Float64("radius", radius),
		zap.Int("workingPoints", len(local)),
		zap.Int("ghostCandidates", len(ghosts)))

	return Neighborhood{OwnedMap: ownedOne, OverlapMap: overlap, List: list}, nil
}

type searchPoint struct {
	gid int
	x   []float64
}

// Distance implements vptree.Comparable.
func (p searchPoint) Distance(c vptree.Comparable) float64 {
	return floats.Distance(p.x, c.(searchPoint).x, 2)
}

// exchangeGhosts sends every local point to each other rank whose bounding
// box, grown by radius, contains it, and returns the points received
func exchangeGhosts(ctx context.Context, c *comm.Comm, local []searchPoint, radius float64) ([]searchPoint, error) {
	var box []float64 // min x, y, z then max x, y, z; empty on ranks without points
	if len(local) > 0 {
		box = make([]float64, 6)
		coord := make([]float64, len(local))
		for axis := range 3 {
			for i, p := range local {
				coord[i] = p.x[axis]
			}
			box[axis], box[3+axis] = floats.Min(coord), floats.Max(coord)
		}
	}
	boxes, err := comm.AllGather(ctx, c, box)
	if err != nil {
		return nil, err
	}

	sendGIDs := make([][]int, c.Size())
	sendX := make([][]float64, c.Size())
	for r, b := range boxes {
		if r == c.Rank() || len(b) != 6 {
			continue
		}
		for _, p := range local {
			if inGrownBox(p.x, b, radius) {
				sendGIDs[r] = append(sendGIDs[r], p.gid)
				sendX[r] = append(sendX[r], p.x...)
			}
		}
	}

	recvGIDs, err := comm.AllToAllV(ctx, c, sendGIDs)
	if err != nil {
		return nil, err
	}
	recvX, err := comm.AllToAllV(ctx, c, sendX)
	if err != nil {
		return nil, err
	}

	var ghosts []searchPoint
	for r, gids := range recvGIDs {
		if len(recvX[r]) != 3*len(gids) {
			return nil, errors.Errorf("rank %d sent %d coordinates for %d ghosts", r, len(recvX[r]), len(gids))
		}
		for i, gid := range gids {
			ghosts = append(ghosts, searchPoint{gid: gid, x: recvX[r][3*i : 3*i+3]})
		}
	}
	return ghosts, nil
}

func inGrownBox(x, box []float64, radius float64) bool {
	for axis := range 3 {
		if x[axis] < box[axis]-radius || x[axis] > box[3+axis]+radius {
			return false
		}
	}
	return true
}
