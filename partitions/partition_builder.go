package partitions

import (
	"cmp"
	"context"
	"fmt"
	"github.com/notargets/PDData/comm"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"slices"
	"sort"
)

// Cloud is the local share of a point set handed to a partitioner
type Cloud struct {
	GIDs    []int
	Coords  []float64 // x, y, z per point
	Weights []float64 // nil means unit weight per point
}

// Validate checks that coordinates and weights match the ID count.
func (cl Cloud) Validate() error {
	if len(cl.Coords) != 3*len(cl.GIDs) {
		return errors.Errorf("%d coordinates for %d points", len(cl.Coords), len(cl.GIDs))
	}
	if cl.Weights != nil && len(cl.Weights) != len(cl.GIDs) {
		return errors.Errorf("%d weights for %d points", len(cl.Weights), len(cl.GIDs))
	}
	return nil
}

// Partitioner computes a decomposition of a point cloud. Partition returns the
// destination rank of each local point; it is collective and must not modify
// the cloud.
type Partitioner interface {
	Partition(ctx context.Context, c *comm.Comm, cloud Cloud) ([]int, error)
}

// PartitionStrategy defines how points are grouped
type PartitionStrategy int

const (
	// Simple strategies, by global ID only
	BlockPartition PartitionStrategy = iota // Consecutive global IDs
	RoundRobin                              // Distribute cyclically

	// Geometric strategies
	RecursiveBisection // Recursive coordinate bisection on weights
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case RecursiveBisection:
		return "rcb"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name to its value
func ParseStrategy(name string) (PartitionStrategy, error) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, RecursiveBisection} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown partition strategy %q", name)
}

// PartitionBuilder assigns points to ranks with one of the built-in strategies.
// Every rank gathers the whole cloud and computes the same assignment.
type PartitionBuilder struct {
	Strategy PartitionStrategy
}

var _ Partitioner = PartitionBuilder{}

// Partition implements Partitioner
func (pb PartitionBuilder) Partition(ctx context.Context, c *comm.Comm, cloud Cloud) ([]int, error) {
	if err := cloud.Validate(); err != nil {
		return nil, errors.Wrapf(err, "rank %d", c.Rank())
	}

	points, err := gatherCloud(ctx, c, cloud)
	if err != nil {
		return nil, err
	}

	gToP := make(map[int]int, len(points))
	switch pb.Strategy {
	case BlockPartition, RoundRobin:
		pb.partitionByID(points, c.Size(), gToP)
	case RecursiveBisection:
		bisect(points, 0, c.Size(), gToP)
	default:
		return nil, errors.Errorf("unsupported partition strategy %s", pb.Strategy)
	}

	logger.Get(ctx).Debug("Partition computed",
		zap.Int("rank", c.Rank()),
		zap.Stringer("strategy", pb.Strategy),
		zap.Int("points", len(points)))

	return lo.Map(cloud.GIDs, func(gid int, _ int) int { return gToP[gid] }), nil
}

// BuildPartitions partitions the cloud and assembles the resulting layout
func (pb PartitionBuilder) BuildPartitions(ctx context.Context, c *comm.Comm, cloud Cloud) (*PartitionLayout, error) {
	dest, err := pb.Partition(ctx, c, cloud)
	if err != nil {
		return nil, err
	}
	return GatherLayout(ctx, c, cloud.GIDs, dest)
}

type cloudPoint struct {
	gid    int
	x      [3]float64
	weight float64
}

// gatherCloud collects the points of every rank, ordered by global ID
func gatherCloud(ctx context.Context, c *comm.Comm, cloud Cloud) ([]cloudPoint, error) {
	values := make([]float64, 0, 4*len(cloud.GIDs))
	for i := range cloud.GIDs {
		w := 1.0
		if cloud.Weights != nil {
			w = cloud.Weights[i]
		}
		values = append(values, cloud.Coords[3*i], cloud.Coords[3*i+1], cloud.Coords[3*i+2], w)
	}

	allGIDs, err := comm.AllGather(ctx, c, cloud.GIDs)
	if err != nil {
		return nil, err
	}
	allValues, err := comm.AllGather(ctx, c, values)
	if err != nil {
		return nil, err
	}

	var points []cloudPoint
	for r, gids := range allGIDs {
		if len(allValues[r]) != 4*len(gids) {
			return nil, errors.Errorf("rank %d sent %d values for %d points", r, len(allValues[r]), len(gids))
		}
		for i, gid := range gids {
			v := allValues[r][4*i : 4*i+4]
			points = append(points, cloudPoint{gid: gid, x: [3]float64{v[0], v[1], v[2]}, weight: v[3]})
		}
	}
	slices.SortFunc(points, func(a, b cloudPoint) int { return cmp.Compare(a.gid, b.gid) })
	return points, nil
}

// partitionByID assigns points ordered by global ID
func (pb PartitionBuilder) partitionByID(points []cloudPoint, numPartitions int, gToP map[int]int) {
	switch pb.Strategy {
	case BlockPartition:
		// Simple block partitioning
		perPartition := max(1, (len(points)+numPartitions-1)/numPartitions)
		for i, p := range points {
			gToP[p.gid] = min(i/perPartition, numPartitions-1)
		}

	case RoundRobin:
		// Distribute points cyclically
		for i, p := range points {
			gToP[p.gid] = i % numPartitions
		}
	}
}

// bisect splits points into numPartitions weighted halves along the longest
// extent of their bounding box, assigning partitions first..first+numPartitions-1
func bisect(points []cloudPoint, first, numPartitions int, gToP map[int]int) {
	if numPartitions == 1 || len(points) == 0 {
		for _, p := range points {
			gToP[p.gid] = first
		}
		return
	}

	axis := longestAxis(points)
	slices.SortFunc(points, func(a, b cloudPoint) int {
		if c := cmp.Compare(a.x[axis], b.x[axis]); c != 0 {
			return c
		}
		return cmp.Compare(a.gid, b.gid)
	})

	left := numPartitions / 2
	weights := lo.Map(points, func(p cloudPoint, _ int) float64 { return p.weight })
	cumulative := make([]float64, len(weights))
	floats.CumSum(cumulative, weights)
	target := cumulative[len(cumulative)-1] * float64(left) / float64(numPartitions)
	split := min(sort.SearchFloat64s(cumulative, target)+1, len(points))

	bisect(points[:split], first, left, gToP)
	bisect(points[split:], first+left, numPartitions-left, gToP)
}

func longestAxis(points []cloudPoint) int {
	extent := make([]float64, 3)
	coord := make([]float64, len(points))
	for axis := range extent {
		for i, p := range points {
			coord[i] = p.x[axis]
		}
		extent[axis] = floats.Max(coord) - floats.Min(coord)
	}
	return floats.MaxIdx(extent)
}
