package partitions

import (
	"context"
	"fmt"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
	"math"
	"slices"
)

// Partition is the set of points assigned to one rank
type Partition struct {
	// Rank receiving the points
	ID int

	// Point membership
	GIDs        []int // Global IDs in ascending order
	NumElements int
}

// PartitionLayout is the complete decomposition of a point set over ranks,
// replicated on every rank.
type PartitionLayout struct {
	// All partitions, indexed by rank
	Partitions []Partition

	// Global sizing information
	MaxElements   int // max(NumElements) across all partitions
	TotalElements int // Sum of all elements across partitions
	NumPartitions int

	// Point to partition mapping
	GToP map[int]int
}

// NewPartitionLayout builds a layout from a destination rank per global ID.
func NewPartitionLayout(numPartitions int, gids, dest []int) (*PartitionLayout, error) {
	if len(gids) != len(dest) {
		return nil, errors.Errorf("%d global ids but %d destinations", len(gids), len(dest))
	}
	if numPartitions < 1 {
		return nil, errors.Errorf("number of partitions must be positive, got %d", numPartitions)
	}

	layout := &PartitionLayout{
		Partitions:    make([]Partition, numPartitions),
		TotalElements: len(gids),
		NumPartitions: numPartitions,
		GToP:          make(map[int]int, len(gids)),
	}
	for i := range layout.Partitions {
		layout.Partitions[i].ID = i
	}

	for i, gid := range gids {
		p := dest[i]
		if p < 0 || p >= numPartitions {
			return nil, errors.Errorf("global id %d assigned to partition %d of %d", gid, p, numPartitions)
		}
		if _, exists := layout.GToP[gid]; exists {
			return nil, errors.Errorf("global id %d assigned twice", gid)
		}
		layout.GToP[gid] = p
		layout.Partitions[p].GIDs = append(layout.Partitions[p].GIDs, gid)
		layout.Partitions[p].NumElements++
	}

	for i := range layout.Partitions {
		slices.Sort(layout.Partitions[i].GIDs)
		layout.MaxElements = max(layout.MaxElements, layout.Partitions[i].NumElements)
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// GatherLayout assembles the layout from every rank's local destinations. It is
// collective over c.
func GatherLayout(ctx context.Context, c *comm.Comm, gids, dest []int) (*PartitionLayout, error) {
	if len(gids) != len(dest) {
		return nil, errors.Errorf("rank %d: %d global ids but %d destinations", c.Rank(), len(gids), len(dest))
	}
	pairs := make([]int, 0, 2*len(gids))
	for i, gid := range gids {
		pairs = append(pairs, gid, dest[i])
	}
	all, err := comm.AllGather(ctx, c, pairs)
	if err != nil {
		return nil, err
	}

	var allGIDs, allDest []int
	for _, rankPairs := range all {
		for i := 0; i+1 < len(rankPairs); i += 2 {
			allGIDs = append(allGIDs, rankPairs[i])
			allDest = append(allDest, rankPairs[i+1])
		}
	}
	return NewPartitionLayout(c.Size(), allGIDs, allDest)
}

// GetPartition returns the partition holding gid, -1 if none does
func (pl *PartitionLayout) GetPartition(gid int) int {
	if p, ok := pl.GToP[gid]; ok {
		return p
	}
	return -1
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify MaxElements and the element total
	actualMax, total := 0, 0
	for _, p := range pl.Partitions {
		if p.NumElements != len(p.GIDs) {
			return fmt.Errorf("partition %d: NumElements %d != %d global ids",
				p.ID, p.NumElements, len(p.GIDs))
		}
		actualMax = max(actualMax, p.NumElements)
		total += p.NumElements

		for _, gid := range p.GIDs {
			if pl.GToP[gid] != p.ID {
				return fmt.Errorf("partition %d holds global id %d mapped to partition %d",
					p.ID, gid, pl.GToP[gid])
			}
		}
	}
	if actualMax != pl.MaxElements {
		return fmt.Errorf("computed MaxElements %d != stored MaxElements %d",
			actualMax, pl.MaxElements)
	}
	if total != pl.TotalElements || total != len(pl.GToP) {
		return fmt.Errorf("partitions hold %d elements, layout records %d", total, pl.TotalElements)
	}
	return nil
}

// OwnedMap builds the owned map of the calling rank under this layout. It is
// collective over c.
func (pl *PartitionLayout) OwnedMap(ctx context.Context, c *comm.Comm, elementSize int) (*Map, error) {
	if pl.NumPartitions != c.Size() {
		return nil, errors.Errorf("layout of %d partitions on a world of %d ranks", pl.NumPartitions, c.Size())
	}
	return NewMap(ctx, c, pl.Partitions[c.Rank()].GIDs, elementSize)
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		stats.MinElements = min(stats.MinElements, p.NumElements)
		stats.MaxElements = max(stats.MaxElements, p.NumElements)
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

// MigrateMap moves every local element of m to rank dest[lid] and returns the
// resulting map, elements ordered by global ID. It is collective over the
// map's communicator.
func MigrateMap(ctx context.Context, m *Map, dest []int) (*Map, error) {
	c := m.comm
	if len(dest) != m.NumMyElements() {
		return nil, errors.Errorf("rank %d: %d destinations for %d elements", c.Rank(), len(dest), m.NumMyElements())
	}

	send := make([][]int, c.Size())
	for lid, d := range dest {
		if d < 0 || d >= c.Size() {
			return nil, errors.Errorf("rank %d: global id %d sent to rank %d", c.Rank(), m.gids[lid], d)
		}
		send[d] = append(send[d], m.gids[lid], m.sizes[lid])
	}
	recv, err := comm.AllToAllV(ctx, c, send)
	if err != nil {
		return nil, err
	}

	type element struct{ gid, size int }
	var elements []element
	for _, pairs := range recv {
		for i := 0; i+1 < len(pairs); i += 2 {
			elements = append(elements, element{gid: pairs[i], size: pairs[i+1]})
		}
	}
	slices.SortFunc(elements, func(a, b element) int { return a.gid - b.gid })

	gids := make([]int, len(elements))
	sizes := make([]int, len(elements))
	for i, e := range elements {
		gids[i], sizes[i] = e.gid, e.size
	}

	if size, ok := m.ConstantElementSize(); ok {
		return NewMap(ctx, c, gids, size)
	}
	return NewVariableMap(ctx, c, gids, sizes)
}
