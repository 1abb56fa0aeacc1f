package partitions

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestPartitionLayout(t *testing.T) {
	layout, err := NewPartitionLayout(3, []int{7, 1, 4, 9, 2}, []int{0, 2, 0, 2, 2})
	if err != nil {
		t.Fatalf("Failed to build layout: %v", err)
	}

	// Test 1: Membership is sorted by global ID
	if got := layout.Partitions[2].GIDs; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 9 {
		t.Errorf("Expected partition 2 to hold [1 2 9], got %v", got)
	}
	if layout.Partitions[1].NumElements != 0 {
		t.Errorf("Expected partition 1 to be empty, got %d elements", layout.Partitions[1].NumElements)
	}

	// Test 2: Lookup
	if p := layout.GetPartition(4); p != 0 {
		t.Errorf("Expected global id 4 in partition 0, got %d", p)
	}
	if p := layout.GetPartition(5); p != -1 {
		t.Errorf("Expected -1 for an unknown global id, got %d", p)
	}

	// Test 3: Statistics
	stats := layout.PartitionStatistics()
	if stats.MinElements != 0 || stats.MaxElements != 3 {
		t.Errorf("Expected min 0 / max 3, got %d / %d", stats.MinElements, stats.MaxElements)
	}
	assert.InDelta(t, 3/(5.0/3), stats.Imbalance, 1e-12)

	// Test 4: Invalid input
	if _, err := NewPartitionLayout(2, []int{1, 1}, []int{0, 1}); err == nil {
		t.Error("Expected an error for a global id assigned twice")
	}
	if _, err := NewPartitionLayout(2, []int{1}, []int{2}); err == nil {
		t.Error("Expected an error for an out-of-range partition")
	}

	// Test 5: Corruption is detected
	layout.MaxElements = 1
	if err := layout.ValidateLayout(); err == nil {
		t.Error("Expected ValidateLayout to reject a wrong MaxElements")
	}
}

// lineCloud spreads 16 points along x cyclically over the ranks
func lineCloud(c *comm.Comm) Cloud {
	var cloud Cloud
	for gid := c.Rank(); gid < 16; gid += c.Size() {
		cloud.GIDs = append(cloud.GIDs, gid)
		cloud.Coords = append(cloud.Coords, float64(gid), 0.5, -1)
	}
	return cloud
}

func TestPartitionBuilder_Strategies(t *testing.T) {
	tests := []struct {
		strategy PartitionStrategy
		expected func(gid int) int
	}{
		{BlockPartition, func(gid int) int { return gid / 4 }},
		{RoundRobin, func(gid int) int { return gid % 4 }},
		{RecursiveBisection, func(gid int) int { return gid / 4 }},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			comm.RunInTest(t, 4, func(ctx context.Context, c *comm.Comm) error {
				cloud := lineCloud(c)
				dest, err := PartitionBuilder{Strategy: tt.strategy}.Partition(ctx, c, cloud)
				if err != nil {
					return err
				}
				for i, gid := range cloud.GIDs {
					assert.Equal(t, tt.expected(gid), dest[i], "gid %d", gid)
				}
				return nil
			})
		})
	}
}

func TestPartitionBuilder_WeightedBisection(t *testing.T) {
	comm.RunInTest(t, 2, func(ctx context.Context, c *comm.Comm) error {
		cloud := lineCloud(c)
		// Points 0 and 1 carry as much weight as all the others together
		cloud.Weights = make([]float64, len(cloud.GIDs))
		for i, gid := range cloud.GIDs {
			cloud.Weights[i] = 1
			if gid < 2 {
				cloud.Weights[i] = 7
			}
		}

		layout, err := PartitionBuilder{Strategy: RecursiveBisection}.BuildPartitions(ctx, c, cloud)
		if err != nil {
			return err
		}
		assert.Equal(t, []int{0, 1}, layout.Partitions[0].GIDs)
		assert.Equal(t, 14, layout.Partitions[1].NumElements)

		owned, err := layout.OwnedMap(ctx, c, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, layout.Partitions[c.Rank()].GIDs, owned.MyGlobalElements())
		return nil
	})
}

func TestMigrateMap(t *testing.T) {
	comm.RunInTest(t, 2, func(ctx context.Context, c *comm.Comm) error {
		gids := []int{c.Rank(), c.Rank() + 2, c.Rank() + 4}
		sizes := []int{1, 2, 3}
		m, err := NewVariableMap(ctx, c, gids, sizes)
		if err != nil {
			return err
		}

		// Everything below 3 goes to rank 0
		dest := make([]int, len(gids))
		for i, gid := range gids {
			if gid >= 3 {
				dest[i] = 1
			}
		}
		moved, err := MigrateMap(ctx, m, dest)
		if err != nil {
			return err
		}

		if c.Rank() == 0 {
			assert.Equal(t, []int{0, 1, 2}, moved.MyGlobalElements())
			assert.Equal(t, []int{1, 1, 2}, moved.ElementSizes())
		} else {
			assert.Equal(t, []int{3, 4, 5}, moved.MyGlobalElements())
			assert.Equal(t, []int{2, 3, 3}, moved.ElementSizes())
		}
		return nil
	})
}
