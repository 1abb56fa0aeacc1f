package integration

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/notargets/PDData/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Ranks = 3
	cfg.Lattice = LatticeConfig{NX: 6, NY: 4, NZ: 3, Spacing: 0.5}
	cfg.Horizon = 0.75
	cfg.Cycles = 3
	return cfg
}

func TestRun(t *testing.T) {
	requireT := require.New(t)
	cfg := smallConfig()

	reports, err := Run(comm.NewTestContext(t), cfg)
	requireT.NoError(err)
	requireT.Len(reports, cfg.Ranks)

	points := 0
	for rank, r := range reports {
		requireT.Equal(rank, r.Rank)
		requireT.Equal(cfg.Cycles, r.Rebalances)
		requireT.Positive(r.OwnedPoints)
		requireT.Equal(cfg.Ranks, r.Stats.NumPartitions)
		points += r.OwnedPoints
	}
	requireT.Equal(cfg.Lattice3D().NumPoints(), points)
}

func TestRunCycle_BondsMatchLattice(t *testing.T) {
	cfg := smallConfig()
	cfg.Ranks = 2
	cfg.Cycles = 1
	lattice := cfg.Lattice3D()

	// Every lattice bond is counted once per endpoint
	expected := 0
	for gid := range lattice.NumPoints() {
		expected += len(lattice.Neighbors(gid, cfg.Horizon))
	}

	bonds := make([]int, cfg.Ranks)
	comm.RunInTest(t, cfg.Ranks, func(ctx context.Context, c *comm.Comm) error {
		r, err := RunCycle(ctx, c, cfg)
		if err != nil {
			return err
		}
		bonds[c.Rank()] = r.Bonds
		assert.Equal(t, 1, r.Rebalances)
		return nil
	})
	assert.Equal(t, expected, bonds[0]+bonds[1])
}

func TestRunCycle_NoCycles(t *testing.T) {
	cfg := smallConfig()
	cfg.Cycles = 0
	cfg.InitialStrategy = partitions.RoundRobin.String()

	reports, err := Run(comm.NewTestContext(t), cfg)
	require.NoError(t, err)
	for _, r := range reports {
		assert.Zero(t, r.Rebalances)
		assert.Positive(t, r.GhostPoints)
	}
}

func TestConfig_Validate(t *testing.T) {
	requireT := require.New(t)
	requireT.NoError(DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"ranks":    func(c *Config) { c.Ranks = 0 },
		"lattice":  func(c *Config) { c.Lattice.NX = 0 },
		"horizon":  func(c *Config) { c.Horizon = 0 },
		"cycles":   func(c *Config) { c.Cycles = -1 },
		"strategy": func(c *Config) { c.TargetStrategy = "metis" },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		requireT.Error(cfg.Validate(), name)
	}

	_, err := Run(context.Background(), Config{})
	requireT.Error(err)
}
