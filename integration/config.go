package integration

import (
	"github.com/notargets/PDData/partitions"
	"github.com/notargets/PDData/utils"
	"github.com/pkg/errors"
)

// Config describes a simulated multi-rank rebalance run
type Config struct {
	Ranks           int           `toml:"ranks"`
	Lattice         LatticeConfig `toml:"lattice"`
	Horizon         float64       `toml:"horizon"`
	InitialStrategy string        `toml:"initial_strategy"`
	TargetStrategy  string        `toml:"target_strategy"`
	Cycles          int           `toml:"cycles"`
}

// LatticeConfig is the point grid of a run
type LatticeConfig struct {
	NX      int     `toml:"nx"`
	NY      int     `toml:"ny"`
	NZ      int     `toml:"nz"`
	Spacing float64 `toml:"spacing"`
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() Config {
	return Config{
		Ranks: 4,
		Lattice: LatticeConfig{
			NX:      10,
			NY:      6,
			NZ:      4,
			Spacing: 1,
		},
		Horizon:         1.5,
		InitialStrategy: partitions.BlockPartition.String(),
		TargetStrategy:  partitions.RecursiveBisection.String(),
		Cycles:          2,
	}
}

// Lattice3D returns the point grid.
func (c Config) Lattice3D() utils.Lattice {
	return utils.Lattice{NX: c.Lattice.NX, NY: c.Lattice.NY, NZ: c.Lattice.NZ, Spacing: c.Lattice.Spacing}
}

// Validate checks every setting.
func (c Config) Validate() error {
	if c.Ranks < 1 {
		return errors.Errorf("ranks must be positive, got %d", c.Ranks)
	}
	if err := c.Lattice3D().Validate(); err != nil {
		return errors.WithStack(err)
	}
	if c.Horizon <= 0 {
		return errors.Errorf("horizon must be positive, got %g", c.Horizon)
	}
	if c.Cycles < 0 {
		return errors.Errorf("cycles must not be negative, got %d", c.Cycles)
	}
	if _, err := partitions.ParseStrategy(c.InitialStrategy); err != nil {
		return errors.Wrap(err, "initial strategy")
	}
	if _, err := partitions.ParseStrategy(c.TargetStrategy); err != nil {
		return errors.Wrap(err, "target strategy")
	}
	return nil
}
