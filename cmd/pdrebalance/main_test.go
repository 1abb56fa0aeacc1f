package main

import (
	"github.com/notargets/PDData/comm"
	"github.com/notargets/PDData/integration"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	requireT := require.New(t)

	cfg, err := loadConfig("")
	requireT.NoError(err)
	requireT.Equal(integration.DefaultConfig(), cfg)

	cfg, err = loadConfig(writeConfig(t, `
ranks = 2
target_strategy = "roundrobin"

[lattice]
nx = 3
`))
	requireT.NoError(err)
	expected := integration.DefaultConfig()
	expected.Ranks = 2
	expected.TargetStrategy = "roundrobin"
	expected.Lattice.NX = 3
	requireT.Equal(expected, cfg)
}

func TestLoadConfig_Rejects(t *testing.T) {
	requireT := require.New(t)

	_, err := loadConfig(writeConfig(t, `ranks = "two"`))
	requireT.Error(err)
	_, err = loadConfig(writeConfig(t, `rank = 2`))
	requireT.Error(err)
	_, err = loadConfig(writeConfig(t, `horizon = -1.0`))
	requireT.Error(err)
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	requireT.Error(err)
}

func TestRun(t *testing.T) {
	cfg := integration.DefaultConfig()
	cfg.Ranks = 2
	cfg.Lattice = integration.LatticeConfig{NX: 4, NY: 3, NZ: 2, Spacing: 1}
	cfg.Cycles = 1
	require.NoError(t, run(comm.NewTestContext(t), cfg))
}
