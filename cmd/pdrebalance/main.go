package main

import (
	"context"
	"github.com/BurntSushi/toml"
	"github.com/notargets/PDData/integration"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
)

var rootCmd = &cobra.Command{
	Use:   "pdrebalance",
	Short: "Distributed point-cloud data manager driver",
	Long:  `pdrebalance builds bonded neighborhoods on a point lattice spread over simulated ranks and rebalances the field data between decompositions`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search neighbors and run rebalance cycles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}
		if ranks, _ := cmd.Flags().GetInt("ranks"); ranks > 0 {
			cfg.Ranks = ranks
		}
		return run(cmd.Context(), cfg)
	},
}

func main() {
	runCmd.Flags().String("config", "", "TOML file with the run configuration")
	runCmd.Flags().Int("ranks", 0, "number of ranks, overrides the configuration")
	rootCmd.AddCommand(runCmd)

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig decodes path over the defaults; an empty path keeps the defaults
func loadConfig(path string) (integration.Config, error) {
	cfg := integration.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return integration.Config{}, errors.Wrapf(err, "%s: failed to parse TOML", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return integration.Config{}, errors.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, errors.Wrap(cfg.Validate(), path)
}

func run(ctx context.Context, cfg integration.Config) error {
	log := logger.Get(ctx)
	reports, err := integration.Run(ctx, cfg)
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		return err
	}
	for _, r := range reports {
		log.Info("Rank summary",
			zap.Int("rank", r.Rank),
			zap.Int("rebalances", r.Rebalances),
			zap.Int("ownedPoints", r.OwnedPoints),
			zap.Int("ghostPoints", r.GhostPoints),
			zap.Int("bonds", r.Bonds))
	}
	if len(reports) > 0 {
		stats := reports[0].Stats
		log.Info("Final decomposition",
			zap.Int("partitions", stats.NumPartitions),
			zap.Int("minPoints", stats.MinElements),
			zap.Int("maxPoints", stats.MaxElements),
			zap.Float64("imbalance", stats.Imbalance))
	}
	return nil
}
