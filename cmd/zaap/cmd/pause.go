package cmd

import (
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [in|out] [chain-id]",
		Short: "Pause entries (in) or receipts (out) on a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPaused(args[0], args[1], true)
		},
	}
}

func unpauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpause [in|out] [chain-id]",
		Short: "Resume entries (in) or receipts (out) on a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPaused(args[0], args[1], false)
		},
	}
}

func setPaused(direction string, chainID string, paused bool) error {
	printLogs()

	dir, err := fees.ParseDirection(direction)
	if err != nil {
		return err
	}
	chainConfig, err := cfg.GetChain(chainID)
	if err != nil {
		return err
	}

	if dir == fees.Inbound {
		chainConfig.PausedIn = paused
	} else {
		chainConfig.PausedOut = paused
	}

	if err := cfg.SaveConfig(configPath); err != nil {
		return errors.Wrap(err, "failed to save config")
	}

	logger.Info("Pause updated", zap.String("chain_id", chainID), zap.String("direction", string(dir)), zap.Bool("paused", paused))
	return nil
}
