package cmd

import (
	"fmt"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/config"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        *config.Config
	logLevel   string

	logger    *zap.Logger
	logWriter *logging.ZaapLogWriter
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "zaap",
		Short:         "Cross-chain swap-and-bridge settlement CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}

			logger, logWriter, err = logging.NewZaapLogger(logLevel)
			if err != nil {
				return errors.Wrap(err, "failed to create logger")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logWriter != nil {
				_ = logWriter.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		enterCmd(),
		balanceCmd(),
		generateWalletCmd(),
		signPermitCmd(),
		feesCmd(),
		pauseCmd(),
		unpauseCmd(),
		serveCmd(),
		queryCmd(),
	)

	return rootCmd
}

// printLogs mirrors log entries to stdout for commands without a TUI.
func printLogs() {
	logWriter.AddExtraLogger(func(entry string) {
		fmt.Print(entry)
	})
}
