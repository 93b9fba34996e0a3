package cmd

import (
	"strings"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/config"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func generateWalletCmd() *cobra.Command {
	var fund []string

	cmd := &cobra.Command{
		Use:   "generate-wallet [chain-id] [new-wallet-id]",
		Short: "Generate a new wallet for a chain and add it to the config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chainID := args[0]
			newWalletID := args[1]

			printLogs()

			var balances []config.BalanceConfig
			for _, f := range fund {
				asset, amount, ok := strings.Cut(f, ":")
				if !ok {
					return errors.Errorf("invalid --fund %s, expected ASSET:AMOUNT", f)
				}
				if _, err := utils.ParseAmount(amount, 18); err != nil {
					return errors.Wrapf(err, "invalid --fund %s", f)
				}
				balances = append(balances, config.BalanceConfig{WalletID: newWalletID, Asset: asset, Amount: amount})
			}

			network, err := cfg.ToNetwork(ctx, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build network")
			}

			chain, err := network.GetChain(chainID)
			if err != nil {
				return errors.Wrapf(err, "failed to get chain %s", chainID)
			}

			if _, err := chain.GetWallet(newWalletID); err == nil {
				return errors.Errorf("wallet already exists: %s", newWalletID)
			}

			wallet, err := chain.GenerateWallet(newWalletID)
			if err != nil {
				return errors.Wrap(err, "failed to generate wallet")
			}

			logger.Info("Generated new wallet",
				zap.String("chain_id", chainID),
				zap.String("wallet_id", wallet.ID()),
				zap.String("address", wallet.Address().Hex()))

			chainConfig, err := cfg.GetChain(chainID)
			if err != nil {
				return err
			}
			chainConfig.WalletIDs = append(chainConfig.WalletIDs, newWalletID)
			chainConfig.Balances = append(chainConfig.Balances, balances...)

			walletExists := false
			for i, walletConfig := range cfg.Wallets {
				if walletConfig.WalletID == newWalletID {
					// Update existing wallet
					cfg.Wallets[i].PrivateKey = wallet.PrivateKeyHex()
					walletExists = true
					break
				}
			}

			if !walletExists {
				cfg.Wallets = append(cfg.Wallets, config.WalletConfig{
					WalletID:   newWalletID,
					PrivateKey: wallet.PrivateKeyHex(),
				})
			}

			if err := cfg.SaveConfig(configPath); err != nil {
				return errors.Wrap(err, "failed to save config")
			}

			logger.Info("Wallet generation completed successfully",
				zap.String("wallet_id", newWalletID),
				zap.String("chain_id", chainID),
				zap.Int("funded_assets", len(balances)),
				zap.String("config_file", configPath))

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fund, "fund", nil, "Genesis balance for the new wallet as ASSET:AMOUNT, repeatable")

	return cmd
}
