package cmd

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func balanceCmd() *cobra.Command {
	var walletID string

	cmd := &cobra.Command{
		Use:   "balance [chain-id] [asset] [address]",
		Short: "Query the genesis balance of an address on a specific chain",
		Long: `Query the balance of an address as seeded from the config.
If address is not provided, it will use the address from the specified wallet.
Use NATIVE as the asset for the native balance, a symbol from the config,
or a hex asset address.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chainID := args[0]
			assetStr := args[1]

			printLogs()

			if len(args) < 3 && walletID == "" {
				return errors.New("either wallet-id flag or address argument must be provided")
			}

			network, err := cfg.ToNetwork(ctx, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build network")
			}

			chain, err := network.GetChain(chainID)
			if err != nil {
				return errors.Wrapf(err, "failed to get chain %s", chainID)
			}
			deployment, err := network.GetDeployment(chainID)
			if err != nil {
				return err
			}

			var address ethcommon.Address
			if len(args) == 3 {
				if !ethcommon.IsHexAddress(args[2]) {
					return errors.Errorf("invalid address %s", args[2])
				}
				address = ethcommon.HexToAddress(args[2])
			} else {
				wallet, err := chain.GetWallet(walletID)
				if err != nil {
					return errors.Wrapf(err, "failed to get wallet %s", walletID)
				}
				address = wallet.Address()
			}

			asset, err := deployment.ResolveAsset(assetStr)
			if err != nil {
				return err
			}

			balance, err := chain.GetBalance(ctx, address, asset)
			if err != nil {
				return errors.Wrapf(err, "failed to get balance for address %s with asset %s", address.Hex(), assetStr)
			}

			formatted := balance.String()
			if assetInfo, ok := deployment.Asset(asset); ok {
				formatted = utils.FormatAmount(balance, assetInfo.Decimals)
			}

			logger.Info("Balance retrieved",
				zap.String("chain_id", chainID),
				zap.String("address", address.Hex()),
				zap.String("asset", asset.Hex()),
				zap.String("balance", balance.String()))

			// Print balance to stdout for easy consumption by scripts
			fmt.Println(formatted)

			return nil
		},
	}

	cmd.Flags().StringVar(&walletID, "wallet-id", "", "Optional wallet ID to query balance for")

	return cmd
}
