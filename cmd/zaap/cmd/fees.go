package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/server"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func feesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Show and change the fee configuration of a chain",
		Long: `Show and change the fee configuration of a chain.
Changes go through the orchestrator's owner checks and are written to Redis
when redis-addr is configured, otherwise back to the config file.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [chain-id] [in|out]",
			Short: "Show the fee configuration for one direction",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateFees(cmd.Context(), args[0], args[1], nil, nil)
			},
		},
		&cobra.Command{
			Use:   "set-bps [chain-id] [in|out] [fee-bps]",
			Short: "Set the fee in basis points, at most 50",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				feeBps, err := strconv.ParseUint(args[2], 10, 16)
				if err != nil {
					return errors.Wrapf(err, "invalid fee bps %s", args[2])
				}
				bps := uint16(feeBps)
				return updateFees(cmd.Context(), args[0], args[1], &server.FeesRequest{FeeBps: &bps}, nil)
			},
		},
		&cobra.Command{
			Use:   "set-treasury [chain-id] [in|out] [address]",
			Short: "Set the treasury receiving the fee",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateFees(cmd.Context(), args[0], args[1], &server.FeesRequest{Treasury: args[2]}, nil)
			},
		},
		&cobra.Command{
			Use:   "clear-treasury [chain-id] [in|out]",
			Short: "Clear the treasury, which turns the fee off",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateFees(cmd.Context(), args[0], args[1], &server.FeesRequest{ClearTreasury: true}, nil)
			},
		},
		&cobra.Command{
			Use:   "set-partner [chain-id] [in|out] [partner-id] [address] [percent-share]",
			Short: "Set the address and fee share of a partner",
			Args:  cobra.ExactArgs(5),
			RunE: func(cmd *cobra.Command, args []string) error {
				share, err := strconv.ParseUint(args[4], 10, 8)
				if err != nil {
					return errors.Wrapf(err, "invalid percent share %s", args[4])
				}
				return updateFees(cmd.Context(), args[0], args[1], &server.FeesRequest{
					SetPartners: []server.PartnerRequest{{PartnerID: args[2], Address: args[3], PercentShare: uint8(share)}},
				}, []byte(args[2]))
			},
		},
		&cobra.Command{
			Use:   "delete-partner [chain-id] [in|out] [partner-id]",
			Short: "Remove a partner",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateFees(cmd.Context(), args[0], args[1], &server.FeesRequest{DeletePartners: []string{args[2]}}, nil)
			},
		},
	)

	return cmd
}

// updateFees applies req (if any) as the owner and prints the resulting configuration.
func updateFees(ctx context.Context, chainID string, direction string, req *server.FeesRequest, newPartnerID []byte) error {
	dir, err := fees.ParseDirection(direction)
	if err != nil {
		return err
	}

	network, err := cfg.ToNetwork(ctx, logger)
	if err != nil {
		return errors.Wrap(err, "failed to build network")
	}
	deployment, err := network.GetDeployment(chainID)
	if err != nil {
		return err
	}

	if req != nil {
		owner, err := cfg.OwnerAddress()
		if err != nil {
			return err
		}
		if err := server.ApplyFees(ctx, deployment.Zaap, owner, dir, *req); err != nil {
			return errors.Wrap(err, "failed to update fees")
		}
		if err := saveFees(ctx, chainID, deployment.Zaap, dir, newPartnerID); err != nil {
			return err
		}
		logger.Info("Fees updated", zap.String("chain_id", chainID), zap.String("direction", string(dir)))
	}

	feeConfig, err := deployment.Zaap.FeeConfig(ctx, dir)
	if err != nil {
		return err
	}
	return printFees(chainID, dir, feeConfig)
}

// saveFees writes the fee configuration of z back to the config file unless it lives in Redis.
func saveFees(ctx context.Context, chainID string, z *zaap.Zaap, dir fees.Direction, newPartnerID []byte) error {
	if cfg.UsesRedis() {
		return nil
	}

	feeConfig, err := z.FeeConfig(ctx, dir)
	if err != nil {
		return err
	}
	chainConfig, err := cfg.GetChain(chainID)
	if err != nil {
		return err
	}

	var extra [][]byte
	if newPartnerID != nil {
		extra = append(extra, newPartnerID)
	}
	chainConfig.SetDirectionFees(dir, feeConfig, chainConfig.PartnerIDs(extra...))

	if err := cfg.SaveConfig(configPath); err != nil {
		return errors.Wrap(err, "failed to save config")
	}
	return nil
}

func printFees(chainID string, dir fees.Direction, feeConfig fees.Config) error {
	treasury := "none"
	if feeConfig.Treasury != nil {
		treasury = feeConfig.Treasury.Hex()
	}

	type partnerOutput struct {
		Address      ethcommon.Address `json:"address"`
		PercentShare uint8             `json:"percent_share"`
	}
	partners := make(map[string]partnerOutput, len(feeConfig.Partners))
	for key, partner := range feeConfig.Partners {
		partners[key] = partnerOutput{Address: partner.Address, PercentShare: partner.PercentShare}
	}
	out, err := json.MarshalIndent(map[string]any{
		"chain_id":  chainID,
		"direction": dir,
		"fee_bps":   feeConfig.FeeBps,
		"treasury":  treasury,
		"active":    feeConfig.Active(),
		"partners":  partners,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal fees")
	}
	fmt.Println(string(out))
	return nil
}
