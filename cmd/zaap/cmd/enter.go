package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/settlement"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/tui"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func enterCmd() *cobra.Command {
	var (
		sourceLegs      []string
		destinationLegs []string
		partnerID       string
		deadline        time.Duration
		minBridgeAmount string
		refundAddress   string
		noTui           bool
	)

	cmd := &cobra.Command{
		Use:   "enter [from-chain] [to-chain] [wallet-id] [source-asset] [amount] [bridge-asset] [destination-asset] [recipient]",
		Short: "Swap, bridge and swap again in one settlement",
		Long: `Enter a settlement on the source chain and follow it to the destination chain.

Assets are symbols from the config, NATIVE or hex addresses. The amount is a
human amount of the source asset. Legs are written as
kind:amountIn:amountOutMin:hops in base units, e.g. "v3:1000000:990000:USDC,WETH/500".
The recipient is a hex address or a wallet id on the destination chain.`,
		Args: cobra.ExactArgs(8),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params := settlement.EnterParams{
				FromChainID:      args[0],
				ToChainID:        args[1],
				WalletID:         args[2],
				SourceAsset:      args[3],
				Amount:           args[4],
				SourceLegs:       sourceLegs,
				BridgeAsset:      args[5],
				MinBridgeAmount:  minBridgeAmount,
				DestinationAsset: args[6],
				DestinationLegs:  destinationLegs,
				Recipient:        args[7],
				RefundAddress:    refundAddress,
				PartnerID:        partnerID,
				Deadline:         deadline,
			}

			network, err := cfg.ToNetwork(ctx, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build network")
			}
			network.Subscribe(zaap.LogEvents(logger))
			tracker := settlement.NewTracker(network)
			queue := network.StartRelaying(ctx, cfg.RelayBatchSize)

			if noTui {
				printLogs()
				result, err := settlement.Run(ctx, logger, network, queue, tracker, params, nil)
				if err != nil {
					return err
				}
				printResult(result)
				return nil
			}

			tuiInstance := tui.NewTui(logWriter, "Zaap", "Initializing")

			go func() {
				result, err := settlement.Run(ctx, logger, network, queue, tracker, params, func(status string, percent int) {
					tuiInstance.UpdateMainStatus(status)
					tuiInstance.UpdateProgress(percent)
				})
				switch {
				case err != nil:
					logger.Error("Failed to complete settlement", zap.Error(err))
					tuiInstance.UpdateMainErrorStatus(fmt.Sprintf("Failed to complete settlement: %s", err.Error()))
				case result.Out != nil:
					tuiInstance.UpdateOutcome(result.Out.Outcome, describeResult(result))
				case result.Cached != nil:
					tuiInstance.UpdateCached(describeResult(result))
				}
			}()

			if err := tuiInstance.Run(); err != nil {
				fmt.Println("Error running TUI program:", err)
				os.Exit(1)
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sourceLegs, "src-leg", nil, "Source chain leg, repeat for a split route")
	cmd.Flags().StringArrayVar(&destinationLegs, "dst-leg", nil, "Destination chain leg, repeat for a split route")
	cmd.Flags().StringVar(&partnerID, "partner-id", "", "Partner id that receives a share of the fees")
	cmd.Flags().DurationVar(&deadline, "deadline", settlement.DefaultDeadline, "How long the entry stays valid")
	cmd.Flags().StringVar(&minBridgeAmount, "min-bridge-amount", "", "Minimum human amount of the bridge asset to send")
	cmd.Flags().StringVar(&refundAddress, "refund-address", "", "Address or wallet id refunded by the bridge, defaults to the sender")
	cmd.Flags().BoolVar(&noTui, "no-tui", false, "Print logs instead of starting the TUI")

	return cmd
}

func printResult(result *settlement.Result) {
	fmt.Printf("settlement %s nonce %d bridged %s\n", result.Entry.SettlementID, result.Entry.Nonce, result.Entry.BridgeAmountNet)
	fmt.Println(describeResult(result))
}

func describeResult(result *settlement.Result) string {
	switch {
	case result.Out != nil:
		description := fmt.Sprintf("%s: %s of %s to %s", result.Out.Outcome, result.Out.DeliveredAmount, result.Out.DeliveredAsset.Hex(), result.Out.Recipient.Hex())
		if result.Out.Remainder != nil && result.Out.Remainder.Sign() > 0 {
			description += fmt.Sprintf(" plus %s of %s", result.Out.Remainder, result.Out.BridgedAsset.Hex())
		}
		return description
	case result.Cached != nil:
		return "cached on destination: " + result.Cached.Reason
	default:
		return "no destination outcome"
	}
}
