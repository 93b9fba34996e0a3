package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/server"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query or drive a running zaap serve instance",
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the zaap api")

	get := func(path string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return queryAndPrint[json.RawMessage](cmd, apiURL, http.MethodGet, path, nil)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "chains",
			Short: "List the chains and their deployments",
			Args:  cobra.NoArgs,
			RunE:  get("/v1/chains"),
		},
		&cobra.Command{
			Use:   "balances [chain-id] [address-or-wallet-id]",
			Short: "List the balances of a holder",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return get(fmt.Sprintf("/v1/chains/%s/balances/%s", args[0], args[1]))(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "fees [chain-id] [in|out]",
			Short: "Show the fee configuration for one direction",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return get(fmt.Sprintf("/v1/chains/%s/fees/%s", args[0], args[1]))(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "cached",
			Short: "List receipts waiting for a retry",
			Args:  cobra.NoArgs,
			RunE:  get("/v1/cached"),
		},
		&cobra.Command{
			Use:   "relayer",
			Short: "Show the relayer queue",
			Args:  cobra.NoArgs,
			RunE:  get("/v1/relayer"),
		},
		&cobra.Command{
			Use:   "relayer-retry",
			Short: "Deliver the bridge messages the relayer failed to deliver",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return queryAndPrint[server.StatusResponse](cmd, apiURL, http.MethodPost, "/v1/relayer/retry", nil)
			},
		},
		&cobra.Command{
			Use:   "retry [source-bridge-chain-id] [destination-bridge-chain-id] [nonce]",
			Short: "Retry a cached receipt",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				var chainIDs [2]uint16
				for i, arg := range args[:2] {
					chainID, err := strconv.ParseUint(arg, 10, 16)
					if err != nil {
						return errors.Wrapf(err, "invalid bridge chain id %s", arg)
					}
					chainIDs[i] = uint16(chainID)
				}
				nonce, err := server.ParseNonce(args[2])
				if err != nil {
					return err
				}
				return queryAndPrint[server.StatusResponse](cmd, apiURL, http.MethodPost, "/v1/cached/retry", server.RetryRequest{
					SourceChainID:      chainIDs[0],
					DestinationChainID: chainIDs[1],
					Nonce:              nonce,
				})
			},
		},
		queryEnterCmd(&apiURL),
	)

	return cmd
}

func queryEnterCmd(apiURL *string) *cobra.Command {
	var (
		sourceLegs      []string
		destinationLegs []string
		partnerID       string
		minBridgeAmount string
	)

	cmd := &cobra.Command{
		Use:   "enter [from-chain] [to-chain] [wallet-id] [source-asset] [amount] [bridge-asset] [destination-asset] [recipient]",
		Short: "Enter a settlement through the api",
		Args:  cobra.ExactArgs(8),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAndPrint[server.EnterResponse](cmd, *apiURL, http.MethodPost, "/v1/enter", server.EnterRequest{
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
				PartnerID:        partnerID,
			})
		},
	}

	cmd.Flags().StringArrayVar(&sourceLegs, "src-leg", nil, "Source chain leg, repeat for a split route")
	cmd.Flags().StringArrayVar(&destinationLegs, "dst-leg", nil, "Destination chain leg, repeat for a split route")
	cmd.Flags().StringVar(&partnerID, "partner-id", "", "Partner id that receives a share of the fees")
	cmd.Flags().StringVar(&minBridgeAmount, "min-bridge-amount", "", "Minimum human amount of the bridge asset to send")

	return cmd
}

func queryAndPrint[T any](cmd *cobra.Command, apiURL string, method string, path string, req any) error {
	resp, err := utils.HttpRequest[T](cmd.Context(), logger, strings.TrimSuffix(apiURL, "/")+path, method, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal response")
	}
	fmt.Println(string(out))
	return nil
}
