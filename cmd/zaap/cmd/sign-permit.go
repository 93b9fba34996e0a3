package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/settlement"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type signedPermitOutput struct {
	Permit    *permit.Signed `json:"signed"`
	Hash      string         `json:"hash"`
	Signature string         `json:"signature"`
}

func signPermitCmd() *cobra.Command {
	var (
		nonce     uint64
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sign-permit [chain-id] [wallet-id] [asset] [amount]",
		Short: "Sign a permit letting the orchestrator pull a human amount of an asset once",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chainID := args[0]
			walletID := args[1]

			network, err := cfg.ToNetwork(ctx, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build network")
			}
			chain, err := network.GetChain(chainID)
			if err != nil {
				return err
			}
			deployment, err := network.GetDeployment(chainID)
			if err != nil {
				return err
			}
			wallet, err := chain.GetWallet(walletID)
			if err != nil {
				return errors.Wrapf(err, "failed to get wallet %s", walletID)
			}

			token, err := deployment.ResolveAsset(args[2])
			if err != nil {
				return err
			}
			asset, ok := deployment.Asset(token)
			if !ok {
				return errors.Errorf("unknown decimals for asset %s", args[2])
			}
			amount, err := utils.ParseAmount(args[3], asset.Decimals)
			if err != nil {
				return err
			}

			deadline := uint64(time.Now().Add(expiresIn).Unix())
			single := settlement.NewPermit(deployment, token, amount, nonce, deadline)
			hash, err := permit.Hash(deployment.Permit2.ChainID(), deployment.Permit2.Address(), single)
			if err != nil {
				return errors.Wrap(err, "failed to hash permit")
			}
			signed, err := permit.Sign(deployment.Permit2.ChainID(), deployment.Permit2.Address(), single, wallet.PrivateKey())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(signedPermitOutput{
				Permit:    signed,
				Hash:      hash.Hex(),
				Signature: hexutil.Encode(signed.Signature),
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal permit")
			}
			fmt.Println(string(out))

			return nil
		},
	}

	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "Permit nonce, the next unused nonce of the owner")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", settlement.DefaultDeadline, "How long the permit and the allowance it grants stay valid")

	return cmd
}
