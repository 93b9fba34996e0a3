package zaap

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// chargeFees splits gross per the fee configuration of dir and pays the cuts
// out of the orchestrator's balance of asset. A cut that cannot be paid is
// reverted, reported with a FeeTransferFailed event and added back to the net
// amount. The returned split reflects what was actually paid.
func (z *Zaap) chargeFees(ctx context.Context, st ledger.State, settlementID string, dir fees.Direction, asset ethcommon.Address, gross *big.Int, partnerID []byte) (fees.Split, error) {
	cfg, err := z.fees.Load(ctx, dir)
	if err != nil {
		return fees.Split{}, errors.Wrapf(err, "failed to load %s fee config", dir)
	}

	split := fees.Apply(gross, cfg, partnerID)
	if !z.payCut(st, settlementID, dir, asset, split.TreasuryAddress, split.Treasury) {
		split.Net.Add(split.Net, split.Treasury)
		split.Treasury = new(big.Int)
	}
	if !z.payCut(st, settlementID, dir, asset, split.PartnerAddress, split.Partner) {
		split.Net.Add(split.Net, split.Partner)
		split.Partner = new(big.Int)
	}

	return split, nil
}

func (z *Zaap) payCut(st ledger.State, settlementID string, dir fees.Direction, asset ethcommon.Address, to ethcommon.Address, amount *big.Int) bool {
	if amount.Sign() == 0 {
		return true
	}

	snapshot := st.Snapshot()
	if err := st.Transfer(asset, z.address, to, amount); err != nil {
		st.RevertToSnapshot(snapshot)

		z.logger.Warn("Fee transfer failed, keeping cut in settlement",
			zap.String("settlement_id", settlementID),
			zap.String("direction", string(dir)),
			zap.String("to", to.Hex()),
			zap.Stringer("amount", amount),
			zap.Error(err),
		)
		st.AddLog(ledger.Log{
			Address: z.address,
			Name:    EventFeeTransferFailed,
			Data: FeeTransferFailed{
				SettlementID: settlementID,
				Direction:    dir,
				Asset:        asset,
				To:           to,
				Amount:       new(big.Int).Set(amount),
				Reason:       err.Error(),
			},
		})
		return false
	}

	return true
}
