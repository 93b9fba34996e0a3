package zaap

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (z *Zaap) requireOwner(caller ethcommon.Address) error {
	if owner := z.Owner(); caller != owner {
		return errors.Wrapf(ErrUnauthorizedCaller, "caller %s is not the owner", caller)
	}
	return nil
}

func (z *Zaap) SetTreasury(ctx context.Context, caller ethcommon.Address, dir fees.Direction, treasury ethcommon.Address) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}
	if err := z.fees.SetTreasury(ctx, dir, treasury); err != nil {
		return errors.Wrap(err, "failed to set treasury")
	}

	z.logger.Info("Treasury set", zap.String("direction", string(dir)), zap.String("treasury", treasury.Hex()))
	return nil
}

func (z *Zaap) ClearTreasury(ctx context.Context, caller ethcommon.Address, dir fees.Direction) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}
	if err := z.fees.ClearTreasury(ctx, dir); err != nil {
		return errors.Wrap(err, "failed to clear treasury")
	}

	z.logger.Info("Treasury cleared", zap.String("direction", string(dir)))
	return nil
}

func (z *Zaap) SetFeeBps(ctx context.Context, caller ethcommon.Address, dir fees.Direction, feeBps uint16) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}
	if err := z.fees.SetFeeBps(ctx, dir, feeBps); err != nil {
		return errors.Wrap(err, "failed to set fee bps")
	}

	z.logger.Info("Fee bps set", zap.String("direction", string(dir)), zap.Uint16("fee_bps", feeBps))
	return nil
}

func (z *Zaap) SetPartner(ctx context.Context, caller ethcommon.Address, dir fees.Direction, partnerID []byte, partner fees.Partner) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}
	if err := z.fees.SetPartner(ctx, dir, partnerID, partner); err != nil {
		return errors.Wrap(err, "failed to set partner")
	}

	z.logger.Info("Partner set",
		zap.String("direction", string(dir)),
		zap.String("partner_id", fees.PartnerKey(partnerID)),
		zap.String("partner", partner.Address.Hex()),
		zap.Uint8("percent_share", partner.PercentShare),
	)
	return nil
}

func (z *Zaap) DeletePartner(ctx context.Context, caller ethcommon.Address, dir fees.Direction, partnerID []byte) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}
	if err := z.fees.DeletePartner(ctx, dir, partnerID); err != nil {
		return errors.Wrap(err, "failed to delete partner")
	}

	z.logger.Info("Partner deleted", zap.String("direction", string(dir)), zap.String("partner_id", fees.PartnerKey(partnerID)))
	return nil
}

func (z *Zaap) PauseIn(caller ethcommon.Address) error {
	return z.setPaused(caller, fees.Inbound, true)
}

func (z *Zaap) UnpauseIn(caller ethcommon.Address) error {
	return z.setPaused(caller, fees.Inbound, false)
}

func (z *Zaap) PauseOut(caller ethcommon.Address) error {
	return z.setPaused(caller, fees.Outbound, true)
}

func (z *Zaap) UnpauseOut(caller ethcommon.Address) error {
	return z.setPaused(caller, fees.Outbound, false)
}

func (z *Zaap) setPaused(caller ethcommon.Address, dir fees.Direction, paused bool) error {
	if err := z.requireOwner(caller); err != nil {
		return err
	}

	if dir == fees.Inbound {
		z.pausedIn.Store(paused)
	} else {
		z.pausedOut.Store(paused)
	}

	z.logger.Info("Pause state changed", zap.String("direction", string(dir)), zap.Bool("paused", paused))
	return nil
}

func (z *Zaap) TransferOwnership(caller ethcommon.Address, newOwner ethcommon.Address) error {
	if newOwner == (ethcommon.Address{}) {
		return errors.New("new owner must not be the zero address")
	}

	z.ownerMutex.Lock()
	defer z.ownerMutex.Unlock()
	if caller != z.owner {
		return errors.Wrapf(ErrUnauthorizedCaller, "caller %s is not the owner", caller)
	}
	z.owner = newOwner

	z.logger.Info("Ownership transferred", zap.String("previous_owner", caller.Hex()), zap.String("new_owner", newOwner.Hex()))
	return nil
}
