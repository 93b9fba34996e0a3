package route

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrRouteMismatch     = errors.New("route mismatch")
	ErrUnsupportedRouter = errors.New("unsupported router")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Validate checks the plan against the declared source and destination
// assets. It has no side effects and must pass before any value moves.
func Validate(plan Plan, source ethcommon.Address, destination ethcommon.Address) error {
	if plan.IsEmpty() {
		if source != destination {
			return errors.Wrapf(ErrRouteMismatch, "empty route with source %s != destination %s", source, destination)
		}
		return nil
	}

	for i, leg := range plan {
		if err := validateLeg(leg, source, destination); err != nil {
			return errors.Wrapf(err, "leg %d", i)
		}
	}

	return nil
}

func validateLeg(leg Leg, source ethcommon.Address, destination ethcommon.Address) error {
	if !leg.Kind.IsKnown() {
		return errors.Wrapf(ErrUnsupportedRouter, "router kind %d", uint8(leg.Kind))
	}
	if len(leg.Hops) < 2 {
		return errors.Wrapf(ErrRouteMismatch, "leg needs at least 2 hops, got %d", len(leg.Hops))
	}
	if leg.Input() != source {
		return errors.Wrapf(ErrRouteMismatch, "source: first hop %s != %s", leg.Input(), source)
	}
	if leg.Output() != destination {
		return errors.Wrapf(ErrRouteMismatch, "destination: last hop %s != %s", leg.Output(), destination)
	}
	if leg.AmountIn == nil || leg.AmountIn.Sign() <= 0 {
		return errors.Wrap(ErrInvalidAmount, "amountIn must be > 0")
	}
	if leg.AmountOutMin == nil || leg.AmountOutMin.Sign() < 0 {
		return errors.Wrap(ErrInvalidAmount, "amountOutMin must be set")
	}

	return nil
}
