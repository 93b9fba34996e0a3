package zaap

import (
	"context"
	"sync"
	"sync/atomic"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/swapper"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Containment decides how much of a destination plan a failing leg takes down.
type Containment uint8

const (
	// WholePlan reverts the whole plan when any leg fails and delivers the
	// full bridged amount unswapped.
	WholePlan Containment = iota
	// PerLeg isolates every leg. Outputs of successful legs are delivered in
	// the destination asset and inputs of failed legs in the bridged asset.
	PerLeg
)

func ParseContainment(s string) (Containment, error) {
	switch s {
	case "", "whole-plan":
		return WholePlan, nil
	case "per-leg":
		return PerLeg, nil
	default:
		return 0, errors.Errorf("invalid containment %q, expected whole-plan or per-leg", s)
	}
}

func (c Containment) String() string {
	if c == PerLeg {
		return "per-leg"
	}
	return "whole-plan"
}

type Config struct {
	// Address is the orchestrator's own account. It is the same on every chain.
	Address       ethcommon.Address
	Owner         ethcommon.Address
	WrappedNative ethcommon.Address

	Transport   bridge.Transport
	Router      swapper.Router
	Fees        fees.Store
	Permit2     *permit.Permit2
	Containment Containment
}

var _ bridge.Receiver = &Zaap{}

// Zaap runs inbound entries and outbound receipts on one chain. The ledger
// state is passed into every call; Zaap itself only keeps configuration.
type Zaap struct {
	logger *zap.Logger

	address       ethcommon.Address
	wrappedNative ethcommon.Address
	transport     bridge.Transport
	engine        *swapper.Engine
	fees          fees.Store
	permit2       *permit.Permit2
	containment   Containment

	ownerMutex sync.RWMutex
	owner      ethcommon.Address

	pausedIn  atomic.Bool
	pausedOut atomic.Bool
}

func New(logger *zap.Logger, cfg Config) (*Zaap, error) {
	if cfg.Address == (ethcommon.Address{}) {
		return nil, errors.New("zaap address must be set")
	}
	if cfg.Owner == (ethcommon.Address{}) {
		return nil, errors.New("zaap owner must be set")
	}
	if cfg.WrappedNative == (ethcommon.Address{}) {
		return nil, errors.New("wrapped native asset must be set")
	}
	if cfg.Transport == nil || cfg.Router == nil || cfg.Fees == nil || cfg.Permit2 == nil {
		return nil, errors.New("transport, router, fee store and permit2 are required")
	}

	return &Zaap{
		logger:        logger,
		address:       cfg.Address,
		wrappedNative: cfg.WrappedNative,
		transport:     cfg.Transport,
		engine:        swapper.NewEngine(logger, cfg.Router),
		fees:          cfg.Fees,
		permit2:       cfg.Permit2,
		containment:   cfg.Containment,
		owner:         cfg.Owner,
	}, nil
}

func (z *Zaap) Address() ethcommon.Address {
	return z.address
}

func (z *Zaap) WrappedNative() ethcommon.Address {
	return z.wrappedNative
}

func (z *Zaap) Owner() ethcommon.Address {
	z.ownerMutex.RLock()
	defer z.ownerMutex.RUnlock()
	return z.owner
}

func (z *Zaap) PausedIn() bool {
	return z.pausedIn.Load()
}

func (z *Zaap) PausedOut() bool {
	return z.pausedOut.Load()
}

// FeeConfig returns the current fee configuration for dir.
func (z *Zaap) FeeConfig(ctx context.Context, dir fees.Direction) (fees.Config, error) {
	return z.fees.Load(ctx, dir)
}

// ReceiveBridged implements bridge.Receiver.
func (z *Zaap) ReceiveBridged(ctx context.Context, st ledger.State, caller ethcommon.Address, req bridge.ReceiveRequest) error {
	_, err := z.Receive(ctx, st, caller, req)
	return err
}

// tokenized maps the native sentinel to the wrapped native asset.
func (z *Zaap) tokenized(asset ethcommon.Address) ethcommon.Address {
	if ledger.IsNative(asset) {
		return z.wrappedNative
	}
	return asset
}
