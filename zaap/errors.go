package zaap

import (
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/gjermundgaraba/libzaap/swapper"
	"github.com/pkg/errors"
)

var (
	ErrInvalidAmount         = route.ErrInvalidAmount
	ErrRouteMismatch         = route.ErrRouteMismatch
	ErrUnsupportedRouter     = route.ErrUnsupportedRouter
	ErrRouterExecutionFailed = swapper.ErrRouterExecutionFailed
	ErrTransferFailed        = ledger.ErrTransferFailed
	ErrInvalidPayload        = bridge.ErrInvalidPayload

	ErrDeadlineExpired         = errors.New("deadline expired")
	ErrEmptyRouteAssetMismatch = errors.New("empty route requires source asset == bridge asset")
	ErrInsufficientValue       = errors.New("insufficient value")
	ErrUnauthorizedCaller      = errors.New("unauthorized caller")
	ErrPaused                  = errors.New("paused")
	ErrSwapExecutionFailed     = errors.New("swap execution failed")
	ErrInvalidPermit           = errors.New("invalid permit")
	ErrInvalidRecipient        = errors.New("recipient must not be the zero address")
)
