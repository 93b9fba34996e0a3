package swapper

import (
	"context"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrRouterExecutionFailed = errors.New("router execution failed")

// routerError matches ErrRouterExecutionFailed and unwraps to the router's own error.
type routerError struct {
	kind route.RouterKind
	err  error
}

func (e *routerError) Error() string {
	return fmt.Sprintf("%s: %s router: %s", ErrRouterExecutionFailed, e.kind, e.err)
}

func (e *routerError) Is(target error) bool {
	return target == ErrRouterExecutionFailed
}

func (e *routerError) Unwrap() error {
	return e.err
}

type Engine struct {
	logger *zap.Logger
	router Router
}

// Result is the outcome of an execution that must not propagate failure.
type Result struct {
	AmountOut *big.Int
	Err       error
}

func (r Result) Ok() bool {
	return r.Err == nil
}

// LegResult is the outcome of one leg executed in isolation.
type LegResult struct {
	Leg       route.Leg
	AmountOut *big.Int
	Err       error
}

func NewEngine(logger *zap.Logger, router Router) *Engine {
	return &Engine{
		logger: logger,
		router: router,
	}
}

// Execute runs every leg of the plan for account, which both pays the inputs
// and receives the outputs, and returns the summed output. An empty plan
// passes totalAmountIn through unchanged. The plan must have been validated
// against input and output beforehand.
func (e *Engine) Execute(ctx context.Context, st ledger.State, account ethcommon.Address, input ethcommon.Address, totalAmountIn *big.Int, plan route.Plan, output ethcommon.Address) (*big.Int, error) {
	if plan.IsEmpty() {
		return new(big.Int).Set(totalAmountIn), nil
	}

	totalAmountOut := new(big.Int)
	for i, leg := range plan {
		amountOut, err := e.executeLeg(ctx, st, account, leg)
		if err != nil {
			return nil, errors.Wrapf(err, "leg %d", i)
		}

		totalAmountOut.Add(totalAmountOut, amountOut)
	}

	e.logger.Debug("Executed route plan",
		zap.String("input", input.Hex()),
		zap.String("output", output.Hex()),
		zap.String("amount_in", totalAmountIn.String()),
		zap.String("amount_out", totalAmountOut.String()),
		zap.Int("legs", len(plan)))

	return totalAmountOut, nil
}

// TryExecute runs Execute inside a snapshot. On failure every effect of the
// plan is reverted and the error is returned in the result instead.
func (e *Engine) TryExecute(ctx context.Context, st ledger.State, account ethcommon.Address, input ethcommon.Address, totalAmountIn *big.Int, plan route.Plan, output ethcommon.Address) Result {
	snapshot := st.Snapshot()

	amountOut, err := e.Execute(ctx, st, account, input, totalAmountIn, plan, output)
	if err != nil {
		st.RevertToSnapshot(snapshot)
		return Result{Err: err}
	}

	return Result{AmountOut: amountOut}
}

// ExecuteLegs runs every leg inside its own snapshot so a failing leg only
// reverts itself.
func (e *Engine) ExecuteLegs(ctx context.Context, st ledger.State, account ethcommon.Address, plan route.Plan) []LegResult {
	results := make([]LegResult, len(plan))
	for i, leg := range plan {
		snapshot := st.Snapshot()

		amountOut, err := e.executeLeg(ctx, st, account, leg)
		if err != nil {
			st.RevertToSnapshot(snapshot)
			e.logger.Debug("Leg failed", zap.Int("leg", i), zap.Error(err))
		}

		results[i] = LegResult{Leg: leg, AmountOut: amountOut, Err: err}
	}

	return results
}

func (e *Engine) executeLeg(ctx context.Context, st ledger.State, account ethcommon.Address, leg route.Leg) (*big.Int, error) {
	var (
		amountOut *big.Int
		err       error
	)
	switch leg.Kind {
	case route.LegacyConstantProduct:
		amountOut, err = e.router.SwapExactTokensForTokens(ctx, st, account, leg.AmountIn, leg.AmountOutMin, leg.Assets(), account)
	case route.FeeTieredConcentrated:
		path, pathErr := route.EncodePackedPath(leg.Hops)
		if pathErr != nil {
			return nil, errors.Wrap(route.ErrRouteMismatch, pathErr.Error())
		}
		amountOut, err = e.router.ExactInput(ctx, st, ExactInputParams{
			Path:             path,
			Payer:            account,
			Recipient:        account,
			AmountIn:         leg.AmountIn,
			AmountOutMinimum: leg.AmountOutMin,
		})
	default:
		return nil, errors.Wrapf(route.ErrUnsupportedRouter, "router kind %d", uint8(leg.Kind))
	}
	if err != nil {
		return nil, errors.WithStack(&routerError{kind: leg.Kind, err: err})
	}
	if amountOut.Cmp(leg.AmountOutMin) < 0 {
		return nil, errors.Wrapf(ErrRouterExecutionFailed, "%s router returned %s < amountOutMin %s", leg.Kind, amountOut, leg.AmountOutMin)
	}

	return amountOut, nil
}
