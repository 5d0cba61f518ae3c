package application

import (
	"errors"
	"fmt"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

var (
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New(
		"insufficient funds to cover the requested amounts",
	)
	// ErrInvalidTarget ...
	ErrInvalidTarget = errors.New(
		"target must define a valid asset, a positive amount and a " +
			"destination address or script",
	)
	// ErrFeeEstimation is returned when the fee/size estimation loop of a
	// build does not converge within the allowed number of passes.
	ErrFeeEstimation = errors.New("fee estimation did not converge")
	// ErrBuildNotFound ...
	ErrBuildNotFound = errors.New("build not found or expired")
	// ErrTxNotFullySigned ...
	ErrTxNotFullySigned = errors.New(
		"transaction is not fully signed and cannot be broadcast",
	)
	// ErrReconcilerStopped ...
	ErrReconcilerStopped = errors.New("reconciler has been stopped")
	// ErrSyncerStopped ...
	ErrSyncerStopped = errors.New("syncer has been stopped")
)

// SignatureError is returned when the signer fails on an input or returns a
// signature that does not validate against the input script.
type SignatureError struct {
	InputIndex int
	Err        error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature for input %d: %v", e.InputIndex, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// UnblindError is the warning attached to a wallet output whose rangeproof
// could not be rewound with the blinding key of its script. The output is
// tracked as unspendable and excluded from balances.
type UnblindError struct {
	Account  string
	Outpoint domain.UtxoKey
}

func (e *UnblindError) Error() string {
	return fmt.Sprintf(
		"output %s of account %s cannot be unblinded", e.Outpoint, e.Account,
	)
}
