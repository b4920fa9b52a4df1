package executor

import "errors"

var (
	// ErrInsufficientGasFunds means the self-funded path was selected but
	// the wallet cannot cover the network fee. Nothing was broadcast.
	ErrInsufficientGasFunds = errors.New("insufficient funds for network fee")

	// ErrExecutionReverted means the transaction was mined but reverted.
	ErrExecutionReverted = errors.New("execution reverted")

	// ErrConfirmationTimeout means no receipt appeared within the
	// confirmation window. The transaction may still confirm later.
	ErrConfirmationTimeout = errors.New("confirmation timed out")

	// ErrNoBatchRouter means the operation has multiple calls but the
	// active chain has no batch router contract configured.
	ErrNoBatchRouter = errors.New("chain has no batch router for multi-call operations")

	// ErrEmptyOperation means the operation contains no calls.
	ErrEmptyOperation = errors.New("operation has no calls")
)
