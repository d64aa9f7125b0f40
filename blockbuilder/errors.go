package blockbuilder

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrExceedsBlockGasLimit     = errors.New("blockbuilder: transaction gas limit exceeds remaining block gas")
	ErrExceedsBlockBlobGasLimit = errors.New("blockbuilder: transaction blob gas would exceed the per-block blob gas limit")
	ErrMissingPrevRandao        = errors.New("blockbuilder: post-merge block is missing prevrandao")
	ErrMissingExcessBlobGas     = errors.New("blockbuilder: post-Cancun block is missing excess blob gas")
)

// InsufficientFundsError reports that the sender cannot cover the maximum
// possible cost of the transaction, carrying the figures the caller needs
// to build a precise user-facing message.
type InsufficientFundsError struct {
	MaxUpfrontCost *big.Int
	SenderBalance  *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("blockbuilder: insufficient funds for gas * price + value: have %s, need %s", e.SenderBalance, e.MaxUpfrontCost)
}

// InvalidTransactionError wraps any other transaction-level rejection the
// EVM collaborator returned (bad nonce, intrinsic gas, etc.), preserving it
// for callers that want to inspect the underlying cause.
type InvalidTransactionError struct {
	Cause error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("blockbuilder: invalid transaction: %v", e.Cause)
}

func (e *InvalidTransactionError) Unwrap() error { return e.Cause }
