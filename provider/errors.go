package provider

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
)

// Automine precheck failures, returned before a transaction ever reaches
// the pool.
var (
	ErrAutomineNonceTooHigh      = errors.New("provider: nonce too high for automine")
	ErrAutomineNonceTooLow       = errors.New("provider: nonce too low for automine")
	ErrPriorityFeeBelowMinimum   = errors.New("provider: max priority fee per gas below configured minimum")
	ErrMaxFeeBelowNextBaseFee    = errors.New("provider: max fee per gas below next block's base fee")
)

// State/configuration errors (§7's "State errors" taxonomy).
var (
	ErrUnknownSnapshot              = errors.New("provider: unknown snapshot id")
	ErrSetNonceWithPendingTxs       = errors.New("provider: cannot set nonce below pending transactions")
	ErrSetMinGasPricePostLondon     = errors.New("provider: min gas price has no effect after the London fork")
	ErrNonceLowerThanCurrent        = errors.New("provider: account nonce may not decrease")
	ErrTimestampLowerThanPrevious   = errors.New("provider: timestamp lower than the previous block")
	ErrTimestampEqualsPrevious      = errors.New("provider: timestamp equals the previous block's, and same-timestamp blocks are disabled")
	ErrUnknownFilter                = errors.New("provider: unknown filter id")
)

// ErrTransactionNotMined is returned by SendTransaction when automining
// could make no further progress before the submitted transaction was
// confirmed (the pool dropped it, or the block gas limit never admits it).
var ErrTransactionNotMined = errors.New("provider: transaction was not mined")

// TransactionRevertedError carries the return data of a transaction that
// executed but reverted, for send_transaction / run_call callers that need
// to decode a revert reason.
type TransactionRevertedError struct {
	ReturnData []byte
}

func (e *TransactionRevertedError) Error() string {
	return fmt.Sprintf("provider: transaction reverted with %d bytes of return data", len(e.ReturnData))
}

// TransactionHaltedError reports an EVM halt (out-of-gas, invalid opcode,
// stack over/underflow, ...) distinct from a deliberate revert.
type TransactionHaltedError struct {
	Reason string
}

func (e *TransactionHaltedError) Error() string {
	return fmt.Sprintf("provider: transaction halted: %s", e.Reason)
}

// receiptFor finds tx's receipt among a just-mined block's receipts.
func receiptFor(receipts chaintypes.Receipts, hash common.Hash) *chaintypes.Receipt {
	for _, r := range receipts {
		if r.TxHash == hash {
			return r
		}
	}
	return nil
}
