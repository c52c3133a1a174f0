package escrow

import (
	"errors"

	"escrowd/core/state"
	"escrowd/native/fees"
	"escrowd/native/params"
)

var (
	ErrInvalidSeller               = errors.New("escrow: invalid seller")
	ErrInvalidArbiter              = errors.New("escrow: invalid arbiter")
	ErrSellerCannotBeBuyer         = errors.New("escrow: seller cannot be buyer")
	ErrInvalidDeadline             = errors.New("escrow: invalid deadline")
	ErrEscrowNotFound              = errors.New("escrow: not found")
	ErrOnlyBuyerCanFund            = errors.New("escrow: only buyer can fund")
	ErrInvalidStatus               = errors.New("escrow: invalid status")
	ErrAmountMustBeGreaterThanZero = errors.New("escrow: amount must be greater than zero")
	ErrOnlySellerCanConfirm        = errors.New("escrow: only seller can confirm")
	ErrDeadlinePassed              = errors.New("escrow: deadline passed")
	ErrOnlyBuyerCanRelease         = errors.New("escrow: only buyer can release")
	// ErrTransferFailed wraps the underlying custody failure. The release that
	// produced it left no trace in the ledger.
	ErrTransferFailed = errors.New("escrow: transfer failed")
	// ErrReentrantCall is returned by every mutating entry point while a
	// payment release is in flight.
	ErrReentrantCall = errors.New("escrow: reentrant call")

	errNilState = errors.New("escrow engine: state not configured")
)

// Class groups errors by how a caller is expected to react to them.
type Class string

const (
	ClassNone          Class = ""
	ClassConfiguration Class = "configuration"
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassNotFound      Class = "not_found"
	ClassState         Class = "state"
	ClassPaused        Class = "paused"
	ClassFunds         Class = "funds"
	ClassTransfer      Class = "transfer"
	ClassInternal      Class = "internal"
)

// Classify maps an error returned by the engine or gate onto its class.
// Transfer failures are checked first because they wrap arbitrary receiver
// errors.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrTransferFailed):
		return ClassTransfer
	case errors.Is(err, fees.ErrFeeTooHigh):
		return ClassConfiguration
	case errors.Is(err, ErrInvalidSeller),
		errors.Is(err, ErrInvalidArbiter),
		errors.Is(err, ErrSellerCannotBeBuyer),
		errors.Is(err, ErrInvalidDeadline),
		errors.Is(err, ErrAmountMustBeGreaterThanZero):
		return ClassValidation
	case errors.Is(err, ErrOnlyBuyerCanFund),
		errors.Is(err, ErrOnlySellerCanConfirm),
		errors.Is(err, ErrOnlyBuyerCanRelease),
		errors.Is(err, params.ErrNotOwner):
		return ClassAuthorization
	case errors.Is(err, ErrEscrowNotFound):
		return ClassNotFound
	case errors.Is(err, params.ErrPaused):
		return ClassPaused
	case errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrReentrantCall),
		errors.Is(err, params.ErrAlreadyPaused),
		errors.Is(err, params.ErrNotPaused):
		return ClassState
	case errors.Is(err, state.ErrInsufficientBalance):
		return ClassFunds
	default:
		return ClassInternal
	}
}
