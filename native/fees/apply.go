package fees

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// BasisPointsDenominator expresses 100% in basis points.
	BasisPointsDenominator = 10_000
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1_000
)

// ErrFeeTooHigh is returned when a configured fee rate exceeds MaxPlatformFeeBps.
var ErrFeeTooHigh = errors.New("fees: platform fee exceeds 10%")

// ValidateRate checks the supplied basis point rate against the platform cap.
func ValidateRate(bps uint32) error {
	if bps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	return nil
}

// ApplyInput captures the context required to split a deposit into the
// platform fee and the net amount owed to the counterparty.
type ApplyInput struct {
	Gross     *big.Int
	RateBps   uint32
	Recipient [20]byte
}

// ApplyResult summarises the computed fee and resulting net amount. Fee+Net
// always equals the gross input.
type ApplyResult struct {
	Fee       *big.Int
	Net       *big.Int
	Recipient [20]byte
	RateBps   uint32
}

// Apply evaluates the fee obligation for the supplied gross amount. The fee is
// floor(gross * rate / 10000); rounding always favours the counterparty. The
// caller is responsible for crediting the fee to the recipient.
func Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{Recipient: input.Recipient, RateBps: input.RateBps}
	result.Fee = big.NewInt(0)
	if input.Gross != nil {
		result.Net = new(big.Int).Set(input.Gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 || input.RateBps == 0 {
		return result
	}
	fee := new(big.Int).Mul(result.Net, big.NewInt(int64(input.RateBps)))
	fee = fee.Quo(fee, big.NewInt(BasisPointsDenominator))
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}
