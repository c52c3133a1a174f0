package escrow

import (
	"fmt"
	"math/big"

	"escrowd/crypto"
)

// Status represents the lifecycle states of an escrow record.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusDelivered
	StatusCompleted
	// StatusDisputed, StatusRefunded and StatusCancelled are declared for
	// storage compatibility. No transition enters them.
	StatusDisputed
	StatusRefunded
	StatusCancelled
)

var statusNames = [...]string{
	StatusCreated:   "created",
	StatusFunded:    "funded",
	StatusDelivered: "delivered",
	StatusCompleted: "completed",
	StatusDisputed:  "disputed",
	StatusRefunded:  "refunded",
	StatusCancelled: "cancelled",
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return statusNames[s]
}

// Escrow captures the parties, amounts and runtime status of a single escrow
// agreement. DepositedAmount is the net owed to the seller; DepositedAmount +
// PlatformFee equals the value supplied at funding time.
type Escrow struct {
	ID                      uint64
	Buyer                   crypto.Address
	Seller                  crypto.Address
	Arbiter                 crypto.Address
	DepositedAmount         *big.Int
	PlatformFee             *big.Int
	CreatedAt               int64
	DeliveryDeadline        int64
	Status                  Status
	SellerConfirmedDelivery bool
	BuyerReleasedPayment    bool
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.DepositedAmount = cloneBigInt(e.DepositedAmount)
	clone.PlatformFee = cloneBigInt(e.PlatformFee)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
