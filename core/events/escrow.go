package events

import (
	"math/big"
	"strconv"

	"escrowd/crypto"
)

const (
	TypeEscrowCreated         = "escrow.created"
	TypeEscrowFunded          = "escrow.funded"
	TypeEscrowDelivered       = "escrow.delivered"
	TypeEscrowPaymentReleased = "escrow.payment_released"
	TypeEscrowCompleted       = "escrow.completed"
)

type EscrowCreated struct {
	ID        uint64
	Buyer     crypto.Address
	Seller    crypto.Address
	Arbiter   crypto.Address
	Deadline  int64
	CreatedAt int64
}

func (EscrowCreated) EventType() string { return TypeEscrowCreated }

func (e EscrowCreated) Record() Record {
	return Record{
		Type: TypeEscrowCreated,
		Attributes: map[string]string{
			"id":        formatID(e.ID),
			"buyer":     e.Buyer.String(),
			"seller":    e.Seller.String(),
			"arbiter":   e.Arbiter.String(),
			"deadline":  intToString(e.Deadline),
			"createdAt": intToString(e.CreatedAt),
		},
	}
}

// EscrowFunded carries the net amount owed to the seller and the fee withheld
// at funding time.
type EscrowFunded struct {
	ID     uint64
	Buyer  crypto.Address
	Amount *big.Int
	Fee    *big.Int
}

func (EscrowFunded) EventType() string { return TypeEscrowFunded }

func (e EscrowFunded) Record() Record {
	return Record{
		Type: TypeEscrowFunded,
		Attributes: map[string]string{
			"id":     formatID(e.ID),
			"buyer":  e.Buyer.String(),
			"amount": formatAmount(e.Amount),
			"fee":    formatAmount(e.Fee),
		},
	}
}

type EscrowDelivered struct {
	ID     uint64
	Seller crypto.Address
}

func (EscrowDelivered) EventType() string { return TypeEscrowDelivered }

func (e EscrowDelivered) Record() Record {
	return Record{
		Type: TypeEscrowDelivered,
		Attributes: map[string]string{
			"id":     formatID(e.ID),
			"seller": e.Seller.String(),
		},
	}
}

type EscrowPaymentReleased struct {
	ID     uint64
	Buyer  crypto.Address
	Seller crypto.Address
	Amount *big.Int
}

func (EscrowPaymentReleased) EventType() string { return TypeEscrowPaymentReleased }

func (e EscrowPaymentReleased) Record() Record {
	return Record{
		Type: TypeEscrowPaymentReleased,
		Attributes: map[string]string{
			"id":     formatID(e.ID),
			"buyer":  e.Buyer.String(),
			"seller": e.Seller.String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// EscrowCompleted summarises the settled escrow: what the seller received and
// the fee that stayed with the platform.
type EscrowCompleted struct {
	ID           uint64
	SellerAmount *big.Int
	Fee          *big.Int
}

func (EscrowCompleted) EventType() string { return TypeEscrowCompleted }

func (e EscrowCompleted) Record() Record {
	return Record{
		Type: TypeEscrowCompleted,
		Attributes: map[string]string{
			"id":           formatID(e.ID),
			"sellerAmount": formatAmount(e.SellerAmount),
			"fee":          formatAmount(e.Fee),
		},
	}
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
