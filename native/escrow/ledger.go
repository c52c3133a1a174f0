package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"escrowd/core/state"
	"escrowd/crypto"
)

const escrowSequence = "escrow"

var escrowRecordPrefix = []byte("escrow/record/")

type kvReader interface {
	KVGet(key []byte, out interface{}) (bool, error)
}

// storedEscrow is the RLP layout of an escrow record. Timestamps are stored
// unsigned because RLP has no signed integers.
type storedEscrow struct {
	ID                      uint64
	Buyer                   [20]byte
	Seller                  [20]byte
	Arbiter                 [20]byte
	DepositedAmount         *big.Int
	PlatformFee             *big.Int
	CreatedAt               uint64
	DeliveryDeadline        uint64
	Status                  uint8
	SellerConfirmedDelivery bool
	BuyerReleasedPayment    bool
}

func escrowKey(id uint64) []byte {
	return strconv.AppendUint(append([]byte(nil), escrowRecordPrefix...), id, 10)
}

func newStoredEscrow(e *Escrow) (*storedEscrow, error) {
	if e.CreatedAt < 0 || e.DeliveryDeadline < 0 {
		return nil, fmt.Errorf("escrow: negative timestamp")
	}
	if !e.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", e.Status)
	}
	return &storedEscrow{
		ID:                      e.ID,
		Buyer:                   e.Buyer,
		Seller:                  e.Seller,
		Arbiter:                 e.Arbiter,
		DepositedAmount:         cloneBigInt(e.DepositedAmount),
		PlatformFee:             cloneBigInt(e.PlatformFee),
		CreatedAt:               uint64(e.CreatedAt),
		DeliveryDeadline:        uint64(e.DeliveryDeadline),
		Status:                  uint8(e.Status),
		SellerConfirmedDelivery: e.SellerConfirmedDelivery,
		BuyerReleasedPayment:    e.BuyerReleasedPayment,
	}, nil
}

func (s *storedEscrow) toEscrow() (*Escrow, error) {
	status := Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("escrow: corrupt status %d", s.Status)
	}
	return &Escrow{
		ID:                      s.ID,
		Buyer:                   crypto.Address(s.Buyer),
		Seller:                  crypto.Address(s.Seller),
		Arbiter:                 crypto.Address(s.Arbiter),
		DepositedAmount:         cloneBigInt(s.DepositedAmount),
		PlatformFee:             cloneBigInt(s.PlatformFee),
		CreatedAt:               int64(s.CreatedAt),
		DeliveryDeadline:        int64(s.DeliveryDeadline),
		Status:                  status,
		SellerConfirmedDelivery: s.SellerConfirmedDelivery,
		BuyerReleasedPayment:    s.BuyerReleasedPayment,
	}, nil
}

func loadEscrow(r kvReader, id uint64) (*Escrow, error) {
	var stored storedEscrow
	ok, err := r.KVGet(escrowKey(id), &stored)
	if err != nil {
		return nil, fmt.Errorf("escrow: load %d: %w", id, err)
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return stored.toEscrow()
}

func storeEscrow(tx *state.Tx, e *Escrow) error {
	if e == nil {
		return errors.New("escrow: nil record")
	}
	stored, err := newStoredEscrow(e)
	if err != nil {
		return err
	}
	return tx.KVPut(escrowKey(e.ID), stored)
}

func nextEscrowID(tx *state.Tx) (uint64, error) {
	return tx.NextSequence(escrowSequence)
}
