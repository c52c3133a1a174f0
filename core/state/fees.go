package state

import (
	"fmt"
	"math/big"
)

// FeeBalance returns the committed cumulative fee balance of recipient.
func (m *Manager) FeeBalance(recipient [20]byte) (*big.Int, error) {
	value, err := loadAmount(m, feeBalanceKey(recipient))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// FeeRecipients lists every address that has ever been credited a fee.
func (m *Manager) FeeRecipients() ([][20]byte, error) {
	return feeRecipients(m)
}

// FeeBalance mirrors Manager.FeeBalance but observes staged writes.
func (tx *Tx) FeeBalance(recipient [20]byte) (*big.Int, error) {
	value, err := loadAmount(tx, feeBalanceKey(recipient))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// FeeCredit adds amount to the cumulative fee balance of recipient. The fee
// table has no debit path.
func (tx *Tx) FeeCredit(recipient [20]byte, amount *big.Int) error {
	if err := tx.creditKey(feeBalanceKey(recipient), amount); err != nil {
		return err
	}
	return tx.KVAppend(feeRecipientsKey, recipient[:])
}

func feeRecipients(r rawReader) ([][20]byte, error) {
	list, err := kvGetList(r, feeRecipientsKey)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(list))
	for _, raw := range list {
		if len(raw) != 20 {
			return nil, fmt.Errorf("state: corrupt fee recipient entry")
		}
		var addr [20]byte
		copy(addr[:], raw)
		out = append(out, addr)
	}
	return out, nil
}

// FeeRecipients mirrors Manager.FeeRecipients but observes staged writes.
func (tx *Tx) FeeRecipients() ([][20]byte, error) {
	return feeRecipients(tx)
}
