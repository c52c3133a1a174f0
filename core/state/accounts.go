package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available
	// balance of an account or of the custody vault.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("state: balance overflow")
	errNegativeAmount  = errors.New("state: negative amount")
)

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, errNegativeAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return value, nil
}

func loadAmount(r rawReader, key []byte) (*uint256.Int, error) {
	data, ok, err := r.getRaw(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if len(data) > 32 {
		return nil, fmt.Errorf("state: corrupt balance entry")
	}
	return new(uint256.Int).SetBytes(data), nil
}

func (tx *Tx) storeAmount(key []byte, value *uint256.Int) error {
	return tx.putRaw(key, value.Bytes())
}

func (tx *Tx) creditKey(key []byte, amount *big.Int) error {
	delta, err := toUint256(amount)
	if err != nil {
		return err
	}
	current, err := loadAmount(tx, key)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(current, delta)
	if overflow {
		return ErrBalanceOverflow
	}
	return tx.storeAmount(key, updated)
}

func (tx *Tx) debitKey(key []byte, amount *big.Int) error {
	delta, err := toUint256(amount)
	if err != nil {
		return err
	}
	current, err := loadAmount(tx, key)
	if err != nil {
		return err
	}
	if current.Lt(delta) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, current.Dec(), delta.Dec())
	}
	return tx.storeAmount(key, new(uint256.Int).Sub(current, delta))
}

// Balance returns the committed spendable balance of addr.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	value, err := loadAmount(m, balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// VaultBalance returns the committed custody pool balance.
func (m *Manager) VaultBalance() (*big.Int, error) {
	value, err := loadAmount(m, vaultKey)
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Balance mirrors Manager.Balance but observes staged writes.
func (tx *Tx) Balance(addr [20]byte) (*big.Int, error) {
	value, err := loadAmount(tx, balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Credit adds amount to the balance of addr.
func (tx *Tx) Credit(addr [20]byte, amount *big.Int) error {
	return tx.creditKey(balanceKey(addr), amount)
}

// Debit subtracts amount from the balance of addr.
func (tx *Tx) Debit(addr [20]byte, amount *big.Int) error {
	return tx.debitKey(balanceKey(addr), amount)
}

// VaultBalance mirrors Manager.VaultBalance but observes staged writes.
func (tx *Tx) VaultBalance() (*big.Int, error) {
	value, err := loadAmount(tx, vaultKey)
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// VaultCredit adds amount to the custody pool.
func (tx *Tx) VaultCredit(amount *big.Int) error {
	return tx.creditKey(vaultKey, amount)
}

// VaultDebit removes amount from the custody pool.
func (tx *Tx) VaultDebit(amount *big.Int) error {
	return tx.debitKey(vaultKey, amount)
}
