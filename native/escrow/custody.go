package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"escrowd/core/state"
	"escrowd/crypto"
)

// DefaultTransferTimeout bounds a receiver hook when no timeout is configured.
const DefaultTransferTimeout = 5 * time.Second

// Payment describes a custody transfer delivered to a receiver hook.
type Payment struct {
	EscrowID uint64
	Buyer    crypto.Address
	Seller   crypto.Address
	Amount   *big.Int
}

// Receiver is implemented by sellers that want to observe, and possibly
// reject, incoming custody transfers. Returning an error aborts the release.
// Receivers run while the release holds the reentrancy guard; any mutating
// engine call they make fails with ErrReentrantCall.
type Receiver interface {
	OnEscrowPayment(ctx context.Context, payment Payment) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(ctx context.Context, payment Payment) error

// OnEscrowPayment implements Receiver.
func (f ReceiverFunc) OnEscrowPayment(ctx context.Context, payment Payment) error {
	return f(ctx, payment)
}

// ReceiverResolver looks up the hook registered for a seller.
type ReceiverResolver interface {
	Receiver(addr crypto.Address) (Receiver, bool)
}

// Receivers is an in-memory ReceiverResolver.
type Receivers struct {
	mu    sync.RWMutex
	hooks map[crypto.Address]Receiver
}

// NewReceivers returns an empty registry.
func NewReceivers() *Receivers {
	return &Receivers{hooks: make(map[crypto.Address]Receiver)}
}

// Register installs hook for addr, replacing any previous hook.
func (r *Receivers) Register(addr crypto.Address, hook Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hook == nil {
		delete(r.hooks, addr)
		return
	}
	r.hooks[addr] = hook
}

// Unregister removes the hook for addr.
func (r *Receivers) Unregister(addr crypto.Address) {
	r.Register(addr, nil)
}

// Receiver implements ReceiverResolver.
func (r *Receivers) Receiver(addr crypto.Address) (Receiver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[addr]
	return hook, ok
}

// transfer moves the net deposit from the vault to the seller inside tx and
// then runs the seller's receiver hook, if any. Every failure is wrapped in
// ErrTransferFailed; the caller discards tx.
func (e *Engine) transfer(ctx context.Context, tx *state.Tx, esc *Escrow) error {
	amount := cloneBigInt(esc.DepositedAmount)
	if err := tx.VaultDebit(amount); err != nil {
		return fmt.Errorf("%w: vault debit: %w", ErrTransferFailed, err)
	}
	if err := tx.Credit(esc.Seller, amount); err != nil {
		return fmt.Errorf("%w: seller credit: %w", ErrTransferFailed, err)
	}
	if e.receivers == nil {
		return nil
	}
	hook, ok := e.receivers.Receiver(esc.Seller)
	if !ok || hook == nil {
		return nil
	}
	payment := Payment{EscrowID: esc.ID, Buyer: esc.Buyer, Seller: esc.Seller, Amount: cloneBigInt(amount)}
	if err := e.runReceiver(ctx, hook, payment); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) runReceiver(ctx context.Context, hook Receiver, payment Payment) error {
	timeout := e.transferTimeout
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("receiver panic: %v", r)
			}
		}()
		done <- hook.OnEscrowPayment(runCtx, payment)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		return fmt.Errorf("receiver: %w", runCtx.Err())
	}
}
