package params

import (
	"context"
	"errors"
	"log/slog"

	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/crypto"
)

var (
	// ErrNotOwner is returned when a non-owner attempts an administrative action.
	ErrNotOwner = errors.New("params: caller is not the owner")
	// ErrPaused blocks every escrow mutation while the gate is paused.
	ErrPaused = errors.New("params: escrow module paused")
	// ErrAlreadyPaused is returned when pausing a paused gate.
	ErrAlreadyPaused = errors.New("params: already paused")
	// ErrNotPaused is returned when unpausing a running gate.
	ErrNotPaused = errors.New("params: not paused")
)

// Gate couples the owner identity with the persisted escrow pause toggle.
type Gate struct {
	state   *state.Manager
	owner   crypto.Address
	emitter events.Emitter
	logger  *slog.Logger
}

// NewGate constructs a gate over the provided ledger. The owner is fixed for
// the lifetime of the gate.
func NewGate(manager *state.Manager, owner crypto.Address) *Gate {
	return &Gate{state: manager, owner: owner, emitter: events.NoopEmitter{}, logger: slog.Default()}
}

// SetEmitter configures the event sink for pause toggles.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// SetLogger overrides the logger used for administrative actions.
func (g *Gate) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Owner returns the administrative account.
func (g *Gate) Owner() crypto.Address { return g.owner }

// IsOwner reports whether addr is the administrative account.
func (g *Gate) IsOwner(addr crypto.Address) bool {
	return !g.owner.IsZero() && addr == g.owner
}

// Paused reports the committed pause toggle.
func (g *Gate) Paused() (bool, error) {
	return EscrowPaused(g.state)
}

// Check returns ErrPaused when the toggle visible through reader is enabled.
func (g *Gate) Check(reader Reader) error {
	paused, err := EscrowPaused(reader)
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

// Pause enables the escrow pause toggle.
func (g *Gate) Pause(ctx context.Context, caller crypto.Address) error {
	if err := g.toggle(ctx, caller, true); err != nil {
		return err
	}
	g.emitter.Emit(events.Paused{Account: caller})
	g.logger.Info("escrow module paused", slog.String("account", caller.String()))
	return nil
}

// Unpause disables the escrow pause toggle.
func (g *Gate) Unpause(ctx context.Context, caller crypto.Address) error {
	if err := g.toggle(ctx, caller, false); err != nil {
		return err
	}
	g.emitter.Emit(events.Unpaused{Account: caller})
	g.logger.Info("escrow module unpaused", slog.String("account", caller.String()))
	return nil
}

func (g *Gate) toggle(ctx context.Context, caller crypto.Address, paused bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.IsOwner(caller) {
		return ErrNotOwner
	}
	return g.state.Update(func(tx *state.Tx) error {
		pauses, err := LoadPauses(tx)
		if err != nil {
			return err
		}
		switch {
		case paused && pauses.Escrow:
			return ErrAlreadyPaused
		case !paused && !pauses.Escrow:
			return ErrNotPaused
		}
		pauses.Escrow = paused
		return StorePauses(tx, pauses)
	})
}
