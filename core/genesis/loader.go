package genesis

import (
	"fmt"

	"escrowd/core/state"
)

// Apply credits the spec's allocations to a fresh ledger. Ledgers that were
// already seeded are left untouched; the boolean reports whether anything was
// written.
func Apply(mgr *state.Manager, spec *Spec) (bool, error) {
	if mgr == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	allocs, err := spec.Allocations()
	if err != nil {
		return false, err
	}
	applied := false
	err = mgr.Update(func(tx *state.Tx) error {
		done, err := tx.GenesisApplied()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		for _, alloc := range allocs {
			if err := tx.Credit(alloc.Address, alloc.Amount); err != nil {
				return fmt.Errorf("credit %s: %w", alloc.Address, err)
			}
		}
		applied = true
		return tx.MarkGenesisApplied()
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
