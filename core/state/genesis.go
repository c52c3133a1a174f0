package state

var genesisKey = prefixedKey([]byte("genesis/"), []byte("applied"))

// GenesisApplied reports whether the genesis allocations were already
// credited to this ledger.
func (tx *Tx) GenesisApplied() (bool, error) {
	_, ok, err := tx.getRaw(genesisKey)
	return ok, err
}

// MarkGenesisApplied records that the genesis allocations have been credited.
func (tx *Tx) MarkGenesisApplied() error {
	return tx.putRaw(genesisKey, []byte{1})
}
