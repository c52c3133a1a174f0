package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reader exposes the minimal parameter store capabilities required to inspect
// pause toggles. Both the state manager and an open transaction satisfy it.
type Reader interface {
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Writer stages parameter values inside a ledger transaction.
type Writer interface {
	Reader
	ParamStorePut(name string, value []byte) error
}

// Pauses is the persisted pause configuration. Values are marshalled as JSON so
// new module toggles can be added without a migration.
type Pauses struct {
	Escrow bool `json:"escrow"`
}

// LoadPauses reads the pause configuration. When unset, a zero-value
// configuration is returned.
func LoadPauses(reader Reader) (Pauses, error) {
	if reader == nil {
		return Pauses{}, fmt.Errorf("params: reader not configured")
	}
	raw, ok, err := reader.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return Pauses{}, fmt.Errorf("params: load pauses: %w", err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	var pauses Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// StorePauses stages the supplied pause configuration under the canonical
// parameter store key.
func StorePauses(writer Writer, pauses Pauses) error {
	if writer == nil {
		return fmt.Errorf("params: writer not configured")
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return writer.ParamStorePut(ParamsKeyPauses, encoded)
}

// EscrowPaused reports whether the escrow module pause toggle is enabled.
func EscrowPaused(reader Reader) (bool, error) {
	pauses, err := LoadPauses(reader)
	if err != nil {
		return false, err
	}
	return pauses.Escrow, nil
}
