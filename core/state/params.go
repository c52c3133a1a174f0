package state

import (
	"fmt"
	"strings"
)

// ParamStoreGet returns the raw committed parameter value stored under name.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	return paramGet(m, name)
}

// ParamStoreGet mirrors Manager.ParamStoreGet but observes staged writes.
func (tx *Tx) ParamStoreGet(name string) ([]byte, bool, error) {
	return paramGet(tx, name)
}

// ParamStorePut stages a raw parameter value.
func (tx *Tx) ParamStorePut(name string, value []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("params key must not be empty")
	}
	return tx.putRaw(paramKey(trimmed), value)
}

func paramGet(r rawReader, name string) ([]byte, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false, fmt.Errorf("params key must not be empty")
	}
	return r.getRaw(paramKey(trimmed))
}
