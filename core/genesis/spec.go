package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"escrowd/crypto"
)

// Spec lists the balances credited to a fresh ledger. Amounts are decimal
// strings in the smallest unit.
type Spec struct {
	Alloc map[string]string `json:"alloc"`
}

// Allocation is a parsed balance entry.
type Allocation struct {
	Address crypto.Address
	Amount  *big.Int
}

// LoadSpec reads a JSON genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if _, err := spec.Allocations(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Merge returns a spec combining s with extra. Entries in extra win.
func (s *Spec) Merge(extra map[string]string) *Spec {
	out := &Spec{Alloc: make(map[string]string)}
	if s != nil {
		for k, v := range s.Alloc {
			out.Alloc[k] = v
		}
	}
	for k, v := range extra {
		out.Alloc[k] = v
	}
	return out
}

// Allocations parses and validates every entry, sorted by address.
func (s *Spec) Allocations() ([]Allocation, error) {
	if s == nil {
		return nil, nil
	}
	seen := make(map[crypto.Address]struct{}, len(s.Alloc))
	out := make([]Allocation, 0, len(s.Alloc))
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := crypto.ParseAddress(rawAddr)
		if err != nil {
			return nil, fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		if addr.IsZero() {
			return nil, fmt.Errorf("alloc %q: zero address", rawAddr)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("alloc %q: duplicate address", rawAddr)
		}
		seen[addr] = struct{}{}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
