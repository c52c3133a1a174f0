package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the byte length of an escrow participant identity.
const AddressLength = 20

// AddressPrefix is the human-readable part of the bech32 address encoding.
const AddressPrefix = "esc"

var errAddressLength = errors.New("address must be 20 bytes long")

// Address identifies a buyer, seller, arbiter, owner or fee recipient. The zero
// value is the zero identity and is never a valid escrow participant.
type Address [AddressLength]byte

// ZeroAddress is the zero identity.
var ZeroAddress Address

// BytesToAddress copies b into an Address. It fails when b is not exactly 20
// bytes long.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// PubkeyToAddress derives the identity controlled by the supplied secp256k1
// public key.
func PubkeyToAddress(pub ecdsa.PublicKey) Address {
	return Address(ethcrypto.PubkeyToAddress(pub))
}

// IsZero reports whether the address is the zero identity.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return bytes.Clone(a[:])
}

// Hex returns the lowercase hex encoding without a 0x prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String renders the address in bech32 form.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText implements encoding.TextMarshaler using the bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Both bech32 and hex forms
// are accepted.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a bech32 address with the esc prefix or a 40 character
// hex string (optionally 0x prefixed).
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ZeroAddress, fmt.Errorf("address required")
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, AddressPrefix+"1") {
		return decodeBech32(lower)
	}
	raw := strings.TrimPrefix(lower, "0x")
	if len(raw) != 2*AddressLength {
		return ZeroAddress, fmt.Errorf("invalid address %q", s)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid hex address: %w", err)
	}
	return BytesToAddress(decoded)
}

func decodeBech32(s string) (Address, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return ZeroAddress, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return ZeroAddress, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}
