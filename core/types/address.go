package types

import (
	"encoding/hex"
	"strings"

	"launchcore/core/faults"
)

// Address identifies an account, asset, or derived sub-account on the ledger.
type Address [20]byte

// ZeroAddress is the canonical empty address. It doubles as the "self"
// sentinel for delegation and the "unset" value for optional address fields.
var ZeroAddress Address

// IsZero reports whether the address is the zero sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Hex returns the 0x-prefixed lowercase hex encoding of the address.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// ParseAddress decodes a 0x-prefixed or bare 40-character hex address.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, faults.Validationf("invalid address %q", s)
	}
	if len(raw) != 20 {
		return Address{}, faults.Validationf("address must be 20 bytes, got %d", len(raw))
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}
