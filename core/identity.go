package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is an account address in canonical form: "0x" followed by 40 lowercase hex digits.
type Identity string

// ParseIdentity validates an address and returns its canonical form.
// The 0x prefix is optional on input; checksum casing is not enforced.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAddress
	}
	return IdentityFromAddress(common.HexToAddress(s)), nil
}

// IdentityFromAddress returns the canonical identity of addr.
func IdentityFromAddress(addr common.Address) Identity {
	return Identity(strings.ToLower(addr.Hex()))
}

// Address returns the 20-byte address.
func (i Identity) Address() common.Address {
	return common.HexToAddress(string(i))
}

func (i Identity) String() string { return string(i) }
