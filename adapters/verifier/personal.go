package verifier

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// PersonalSignVerifier verifies EIP-191 "personal_sign" signatures, the format produced by
// eth_sign / signMessage in wallets.
type PersonalSignVerifier struct{}

// NewPersonalSignVerifier creates a personal_sign verifier
func NewPersonalSignVerifier() *PersonalSignVerifier {
	return &PersonalSignVerifier{}
}

// Verify checks that signature is claimed's personal_sign over the UTF-8 bytes of message.
func (v *PersonalSignVerifier) Verify(message, signature string, claimed core.Identity) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return err
	}
	return recoverAndCompare(accounts.TextHash([]byte(message)), sig, claimed)
}

var _ ports.SignatureVerifier = (*PersonalSignVerifier)(nil)
