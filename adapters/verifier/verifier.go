package verifier

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	SchemePersonalSign = "personal_sign"
	SchemeEIP712       = "eip712"
)

// New returns the verifier for the named signature scheme.
func New(scheme string, domain EIP712Domain) (ports.SignatureVerifier, error) {
	switch scheme {
	case SchemePersonalSign, "":
		return NewPersonalSignVerifier(), nil
	case SchemeEIP712:
		return NewTypedDataVerifier(domain)
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// decodeSignature parses a 65-byte [R || S || V] hex signature and normalises V to 0/1.
func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature must be %d bytes, got %d", core.ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}

	switch sig[crypto.RecoveryIDOffset] {
	case 27, 28:
		sig[crypto.RecoveryIDOffset] -= 27
	case 0, 1:
	default:
		return nil, fmt.Errorf("%w: invalid recovery id %d", core.ErrMalformedSignature, sig[crypto.RecoveryIDOffset])
	}

	return sig, nil
}

// recoverAndCompare recovers the signer of hash and checks it against claimed.
// Both recovery failure and address mismatch yield core.ErrInvalidSignature.
func recoverAndCompare(hash, sig []byte, claimed core.Identity) error {
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return core.ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != claimed.Address() {
		return core.ErrInvalidSignature
	}
	return nil
}
