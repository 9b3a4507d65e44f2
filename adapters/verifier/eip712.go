package verifier

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// PrimaryType is the EIP-712 struct a wallet signs: Authentication(string nonce).
const PrimaryType = "Authentication"

// EIP712Domain is the signing domain presented to the wallet.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string // optional
}

// TypedDataVerifier verifies EIP-712 signatures over an Authentication{nonce} message.
type TypedDataVerifier struct {
	domain apitypes.TypedDataDomain
	types  apitypes.Types
}

// NewTypedDataVerifier creates an EIP-712 verifier bound to domain.
func NewTypedDataVerifier(domain EIP712Domain) (*TypedDataVerifier, error) {
	if domain.Name == "" || domain.Version == "" {
		return nil, errors.New("eip712 domain requires name and version")
	}

	d := apitypes.TypedDataDomain{
		Name:    domain.Name,
		Version: domain.Version,
		ChainId: math.NewHexOrDecimal256(domain.ChainID),
	}
	domainType := []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	}
	if domain.VerifyingContract != "" {
		if !common.IsHexAddress(domain.VerifyingContract) {
			return nil, fmt.Errorf("invalid verifying contract %q", domain.VerifyingContract)
		}
		d.VerifyingContract = common.HexToAddress(domain.VerifyingContract).Hex()
		domainType = append(domainType, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}

	return &TypedDataVerifier{
		domain: d,
		types: apitypes.Types{
			"EIP712Domain": domainType,
			PrimaryType: {
				{Name: "nonce", Type: "string"},
			},
		},
	}, nil
}

// TypedData returns the typed data document a wallet is asked to sign for nonce.
func (v *TypedDataVerifier) TypedData(nonce string) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       v.types,
		PrimaryType: PrimaryType,
		Domain:      v.domain,
		Message:     apitypes.TypedDataMessage{"nonce": nonce},
	}
}

// Hash returns the EIP-712 digest for nonce.
func (v *TypedDataVerifier) Hash(nonce string) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(v.TypedData(nonce))
	if err != nil {
		return nil, fmt.Errorf("hashing typed data: %w", err)
	}
	return hash, nil
}

// Verify checks that signature is claimed's EIP-712 signature over Authentication{message}.
func (v *TypedDataVerifier) Verify(message, signature string, claimed core.Identity) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return err
	}

	hash, err := v.Hash(message)
	if err != nil {
		return err
	}

	return recoverAndCompare(hash, sig, claimed)
}

var _ ports.SignatureVerifier = (*TypedDataVerifier)(nil)
