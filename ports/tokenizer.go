package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer mints and validates session tokens
type Tokenizer interface {
	Mint(identity core.Identity) (core.Token, error)
	Validate(token string) (*core.Claims, error)

	// JWK returns the public verification key, or nil for symmetric algorithms.
	JWK() *core.JWK
}

// SignatureVerifier checks that signature over message was produced by claimed.
type SignatureVerifier interface {
	Verify(message, signature string, claimed core.Identity) error
}
