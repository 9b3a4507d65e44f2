package core

import "time"

// Nonce is the challenge an account has to sign.
type Nonce struct {
	Value    string    // UUID in canonical textual form, signed byte for byte
	IssuedAt time.Time // When the nonce was issued
}

// Expired reports whether the nonce is older than maxAge. A zero maxAge never expires.
func (n Nonce) Expired(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(n.IssuedAt) > maxAge
}

// Claims is the payload carried by a session token.
type Claims struct {
	ID        string    // Unique token identifier (jti)
	Subject   Identity  // Authenticated account
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being valid
}

// Token is a minted session token together with its claims.
type Token struct {
	Value  string
	Claims Claims
}

// JWK is the public half of an asymmetric signing key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// Session is the result of a successful authentication.
type Session struct {
	Identity  Identity
	Token     Token
	PublicKey *JWK // nil for symmetric algorithms
}
