package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims of a session token. The subject is the canonical account address.
type SessionClaims struct {
	jwt.RegisteredClaims
}
