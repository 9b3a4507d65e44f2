package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/oklog/ulid/v2"
)

// AudienceSession is the audience of every session token.
const AudienceSession = "session:access"

// DefaultTokenTTL is the lifetime of a session token.
const DefaultTokenTTL = time.Hour

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(t *JWTTokenizer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim and requires it on validation.
func WithIssuer(issuer string) Option {
	return func(t *JWTTokenizer) { t.issuer = issuer }
}

// WithClock replaces time.Now for minting and validation.
func WithClock(now func() time.Time) Option {
	return func(t *JWTTokenizer) { t.now = now }
}

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	keys   KeyMaterial
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewJWTTokenizer creates a new JWT tokenizer. Validation only accepts tokens whose alg
// header equals the algorithm of keys.
func NewJWTTokenizer(keys KeyMaterial, opts ...Option) *JWTTokenizer {
	t := &JWTTokenizer{
		keys: keys,
		ttl:  DefaultTokenTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	// exp has whole-second precision; one second of leeway keeps a token valid
	// through its expiry second (now <= exp).
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.Algorithm()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Second),
		jwt.WithIssuedAt(),
		jwt.WithAudience(AudienceSession),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	}
	if t.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(t.issuer))
	}
	t.parser = jwt.NewParser(parserOpts...)

	return t
}

// Mint signs a new session token for identity
func (t *JWTTokenizer) Mint(identity core.Identity) (core.Token, error) {
	now := t.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   identity.String(),
			Audience:  jwt.ClaimStrings{AudienceSession},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	token := jwt.NewWithClaims(t.keys.method, claims)
	if t.keys.jwk != nil {
		token.Header["kid"] = t.keys.jwk.Kid
	}

	signed, err := token.SignedString(t.keys.signKey)
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return core.Token{
		Value: signed,
		Claims: core.Claims{
			ID:        claims.ID,
			Subject:   identity,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}, nil
}

// Validate verifies the signature of tokenStr and then its time-based claims.
func (t *JWTTokenizer) Validate(tokenStr string) (*core.Claims, error) {
	claims := &SessionClaims{}
	_, err := t.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.keys.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	subject, err := core.ParseIdentity(claims.Subject)
	if err != nil || subject.String() != claims.Subject {
		return nil, fmt.Errorf("%w: subject is not a canonical address", core.ErrTokenMalformed)
	}

	return &core.Claims{
		ID:        claims.ID,
		Subject:   subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// JWK returns the public verification key, nil for HS256.
func (t *JWTTokenizer) JWK() *core.JWK {
	return t.keys.JWK()
}

// classify maps jwt parser errors onto the token error kinds. The parser checks the
// signature before any claim, so an expired token with a bad signature is a signature error.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", core.ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", core.ErrTokenMalformed, err)
	}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)
