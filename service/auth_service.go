package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// DefaultNonceMaxAge is how long an issued nonce can be signed.
const DefaultNonceMaxAge = 15 * time.Minute

// Option configures an AuthService
type Option func(*AuthService)

// WithEventPublisher publishes a login event after every successful authentication.
func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *AuthService) { s.eventPub = pub }
}

// WithMetrics records login and token validation outcomes. A nil m keeps the no-op recorder.
func WithMetrics(m ports.Metrics) Option {
	return func(s *AuthService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for nonce issue and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithConsumeOnSuccess controls whether a nonce is cleared once it authenticated a
// session. Disabling it keeps a signature replayable until the next nonce request.
func WithConsumeOnSuccess(consume bool) Option {
	return func(s *AuthService) { s.consumeOnSuccess = consume }
}

// WithNonceMaxAge limits how long a nonce can be signed. Zero disables the check.
func WithNonceMaxAge(maxAge time.Duration) Option {
	return func(s *AuthService) { s.nonceMaxAge = maxAge }
}

// AuthService handles authentication business logic
type AuthService struct {
	nonces    ports.NonceStore
	verifier  ports.SignatureVerifier
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	metrics   ports.Metrics
	logger    *slog.Logger
	now       func() time.Time

	consumeOnSuccess bool
	nonceMaxAge      time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	verifier ports.SignatureVerifier,
	tokenizer ports.Tokenizer,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		nonces:           nonces,
		verifier:         verifier,
		tokenizer:        tokenizer,
		metrics:          ports.NopMetrics{},
		logger:           slog.Default(),
		now:              time.Now,
		consumeOnSuccess: true,
		nonceMaxAge:      DefaultNonceMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth")
	return s
}

// RequestNonce issues a fresh nonce for address, replacing any previous one.
func (s *AuthService) RequestNonce(ctx context.Context, address string) (core.Identity, core.Nonce, error) {
	identity, err := core.ParseIdentity(address)
	if err != nil {
		return "", core.Nonce{}, err
	}

	value, err := uuid.NewRandom()
	if err != nil {
		return "", core.Nonce{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	nonce := core.Nonce{Value: value.String(), IssuedAt: s.now().UTC()}
	if err := s.nonces.UpsertNonce(ctx, identity, nonce); err != nil {
		return "", core.Nonce{}, fmt.Errorf("failed to issue nonce: %w", err)
	}

	s.metrics.NonceIssued()
	s.logger.DebugContext(ctx, "nonce issued", "address", identity)

	return identity, nonce, nil
}

// Authenticate verifies that signature is address's signature over its current nonce
// and mints a session token. On failure nothing is persisted.
func (s *AuthService) Authenticate(ctx context.Context, address, signature string) (session *core.Session, err error) {
	defer func() {
		if err != nil {
			s.metrics.LoginAttempt(core.KindOf(err).String())
			return
		}
		s.metrics.LoginAttempt("success")
	}()

	identity, err := core.ParseIdentity(address)
	if err != nil {
		return nil, err
	}

	nonce, err := s.nonces.GetNonce(ctx, identity)
	if errors.Is(err, core.ErrNonceNotFound) {
		return nil, core.ErrNoChallengeIssued
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	if nonce.Expired(s.now(), s.nonceMaxAge) {
		return nil, core.ErrNonceExpired
	}

	if err := s.verifier.Verify(nonce.Value, signature, identity); err != nil {
		return nil, err
	}

	token, err := s.tokenizer.Mint(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	// Persist after minting so a signing failure leaves the nonce usable. Losing the
	// compare-and-delete means a concurrent request already spent this nonce.
	if s.consumeOnSuccess {
		err = s.nonces.ConsumeNonce(ctx, identity, nonce.Value, token.Value)
	} else {
		err = s.nonces.RecordToken(ctx, identity, token.Value)
	}
	if errors.Is(err, core.ErrNonceNotFound) {
		return nil, core.ErrNoChallengeIssued
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store session token: %w", err)
	}

	session = &core.Session{
		Identity:  identity,
		Token:     token,
		PublicKey: s.tokenizer.JWK(),
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, session); err != nil {
			// The session is already valid; the event is informational.
			s.logger.WarnContext(ctx, "failed to publish login event", "address", identity, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "account authenticated", "address", identity, "token_id", token.Claims.ID)

	return session, nil
}

// ValidateToken checks a bearer token and returns its claims.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*core.Claims, error) {
	claims, err := s.tokenizer.Validate(token)
	if err != nil {
		s.metrics.TokenValidation(core.KindOf(err).String())
		s.logger.DebugContext(ctx, "token rejected", "error", err)
		return nil, err
	}

	s.metrics.TokenValidation("success")
	return claims, nil
}

// PublicKey returns the token verification key, nil for symmetric algorithms.
func (s *AuthService) PublicKey() *core.JWK {
	return s.tokenizer.JWK()
}
