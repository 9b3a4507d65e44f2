package store

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryStore is an in-memory implementation of the NonceStore interface
type MemoryStore struct {
	nonces map[core.Identity]core.Nonce
	tokens map[core.Identity]string
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces: make(map[core.Identity]core.Nonce),
		tokens: make(map[core.Identity]string),
	}
}

// UpsertNonce replaces the nonce held for identity
func (s *MemoryStore) UpsertNonce(ctx context.Context, identity core.Identity, nonce core.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[identity] = nonce
	return nil
}

// GetNonce returns the nonce held for identity
func (s *MemoryStore) GetNonce(ctx context.Context, identity core.Identity) (core.Nonce, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nonce, ok := s.nonces[identity]
	if !ok {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	return nonce, nil
}

// ConsumeNonce removes the nonce held for identity if it still equals value and
// records token
func (s *MemoryStore) ConsumeNonce(ctx context.Context, identity core.Identity, value, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.nonces[identity]
	if !ok || nonce.Value != value {
		return core.ErrNonceNotFound
	}
	delete(s.nonces, identity)
	s.tokens[identity] = token
	return nil
}

// RecordToken stores the last token issued to identity
func (s *MemoryStore) RecordToken(ctx context.Context, identity core.Identity, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nonces[identity]; !ok {
		if _, known := s.tokens[identity]; !known {
			return core.ErrNonceNotFound
		}
	}
	s.tokens[identity] = token
	return nil
}

// LastToken returns the last token recorded for identity, or "" when none was.
func (s *MemoryStore) LastToken(ctx context.Context, identity core.Identity) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens[identity], nil
}

var _ ports.NonceStore = (*MemoryStore)(nil)
