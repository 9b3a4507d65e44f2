package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the nonce hash only if it still holds the expected value
// and stores the issued token alongside.
var consumeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "value") == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("SET", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// recordScript stores the token only for an identity the store already knows.
var recordScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
	redis.call("SET", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// RedisStore is a Redis implementation of the NonceStore interface.
// Each nonce is a hash {value, issued_at} under prefix{identity}:nonce and the last
// issued token a string under prefix{identity}:token. The hash tag keeps both keys
// in one cluster slot so the scripts can touch them together.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store. A positive ttl lets Redis drop
// nonces that were never used.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "walletauth:",
		ttl:    ttl,
	}
}

func (s *RedisStore) nonceKey(identity core.Identity) string {
	return s.prefix + "{" + identity.String() + "}:nonce"
}

func (s *RedisStore) tokenKey(identity core.Identity) string {
	return s.prefix + "{" + identity.String() + "}:token"
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// UpsertNonce replaces the nonce held for identity. Both fields and the expiry are
// written in one MULTI/EXEC transaction.
func (s *RedisStore) UpsertNonce(ctx context.Context, identity core.Identity, nonce core.Nonce) error {
	key := s.nonceKey(identity)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"value", nonce.Value,
			"issued_at", strconv.FormatInt(nonce.IssuedAt.UnixNano(), 10),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}

	return nil
}

// GetNonce returns the nonce held for identity
func (s *RedisStore) GetNonce(ctx context.Context, identity core.Identity) (core.Nonce, error) {
	key := s.nonceKey(identity)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to load nonce: %w", err)
	}

	value, ok := fields["value"]
	if !ok {
		return core.Nonce{}, core.ErrNonceNotFound
	}

	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to parse nonce issue time: %w", err)
	}

	return core.Nonce{Value: value, IssuedAt: time.Unix(0, issuedAt).UTC()}, nil
}

// ConsumeNonce removes the nonce held for identity if it still equals value and
// records token
func (s *RedisStore) ConsumeNonce(ctx context.Context, identity core.Identity, value, token string) error {
	keys := []string{s.nonceKey(identity), s.tokenKey(identity)}

	deleted, err := consumeScript.Run(ctx, s.client, keys, value, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	if deleted == 0 {
		return core.ErrNonceNotFound
	}

	return nil
}

// RecordToken stores the last token issued to identity
func (s *RedisStore) RecordToken(ctx context.Context, identity core.Identity, token string) error {
	keys := []string{s.nonceKey(identity), s.tokenKey(identity)}

	stored, err := recordScript.Run(ctx, s.client, keys, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to record token: %w", err)
	}
	if stored == 0 {
		return core.ErrNonceNotFound
	}

	return nil
}

// LastToken returns the last token recorded for identity, or "" when none was.
func (s *RedisStore) LastToken(ctx context.Context, identity core.Identity) (string, error) {
	token, err := s.client.Get(ctx, s.tokenKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

var _ ports.NonceStore = (*RedisStore)(nil)
