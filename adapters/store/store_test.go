package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNonce(issuedAt time.Time) core.Nonce {
	return core.Nonce{Value: uuid.NewString(), IssuedAt: issuedAt}
}

func randomIdentity(t *testing.T) core.Identity {
	t.Helper()
	// Random suffix keeps shared backends (postgres, redis) isolated between runs.
	id, err := core.ParseIdentity("0x" + uuid.New().String()[:8] + "00000000000000000000000000000000")
	require.NoError(t, err)
	return id
}

// tokenStore is implemented by every store here; LastToken reads back what
// ConsumeNonce and RecordToken wrote.
type tokenStore interface {
	ports.NonceStore
	LastToken(ctx context.Context, identity core.Identity) (string, error)
}

type storeFactory func(t *testing.T) tokenStore

func storeFactories() map[string]storeFactory {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) tokenStore { return NewMemoryStore() },
		"sqlite": func(t *testing.T) tokenStore {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "walletauth.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"miniredis": func(t *testing.T) tokenStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, time.Minute)
		},
	}

	if dsn := os.Getenv("WALLETAUTH_TEST_POSTGRES_URL"); dsn != "" {
		factories["postgres"] = func(t *testing.T) tokenStore {
			ctx := context.Background()
			s, err := NewPostgresStore(ctx, dsn)
			require.NoError(t, err)
			require.NoError(t, s.Migrate(ctx))
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}

	if addr := os.Getenv("WALLETAUTH_TEST_REDIS_URL"); addr != "" {
		factories["redis"] = func(t *testing.T) tokenStore {
			opts, err := redis.ParseURL(addr)
			require.NoError(t, err)
			client := redis.NewClient(opts)
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, time.Minute)
		}
	}

	return factories
}

func TestNonceStores(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("missing nonce", func(t *testing.T) {
				s := factory(t)
				_, err := s.GetNonce(context.Background(), randomIdentity(t))
				require.ErrorIs(t, err, core.ErrNonceNotFound)
			})

			t.Run("upsert and get", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)
				issued := time.Date(2024, 5, 1, 10, 0, 0, 123000, time.UTC)
				nonce := newTestNonce(issued)

				require.NoError(t, s.UpsertNonce(ctx, id, nonce))

				got, err := s.GetNonce(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, nonce.Value, got.Value)
				assert.True(t, issued.Equal(got.IssuedAt), "issued_at %v != %v", got.IssuedAt, issued)
			})

			t.Run("upsert replaces", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)

				first := newTestNonce(time.Now().UTC())
				second := newTestNonce(time.Now().UTC())
				require.NoError(t, s.UpsertNonce(ctx, id, first))
				require.NoError(t, s.UpsertNonce(ctx, id, second))

				got, err := s.GetNonce(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, second.Value, got.Value)

				// The replaced nonce can no longer be consumed.
				require.ErrorIs(t, s.ConsumeNonce(ctx, id, first.Value, "token"), core.ErrNonceNotFound)
			})

			t.Run("consume deletes once", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)
				nonce := newTestNonce(time.Now().UTC())

				require.NoError(t, s.UpsertNonce(ctx, id, nonce))
				require.NoError(t, s.ConsumeNonce(ctx, id, nonce.Value, "token"))

				_, err := s.GetNonce(ctx, id)
				require.ErrorIs(t, err, core.ErrNonceNotFound)
				require.ErrorIs(t, s.ConsumeNonce(ctx, id, nonce.Value, "token"), core.ErrNonceNotFound)
			})

			t.Run("consume after consume then reissue", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)

				first := newTestNonce(time.Now().UTC())
				require.NoError(t, s.UpsertNonce(ctx, id, first))
				require.NoError(t, s.ConsumeNonce(ctx, id, first.Value, "token"))

				second := newTestNonce(time.Now().UTC())
				require.NoError(t, s.UpsertNonce(ctx, id, second))
				got, err := s.GetNonce(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, second.Value, got.Value)
			})

			t.Run("identities are independent", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				a, b := randomIdentity(t), randomIdentity(t)
				na, nb := newTestNonce(time.Now().UTC()), newTestNonce(time.Now().UTC())

				require.NoError(t, s.UpsertNonce(ctx, a, na))
				require.NoError(t, s.UpsertNonce(ctx, b, nb))
				require.ErrorIs(t, s.ConsumeNonce(ctx, a, nb.Value, "token"), core.ErrNonceNotFound)
				require.NoError(t, s.ConsumeNonce(ctx, a, na.Value, "token"))

				got, err := s.GetNonce(ctx, b)
				require.NoError(t, err)
				assert.Equal(t, nb.Value, got.Value)
			})

			t.Run("consume records token", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)
				nonce := newTestNonce(time.Now().UTC())
				require.NoError(t, s.UpsertNonce(ctx, id, nonce))

				// A failed consume leaves no token behind.
				require.ErrorIs(t, s.ConsumeNonce(ctx, id, "stale", "rejected"), core.ErrNonceNotFound)
				token, err := s.LastToken(ctx, id)
				require.NoError(t, err)
				assert.Empty(t, token)

				require.NoError(t, s.ConsumeNonce(ctx, id, nonce.Value, "issued.jwt"))
				token, err = s.LastToken(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, "issued.jwt", token)
			})

			t.Run("record token keeps nonce", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				id := randomIdentity(t)
				nonce := newTestNonce(time.Now().UTC())

				require.ErrorIs(t, s.RecordToken(ctx, id, "orphan"), core.ErrNonceNotFound)

				require.NoError(t, s.UpsertNonce(ctx, id, nonce))
				require.NoError(t, s.RecordToken(ctx, id, "first.jwt"))
				require.NoError(t, s.RecordToken(ctx, id, "second.jwt"))

				token, err := s.LastToken(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, "second.jwt", token)

				got, err := s.GetNonce(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, nonce.Value, got.Value)
			})
		})
	}
}

func TestMemoryStore_ConcurrentConsume(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263")
	nonce := newTestNonce(time.Now())
	require.NoError(t, s.UpsertNonce(ctx, id, nonce))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ConsumeNonce(ctx, id, nonce.Value, "token") == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestRedisStore_KeysShareSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, time.Minute)
	ctx := context.Background()
	id := core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263")
	nonce := newTestNonce(time.Now())

	require.NoError(t, s.UpsertNonce(ctx, id, nonce))
	nonceKey := "walletauth:{" + id.String() + "}:nonce"
	assert.True(t, mr.Exists(nonceKey))
	assert.Equal(t, nonce.Value, mr.HGet(nonceKey, "value"))
	assert.Equal(t, time.Minute, mr.TTL(nonceKey))

	require.NoError(t, s.ConsumeNonce(ctx, id, nonce.Value, "issued.jwt"))
	assert.False(t, mr.Exists(nonceKey))
	got, err := mr.Get("walletauth:{" + id.String() + "}:token")
	require.NoError(t, err)
	assert.Equal(t, "issued.jwt", got)
}

func TestRedisStore_NonceExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, time.Minute)
	ctx := context.Background()
	id := core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263")
	nonce := newTestNonce(time.Now())
	require.NoError(t, s.UpsertNonce(ctx, id, nonce))

	mr.FastForward(time.Minute + time.Second)

	_, err := s.GetNonce(ctx, id)
	require.ErrorIs(t, err, core.ErrNonceNotFound)
	require.ErrorIs(t, s.ConsumeNonce(ctx, id, nonce.Value, "token"), core.ErrNonceNotFound)
}

func TestSQLiteStore_AddsTokenColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletauth.db")
	ctx := context.Background()

	// A users table from before jwt_token was tracked.
	legacy, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	_, err = legacy.db.ExecContext(ctx, `DROP TABLE users`)
	require.NoError(t, err)
	_, err = legacy.db.ExecContext(ctx, `CREATE TABLE users (user_id TEXT PRIMARY KEY, nonce TEXT, issued_at INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	id := core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263")
	nonce := newTestNonce(time.Now())
	require.NoError(t, s.UpsertNonce(ctx, id, nonce))
	require.NoError(t, s.ConsumeNonce(ctx, id, nonce.Value, "issued.jwt"))

	var token string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT jwt_token FROM users WHERE user_id = ?`, id.String()).Scan(&token))
	assert.Equal(t, "issued.jwt", token)
}
