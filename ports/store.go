package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// NonceStore keeps the single outstanding nonce per identity and the last token
// issued to it. Every method must be atomic at the row level.
type NonceStore interface {
	// UpsertNonce associates nonce with identity, replacing any previous one.
	UpsertNonce(ctx context.Context, identity core.Identity, nonce core.Nonce) error

	// GetNonce returns the current nonce or core.ErrNonceNotFound.
	GetNonce(ctx context.Context, identity core.Identity) (core.Nonce, error)

	// ConsumeNonce clears the nonce only if it still equals value and, in the same write,
	// records token as the identity's last issued token.
	// Returns core.ErrNonceNotFound when there is nothing to clear.
	ConsumeNonce(ctx context.Context, identity core.Identity, value, token string) error

	// RecordToken stores token as the identity's last issued token, leaving the nonce
	// in place. Returns core.ErrNonceNotFound for an unknown identity.
	RecordToken(ctx context.Context, identity core.Identity, token string) error
}
