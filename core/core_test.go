package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	const canonical = "0x4675c7e5baafbffbca748158becba61ef3b0a263"

	tests := []struct {
		name  string
		input string
		want  Identity
		err   error
	}{
		{name: "canonical", input: canonical, want: canonical},
		{name: "checksummed", input: "0x4675C7e5BaAFBFFbca748158bEcBA61ef3b0a263", want: canonical},
		{name: "upper case", input: "0x4675C7E5BAAFBFFBCA748158BECBA61EF3B0A263", want: canonical},
		{name: "no prefix", input: "4675c7e5baafbffbca748158becba61ef3b0a263", want: canonical},
		{name: "surrounding space", input: "  " + canonical + "\n", want: canonical},
		{name: "empty", input: "", err: ErrInvalidAddress},
		{name: "too short", input: "0x4675c7e5", err: ErrInvalidAddress},
		{name: "not hex", input: "0xzz75c7e5baafbffbca748158becba61ef3b0a263", err: ErrInvalidAddress},
		{name: "abi padded", input: "0x0000000000000000000000004675c7e5baafbffbca748158becba61ef3b0a263", err: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.input)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, IdentityFromAddress(got.Address()))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSignatureInvalid, KindOf(ErrInvalidSignature))
	assert.Equal(t, KindTokenExpired, KindOf(fmt.Errorf("validating token: %w", ErrTokenExpired)))
	assert.Equal(t, KindNoChallenge, KindOf(fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrNonceExpired))))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindUnexpected, KindOf(ErrNonceNotFound))
	assert.Equal(t, KindUnexpected, KindOf(nil))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "token_expired", KindTokenExpired.String())
	assert.Equal(t, "token_malformed", KindTokenMalformed.String())
	assert.Equal(t, "unexpected_error", Kind(99).String())
}

func TestNonce_Expired(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	n := Nonce{Value: "x", IssuedAt: issued}

	assert.False(t, n.Expired(issued.Add(time.Hour), 0), "zero max age never expires")
	assert.False(t, n.Expired(issued.Add(5*time.Minute), 10*time.Minute))
	assert.True(t, n.Expired(issued.Add(11*time.Minute), 10*time.Minute))
}
