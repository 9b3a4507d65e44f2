package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_PublishLogin(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, TopicLogin)
	require.NoError(t, err)

	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := &core.Session{
		Identity: core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263"),
		Token: core.Token{
			Value: "token",
			Claims: core.Claims{
				ID:        "01HXYZ",
				Subject:   core.Identity("0x4675c7e5baafbffbca748158becba61ef3b0a263"),
				IssuedAt:  issued,
				ExpiresAt: issued.Add(time.Hour),
			},
		},
	}

	pub := NewWatermillPublisher(pubSub, "")
	require.NoError(t, pub.PublishLogin(ctx, session))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "01HXYZ", msg.UUID)

		var event LoginEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, session.Identity.String(), event.Address)
		assert.Equal(t, "01HXYZ", event.TokenID)
		assert.True(t, issued.Equal(event.IssuedAt))
		assert.True(t, issued.Add(time.Hour).Equal(event.ExpiresAt))
	case <-ctx.Done():
		t.Fatal("login event was not delivered")
	}
}

func TestNewWatermillPublisher_CustomTopic(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	pub := NewWatermillPublisher(pubSub, "custom.login")
	assert.Equal(t, "custom.login", pub.topic)
}
