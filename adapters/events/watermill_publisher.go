package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// TopicLogin receives one message per successful login.
const TopicLogin = "walletauth.login"

// LoginEvent represents a login event
type LoginEvent struct {
	Address   string    `json:"address"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic falls back
// to TopicLogin.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = TopicLogin
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishLogin publishes a login event keyed by the token id
func (p *WatermillPublisher) PublishLogin(ctx context.Context, session *core.Session) error {
	event := LoginEvent{
		Address:   session.Identity.String(),
		TokenID:   session.Token.Claims.ID,
		IssuedAt:  session.Token.Claims.IssuedAt,
		ExpiresAt: session.Token.Claims.ExpiresAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.TokenID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)
