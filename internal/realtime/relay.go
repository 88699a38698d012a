package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const namespace = "/"

// Outbound event names.
const (
	EventReceiveMessage = "receiveMessage"
	EventNotification   = "notification"
	EventUserJoined     = "userJoined"
	EventUserTyping     = "userTyping"
	EventError          = "error"
)

// ConversationRoom is the room every member viewing a conversation joins.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// MemberRoom is the personal room of one messaging identity.
func MemberRoom(memberID string) string {
	return "member:" + memberID
}

// ReceiveMessage is broadcast to a conversation room for each new message.
// Message mirrors Body for clients of the older event shape.
type ReceiveMessage struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification is sent to the recipient's personal room.
type Notification struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
}

// Broadcaster delivers an event to the local sockets in a room.
type Broadcaster interface {
	BroadcastToRoom(namespace, room, event string, args ...interface{}) bool
}

type envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay turns stored messages into socket events. Without Redis it
// broadcasts locally; with Redis it publishes to a channel that every
// instance's Run loop rebroadcasts to its own sockets.
type Relay struct {
	broadcaster Broadcaster
	redis       redis.UniversalClient
	channel     string
}

type RelayOption func(*Relay)

// WithRedisFanout routes every event through the given pub/sub channel.
func WithRedisFanout(client redis.UniversalClient, channel string) RelayOption {
	return func(r *Relay) {
		r.redis = client
		r.channel = channel
	}
}

func NewRelay(b Broadcaster, opts ...RelayOption) *Relay {
	r := &Relay{broadcaster: b}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fanout reports whether events travel through Redis.
func (r *Relay) Fanout() bool {
	return r.redis != nil
}

// PublishMessage announces msg to its conversation room and notifies the
// recipient's personal room.
func (r *Relay) PublishMessage(ctx context.Context, msg *models.Message) error {
	receive := ReceiveMessage{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Sender:         msg.Sender,
		Recipient:      msg.Recipient,
		Body:           msg.Body,
		Message:        msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
	notice := Notification{
		Message:        fmt.Sprintf("New message from %s", msg.Sender),
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
	}

	return errors.Join(
		r.Emit(ctx, ConversationRoom(msg.ConversationID), EventReceiveMessage, receive),
		r.Emit(ctx, MemberRoom(msg.Recipient), EventNotification, notice),
	)
}

// Emit sends one event to a room, through Redis when fan-out is enabled.
func (r *Relay) Emit(ctx context.Context, room, event string, payload interface{}) error {
	if r.redis == nil {
		r.broadcastLocal(room, event, payload)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	data, err := json.Marshal(envelope{Room: room, Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.redis.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

func (r *Relay) broadcastLocal(room, event string, payload interface{}) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.BroadcastToRoom(namespace, room, event, payload)
}

// Run consumes the fan-out channel until ctx is cancelled. It returns
// immediately when fan-out is disabled.
func (r *Relay) Run(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}

	sub := r.redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	logger.Info().Str("channel", r.channel).Msg("Realtime fan-out subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn().Err(err).Msg("Dropping malformed fan-out event")
				continue
			}
			r.broadcastLocal(env.Room, env.Event, env.Payload)
		}
	}
}
