package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
)

// ConversationStore persists conversations and their per-member flags.
type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, members []string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, memberID string, archived bool) ([]models.Conversation, error)
	ToggleConversationArchived(ctx context.Context, conversationID, memberID string) error
	SoftDeleteConversation(ctx context.Context, conversationID, memberID string) error
}

// MessageStore persists messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID, viewerID string) ([]models.Message, error)
	MessagesByID(ctx context.Context, ids []string) (map[string]models.Message, error)
	ToggleFlag(ctx context.Context, id string, flag store.Flag, role models.Role) (*models.Message, error)
	SetLabels(ctx context.Context, id string, role models.Role, tags *[]string, category *string) (*models.Message, error)
	MarkRead(ctx context.Context, recipient string, ids []string, read bool) (int64, error)
	DeleteMessage(ctx context.Context, id string) error
	UnreadCounts(ctx context.Context, recipient string, conversationIDs []string) (map[string]int64, error)
	UnreadTotal(ctx context.Context, recipient string) (int64, error)
}

// MemberDirectory resolves messaging identifiers to display cards.
type MemberDirectory interface {
	Members(ctx context.Context, credential string) (identity.Members, error)
}

// Publisher relays a freshly stored message to connected clients.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *models.Message) error
}

// MessagingService holds the authorization and business rules of
// conversations and messages. Stores only persist.
type MessagingService struct {
	conversations ConversationStore
	messages      MessageStore
	directory     MemberDirectory
	publisher     Publisher
	now           func() time.Time
}

// NewMessagingService wires the service. publisher may be nil, in which case
// nothing is relayed.
func NewMessagingService(conversations ConversationStore, messages MessageStore, directory MemberDirectory, publisher Publisher) *MessagingService {
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		directory:     directory,
		publisher:     publisher,
		now:           time.Now,
	}
}

// SetPublisher attaches the relay once it exists; the relay itself needs
// the service for membership checks.
func (s *MessagingService) SetPublisher(p Publisher) {
	s.publisher = p
}

// Conversation returns the conversation if actor is one of its members.
func (s *MessagingService) Conversation(ctx context.Context, actor *identity.Principal, id string) (*models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	if !conv.HasMember(actor.MessagingID()) {
		return nil, apperrors.ErrNotAMember
	}
	return conv, nil
}

// message loads a message and the role actor plays on it.
func (s *MessagingService) message(ctx context.Context, actor *identity.Principal, id string) (*models.Message, models.Role, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, "", storeError(err, apperrors.ErrMessageNotFound)
	}
	role, ok := msg.RoleOf(actor.MessagingID())
	if !ok {
		return nil, "", apperrors.ErrNotAParticipant
	}
	return msg, role, nil
}

// storeError turns a store miss into the given not-found error and wraps
// everything else.
func storeError(err error, missing *apperrors.AppError) error {
	if errors.Is(err, store.ErrNotFound) {
		return missing
	}
	return fmt.Errorf("store: %w", err)
}
