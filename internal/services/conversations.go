package services

import (
	"context"
	"strings"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
)

// LastMessage is the preview shown next to a conversation.
type LastMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationSummary is one row of a member's inbox.
type ConversationSummary struct {
	ID          string                   `json:"id"`
	Members     []identity.MemberProfile `json:"members"`
	Counterpart identity.MemberProfile   `json:"counterpart"`
	LastMessage *LastMessage             `json:"lastMessage"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	UnreadCount int64                    `json:"unreadCount"`
	IsArchived  bool                     `json:"isArchived"`
}

// StartConversation returns the conversation between initiator and
// counterpartyID, creating it on first contact.
func (s *MessagingService) StartConversation(ctx context.Context, initiator *identity.Principal, counterpartyID string) (*models.Conversation, error) {
	counterpartyID = strings.TrimSpace(counterpartyID)
	self := initiator.MessagingID()
	if self == "" || counterpartyID == "" || counterpartyID == self {
		return nil, apperrors.ErrInvalidParticipants
	}

	conv, created, err := s.conversations.FindOrCreateConversation(ctx, []string{self, counterpartyID})
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	if created {
		logger.Info().
			Str("conversation_id", conv.ID).
			Str("initiator", self).
			Str("counterparty", counterpartyID).
			Msg("Conversation created")
	}
	return conv, nil
}

// ListConversations returns requester's inbox (or archive), most recently
// active first.
func (s *MessagingService) ListConversations(ctx context.Context, requester *identity.Principal, archived bool) ([]ConversationSummary, error) {
	self := requester.MessagingID()
	convs, err := s.conversations.ListConversations(ctx, self, archived)
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	if len(convs) == 0 {
		return []ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}

	unread, err := s.messages.UnreadCounts(ctx, self, ids)
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	lasts, err := s.messages.MessagesByID(ctx, lastIDs)
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}

	members, err := s.directory.Members(ctx, requester.Credential)
	if err != nil {
		logger.Warn().Err(err).Str("member_id", self).Msg("Directory lookup failed, listing with unknown names")
		members = identity.Members{}
	}

	out := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		summary := ConversationSummary{
			ID:          c.ID,
			Members:     memberCards(c.Members, self, members),
			UpdatedAt:   c.UpdatedAt,
			UnreadCount: unread[c.ID],
		}
		if other, ok := c.Other(self); ok {
			summary.Counterpart = members.Lookup(other)
		}
		if m, ok := c.Member(self); ok {
			summary.IsArchived = m.Archived
		}
		if c.LastMessageID != nil {
			if m, ok := lasts[*c.LastMessageID]; ok {
				summary.LastMessage = &LastMessage{
					ID:        m.ID,
					Body:      m.Body,
					SenderID:  m.SenderID,
					CreatedAt: m.CreatedAt,
				}
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// memberCards lists the conversation members with self last.
func memberCards(ids []string, self string, members identity.Members) []identity.MemberProfile {
	cards := make([]identity.MemberProfile, 0, len(ids))
	hasSelf := false
	for _, id := range ids {
		if id == self {
			hasSelf = true
			continue
		}
		cards = append(cards, members.Lookup(id))
	}
	if hasSelf {
		cards = append(cards, members.Lookup(self))
	}
	return cards
}

// ToggleConversationArchive flips the conversation's archive state for actor.
func (s *MessagingService) ToggleConversationArchive(ctx context.Context, actor *identity.Principal, conversationID string) (*models.Conversation, error) {
	if _, err := s.Conversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	if err := s.conversations.ToggleConversationArchived(ctx, conversationID, actor.MessagingID()); err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	return conv, nil
}

// SoftDeleteConversation hides the conversation and its current messages
// from actor only.
func (s *MessagingService) SoftDeleteConversation(ctx context.Context, actor *identity.Principal, conversationID string) error {
	if _, err := s.Conversation(ctx, actor, conversationID); err != nil {
		return err
	}
	if err := s.conversations.SoftDeleteConversation(ctx, conversationID, actor.MessagingID()); err != nil {
		return storeError(err, apperrors.ErrConversationNotFound)
	}
	return nil
}
