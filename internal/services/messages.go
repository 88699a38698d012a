package services

import (
	"context"
	"strings"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/utils"
)

// MaxMarkReadBatch bounds a single bulk read-state update.
const MaxMarkReadBatch = 500

// SendMessage stores body from sender in the conversation and relays it.
// The recipient is always the other member; clients never name it.
func (s *MessagingService) SendMessage(ctx context.Context, sender *identity.Principal, conversationID, body string) (*models.Message, error) {
	clean, err := utils.SanitizeMessageBody(body)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	conv, err := s.Conversation(ctx, sender, conversationID)
	if err != nil {
		return nil, err
	}
	self := sender.MessagingID()
	recipient, ok := conv.Other(self)
	if !ok {
		return nil, apperrors.ErrRecipientUnresolved
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       self,
		Sender:         sender.DisplayName,
		Recipient:      recipient,
		Body:           clean,
		CreatedAt:      s.now(),
	}
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, msg); err != nil {
			logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Realtime publish failed")
		}
	}
	return msg, nil
}

// ListMessages returns the history requester can see, oldest first. An empty
// history yields a single unsaved placeholder so clients always have a row.
func (s *MessagingService) ListMessages(ctx context.Context, requester *identity.Principal, conversationID string) ([]models.Message, error) {
	if _, err := s.Conversation(ctx, requester, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, conversationID, requester.MessagingID())
	if err != nil {
		return nil, storeError(err, apperrors.ErrConversationNotFound)
	}
	if len(msgs) == 0 {
		placeholder := models.Placeholder(conversationID)
		placeholder.CreatedAt = s.now()
		return []models.Message{placeholder}, nil
	}
	return msgs, nil
}

func (s *MessagingService) ToggleRead(ctx context.Context, actor *identity.Principal, messageID string) (*models.Message, error) {
	return s.toggle(ctx, actor, messageID, store.FlagRead)
}

func (s *MessagingService) ToggleArchive(ctx context.Context, actor *identity.Principal, messageID string) (*models.Message, error) {
	return s.toggle(ctx, actor, messageID, store.FlagArchived)
}

func (s *MessagingService) ToggleStar(ctx context.Context, actor *identity.Principal, messageID string) (*models.Message, error) {
	return s.toggle(ctx, actor, messageID, store.FlagStarred)
}

func (s *MessagingService) toggle(ctx context.Context, actor *identity.Principal, messageID string, flag store.Flag) (*models.Message, error) {
	_, role, err := s.message(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}
	if flag == store.FlagRead && role != models.RoleRecipient {
		return nil, apperrors.ErrRecipientOnly
	}

	msg, err := s.messages.ToggleFlag(ctx, messageID, flag, role)
	if err != nil {
		return nil, storeError(err, apperrors.ErrMessageNotFound)
	}
	return msg, nil
}

// MarkRead sets the read state of a batch of messages. Only messages
// addressed to actor are affected; the others are skipped silently.
func (s *MessagingService) MarkRead(ctx context.Context, actor *identity.Principal, messageIDs []string, read bool) (int64, error) {
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, apperrors.BadRequest("messageIds must not be empty")
	}
	if len(ids) > MaxMarkReadBatch {
		return 0, apperrors.BadRequest("too many messageIds in one request")
	}

	n, err := s.messages.MarkRead(ctx, actor.MessagingID(), ids, read)
	if err != nil {
		return 0, storeError(err, apperrors.ErrMessageNotFound)
	}
	return n, nil
}

// TagMessage replaces actor's tags and/or category on the message. Nil
// arguments keep the stored value.
func (s *MessagingService) TagMessage(ctx context.Context, actor *identity.Principal, messageID string, tags *[]string, category *string) (*models.Message, error) {
	if tags == nil && category == nil {
		return nil, apperrors.BadRequest("tags or category is required")
	}
	_, role, err := s.message(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}

	if tags != nil {
		normalized := utils.NormalizeTags(*tags)
		tags = &normalized
	}
	if category != nil {
		trimmed := utils.TruncateString(strings.TrimSpace(*category), utils.MaxCategoryLength)
		category = &trimmed
	}

	msg, err := s.messages.SetLabels(ctx, messageID, role, tags, category)
	if err != nil {
		return nil, storeError(err, apperrors.ErrMessageNotFound)
	}
	return msg, nil
}

// DeleteMessage removes the message for everyone. Only its sender or
// recipient may do so.
func (s *MessagingService) DeleteMessage(ctx context.Context, actor *identity.Principal, messageID string) error {
	if _, _, err := s.message(ctx, actor, messageID); err != nil {
		return err
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return storeError(err, apperrors.ErrMessageNotFound)
	}
	logger.Info().Str("message_id", messageID).Str("actor", actor.MessagingID()).Msg("Message deleted")
	return nil
}

// UnreadTotal counts the unread messages addressed to actor.
func (s *MessagingService) UnreadTotal(ctx context.Context, actor *identity.Principal) (int64, error) {
	n, err := s.messages.UnreadTotal(ctx, actor.MessagingID())
	if err != nil {
		return 0, storeError(err, apperrors.ErrNotFound)
	}
	return n, nil
}
