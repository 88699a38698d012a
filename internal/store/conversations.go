package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindOrCreateConversation returns the conversation between exactly the given
// members, creating it when absent. members keeps its order as the
// conversation's member order. created reports whether a row was inserted.
func (s *Store) FindOrCreateConversation(ctx context.Context, members []string) (conv *models.Conversation, created bool, err error) {
	if len(members) < 2 {
		return nil, false, errors.New("a conversation needs at least two members")
	}
	key := models.PairKey(members...)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		row := &models.Conversation{PairKey: key, CreatedAt: now, UpdatedAt: now}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		created = true
		rows := make([]models.ConversationMember, 0, len(members))
		for i, id := range members {
			rows = append(rows, models.ConversationMember{
				ConversationID: row.ID,
				MemberID:       id,
				Position:       i,
				JoinedAt:       now,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	conv, err = s.conversationWhere(ctx, "pair_key = ?", key)
	return conv, created, err
}

// GetConversation loads a conversation with its members.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.conversationWhere(ctx, "id = ?", id)
}

func (s *Store) conversationWhere(ctx context.Context, query string, args ...interface{}) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Preload("Participants").Where(query, args...).First(&conv).Error; err != nil {
		return nil, notFound(err)
	}
	conv.Hydrate()
	return &conv, nil
}

// ListConversations returns the conversations visible to memberID: not soft
// deleted by them and in the requested archive state, newest activity first.
func (s *Store) ListConversations(ctx context.Context, memberID string, archived bool) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Select("conversations.*").
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id").
		Where("cm.member_id = ? AND cm.deleted = ? AND cm.archived = ?", memberID, false, archived).
		Order("conversations.updated_at DESC").
		Preload("Participants").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for i := range convs {
		convs[i].Hydrate()
	}
	return convs, nil
}

// ToggleConversationArchived flips memberID's archive flag on the conversation.
func (s *Store) ToggleConversationArchived(ctx context.Context, conversationID, memberID string) error {
	res := s.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND member_id = ?", conversationID, memberID).
		Update("archived", gorm.Expr("NOT archived"))
	if res.Error != nil {
		return fmt.Errorf("toggle conversation archive: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteConversation hides the conversation and every message currently
// in it from memberID. Repeating it changes nothing.
func (s *Store) SoftDeleteConversation(ctx context.Context, conversationID, memberID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND member_id = ?", conversationID, memberID).
			Update("deleted", true)
		if res.Error != nil {
			return fmt.Errorf("flag conversation deleted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		err := tx.Exec(
			`INSERT INTO message_deletions (message_id, member_id, created_at)
			 SELECT id, ?, ? FROM messages WHERE conversation_id = ?
			 ON CONFLICT DO NOTHING`,
			memberID, s.now(), conversationID,
		).Error
		if err != nil {
			return fmt.Errorf("flag messages deleted: %w", err)
		}
		return nil
	})
}
