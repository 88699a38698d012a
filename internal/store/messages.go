package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Flag names a per-role boolean on a message.
type Flag string

const (
	FlagRead     Flag = "read"
	FlagArchived Flag = "archived"
	FlagStarred  Flag = "starred"
)

// flagColumn maps a flag and the actor's role to its column. Only the
// recipient has a read flag.
func flagColumn(flag Flag, role models.Role) (string, error) {
	switch {
	case flag == FlagRead && role == models.RoleRecipient:
		return "is_read_by_recipient", nil
	case flag == FlagArchived && role == models.RoleSender:
		return "is_archived_by_sender", nil
	case flag == FlagArchived && role == models.RoleRecipient:
		return "is_archived_by_recipient", nil
	case flag == FlagStarred && role == models.RoleSender:
		return "is_starred_by_sender", nil
	case flag == FlagStarred && role == models.RoleRecipient:
		return "is_starred_by_recipient", nil
	}
	return "", fmt.Errorf("no %s flag for role %s", flag, role)
}

// AppendMessage stores msg and, in the same transaction, makes the
// conversation visible to the recipient again and records msg as the latest.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.UpdatedAt = msg.CreatedAt

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND member_id = ?", msg.ConversationID, msg.Recipient).
			Update("deleted", false).Error
		if err != nil {
			return fmt.Errorf("restore recipient: %w", err)
		}

		res := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_id": msg.ID,
				"updated_at":      msg.CreatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("bump conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

// ListMessages returns the conversation's messages that viewerID has not
// deleted, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID, viewerID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Where(notDeletedFor, viewerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// MessagesByID loads the given messages keyed by id. Missing ids are absent
// from the result.
func (s *Store) MessagesByID(ctx context.Context, ids []string) (map[string]models.Message, error) {
	out := make(map[string]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

// ToggleFlag flips one per-role flag with a single UPDATE and returns the
// message as stored afterwards.
func (s *Store) ToggleFlag(ctx context.Context, id string, flag Flag, role models.Role) (*models.Message, error) {
	col, err := flagColumn(flag, role)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{
		col:          gorm.Expr("NOT " + col),
		"updated_at": now,
	}
	if flag == FlagRead {
		// Right-hand sides see the pre-update row.
		updates["read_at"] = gorm.Expr("CASE WHEN is_read_by_recipient THEN NULL ELSE ? END", now)
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("toggle %s: %w", flag, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

// SetLabels replaces the tags and/or category of one role. Nil arguments are
// left untouched.
func (s *Store) SetLabels(ctx context.Context, id string, role models.Role, tags *[]string, category *string) (*models.Message, error) {
	updates := map[string]interface{}{"updated_at": s.now()}
	if tags != nil {
		updates["tags_by_"+string(role)] = pq.StringArray(*tags)
	}
	if category != nil {
		updates["category_by_"+string(role)] = *category
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("set labels: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

// MarkRead sets the read state of every listed message addressed to
// recipient. Messages already in that state are not touched, so the result
// counts actual changes.
func (s *Store) MarkRead(ctx context.Context, recipient string, ids []string, read bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var readAt *time.Time
	now := s.now()
	if read {
		readAt = &now
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id IN ? AND recipient = ? AND is_read_by_recipient <> ?", ids, recipient, read).
		Updates(map[string]interface{}{
			"is_read_by_recipient": read,
			"read_at":              readAt,
			"updated_at":           now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mark read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteMessage removes the message and its deletion markers. A conversation
// pointing at it falls back to its newest remaining message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageDeletion{}).Error; err != nil {
			return fmt.Errorf("delete markers: %w", err)
		}

		res := tx.Where("id = ?", id).Delete(&models.Message{})
		if res.Error != nil {
			return fmt.Errorf("delete message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		err := tx.Exec(
			`UPDATE conversations SET last_message_id = (
				SELECT m.id FROM messages m
				WHERE m.conversation_id = conversations.id
				ORDER BY m.created_at DESC LIMIT 1
			) WHERE last_message_id = ?`, id,
		).Error
		if err != nil {
			return fmt.Errorf("repoint last message: %w", err)
		}
		return nil
	})
}

// notDeletedFor hides messages the bound member soft deleted.
const notDeletedFor = "NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = messages.id AND d.member_id = ?)"

type unreadRow struct {
	ConversationID string
	Count          int64
}

// UnreadCounts counts unread messages addressed to recipient that they have
// not deleted, per conversation, in one grouped query. It agrees with
// UnreadTotal.
func (s *Store) UnreadCounts(ctx context.Context, recipient string, conversationIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var rows []unreadRow
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("recipient = ? AND is_read_by_recipient = ? AND conversation_id IN ?", recipient, false, conversationIDs).
		Where(notDeletedFor, recipient).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	for _, r := range rows {
		out[r.ConversationID] = r.Count
	}
	return out, nil
}

// UnreadTotal counts every unread message addressed to recipient that they
// have not deleted.
func (s *Store) UnreadTotal(ctx context.Context, recipient string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient = ? AND is_read_by_recipient = ?", recipient, false).
		Where(notDeletedFor, recipient).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return total, nil
}
