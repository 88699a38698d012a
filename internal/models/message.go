package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// PlaceholderBody is the text of the synthetic entry returned for a
// conversation without visible messages.
const PlaceholderBody = "Start a chat"

// Message is a single message inside a conversation. Every mutable flag
// exists once per role so sender and recipient never overwrite each other.
type Message struct {
	ID             string `gorm:"primaryKey;type:text" json:"id"`
	ConversationID string `gorm:"type:text;not null;index" json:"conversationId"`

	// SenderID and Recipient are messaging identifiers; Sender is the display
	// name captured at send time.
	SenderID  string `gorm:"type:text;not null" json:"senderId"`
	Sender    string `gorm:"type:text;not null" json:"sender"`
	Recipient string `gorm:"type:text;not null" json:"recipient"`
	Body      string `gorm:"type:text;not null" json:"body"`

	IsReadByRecipient bool       `gorm:"not null;default:false" json:"isReadByRecipient"`
	ReadAt            *time.Time `json:"readAt"`

	IsArchivedBySender    bool `gorm:"not null;default:false" json:"isArchivedBySender"`
	IsArchivedByRecipient bool `gorm:"not null;default:false" json:"isArchivedByRecipient"`
	IsStarredBySender     bool `gorm:"not null;default:false" json:"isStarredBySender"`
	IsStarredByRecipient  bool `gorm:"not null;default:false" json:"isStarredByRecipient"`

	TagsBySender        pq.StringArray `gorm:"type:text[]" json:"tagsBySender"`
	TagsByRecipient     pq.StringArray `gorm:"type:text[]" json:"tagsByRecipient"`
	CategoryBySender    string         `gorm:"type:text;not null;default:''" json:"categoryBySender"`
	CategoryByRecipient string         `gorm:"type:text;not null;default:''" json:"categoryByRecipient"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	IsPlaceholder bool `gorm:"-" json:"isPlaceholder,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.TagsBySender == nil {
		m.TagsBySender = pq.StringArray{}
	}
	if m.TagsByRecipient == nil {
		m.TagsByRecipient = pq.StringArray{}
	}
	return
}

// Placeholder returns the unsaved entry shown for an empty conversation.
func Placeholder(conversationID string) Message {
	return Message{
		ConversationID:  conversationID,
		Body:            PlaceholderBody,
		TagsBySender:    pq.StringArray{},
		TagsByRecipient: pq.StringArray{},
		CreatedAt:       time.Now(),
		IsPlaceholder:   true,
	}
}

// MessageDeletion hides one message from one member. The composite key makes
// repeated soft deletes a no-op.
type MessageDeletion struct {
	MessageID string    `gorm:"primaryKey;type:text" json:"messageId"`
	MemberID  string    `gorm:"primaryKey;type:text;index" json:"memberId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role is the side of a message a member is on.
type Role string

const (
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
)

// RoleOf reports whether memberID sent or received the message.
func (m *Message) RoleOf(memberID string) (Role, bool) {
	switch memberID {
	case "":
		return "", false
	case m.SenderID:
		return RoleSender, true
	case m.Recipient:
		return RoleRecipient, true
	}
	return "", false
}
