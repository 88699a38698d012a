package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a two-party thread. Membership and the per-member
// soft-delete and archive flags live in conversation_members.
type Conversation struct {
	ID string `gorm:"primaryKey;type:text" json:"id"`

	// PairKey is the sorted member ids joined with "|". The unique index turns
	// find-or-create into a single atomic insert.
	PairKey string `gorm:"type:text;uniqueIndex;not null" json:"-"`

	LastMessageID *string   `gorm:"type:text" json:"lastMessageId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `gorm:"index" json:"updatedAt"`

	Participants []ConversationMember `gorm:"foreignKey:ConversationID" json:"-"`

	// Derived from Participants by Hydrate.
	Members     []string `gorm:"-" json:"members"`
	DeletedFor  []string `gorm:"-" json:"deletedFor"`
	ArchivedFor []string `gorm:"-" json:"archivedFor"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// Hydrate fills the derived member views from the loaded participant rows.
func (c *Conversation) Hydrate() {
	sort.SliceStable(c.Participants, func(i, j int) bool {
		return c.Participants[i].Position < c.Participants[j].Position
	})
	c.Members = make([]string, 0, len(c.Participants))
	c.DeletedFor = []string{}
	c.ArchivedFor = []string{}
	for _, p := range c.Participants {
		c.Members = append(c.Members, p.MemberID)
		if p.Deleted {
			c.DeletedFor = append(c.DeletedFor, p.MemberID)
		}
		if p.Archived {
			c.ArchivedFor = append(c.ArchivedFor, p.MemberID)
		}
	}
}

// HasMember reports whether id is one of the conversation members.
func (c *Conversation) HasMember(id string) bool {
	for _, p := range c.Participants {
		if p.MemberID == id {
			return true
		}
	}
	return false
}

// Other returns the first member that is not id.
func (c *Conversation) Other(id string) (string, bool) {
	for _, p := range c.Participants {
		if p.MemberID != id {
			return p.MemberID, true
		}
	}
	return "", false
}

// Member returns the participant row for id.
func (c *Conversation) Member(id string) (*ConversationMember, bool) {
	for i := range c.Participants {
		if c.Participants[i].MemberID == id {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// ConversationMember is one member of a conversation together with the flags
// that only affect that member's view.
type ConversationMember struct {
	ConversationID string    `gorm:"primaryKey;type:text" json:"conversationId"`
	MemberID       string    `gorm:"primaryKey;type:text" json:"memberId"`
	Position       int       `gorm:"not null;default:0" json:"position"`
	Deleted        bool      `gorm:"not null;default:false" json:"deleted"`
	Archived       bool      `gorm:"not null;default:false" json:"archived"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// PairKey builds the canonical key for a set of member ids.
func PairKey(ids ...string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
