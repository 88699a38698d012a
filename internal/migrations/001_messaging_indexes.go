package migrations

import (
	"gorm.io/gorm"
)

// Migration001MessagingIndexes adds the composite indexes behind the hot
// message queries:
//  1. conversation history ordered by time
//  2. unread counters per recipient
//  3. sender/recipient pair lookups
//
// Plain CREATE INDEX IF NOT EXISTS because the migrator wraps Up in a
// transaction, which rules out CONCURRENTLY on PostgreSQL.
func Migration001MessagingIndexes() Migration {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient_read ON messages (recipient, is_read_by_recipient)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender_recipient ON messages (sender_id, recipient)`,
	}

	return Migration{
		ID:   "001_messaging_indexes",
		Name: "Add message query indexes",
		Up: func(db *gorm.DB) error {
			for _, stmt := range statements {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(db *gorm.DB) error {
			for _, idx := range []string{"idx_messages_sender_recipient", "idx_messages_recipient_read", "idx_messages_conversation_created"} {
				if err := db.Exec(`DROP INDEX IF EXISTS ` + idx).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Migration002MemberListingIndex covers the conversation listing filter
// (member, not deleted, archive state).
func Migration002MemberListingIndex() Migration {
	return Migration{
		ID:        "002_member_listing_index",
		Name:      "Add conversation member listing index",
		DependsOn: []string{"001_messaging_indexes"},
		Up: func(db *gorm.DB) error {
			return db.Exec(`CREATE INDEX IF NOT EXISTS idx_conversation_members_listing ON conversation_members (member_id, deleted, archived)`).Error
		},
		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP INDEX IF EXISTS idx_conversation_members_listing`).Error
		},
	}
}
