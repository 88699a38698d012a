// Package seeds fills a development database with sample conversations.
package seeds

import (
	"context"
	"fmt"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
)

// Line is one seeded message; From must be a member of the thread.
type Line struct {
	From string
	Body string
}

// Thread is a seeded two-party conversation.
type Thread struct {
	Members [2]string
	Lines   []Line
}

// DemoThreads returns a small inbox around the platform's system member:
// a buyer asking a business about a listing and a support exchange.
func DemoThreads(systemID string) []Thread {
	return []Thread{
		{
			Members: [2]string{"demo_user_msg_id", "demo_org_msg_id"},
			Lines: []Line{
				{From: "demo_user_msg_id", Body: "Hi, is the listing still available?"},
				{From: "demo_org_msg_id", Body: "Yes it is. Would you like to book a viewing?"},
				{From: "demo_user_msg_id", Body: "Saturday morning works for me."},
			},
		},
		{
			Members: [2]string{systemID, "demo_user_msg_id"},
			Lines: []Line{
				{From: systemID, Body: "Welcome! Reply here if you need any help."},
			},
		},
	}
}

// SeedConversations creates each thread once. Threads that already hold
// messages are skipped so the seeder can run repeatedly.
func SeedConversations(ctx context.Context, st *store.Store, threads []Thread) error {
	for _, th := range threads {
		conv, created, err := st.FindOrCreateConversation(ctx, th.Members[:])
		if err != nil {
			return fmt.Errorf("seed conversation %v: %w", th.Members, err)
		}
		if !created && conv.LastMessageID != nil {
			logger.Info().Str("conversation_id", conv.ID).Msg("Conversation already seeded")
			continue
		}

		for _, line := range th.Lines {
			to, ok := conv.Other(line.From)
			if !ok {
				return fmt.Errorf("seed line from %q: not a member of %s", line.From, conv.ID)
			}
			msg := &models.Message{
				ConversationID: conv.ID,
				SenderID:       line.From,
				Sender:         line.From,
				Recipient:      to,
				Body:           line.Body,
			}
			if err := st.AppendMessage(ctx, msg); err != nil {
				return fmt.Errorf("seed message: %w", err)
			}
		}
		logger.Info().Str("conversation_id", conv.ID).Int("messages", len(th.Lines)).Msg("Conversation seeded")
	}
	return nil
}
