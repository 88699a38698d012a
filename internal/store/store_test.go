package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore returns a store whose clock advances one second per call so
// message order never depends on timer resolution.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(testutil.NewDB(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func send(t *testing.T, s *Store, conv *models.Conversation, from, body string) *models.Message {
	t.Helper()
	to, ok := conv.Other(from)
	require.True(t, ok)
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       from,
		Sender:         from,
		Recipient:      to,
		Body:           body,
	}
	require.NoError(t, s.AppendMessage(context.Background(), msg))
	return msg
}

func TestFindOrCreateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, created, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"alice", "bob"}, conv.Members)
	assert.Empty(t, conv.DeletedFor)
	assert.Empty(t, conv.ArchivedFor)

	// Reverse order resolves to the same conversation and keeps the
	// original member order.
	again, created, err := s.FindOrCreateConversation(ctx, []string{"bob", "alice"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, []string{"alice", "bob"}, again.Members)

	_, _, err = s.FindOrCreateConversation(ctx, []string{"alice"})
	assert.Error(t, err)
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage_UpdatesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteConversation(ctx, conv.ID, "bob"))
	msg := send(t, s, conv, "alice", "hello")

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, msg.ID, *got.LastMessageID)
	assert.True(t, got.UpdatedAt.Equal(msg.CreatedAt))
	assert.Empty(t, got.DeletedFor, "recipient should see the conversation again")

	stored, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.TagsBySender)
	assert.False(t, stored.IsReadByRecipient)
}

func TestListMessages_OrderAndSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	m1 := send(t, s, conv, "alice", "one")
	m2 := send(t, s, conv, "bob", "two")
	m3 := send(t, s, conv, "alice", "three")

	msgs, err := s.ListMessages(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	require.NoError(t, s.SoftDeleteConversation(ctx, conv.ID, "bob"))
	require.NoError(t, s.SoftDeleteConversation(ctx, conv.ID, "bob"), "repeat is a no-op")

	msgs, err = s.ListMessages(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.ListMessages(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	m4 := send(t, s, conv, "alice", "four")
	msgs, err = s.ListMessages(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m4.ID, msgs[0].ID)

	var markers int64
	require.NoError(t, s.DB().Model(&models.MessageDeletion{}).Where("member_id = ?", "bob").Count(&markers).Error)
	assert.EqualValues(t, 3, markers)
}

func TestSoftDeleteConversation_NotMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SoftDeleteConversation(ctx, conv.ID, "mallory"), ErrNotFound)
}

func TestListConversations_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ab, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	ac, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "carol"})
	require.NoError(t, err)
	ad, _, err := s.FindOrCreateConversation(ctx, []string{"dave", "alice"})
	require.NoError(t, err)

	send(t, s, ab, "alice", "to bob")
	send(t, s, ad, "dave", "to alice")
	send(t, s, ac, "carol", "to alice")

	convs, err := s.ListConversations(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, ac.ID, convs[0].ID)
	assert.Equal(t, ad.ID, convs[1].ID)
	assert.Equal(t, ab.ID, convs[2].ID)

	require.NoError(t, s.ToggleConversationArchived(ctx, ad.ID, "alice"))
	require.NoError(t, s.SoftDeleteConversation(ctx, ab.ID, "alice"))

	convs, err = s.ListConversations(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, ac.ID, convs[0].ID)

	archived, err := s.ListConversations(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, ad.ID, archived[0].ID)
	assert.Equal(t, []string{"alice"}, archived[0].ArchivedFor)

	// Archive state is per member.
	convs, err = s.ListConversations(ctx, "dave", false)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	assert.ErrorIs(t, s.ToggleConversationArchived(ctx, ad.ID, "mallory"), ErrNotFound)
}

func TestToggleFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	msg := send(t, s, conv, "alice", "hi")

	got, err := s.ToggleFlag(ctx, msg.ID, FlagRead, models.RoleRecipient)
	require.NoError(t, err)
	assert.True(t, got.IsReadByRecipient)
	assert.NotNil(t, got.ReadAt)

	got, err = s.ToggleFlag(ctx, msg.ID, FlagRead, models.RoleRecipient)
	require.NoError(t, err)
	assert.False(t, got.IsReadByRecipient)
	assert.Nil(t, got.ReadAt)

	got, err = s.ToggleFlag(ctx, msg.ID, FlagStarred, models.RoleSender)
	require.NoError(t, err)
	assert.True(t, got.IsStarredBySender)
	assert.False(t, got.IsStarredByRecipient)

	got, err = s.ToggleFlag(ctx, msg.ID, FlagArchived, models.RoleRecipient)
	require.NoError(t, err)
	assert.True(t, got.IsArchivedByRecipient)
	assert.False(t, got.IsArchivedBySender)

	_, err = s.ToggleFlag(ctx, msg.ID, FlagRead, models.RoleSender)
	assert.Error(t, err)

	_, err = s.ToggleFlag(ctx, "missing", FlagStarred, models.RoleSender)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleFlag_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	msg := send(t, s, conv, "alice", "hi")

	// An even number of flips always lands back on the start value.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ToggleFlag(ctx, msg.ID, FlagStarred, models.RoleRecipient)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, got.IsStarredByRecipient)
}

func TestSetLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	msg := send(t, s, conv, "alice", "hi")

	tags := []string{"urgent", "deal"}
	got, err := s.SetLabels(ctx, msg.ID, models.RoleRecipient, &tags, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "deal"}, []string(got.TagsByRecipient))
	assert.Empty(t, got.TagsBySender)

	category := "leads"
	got, err = s.SetLabels(ctx, msg.ID, models.RoleRecipient, nil, &category)
	require.NoError(t, err)
	assert.Equal(t, "leads", got.CategoryByRecipient)
	assert.Equal(t, []string{"urgent", "deal"}, []string(got.TagsByRecipient), "tags untouched")
	assert.Equal(t, "", got.CategoryBySender)
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	toBob1 := send(t, s, conv, "alice", "one")
	toBob2 := send(t, s, conv, "alice", "two")
	toAlice := send(t, s, conv, "bob", "three")

	ids := []string{toBob1.ID, toBob2.ID, toAlice.ID}
	n, err := s.MarkRead(ctx, "bob", ids, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.MarkRead(ctx, "bob", ids, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "already read")

	other, err := s.GetMessage(ctx, toAlice.ID)
	require.NoError(t, err)
	assert.False(t, other.IsReadByRecipient)

	n, err = s.MarkRead(ctx, "bob", []string{toBob1.ID}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUnreadCountsAndTotal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ab, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	ac, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "carol"})
	require.NoError(t, err)

	send(t, s, ab, "bob", "1")
	read := send(t, s, ab, "bob", "2")
	send(t, s, ab, "alice", "3")
	send(t, s, ac, "carol", "4")
	_, err = s.ToggleFlag(ctx, read.ID, FlagRead, models.RoleRecipient)
	require.NoError(t, err)

	counts, err := s.UnreadCounts(ctx, "alice", []string{ab.ID, ac.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[ab.ID])
	assert.EqualValues(t, 1, counts[ac.ID])

	total, err := s.UnreadTotal(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	require.NoError(t, s.SoftDeleteConversation(ctx, ac.ID, "alice"))
	total, err = s.UnreadTotal(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	counts, err = s.UnreadCounts(ctx, "alice", []string{ab.ID, ac.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts[ac.ID])
}

func TestUnreadCountersAgreeAfterRevival(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)

	send(t, s, conv, "alice", "one")
	send(t, s, conv, "alice", "two")
	require.NoError(t, s.SoftDeleteConversation(ctx, conv.ID, "bob"))
	send(t, s, conv, "alice", "three")

	counts, err := s.UnreadCounts(ctx, "bob", []string{conv.ID})
	require.NoError(t, err)
	total, err := s.UnreadTotal(ctx, "bob")
	require.NoError(t, err)
	visible, err := s.ListMessages(ctx, conv.ID, "bob")
	require.NoError(t, err)

	assert.EqualValues(t, 1, counts[conv.ID])
	assert.EqualValues(t, 1, total)
	assert.Len(t, visible, 1)
	assert.Equal(t, "three", visible[0].Body)
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	first := send(t, s, conv, "alice", "one")
	last := send(t, s, conv, "bob", "two")
	require.NoError(t, s.SoftDeleteConversation(ctx, conv.ID, "alice"))

	require.NoError(t, s.DeleteMessage(ctx, last.ID))

	_, err = s.GetMessage(ctx, last.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, first.ID, *got.LastMessageID)

	var markers int64
	require.NoError(t, s.DB().Model(&models.MessageDeletion{}).Where("message_id = ?", last.ID).Count(&markers).Error)
	assert.Zero(t, markers)

	assert.ErrorIs(t, s.DeleteMessage(ctx, last.ID), ErrNotFound)
}

func TestMessagesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _, err := s.FindOrCreateConversation(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	msg := send(t, s, conv, "alice", "hi")

	got, err := s.MessagesByID(ctx, []string{msg.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "hi", got[msg.ID].Body)

	empty, err := s.MessagesByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
