package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/models"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/testutil"
	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Members(ctx context.Context, credential string) (identity.Members, error) {
	args := m.Called(ctx, credential)
	members, _ := args.Get(0).(identity.Members)
	return members, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type fixture struct {
	svc       *MessagingService
	store     *store.Store
	directory *mockDirectory
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(testutil.NewDB(t))
	dir := &mockDirectory{}
	pub := &mockPublisher{}
	pub.On("PublishMessage", mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewMessagingService(st, st, dir, pub)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return &fixture{svc: svc, store: st, directory: dir, publisher: pub}
}

func member(id, name string) *identity.Principal {
	return &identity.Principal{
		Participant: identity.User(id),
		DisplayName: name,
		Credential:  "token-" + id,
	}
}

func org(id, name string) *identity.Principal {
	return &identity.Principal{
		Participant: identity.Organization(id),
		DisplayName: name,
		Credential:  "token-" + id,
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	return apperrors.StatusCode(err)
}

func TestStartConversation_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")

	first, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	second, err := f.svc.StartConversation(ctx, alice, " bob ")
	require.NoError(t, err)
	fromBob, err := f.svc.StartConversation(ctx, bob, "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ID, fromBob.ID)
	assert.Equal(t, []string{"alice", "bob"}, second.Members)
	assert.Equal(t, []string{"alice", "bob"}, fromBob.Members)
}

func TestStartConversation_InvalidParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")

	for _, counterparty := range []string{"", "   ", "alice"} {
		_, err := f.svc.StartConversation(ctx, alice, counterparty)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err), "counterparty %q", counterparty)
	}
}

func TestStartConversation_UserAndOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartConversation(ctx, org("org-7", "Acme"), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"org-7", "alice"}, conv.Members)
}

func TestSendMessage_StoresBodyAsSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	bodies := []string{"I need one = 5 units", "Price for only=10 today", "<b>bold</b>\nnext line"}
	for _, body := range bodies {
		_, err := f.svc.SendMessage(ctx, alice, conv.ID, body)
		require.NoError(t, err)
	}

	history, err := f.svc.ListMessages(ctx, bob, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, len(bodies))
	for i, msg := range history {
		assert.Equal(t, bodies[i], msg.Body)
	}
}

func TestSendMessage_DerivesRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	fromAlice, err := f.svc.SendMessage(ctx, alice, conv.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "bob", fromAlice.Recipient)
	assert.Equal(t, "alice", fromAlice.SenderID)
	assert.Equal(t, "Alice", fromAlice.Sender)
	assert.Equal(t, "hello", fromAlice.Body)

	fromBob, err := f.svc.SendMessage(ctx, bob, conv.ID, "hi back")
	require.NoError(t, err)
	assert.Equal(t, "alice", fromBob.Recipient)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, fromBob.ID, *stored.LastMessageID)

	f.publisher.AssertNumberOfCalls(t, "PublishMessage", 2)
}

func TestSendMessage_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, alice, conv.ID, "   ")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.svc.SendMessage(ctx, alice, conv.ID, strings.Repeat("x", 8001))
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.svc.SendMessage(ctx, alice, "missing", "hello")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = f.svc.SendMessage(ctx, member("mallory", "Mallory"), conv.ID, "hello")
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	f.publisher.AssertNotCalled(t, "PublishMessage", mock.Anything, mock.Anything)
}

func TestSendMessage_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	pub := &mockPublisher{}
	pub.On("PublishMessage", mock.Anything, mock.Anything).Return(errors.New("relay down"))
	f.svc.SetPublisher(pub)

	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	pub.AssertExpectations(t)
}

func TestListMessages_Placeholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsPlaceholder)
	assert.Equal(t, models.PlaceholderBody, msgs[0].Body)
	assert.Empty(t, msgs[0].ID)

	_, err = f.svc.ListMessages(ctx, member("mallory", "Mallory"), conv.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, err = f.svc.ListMessages(ctx, alice, "missing")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestToggleArchive_RoleScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "hello")
	require.NoError(t, err)

	got, err := f.svc.ToggleArchive(ctx, alice, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchivedBySender)
	assert.False(t, got.IsArchivedByRecipient)

	got, err = f.svc.ToggleArchive(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchivedBySender)
	assert.True(t, got.IsArchivedByRecipient)

	_, err = f.svc.ToggleArchive(ctx, member("mallory", "Mallory"), msg.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	after, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, after.IsArchivedBySender)
	assert.True(t, after.IsArchivedByRecipient)

	_, err = f.svc.ToggleArchive(ctx, alice, "missing")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestToggleStarAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "hello")
	require.NoError(t, err)

	got, err := f.svc.ToggleStar(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStarredByRecipient)
	assert.False(t, got.IsStarredBySender)

	_, err = f.svc.ToggleRead(ctx, alice, msg.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err), "sender cannot toggle read")

	got, err = f.svc.ToggleRead(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReadByRecipient)
	assert.NotNil(t, got.ReadAt)
}

func TestSoftDeleteRevival(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	f.directory.On("Members", mock.Anything, mock.Anything).Return(identity.Members{}, nil)

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, bob, conv.ID, "first")
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDeleteConversation(ctx, alice, conv.ID))
	require.NoError(t, f.svc.SoftDeleteConversation(ctx, alice, conv.ID))

	list, err := f.svc.ListConversations(ctx, alice, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	msgs, err := f.svc.ListMessages(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsPlaceholder, "history hidden from alice")

	revived, err := f.svc.SendMessage(ctx, bob, conv.ID, "are you there?")
	require.NoError(t, err)

	list, err = f.svc.ListConversations(ctx, alice, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)

	msgs, err = f.svc.ListMessages(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, revived.ID, msgs[0].ID)

	msgs, err = f.svc.ListMessages(ctx, bob, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "bob still sees everything")

	err = f.svc.SoftDeleteConversation(ctx, member("mallory", "Mallory"), conv.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
}

func TestListConversations_UnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	f.directory.On("Members", mock.Anything, "token-bob").Return(identity.Members{
		"alice": {ID: "alice", Kind: identity.KindUser, Name: "Alice A.", ProfilePhotoPath: "/a.png"},
		"bob":   {ID: "bob", Kind: identity.KindUser, Name: "Bob B."},
	}, nil)

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	var sent []*models.Message
	for _, body := range []string{"one", "two", "three"} {
		msg, err := f.svc.SendMessage(ctx, alice, conv.ID, body)
		require.NoError(t, err)
		sent = append(sent, msg)
	}
	_, err = f.svc.ToggleRead(ctx, bob, sent[0].ID)
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, bob, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	summary := list[0]
	assert.EqualValues(t, 2, summary.UnreadCount)
	assert.Equal(t, "Alice A.", summary.Counterpart.Name)
	require.Len(t, summary.Members, 2)
	assert.Equal(t, "alice", summary.Members[0].ID)
	assert.Equal(t, "bob", summary.Members[1].ID, "self listed last")
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, "three", summary.LastMessage.Body)
	assert.False(t, summary.IsArchived)

	n, err := f.svc.MarkRead(ctx, bob, []string{sent[1].ID, sent[2].ID}, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err = f.svc.ListConversations(ctx, bob, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, list[0].UnreadCount)
}

func TestListConversations_DirectoryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	f.directory.On("Members", mock.Anything, mock.Anything).Return(nil, errors.New("directory down"))

	_, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx, alice, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, identity.UnknownName, list[0].Counterpart.Name)
	assert.Nil(t, list[0].LastMessage)
}

func TestConversationArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	f.directory.On("Members", mock.Anything, mock.Anything).Return(identity.Members{}, nil)

	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	updated, err := f.svc.ToggleConversationArchive(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, updated.ArchivedFor)

	active, err := f.svc.ListConversations(ctx, alice, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := f.svc.ListConversations(ctx, alice, true)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.True(t, archived[0].IsArchived)

	_, err = f.svc.ToggleConversationArchive(ctx, member("mallory", "Mallory"), conv.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
}

func TestMarkRead_OnlyAddressedToActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)

	toBob, err := f.svc.SendMessage(ctx, alice, conv.ID, "for bob")
	require.NoError(t, err)
	toAlice, err := f.svc.SendMessage(ctx, bob, conv.ID, "for alice")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, bob, []string{toBob.ID, toAlice.ID, "missing"}, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	untouched, err := f.store.GetMessage(ctx, toAlice.ID)
	require.NoError(t, err)
	assert.False(t, untouched.IsReadByRecipient)

	_, err = f.svc.MarkRead(ctx, bob, []string{" "}, true)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestTagMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "quote attached")
	require.NoError(t, err)

	tags := []string{" quote ", "quote", "", "follow-up"}
	got, err := f.svc.TagMessage(ctx, bob, msg.ID, &tags, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"quote", "follow-up"}, []string(got.TagsByRecipient))
	assert.Empty(t, got.TagsBySender)

	category := "  sales "
	got, err = f.svc.TagMessage(ctx, alice, msg.ID, nil, &category)
	require.NoError(t, err)
	assert.Equal(t, "sales", got.CategoryBySender)
	assert.Equal(t, []string{"quote", "follow-up"}, []string(got.TagsByRecipient))

	_, err = f.svc.TagMessage(ctx, alice, msg.ID, nil, nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.svc.TagMessage(ctx, member("mallory", "Mallory"), msg.ID, &tags, nil)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := member("alice", "Alice"), member("bob", "Bob")
	conv, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "oops")
	require.NoError(t, err)

	err = f.svc.DeleteMessage(ctx, member("mallory", "Mallory"), msg.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	_, err = f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err, "non-participant must not delete")

	require.NoError(t, f.svc.DeleteMessage(ctx, bob, msg.ID))

	err = f.svc.DeleteMessage(ctx, alice, msg.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestUnreadTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := member("alice", "Alice")
	ab, err := f.svc.StartConversation(ctx, alice, "bob")
	require.NoError(t, err)
	ac, err := f.svc.StartConversation(ctx, alice, "carol")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, member("bob", "Bob"), ab.ID, "1")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, member("carol", "Carol"), ac.ID, "2")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, alice, ac.ID, "3")
	require.NoError(t, err)

	total, err := f.svc.UnreadTotal(ctx, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestMemberCards_SelfLast(t *testing.T) {
	members := identity.Members{"a": {ID: "a", Name: "A"}}
	cards := memberCards([]string{"me", "a"}, "me", members)
	require.Len(t, cards, 2)
	assert.Equal(t, "A", cards[0].Name)
	assert.Equal(t, "me", cards[1].ID)
	assert.Equal(t, identity.UnknownName, cards[1].Name)
}
