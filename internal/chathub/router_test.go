package chathub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mullmine/backend/internal/account"
	"mullmine/backend/internal/conversation"
	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

type publishRecord struct {
	channel string
	event   models.Event
}

type fakePublisher struct {
	records []publishRecord
}

func (p *fakePublisher) PublishToUser(ctx context.Context, userID string, evt models.Event) error {
	p.records = append(p.records, publishRecord{channel: storage.UserChannel(userID), event: evt})
	return nil
}

func (p *fakePublisher) PublishToRoom(ctx context.Context, roomID string, evt models.Event) error {
	p.records = append(p.records, publishRecord{channel: storage.RoomChannel(roomID), event: evt})
	return nil
}

func (p *fakePublisher) channels() []string {
	out := make([]string, len(p.records))
	for i, r := range p.records {
		out[i] = r.channel
	}
	return out
}

// convStore is the minimal ledger backing for router fan-out tests.
type convStore struct {
	users   map[string]*models.User
	members []models.MemberBlocks
	unread  map[string]bool
}

func (s *convStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (s *convStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	for _, m := range s.members {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *convStore) CreateMessage(ctx context.Context, roomID, creatorID, content string) (*models.Message, error) {
	return &models.Message{ID: "m1", RoomID: roomID, CreatorID: creatorID, Content: content, CreatedAt: time.Now()}, nil
}

func (s *convStore) MembersWithBlocks(ctx context.Context, roomID string) ([]models.MemberBlocks, error) {
	return s.members, nil
}

func (s *convStore) SetConversationLatest(ctx context.Context, roomID, participantID, messageID string, read bool) error {
	return nil
}

func (s *convStore) MarkConversationRead(ctx context.Context, roomID, userID string) (bool, error) {
	if !s.unread[userID] {
		return false, nil
	}
	s.unread[userID] = false
	return true, nil
}

func (s *convStore) ConversationsOf(ctx context.Context, userID string) ([]models.ConversationView, error) {
	return nil, nil
}

func (s *convStore) MessagesBefore(ctx context.Context, roomID, beforeID string, excludeCreators []string, limit int) ([]models.MessageView, error) {
	return nil, nil
}

func (s *convStore) MessagesSince(ctx context.Context, roomID string, since time.Time, excludeCreators []string) ([]models.MessageView, error) {
	return nil, nil
}

func (s *convStore) BlockedIDs(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

// accountStore is a stub whose rename always collides.
type accountStore struct{}

func (accountStore) GetOrCreateUser(ctx context.Context, username string, verified bool) (*models.User, error) {
	return nil, nil
}

func (accountStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, storage.ErrUserNotFound
}

func (accountStore) UpdateDisplayName(ctx context.Context, userID, name string) error {
	return storage.ErrNameTaken
}

func (accountStore) SetOnline(ctx context.Context, userID string, online bool) error { return nil }
func (accountStore) AgreeTerms(ctx context.Context, userID string) error             { return nil }

func (accountStore) AddTopic(ctx context.Context, userID, name string) (bool, error) {
	return false, nil
}

func (accountStore) RemoveTopic(ctx context.Context, userID, name string) (bool, error) {
	return false, nil
}

func (accountStore) TopicsOf(ctx context.Context, userID string) ([]string, error) { return nil, nil }

func (accountStore) BlockUser(ctx context.Context, userID, targetID string) error { return nil }

func (accountStore) RoomIDsOf(ctx context.Context, userID string) ([]string, error) { return nil, nil }

func (accountStore) MemberIDs(ctx context.Context, roomID string) ([]string, error) { return nil, nil }

func (accountStore) ParticipantsOfLatestBy(ctx context.Context, creatorID string) ([]string, error) {
	return nil, nil
}

func (accountStore) DeleteUser(ctx context.Context, userID string) error { return nil }

func ledgerRouter(store *convStore, publisher Publisher) *Router {
	ledger := conversation.NewService(store, testLog(), 10)
	return NewRouter(nil, nil, nil, nil, nil, ledger, nil, publisher, testLog())
}

func TestHandleSendMessage_PerViewerDeliveryAndBlockerSkip(t *testing.T) {
	store := &convStore{
		users: map[string]*models.User{
			"alice": {ID: "alice", DisplayName: "Alice", IsVerified: true},
		},
		members: []models.MemberBlocks{
			{UserID: "alice"},
			{UserID: "bob"},
			{UserID: "carol", BlockedIDs: []string{"alice"}},
		},
	}
	publisher := &fakePublisher{}
	router := ledgerRouter(store, publisher)
	client := newFakeClient("alice", 4)

	router.Handle(client, models.Command{Action: models.ActionSendMessage, RoomID: "r1", Content: "hello"})

	channels := publisher.channels()
	require.Len(t, channels, 4)
	// Message delivery is per viewer, so a member who blocked the
	// creator never receives the live event, then the inbox signals
	// follow for the same set.
	assert.ElementsMatch(t, []string{"user:alice", "user:bob"}, channels[:2])
	assert.ElementsMatch(t, []string{"user:alice", "user:bob"}, channels[2:])
	assert.NotContains(t, channels, "user:carol")

	assert.Equal(t, models.EventNewMessage, publisher.records[0].event.Type)
	assert.Equal(t, models.EventNewMessage, publisher.records[1].event.Type)
	require.NotNil(t, publisher.records[0].event.Message)
	assert.Equal(t, "Alice", publisher.records[0].event.Message.CreatorName)
	assert.Equal(t, models.EventConversationsChanged, publisher.records[2].event.Type)
	assert.Equal(t, models.EventConversationsChanged, publisher.records[3].event.Type)
}

func TestHandleSendMessage_BlankContentPublishesNothing(t *testing.T) {
	store := &convStore{users: map[string]*models.User{}}
	publisher := &fakePublisher{}
	router := ledgerRouter(store, publisher)
	client := newFakeClient("alice", 4)

	router.Handle(client, models.Command{Action: models.ActionSendMessage, RoomID: "r1", Content: "  "})

	assert.Empty(t, publisher.records)
}

func TestHandleMarkRead_SignalsOnlyOnChange(t *testing.T) {
	store := &convStore{unread: map[string]bool{"alice": true}}
	publisher := &fakePublisher{}
	router := ledgerRouter(store, publisher)
	client := newFakeClient("alice", 4)

	router.Handle(client, models.Command{Action: models.ActionMarkRead, RoomID: "r1"})
	require.Len(t, publisher.records, 1)
	assert.Equal(t, "user:alice", publisher.records[0].channel)
	assert.Equal(t, models.EventConversationsChanged, publisher.records[0].event.Type)

	// Already read: no signal.
	router.Handle(client, models.Command{Action: models.ActionMarkRead, RoomID: "r1"})
	assert.Len(t, publisher.records, 1)
}

func TestHandleUpdateDisplayName_CollisionRejectedDirectly(t *testing.T) {
	accounts := account.NewService(accountStore{}, nil, testLog())
	publisher := &fakePublisher{}
	router := NewRouter(nil, nil, accounts, nil, nil, nil, nil, publisher, testLog())
	client := newFakeClient("alice", 4)

	router.Handle(client, models.Command{Action: models.ActionUpdateName, Name: "taken"})

	require.Len(t, client.send, 1)
	evt := <-client.send
	assert.Equal(t, models.EventNameRejected, evt.Type)
	assert.Equal(t, "taken", evt.Name)
	assert.Empty(t, publisher.records)
}

func TestHandleAfterClose_DropsReplyWithoutPanic(t *testing.T) {
	accounts := account.NewService(accountStore{}, nil, testLog())
	publisher := &fakePublisher{}
	router := NewRouter(nil, nil, accounts, nil, nil, nil, nil, publisher, testLog())
	client := newFakeClient("alice", 4)

	// Commands run on their own goroutines, so a rename reply can race
	// the connection teardown. The closed client must swallow it.
	client.Close()
	router.Handle(client, models.Command{Action: models.ActionUpdateName, Name: "taken"})

	assert.Empty(t, client.send)
	assert.Empty(t, publisher.records)
}

func TestHandleUnknownActionIsIgnored(t *testing.T) {
	publisher := &fakePublisher{}
	router := NewRouter(nil, nil, nil, nil, nil, nil, nil, publisher, testLog())
	client := newFakeClient("alice", 4)

	router.Handle(client, models.Command{Action: "no_such_action"})

	assert.Empty(t, publisher.records)
	assert.Empty(t, client.send)
}
