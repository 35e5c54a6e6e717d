package account

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

type fakeStore struct {
	users        map[string]*models.User
	names        map[string]string
	online       map[string]bool
	topics       map[string][]string
	blocks       map[string][]string
	roomsOf      map[string][]string
	members      map[string][]string
	participants []string
	deleted      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*models.User),
		names:   make(map[string]string),
		online:  make(map[string]bool),
		topics:  make(map[string][]string),
		blocks:  make(map[string][]string),
		roomsOf: make(map[string][]string),
		members: make(map[string][]string),
	}
}

func (f *fakeStore) GetOrCreateUser(ctx context.Context, username string, verified bool) (*models.User, error) {
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	user := &models.User{ID: username, Username: username, IsVerified: verified}
	f.users[username] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) UpdateDisplayName(ctx context.Context, userID, name string) error {
	for owner, taken := range f.names {
		if taken == name && owner != userID {
			return storage.ErrNameTaken
		}
	}
	f.names[userID] = name
	return nil
}

func (f *fakeStore) SetOnline(ctx context.Context, userID string, online bool) error {
	f.online[userID] = online
	return nil
}

func (f *fakeStore) AgreeTerms(ctx context.Context, userID string) error {
	if user, ok := f.users[userID]; ok {
		user.AgreedTerms = true
	}
	return nil
}

func (f *fakeStore) AddTopic(ctx context.Context, userID, name string) (bool, error) {
	for _, existing := range f.topics[userID] {
		if existing == name {
			return false, nil
		}
	}
	f.topics[userID] = append(f.topics[userID], name)
	return true, nil
}

func (f *fakeStore) RemoveTopic(ctx context.Context, userID, name string) (bool, error) {
	var rest []string
	removed := false
	for _, existing := range f.topics[userID] {
		if existing == name {
			removed = true
			continue
		}
		rest = append(rest, existing)
	}
	f.topics[userID] = rest
	return removed, nil
}

func (f *fakeStore) TopicsOf(ctx context.Context, userID string) ([]string, error) {
	return f.topics[userID], nil
}

func (f *fakeStore) BlockUser(ctx context.Context, userID, targetID string) error {
	f.blocks[userID] = append(f.blocks[userID], targetID)
	return nil
}

func (f *fakeStore) RoomIDsOf(ctx context.Context, userID string) ([]string, error) {
	return f.roomsOf[userID], nil
}

func (f *fakeStore) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	return f.members[roomID], nil
}

func (f *fakeStore) ParticipantsOfLatestBy(ctx context.Context, creatorID string) ([]string, error) {
	return f.participants, nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	delete(f.users, userID)
	return nil
}

type fakeLeaver struct {
	left []string
}

func (f *fakeLeaver) Leave(ctx context.Context, userID, roomID string) (bool, error) {
	f.left = append(f.left, roomID)
	return true, nil
}

func testService(store Store, rooms RoomLeaver) *Service {
	return NewService(store, rooms, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBootstrap_SameIdentityResolvesSameUser(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, &fakeLeaver{})
	ctx := context.Background()

	first, err := svc.Bootstrap(ctx, "anon-subject", true)
	require.NoError(t, err)
	second, err := svc.Bootstrap(ctx, "anon-subject", true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.IsVerified)
}

func TestUpdateDisplayName_BlankIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, &fakeLeaver{})

	change, err := svc.UpdateDisplayName(context.Background(), "alice", "   ")

	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Empty(t, store.names)
}

func TestUpdateDisplayName_CollisionKeepsOldName(t *testing.T) {
	store := newFakeStore()
	store.names["bob"] = "taken"
	svc := testService(store, &fakeLeaver{})

	change, err := svc.UpdateDisplayName(context.Background(), "alice", "taken")

	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Nil(t, change)
	assert.NotContains(t, store.names, "alice")
}

func TestUpdateDisplayName_ReturnsRefreshSets(t *testing.T) {
	store := newFakeStore()
	store.roomsOf["alice"] = []string{"r1", "r2"}
	store.participants = []string{"bob", "carol"}
	svc := testService(store, &fakeLeaver{})

	change, err := svc.UpdateDisplayName(context.Background(), "alice", "new-name")

	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, "new-name", change.Name)
	assert.Equal(t, []string{"r1", "r2"}, change.RoomIDs)
	assert.Equal(t, []string{"bob", "carol"}, change.ParticipantIDs)
}

func TestPresenceTransitionsReturnRoomsToRefresh(t *testing.T) {
	store := newFakeStore()
	store.roomsOf["alice"] = []string{"r1"}
	svc := testService(store, &fakeLeaver{})
	ctx := context.Background()

	rooms, err := svc.GoOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, store.online["alice"])
	assert.Equal(t, []string{"r1"}, rooms)

	rooms, err = svc.GoOffline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, store.online["alice"])
	assert.Equal(t, []string{"r1"}, rooms)
}

func TestBlock_RequiresSharedMembership(t *testing.T) {
	store := newFakeStore()
	store.members["r1"] = []string{"alice", "bob"}
	svc := testService(store, &fakeLeaver{})
	ctx := context.Background()

	// Target not in the room: no-op.
	require.NoError(t, svc.Block(ctx, "alice", "r1", "stranger"))
	assert.Empty(t, store.blocks["alice"])

	// Blocker not in the room: no-op too.
	require.NoError(t, svc.Block(ctx, "carol", "r1", "bob"))
	assert.Empty(t, store.blocks["carol"])

	require.NoError(t, svc.Block(ctx, "alice", "r1", "bob"))
	assert.Equal(t, []string{"bob"}, store.blocks["alice"])
}

func TestTopics_TrimmedAndDeduplicated(t *testing.T) {
	store := newFakeStore()
	svc := testService(store, &fakeLeaver{})
	ctx := context.Background()

	added, err := svc.AddTopic(ctx, "alice", "  hiking ")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.AddTopic(ctx, "alice", "hiking")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = svc.AddTopic(ctx, "alice", "   ")
	require.NoError(t, err)
	assert.False(t, added)

	topics, err := svc.Topics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hiking"}, topics)
}

func TestDeleteAccount_LeavesEveryRoomFirst(t *testing.T) {
	store := newFakeStore()
	store.users["alice"] = &models.User{ID: "alice"}
	store.roomsOf["alice"] = []string{"r1", "r2"}
	leaver := &fakeLeaver{}
	svc := testService(store, leaver)

	err := svc.DeleteAccount(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, leaver.left)
	assert.Equal(t, []string{"alice"}, store.deleted)
}
