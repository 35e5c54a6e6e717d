package chathub

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"mullmine/backend/internal/account"
	"mullmine/backend/internal/conversation"
	"mullmine/backend/internal/match"
	"mullmine/backend/internal/models"
	"mullmine/backend/internal/moderation"
	"mullmine/backend/internal/room"
	"mullmine/backend/internal/storage"
)

// Publisher fans events out through the bus. *storage.Service satisfies
// it. The router always publishes after the underlying write has
// committed; delivery is at-least-once and never transactional with it.
type Publisher interface {
	PublishToUser(ctx context.Context, userID string, evt models.Event) error
	PublishToRoom(ctx context.Context, roomID string, evt models.Event) error
}

// RouterStore is the handful of direct lookups the router needs beyond
// what the services expose. *storage.Service satisfies it.
type RouterStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByDisplayName(ctx context.Context, name string) (*models.User, error)
	RoomMembers(ctx context.Context, roomID string) ([]models.MemberInfo, error)
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	RoomIDsOf(ctx context.Context, userID string) ([]string, error)
}

// Router executes inbound commands against the core services and fans
// the resulting events out. One call handles one command; the transport
// runs each on its own goroutine.
type Router struct {
	hub        *Hub
	store      RouterStore
	accounts   *account.Service
	matcher    *match.Service
	rooms      *room.Service
	ledger     *conversation.Service
	moderation *moderation.Service
	publisher  Publisher
	log        *slog.Logger
}

func NewRouter(
	hub *Hub,
	store RouterStore,
	accounts *account.Service,
	matcher *match.Service,
	rooms *room.Service,
	ledger *conversation.Service,
	mod *moderation.Service,
	publisher Publisher,
	log *slog.Logger,
) *Router {
	return &Router{
		hub:        hub,
		store:      store,
		accounts:   accounts,
		matcher:    matcher,
		rooms:      rooms,
		ledger:     ledger,
		moderation: mod,
		publisher:  publisher,
		log:        log,
	}
}

// Handle dispatches one command. Every failure is local: it is logged
// and the connection lives on, free to retry.
func (r *Router) Handle(c Client, cmd models.Command) {
	ctx := context.Background()
	userID := c.GetUserID()

	var err error
	switch cmd.Action {
	case models.ActionFindRoom:
		err = r.findRoom(ctx, c, cmd.Question)
	case models.ActionJoinRoom:
		err = r.joinRoom(ctx, c, cmd.RoomID)
	case models.ActionLeaveRoom:
		err = r.leaveRoom(ctx, c, cmd.RoomID)
	case models.ActionSendMessage:
		err = r.sendMessage(ctx, userID, cmd.RoomID, cmd.Content)
	case models.ActionFetchPrevMessages:
		err = r.fetchPrevMessages(ctx, c, cmd.RoomID, cmd.BeforeMessageID)
	case models.ActionRefreshMessages:
		err = r.refreshMessages(ctx, c, cmd.RoomID, cmd.Since)
	case models.ActionRenameRoom:
		err = r.renameRoom(ctx, c.GetUserID(), cmd.RoomID, cmd.Name)
	case models.ActionMarkRead:
		err = r.markRead(ctx, userID, cmd.RoomID)
	case models.ActionFetchConvos:
		err = r.pushConversations(ctx, c)
	case models.ActionBlockUser:
		err = r.blockUser(ctx, c, cmd.RoomID, cmd.Name)
	case models.ActionReportUser:
		err = r.reportUser(ctx, userID, cmd.RoomID, cmd.Name)
	case models.ActionUpdateName:
		err = r.updateDisplayName(ctx, c, cmd.Name)
	case models.ActionUpdateCapacity:
		err = r.updateCapacity(ctx, userID, cmd.RoomID, cmd.Limit)
	case models.ActionSuggestQuestions:
		err = r.suggestQuestions(ctx, c, cmd.Question)
	case models.ActionActiveQuestions:
		err = r.activeQuestions(ctx, c)
	case models.ActionAddTopic:
		err = r.addTopic(ctx, c, cmd.Topic)
	case models.ActionRemoveTopic:
		err = r.removeTopic(ctx, c, cmd.Topic)
	case models.ActionAgreeTerms:
		err = r.agreeTerms(ctx, c)
	case models.ActionDeleteAccount:
		err = r.deleteAccount(ctx, c)
	default:
		r.log.Warn("unknown command", slog.String("action", cmd.Action))
	}
	if err != nil {
		r.log.Error("command failed",
			slog.String("action", cmd.Action),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// Connected runs the post-handshake sequence: presence on, initial state
// push, partner refresh fan-out.
func (r *Router) Connected(c Client) {
	ctx := context.Background()
	userID := c.GetUserID()

	roomIDs, err := r.accounts.GoOnline(ctx, userID)
	if err != nil {
		r.log.Error("go online failed", slog.String("user_id", userID), slog.Any("error", err))
	} else {
		r.refreshPartnerRooms(ctx, roomIDs)
	}

	if user, err := r.store.GetUserByID(ctx, userID); err == nil {
		agreed := user.AgreedTerms
		r.send(c, models.Event{Type: models.EventDisplayName, Name: user.DisplayName})
		r.send(c, models.Event{Type: models.EventAgreedTerms, AgreedTerms: &agreed})
	}
	if topics, err := r.accounts.Topics(ctx, userID); err == nil {
		r.send(c, models.Event{Type: models.EventTopics, Topics: topics})
	}
	if err := r.pushConversations(ctx, c); err != nil {
		r.log.Error("initial conversations push failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}

// Disconnected runs when a connection drops: presence off plus the same
// partner fan-out. In-flight writes already committed stay committed.
func (r *Router) Disconnected(c Client) {
	ctx := context.Background()
	userID := c.GetUserID()
	roomIDs, err := r.accounts.GoOffline(ctx, userID)
	if err != nil {
		r.log.Error("go offline failed", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	r.refreshPartnerRooms(ctx, roomIDs)
}

func (r *Router) findRoom(ctx context.Context, c Client, question string) error {
	matched, err := r.matcher.FindOrCreateRoom(ctx, c.GetUserID(), question)
	if err != nil {
		return err
	}
	if matched == nil {
		// Unverified requester: silently ignored.
		return nil
	}
	return r.enterRoom(ctx, c, matched.ID)
}

func (r *Router) joinRoom(ctx context.Context, c Client, roomID string) error {
	if roomID == "" {
		return nil
	}
	if _, err := r.rooms.Resolve(ctx, roomID, c.GetUserID()); err != nil {
		return err
	}
	return r.enterRoom(ctx, c, roomID)
}

// enterRoom performs the join transition and the full fan-out sequence:
// membership broadcast, inbox refreshes, initial history and read-state
// for the joiner.
func (r *Router) enterRoom(ctx context.Context, c Client, roomID string) error {
	userID := c.GetUserID()
	members, added, err := r.rooms.Join(ctx, userID, roomID)
	if errors.Is(err, storage.ErrRoomFull) {
		r.send(c, models.Event{Type: models.EventRoomFull, RoomID: roomID})
		return nil
	}
	if errors.Is(err, storage.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	r.hub.Subscribe(c, storage.RoomChannel(roomID))
	r.send(c, models.Event{Type: models.EventRoomMatched, RoomID: roomID})

	if added {
		if err := r.publisher.PublishToRoom(ctx, roomID, models.Event{
			Type:    models.EventMembersChanged,
			RoomID:  roomID,
			Members: members,
		}); err != nil {
			return err
		}
		r.notifyConversationsChanged(ctx, memberIDsOf(members))
	} else {
		r.send(c, models.Event{Type: models.EventMembersChanged, RoomID: roomID, Members: members})
	}

	history, err := r.ledger.History(ctx, roomID, userID, "")
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventMessages, RoomID: roomID, Messages: history})

	return r.markRead(ctx, userID, roomID)
}

func (r *Router) leaveRoom(ctx context.Context, c Client, roomID string) error {
	userID := c.GetUserID()
	memberIDs, err := r.store.MemberIDs(ctx, roomID)
	if err != nil {
		return err
	}

	roomGone, err := r.rooms.Leave(ctx, userID, roomID)
	if err != nil {
		return err
	}
	r.hub.Unsubscribe(c, storage.RoomChannel(roomID))

	// Everyone who was a member re-pulls their inbox, the leaver
	// included; survivors also get the new member list.
	r.notifyConversationsChanged(ctx, memberIDs)
	if !roomGone {
		members, err := r.store.RoomMembers(ctx, roomID)
		if err != nil {
			return err
		}
		return r.publisher.PublishToRoom(ctx, roomID, models.Event{
			Type:    models.EventMembersChanged,
			RoomID:  roomID,
			Members: members,
		})
	}
	return nil
}

func (r *Router) sendMessage(ctx context.Context, userID, roomID, content string) error {
	view, notified, err := r.ledger.RecordMessage(ctx, content, roomID, userID)
	if err != nil {
		return err
	}
	if view == nil {
		return nil
	}
	// new_message goes per viewer, not to the room channel: members who
	// blocked the creator are absent from notified and must never see
	// the message live either.
	for _, id := range notified {
		if err := r.publisher.PublishToUser(ctx, id, models.Event{
			Type:    models.EventNewMessage,
			RoomID:  roomID,
			Message: view,
		}); err != nil {
			return err
		}
	}
	r.notifyConversationsChanged(ctx, notified)
	return nil
}

func (r *Router) fetchPrevMessages(ctx context.Context, c Client, roomID, beforeID string) error {
	history, err := r.ledger.History(ctx, roomID, c.GetUserID(), beforeID)
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventMessages, RoomID: roomID, Messages: history})
	return nil
}

// refreshMessages re-sends history the client already holds, picking up
// display-name changes since the given timestamp.
func (r *Router) refreshMessages(ctx context.Context, c Client, roomID string, since float64) error {
	sec, frac := math.Modf(since)
	views, err := r.ledger.Refresh(ctx, roomID, c.GetUserID(), time.Unix(int64(sec), int64(frac*1e9)))
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventMessages, RoomID: roomID, Messages: views})
	return nil
}

// renameRoom lets any current member retitle the room.
func (r *Router) renameRoom(ctx context.Context, userID, roomID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	memberIDs, err := r.store.MemberIDs(ctx, roomID)
	if err != nil {
		return err
	}
	isMember := false
	for _, id := range memberIDs {
		if id == userID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil
	}
	if err := r.rooms.Rename(ctx, roomID, name); err != nil {
		return err
	}
	members, err := r.store.RoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	return r.publisher.PublishToRoom(ctx, roomID, models.Event{
		Type:    models.EventMembersChanged,
		RoomID:  roomID,
		Members: members,
	})
}

func (r *Router) markRead(ctx context.Context, userID, roomID string) error {
	changed, err := r.ledger.MarkRead(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.publisher.PublishToUser(ctx, userID, models.Event{Type: models.EventConversationsChanged, UserID: userID})
}

func (r *Router) pushConversations(ctx context.Context, c Client) error {
	views, err := r.ledger.List(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventConversations, Conversations: views})
	return nil
}

// blockUser blocks the named co-member and then walks the blocker out of
// the shared room.
func (r *Router) blockUser(ctx context.Context, c Client, roomID, targetName string) error {
	target, err := r.store.GetUserByDisplayName(ctx, targetName)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.accounts.Block(ctx, c.GetUserID(), roomID, target.ID); err != nil {
		return err
	}
	return r.leaveRoom(ctx, c, roomID)
}

func (r *Router) reportUser(ctx context.Context, userID, roomID, targetName string) error {
	target, err := r.store.GetUserByDisplayName(ctx, targetName)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.moderation.ReportUser(ctx, userID, roomID, target.ID)
}

func (r *Router) updateDisplayName(ctx context.Context, c Client, name string) error {
	userID := c.GetUserID()
	change, err := r.accounts.UpdateDisplayName(ctx, userID, name)
	if errors.Is(err, account.ErrNameTaken) {
		r.send(c, models.Event{Type: models.EventNameRejected, Name: name})
		return nil
	}
	if err != nil {
		return err
	}
	if change == nil {
		return nil
	}

	r.notifyConversationsChanged(ctx, change.ParticipantIDs)
	for _, roomID := range change.RoomIDs {
		members, err := r.store.RoomMembers(ctx, roomID)
		if err != nil {
			return err
		}
		if err := r.publisher.PublishToRoom(ctx, roomID, models.Event{
			Type:    models.EventMembersChanged,
			RoomID:  roomID,
			Members: members,
		}); err != nil {
			return err
		}
	}
	return r.publisher.PublishToUser(ctx, userID, models.Event{
		Type: models.EventDisplayName,
		Name: change.Name,
	})
}

func (r *Router) updateCapacity(ctx context.Context, userID, roomID string, limit int) error {
	updated, err := r.rooms.SetCapacity(ctx, userID, roomID, limit)
	if errors.Is(err, storage.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	members, err := r.store.RoomMembers(ctx, updated.ID)
	if err != nil {
		return err
	}
	return r.publisher.PublishToRoom(ctx, updated.ID, models.Event{
		Type:    models.EventMembersChanged,
		RoomID:  updated.ID,
		Members: members,
	})
}

func (r *Router) suggestQuestions(ctx context.Context, c Client, question string) error {
	suggestions, err := r.matcher.SuggestQuestions(ctx, c.GetUserID(), question)
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventSuggestions, Suggestions: suggestions})
	return nil
}

func (r *Router) activeQuestions(ctx context.Context, c Client) error {
	questions, err := r.matcher.ActiveQuestions(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventSuggestions, Suggestions: questions})
	return nil
}

func (r *Router) addTopic(ctx context.Context, c Client, topic string) error {
	added, err := r.accounts.AddTopic(ctx, c.GetUserID(), topic)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	return r.pushTopics(ctx, c)
}

func (r *Router) removeTopic(ctx context.Context, c Client, topic string) error {
	removed, err := r.accounts.RemoveTopic(ctx, c.GetUserID(), topic)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	return r.pushTopics(ctx, c)
}

func (r *Router) pushTopics(ctx context.Context, c Client) error {
	topics, err := r.accounts.Topics(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	r.send(c, models.Event{Type: models.EventTopics, Topics: topics})
	return nil
}

func (r *Router) agreeTerms(ctx context.Context, c Client) error {
	if err := r.accounts.AgreeTerms(ctx, c.GetUserID()); err != nil {
		return err
	}
	agreed := true
	r.send(c, models.Event{Type: models.EventAgreedTerms, AgreedTerms: &agreed})
	return nil
}

func (r *Router) deleteAccount(ctx context.Context, c Client) error {
	userID := c.GetUserID()
	roomIDs, err := r.store.RoomIDsOf(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.accounts.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	for _, roomID := range roomIDs {
		members, err := r.store.RoomMembers(ctx, roomID)
		if err != nil || len(members) == 0 {
			continue
		}
		if err := r.publisher.PublishToRoom(ctx, roomID, models.Event{
			Type:    models.EventMembersChanged,
			RoomID:  roomID,
			Members: members,
		}); err != nil {
			return err
		}
		r.notifyConversationsChanged(ctx, memberIDsOf(members))
	}
	return nil
}

// refreshPartnerRooms tells every member of the given rooms to re-pull
// members and conversations after a presence change.
func (r *Router) refreshPartnerRooms(ctx context.Context, roomIDs []string) {
	for _, roomID := range roomIDs {
		members, err := r.store.RoomMembers(ctx, roomID)
		if err != nil {
			r.log.Error("partner refresh failed", slog.String("room_id", roomID), slog.Any("error", err))
			continue
		}
		if err := r.publisher.PublishToRoom(ctx, roomID, models.Event{
			Type:    models.EventMembersChanged,
			RoomID:  roomID,
			Members: members,
		}); err != nil {
			r.log.Error("partner refresh publish failed", slog.String("room_id", roomID), slog.Any("error", err))
			continue
		}
		r.notifyConversationsChanged(ctx, memberIDsOf(members))
	}
}

// notifyConversationsChanged signals the given users to re-pull their
// conversation lists. Signal only, no payload.
func (r *Router) notifyConversationsChanged(ctx context.Context, userIDs []string) {
	for _, id := range userIDs {
		if err := r.publisher.PublishToUser(ctx, id, models.Event{
			Type:   models.EventConversationsChanged,
			UserID: id,
		}); err != nil {
			r.log.Error("conversations signal failed", slog.String("user_id", id), slog.Any("error", err))
		}
	}
}

// send drops an event on one connection, non-blocking. Delivery to an
// already-closed connection is a logged drop, never a failure.
func (r *Router) send(c Client, evt models.Event) {
	if !c.Deliver(evt) {
		r.log.Warn("dropping direct event for slow client",
			slog.String("user_id", c.GetUserID()),
			slog.String("event", evt.Type))
	}
}

func memberIDsOf(members []models.MemberInfo) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}
