package models

// Command is an inbound instruction from a connection. The transport layer
// has already resolved the sender's identity, so commands never carry it.
type Command struct {
	Action   string `json:"action"`
	RoomID   string `json:"room_id,omitempty"`
	Question string `json:"question,omitempty"`
	Content  string `json:"content,omitempty"`
	Name     string `json:"name,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	// BeforeMessageID is the paging cursor for fetch_prev_messages.
	// Empty means "latest page".
	BeforeMessageID string `json:"before_message_id,omitempty"`
	// Since is a unix timestamp in seconds, used by refresh_messages to
	// re-render history the client already holds.
	Since float64 `json:"since,omitempty"`
}

// Inbound command actions.
const (
	ActionFindRoom          = "find_room"
	ActionJoinRoom          = "join_room"
	ActionLeaveRoom         = "leave_room"
	ActionSendMessage       = "send_message"
	ActionFetchPrevMessages = "fetch_prev_messages"
	ActionRefreshMessages   = "refresh_messages"
	ActionRenameRoom        = "rename_room"
	ActionActiveQuestions   = "active_questions"
	ActionMarkRead          = "mark_read"
	ActionFetchConvos       = "fetch_conversations"
	ActionBlockUser         = "block_user"
	ActionReportUser        = "report_user"
	ActionUpdateName        = "update_display_name"
	ActionUpdateCapacity    = "update_capacity"
	ActionSuggestQuestions  = "suggest_questions"
	ActionAddTopic          = "add_topic"
	ActionRemoveTopic       = "remove_topic"
	ActionAgreeTerms        = "agree_terms"
	ActionDeleteAccount     = "delete_account"
)

// Outbound event types.
const (
	EventMembersChanged       = "members_changed"
	EventNewMessage           = "new_message"
	EventConversationsChanged = "conversations_changed"
	EventRoomFull             = "room_full"
	EventNameRejected         = "display_name_rejected"
	EventRoomMatched          = "room_matched"
	EventMessages             = "messages"
	EventConversations        = "conversations"
	EventDisplayName          = "display_name"
	EventTopics               = "topics"
	EventSuggestions          = "suggestions"
	EventAgreedTerms          = "agreed_terms"
)

// Event is an outbound notification fanned out to subscribed connections.
// conversations_changed deliberately carries no payload: it is a signal to
// re-pull the list, not a push of it.
type Event struct {
	Type          string             `json:"type"`
	RoomID        string             `json:"room_id,omitempty"`
	UserID        string             `json:"user_id,omitempty"`
	Name          string             `json:"name,omitempty"`
	Members       []MemberInfo       `json:"members,omitempty"`
	Message       *MessageView       `json:"message,omitempty"`
	Messages      []MessageView      `json:"messages,omitempty"`
	Conversations []ConversationView `json:"conversations,omitempty"`
	Topics        []string           `json:"topics,omitempty"`
	Suggestions   []string           `json:"suggestions,omitempty"`
	AgreedTerms   *bool              `json:"agreed_terms,omitempty"`
}

// MemberInfo is the room-member projection shipped with members_changed.
type MemberInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsOnline    bool   `json:"is_online"`
}

// MessageView is the wire shape of a chat message.
type MessageView struct {
	ID          string  `json:"id"`
	CreatorID   string  `json:"creator_id"`
	CreatorName string  `json:"creator_name"`
	Content     string  `json:"content"`
	CreatedAt   float64 `json:"created_at"`
}

// ConversationView joins a conversation row with its room and latest
// message metadata for the inbox listing.
type ConversationView struct {
	RoomID            string   `json:"room_id"`
	Question          string   `json:"question"`
	Read              bool     `json:"read"`
	LatestContent     string   `json:"latest_content,omitempty"`
	LatestCreatorName string   `json:"latest_creator_name,omitempty"`
	LatestCreatedAt   *float64 `json:"latest_created_at,omitempty"`
	CreatedAt         float64  `json:"created_at"`
}
