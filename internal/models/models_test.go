package models_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mullmine/backend/internal/models"
)

func TestBeforeCreate_GeneratesUUIDWhenMissing(t *testing.T) {
	user := &models.User{Username: "subject-1"}
	require.NoError(t, user.BeforeCreate(nil))
	_, err := uuid.Parse(user.ID)
	assert.NoError(t, err, "user ID must be a valid UUID")

	room := &models.Room{Question: "anyone here?"}
	require.NoError(t, room.BeforeCreate(nil))
	_, err = uuid.Parse(room.ID)
	assert.NoError(t, err)

	msg := &models.Message{Content: "hi"}
	require.NoError(t, msg.BeforeCreate(nil))
	_, err = uuid.Parse(msg.ID)
	assert.NoError(t, err)

	convo := &models.Conversation{ParticipantID: user.ID, RoomID: room.ID}
	require.NoError(t, convo.BeforeCreate(nil))
	_, err = uuid.Parse(convo.ID)
	assert.NoError(t, err)
}

func TestBeforeCreate_PreservesExistingID(t *testing.T) {
	existing := uuid.NewString()
	room := &models.Room{ID: existing}

	require.NoError(t, room.BeforeCreate(nil))

	assert.Equal(t, existing, room.ID)
}

// Signal events must stay payload-free on the wire so clients treat them
// as re-pull triggers, not data pushes.
func TestEventJSON_OmitsEmptyPayloadFields(t *testing.T) {
	evt := models.Event{Type: models.EventConversationsChanged, UserID: "u1"}

	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2)
	assert.Equal(t, "conversations_changed", decoded["type"])
}

func TestEventJSON_AgreedTermsFalseSurvivesRoundTrip(t *testing.T) {
	agreed := false
	evt := models.Event{Type: models.EventAgreedTerms, AgreedTerms: &agreed}

	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded models.Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.AgreedTerms)
	assert.False(t, *decoded.AgreedTerms)
}
