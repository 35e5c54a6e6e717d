package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChronological_ReversesNewestFirstRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []messageRow{
		{ID: "m3", CreatorID: "bob", CreatorName: "Bob", Content: "third", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m2", CreatorID: "alice", CreatorName: "Alice", Content: "second", CreatedAt: base.Add(time.Second)},
		{ID: "m1", CreatorID: "alice", CreatorName: "Alice", Content: "first", CreatedAt: base},
	}

	views := chronological(rows)

	require.Len(t, views, 3)
	assert.Equal(t, "m1", views[0].ID)
	assert.Equal(t, "m2", views[1].ID)
	assert.Equal(t, "m3", views[2].ID)
	assert.Equal(t, "first", views[0].Content)
	assert.Equal(t, "Alice", views[0].CreatorName)
	assert.Less(t, views[0].CreatedAt, views[1].CreatedAt)
	assert.Less(t, views[1].CreatedAt, views[2].CreatedAt)
}

func TestChronological_TimestampsAreUnixSeconds(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 250_000_000, time.UTC)
	views := chronological([]messageRow{{ID: "m1", CreatedAt: at}})

	require.Len(t, views, 1)
	assert.Equal(t, float64(at.UnixMilli())/1000, views[0].CreatedAt)
}

func TestChronological_EmptyInput(t *testing.T) {
	assert.Empty(t, chronological(nil))
}
