package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name     string
		members  int
		capacity int
		want     State
	}{
		{"no members", 0, 5, StateEmpty},
		{"single member waits", 1, 5, StateWaiting},
		{"two members active", 2, 5, StateActive},
		{"almost full still active", 4, 5, StateActive},
		{"at capacity", 5, 5, StateFull},
		{"over capacity reads as full", 6, 5, StateFull},
		{"capacity two fills at two", 2, 2, StateFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.members, tt.capacity))
		})
	}
}
