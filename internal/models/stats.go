package models

import "time"

// RoomStats is the pre-aggregated per-room slice the scoring engine works
// on. One batched storage read produces the full set for a user, so the
// ranking stays auditable independent of any query planner.
type RoomStats struct {
	RoomID         string
	OtherMemberIDs []string
	NumMessages    int
	NumYours       int
	NumOthers      int
}

// MemberBlocks pairs a room member with the users that member has
// blocked, for the ledger's fan-out decisions.
type MemberBlocks struct {
	UserID     string
	BlockedIDs []string
}

// RoomFacts is the candidate-selection projection of a room: everything
// the matchmaker needs to filter, pool and rank without further reads.
type RoomFacts struct {
	RoomID          string
	Question        string
	CreatedAt       time.Time
	MemberIDs       []string
	NumOnline       int
	MemberLimit     int
	LatestMessageAt *time.Time
}
