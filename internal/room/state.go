package room

// State is the derived lifecycle stage of a room. It is never persisted:
// storing it alongside the member count would let the two drift, so every
// consumer derives it from (member count, capacity) through StateOf.
type State string

const (
	// StateEmpty rooms have zero members and are garbage-collected.
	StateEmpty State = "empty"
	// StateWaiting rooms hold a single member and are match targets.
	StateWaiting State = "waiting"
	// StateActive rooms have two or more members with space left.
	StateActive State = "active"
	// StateFull rooms are at capacity and admit no joins.
	StateFull State = "full"
)

// StateOf derives the lifecycle stage. Transitions happen only through
// join and leave; a room cannot reach full without passing waiting or
// active first because members join one at a time.
func StateOf(memberCount, capacity int) State {
	switch {
	case memberCount <= 0:
		return StateEmpty
	case memberCount >= capacity:
		return StateFull
	case memberCount == 1:
		return StateWaiting
	default:
		return StateActive
	}
}
