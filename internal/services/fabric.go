package services

// Fabric is the slice of the session layer the game services depend on.
// Emit must never block the caller: emissions happen while the per-game
// lock is held.
type Fabric interface {
	// Emit broadcasts an event to every socket in a room, across nodes.
	Emit(room, event string, payload interface{})
	// EmitAll broadcasts to every socket on this node.
	EmitAll(event string, payload interface{})
	// Count reports how many local sockets are in a room.
	Count(room string) int
	// CountUser reports how many local sockets of one user are in a room.
	CountUser(room, userID string) int
}
