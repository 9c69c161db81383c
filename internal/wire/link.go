package wire

// Link is the outbound side of a live session as the state stores see it.
// Send is fire-and-forget: frames are dropped while the transport is down.
type Link interface {
	IsHost() bool
	Send(tag Tag, payload any)
}
