package core

// Frame is one UTF-8 encoded message as carried by the relay or a peer channel.
type Frame []byte

// ControlChannel abstracts the duplex message channel to the relay.
// Owned by the adapter; the adapter must Close() it.
type ControlChannel interface {
	TrySend(Frame) error
	Close()
}
