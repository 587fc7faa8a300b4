package mesh

import "errors"

var (
	// ErrUnhandledKind is reported when no handler is registered for a
	// decoded message kind.
	ErrUnhandledKind = errors.New("unhandled message kind")
	// ErrOutOfOrderCandidate is reported for an ICE candidate that arrives
	// before the offer creating its member.
	ErrOutOfOrderCandidate = errors.New("ice candidate for unknown member")
	ErrUnknownMember       = errors.New("unknown member")
	// ErrUnreadyPeer is returned by SendToPeer when the target is unknown or
	// still negotiating.
	ErrUnreadyPeer = errors.New("unknown or unready member")
	// ErrSessionClosed is returned by sends after the session is torn down.
	ErrSessionClosed = errors.New("session closed")
)
