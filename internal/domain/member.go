// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var ErrMemberIDEmpty = errors.New("member id empty")

// MemberID is assigned by the relay and is stable for the whole session.
type MemberID string

func (id MemberID) Validate() error {
	if id == "" {
		return ErrMemberIDEmpty
	}
	return nil
}

// HandshakeState is the position of one remote member in the mesh handshake.
type HandshakeState int

const (
	Unconnected HandshakeState = iota
	Negotiating
	DataReady
	Closed
)

func (s HandshakeState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Negotiating:
		return "negotiating"
	case DataReady:
		return "data_ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
