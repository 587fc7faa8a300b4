package core

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Member binds a remote member id to its negotiation handle and, once the
// handshake completes, its data channel.
// Fields are guarded by the owning Mesh.
type Member struct {
	id      domain.MemberID
	state   domain.HandshakeState
	peer    PeerConnection
	data    DataChannel
	offered bool
}

func NewMember(id domain.MemberID, peer PeerConnection) *Member {
	return &Member{id: id, state: domain.Unconnected, peer: peer}
}

func (m *Member) ID() domain.MemberID          { return m.id }
func (m *Member) State() domain.HandshakeState { return m.state }
func (m *Member) Peer() PeerConnection         { return m.peer }
func (m *Member) IsDataReady() bool            { return m.state == domain.DataReady && m.data != nil }

// close releases both handles. Errors from already-closed handles are
// swallowed.
func (m *Member) close() {
	if m.state == domain.Closed {
		return
	}
	m.state = domain.Closed
	if m.data != nil {
		if err := m.data.Close(); err != nil {
			log.Debug().Err(err).Str("module", "core.member").Str("member", string(m.id)).Msg("data channel close")
		}
	}
	if m.peer != nil {
		if err := m.peer.Close(); err != nil {
			log.Debug().Err(err).Str("module", "core.member").Str("member", string(m.id)).Msg("peer close")
		}
	}
}
