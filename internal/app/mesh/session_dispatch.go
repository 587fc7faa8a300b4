package mesh

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnControlMessage registers the handler for user messages of kind sent by
// the relay. A later registration for the same kind replaces this one.
func (s *Session) OnControlMessage(kind string, h ControlHandler) { s.server.Handle(kind, h) }

// OnPeerMessage registers the handler for user messages of kind sent by
// peers. A later registration for the same kind replaces this one.
func (s *Session) OnPeerMessage(kind string, h PeerHandler) { s.p2p.Handle(kind, h) }

func (s *Session) OffControlMessage(kind string) bool { return s.server.Unhandle(kind) }
func (s *Session) OffPeerMessage(kind string) bool    { return s.p2p.Unhandle(kind) }

// Handlers lists the registered control and peer message kinds.
func (s *Session) Handlers() (control, peer []string) {
	return s.server.Kinds(), s.p2p.Kinds()
}

// SendToServer sends a user message to the relay. It does not wait for
// readiness.
func (s *Session) SendToServer(kind string, data any) error {
	if s.closed() {
		return ErrSessionClosed
	}
	f, err := codec.EncodeUser(kind, data)
	if err != nil {
		return err
	}
	return s.ctrl.TrySend(f)
}

// SendToPeer sends a user message to one data-ready member. An unknown or
// still negotiating target yields ErrUnreadyPeer and nothing is sent.
func (s *Session) SendToPeer(to domain.MemberID, kind string, data any) error {
	if s.closed() {
		return ErrSessionClosed
	}
	dc, ok := s.mesh.ReadyChannel(to)
	if !ok {
		err := fmt.Errorf("%w: %q kind %q", ErrUnreadyPeer, to, kind)
		s.report(err)
		return err
	}
	f, err := codec.EncodePeer(s.ID(), kind, data)
	if err != nil {
		return err
	}
	return dc.Send(f)
}

// Broadcast sends a user message to every member that is data-ready at call
// time.
func (s *Session) Broadcast(kind string, data any) (core.PublishResult, error) {
	res := core.PublishResult{}
	if s.closed() {
		return res, ErrSessionClosed
	}
	f, err := codec.EncodePeer(s.ID(), kind, data)
	if err != nil {
		return res, err
	}
	for _, mc := range s.mesh.ReadyChannels() {
		if s.cfg.Policy.OnBackPressure(mc.ID, mc.Data.BufferedAmount()) == app.DropMessage {
			res.Dropped = append(res.Dropped, mc.ID)
			continue
		}
		if err := mc.Data.Send(f); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("member", string(mc.ID)).Msg("broadcast send")
			res.Dropped = append(res.Dropped, mc.ID)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.mesh").Str("kind", kind).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

func (s *Session) dispatchControl(u codec.User) {
	h, ok := s.server.Lookup(u.Kind)
	if !ok {
		s.report(fmt.Errorf("%w: server %q", ErrUnhandledKind, u.Kind))
		return
	}
	h(u.Data)
}

// handlePeerFrame dispatches a message by the identity of the channel it
// arrived on; the embedded sender is only compared, never trusted.
func (s *Session) handlePeerFrame(mem *core.Member, f core.Frame) {
	if !s.mesh.Current(mem) {
		log.Debug().Str("module", "app.mesh").Str("member", string(mem.ID())).Msg("message from stale channel dropped")
		return
	}
	msg, err := codec.DecodePeer(f)
	if err != nil {
		s.report(err)
		return
	}
	if msg.From != "" && msg.From != mem.ID() {
		log.Warn().Str("module", "app.mesh").Str("member", string(mem.ID())).Str("claimed", string(msg.From)).Msg("peer message sender mismatch")
	}
	h, ok := s.p2p.Lookup(msg.Kind)
	if !ok {
		s.report(fmt.Errorf("%w: p2p %q", ErrUnhandledKind, msg.Kind))
		return
	}
	h(mem.ID(), msg.Data)
}
