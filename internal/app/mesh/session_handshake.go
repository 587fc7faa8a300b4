package mesh

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// newPeer creates the member with its negotiation handle. A factory failure
// still registers the member: it stalls in Negotiating until the relay
// announces its disconnect.
func (s *Session) newPeer(id domain.MemberID) (*core.Member, bool) {
	pc, err := s.peers.NewPeerConnection(s.cfg.WebRTC)
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(id)).Msg("new peer connection")
		s.mesh.Add(id, nil)
		return nil, false
	}
	mem, _ := s.mesh.Add(id, pc)
	s.bindPeer(mem)
	return mem, true
}

// initiate opens a data channel towards a cohort member; the offer follows
// on the negotiation-needed signal.
func (s *Session) initiate(id domain.MemberID) {
	mem, ok := s.newPeer(id)
	if !ok {
		return
	}
	pc := mem.Peer()
	pc.OnNegotiationNeeded(func() {
		s.post(func() { s.negotiate(mem) })
	})
	dc, err := pc.CreateDataChannel(s.cfg.Label)
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(id)).Msg("create data channel")
		return
	}
	s.bindData(mem, dc)
	log.Debug().Str("module", "app.mesh").Str("member", string(id)).Msg("handshake initiated")
}

func (s *Session) negotiate(mem *core.Member) {
	if !s.mesh.MarkOffered(mem) {
		return
	}
	pc := mem.Peer()
	offer, err := pc.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(mem.ID())).Msg("create offer")
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(mem.ID())).Msg("set local offer")
		return
	}
	s.forward(mem.ID(), codec.SDPOffer, codec.SDPData{From: s.ID(), SDP: offer})
}

func (s *Session) handleOffer(d codec.SDPData) {
	if err := d.From.Validate(); err != nil {
		s.report(fmt.Errorf("%w: sdpOffer: %v", codec.ErrMalformedMessage, err))
		return
	}
	if st, ok := s.mesh.State(d.From); ok {
		log.Info().Str("module", "app.mesh").Str("member", string(d.From)).Str("state", st.String()).Msg("offer for known member ignored")
		return
	}
	mem, ok := s.newPeer(d.From)
	if !ok {
		return
	}
	pc := mem.Peer()
	pc.OnDataChannel(func(dc core.DataChannel) {
		s.bindData(mem, dc)
	})
	if err := pc.SetRemoteDescription(d.SDP); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(d.From)).Msg("set remote offer")
		return
	}
	answer, err := pc.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(d.From)).Msg("create answer")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(d.From)).Msg("set local answer")
		return
	}
	s.forward(d.From, codec.SDPAnswer, codec.SDPData{From: s.ID(), SDP: answer})
}

func (s *Session) handleAnswer(d codec.SDPData) {
	mem, ok := s.mesh.Get(d.From)
	if !ok {
		s.report(fmt.Errorf("%w: sdpAnswer from %q", ErrUnknownMember, d.From))
		return
	}
	if mem.State() != domain.Negotiating || mem.Peer() == nil {
		log.Debug().Str("module", "app.mesh").Str("member", string(d.From)).Str("state", mem.State().String()).Msg("answer ignored")
		return
	}
	if err := mem.Peer().SetRemoteDescription(d.SDP); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("member", string(d.From)).Msg("set remote answer")
	}
}

func (s *Session) handleCandidate(d codec.CandidateData) {
	mem, ok := s.mesh.Get(d.From)
	if !ok {
		s.report(fmt.Errorf("%w: %q", ErrOutOfOrderCandidate, d.From))
		return
	}
	if mem.Peer() == nil {
		return
	}
	if err := mem.Peer().AddICECandidate(d.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "app.mesh").Str("member", string(d.From)).Msg("add ice candidate")
	}
}

func (s *Session) bindPeer(mem *core.Member) {
	mem.Peer().OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.post(func() { s.forwardCandidate(mem, c) })
	})
}

func (s *Session) forwardCandidate(mem *core.Member, c webrtc.ICECandidateInit) {
	if !s.mesh.Current(mem) {
		return
	}
	s.forward(mem.ID(), codec.ICECandidate, codec.CandidateData{From: s.ID(), Candidate: c})
}

func (s *Session) bindData(mem *core.Member, dc core.DataChannel) {
	dc.OnOpen(func() {
		s.post(func() { s.onDataOpen(mem, dc) })
	})
	dc.OnMessage(func(f core.Frame) {
		s.post(func() { s.handlePeerFrame(mem, f) })
	})
}

// onDataOpen moves the member to DataReady. Cohort members feed the
// readiness barrier; everyone else is announced as joined.
func (s *Session) onDataOpen(mem *core.Member, dc core.DataChannel) {
	if !s.mesh.MarkDataReady(mem, dc) {
		if !s.mesh.Current(mem) {
			_ = dc.Close()
		}
		return
	}
	if s.mesh.InCohort(mem.ID()) {
		s.evaluateReady()
		return
	}
	log.Info().Str("module", "app.mesh").Str("member", string(mem.ID())).Msg("member joined")
	s.events.memberJoined(mem.ID())
}
