package mesh

import (
	"fmt"
	"time"

	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

func (s *Session) handleControl(f core.Frame) {
	msg, err := codec.DecodeControl(f)
	if err != nil {
		s.report(err)
		return
	}
	if msg.User != nil {
		s.dispatchControl(*msg.User)
		return
	}
	s.handleAdmin(*msg.Admin)
}

func (s *Session) handleAdmin(a codec.Admin) {
	switch a.Kind {
	case codec.InitInfo:
		var d codec.InitInfoData
		if s.decodeAdmin(a, &d) {
			s.handleInitInfo(d)
		}
	case codec.SDPOffer:
		var d codec.SDPData
		if s.decodeAdmin(a, &d) {
			s.handleOffer(d)
		}
	case codec.SDPAnswer:
		var d codec.SDPData
		if s.decodeAdmin(a, &d) {
			s.handleAnswer(d)
		}
	case codec.ICECandidate:
		var d codec.CandidateData
		if s.decodeAdmin(a, &d) {
			s.handleCandidate(d)
		}
	case codec.Disconnect:
		var d codec.DisconnectData
		if s.decodeAdmin(a, &d) {
			s.handleDisconnect(d)
		}
	case codec.Heartbeat, codec.Ready, codec.Forward:
		// relay-bound kinds
		log.Debug().Str("module", "app.mesh").Str("admin_kind", string(a.Kind)).Msg("ignoring relay-bound admin message")
	default:
		s.report(fmt.Errorf("%w: admin %q", ErrUnhandledKind, a.Kind))
	}
}

func (s *Session) decodeAdmin(a codec.Admin, v any) bool {
	if err := a.Decode(v); err != nil {
		s.report(err)
		return false
	}
	return true
}

func (s *Session) handleInitInfo(d codec.InitInfoData) {
	if err := d.ID.Validate(); err != nil {
		s.report(fmt.Errorf("%w: initInfo: %v", codec.ErrMalformedMessage, err))
		return
	}
	if s.mesh.HasCohort() {
		log.Warn().Str("module", "app.mesh").Str("self", string(s.ID())).Str("id", string(d.ID)).Msg("duplicate initInfo ignored")
		return
	}
	s.setID(d.ID)

	cohort := domain.NewCohort(d.ID, d.Members)
	s.mesh.SetCohort(cohort)
	log.Info().Str("module", "app.mesh").Str("self", string(d.ID)).Int("cohort", cohort.Len()).Int64("hb_ms", d.HBInterval).Msg("init info")

	if d.HBInterval > 0 {
		s.startHeartbeat(time.Duration(d.HBInterval) * time.Millisecond)
	}
	for _, id := range cohort.IDs() {
		if _, ok := s.mesh.Get(id); !ok {
			s.initiate(id)
		}
	}
	s.evaluateReady()
}

func (s *Session) handleDisconnect(d codec.DisconnectData) {
	if _, ok := s.mesh.Remove(d.ID); !ok {
		log.Debug().Str("module", "app.mesh").Str("member", string(d.ID)).Msg("disconnect for unknown member")
		return
	}
	log.Info().Str("module", "app.mesh").Str("member", string(d.ID)).Msg("member left")
	s.events.memberLeft(d.ID)
	s.evaluateReady()
}

// evaluateReady flips the session to ready the first time the barrier holds.
func (s *Session) evaluateReady() {
	if s.ready.Load() || !s.mesh.ComputeReady() {
		return
	}
	s.ready.Store(true)
	log.Info().Str("module", "app.mesh").Str("self", string(s.ID())).Int("members", len(s.mesh.ReadyMembers())).Msg("mesh ready")
	s.sendAdmin(codec.Ready, nil)
	s.events.ready()
}
