package main

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/app/mesh"
	"github.com/dkeye/Mesh/internal/domain"
)

type ping struct {
	Nonce string    `json:"nonce"`
	Sent  time.Time `json:"sent"`
}

type processed struct {
	ProcessedData json.RawMessage `json:"processedData"`
}

func newPing() ping { return ping{Nonce: uuid.NewString(), Sent: time.Now()} }

// wireDemo answers pings, greets every member once the mesh is ready and
// logs what the relay sends back.
func wireDemo(s *mesh.Session) {
	s.OnPeerMessage("ping", func(from domain.MemberID, data json.RawMessage) {
		if err := s.SendToPeer(from, "pong", data); err != nil {
			log.Warn().Err(err).Str("member", string(from)).Msg("pong")
		}
	})
	s.OnPeerMessage("pong", func(from domain.MemberID, data json.RawMessage) {
		var p ping
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("member", string(from)).Msg("bad pong")
			return
		}
		log.Info().Str("member", string(from)).Str("nonce", p.Nonce).Dur("rtt", time.Since(p.Sent)).Msg("pong")
	})

	s.OnControlMessage("pong", func(data json.RawMessage) {
		log.Info().RawJSON("data", data).Msg("relay: pong")
	})
	s.OnControlMessage("broadcastedFromServer", func(data json.RawMessage) {
		var p processed
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Msg("bad relay broadcast")
			return
		}
		log.Info().RawJSON("processed", p.ProcessedData).Msg("relay: broadcast")
	})
	s.OnControlMessage("newMember", func(data json.RawMessage) {
		log.Info().RawJSON("data", data).Msg("relay: new member")
	})
	s.OnControlMessage("memberLeft", func(data json.RawMessage) {
		log.Info().RawJSON("data", data).Msg("relay: member left")
	})

	s.OnReady(func() {
		log.Info().Str("self", string(s.ID())).Strs("members", memberStrings(s.Members())).Msg("mesh ready")
		if err := s.SendToServer("ping", newPing()); err != nil {
			log.Warn().Err(err).Msg("server ping")
		}
		if err := s.SendToServer("processThenBroadcast", "some data"); err != nil {
			log.Warn().Err(err).Msg("server process")
		}
		res, err := s.Broadcast("ping", newPing())
		if err != nil {
			log.Warn().Err(err).Msg("ping broadcast")
			return
		}
		log.Info().Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("ping broadcast")
	})
	s.OnMemberJoined(func(id domain.MemberID) {
		log.Info().Str("member", string(id)).Msg("member joined")
		if err := s.SendToPeer(id, "ping", newPing()); err != nil {
			log.Warn().Err(err).Str("member", string(id)).Msg("ping")
		}
	})
	s.OnMemberLeft(func(id domain.MemberID) {
		log.Info().Str("member", string(id)).Msg("member left")
	})
	s.OnError(func(err error) {
		log.Debug().Err(err).Msg("mesh condition")
	})
}

func memberStrings(ids []domain.MemberID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
