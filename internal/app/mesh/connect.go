package mesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/rs/zerolog/log"
)

// Connect dials the relay, wires pion peer connections and starts the
// session loop. Each setup func runs before the first relay frame is read,
// so handlers registered there see initInfo. The session ends when ctx is
// cancelled, Close is called or the relay connection drops.
func Connect(ctx context.Context, relayURL string, cfg Config, opts signal.Options, setup ...func(*Session)) (*Session, error) {
	conn, err := signal.Dial(ctx, relayURL, opts)
	if err != nil {
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	if len(cfg.WebRTC.ICEServers) == 0 {
		cfg.WebRTC.ICEServers = rtc.DefaultWebRTCConfig().ICEServers
	}
	s := New(conn, rtc.NewFactory(nil), cfg)
	for _, fn := range setup {
		fn(s)
	}
	conn.Start(ctx, s.HandleControlFrame, func(err error) {
		log.Info().Err(err).Str("module", "app.mesh").Msg("relay connection closed")
		s.Close()
	})
	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("module", "app.mesh").Msg("session loop")
		}
	}()
	return s, nil
}
