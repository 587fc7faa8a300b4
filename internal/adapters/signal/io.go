package signal

import (
	"context"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Start runs the read and write pumps. Every received frame goes to sink in
// arrival order; onClose is called once when the read side stops.
func (c *WsControlConn) Start(ctx context.Context, sink func(core.Frame), onClose func(error)) {
	go c.writePump(ctx)
	go c.readPump(ctx, sink, onClose)
}

func (c *WsControlConn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "adapters.signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "adapters.signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (c *WsControlConn) readPump(ctx context.Context, sink func(core.Frame), onClose func(error)) {
	var readErr error
	defer func() {
		log.Info().Str("module", "adapters.signal").Msg("readPump closing")
		c.Close()
		if onClose != nil {
			onClose(readErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			readErr = ctx.Err()
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "adapters.signal").Msg("readPump read error")
				}
				readErr = err
				return
			}
			sink(core.Frame(data))
		}
	}
}
