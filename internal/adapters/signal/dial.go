package signal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Dial opens the websocket to the relay. Call Start to begin pumping.
func Dial(ctx context.Context, url string, opts Options) (*WsControlConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "adapters.signal").Str("url", url).Msg("relay connected")
	return newWsControlConn(ws, opts), nil
}
