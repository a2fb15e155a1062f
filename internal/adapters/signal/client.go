package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// OwnerURL and ClientURL build the two endpoint addresses from a server base URL.
func OwnerURL(base string) string {
	return strings.TrimRight(base, "/") + "/ws"
}

func ClientURL(base string, code domain.RoomCode) string {
	return strings.TrimRight(base, "/") + "/ws/" + string(code)
}

// Dial opens a signaling WebSocket from the peer side. The caller drives it
// with Run.
func Dial(ctx context.Context, url string, opts Options) (*WsSignalConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "signal").Str("url", url).Msg("dialed signaling server")
	return newWsSignalConn(ws, opts), nil
}
