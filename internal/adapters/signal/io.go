package signal

import (
	"context"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Run pumps the socket until it is closed by either side or ctx ends.
// onFrame is called from the read loop, one frame at a time.
func (c *WsSignalConn) Run(ctx context.Context, onFrame func(core.Frame)) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	err := c.readPump(onFrame)
	c.Close()
	<-done
	return err
}

func (c *WsSignalConn) readPump(onFrame func(core.Frame)) error {
	c.keepalive()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || !websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "signal").Msg("readPump done")
				return nil
			}
			return err
		}
		onFrame(core.Frame(data))
	}
}

// writePump is the only writer of the socket. It exits after the send queue
// is closed and drained, or on the first write error, and closes the socket.
func (c *WsSignalConn) writePump() {
	ticker := c.pingTicker()
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.writeClose()
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}
