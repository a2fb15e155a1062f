package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

func (c *WsSignalConn) keepalive() {
	if c.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(c.opts.ReadLimit)
	}
	if c.opts.PongWait <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
}

// pingTicker never fires when keepalive is off.
func (c *WsSignalConn) pingTicker() *time.Ticker {
	if c.opts.PingPeriod <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(c.opts.PingPeriod)
}

func (c *WsSignalConn) write(kind int, data []byte) error {
	if c.opts.WriteWait > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(kind, data)
}

func (c *WsSignalConn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.write(websocket.CloseMessage, msg)
}
