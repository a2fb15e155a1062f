package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait(),
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

// WsSignalConn is one WebSocket with a bounded outbound queue. Frames queued
// before Close are still written; the socket is closed after the last one.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	opts Options

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, opts Options) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, opts.SendBuffer),
		opts: opts,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

type SignalWSController struct {
	Orch  *orch.Orchestrator
	Opts  Options
	NewID func() domain.PeerID
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:  o,
		Opts:  opts,
		NewID: func() domain.PeerID { return domain.PeerID(uuid.NewString()) },
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleOwner upgrades the request and opens a room for it.
func (ctl *SignalWSController) HandleOwner(ctx context.Context, c *gin.Context) {
	ctl.handle(ctx, c, domain.RoleOwner, "")
}

// HandleClient upgrades the request and joins it to the room named by code.
func (ctl *SignalWSController) HandleClient(ctx context.Context, c *gin.Context, code domain.RoomCode) {
	ctl.handle(ctx, c, domain.RoleClient, code)
}

func (ctl *SignalWSController) handle(ctx context.Context, c *gin.Context, role domain.Role, code domain.RoomCode) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sig := newWsSignalConn(ws, ctl.Opts)
	conn := app.NewConn(ctl.NewID(), role, sig)
	log.Info().Str("module", "signal").Str("conn_id", string(conn.ID)).Str("role", string(role)).Str("room", string(code)).Msg("new WS connection")

	switch role {
	case domain.RoleOwner:
		ctl.Orch.ConnectOwner(conn)
	case domain.RoleClient:
		if err := ctl.Orch.ConnectClient(conn, code); err != nil {
			// The error envelope is already queued; flush it and let the socket go.
			go func() {
				sig.writePump()
				ctl.Orch.Disconnect(conn)
			}()
			return
		}
	}

	go func() {
		if err := sig.Run(ctx, func(f core.Frame) { ctl.Orch.Route(conn, f) }); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(conn.ID)).Msg("socket closed unexpectedly")
		}
		ctl.Orch.Disconnect(conn)
		log.Info().Str("module", "signal").Str("conn_id", string(conn.ID)).Msg("WS connection done")
	}()
}
