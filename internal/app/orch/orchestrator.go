package orch

import (
	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/metrics"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the message router. It owns no goroutines; every method is
// called from the read pump of the connection concerned.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
	Limiter  *app.RateLimiter
	Metrics  *metrics.Metrics
}

func (o *Orchestrator) send(to *app.Conn, msg protocol.Message, sender domain.PeerID) {
	frame, err := protocol.Encode(msg, sender)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(msg.Type())).Msg("encode")
		return
	}
	o.deliver(to, frame)
}

// deliver queues a frame and applies the backpressure policy if the queue is full.
func (o *Orchestrator) deliver(to *app.Conn, frame core.Frame) bool {
	err := to.Signal.TrySend(frame)
	if err == nil {
		return true
	}
	log.Warn().Err(err).Str("module", "orch").Str("conn_id", string(to.ID)).Msg("send failed")
	if o.Policy == nil {
		return false
	}
	switch o.Policy.OnBackPressure(to) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("conn_id", string(to.ID)).Msg("kicking slow connection")
		to.Signal.Close()
	case app.DropFrame, app.NoAction:
	}
	return false
}
