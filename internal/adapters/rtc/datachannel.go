package rtc

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DataChannel carries JSON envelopes as text messages.
type DataChannel struct {
	dc   *webrtc.DataChannel
	peer domain.PeerID
}

func wrapDataChannel(dc *webrtc.DataChannel, peer domain.PeerID) *DataChannel {
	dc.OnError(func(err error) {
		log.Error().Err(err).Str("module", "webrtc").Str("peer_id", string(peer)).Str("label", dc.Label()).Msg("data channel")
	})
	return &DataChannel{dc: dc, peer: peer}
}

func (d *DataChannel) Label() string { return d.dc.Label() }

func (d *DataChannel) Send(f core.Frame) error { return d.dc.SendText(string(f)) }

func (d *DataChannel) IsOpen() bool { return d.dc.ReadyState() == webrtc.DataChannelStateOpen }

func (d *DataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }

func (d *DataChannel) OnMessage(fn func(core.Frame)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) { fn(core.Frame(msg.Data)) })
}

func (d *DataChannel) OnClose(fn func()) { d.dc.OnClose(fn) }

func (d *DataChannel) Close() error { return d.dc.Close() }
