package rtc

import (
	"context"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const opusFrame = 20 * time.Millisecond

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilentTrack is a local Opus track for headless peers without a microphone.
type SilentTrack struct {
	*webrtc.TrackLocalStaticSample
}

func NewSilentTrack(id, streamID string) (*SilentTrack, error) {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		id, streamID,
	)
	if err != nil {
		return nil, err
	}
	return &SilentTrack{TrackLocalStaticSample: t}, nil
}

// Run writes silence until ctx is done.
func (t *SilentTrack) Run(ctx context.Context) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Msg("silent track write")
				return
			}
		}
	}
}

// Drain reads a remote track until it ends, handing each packet to fn.
func Drain(track *webrtc.TrackRemote, fn func(*rtp.Packet)) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("track_id", track.ID()).Msg("remote track ended")
			return
		}
		if fn != nil {
			fn(pkt)
		}
	}
}
