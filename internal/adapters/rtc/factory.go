package rtc

import (
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type APIFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
}

// ModAPIFunc may adjust the engines before the API is built.
type ModAPIFunc func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewAPIFactory(cfg *config.Config, pionLevel zerolog.Level, mod ModAPIFunc) (*APIFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	s := webrtc.SettingEngine{LoggerFactory: NewPionLogger(log.Logger, pionLevel)}

	if mod != nil {
		mod(m, i, &s)
	}

	return &APIFactory{
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		conf: Configuration(cfg.ICEServers),
	}, nil
}

func Configuration(servers []config.ICEServer) webrtc.Configuration {
	c := webrtc.Configuration{ICEServers: []webrtc.ICEServer{}}
	for _, server := range servers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return c
}

func (a *APIFactory) NewConnection(peer domain.PeerID) (core.MediaConnection, error) {
	pc, err := a.api.NewPeerConnection(a.conf)
	if err != nil {
		return nil, err
	}
	return newConnection(pc, peer), nil
}
