// Command peer is a headless voice room participant. As owner it hosts a
// room for an in-memory game world; as player it joins one with a code.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicemesh/internal/adapters/rtc"
	wsignal "github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/bridge"
	"github.com/dkeye/voicemesh/internal/client"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/domain"
)

func main() {
	fs := pflag.NewFlagSet("peer", pflag.ExitOnError)
	file := fs.String("config", config.DefaultFile(), "config file")
	fs.String("server", "", "signaling server base URL, e.g. ws://localhost:8080")
	fs.String("role", "", "owner or client")
	fs.String("room", "", "room code to join")
	fs.String("code", "", "player code given in game")
	fs.String("name", "", "display name of the owner")
	fs.String("log-level", "", "log level")
	players := fs.StringSlice("players", nil, "in-game players to seed when hosting")
	_ = fs.Parse(os.Args[1:])

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	loader := config.NewLoader(*file)
	for key, flag := range map[string]string{
		"peer.server_url":  "server",
		"peer.role":        "role",
		"peer.room_code":   "room",
		"peer.player_code": "code",
		"peer.name":        "name",
		"log_level":        "log-level",
	} {
		if f := fs.Lookup(flag); f != nil && f.Changed {
			if err := loader.BindFlag(key, f); err != nil {
				log.Fatal().Err(err).Msg("bind flag")
			}
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, *players)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, client.ErrRoomClosed) {
		log.Fatal().Err(err).Msg("peer stopped")
	}
	log.Info().Msg("peer exited")
}

func run(ctx context.Context, cfg *config.Config, players []string) error {
	role := domain.Role(cfg.Peer.Role)
	if role != domain.RoleOwner && role != domain.RoleClient {
		return errors.New("role must be owner or client")
	}

	factory, err := rtc.NewAPIFactory(cfg, cfg.Level(), nil)
	if err != nil {
		return err
	}
	track, err := rtc.NewSilentTrack("audio", "voicemesh")
	if err != nil {
		return err
	}

	url := wsignal.OwnerURL(cfg.Peer.ServerURL)
	if role == domain.RoleClient {
		code := domain.RoomCode(strings.ToUpper(cfg.Peer.RoomCode))
		if !code.Valid() {
			return errors.New("a valid room code is required to join")
		}
		url = wsignal.ClientURL(cfg.Peer.ServerURL, code)
	}
	ws, err := wsignal.Dial(ctx, url, wsignal.OptionsFrom(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	created := make(chan domain.RoomCode, 1)
	opts := []client.Option{
		client.WithEventSink(sink(ctx, created)),
		client.WithLocalTracks(track),
	}

	var (
		sess  *client.Session
		world *bridge.World
	)
	if role == domain.RoleOwner {
		world = bridge.NewWorld()
		for _, name := range players {
			world.Join(name)
		}
		sess = client.NewOwner(ws, factory, world, append(opts, client.WithName(cfg.Peer.Name))...)
		g.Go(func() error { return hostGame(ctx, world, created) })
		g.Go(func() error {
			pushPositions(ctx.Done(), sess, world, cfg.Peer.PositionPeriod)
			return nil
		})
	} else {
		sess = client.NewPlayer(ws, factory, domain.PlayerCode(cfg.Peer.PlayerCode), opts...)
	}

	g.Go(func() error {
		defer cancel()
		return sess.Run(ctx)
	})
	g.Go(func() error {
		err := ws.Run(ctx, sess.Deliver)
		sess.SignalClosed()
		return err
	})
	g.Go(func() error {
		track.Run(ctx)
		return nil
	})
	go newConsole(sess, world).run(os.Stdin)

	return g.Wait()
}

// hostGame hands every player who comes online a join code once the room exists.
func hostGame(ctx context.Context, world *bridge.World, created <-chan domain.RoomCode) error {
	var room domain.RoomCode
	select {
	case <-ctx.Done():
		return nil
	case room = <-created:
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-world.Events():
			if e.Kind != bridge.PlayerJoined {
				log.Info().Str("player", e.Name).Msg("player left the game")
				continue
			}
			code, err := bridge.NotifyPlayerCode(world, room, e.Name)
			if err != nil {
				log.Warn().Err(err).Str("player", e.Name).Msg("could not hand out code")
				continue
			}
			log.Info().Str("player", e.Name).Str("code", string(code)).Msg("player code issued")
		}
	}
}

func sink(ctx context.Context, created chan<- domain.RoomCode) client.EventSink {
	return func(e client.Event) {
		switch e := e.(type) {
		case client.RoomCreated:
			log.Info().Str("room", string(e.Code)).Msg("room created, share the code with players")
			select {
			case created <- e.Code:
			default:
			}
		case client.IdentityAssigned:
			log.Info().Str("id", string(e.ID)).Str("name", e.Name).Msg("joined room")
		case client.StreamAdded:
			go receive(ctx, e.Peer, e.Track)
		case client.ChatMessage:
			log.Info().Str("from", e.SenderName).Str("text", e.Text).Msg("chat")
		case client.PeerDiscovered:
			log.Info().Str("peer_id", string(e.Player.ID)).Str("name", e.Player.Name).Msg("peer discovered")
		case client.PeerLeft:
			log.Info().Str("peer_id", string(e.Peer)).Msg("peer left")
		case client.PeerStateChanged:
			log.Debug().Str("peer_id", string(e.Peer)).Str("state", e.State.String()).Msg("peer state")
		case client.ErrorEvent:
			log.Warn().Err(e.Err).Str("peer_id", string(e.Peer)).Msg(e.Message)
		case client.RoomClosed:
			log.Info().Msg("room closed")
		}
	}
}

func receive(ctx context.Context, peer domain.PeerID, track *webrtc.TrackRemote) {
	if track == nil {
		return
	}
	var packets atomic.Int64
	rtc.Drain(track, func(*rtp.Packet) { packets.Add(1) })
	if ctx.Err() == nil {
		log.Info().Str("peer_id", string(peer)).Int64("packets", packets.Load()).Msg("remote audio ended")
	}
}
