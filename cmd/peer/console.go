package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/bridge"
	"github.com/dkeye/voicemesh/internal/domain"
)

// room is the part of a session the console drives.
type room interface {
	SendChat(text string)
	Kick(id domain.PeerID)
	SetGameSettings(gs domain.GameSettings)
}

// console reads stdin. Plain lines are chat; a leading slash is a command.
// Game commands stand in for the game itself and need a hosted world.
//
//	/join NAME              bring a player online in the game
//	/leave NAME             take a player offline
//	/pose NAME X Y Z [YAW PITCH]
//	/range N                set the audio range for everyone
//	/kick ID                remove a peer from the room
type console struct {
	room     room
	world    *bridge.World
	settings domain.GameSettings
}

func newConsole(r room, world *bridge.World) *console {
	return &console{room: r, world: world, settings: domain.DefaultGameSettings()}
}

func (c *console) run(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		c.handle(sc.Text())
	}
}

func (c *console) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		c.room.SendChat(line)
		return
	}
	args := strings.Fields(line[1:])
	if len(args) < 2 {
		log.Warn().Str("line", line).Msg("command needs an argument")
		return
	}
	if c.world == nil && args[0] != "kick" {
		log.Warn().Str("command", args[0]).Msg("game commands need a hosted room")
		return
	}
	switch args[0] {
	case "join":
		c.world.Join(args[1])
	case "leave":
		c.world.Leave(args[1])
	case "pose":
		pose, err := parsePose(args[2:])
		if err != nil {
			log.Warn().Err(err).Str("line", line).Msg("bad pose")
			return
		}
		c.world.SetPose(args[1], pose)
	case "range":
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			log.Warn().Str("line", line).Msg("range must be a positive number")
			return
		}
		c.settings.AudioRange = n
		c.room.SetGameSettings(c.settings)
	case "kick":
		c.room.Kick(domain.PeerID(args[1]))
	default:
		log.Warn().Str("command", args[0]).Msg("unknown command")
	}
}

func parsePose(args []string) (domain.Pose, error) {
	if len(args) != 3 && len(args) != 5 {
		return domain.Pose{}, strconv.ErrSyntax
	}
	v := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return domain.Pose{}, err
		}
		v[i] = f
	}
	p := domain.Pose{Location: domain.Vec3{X: v[0], Y: v[1], Z: v[2]}}
	if len(v) == 5 {
		p.Rotation = domain.Rotation{Y: v[3], X: v[4]}
	}
	return p, nil
}

type positionPusher interface {
	PushPositions(poses map[string]domain.Pose)
}

// pushPositions sends the game's poses to the room every period until done is closed.
func pushPositions(done <-chan struct{}, room positionPusher, world *bridge.World, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if poses := world.Poses(); len(poses) > 0 {
				room.PushPositions(poses)
			}
		}
	}
}
