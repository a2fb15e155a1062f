package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/bridge"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

var errNoRemoteDescription = errors.New("no remote description")

// fakeNet connects fake media connections in memory. Two ends connect once
// both hold a remote description and at least one remote candidate.
type fakeNet struct {
	conns map[[2]domain.PeerID]*fakeConn
}

func newFakeNet() *fakeNet {
	return &fakeNet{conns: make(map[[2]domain.PeerID]*fakeConn)}
}

type fakeFactory struct {
	net   *fakeNet
	local func() domain.PeerID
	made  int
}

func (f *fakeFactory) NewConnection(peer domain.PeerID) (core.MediaConnection, error) {
	f.made++
	local := f.local()
	c := &fakeConn{net: f.net, local: local, remote: peer}
	f.net.conns[[2]domain.PeerID{local, peer}] = c
	return c, nil
}

type fakeConn struct {
	net           *fakeNet
	local, remote domain.PeerID

	ops       []string
	tracks    int
	created   []*fakeDC
	accepted  []*fakeDC
	localDesc bool
	remoteSet bool
	added     []webrtc.ICECandidateInit
	connected bool
	closed    bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onDC    func(core.DataChannel)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) gather() {
	if c.onICE != nil {
		c.onICE(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%s->%s", c.local, c.remote)})
	}
}

func (c *fakeConn) AddLocalTrack(webrtc.TrackLocal) error {
	c.ops = append(c.ops, "track")
	c.tracks++
	return nil
}

func (c *fakeConn) CreateDataChannel(label string) (core.DataChannel, error) {
	c.ops = append(c.ops, "datachannel")
	dc := &fakeDC{label: label}
	c.created = append(c.created, dc)
	return dc, nil
}

func (c *fakeConn) OnDataChannel(fn func(core.DataChannel)) { c.onDC = fn }

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.ops = append(c.ops, "offer")
	if c.closed {
		return webrtc.SessionDescription{}, errors.New("closed")
	}
	c.localDesc = true
	c.gather()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer from " + string(c.local)}, nil
}

func (c *fakeConn) ApplyOffer(sd webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.ops = append(c.ops, "apply-offer")
	if sd.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("not an offer: %s", sd.Type)
	}
	c.remoteSet = true
	c.localDesc = true
	c.gather()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer from " + string(c.local)}, nil
}

func (c *fakeConn) ApplyAnswer(sd webrtc.SessionDescription) error {
	c.ops = append(c.ops, "apply-answer")
	if !c.localDesc || sd.Type != webrtc.SDPTypeAnswer {
		return errors.New("unexpected answer")
	}
	c.remoteSet = true
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if !c.remoteSet {
		return errNoRemoteDescription
	}
	c.added = append(c.added, ci)
	c.net.tryConnect(c)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { c.onTrack = fn }

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

func (c *fakeConn) state(s webrtc.PeerConnectionState) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for _, dc := range append(append([]*fakeDC(nil), c.created...), c.accepted...) {
		_ = dc.Close()
	}
	key := [2]domain.PeerID{c.local, c.remote}
	if c.net.conns[key] == c {
		delete(c.net.conns, key)
	}
	if other := c.net.conns[[2]domain.PeerID{c.remote, c.local}]; other != nil && other.connected && !other.closed {
		other.connected = false
		other.state(webrtc.PeerConnectionStateDisconnected)
	}
	c.state(webrtc.PeerConnectionStateClosed)
	return nil
}

func (n *fakeNet) tryConnect(c *fakeConn) {
	other := n.conns[[2]domain.PeerID{c.remote, c.local}]
	if other == nil || other.closed || c.connected {
		return
	}
	if !c.remoteSet || !other.remoteSet || len(c.added) == 0 || len(other.added) == 0 {
		return
	}
	c.connected, other.connected = true, true
	c.state(webrtc.PeerConnectionStateConnected)
	other.state(webrtc.PeerConnectionStateConnected)
	for _, pair := range [][2]*fakeConn{{c, other}, {other, c}} {
		from, to := pair[0], pair[1]
		if from.tracks > 0 && to.onTrack != nil {
			to.onTrack(nil, nil)
		}
		for _, dc := range from.created {
			remote := &fakeDC{label: dc.label, peer: dc}
			dc.peer = remote
			to.accepted = append(to.accepted, remote)
			if to.onDC != nil {
				to.onDC(remote)
			}
			dc.setOpen()
			remote.setOpen()
		}
	}
}

// fakeDC behaves like a pion channel: a late OnOpen still fires for an open
// channel, but messages arriving with no OnMessage handler are dropped.
type fakeDC struct {
	label   string
	peer    *fakeDC
	open    bool
	closed  bool
	dropped int
	sent    int

	onOpen  func()
	onMsg   func(core.Frame)
	onClose func()
}

func (d *fakeDC) Label() string { return d.label }

func (d *fakeDC) IsOpen() bool { return d.open }

func (d *fakeDC) setOpen() {
	if d.closed {
		return
	}
	d.open = true
	if d.onOpen != nil {
		d.onOpen()
	}
}

func (d *fakeDC) Send(f core.Frame) error {
	if !d.open || d.peer == nil {
		return errors.New("channel not open")
	}
	d.sent++
	d.peer.deliver(append(core.Frame(nil), f...))
	return nil
}

func (d *fakeDC) deliver(f core.Frame) {
	if d.closed {
		return
	}
	if d.onMsg == nil {
		d.dropped++
		return
	}
	d.onMsg(f)
}

func (d *fakeDC) OnOpen(fn func()) {
	d.onOpen = fn
	if d.open {
		fn()
	}
}

func (d *fakeDC) OnMessage(fn func(core.Frame)) { d.onMsg = fn }

func (d *fakeDC) OnClose(fn func()) { d.onClose = fn }

func (d *fakeDC) Close() error {
	if d.closed {
		return nil
	}
	d.closed, d.open = true, false
	if d.onClose != nil {
		d.onClose()
	}
	if d.peer != nil {
		_ = d.peer.Close()
	}
	return nil
}

// wsLink stands in for one WebSocket between a session and the router.
// Frames and closure are delivered in order through the session inbox.
type wsLink struct {
	h      *harness
	conn   *app.Conn
	sess   *Session
	closed bool
}

func (l *wsLink) TrySend(f core.Frame) error {
	if l.closed {
		return errors.New("socket closed")
	}
	l.h.orch.Route(l.conn, append(core.Frame(nil), f...))
	return nil
}

func (l *wsLink) Close() { l.shutdown() }

func (l *wsLink) shutdown() {
	if l.closed {
		return
	}
	l.closed = true
	l.sess.SignalClosed()
	l.h.orch.Disconnect(l.conn)
}

// serverEnd is the router's view of a wsLink.
type serverEnd struct{ l *wsLink }

func (s serverEnd) TrySend(f core.Frame) error {
	if s.l.closed {
		return errors.New("socket closed")
	}
	s.l.sess.Deliver(append(core.Frame(nil), f...))
	return nil
}

func (s serverEnd) Close() { s.l.shutdown() }

type member struct {
	sess    *Session
	link    *wsLink
	factory *fakeFactory
	events  []Event
}

type harness struct {
	t       *testing.T
	orch    *orch.Orchestrator
	net     *fakeNet
	world   *bridge.World
	members []*member
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:     t,
		orch:  &orch.Orchestrator{Registry: app.NewRegistry(), Policy: app.SimplePolicy{}},
		net:   newFakeNet(),
		world: bridge.NewWorld(),
	}
}

func (h *harness) attach(role domain.Role, id string, build func(ws core.SignalConnection, f core.MediaFactory, sink Option) *Session) *member {
	m := &member{link: &wsLink{h: h}}
	m.factory = &fakeFactory{net: h.net}
	m.sess = build(m.link, m.factory, WithEventSink(func(e Event) { m.events = append(m.events, e) }))
	m.factory.local = func() domain.PeerID { return m.sess.id }
	m.link.sess = m.sess
	m.link.conn = app.NewConn(domain.PeerID(id), role, serverEnd{m.link})
	h.members = append(h.members, m)
	return m
}

func (h *harness) startOwner(opts ...Option) *member {
	m := h.attach(domain.RoleOwner, "owner", func(ws core.SignalConnection, f core.MediaFactory, sink Option) *Session {
		return NewOwner(ws, f, h.world, append(opts, sink)...)
	})
	h.orch.ConnectOwner(m.link.conn)
	h.settle()
	return m
}

func (h *harness) join(owner *member, id string, code domain.PlayerCode, opts ...Option) *member {
	m := h.attach(domain.RoleClient, id, func(ws core.SignalConnection, f core.MediaFactory, sink Option) *Session {
		return NewPlayer(ws, f, code, append(opts, sink)...)
	})
	_ = h.orch.ConnectClient(m.link.conn, owner.sess.roomCode)
	h.settle()
	return m
}

// onboard brings an in-game player into the room with a fresh code.
func (h *harness) onboard(owner *member, id, name string) *member {
	h.world.Join(name)
	code, err := h.world.GenerateAndAssignCode(name)
	if err != nil {
		h.t.Fatal(err)
	}
	return h.join(owner, id, code)
}

// settle pumps every session until no work is left anywhere.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 1000; i++ {
		n := 0
		for _, m := range h.members {
			n += m.sess.drain()
		}
		if n == 0 {
			return
		}
	}
	h.t.Fatal("sessions did not settle")
}

func eventsOf[T Event](m *member) []T {
	var out []T
	for _, e := range m.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func (m *member) clear() { m.events = nil }
