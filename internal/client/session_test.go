package client

import (
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/protocol"
)

func encode(t *testing.T, msg protocol.Message, sender domain.PeerID) []byte {
	t.Helper()
	f, err := protocol.Encode(msg, sender)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestOwnerCreatesRoom(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()

	created := eventsOf[RoomCreated](owner)
	if len(created) != 1 || !created[0].Code.Valid() || created[0].ID != "owner" {
		t.Fatalf("room-created events = %+v", created)
	}
}

func TestPlayerJoinsOwner(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")

	ids := eventsOf[IdentityAssigned](p1)
	if len(ids) != 1 || ids[0].ID != "c1" || ids[0].Name != "Steve" {
		t.Fatalf("identity events = %+v", ids)
	}
	if got := eventsOf[IdentityAssigned](owner); len(got) != 0 {
		t.Fatalf("owner got identity events %+v", got)
	}

	op, ok := owner.sess.mgr.Peer("c1")
	if !ok || !op.Persistent || op.State != StateConnected {
		t.Fatalf("owner side peer = %+v", op)
	}
	pp, ok := p1.sess.mgr.Peer("owner")
	if !ok || !pp.Persistent || pp.State != StateConnected {
		t.Fatalf("player side peer = %+v", pp)
	}

	// The player's socket was released and the echo consumed.
	if !p1.link.closed {
		t.Fatal("player socket still open")
	}
	if len(owner.sess.expected) != 0 {
		t.Fatalf("expected-disconnect set not drained: %v", owner.sess.expected)
	}
	info, _ := h.orch.Registry.Info(owner.sess.roomCode)
	if info.Clients != 0 {
		t.Fatalf("registry clients = %d", info.Clients)
	}
	select {
	case <-p1.sess.Done():
		t.Fatal("player session ended")
	default:
	}

	if got := eventsOf[GameSettingUpdate](p1); len(got) != 1 || got[0].Settings != domain.DefaultGameSettings() {
		t.Fatalf("game settings = %+v", got)
	}
	if got := eventsOf[RoomStateReceived](p1); len(got) != 1 || len(got[0].Players) != 0 {
		t.Fatalf("room state = %+v", got)
	}
}

func TestInvalidPlayerCode(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	h.world.Join("Steve")
	p := h.join(owner, "c1", "0000")

	errs := eventsOf[ErrorEvent](p)
	if len(errs) != 1 || errs[0].Message != protocol.MsgInvalidPlayerCode {
		t.Fatalf("errors = %+v", errs)
	}
	select {
	case <-p.sess.Done():
	default:
		t.Fatal("rejected player session still running")
	}
	if !errors.Is(p.sess.err, ErrSignalingLost) {
		t.Fatalf("err = %v", p.sess.err)
	}
	if owner.sess.mgr.Len() != 0 {
		t.Fatal("owner opened a link for a rejected player")
	}
	if _, ok := h.orch.Registry.Member(owner.sess.roomCode, "c1"); ok {
		t.Fatal("rejected client still registered")
	}
}

func TestUnusablePlayerNameRejected(t *testing.T) {
	tests := []struct {
		name   string
		player string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("x", domain.MaxNameLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			owner := h.startOwner()
			p := h.onboard(owner, "c1", tt.player)

			errs := eventsOf[ErrorEvent](p)
			if len(errs) != 1 || errs[0].Message != protocol.MsgInvalidPlayerName {
				t.Fatalf("errors = %+v", errs)
			}
			if got := eventsOf[IdentityAssigned](p); len(got) != 0 {
				t.Fatalf("identity assigned: %+v", got)
			}
			if owner.sess.mgr.Len() != 0 || len(eventsOf[PeerDiscovered](owner)) != 0 {
				t.Fatal("owner linked a player with an unusable name")
			}
			select {
			case <-p.sess.Done():
			default:
				t.Fatal("rejected player session still running")
			}
		})
	}
}

func TestExpectedDisconnectIsConsumedOnce(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	h.onboard(owner, "c1", "Steve")

	owner.sess.expected["c1"] = struct{}{}
	owner.sess.Deliver(encode(t, protocol.Disconnect{ClientID: "c1"}, ""))
	h.settle()
	if _, ok := owner.sess.mgr.Peer("c1"); !ok {
		t.Fatal("expected disconnect tore the peer down")
	}

	owner.sess.Deliver(encode(t, protocol.Disconnect{ClientID: "c1"}, ""))
	h.settle()
	if _, ok := owner.sess.mgr.Peer("c1"); ok {
		t.Fatal("second disconnect did not tear the peer down")
	}
	if got := eventsOf[PeerLeft](owner); len(got) != 1 || got[0].Peer != "c1" {
		t.Fatalf("peer-left events = %+v", got)
	}
}

func TestMeshFormation(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	players := []*member{
		h.onboard(owner, "c1", "Steve"),
		h.onboard(owner, "c2", "Alex"),
		h.onboard(owner, "c3", "Herobrine"),
	}

	if n := owner.sess.mgr.Len(); n != len(players) {
		t.Fatalf("owner holds %d links, want %d", n, len(players))
	}
	for _, p := range players {
		if n := p.sess.mgr.Len(); n != len(players) {
			t.Fatalf("%s holds %d links, want %d", p.sess.id, n, len(players))
		}
		for _, peer := range p.sess.mgr.Peers() {
			if peer.State != StateConnected {
				t.Fatalf("%s -> %s is %s", p.sess.id, peer.ID, peer.State)
			}
		}
	}

	// The newest player learned about everyone already there.
	states := eventsOf[RoomStateReceived](players[2])
	if len(states) != 1 || len(states[0].Players) != 2 {
		t.Fatalf("room state for c3 = %+v", states)
	}
	// The first player heard about both newcomers.
	found := eventsOf[PeerDiscovered](players[0])
	if len(found) != 2 || found[0].Player.Name != "Alex" || found[1].Player.Name != "Herobrine" {
		t.Fatalf("discoveries for c1 = %+v", found)
	}
}

func TestChatReachesEveryoneElseOnce(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p2 := h.onboard(owner, "c2", "Alex")
	p3 := h.onboard(owner, "c3", "Herobrine")
	for _, m := range h.members {
		m.clear()
	}

	p1.sess.SendChat("hello")
	h.settle()

	if got := eventsOf[ChatMessage](p1); len(got) != 0 {
		t.Fatalf("sender got its own chat back: %+v", got)
	}
	for _, m := range []*member{owner, p2, p3} {
		got := eventsOf[ChatMessage](m)
		if len(got) != 1 || got[0].Text != "hello" || got[0].SenderName != "Steve" || got[0].SenderID != "c1" {
			t.Fatalf("%s chat = %+v", m.sess.id, got)
		}
	}

	owner.sess.SendChat("welcome")
	h.settle()
	for _, m := range []*member{p1, p2, p3} {
		got := eventsOf[ChatMessage](m)
		if last := got[len(got)-1]; last.Text != "welcome" || last.SenderName != domain.DefaultOwnerTag {
			t.Fatalf("%s owner chat = %+v", m.sess.id, last)
		}
	}
}

func TestStatusAndSettingsBroadcast(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p2 := h.onboard(owner, "c2", "Alex")
	for _, m := range h.members {
		m.clear()
	}

	p1.sess.SetStatus(domain.PlayerStatus{IsMuted: true})
	owner.sess.SetGameSettings(domain.GameSettings{AudioRange: 16})
	h.settle()

	for _, m := range []*member{owner, p2} {
		got := eventsOf[PlayerStatusUpdate](m)
		if len(got) != 1 || got[0].Peer != "c1" || !got[0].Status.IsMuted {
			t.Fatalf("%s status = %+v", m.sess.id, got)
		}
	}
	if got := eventsOf[PlayerStatusUpdate](p1); len(got) != 0 {
		t.Fatalf("status echoed to sender: %+v", got)
	}
	for _, m := range []*member{p1, p2} {
		got := eventsOf[GameSettingUpdate](m)
		if len(got) != 1 || got[0].Settings.AudioRange != 16 {
			t.Fatalf("%s settings = %+v", m.sess.id, got)
		}
	}
}

func TestPushPositions(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p1.clear()

	steve := domain.Pose{Location: domain.Vec3{X: 10}}
	alex := domain.Pose{Location: domain.Vec3{X: -10}}
	owner.sess.PushPositions(map[string]domain.Pose{"Steve": steve, "Alex": alex})
	h.settle()

	got := eventsOf[PositionsUpdate](p1)
	if len(got) != 1 {
		t.Fatalf("positions = %+v", got)
	}
	if got[0].Listener == nil || *got[0].Listener != steve {
		t.Fatalf("listener = %+v", got[0].Listener)
	}
	if len(got[0].Players) != 1 || got[0].Players["Alex"] != alex {
		t.Fatalf("players = %+v", got[0].Players)
	}
}

func TestOwnerLeavingEndsPlayers(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p2 := h.onboard(owner, "c2", "Alex")
	// Still on the socket, never authenticated.
	waiting := h.join(owner, "c3", "")

	owner.sess.Close()
	h.settle()

	for _, m := range []*member{p1, p2, waiting} {
		select {
		case <-m.sess.Done():
		default:
			t.Fatalf("%s still running", m.link.conn.ID)
		}
		if got := eventsOf[RoomClosed](m); len(got) != 1 {
			t.Fatalf("%s room-closed events = %d", m.link.conn.ID, len(got))
		}
		if !errors.Is(m.sess.err, ErrRoomClosed) {
			t.Fatalf("%s err = %v", m.link.conn.ID, m.sess.err)
		}
	}
	if h.orch.Registry.RoomCount() != 0 {
		t.Fatal("room still registered")
	}
}

func TestPersistentPeerLossIsAnnounced(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p2 := h.onboard(owner, "c2", "Alex")
	for _, m := range h.members {
		m.clear()
	}

	p2.sess.Close()
	h.settle()

	if got := eventsOf[PeerLeft](owner); len(got) != 1 || got[0].Peer != "c2" {
		t.Fatalf("owner peer-left = %+v", got)
	}
	if _, ok := p1.sess.mgr.Peer("c2"); ok {
		t.Fatal("c1 still linked to c2")
	}
	if n := p1.sess.mgr.Len(); n != 1 {
		t.Fatalf("c1 holds %d links", n)
	}
	if got := eventsOf[StreamRemoved](p1); len(got) != 1 || got[0].Peer != "c2" {
		t.Fatalf("c1 stream-removed = %+v", got)
	}
}

func TestOwnerKicksPlayer(t *testing.T) {
	h := newHarness(t)
	owner := h.startOwner()
	p1 := h.onboard(owner, "c1", "Steve")
	p2 := h.onboard(owner, "c2", "Alex")
	for _, m := range h.members {
		m.clear()
	}

	owner.sess.Kick("c2")
	h.settle()

	if _, ok := owner.sess.mgr.Peer("c2"); ok {
		t.Fatal("owner still linked to c2")
	}
	if got := eventsOf[PeerLeft](p1); len(got) != 1 || got[0].Peer != "c2" {
		t.Fatalf("c1 peer-left = %+v", got)
	}
	// c2 lost its only relay and its socket is long gone.
	select {
	case <-p2.sess.Done():
	default:
		t.Fatal("kicked player still running")
	}
}
