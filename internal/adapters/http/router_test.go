package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/metrics"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	srv  *httptest.Server
	orch *orch.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Mode:       "test",
		ReadLimit:  32768,
		PingPeriod: time.Minute,
		WriteWait:  time.Second,
		SendBuffer: 16,
	}
	reg := prometheus.NewRegistry()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
		Metrics:  metrics.New(reg),
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, reg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{srv: srv, orch: o}
}

func (h *harness) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func expectClosed(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected closure, got %s", data)
	}
}

func write(t *testing.T, ws *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

func TestOwnerAndClientHandshake(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "/ws")
	created, ok := read(t, owner).(protocol.RoomCreated)
	if !ok || !created.RoomCode.Valid() || created.YourID == "" {
		t.Fatalf("room-created = %+v", created)
	}

	client := h.dial(t, "/ws/"+string(created.RoomCode))
	nc, ok := read(t, owner).(protocol.NewClient)
	if !ok || nc.ClientID == "" {
		t.Fatalf("new-client = %+v", nc)
	}
	oi, ok := read(t, client).(protocol.OwnerInfo)
	if !ok || oi.OwnerID != created.YourID || oi.YourID != nc.ClientID {
		t.Fatalf("owner-info = %+v", oi)
	}

	write(t, owner, protocol.AuthSuccess{ClientID: nc.ClientID, PlayerName: "Steve"})
	as, ok := read(t, client).(protocol.AuthSuccess)
	if !ok || as.PlayerName != "Steve" {
		t.Fatalf("auth-success = %+v", as)
	}

	write(t, client, protocol.Auth{PlayerCode: "1234", ClientID: oi.OwnerID})
	auth, ok := read(t, owner).(protocol.Auth)
	if !ok || auth.PlayerCode != "1234" {
		t.Fatalf("auth = %+v", auth)
	}

	// Owner kicks the client and hears the echo.
	write(t, owner, protocol.Disconnect{ClientID: nc.ClientID})
	expectClosed(t, client)
	d, ok := read(t, owner).(protocol.Disconnect)
	if !ok || d.ClientID != nc.ClientID {
		t.Fatalf("disconnect = %+v", d)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t, "/ws/ZZZZZZ")
	e, ok := read(t, client).(protocol.Error)
	if !ok || e.Message != protocol.MsgRoomNotFound {
		t.Fatalf("got %+v", e)
	}
	expectClosed(t, client)
}

func TestOwnerLeavingClosesRoom(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "/ws")
	created := read(t, owner).(protocol.RoomCreated)

	clients := []*websocket.Conn{
		h.dial(t, "/ws/"+string(created.RoomCode)),
		h.dial(t, "/ws/"+string(created.RoomCode)),
	}
	for _, c := range clients {
		read(t, owner)
		read(t, c)
	}

	owner.Close()
	for _, c := range clients {
		if _, ok := read(t, c).(protocol.RoomClosed); !ok {
			t.Fatal("expected room-closed")
		}
		expectClosed(t, c)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.orch.Registry.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInvalidRoomCodeRejected(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/ws/abc", "/ws/ABC123", "/api/rooms/toolong1"} {
		resp, err := http.Get(h.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
}

func TestRoomInfoHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "/ws")
	created := read(t, owner).(protocol.RoomCreated)
	h.dial(t, "/ws/"+string(created.RoomCode))
	read(t, owner)

	var info roomResponse
	getJSON(t, h.srv.URL+"/api/rooms/"+string(created.RoomCode), &info)
	if !info.Exists || info.Clients != 1 || info.RoomCode != created.RoomCode {
		t.Fatalf("room info = %+v", info)
	}
	getJSON(t, h.srv.URL+"/api/rooms/QQQQQQ", &info)
	if info.Exists {
		t.Fatal("unknown room reported as existing")
	}

	var health struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}
	getJSON(t, h.srv.URL+"/healthz", &health)
	if health.Status != "ok" || health.Rooms != 1 {
		t.Fatalf("health = %+v", health)
	}

	resp, err := http.Get(h.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "voicemesh_rooms_active 1") {
		t.Fatalf("metrics missing room gauge:\n%s", body)
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}
