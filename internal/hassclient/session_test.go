package hassclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hassws/internal/protocol"
	"hassws/internal/transport/faketransport"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func authRequiredFrame(t *testing.T) []byte {
	return mustJSON(t, map[string]any{"type": protocol.TypeAuthRequired})
}

func authOKFrame(t *testing.T) []byte {
	return mustJSON(t, map[string]any{"type": protocol.TypeAuthOK})
}

func authInvalidFrame(t *testing.T, msg string) []byte {
	return mustJSON(t, map[string]any{"type": protocol.TypeAuthInvalid, "message": msg})
}

func resultFrame(t *testing.T, id int64, success bool, result any) []byte {
	m := map[string]any{"type": protocol.TypeResult, "id": id, "success": success}
	if result != nil {
		b := mustJSON(t, result)
		m["result"] = json.RawMessage(b)
	}
	return mustJSON(t, m)
}

func pongFrame(t *testing.T, id int64) []byte {
	return mustJSON(t, map[string]any{"type": protocol.TypePong, "id": id})
}

// sentCommandID polls conn until a sent frame of the given command type
// appears, returning its wire id. Used when a test needs to respond to a
// command whose id it cannot predict without racing the handshake.
func sentCommandID(t *testing.T, conn *faketransport.Conn, commandType string) int64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, raw := range conn.SentSnapshot() {
			var probe struct {
				ID   int64  `json:"id"`
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == commandType {
				return probe.ID
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %q command observed within deadline", commandType)
	return 0
}

func newHappyConn(t *testing.T) *faketransport.Conn {
	conn := faketransport.New()
	conn.PushServerMessage(authRequiredFrame(t))
	conn.PushServerMessage(authOKFrame(t))
	return conn
}

func TestConnectHappyPath(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())

	ok, err := sess.Connect(context.Background(), "ws://test/api/websocket", "TOKEN")
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if !ok {
		t.Fatal("Connect returned false, want true")
	}
	if sess.State() != StateReady {
		t.Fatalf("state = %v, want Ready", sess.State())
	}
}

func TestConnectAuthInvalid(t *testing.T) {
	conn := faketransport.New()
	conn.PushServerMessage(authRequiredFrame(t))
	conn.PushServerMessage(authInvalidFrame(t, "bad token"))
	sess := New(faketransport.Dialer(conn), DefaultConfig())

	ok, err := sess.Connect(context.Background(), "ws://test/api/websocket", "WRONG")
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if ok {
		t.Fatal("Connect returned true, want false on auth_invalid")
	}
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %v, want Disconnected after rejected auth", sess.State())
	}
}

func TestConnectRejectsEmptyArguments(t *testing.T) {
	sess := New(faketransport.Dialer(faketransport.New()), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "", "TOKEN"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if _, err := sess.Connect(context.Background(), "ws://test", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestConnectAlreadyConnected(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("err = %v, want ErrAlreadyConnected", err)
	}
}

func TestPingPong(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	go func() {
		id := sentCommandID(t, conn, protocol.TypePing)
		conn.PushServerMessage(pongFrame(t, id))
	}()

	if ok := sess.Ping(context.Background(), time.Second); !ok {
		t.Fatal("Ping returned false, want true")
	}
}

func TestPingTimeout(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if ok := sess.Ping(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("Ping returned true, want false on timeout (no server reply)")
	}
}

func TestOutOfOrderReplyRoutedToOwnCaller(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	go func() {
		id := sentCommandID(t, conn, protocol.TypeGetConfig)
		// A stray reply for an id nobody registered must be dropped, not
		// delivered to the caller awaiting id.
		conn.PushServerMessage(resultFrame(t, 999999, false, nil))
		conn.PushServerMessage(resultFrame(t, id, true, protocol.HassConfig{
			LocationName: "Home",
			Version:      "2024.1.0",
		}))
	}()

	cfg, err := sess.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.LocationName != "Home" {
		t.Fatalf("cfg.LocationName = %q, want Home", cfg.LocationName)
	}
}

func TestCallServiceSuccess(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	go func() {
		id := sentCommandID(t, conn, protocol.TypeCallService)
		conn.PushServerMessage(resultFrame(t, id, true, map[string]any{}))
	}()

	ok, err := sess.CallService(context.Background(), "light", "turn_on", map[string]any{"entity_id": "light.x"})
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if !ok {
		t.Fatal("CallService returned false, want true")
	}
}

func TestGetStatesBulkLoadAtConnect(t *testing.T) {
	conn := faketransport.New()
	conn.PushServerMessage(authRequiredFrame(t))
	conn.PushServerMessage(authOKFrame(t))

	cfg := DefaultConfig()
	cfg.GetStatesOnConnect = true
	sess := New(faketransport.Dialer(conn), cfg)

	done := make(chan struct{})
	var ok bool
	var connErr error
	go func() {
		ok, connErr = sess.Connect(context.Background(), "ws://test", "TOKEN")
		close(done)
	}()

	id := sentCommandID(t, conn, protocol.TypeGetStates)
	states := make([]protocol.HassState, 19)
	for i := range states {
		states[i] = protocol.HassState{EntityID: "sensor.x" + string(rune('a'+i)), State: "on"}
	}
	conn.PushServerMessage(resultFrame(t, id, true, states))

	<-done
	if connErr != nil {
		t.Fatalf("Connect error: %v", connErr)
	}
	if !ok {
		t.Fatal("Connect returned false")
	}
	defer sess.Close()

	got := sess.States()
	if len(got) != 19 {
		t.Fatalf("len(States()) = %d, want 19", len(got))
	}
}

func TestCloseDuringPendingCallSurfacesClosed(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resultCh := make(chan error, 1)
	go func() {
		_, err := sess.CallService(context.Background(), "light", "turn_on", nil)
		resultCh <- err
	}()

	// Give the call time to register before closing underneath it; no
	// server reply is ever pushed.
	sentCommandID(t, conn, protocol.TypeCallService)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-resultCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not unblock after Close")
	}
}

func TestImplicitSubscribeFailureSurfacesFromConnect(t *testing.T) {
	conn := faketransport.New()
	conn.PushServerMessage(authRequiredFrame(t))
	conn.PushServerMessage(authOKFrame(t))

	cfg := DefaultConfig()
	cfg.SubscribeEvents = true
	sess := New(faketransport.Dialer(conn), cfg)

	done := make(chan struct{})
	var ok bool
	var connErr error
	go func() {
		ok, connErr = sess.Connect(context.Background(), "ws://test", "TOKEN")
		close(done)
	}()

	id := sentCommandID(t, conn, protocol.TypeSubscribeEvent)
	conn.PushServerMessage(resultFrame(t, id, false, nil))

	<-done
	if ok {
		t.Fatal("Connect returned true, want false on implicit subscribe failure")
	}
	if !errors.Is(connErr, ErrSubscribeFailed) {
		t.Fatalf("err = %v, want ErrSubscribeFailed", connErr)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := sess.Close(); err != nil {
			t.Fatalf("Close()[%d] = %v, want nil", i, err)
		}
	}
}

func TestOperationsBeforeConnectSurfaceNotConnected(t *testing.T) {
	sess := New(faketransport.Dialer(faketransport.New()), DefaultConfig())

	if _, err := sess.GetConfig(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("GetConfig err = %v, want ErrNotConnected", err)
	}
	if _, err := sess.ReadEvent(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ReadEvent err = %v, want ErrNotConnected", err)
	}
}

func TestOperationsAfterCloseSurfaceClosed(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := sess.GetConfig(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetConfig err = %v, want ErrClosed", err)
	}
	if _, err := sess.ReadEvent(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReadEvent err = %v, want ErrClosed", err)
	}
}

func TestMalformedJSONDoesNotKillReader(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	conn.PushServerMessage([]byte(`{not valid json`))
	conn.PushServerMessage([]byte(`{"type":"result","id":999,`)) // truncated

	go func() {
		id := sentCommandID(t, conn, protocol.TypeGetConfig)
		conn.PushServerMessage(resultFrame(t, id, true, protocol.HassConfig{LocationName: "Still Alive"}))
	}()

	cfg, err := sess.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig after malformed frames: %v", err)
	}
	if cfg.LocationName != "Still Alive" {
		t.Fatalf("cfg.LocationName = %q, want %q", cfg.LocationName, "Still Alive")
	}
}

func TestReadEvent(t *testing.T) {
	conn := newHappyConn(t)
	sess := New(faketransport.Dialer(conn), DefaultConfig())
	if _, err := sess.Connect(context.Background(), "ws://test", "TOKEN"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	ev := mustJSON(t, map[string]any{
		"type": protocol.TypeEvent,
		"event": map[string]any{
			"event_type": "state_changed",
			"origin":     "LOCAL",
			"time_fired": time.Now().UTC(),
			"data":       map[string]any{"entity_id": "light.x"},
		},
	})
	conn.PushServerMessage(ev)

	rec, err := sess.ReadEvent(context.Background())
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if rec.EventType != "state_changed" {
		t.Fatalf("EventType = %q, want state_changed", rec.EventType)
	}
}
