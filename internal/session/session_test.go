package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mossy-p/collab-signaling/config"
	"github.com/mossy-p/collab-signaling/internal/bus"
	"github.com/mossy-p/collab-signaling/internal/registry"
	"github.com/mossy-p/collab-signaling/internal/router"
	"github.com/mossy-p/collab-signaling/internal/screenshare"
	"github.com/mossy-p/collab-signaling/internal/store"
	"github.com/mossy-p/collab-signaling/internal/whiteboard"
)

func testDeps() (Deps, *bus.MemoryBus, *registry.Registry) {
	mem := store.NewMemory()
	b := bus.NewMemory()
	limits := config.LimitConfig{
		RateCeiling:    30,
		RateWindow:     time.Second,
		MaxMessage:     100 * 1024,
		MaxDraw:        2 * 1024 * 1024,
		MaxObject:      5 * 1024 * 1024,
		MaxImageObject: 10 * 1024 * 1024,
	}
	batch := config.BatchConfig{
		Threshold:     15,
		FlushInterval: 100 * time.Millisecond,
		MaxPerFlush:   30,
		ReplayPace:    time.Millisecond,
	}
	reg := registry.New(20, nil)
	return Deps{
		Bus:            b,
		Router:         router.New(b, limits),
		Registry:       reg,
		Whiteboard:     whiteboard.NewLog(mem, time.Hour),
		ScreenShare:    screenshare.NewManager(mem, time.Hour),
		Limits:         limits,
		Batch:          batch,
		CleanupTimeout: 500 * time.Millisecond,
	}, b, reg
}

// newJoinedSession builds a session already in the Joined state,
// without a real socket; outbound frames land in s.send.
func newJoinedSession(deps Deps, room string) *Session {
	s := New(nil, room, deps)
	s.state.Store(int32(StateJoined))
	return s
}

// observer subscribes to the room and collects delivered frames.
func observe(t *testing.T, b *bus.MemoryBus, room, subID string) <-chan []byte {
	t.Helper()
	frames := make(chan []byte, 64)
	if err := b.JoinGroup(context.Background(), room, subID, func(frame []byte) {
		frames <- frame
	}); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	return frames
}

func waitFrame(t *testing.T, frames <-chan []byte) map[string]any {
	t.Helper()
	select {
	case frame := <-frames:
		var out map[string]any
		if err := json.Unmarshal(frame, &out); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return out
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered")
		return nil
	}
}

func ownFrame(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case data := <-s.send:
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode own frame: %v", err)
		}
		return out
	case <-time.After(time.Second):
		t.Fatalf("no frame queued for session")
		return nil
	}
}

func TestJoin_AssignsUIDAndBroadcasts(t *testing.T) {
	deps, b, _ := testDeps()
	s := newJoinedSession(deps, "demo")
	frames := observe(t, b, "demo", "observer")

	s.handleFrame(context.Background(), []byte(`{"type":"join","uid":"alice","room":"demo"}`))

	if s.UserID() != "alice" {
		t.Fatalf("uid = %q", s.UserID())
	}
	out := waitFrame(t, frames)
	if out["type"] != "user-joined" || out["uid"] != "alice" {
		t.Errorf("broadcast = %v", out)
	}

	// First write wins: a second join must not rename the session.
	s.handleFrame(context.Background(), []byte(`{"type":"join","uid":"mallory","room":"demo"}`))
	if s.UserID() != "alice" {
		t.Errorf("uid changed to %q", s.UserID())
	}
}

func TestHandleFrame_UnknownTypeRejected(t *testing.T) {
	deps, b, _ := testDeps()
	s := newJoinedSession(deps, "demo")
	frames := observe(t, b, "demo", "observer")

	s.handleFrame(context.Background(), []byte(`{"type":"teleport","from":"alice"}`))

	out := ownFrame(t, s)
	if out["type"] != "error" {
		t.Fatalf("reply = %v", out)
	}
	select {
	case frame := <-frames:
		t.Fatalf("unknown kind reached the bus: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleFrame_RateLimited(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Limits.RateCeiling = 2
	deps.Router = router.New(deps.Bus, deps.Limits)
	s := newJoinedSession(deps, "demo")

	for i := 0; i < 2; i++ {
		s.handleFrame(context.Background(), []byte(`{"type":"mic-active","from":"alice"}`))
	}
	s.handleFrame(context.Background(), []byte(`{"type":"mic-active","from":"alice"}`))

	out := ownFrame(t, s)
	if out["type"] != "error" || out["message"] != "rate limit exceeded" {
		t.Fatalf("reply = %v", out)
	}
}

func TestHandleFrame_InvalidSenderRejected(t *testing.T) {
	deps, _, _ := testDeps()
	s := newJoinedSession(deps, "demo")

	s.handleFrame(context.Background(), []byte(`{"type":"mic-active","from":"bad sender!"}`))
	out := ownFrame(t, s)
	if out["type"] != "error" {
		t.Fatalf("reply = %v", out)
	}
}

func TestHandleFrame_Oversized(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Limits.MaxMessage = 64
	deps.Router = router.New(deps.Bus, deps.Limits)
	s := newJoinedSession(deps, "demo")

	frame := fmt.Sprintf(`{"type":"offer","from":"alice","sdp":%q}`, strings.Repeat("v", 128))
	s.handleFrame(context.Background(), []byte(frame))
	out := ownFrame(t, s)
	if out["type"] != "error" || out["message"] != "message too large" {
		t.Fatalf("reply = %v", out)
	}
}

func TestScreenShare_ConflictRepliesToRequesterOnly(t *testing.T) {
	deps, b, _ := testDeps()
	alice := newJoinedSession(deps, "demo")
	bob := newJoinedSession(deps, "demo")
	frames := observe(t, b, "demo", "observer")

	alice.handleFrame(context.Background(), []byte(`{"type":"screen-share-start","from":"alice"}`))
	out := waitFrame(t, frames)
	if out["type"] != "screen-share-started" || out["sharing_user"] != "alice" {
		t.Fatalf("broadcast = %v", out)
	}

	bob.handleFrame(context.Background(), []byte(`{"type":"screen-share-start","from":"bob"}`))
	reply := ownFrame(t, bob)
	if reply["type"] != "screen-share-error" || reply["current_sharing_user"] != "alice" {
		t.Fatalf("reply = %v", reply)
	}
	select {
	case frame := <-frames:
		t.Fatalf("conflict leaked to the room: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}

	// Stop by the wrong user is rejected, stop by the owner broadcasts.
	bob.handleFrame(context.Background(), []byte(`{"type":"screen-share-stop","from":"bob"}`))
	if reply := ownFrame(t, bob); reply["type"] != "screen-share-error" {
		t.Fatalf("reply = %v", reply)
	}
	alice.handleFrame(context.Background(), []byte(`{"type":"screen-share-stop","from":"alice"}`))
	out = waitFrame(t, frames)
	if out["type"] != "screen-share-stopped" {
		t.Fatalf("broadcast = %v", out)
	}
}

func TestWhiteboard_ObjectLifecycleStored(t *testing.T) {
	deps, b, _ := testDeps()
	s := newJoinedSession(deps, "demo")
	frames := observe(t, b, "demo", "observer")
	ctx := context.Background()

	s.handleFrame(ctx, []byte(`{"type":"whiteboard-object","from":"alice","data":{"eventType":"object-added","object":{"id":"r1","type":"rect","left":1}}}`))
	waitFrame(t, frames) // relayed to the room

	s.handleFrame(ctx, []byte(`{"type":"whiteboard-object","from":"alice","data":{"eventType":"object-modified","object":{"id":"r1","type":"rect","left":7}}}`))
	waitFrame(t, frames)

	replay, err := deps.Whiteboard.Replay(ctx, "demo")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replay) != 2 { // object + marker
		t.Fatalf("replay frames = %d", len(replay))
	}

	s.handleFrame(ctx, []byte(`{"type":"whiteboard-clear","from":"alice"}`))
	waitFrame(t, frames)
	replay, _ = deps.Whiteboard.Replay(ctx, "demo")
	if len(replay) != 1 {
		t.Fatalf("replay after clear = %d frames", len(replay))
	}
}

func TestDeliver_FiltersUnicastForOthers(t *testing.T) {
	deps, _, _ := testDeps()
	s := newJoinedSession(deps, "demo")
	s.assignUserID("carol")

	s.deliver([]byte(`{"type":"offer","from":"alice","_target":"bob"}`))
	select {
	case data := <-s.send:
		t.Fatalf("frame for bob delivered to carol: %s", data)
	case <-time.After(50 * time.Millisecond):
	}

	s.deliver([]byte(`{"type":"offer","from":"alice","_target":"carol"}`))
	if out := ownFrame(t, s); out["type"] != "offer" {
		t.Fatalf("frame = %v", out)
	}

	s.deliver([]byte(`{"type":"user-joined","uid":"dave"}`))
	if out := ownFrame(t, s); out["type"] != "user-joined" {
		t.Fatalf("frame = %v", out)
	}
}

func TestCandidates_FlushedBeforeCriticalFrame(t *testing.T) {
	deps, b, _ := testDeps()
	s := newJoinedSession(deps, "demo")
	frames := observe(t, b, "demo", "observer")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.handleFrame(ctx, []byte(`{"type":"ice-candidate","from":"alice","to":"bob"}`))
	}
	select {
	case frame := <-frames:
		t.Fatalf("candidate dispatched before flush: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}

	s.handleFrame(ctx, []byte(`{"type":"offer","from":"alice","to":"bob"}`))
	types := []string{}
	for i := 0; i < 4; i++ {
		out := waitFrame(t, frames)
		types = append(types, out["type"].(string))
	}
	want := []string{"ice-candidate", "ice-candidate", "ice-candidate", "offer"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("delivery order = %v", types)
		}
	}
}
