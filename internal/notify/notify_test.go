package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"gangs/internal/gang"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestHubBroadcastAndPresence(t *testing.T) {
	hub := NewHub(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	player := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, player)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return hub.IsOnline(player) })
	if hub.IsOnline(uuid.New()) {
		t.Fatalf("stranger reported online")
	}

	gangID := uuid.New()
	hub.Notify(gang.Event{Kind: gang.EventJoined, GangID: gangID, Player: player})

	var msg Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "gang_event" {
		t.Fatalf("type = %q", msg.Type)
	}
	var ev gang.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Kind != gang.EventJoined || ev.GangID != gangID {
		t.Fatalf("event = %+v", ev)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return !hub.IsOnline(player) })
	if hub.Online() != 0 {
		t.Fatalf("online = %d", hub.Online())
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b int
	m := Multi{
		gang.NotifierFunc(func(gang.Event) { a++ }),
		nil,
		gang.NotifierFunc(func(gang.Event) { b++ }),
	}
	m.Notify(gang.Event{Kind: gang.EventCreated})
	m.Notify(gang.Event{Kind: gang.EventDisbanded})
	if a != 2 || b != 2 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}
