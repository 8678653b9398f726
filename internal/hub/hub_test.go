package hub

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/presence"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestHub(t *testing.T, ringTimeout time.Duration) *Hub {
	t.Helper()
	calls := NewCallHandler(ringTimeout, nil, zap.NewNop())
	h := NewHub(presence.NewRegistry(), nil, calls, HubConfig{}, zap.NewNop())
	t.Cleanup(h.Stop)
	return h
}

// newTestClient builds a socket without a websocket; tests read egress directly.
func newTestClient(h *Hub) *Client {
	c := newClient(h, nil)
	h.connect(c)
	return c
}

func drain(c *Client) []event.WsEvent {
	var out []event.WsEvent
	for {
		select {
		case ev := <-c.egress:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func named(evs []event.WsEvent, name string) []event.WsEvent {
	var out []event.WsEvent
	for _, ev := range evs {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func waitFor(t *testing.T, c *Client, name string) event.WsEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.egress:
			if ev.Event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func decode[T any](t *testing.T, ev event.WsEvent) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		t.Fatalf("decode %s: %v", ev.Event, err)
	}
	return v
}

func send(h *Hub, c *Client, name string, payload any) {
	h.handleEvent(event.New(name, payload), c)
}

func TestSecondTabDoesNotRebroadcast(t *testing.T) {
	h := newTestHub(t, 0)
	observer := newTestClient(h)
	h.Join(observer, "carol")
	drain(observer)

	a1 := newTestClient(h)
	h.Join(a1, "alice")

	got := drain(observer)
	online := named(got, event.EventOnlineUsers)
	if len(online) != 1 || !reflect.DeepEqual(decode[[]string](t, online[0]), []string{"alice", "carol"}) {
		t.Fatalf("observer expected one onlineUsers [alice carol], got %+v", got)
	}
	status := named(got, event.EventUserStatusChange)
	if len(status) != 1 || decode[event.UserStatusChange](t, status[0]) != (event.UserStatusChange{UserID: "alice", IsOnline: true}) {
		t.Fatalf("observer expected alice online status, got %+v", status)
	}
	if n := len(named(drain(a1), event.EventUserStatusChange)); n != 0 {
		t.Error("joining socket must not receive its own status change")
	}

	a2 := newTestClient(h)
	h.Join(a2, "alice")
	if got := drain(observer); len(got) != 0 {
		t.Errorf("second tab must not broadcast, observer got %+v", got)
	}
	if n := len(named(drain(a2), event.EventOnlineUsers)); n != 1 {
		t.Errorf("second tab should get the online set once, got %d", n)
	}
	if got := drain(a1); len(got) != 0 {
		t.Errorf("first tab must not be notified, got %+v", got)
	}

	h.Disconnect(a1)
	if got := drain(observer); len(got) != 0 {
		t.Errorf("closing one of two tabs must not broadcast, got %+v", got)
	}
	if !h.IsOnline("alice") {
		t.Fatal("alice still has a tab open")
	}

	h.Disconnect(a2)
	got = drain(observer)
	online = named(got, event.EventOnlineUsers)
	if len(online) != 1 || !reflect.DeepEqual(decode[[]string](t, online[0]), []string{"carol"}) {
		t.Errorf("last tab close should broadcast [carol], got %+v", got)
	}
	status = named(got, event.EventUserStatusChange)
	if len(status) != 1 || decode[event.UserStatusChange](t, status[0]).IsOnline {
		t.Errorf("expected alice offline status, got %+v", status)
	}
}

func TestRejoinSameUserIsIdempotent(t *testing.T) {
	h := newTestHub(t, 0)
	c := newTestClient(h)

	send(h, c, event.EventJoin, "alice")
	drain(c)
	send(h, c, event.EventJoin, event.JoinPayload{UserID: "alice"})

	if got := h.ConnectionCount("alice"); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}
	if n := len(named(drain(c), event.EventOnlineUsers)); n != 1 {
		t.Errorf("re-join should resend the online set, got %d", n)
	}
}

func TestDisconnectDetachesUntrackedSocket(t *testing.T) {
	h := newTestHub(t, 0)
	c := newClient(h, nil)

	// joined before the hub ever tracked the socket
	send(h, c, event.EventJoin, "alice")
	if !h.IsOnline("alice") {
		t.Fatal("alice should be online after join")
	}

	h.Disconnect(c)
	if h.IsOnline("alice") || h.ConnectionCount("alice") != 0 {
		t.Fatal("disconnect must take alice offline")
	}

	// a late join or register for the dead socket is ignored
	h.Join(c, "alice")
	if h.IsOnline("alice") {
		t.Error("closed socket must not join again")
	}
	if h.connect(c) {
		t.Error("closed socket must not be tracked again")
	}
	if total, _ := h.SocketCount(); total != 0 {
		t.Errorf("expected no open sockets, got %d", total)
	}
}

func TestUserOfflineKeepsSocket(t *testing.T) {
	h := newTestHub(t, 0)
	c := newTestClient(h)
	h.Join(c, "alice")

	send(h, c, event.EventUserOffline, "mallory")
	if !h.IsOnline("alice") {
		t.Fatal("offline for another user must be ignored")
	}

	send(h, c, event.EventUserOffline, "alice")
	if h.IsOnline("alice") {
		t.Error("alice should be offline")
	}
	if c.IsClosed() || c.UserID() != "" {
		t.Error("socket stays open but anonymous after user-offline")
	}
	if total, joined := h.SocketCount(); total != 1 || joined != 0 {
		t.Errorf("expected 1 open, 0 joined, got %d/%d", total, joined)
	}
}

func TestJoinAsAnotherUserLeavesOldIdentity(t *testing.T) {
	h := newTestHub(t, 0)
	c := newTestClient(h)

	h.Join(c, "alice")
	h.Join(c, "bob")

	if h.IsOnline("alice") {
		t.Error("alice should have gone offline")
	}
	if !reflect.DeepEqual(h.OnlineUserIDs(), []string{"bob"}) {
		t.Errorf("expected [bob], got %v", h.OnlineUserIDs())
	}
}

func TestEventsRequireJoin(t *testing.T) {
	h := newTestHub(t, 0)
	c := newTestClient(h)

	send(h, c, event.EventTyping, event.TypingPayload{ReceiverID: "bob", IsTyping: true})
	errs := named(drain(c), event.EventError)
	if len(errs) != 1 || decode[event.ErrorPayload](t, errs[0]).Code != "not_joined" {
		t.Errorf("expected not_joined error, got %+v", errs)
	}

	send(h, c, event.EventCallUser, event.CallUserPayload{To: "bob"})
	if n := len(named(drain(c), event.EventCallError)); n != 1 {
		t.Errorf("expected call-error for anonymous caller, got %d", n)
	}
}

func TestTypingRelay(t *testing.T) {
	h := newTestHub(t, 0)
	alice, bob := newTestClient(h), newTestClient(h)
	h.Join(alice, "alice")
	h.Join(bob, "bob")
	drain(alice)
	drain(bob)

	send(h, alice, event.EventTyping, event.TypingPayload{ReceiverID: "bob", IsTyping: true, SenderName: "Alice"})

	got := named(drain(bob), event.EventUserTyping)
	if len(got) != 1 {
		t.Fatalf("expected one userTyping, got %d", len(got))
	}
	want := event.UserTyping{SenderID: "alice", IsTyping: true, SenderName: "Alice"}
	if p := decode[event.UserTyping](t, got[0]); p != want {
		t.Errorf("expected %+v, got %+v", want, p)
	}

	// offline receiver: silently dropped, nothing comes back to the sender
	send(h, alice, event.EventTyping, event.TypingPayload{ReceiverID: "nobody", IsTyping: true})
	if got := drain(alice); len(got) != 0 {
		t.Errorf("sender must not hear about an offline receiver, got %+v", got)
	}
}

func TestNotificationRelay(t *testing.T) {
	h := newTestHub(t, 0)
	alice, bob := newTestClient(h), newTestClient(h)
	h.Join(alice, "alice")
	h.Join(bob, "bob")
	drain(bob)

	send(h, alice, event.EventNewNotification, event.NotificationPayload{
		RecipientID:  "bob",
		Notification: json.RawMessage(`{"title":"New answer"}`),
	})

	got := named(drain(bob), event.EventNotification)
	if len(got) != 1 || string(got[0].Payload) != `{"title":"New answer"}` {
		t.Errorf("expected the notification body relayed as-is, got %+v", got)
	}
}

func TestSendToUserReachesEveryTab(t *testing.T) {
	h := newTestHub(t, 0)
	t1, t2 := newTestClient(h), newTestClient(h)
	h.Join(t1, "alice")
	h.Join(t2, "alice")
	drain(t1)
	drain(t2)

	if !h.Notify("alice", event.EventNotification, map[string]string{"k": "v"}) {
		t.Fatal("online user must be reachable")
	}
	if len(drain(t1)) != 1 || len(drain(t2)) != 1 {
		t.Error("both tabs should receive the event")
	}
	if h.Notify("nobody", event.EventNotification, nil) {
		t.Error("offline user must report unreachable")
	}
}

func TestUnknownEvent(t *testing.T) {
	h := newTestHub(t, 0)
	c := newTestClient(h)

	send(h, c, "sendMessage", nil)
	errs := named(drain(c), event.EventError)
	if len(errs) != 1 || decode[event.ErrorPayload](t, errs[0]).Code != "unknown_event" {
		t.Errorf("expected unknown_event error, got %+v", errs)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"https://evil.example", false},
		{"", true},
	}
	for _, tc := range tests {
		r := newRequestWithOrigin(tc.origin)
		if got := check(r); got != tc.want {
			t.Errorf("origin %q: expected %v, got %v", tc.origin, tc.want, got)
		}
	}

	if !originChecker([]string{"*"})(newRequestWithOrigin("https://any.example")) {
		t.Error("wildcard should allow any origin")
	}
}
