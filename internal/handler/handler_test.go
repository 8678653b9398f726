package handler

import (
	"Bridgeup/internal/db"
	"Bridgeup/internal/event"
	"Bridgeup/internal/hub"
	"Bridgeup/internal/middleware"
	"Bridgeup/internal/model"
	"Bridgeup/internal/presence"
	"Bridgeup/internal/service"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AuthClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func do(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json %q: %v", w.Body.String(), err)
	}
	return out
}

// -----------------------------------------------------------------
// Messages
// -----------------------------------------------------------------

type fakeMessageService struct {
	sendErr  error
	listErr  error
	sent     []string
	markRead []string
	modified int64
	messages []model.Message
}

func (f *fakeMessageService) Send(_ context.Context, senderID, receiverID, connectionID, content string) (*model.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	return &model.Message{ID: primitive.NewObjectID(), SenderID: senderID, ReceiverID: receiverID, ConnectionID: connectionID, Content: content}, nil
}

func (f *fakeMessageService) ListForConnection(context.Context, string, string) ([]model.Message, error) {
	return f.messages, f.listErr
}

func (f *fakeMessageService) MarkRead(_ context.Context, connectionID, readerID string, _ []string) (int64, error) {
	f.markRead = append(f.markRead, connectionID+"/"+readerID)
	return f.modified, nil
}

func (f *fakeMessageService) UnreadCount(context.Context, string) (int64, error) {
	return 4, nil
}

func (f *fakeMessageService) ConversationSummary(_ context.Context, connectionID, _ string) (*model.ConversationSummary, error) {
	return &model.ConversationSummary{ConnectionID: connectionID, UnreadCount: 2}, nil
}

func messageRouter(svc service.MessageService) *gin.Engine {
	r := gin.New()
	h := NewMessageHandler(svc, zap.NewNop())
	g := r.Group("/api/messages", middleware.AuthMiddleware(testSecret))
	g.POST("", h.SendMessage)
	g.GET("/connection/:connectionId", h.GetMessages)
	g.GET("/unread-count", h.GetUnreadCount)
	g.GET("/summary/:connectionId", h.GetMessageSummary)
	g.POST("/mark-read", h.MarkAsRead)
	return r
}

func TestSendMessageStatusCodes(t *testing.T) {
	connID := primitive.NewObjectID().Hex()
	tests := []struct {
		name string
		err  error
		body map[string]string
		want int
	}{
		{"created", nil, map[string]string{"receiverId": "bob", "content": "hi", "connectionId": connID}, http.StatusCreated},
		{"missing fields", nil, map[string]string{"receiverId": "bob"}, http.StatusBadRequest},
		{"no pairing", service.ErrForbidden, map[string]string{"receiverId": "bob", "content": "hi", "connectionId": connID}, http.StatusForbidden},
		{"store down", errors.New("boom"), map[string]string{"receiverId": "bob", "content": "hi", "connectionId": connID}, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := messageRouter(&fakeMessageService{sendErr: tc.err})
			w := do(t, r, http.MethodPost, "/api/messages", "alice", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.want != http.StatusCreated && decodeBody(t, w)["success"] != false {
				t.Error("error responses must carry success=false")
			}
		})
	}
}

func TestMessagesRequireToken(t *testing.T) {
	r := messageRouter(&fakeMessageService{})
	w := do(t, r, http.MethodGet, "/api/messages/unread-count", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetMessagesMarksConversationRead(t *testing.T) {
	connID := primitive.NewObjectID().Hex()
	svc := &fakeMessageService{messages: []model.Message{{Content: "a"}, {Content: "b"}}}
	r := messageRouter(svc)

	w := do(t, r, http.MethodGet, "/api/messages/connection/"+connID, "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", body["count"])
	}
	if len(svc.markRead) != 1 || svc.markRead[0] != connID+"/bob" {
		t.Errorf("listing should mark the reader's messages read, got %v", svc.markRead)
	}
}

func TestGetMessagesRejectsBadIDAndForbidden(t *testing.T) {
	r := messageRouter(&fakeMessageService{listErr: service.ErrForbidden})

	if w := do(t, r, http.MethodGet, "/api/messages/connection/not-an-id", "bob", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/messages/connection/"+primitive.NewObjectID().Hex(), "bob", nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without pairing, got %d", w.Code)
	}
}

func TestUnreadSummaryAndMarkRead(t *testing.T) {
	connID := primitive.NewObjectID().Hex()
	svc := &fakeMessageService{modified: 3}
	r := messageRouter(svc)

	body := decodeBody(t, do(t, r, http.MethodGet, "/api/messages/unread-count", "bob", nil))
	if body["count"] != float64(4) || body["unreadCount"] != float64(4) {
		t.Errorf("unexpected unread body %v", body)
	}

	body = decodeBody(t, do(t, r, http.MethodGet, "/api/messages/summary/"+connID, "bob", nil))
	if body["connectionId"] != connID || body["unreadCount"] != float64(2) {
		t.Errorf("unexpected summary body %v", body)
	}

	w := do(t, r, http.MethodPost, "/api/messages/mark-read", "bob", map[string]any{"connectionId": connID})
	if w.Code != http.StatusOK || decodeBody(t, w)["modifiedCount"] != float64(3) {
		t.Errorf("unexpected mark-read response %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/api/messages/mark-read", "bob", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("mark-read without connectionId should be 400, got %d", w.Code)
	}
}

// -----------------------------------------------------------------
// Calls, presence, health
// -----------------------------------------------------------------

type fakeCallHistory struct {
	records []model.CallRecord
}

func (f *fakeCallHistory) InsertCall(_ context.Context, rec *model.CallRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeCallHistory) History(_ context.Context, userID string, page int64) (*db.PaginatedResult[model.CallRecord], error) {
	var out []model.CallRecord
	for _, r := range f.records {
		if r.CallerID == userID || r.CalleeID == userID {
			out = append(out, r)
		}
	}
	return &db.PaginatedResult[model.CallRecord]{Data: out, Total: int64(len(out)), Page: page, PageSize: 20, TotalPages: 1}, nil
}

func newTestHub(t *testing.T) (*hub.Hub, *hub.CallHandler) {
	t.Helper()
	calls := hub.NewCallHandler(0, nil, zap.NewNop())
	h := hub.NewHub(presence.NewRegistry(), presence.NopMirror{}, calls, hub.HubConfig{}, zap.NewNop())
	t.Cleanup(h.Stop)
	return h, calls
}

func callRouter(t *testing.T) (*gin.Engine, *hub.CallHandler, *fakeCallHistory) {
	h, calls := newTestHub(t)
	history := &fakeCallHistory{}

	r := gin.New()
	vc := NewVideoCallHandler(calls, history, zap.NewNop())
	g := r.Group("/api/video-call", middleware.AuthMiddleware(testSecret))
	g.GET("/status/:callId", vc.GetCallStatus)
	g.GET("/history", vc.GetCallHistory)
	g.POST("/end/:callId", vc.EndCall)

	ph := NewPresenceHandler(h)
	r.GET("/api/presence/online", ph.GetOnlineUsers)
	r.GET("/api/presence/:userId", ph.GetUserPresence)

	mh := NewMonitorHandler(hub.NewMonitorService(h))
	r.GET("/api/health", mh.GetHealth)
	r.GET("/api/monitor/stats", mh.GetHubStats)
	return r, calls, history
}

func TestCallStatusAndEnd(t *testing.T) {
	r, calls, _ := callRouter(t)
	if _, err := calls.Registry().Start("k1", "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	if w := do(t, r, http.MethodGet, "/api/video-call/status/k1", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("participant should see status, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/video-call/status/k1", "mallory", nil); w.Code != http.StatusForbidden {
		t.Errorf("outsider should get 403, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/video-call/end/k1", "mallory", nil); w.Code != http.StatusForbidden {
		t.Errorf("outsider cannot end, got %d", w.Code)
	}

	health := decodeBody(t, do(t, r, http.MethodGet, "/api/health", "", nil))
	if health["activeCalls"] != float64(1) {
		t.Errorf("expected one active call in health, got %v", health)
	}

	if w := do(t, r, http.MethodPost, "/api/video-call/end/k1", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("participant should end the call, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodGet, "/api/video-call/status/k1", "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("ended call should be gone, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/video-call/end/k1", "bob", nil); w.Code != http.StatusNotFound {
		t.Errorf("ending twice should be 404, got %d", w.Code)
	}
}

func TestCallHistory(t *testing.T) {
	r, _, history := callRouter(t)
	history.records = []model.CallRecord{
		{CallID: "k1", CallerID: "alice", CalleeID: "bob", State: "ended"},
		{CallID: "k2", CallerID: "carol", CalleeID: "dave", State: "missed"},
	}

	body := decodeBody(t, do(t, r, http.MethodGet, "/api/video-call/history?page=1", "bob", nil))
	calls, _ := body["callHistory"].([]any)
	if len(calls) != 1 {
		t.Fatalf("expected only bob's call, got %v", body)
	}
	if w := do(t, r, http.MethodGet, "/api/video-call/history?page=0", "bob", nil); w.Code != http.StatusBadRequest {
		t.Errorf("page 0 should be rejected, got %d", w.Code)
	}
}

func TestPresenceEndpointsWhenNobodyIsOnline(t *testing.T) {
	r, _, _ := callRouter(t)

	body := decodeBody(t, do(t, r, http.MethodGet, "/api/presence/online", "", nil))
	if body["count"] != float64(0) {
		t.Errorf("expected nobody online, got %v", body)
	}
	body = decodeBody(t, do(t, r, http.MethodGet, "/api/presence/alice", "", nil))
	if body["isOnline"] != false || body["inCall"] != false {
		t.Errorf("unexpected presence %v", body)
	}

	stats := decodeBody(t, do(t, r, http.MethodGet, "/api/monitor/stats", "", nil))
	if stats["IsSuccess"] != true {
		t.Errorf("unexpected monitor body %v", stats)
	}
}

// -----------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------

type recordingNotifier struct {
	online map[string]bool
	got    []event.WsEvent
}

func (n *recordingNotifier) SendToUser(userID string, ev event.WsEvent) bool {
	if !n.online[userID] {
		return false
	}
	n.got = append(n.got, ev)
	return true
}

func TestDeliverNotification(t *testing.T) {
	n := &recordingNotifier{online: map[string]bool{"bob": true}}
	r := gin.New()
	r.POST("/api/notifications/deliver", NewNotificationHandler(n, zap.NewNop()).Deliver)

	body := decodeBody(t, do(t, r, http.MethodPost, "/api/notifications/deliver", "", map[string]any{
		"recipientId": "bob",
		"payload":     map[string]string{"title": "New answer"},
	}))
	if body["delivered"] != true {
		t.Fatalf("expected delivery to online user, got %v", body)
	}
	if len(n.got) != 1 || n.got[0].Event != event.EventNotification {
		t.Errorf("default event should be %q, got %+v", event.EventNotification, n.got)
	}

	body = decodeBody(t, do(t, r, http.MethodPost, "/api/notifications/deliver", "", map[string]any{
		"recipientId": "carol", "event": "newQuestion",
	}))
	if body["delivered"] != false || body["success"] != true {
		t.Errorf("offline recipient is not an error, got %v", body)
	}

	if w := do(t, r, http.MethodPost, "/api/notifications/deliver", "", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing recipient should be 400, got %d", w.Code)
	}
}

func TestDeliverRejectsCoreEvents(t *testing.T) {
	n := &recordingNotifier{online: map[string]bool{"bob": true}}
	r := gin.New()
	r.POST("/api/notifications/deliver", NewNotificationHandler(n, zap.NewNop()).Deliver)

	for _, name := range []string{event.EventCallEnded, event.EventIncomingCall, event.EventNewMessage, event.EventMessageRead, event.EventOnlineUsers} {
		w := do(t, r, http.MethodPost, "/api/notifications/deliver", "", map[string]any{
			"recipientId": "bob", "event": name, "payload": map[string]string{"callId": "k1"},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
	if len(n.got) != 0 {
		t.Errorf("nothing should reach the socket, got %+v", n.got)
	}
}
