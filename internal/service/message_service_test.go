package service

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/model"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeMessages struct {
	mu       sync.Mutex
	byID     map[string]*model.Message
	order    []string
	failNext error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: make(map[string]*model.Message)}
}

func (f *fakeMessages) InsertMessage(_ context.Context, msg *model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	msg.ID = primitive.NewObjectID()
	cp := *msg
	f.byID[msg.ID.Hex()] = &cp
	f.order = append(f.order, msg.ID.Hex())
	return msg.ID.Hex(), nil
}

func (f *fakeMessages) ListByConnection(_ context.Context, connectionID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Message, 0)
	for _, id := range f.order {
		if m := f.byID[id]; m.ConnectionID == connectionID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, connectionID, readerID string, ids []string, at time.Time) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.Message
	for _, id := range f.order {
		m := f.byID[id]
		if m.ConnectionID != connectionID || m.ReceiverID != readerID || m.IsRead {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		m.IsRead = true
		m.ReadAt = &at
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMessages) CountUnread(_ context.Context, receiverID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.byID {
		if m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) CountUnreadInConnection(_ context.Context, connectionID, receiverID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.byID {
		if m.ConnectionID == connectionID && m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) LastMessage(_ context.Context, connectionID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		if m := f.byID[f.order[i]]; m.ConnectionID == connectionID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessages) EnsureIndexes(context.Context) error { return nil }

type fakeConnections struct {
	pairs map[string][2]string
}

func (f *fakeConnections) IsAcceptedConnection(_ context.Context, a, b, connectionID string) (bool, error) {
	p, ok := f.pairs[connectionID]
	if !ok {
		return false, nil
	}
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a), nil
}

func (f *fakeConnections) GetAcceptedConnection(_ context.Context, connectionID, userID string) (*model.Connection, error) {
	p, ok := f.pairs[connectionID]
	if !ok || (p[0] != userID && p[1] != userID) {
		return nil, nil
	}
	return &model.Connection{Status: model.ConnectionAccepted}, nil
}

type sentEvent struct {
	to string
	ev event.WsEvent
}

type fakeNotifier struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []sentEvent
}

func (f *fakeNotifier) SendToUser(userID string, ev event.WsEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[userID] {
		return false
	}
	f.sent = append(f.sent, sentEvent{userID, ev})
	return true
}

func (f *fakeNotifier) events(name string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, s := range f.sent {
		if s.ev.Event == name {
			out = append(out, s)
		}
	}
	return out
}

func newTestService() (*messageService, *fakeMessages, *fakeNotifier) {
	msgs := newFakeMessages()
	conns := &fakeConnections{pairs: map[string][2]string{"C1": {"alice", "bob"}}}
	notifier := &fakeNotifier{online: map[string]bool{"alice": true, "bob": true}}
	svc := NewMessageService(msgs, conns, notifier, zap.NewNop()).(*messageService)
	return svc, msgs, notifier
}

func TestSendPersistsAndPushes(t *testing.T) {
	svc, msgs, notifier := newTestService()
	ctx := context.Background()

	msg, err := svc.Send(ctx, "alice", "bob", "C1", "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.ID.IsZero() || msg.IsRead {
		t.Errorf("unexpected stored message %+v", msg)
	}
	if len(msgs.order) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs.order))
	}

	pushed := notifier.events(event.EventNewMessage)
	if len(pushed) != 1 || pushed[0].to != "bob" {
		t.Fatalf("expected one newMessage to bob, got %+v", pushed)
	}
	var got model.Message
	if err := json.Unmarshal(pushed[0].ev.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Content != "hello" || got.IsRead {
		t.Errorf("unexpected pushed payload %+v", got)
	}
}

func TestSendWithoutPairingIsForbidden(t *testing.T) {
	tests := []struct {
		name         string
		sender       string
		receiver     string
		connectionID string
	}{
		{"unknown connection", "alice", "bob", "C9"},
		{"outsider sender", "mallory", "bob", "C1"},
		{"wrong receiver", "alice", "carol", "C1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, msgs, notifier := newTestService()
			_, err := svc.Send(context.Background(), tc.sender, tc.receiver, tc.connectionID, "hi")
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
			if len(msgs.order) != 0 || len(notifier.sent) != 0 {
				t.Error("forbidden send must neither persist nor push")
			}
		})
	}
}

func TestSendPersistFailureDoesNotPush(t *testing.T) {
	svc, msgs, notifier := newTestService()
	msgs.failNext = errors.New("write concern failed")

	if _, err := svc.Send(context.Background(), "alice", "bob", "C1", "hello"); err == nil {
		t.Fatal("expected persist error")
	}
	if len(notifier.sent) != 0 {
		t.Error("no live event may be pushed for an unpersisted message")
	}
}

func TestSendToOfflineReceiverStillSucceeds(t *testing.T) {
	svc, msgs, _ := newTestService()
	svc.notifier.(*fakeNotifier).online["bob"] = false

	if _, err := svc.Send(context.Background(), "alice", "bob", "C1", "later"); err != nil {
		t.Fatalf("offline receiver must not fail the send: %v", err)
	}
	if len(msgs.order) != 1 {
		t.Error("message must be persisted regardless of delivery")
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Send(context.Background(), "alice", "bob", "C1", "   "); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	m1, _ := svc.Send(ctx, "alice", "bob", "C1", "one")
	m2, _ := svc.Send(ctx, "alice", "bob", "C1", "two")

	n, err := svc.MarkRead(ctx, "C1", "bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 flipped, got %d", n)
	}

	receipts := notifier.events(event.EventMessageRead)
	if len(receipts) != 1 || receipts[0].to != "alice" {
		t.Fatalf("expected one receipt to alice, got %+v", receipts)
	}
	var rr event.MessageRead
	if err := json.Unmarshal(receipts[0].ev.Payload, &rr); err != nil {
		t.Fatal(err)
	}
	want := []string{m1.ID.Hex(), m2.ID.Hex()}
	sort.Strings(want)
	sort.Strings(rr.MessageIDs)
	if rr.ConnectionID != "C1" || rr.ReadBy != "bob" || len(rr.MessageIDs) != 2 || rr.MessageIDs[0] != want[0] || rr.MessageIDs[1] != want[1] {
		t.Errorf("unexpected receipt %+v", rr)
	}

	n, err = svc.MarkRead(ctx, "C1", "bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second markRead must modify nothing, got %d", n)
	}
	if got := len(notifier.events(event.EventMessageRead)); got != 1 {
		t.Errorf("second markRead must not re-emit a receipt, got %d receipts", got)
	}
}

func TestMarkReadSpecificIDs(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	m1, _ := svc.Send(ctx, "alice", "bob", "C1", "one")
	svc.Send(ctx, "alice", "bob", "C1", "two")

	n, err := svc.MarkRead(ctx, "C1", "bob", []string{m1.ID.Hex()})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 flipped, got %d (%v)", n, err)
	}
	if unread, _ := svc.UnreadCount(ctx, "bob"); unread != 1 {
		t.Errorf("expected 1 unread left, got %d", unread)
	}

	// the sender's own messages are never flipped by the sender
	if n, _ := svc.MarkRead(ctx, "C1", "alice", nil); n != 0 {
		t.Errorf("alice has no incoming messages, got %d", n)
	}
	if got := len(notifier.events(event.EventMessageRead)); got != 1 {
		t.Errorf("expected a single receipt, got %d", got)
	}
}

func TestReadAccessRequiresParticipant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ListForConnection(ctx, "C1", "mallory"); !errors.Is(err, ErrForbidden) {
		t.Errorf("list: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, "C1", "mallory", nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("markRead: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ConversationSummary(ctx, "C1", "mallory"); !errors.Is(err, ErrForbidden) {
		t.Errorf("summary: expected ErrForbidden, got %v", err)
	}
}

func TestListAndSummary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.Send(ctx, "alice", "bob", "C1", "first")
	svc.Send(ctx, "bob", "alice", "C1", "second")
	svc.Send(ctx, "alice", "bob", "C1", "third")

	list, err := svc.ListForConnection(ctx, "C1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	var contents []string
	for _, m := range list {
		contents = append(contents, m.Content)
	}
	if len(contents) != 3 || contents[0] != "first" || contents[2] != "third" {
		t.Errorf("expected oldest-first order, got %v", contents)
	}

	sum, err := svc.ConversationSummary(ctx, "C1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if sum.LastMessage == nil || sum.LastMessage.Content != "third" || sum.UnreadCount != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestSendsFromOneSenderStayOrdered(t *testing.T) {
	svc, msgs, notifier := newTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Send(ctx, "alice", "bob", "C1", "x")
		}()
	}
	wg.Wait()

	pushed := notifier.events(event.EventNewMessage)
	if len(pushed) != len(msgs.order) {
		t.Fatalf("pushed %d, persisted %d", len(pushed), len(msgs.order))
	}
	for i, p := range pushed {
		var m model.Message
		json.Unmarshal(p.ev.Payload, &m)
		if m.ID.Hex() != msgs.order[i] {
			t.Fatalf("push %d out of persist order", i)
		}
	}
}
