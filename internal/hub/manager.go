package hub

import (
	"Bridgeup/internal/event"
	"Bridgeup/internal/presence"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load

	mirrorQueueSize = 1024
	mirrorTimeout   = 2 * time.Second
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// clientBucket holds the per-user broadcast groups of one shard:
// userID -> clientID -> client.
type clientBucket struct {
	sync.RWMutex
	groups map[string]map[string]*Client
}

type presenceChange struct {
	userID string
	online bool
}

type Hub struct {
	shards [shardCount]*clientBucket

	// every open socket, joined or not
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// serializes join/leave so presence transitions and the broadcasts they
	// trigger are observed in one order by every client
	lifecycleMu sync.Mutex

	presence   *presence.Registry
	mirror     presence.Mirror
	mirrorq    chan presenceChange
	calls      *CallHandler
	readMarker ReadMarker

	unregister chan *Client
	inbound    [workerPoolSize]chan inboundMessage

	upgrader websocket.Upgrader
	logger   *zap.Logger
	wg       sync.WaitGroup
	bgMu     sync.Mutex // orders spawn against Stop
	ctx      context.Context
	cancel   context.CancelFunc
}

type HubConfig struct {
	AllowedOrigins []string
}

func NewHub(registry *presence.Registry, mirror presence.Mirror, calls *CallHandler, cfg HubConfig, logger *zap.Logger) *Hub {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		presence:   registry,
		mirror:     mirror,
		mirrorq:    make(chan presenceChange, mirrorQueueSize),
		calls:      calls,
		unregister: make(chan *Client, 1024),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			groups: make(map[string]map[string]*Client),
		}
	}

	calls.SetHub(h)

	// run manager loop
	h.wg.Add(2)
	go func() { defer h.wg.Done(); h.run() }()
	go func() { defer h.wg.Done(); h.mirrorLoop() }()

	// start worker loop, one queue per worker
	for i := 0; i < workerPoolSize; i++ {
		q := make(chan inboundMessage, 256)
		h.inbound[i] = q
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-q:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// SetReadMarker wires the message service used by socket markAsRead.
// Must be called before the socket server starts.
func (h *Hub) SetReadMarker(rm ReadMarker) {
	h.readMarker = rm
}

func (h *Hub) Calls() *CallHandler {
	return h.calls
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.unregister:
			h.Disconnect(c)
		}
	}
}

func (h *Hub) connect(c *Client) bool {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if h.ctx.Err() != nil || c.IsClosed() {
		return false
	}
	h.clients[c.ID] = c
	return true
}

// -----------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------

// Join binds c to userID. The first connection of a user flips them online:
// every socket gets the new online set and everyone else a status change.
// A further connection only receives the current set.
func (h *Hub) Join(c *Client, userID string) {
	h.lifecycleMu.Lock()

	// Disconnect closes before taking lifecycleMu, so a closed socket here
	// has already been detached and must not bind again
	if c.IsClosed() {
		h.lifecycleMu.Unlock()
		return
	}

	prev := c.UserID()
	if prev == userID {
		h.lifecycleMu.Unlock()
		c.SafeSend(h.onlineUsersEvent(), sendTimeout)
		return
	}

	dropped := ""
	if prev != "" && h.detachLocked(c, prev) {
		dropped = prev
	}

	c.bindUser(userID)
	h.addToGroup(userID, c)
	first := h.presence.Register(userID, c.ID)
	if first {
		h.broadcastLocked(h.onlineUsersEvent(), nil)
		h.broadcastLocked(event.New(event.EventUserStatusChange, event.UserStatusChange{UserID: userID, IsOnline: true}), c)
		h.enqueueMirror(userID, true)
	} else {
		c.trySend(h.onlineUsersEvent())
	}
	h.lifecycleMu.Unlock()

	h.logger.Info("user joined",
		zap.String("user_id", userID),
		zap.String("client_id", c.ID),
		zap.Bool("first_connection", first),
		zap.Int("connections", h.presence.ConnectionCount(userID)),
	)

	if dropped != "" {
		h.userGone(dropped)
	}
}

// Leave detaches c from its user but keeps the socket open. userID, when
// given, must match the bound user.
func (h *Hub) Leave(c *Client, userID string) {
	h.lifecycleMu.Lock()
	bound := c.UserID()
	if bound == "" || (userID != "" && userID != bound) {
		h.lifecycleMu.Unlock()
		h.logger.Debug("ignored offline for foreign or anonymous socket",
			zap.String("client_id", c.ID),
			zap.String("user_id", userID),
		)
		return
	}
	last := h.detachLocked(c, bound)
	h.lifecycleMu.Unlock()

	h.logger.Info("user left", zap.String("user_id", bound), zap.String("client_id", c.ID), zap.Bool("offline", last))
	if last {
		h.userGone(bound)
	}
}

// Disconnect drops the socket entirely. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	c.Close()
	h.clientsMu.Lock()
	delete(h.clients, c.ID)
	h.clientsMu.Unlock()

	h.lifecycleMu.Lock()
	userID := c.UserID()
	last := userID != "" && h.detachLocked(c, userID)
	h.lifecycleMu.Unlock()

	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", userID))
	if last {
		h.userGone(userID)
	}
}

// detachLocked removes c from userID's group and reports whether that was the
// user's last connection. Caller holds lifecycleMu.
func (h *Hub) detachLocked(c *Client, userID string) bool {
	h.removeFromGroup(userID, c)
	c.bindUser("")
	if !h.presence.Unregister(userID, c.ID) {
		return false
	}
	h.broadcastLocked(h.onlineUsersEvent(), nil)
	h.broadcastLocked(event.New(event.EventUserStatusChange, event.UserStatusChange{UserID: userID, IsOnline: false}), c)
	h.enqueueMirror(userID, false)
	return true
}

// userGone runs the cross-component cleanup for a user whose last connection
// went away. A quick rejoin wins over the cleanup.
func (h *Hub) userGone(userID string) {
	if h.presence.IsOnline(userID) {
		return
	}
	h.calls.userDisconnected(userID)
}

// -----------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------

// SendToUser pushes ev to every connection of userID and reports whether at
// least one accepted it. False means the user is unreachable.
func (h *Hub) SendToUser(userID string, ev event.WsEvent) bool {
	clients := h.group(userID)
	delivered := false
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			delivered = true
			continue
		}
		if !c.IsClosed() {
			h.logger.Warn("egress full",
				zap.String("client_id", c.ID),
				zap.String("user_id", userID),
				zap.String("event", ev.Event),
			)
			h.kick(c)
		}
	}
	return delivered
}

// Notify marshals payload and sends it to userID.
func (h *Hub) Notify(userID, name string, payload any) bool {
	return h.SendToUser(userID, event.New(name, payload))
}

// broadcastLocked fans ev out to every open socket except skip without
// waiting on slow consumers. Caller holds lifecycleMu.
func (h *Hub) broadcastLocked(ev event.WsEvent, skip *Client) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		if !c.trySend(ev) && !c.IsClosed() {
			h.logger.Warn("egress full on broadcast", zap.String("client_id", c.ID), zap.String("event", ev.Event))
			h.kick(c)
		}
	}
}

func (h *Hub) kick(c *Client) {
	if !kickOnFull {
		return
	}
	select {
	case h.unregister <- c:
	default:
		go h.Disconnect(c)
	}
}

func (h *Hub) onlineUsersEvent() event.WsEvent {
	return event.New(event.EventOnlineUsers, h.presence.OnlineUserIDs())
}

// -----------------------------------------------------------------
// Groups
// -----------------------------------------------------------------

func getShard(key string) uint32 {
	if key == "" {
		return 0
	}

	h := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func workerFor(clientID string) uint32 {
	return getShard(clientID) % uint32(workerPoolSize)
}

func (h *Hub) addToGroup(userID string, c *Client) {
	b := h.shards[getShard(userID)]
	b.Lock()
	defer b.Unlock()

	group, ok := b.groups[userID]
	if !ok {
		group = make(map[string]*Client)
		b.groups[userID] = group
	}
	group[c.ID] = c
}

func (h *Hub) removeFromGroup(userID string, c *Client) {
	b := h.shards[getShard(userID)]
	b.Lock()
	defer b.Unlock()

	if group, ok := b.groups[userID]; ok {
		delete(group, c.ID)
		if len(group) == 0 {
			delete(b.groups, userID)
		}
	}
}

func (h *Hub) group(userID string) []*Client {
	b := h.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()

	group := b.groups[userID]
	clients := make([]*Client, 0, len(group))
	for _, c := range group {
		clients = append(clients, c)
	}
	return clients
}

// -----------------------------------------------------------------
// Presence mirror
// -----------------------------------------------------------------

func (h *Hub) enqueueMirror(userID string, online bool) {
	select {
	case h.mirrorq <- presenceChange{userID: userID, online: online}:
	default:
		h.logger.Warn("presence mirror queue full, dropping update", zap.String("user_id", userID))
	}
}

// mirrorLoop applies presence changes in the order they happened.
func (h *Hub) mirrorLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ch := <-h.mirrorq:
			ctx, cancel := context.WithTimeout(h.ctx, mirrorTimeout)
			var err error
			if ch.online {
				err = h.mirror.SetOnline(ctx, ch.userID)
			} else {
				err = h.mirror.SetOffline(ctx, ch.userID)
			}
			cancel()
			if err != nil {
				h.logger.Warn("presence mirror write failed", zap.String("user_id", ch.userID), zap.Error(err))
			}
		}
	}
}

// -----------------------------------------------------------------
// Queries
// -----------------------------------------------------------------

func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(userID)
}

func (h *Hub) OnlineUserIDs() []string {
	return h.presence.OnlineUserIDs()
}

func (h *Hub) ConnectionCount(userID string) int {
	return h.presence.ConnectionCount(userID)
}

// SocketCount returns open sockets and how many of them are joined.
func (h *Hub) SocketCount() (total, joined int) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, c := range h.clients {
		total++
		if c.UserID() != "" {
			joined++
		}
	}
	return total, joined
}

// spawn runs fn on a goroutine Stop waits for. Returns false once the hub is
// stopping.
func (h *Hub) spawn(fn func()) bool {
	h.bgMu.Lock()
	defer h.bgMu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
	return true
}

func (h *Hub) snapshotClients() []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// -----------------------------------------------------------------
// Transport
// -----------------------------------------------------------------

func (h *Hub) Stop() {
	h.bgMu.Lock()
	h.cancel()
	h.bgMu.Unlock()
	h.calls.Stop()

	for _, c := range h.snapshotClients() {
		c.Close()
	}

	h.wg.Wait()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser client
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}

	RegisterClient(conn, h)
}
