package presence

import (
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"sync"
	"time"
)

const shardCount = 32

// UserSession is the set of live transport connections bound to one user.
// A user is online iff ConnectionIDs is non-empty; empty sessions are deleted.
type UserSession struct {
	UserID        string
	ConnectionIDs map[string]struct{}
	OnlineSince   time.Time
}

type sessionBucket struct {
	sync.RWMutex
	sessions map[string]*UserSession
}

// Registry maps user IDs to their live connections. It is process memory only:
// after a restart every user is offline until they join again.
type Registry struct {
	shards [shardCount]*sessionBucket
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &sessionBucket{sessions: make(map[string]*UserSession)}
	}
	return r
}

func (r *Registry) bucket(userID string) *sessionBucket {
	h := sha1.Sum([]byte(userID))
	return r.shards[binary.BigEndian.Uint32(h[:4])%shardCount]
}

// Register binds connectionID to userID. It reports true when this is the
// user's first live connection (offline -> online). Registering the same pair
// twice is a no-op.
func (r *Registry) Register(userID, connectionID string) bool {
	b := r.bucket(userID)
	b.Lock()
	defer b.Unlock()

	s, ok := b.sessions[userID]
	if !ok {
		s = &UserSession{
			UserID:        userID,
			ConnectionIDs: make(map[string]struct{}),
			OnlineSince:   time.Now(),
		}
		b.sessions[userID] = s
	}
	if _, dup := s.ConnectionIDs[connectionID]; dup {
		return false
	}
	s.ConnectionIDs[connectionID] = struct{}{}
	return len(s.ConnectionIDs) == 1
}

// Unregister removes connectionID from the user's set and reports true when the
// set became empty (online -> offline). Unknown pairs report false.
func (r *Registry) Unregister(userID, connectionID string) bool {
	b := r.bucket(userID)
	b.Lock()
	defer b.Unlock()

	s, ok := b.sessions[userID]
	if !ok {
		return false
	}
	if _, exists := s.ConnectionIDs[connectionID]; !exists {
		return false
	}
	delete(s.ConnectionIDs, connectionID)
	if len(s.ConnectionIDs) == 0 {
		delete(b.sessions, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	b := r.bucket(userID)
	b.RLock()
	defer b.RUnlock()
	_, ok := b.sessions[userID]
	return ok
}

func (r *Registry) ConnectionCount(userID string) int {
	b := r.bucket(userID)
	b.RLock()
	defer b.RUnlock()
	if s, ok := b.sessions[userID]; ok {
		return len(s.ConnectionIDs)
	}
	return 0
}

// OnlineUserIDs returns a sorted snapshot of every online user.
func (r *Registry) OnlineUserIDs() []string {
	ids := make([]string, 0)
	for _, b := range r.shards {
		b.RLock()
		for id := range b.sessions {
			ids = append(ids, id)
		}
		b.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the number of online users and live connections.
func (r *Registry) Stats() (users, connections int) {
	for _, b := range r.shards {
		b.RLock()
		users += len(b.sessions)
		for _, s := range b.sessions {
			connections += len(s.ConnectionIDs)
		}
		b.RUnlock()
	}
	return users, connections
}
