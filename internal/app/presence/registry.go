/*
Package presence tracks which users are online.

A user may hold several logical sessions at once (one per open tab), and each
logical session is carried by exactly one transport connection at a time. The
Registry indexes sessions, connections and users and reports the 0→1 and 1→0
edges of a user's session count; Admission and Lifecycle turn those edges into
JOIN and LEAVE broadcasts.
*/
package presence

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrInvalidArgument is returned when a username, session id or connection id is blank.
	ErrInvalidArgument = errors.New("presence: blank username, session id or connection id")

	// ErrSessionOwnedByOtherUser is returned when a logical session id already
	// belongs to a different username. The registry is left unchanged.
	ErrSessionOwnedByOtherUser = errors.New("presence: session id belongs to another user")

	// ErrConnectionAlreadyBound is returned when a connection already carries a
	// different logical session. The registry is left unchanged.
	ErrConnectionAlreadyBound = errors.New("presence: connection already bound to another session")
)

// ConnState is the registration state of a transport connection.
type ConnState int

const (
	// StateUnregistered is a connection that is open but has not been admitted.
	StateUnregistered ConnState = iota

	// StateActive is a connection that carries a logical session.
	StateActive
)

func (s ConnState) String() string {
	if s == StateActive {
		return "active"
	}
	return "unregistered"
}

// Removal describes the logical session dropped by RemoveConnection.
type Removal struct {
	Username  string
	SessionID string

	// WasLastSession is true when the user's session count went from 1 to 0.
	WasLastSession bool
}

// UserSessions lists one user's logical sessions in a Snapshot.
type UserSessions struct {
	Username string   `json:"username"`
	Sessions []string `json:"sessions"`
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Users       []UserSessions `json:"users"`
	Sessions    int            `json:"totalSessions"`
	Connections int            `json:"totalConnections"`
}

// Registry is the in-memory presence index. All methods are safe for concurrent use.
// Every operation runs under one mutex, so compound updates across the four
// tables are linearizable.
type Registry struct {
	mu sync.RWMutex

	// sessionConn maps logical session id to its current connection id.
	sessionConn map[string]string

	// connSession maps connection id to logical session id.
	connSession map[string]string

	// userSessions maps username to its set of logical session ids. Sets are never empty.
	userSessions map[string]map[string]struct{}

	// sessionUser maps logical session id to its owning username.
	sessionUser map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessionConn:  make(map[string]string),
		connSession:  make(map[string]string),
		userSessions: make(map[string]map[string]struct{}),
		sessionUser:  make(map[string]string),
	}
}

// RegisterSession binds sessionID, owned by username, to connID.
//
// A session already owned by username is a reconnect: the stale connection
// mapping is replaced and false is returned. A new session is added to the
// user's set and true is returned iff it is the user's only session.
func (r *Registry) RegisterSession(username, sessionID, connID string) (bool, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(sessionID) == "" || strings.TrimSpace(connID) == "" {
		return false, ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, known := r.sessionUser[sessionID]
	if known && owner != username {
		return false, ErrSessionOwnedByOtherUser
	}

	if bound, ok := r.connSession[connID]; ok && bound != sessionID {
		return false, ErrConnectionAlreadyBound
	}

	if known {
		if old, ok := r.sessionConn[sessionID]; ok && old != connID {
			delete(r.connSession, old)
		}
		r.sessionConn[sessionID] = connID
		r.connSession[connID] = sessionID
		return false, nil
	}

	r.sessionConn[sessionID] = connID
	r.connSession[connID] = sessionID
	r.sessionUser[sessionID] = username

	set, ok := r.userSessions[username]
	if !ok {
		set = make(map[string]struct{})
		r.userSessions[username] = set
	}
	set[sessionID] = struct{}{}

	return len(set) == 1, nil
}

// RemoveConnection drops the logical session carried by connID. It returns
// false when connID is unknown, which covers duplicate and stale disconnects.
func (r *Registry) RemoveConnection(connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.connSession[connID]
	if !ok {
		return Removal{}, false
	}

	delete(r.connSession, connID)
	delete(r.sessionConn, sessionID)

	username := r.sessionUser[sessionID]
	delete(r.sessionUser, sessionID)

	removal := Removal{Username: username, SessionID: sessionID}

	if set, ok := r.userSessions[username]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.userSessions, username)
			removal.WasLastSession = true
		}
	}

	return removal, true
}

// SessionCount returns the number of logical sessions open for username.
func (r *Registry) SessionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userSessions[username])
}

// HasActiveSessions reports whether username has at least one logical session.
func (r *Registry) HasActiveSessions(username string) bool {
	return r.SessionCount(username) > 0
}

// Totals returns the number of online users and open logical sessions.
func (r *Registry) Totals() (users, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userSessions), len(r.sessionUser)
}

// State reports whether connID carries a logical session.
func (r *Registry) State(connID string) ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.connSession[connID]; ok {
		return StateActive
	}
	return StateUnregistered
}

// ForceCleanup removes every entry for username and returns how many logical
// sessions were dropped. It emits nothing; callers decide whether to notify.
func (r *Registry) ForceCleanup(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userSessions[username]
	if !ok {
		return 0
	}
	delete(r.userSessions, username)

	for sessionID := range set {
		if connID, ok := r.sessionConn[sessionID]; ok {
			delete(r.connSession, connID)
		}
		delete(r.sessionConn, sessionID)
		delete(r.sessionUser, sessionID)
	}
	return len(set)
}

// OnlineUsers returns the usernames with at least one session, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := lo.Keys(r.userSessions)
	r.mu.RUnlock()

	slices.Sort(users)
	return users
}

// Snapshot copies the registry, with users and their sessions sorted.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Users:       make([]UserSessions, 0, len(r.userSessions)),
		Sessions:    len(r.sessionUser),
		Connections: len(r.connSession),
	}

	for username, set := range r.userSessions {
		sessions := lo.Keys(set)
		slices.Sort(sessions)
		snap.Users = append(snap.Users, UserSessions{Username: username, Sessions: sessions})
	}

	slices.SortFunc(snap.Users, func(a, b UserSessions) int {
		return strings.Compare(a.Username, b.Username)
	})
	return snap
}
