package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants asserts that the four tables agree with each other.
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	for sessionID, connID := range r.sessionConn {
		assert.Equal(t, sessionID, r.connSession[connID], "connection %s must point back to session %s", connID, sessionID)

		owner, ok := r.sessionUser[sessionID]
		require.True(t, ok, "session %s has no owner", sessionID)

		owners := 0
		for username, set := range r.userSessions {
			if _, ok := set[sessionID]; ok {
				owners++
				assert.Equal(t, owner, username)
			}
		}
		assert.Equal(t, 1, owners, "session %s must be in exactly one user set", sessionID)
	}

	for connID, sessionID := range r.connSession {
		assert.Equal(t, connID, r.sessionConn[sessionID], "session %s must point back to connection %s", sessionID, connID)
	}

	for username, set := range r.userSessions {
		assert.NotEmpty(t, set, "user %s has an empty session set", username)
	}

	assert.Equal(t, len(r.sessionUser), len(r.sessionConn))
	assert.Equal(t, len(r.sessionUser), len(r.connSession))
}

func mustRegister(t *testing.T, r *Registry, username, sessionID, connID string) bool {
	t.Helper()
	first, err := r.RegisterSession(username, sessionID, connID)
	require.NoError(t, err)
	return first
}

func TestRegistryScenarios(t *testing.T) {
	r := NewRegistry()

	// A
	assert.True(t, mustRegister(t, r, "alice", "s1", "c1"))
	assert.False(t, mustRegister(t, r, "alice", "s2", "c2"))
	assert.Equal(t, 2, r.SessionCount("alice"))
	checkInvariants(t, r)

	// B
	removal, ok := r.RemoveConnection("c1")
	require.True(t, ok)
	assert.Equal(t, Removal{Username: "alice", SessionID: "s1", WasLastSession: false}, removal)
	assert.Equal(t, 1, r.SessionCount("alice"))
	checkInvariants(t, r)

	// C
	removal, ok = r.RemoveConnection("c2")
	require.True(t, ok)
	assert.Equal(t, Removal{Username: "alice", SessionID: "s2", WasLastSession: true}, removal)
	assert.Equal(t, 0, r.SessionCount("alice"))
	assert.False(t, r.HasActiveSessions("alice"))
	checkInvariants(t, r)

	// D
	_, ok = r.RemoveConnection("c2")
	assert.False(t, ok)
	assert.Equal(t, 0, r.SessionCount("alice"))
	assert.Empty(t, r.Snapshot().Users)
}

func TestRegistryReconnectSwapsConnection(t *testing.T) {
	r := NewRegistry()

	// E
	assert.True(t, mustRegister(t, r, "bob", "sX", "cX"))
	assert.False(t, mustRegister(t, r, "bob", "sX", "cY"))
	assert.Equal(t, 1, r.SessionCount("bob"))
	assert.Equal(t, StateUnregistered, r.State("cX"))
	assert.Equal(t, StateActive, r.State("cY"))
	checkInvariants(t, r)

	_, ok := r.RemoveConnection("cX")
	assert.False(t, ok, "stale connection must no longer resolve")
	assert.Equal(t, 1, r.SessionCount("bob"))

	removal, ok := r.RemoveConnection("cY")
	require.True(t, ok)
	assert.Equal(t, Removal{Username: "bob", SessionID: "sX", WasLastSession: true}, removal)
	checkInvariants(t, r)
}

func TestRegistryReRegisterSameConnectionIsNoop(t *testing.T) {
	r := NewRegistry()

	assert.True(t, mustRegister(t, r, "bob", "s1", "c1"))
	assert.False(t, mustRegister(t, r, "bob", "s1", "c1"))
	assert.Equal(t, 1, r.SessionCount("bob"))
	assert.Equal(t, StateActive, r.State("c1"))
	checkInvariants(t, r)
}

func TestRegistryRejectsSessionOwnedByOtherUser(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "alice", "s1", "c1")

	first, err := r.RegisterSession("mallory", "s1", "c2")
	assert.ErrorIs(t, err, ErrSessionOwnedByOtherUser)
	assert.False(t, first)

	assert.Equal(t, 1, r.SessionCount("alice"))
	assert.Equal(t, 0, r.SessionCount("mallory"))
	assert.Equal(t, StateUnregistered, r.State("c2"))
	checkInvariants(t, r)

	removal, ok := r.RemoveConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", removal.Username)
}

func TestRegistryRejectsBoundConnection(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "alice", "s1", "c1")

	_, err := r.RegisterSession("alice", "s2", "c1")
	assert.ErrorIs(t, err, ErrConnectionAlreadyBound)

	_, err = r.RegisterSession("bob", "s9", "c1")
	assert.ErrorIs(t, err, ErrConnectionAlreadyBound)

	assert.Equal(t, 1, r.SessionCount("alice"))
	assert.Equal(t, 0, r.SessionCount("bob"))
	checkInvariants(t, r)
}

func TestRegistryRejectsBlankArguments(t *testing.T) {
	r := NewRegistry()
	for _, args := range [][3]string{{"", "s", "c"}, {"u", " ", "c"}, {"u", "s", ""}} {
		_, err := r.RegisterSession(args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Empty(t, r.OnlineUsers())
}

func TestRegistryMultiSessionIndependence(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "u", "A", "cA")
	mustRegister(t, r, "u", "B", "cB")

	removal, ok := r.RemoveConnection("cA")
	require.True(t, ok)
	assert.False(t, removal.WasLastSession)
	assert.True(t, r.HasActiveSessions("u"))
	assert.Equal(t, 1, r.SessionCount("u"))

	removal, ok = r.RemoveConnection("cB")
	require.True(t, ok)
	assert.True(t, removal.WasLastSession)
}

func TestRegistryFirstSessionAfterGoingOffline(t *testing.T) {
	r := NewRegistry()
	assert.True(t, mustRegister(t, r, "u", "s1", "c1"))
	r.RemoveConnection("c1")
	assert.True(t, mustRegister(t, r, "u", "s2", "c2"), "a new span of activity starts with a first session")
}

func TestRegistryForceCleanup(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "alice", "s1", "c1")
	mustRegister(t, r, "alice", "s2", "c2")
	mustRegister(t, r, "bob", "s3", "c3")

	assert.Equal(t, 2, r.ForceCleanup("alice"))
	assert.Equal(t, 0, r.ForceCleanup("alice"))
	assert.Equal(t, 0, r.SessionCount("alice"))
	assert.Equal(t, []string{"bob"}, r.OnlineUsers())

	_, ok := r.RemoveConnection("c1")
	assert.False(t, ok, "force-cleaned connections must not resolve")
	checkInvariants(t, r)

	assert.True(t, mustRegister(t, r, "alice", "s1", "c4"), "session ids are free again after cleanup")
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "carol", "z", "c1")
	mustRegister(t, r, "alice", "b", "c2")
	mustRegister(t, r, "alice", "a", "c3")

	snap := r.Snapshot()
	assert.Equal(t, Snapshot{
		Users: []UserSessions{
			{Username: "alice", Sessions: []string{"a", "b"}},
			{Username: "carol", Sessions: []string{"z"}},
		},
		Sessions:    3,
		Connections: 3,
	}, snap)

	users, sessions := r.Totals()
	assert.Equal(t, 2, users)
	assert.Equal(t, 3, sessions)
}

// TestRegistryEdgesMatchModel replays a random operation sequence against a
// simple counting model: first-session is reported exactly on 0→1 and
// last-session exactly on 1→0.
func TestRegistryEdgesMatchModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()

	users := []string{"u1", "u2", "u3"}
	model := map[string]map[string]string{} // user -> session -> conn
	connOwner := map[string][2]string{}     // conn -> {user, session}
	nextConn := 0

	for step := range 2000 {
		if rng.Intn(2) == 0 {
			user := users[rng.Intn(len(users))]
			session := fmt.Sprintf("%s-s%d", user, rng.Intn(4))
			nextConn++
			conn := fmt.Sprintf("c%d", nextConn)

			before := len(model[user])
			first := mustRegister(t, r, user, session, conn)

			if model[user] == nil {
				model[user] = map[string]string{}
			}
			if old, ok := model[user][session]; ok {
				delete(connOwner, old)
			}
			model[user][session] = conn
			connOwner[conn] = [2]string{user, session}

			assert.Equal(t, before == 0, first, "step %d", step)
		} else {
			if len(connOwner) == 0 || rng.Intn(5) == 0 {
				_, ok := r.RemoveConnection(fmt.Sprintf("c%d", rng.Intn(nextConn+1)+nextConn+1))
				assert.False(t, ok)
				continue
			}
			var conn string
			for c := range connOwner {
				conn = c
				break
			}
			owner := connOwner[conn]
			delete(connOwner, conn)
			delete(model[owner[0]], owner[1])

			removal, ok := r.RemoveConnection(conn)
			require.True(t, ok, "step %d", step)
			assert.Equal(t, owner[0], removal.Username)
			assert.Equal(t, len(model[owner[0]]) == 0, removal.WasLastSession, "step %d", step)
			if len(model[owner[0]]) == 0 {
				delete(model, owner[0])
			}
		}

		for _, u := range users {
			require.Equal(t, len(model[u]), r.SessionCount(u), "step %d user %s", step, u)
		}
	}
	checkInvariants(t, r)
}

// TestRegistryConcurrentDisconnectAndReconnect races a disconnect for a stale
// connection against the reconnect that replaces it. Whichever wins, the
// session is counted once and only the new connection resolves.
func TestRegistryConcurrentDisconnectAndReconnect(t *testing.T) {
	for i := range 200 {
		r := NewRegistry()
		mustRegister(t, r, "u", "s", "old")
		mustRegister(t, r, "u", "other", "keep")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RemoveConnection("old")
		}()
		go func() {
			defer wg.Done()
			_, err := r.RegisterSession("u", "s", "new")
			assert.NoError(t, err)
		}()
		wg.Wait()

		checkInvariants(t, r)
		assert.Equal(t, 2, r.SessionCount("u"), "iteration %d", i)
		assert.Equal(t, StateUnregistered, r.State("old"), "iteration %d", i)
		assert.Equal(t, StateActive, r.State("new"), "iteration %d", i)

		removal, ok := r.RemoveConnection("new")
		require.True(t, ok)
		assert.False(t, removal.WasLastSession)
	}
}

// TestRegistryConcurrentUsers hammers the registry from many goroutines and
// checks that every user's first-session edges and last-session edges pair up.
func TestRegistryConcurrentUsers(t *testing.T) {
	r := NewRegistry()

	const users, sessions = 16, 8
	var firsts, lasts [users]atomic.Int64

	var wg sync.WaitGroup
	for u := range users {
		for s := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				username := fmt.Sprintf("user%d", u)
				conn := fmt.Sprintf("c-%d-%d", u, s)

				first, err := r.RegisterSession(username, fmt.Sprintf("s-%d-%d", u, s), conn)
				assert.NoError(t, err)
				if first {
					firsts[u].Add(1)
				}

				removal, ok := r.RemoveConnection(conn)
				assert.True(t, ok)
				assert.Equal(t, username, removal.Username)
				if removal.WasLastSession {
					lasts[u].Add(1)
				}
			}()
		}
	}
	wg.Wait()

	checkInvariants(t, r)
	assert.Empty(t, r.OnlineUsers())

	for u := range users {
		assert.Positive(t, firsts[u].Load())
		assert.Equal(t, firsts[u].Load(), lasts[u].Load(), "user%d", u)
	}
}
