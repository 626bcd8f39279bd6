package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (s *memorySink) Put(_ context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBoom
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = body
	return nil
}

func TestAdminStatus(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	admin := NewAdmin(f.deps, nil)
	ctx := context.Background()

	_, ok := NewAdmission(f.deps).Join(ctx, joinRequest("alice", "tab-1", "c1"))
	require.True(t, ok)
	mustRegister(t, f.registry, "alice", "tab-2", "c2")

	st, err := admin.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Status{Username: "alice", SessionCount: 2, HasActiveSessions: true, IsOnlineInDB: true}, st)

	st, err = admin.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, Status{Username: "bob"}, st)

	f.users.failRead = true
	_, err = admin.Status(ctx, "alice")
	assert.ErrorIs(t, err, errBoom)
}

func TestAdminForceCleanupDoesNotBroadcast(t *testing.T) {
	f := newFixture(t, "alice")
	admin := NewAdmin(f.deps, nil)
	ctx := context.Background()

	mustRegister(t, f.registry, "alice", "s1", "c1")
	mustRegister(t, f.registry, "alice", "s2", "c2")
	require.NoError(t, f.users.SetOnline(ctx, "alice", true))

	dropped, err := admin.ForceCleanup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	assert.False(t, f.registry.HasActiveSessions("alice"))
	assert.Equal(t, StateUnregistered, f.registry.State("c1"))
	assert.False(t, f.users.online("alice"))
	assert.Empty(t, f.publisher.all())
	assert.Empty(t, f.store.messages())

	// The transport may still deliver the disconnect later.
	NewLifecycle(f.deps).OnDisconnect(ctx, "c1")
	assert.Empty(t, f.publisher.all())
}

func TestAdminForceCleanupReportsDirectoryFailure(t *testing.T) {
	f := newFixture(t, "alice")
	f.users.failWrite = true
	admin := NewAdmin(f.deps, nil)
	mustRegister(t, f.registry, "alice", "s1", "c1")

	dropped, err := admin.ForceCleanup(context.Background(), "alice")
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, dropped)
	assert.False(t, f.registry.HasActiveSessions("alice"), "registry is cleaned even when the directory fails")
}

func TestAdminResetAllUsers(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	admin := NewAdmin(f.deps, nil)
	ctx := context.Background()

	require.NoError(t, f.users.SetOnline(ctx, "alice", true))
	require.NoError(t, f.users.SetOnline(ctx, "bob", true))
	mustRegister(t, f.registry, "alice", "s1", "c1")

	require.NoError(t, admin.ResetAllUsers(ctx))
	assert.False(t, f.users.online("alice"))
	assert.False(t, f.users.online("bob"))
	assert.Equal(t, 1, f.registry.SessionCount("alice"), "registry is untouched")

	f.users.failWrite = true
	assert.ErrorIs(t, admin.ResetAllUsers(ctx), errBoom)
}

func TestAdminLogAllActiveSessions(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	sink := &memorySink{}
	admin := NewAdmin(f.deps, sink)

	mustRegister(t, f.registry, "bob", "b1", "c3")
	mustRegister(t, f.registry, "alice", "a2", "c2")
	mustRegister(t, f.registry, "alice", "a1", "c1")

	snap, err := admin.LogAllActiveSessions(context.Background())
	require.NoError(t, err)

	want := Snapshot{
		Users: []UserSessions{
			{Username: "alice", Sessions: []string{"a1", "a2"}},
			{Username: "bob", Sessions: []string{"b1"}},
		},
		Sessions:    3,
		Connections: 3,
	}
	assert.Equal(t, want, snap)

	key := fmt.Sprintf("sessions/%d.json", fixedNow.UnixNano())
	require.Contains(t, sink.objects, key)

	var archived Snapshot
	require.NoError(t, json.Unmarshal(sink.objects[key], &archived))
	assert.Equal(t, want, archived)
}

func TestAdminLogAllActiveSessionsSinkFailure(t *testing.T) {
	f := newFixture(t, "alice")
	admin := NewAdmin(f.deps, &memorySink{fail: true})
	mustRegister(t, f.registry, "alice", "a1", "c1")

	snap, err := admin.LogAllActiveSessions(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, snap.Users, 1, "snapshot is still returned")
}

func TestAdminLogAllActiveSessionsWithoutSink(t *testing.T) {
	f := newFixture(t)
	snap, err := NewAdmin(f.deps, nil).LogAllActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Users)
	assert.Zero(t, snap.Sessions)
}
