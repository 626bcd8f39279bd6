package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"realchat/internal/pkg/logx"
)

// SnapshotSink stores serialized registry snapshots. storage.SnapshotArchive implements it.
type SnapshotSink interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Status is the presence view of one user.
type Status struct {
	Username          string `json:"username"`
	SessionCount      int    `json:"sessionCount"`
	HasActiveSessions bool   `json:"hasActiveSessions"`
	IsOnlineInDB      bool   `json:"isOnlineInDB"`
}

// Admin exposes read accessors and recovery operations over the registry.
// None of its operations broadcast.
type Admin struct {
	deps   Deps
	sink   SnapshotSink
	logger zerolog.Logger
}

// NewAdmin constructs an Admin. sink may be nil.
func NewAdmin(deps Deps, sink SnapshotSink) *Admin {
	return &Admin{deps: deps, sink: sink, logger: logx.Component("PresenceAdmin")}
}

// Status reports the registry's and the directory's view of username.
func (a *Admin) Status(ctx context.Context, username string) (Status, error) {
	online, err := a.deps.Users.IsOnline(ctx, username)
	if err != nil {
		return Status{}, fmt.Errorf("read online flag for %s: %w", username, err)
	}

	count := a.deps.Registry.SessionCount(username)
	return Status{
		Username:          username,
		SessionCount:      count,
		HasActiveSessions: count > 0,
		IsOnlineInDB:      online,
	}, nil
}

// ForceCleanup drops every registry entry for username and marks the user
// offline. It returns how many logical sessions were dropped.
func (a *Admin) ForceCleanup(ctx context.Context, username string) (int, error) {
	dropped := a.deps.Registry.ForceCleanup(username)

	if err := a.deps.Users.SetOnline(ctx, username, false); err != nil {
		return dropped, fmt.Errorf("mark %s offline: %w", username, err)
	}

	a.logger.Info().Str("username", username).Int("dropped_sessions", dropped).Msg("Force cleaned up user sessions")
	return dropped, nil
}

// ResetAllUsers marks every user offline in the directory. The registry is untouched.
func (a *Admin) ResetAllUsers(ctx context.Context) error {
	if err := a.deps.Users.SetAllOffline(ctx); err != nil {
		return fmt.Errorf("set all users offline: %w", err)
	}

	a.logger.Info().Msg("Set all users offline")
	return nil
}

// LogAllActiveSessions writes every user's sessions and the aggregate counts
// to the log, archives the snapshot when a sink is configured, and returns it.
func (a *Admin) LogAllActiveSessions(ctx context.Context) (Snapshot, error) {
	snap := a.deps.Registry.Snapshot()

	a.logger.Info().Msg("=== Active Sessions ===")
	for _, u := range snap.Users {
		a.logger.Info().
			Str("username", u.Username).
			Int("session_count", len(u.Sessions)).
			Strs("sessions", u.Sessions).
			Msg("Active user")
	}
	a.logger.Info().
		Int("users", len(snap.Users)).
		Int("session_mappings", snap.Sessions).
		Int("connection_mappings", snap.Connections).
		Msg("Active session totals")

	if a.sink == nil {
		return snap, nil
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("sessions/%d.json", a.deps.now().UnixNano())
	if err := a.sink.Put(ctx, key, body); err != nil {
		return snap, fmt.Errorf("archive snapshot %s: %w", key, err)
	}

	a.logger.Info().Str("key", key).Msg("Session snapshot archived")
	return snap, nil
}
