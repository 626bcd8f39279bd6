/*
Package user describes chat identities and the directory that stores them.

Presence code only ever talks to the Directory interface; the database-backed
implementation lives in package db.
*/
package user

import (
	"context"
	"time"
)

// User is one chat identity as stored in the directory.
type User struct {
	// Username is the unique chat handle.
	Username string `json:"username"`

	// Online is the persisted projection of presence. The in-memory registry
	// is authoritative; this flag only changes on first-join and last-leave edges.
	Online bool `json:"online"`

	// CreatedAt is when the user was added to the directory.
	CreatedAt time.Time `json:"createdAt"`
}

// Directory is the user store consumed by the presence layer.
type Directory interface {
	// Exists reports whether username is a known chat identity.
	Exists(ctx context.Context, username string) (bool, error)

	// IsOnline returns the persisted online flag; unknown users are offline.
	IsOnline(ctx context.Context, username string) (bool, error)

	// SetOnline updates the persisted online flag. Unknown users are ignored.
	SetOnline(ctx context.Context, username string, online bool) error

	// SetAllOffline clears the online flag for every user.
	SetAllOffline(ctx context.Context) error
}
