package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"realchat/internal/app/user"
)

// UserRepository is the SQL-backed user.Directory.
type UserRepository struct {
	store *Store
}

var _ user.Directory = (*UserRepository)(nil)

// NewUserRepository constructs a UserRepository over store.
func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// Create adds an offline user. It returns ErrUserExists if the username is taken.
func (r *UserRepository) Create(ctx context.Context, username string) (user.User, error) {
	u := user.User{Username: username, CreatedAt: time.Now().UTC().Truncate(time.Second)}

	_, err := r.store.db.ExecContext(ctx,
		r.store.rebind(`INSERT INTO users (username, online, created_at) VALUES (?, ?, ?)`),
		u.Username, false, u.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, ErrUserExists
		}
		return user.User{}, fmt.Errorf("insert user %s: %w", username, err)
	}
	return u, nil
}

// Exists reports whether username is in the directory.
func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx,
		r.store.rebind(`SELECT 1 FROM users WHERE username = ?`),
		username,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup user %s: %w", username, err)
	}
	return true, nil
}

// IsOnline returns the persisted online flag. Unknown users are offline.
func (r *UserRepository) IsOnline(ctx context.Context, username string) (bool, error) {
	var online bool
	err := r.store.db.QueryRowContext(ctx,
		r.store.rebind(`SELECT online FROM users WHERE username = ?`),
		username,
	).Scan(&online)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read online flag of %s: %w", username, err)
	}
	return online, nil
}

// SetOnline updates the online flag. Unknown users are ignored.
func (r *UserRepository) SetOnline(ctx context.Context, username string, online bool) error {
	_, err := r.store.db.ExecContext(ctx,
		r.store.rebind(`UPDATE users SET online = ? WHERE username = ?`),
		online, username,
	)
	if err != nil {
		return fmt.Errorf("set online=%t for %s: %w", online, username, err)
	}
	return nil
}

// SetAllOffline clears the online flag of every user.
func (r *UserRepository) SetAllOffline(ctx context.Context) error {
	_, err := r.store.db.ExecContext(ctx,
		r.store.rebind(`UPDATE users SET online = ? WHERE online <> ?`),
		false, false,
	)
	if err != nil {
		return fmt.Errorf("set all users offline: %w", err)
	}
	return nil
}
