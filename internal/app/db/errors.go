package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// ErrUserExists is returned when creating a username that is already taken.
var ErrUserExists = errors.New("user already exists")

const sqliteConstraintCode = 19

// IsUniqueViolation reports whether err is a unique constraint violation:
// PostgreSQL code 23505, or any SQLite constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Extended result codes carry the primary code in the low byte.
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
