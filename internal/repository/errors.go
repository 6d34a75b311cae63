// Package repository holds the raw-SQL data access for users, passwords,
// tokens, version trails and versioned app rows. The sentinel errors
// below let services and handlers tell failure kinds apart without
// inspecting driver errors.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a lookup matches no row. Handlers should
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as a duplicate login or a version number already taken.
var ErrConflict = errors.New("conflict")

// ErrInvalidField is returned when a write names a column outside the
// app's registered layout.
var ErrInvalidField = errors.New("invalid field")

// isDuplicate recognizes unique-key violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}
