// Package service holds the credential and versioning business logic.
// Persistence is reached through small consumer-side interfaces so the
// services can be exercised with fakes or a throwaway SQLite database.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDenied is the uniform soft failure for bad credentials and invalid
// tokens. Callers must not learn which check failed.
var ErrDenied = errors.New("access denied")

// ErrIntegrity is wrapped when a stored version trail fails verification.
var ErrIntegrity = errors.New("version trail integrity check failed")

// ErrVersionExists is returned by MakeVersion when a trail already exists.
var ErrVersionExists = errors.New("version history already exists")

// AuthError is a validation failure whose message is shown to the client.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

func authErr(format string, args ...any) *AuthError {
	return &AuthError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError hides the cause from clients behind a reference code
// that is also written to the log.
type InternalError struct {
	Code string
	Err  error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (ref %s): %v", e.Code, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func internalErr(log *zap.Logger, op string, err error) *InternalError {
	e := &InternalError{
		Code: strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		Err:  fmt.Errorf("%s: %w", op, err),
	}
	log.Error("internal error", zap.String("ref", e.Code), zap.String("op", op), zap.Error(err))
	return e
}

// Internal wraps err as an *InternalError unless it already is one.
func Internal(log *zap.Logger, op string, err error) *InternalError {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie
	}
	if log == nil {
		log = zap.NewNop()
	}
	return internalErr(log, op, err)
}
