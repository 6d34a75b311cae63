package utils

import "github.com/google/uuid"

// NewOpaqueToken returns a random token in the 8-4-4-4-12 hex form.
func NewOpaqueToken() string {
	return uuid.NewString()
}
