package tokenstore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by Write and Delete on read-only backends.
var ErrReadOnly = errors.New("token storage is read-only")

// TokenStore reads and writes named tokens to persistent storage.
//
// Keys are short identifiers such as "access_token"; writes overwrite.
type TokenStore interface {
	// Read returns the token stored under key. Returns error if token is missing or empty.
	Read(ctx context.Context, key string) (string, error)

	// Write persists the token under key. Returns error if storage backend
	// is read-only (e.g., environment variables) or if write operation fails.
	Write(ctx context.Context, key, token string) error

	// Delete removes the token stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
