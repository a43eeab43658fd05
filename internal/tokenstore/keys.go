package tokenstore

import (
	"context"
	"fmt"
)

// Well-known keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// validateKey restricts keys to names that are safe as file names,
// environment variable suffixes and keyring service components.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("token key cannot be empty")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid token key %q: only lowercase letters, digits, '_' and '-' allowed", key)
		}
	}
	return nil
}

// Saver adapts a TokenStore to the save-only contract used during sign-in.
type Saver struct {
	Store TokenStore
}

// Save writes value under key.
func (s Saver) Save(ctx context.Context, key, value string) error {
	return s.Store.Write(ctx, key, value)
}
