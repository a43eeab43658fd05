package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to tokens stored in environment variables.
// The token of key "access_token" with prefix "SOUNDCLOUD_" is read from
// SOUNDCLOUD_ACCESS_TOKEN. Suitable for serving tokens but not for sign-in
// (requires writable storage).
type EnvStore struct {
	prefix string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading variables with the given prefix.
// Returns error if the prefix is empty.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
	}, nil
}

func (e *EnvStore) envKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return e.prefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_")), nil
}

// Read returns the token from the environment variable. Returns error if unset or empty.
func (e *EnvStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	envKey, err := e.envKey(key)
	if err != nil {
		return "", err
	}

	token, exists := os.LookupEnv(envKey)
	if !exists {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty", envKey)
	}
	return token, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variables: %w", ErrReadOnly)
}

// Delete is not supported for environment variables (they are read-only).
func (e *EnvStore) Delete(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variables: %w", ErrReadOnly)
}
