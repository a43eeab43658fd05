package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for tokens.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Each key is stored as its own secret under the service "<service>/<key>".
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

func (k *KeyringStore) serviceFor(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return k.service + "/" + key, nil
}

// Read returns the token from the system keyring. Returns error if not found or empty.
func (k *KeyringStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	service, err := k.serviceFor(key)
	if err != nil {
		return "", err
	}

	token, err := keyring.Get(service, k.user)
	if err != nil {
		return "", err
	}

	if token == "" {
		return "", fmt.Errorf("empty token in keyring for service %s, user %s", service, k.user)
	}

	return token, nil
}

// Write persists the token to the system keyring, overwriting any existing value.
func (k *KeyringStore) Write(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	service, err := k.serviceFor(key)
	if err != nil {
		return err
	}

	return keyring.Set(service, k.user, token)
}

// Delete removes the token from the system keyring.
func (k *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	service, err := k.serviceFor(key)
	if err != nil {
		return err
	}

	if err := keyring.Delete(service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
