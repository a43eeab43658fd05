package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore provides atomic file-based token storage with secure permissions.
// Each key is a file inside the store directory. Writes use temp file + rename
// for crash safety.
type FileStore struct {
	dir string
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating it (and parents)
// with 0700 permissions if it doesn't exist.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		dir: dir,
	}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, key), nil
}

// Read returns the stored token after trimming whitespace. Returns error if file
// doesn't exist, is empty, or has insecure permissions.
func (f *FileStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filePath, err := f.path(key)
	if err != nil {
		return "", err
	}

	// Check file permissions before reading
	info, err := os.Stat(filePath)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm() != 0600 {
		return "", fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("empty token file %s", filePath)
	}
	return token, nil
}

// Write atomically saves the token using temp file + rename for crash safety.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) Write(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := f.path(key)
	if err != nil {
		return err
	}

	// Temp file in the same directory keeps the rename atomic
	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write([]byte(strings.TrimSpace(token) + "\n")); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// Atomic rename to final location
	if err := os.Rename(tempName, filePath); err != nil {
		return err
	}

	// Set secure file permissions (0600 = rw-------)
	return os.Chmod(filePath, 0600)
}

// Delete removes the file of key.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
