package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "soundcloud")

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if _, err := store.Read(ctx, KeyAccessToken); err == nil {
		t.Error("Read() of missing key should fail")
	}

	if err := store.Write(ctx, KeyAccessToken, "  first\n"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write(ctx, KeyAccessToken, "second"); err != nil {
		t.Fatalf("Write() overwrite error = %v", err)
	}
	if err := store.Write(ctx, KeyRefreshToken, "refresh"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "second" {
		t.Errorf("Read() = %q, want %q", got, "second")
	}

	info, err := os.Stat(filepath.Join(dir, KeyAccessToken))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("store directory holds %d entries, want 2 (no leftover temp files)", len(entries))
	}

	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
	if _, err := store.Read(ctx, KeyAccessToken); err == nil {
		t.Error("Read() after Delete() should fail")
	}
}

func TestFileStore_RejectsInsecurePermissions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, KeyAccessToken), []byte("token"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := store.Read(ctx, KeyAccessToken); err == nil {
		t.Error("Read() should reject world-readable token file")
	}
}

func TestFileStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	for _, key := range []string{"", "../escape", "with/slash", "UPPER", "dot.ted"} {
		if err := store.Write(ctx, key, "token"); err == nil {
			t.Errorf("Write(%q) should fail", key)
		}
	}

	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") should fail")
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, KeyAccessToken, "token"); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
}

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	t.Setenv("SCTEST_ACCESS_TOKEN", "from-env")
	t.Setenv("SCTEST_REFRESH_TOKEN", "")

	if _, err := NewEnvStore(""); err == nil {
		t.Error("NewEnvStore(\"\") should fail")
	}

	store, err := NewEnvStore("SCTEST_")
	if err != nil {
		t.Fatalf("NewEnvStore() error = %v", err)
	}

	got, err := store.Read(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "from-env" {
		t.Errorf("Read() = %q, want %q", got, "from-env")
	}

	if _, err := store.Read(ctx, KeyRefreshToken); err == nil {
		t.Error("Read() of empty variable should fail")
	}
	if _, err := store.Read(ctx, "missing"); err == nil {
		t.Error("Read() of unset variable should fail")
	}

	if err := store.Write(ctx, KeyAccessToken, "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write() error = %v, want ErrReadOnly", err)
	}
	if err := store.Delete(ctx, KeyAccessToken); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete() error = %v, want ErrReadOnly", err)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	if _, err := NewKeyringStore("", "user"); err == nil {
		t.Error("NewKeyringStore() with empty service should fail")
	}
	if _, err := NewKeyringStore("svc", ""); err == nil {
		t.Error("NewKeyringStore() with empty user should fail")
	}

	store, err := NewKeyringStore("sclogin-test", "alice")
	if err != nil {
		t.Fatalf("NewKeyringStore() error = %v", err)
	}

	if err := store.Write(ctx, KeyAccessToken, "secret-token"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := store.Read(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "secret-token" {
		t.Errorf("Read() = %q, want %q", got, "secret-token")
	}

	raw, err := keyring.Get("sclogin-test/access_token", "alice")
	if err != nil || raw != "secret-token" {
		t.Errorf("keyring entry = %q, %v; want stored under service sclogin-test/access_token", raw, err)
	}

	if _, err := store.Read(ctx, KeyRefreshToken); err == nil {
		t.Error("Read() of missing key should fail")
	}

	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestSaver(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := (Saver{Store: store}).Save(ctx, KeyAccessToken, "saved"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Read(ctx, KeyAccessToken)
	if err != nil || got != "saved" {
		t.Errorf("Read() = %q, %v; want saved", got, err)
	}
}
