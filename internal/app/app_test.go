package app

import (
	"context"
	"testing"
	"time"
)

func TestApp_StartStop(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.Auth = AuthConfig{Storage: TokenStorageTypeFile, Dir: t.TempDir()}
	cfg.Player.Server.Port = 0

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.LogFormat = "xml"

	if _, err := New(cfg); err == nil {
		t.Error("New() with invalid config should fail")
	}
}
