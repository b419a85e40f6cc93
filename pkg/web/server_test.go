package web

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

func TestServerDisabledStartReturnsImmediately(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	srv := NewServer(Config{Enabled: false}, log)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("expected no error when disabled, got %v", err)
	}
}

func TestServerServesStatusEndpoint(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	srv := NewServer(Config{Enabled: true, Host: "127.0.0.1", Port: 0}, log)
	srv.WithStatusProvider(stubStatusProvider{status: HardwareStatus{DisplayMode: "video"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	var addr string
	for i := 0; i < 50; i++ {
		if addr = srv.Addr(); addr != "" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server did not start listening in time")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("failed to GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status HardwareStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.DisplayMode != "video" {
		t.Errorf("expected display mode video, got %q", status.DisplayMode)
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil && err != context.Canceled && err != http.ErrServerClosed {
			t.Errorf("unexpected error from server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop in time")
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	srv := NewServer(Config{Enabled: true, Host: "127.0.0.1", Port: 0}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Start(ctx) }()

	var addr string
	for i := 0; i < 50; i++ {
		if addr = srv.Addr(); addr != "" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server did not start listening in time")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("failed to GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
