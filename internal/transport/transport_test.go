package transport

import (
	"context"
	"testing"
	"time"
)

func TestHandshakeIncrementsPeerCount(t *testing.T) {
	server := New("node-server")
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	defer server.GracefulShutdown(context.Background())

	client := New("node-client")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Dial(ctx, server.Addr().String()); err != nil {
		t.Fatalf("Dial(): %v", err)
	}

	if client.PeerCount() != 1 {
		t.Errorf("client PeerCount() = %d, want 1", client.PeerCount())
	}

	// give the server goroutine a moment to process the inbound RPC
	time.Sleep(100 * time.Millisecond)
	if server.PeerCount() != 1 {
		t.Errorf("server PeerCount() = %d, want 1", server.PeerCount())
	}
}

func TestGracefulShutdownWithoutStart(t *testing.T) {
	n := New("node")
	if err := n.GracefulShutdown(context.Background()); err != nil {
		t.Errorf("GracefulShutdown() on unstarted network = %v, want nil", err)
	}
}

func TestDuplicateHandshakeDoesNotDoubleCount(t *testing.T) {
	server := New("node-server")
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	defer server.GracefulShutdown(context.Background())

	client := New("node-client")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addr := server.Addr().String()
	if err := client.Dial(ctx, addr); err != nil {
		t.Fatalf("Dial() first: %v", err)
	}
	if err := client.Dial(ctx, addr); err != nil {
		t.Fatalf("Dial() second: %v", err)
	}

	if client.PeerCount() != 1 {
		t.Errorf("PeerCount() = %d, want 1 after dialing the same peer twice", client.PeerCount())
	}
}
