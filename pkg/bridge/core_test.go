package bridge

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/urands/bridge/pkg/config"
	"github.com/urands/bridge/pkg/protocol"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func hostConfig(t *testing.T, port int) config.Config {
	t.Helper()
	cfg := *config.Default()
	cfg.Mode = "host"
	cfg.InstanceName = "host-node"
	cfg.Listen.Host = "127.0.0.1"
	cfg.Listen.Port = port
	cfg.Context.RootPath = t.TempDir()
	return cfg
}

func clientConfig(t *testing.T, port int) config.Config {
	t.Helper()
	cfg := *config.Default()
	cfg.Mode = "client"
	cfg.InstanceName = "client-node"
	cfg.Connect.URL = "ws://127.0.0.1:" + strconv.Itoa(port)
	cfg.Connect.Reconnect = false
	cfg.Context.RootPath = t.TempDir()
	return cfg
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// TestEchoTaskDelegation runs two in-process Core instances over a real
// loopback WebSocket connection: a host with a task handler that echoes the
// task id back, and a client that delegates a task and waits for the result.
func TestEchoTaskDelegation(t *testing.T) {
	port := freePort(t)

	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	host.OnTaskReceived(func(ctx context.Context, task *protocol.TaskRequest) (*protocol.TaskResult, error) {
		return &protocol.TaskResult{Success: true, Data: map[string]any{"echoId": task.ID}}, nil
	})
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	client, err := New(clientConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Stop()

	waitForCondition(t, 2*time.Second, func() bool { return client.GetPeerCount() == 1 })
	waitForCondition(t, 2*time.Second, func() bool { return host.GetPeerCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.DelegateTask(ctx, &protocol.TaskRequest{
		ID:          "t-1",
		Description: "echo",
		Scope:       protocol.ScopeExecute,
		TimeoutMS:   2000,
	}, "")
	if err != nil {
		t.Fatalf("delegate task: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["echoId"] != "t-1" {
		t.Fatalf("expected echoId t-1, got %+v", result.Data)
	}
}

// TestRequestContextRoundTrip exercises requestContext end to end: the host
// answers with a fixed file chunk, the client blocks for it.
func TestRequestContextRoundTrip(t *testing.T) {
	port := freePort(t)

	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	host.OnContextRequested(func(ctx context.Context, query string) ([]protocol.FileChunk, error) {
		return []protocol.FileChunk{{Path: "auth.go", Content: query}}, nil
	})
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	client, err := New(clientConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Stop()

	waitForCondition(t, 2*time.Second, func() bool { return client.GetPeerCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chunks, err := client.RequestContext(ctx, "fix login bug", "", time.Second)
	if err != nil {
		t.Fatalf("request context: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Path != "auth.go" || chunks[0].Content != "fix login bug" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

// TestPeerDisconnectFailsPendingRequests verifies that tearing down the
// connection mid-request fails the pending task with an error instead of
// leaking the caller's goroutine. The client stops itself here, so the
// error it sees is BridgeShuttingDown rather than PeerDisconnected.
func TestPeerDisconnectFailsPendingRequests(t *testing.T) {
	port := freePort(t)

	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	// No task handler and no other peer: the host will reply with a
	// synthetic failure instead of ever leaving the request pending, so
	// force the pending path by holding the handler forever until the
	// client disconnects itself.
	block := make(chan struct{})
	host.OnTaskReceived(func(ctx context.Context, task *protocol.TaskRequest) (*protocol.TaskResult, error) {
		<-block
		return &protocol.TaskResult{Success: true}, nil
	})
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()
	defer close(block)

	client, err := New(clientConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return client.GetPeerCount() == 1 })

	resultCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := client.DelegateTask(ctx, &protocol.TaskRequest{
			ID: "t-2", Scope: protocol.ScopeExecute, TimeoutMS: 3000,
		}, "")
		resultCh <- err
	}()

	waitForCondition(t, time.Second, func() bool { return host.GetPeerCount() == 1 })
	client.Stop()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected delegate task to fail once peer disconnected")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("delegate task never returned after peer disconnect")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	port := freePort(t)
	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	host.Stop()
	host.Stop() // must be a no-op, not a panic

	if host.IsStarted() {
		t.Fatal("expected bridge to be stopped")
	}
}

func TestModeValidation(t *testing.T) {
	cfg := *config.Default()
	cfg.Mode = "client"
	cfg.Connect.URL = ""
	cfg.Connect.Host = ""
	cfg.Connect.Port = 0

	c, err := New(cfg, nil, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail for client mode with no connect target")
	}
	if c.IsStarted() {
		t.Fatal("expected bridge to remain stopped after failed start")
	}
}

func TestDelegateTaskNoPeersConnected(t *testing.T) {
	port := freePort(t)
	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer host.Stop()

	_, err = host.DelegateTask(context.Background(), &protocol.TaskRequest{ID: "t-3", Scope: protocol.ScopeExecute}, "")
	if err == nil {
		t.Fatal("expected no-peers error")
	}
}

func TestBroadcastDeliversNotification(t *testing.T) {
	port := freePort(t)

	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	var received []*protocol.Envelope
	host.OnMessage(func(env *protocol.Envelope, peerID string) {
		received = append(received, env)
	})
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	client, err := New(clientConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Stop()

	waitForCondition(t, 2*time.Second, func() bool { return host.GetPeerCount() == 1 })

	notice := protocol.NewEnvelope(protocol.MsgNotification, client.InstanceName())
	notice.Context = &protocol.Context{Summary: "hello"}
	if err := client.Broadcast(&notice); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return len(received) == 1 })
	if received[0].Context == nil || received[0].Context.Summary != "hello" {
		t.Fatalf("unexpected received envelope: %+v", received[0])
	}
}

// TestSignedAuthAccepts wires the host to trust the client's public key and
// the client to mint its bearer token from a matching private key, then
// checks the connection establishes.
func TestSignedAuthAccepts(t *testing.T) {
	port := freePort(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privB64 := base64.RawURLEncoding.EncodeToString(priv)
	pubB64 := base64.RawURLEncoding.EncodeToString(pub)

	hc := hostConfig(t, port)
	hc.Listen.Auth = config.AuthConfig{Mode: "signed", TrustedPublicKeys: []string{pubB64}, TokenMaxAgeMS: 60_000}
	host, err := New(hc, nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	cc := clientConfig(t, port)
	cc.Connect.Auth = config.AuthConfig{Mode: "signed", PrivateKeyB64: privB64}
	client, err := New(cc, nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Stop()

	waitForCondition(t, 2*time.Second, func() bool { return host.GetPeerCount() == 1 })
}

// TestSignedAuthRejectsUntrustedKey checks a client signing with a key the
// host doesn't trust never gets counted as a connected peer.
func TestSignedAuthRejectsUntrustedKey(t *testing.T) {
	port := freePort(t)
	trustedPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate trusted key: %v", err)
	}
	_, untrustedPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate untrusted key: %v", err)
	}
	pubB64 := base64.RawURLEncoding.EncodeToString(trustedPub)
	privB64 := base64.RawURLEncoding.EncodeToString(untrustedPriv)

	hc := hostConfig(t, port)
	hc.Listen.Auth = config.AuthConfig{Mode: "signed", TrustedPublicKeys: []string{pubB64}, TokenMaxAgeMS: 60_000}
	host, err := New(hc, nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	cc := clientConfig(t, port)
	cc.Connect.Auth = config.AuthConfig{Mode: "signed", PrivateKeyB64: privB64}
	client, err := New(cc, nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_ = client.Start(context.Background())
	defer client.Stop()

	time.Sleep(200 * time.Millisecond)
	if host.GetPeerCount() != 0 {
		t.Fatalf("expected untrusted client to be rejected, got %d peers", host.GetPeerCount())
	}
}

// TestDelegateTaskRejectsUnrepresentableData checks that a task whose Data
// map can't round-trip through a protobuf Struct (here, a channel value) is
// rejected before ever reaching the correlator or the wire.
func TestDelegateTaskRejectsUnrepresentableData(t *testing.T) {
	port := freePort(t)
	host, err := New(hostConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	_, err = host.DelegateTask(context.Background(), &protocol.TaskRequest{
		ID:    "t-bad",
		Scope: protocol.ScopeExecute,
		Data:  map[string]any{"ch": make(chan int)},
	}, "")
	if err == nil {
		t.Fatal("expected delegate task to reject an unrepresentable data field")
	}
}

// TestAutoSyncWatcherTriggersBroadcast writes a file under the host's
// context root with AutoSync enabled and checks the host broadcasts a
// context_sync without waiting for the periodic interval.
func TestAutoSyncWatcherTriggersBroadcast(t *testing.T) {
	port := freePort(t)
	hc := hostConfig(t, port)
	hc.ContextSharing.AutoSync = true
	hc.ContextSharing.SyncIntervalMS = 60_000 // long enough that only the watcher can fire in time
	host, err := New(hc, nil, "")
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Stop()

	client, err := New(clientConfig(t, port), nil, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var syncs int
	client.OnContextReceived(func(ctx *protocol.Context, peerID string) { syncs++ })
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Stop()

	waitForCondition(t, 2*time.Second, func() bool { return host.GetPeerCount() == 1 })

	if err := os.WriteFile(filepath.Join(hc.Context.RootPath, "new.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitForCondition(t, 3*time.Second, func() bool { return syncs > 0 })
}
