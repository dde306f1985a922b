package correlator

import (
	"strings"
	"testing"
	"time"

	"github.com/urands/bridge/internal/bridgeerr"
)

func TestRegisterCompleteRoundTrip(t *testing.T) {
	c := New(nil)
	defer c.Close()

	ch, err := c.Register(KindTask, "t-1", "peer-a", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	c.Complete(KindTask, "t-1", Outcome{Value: "ok"})

	select {
	case o := <-ch:
		if o.Err != nil || o.Value != "ok" {
			t.Fatalf("unexpected outcome: %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestDuplicateRegisterFails(t *testing.T) {
	c := New(nil)
	defer c.Close()

	if _, err := c.Register(KindTask, "dup", "peer-a", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := c.Register(KindTask, "dup", "peer-a", time.Now().Add(time.Second)); err == nil {
		t.Fatal("expected second register with same id to fail")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	c := New(nil)
	defer c.Close()

	ch, _ := c.Register(KindTask, "t-2", "peer-a", time.Now().Add(time.Second))
	c.Complete(KindTask, "t-2", Outcome{Value: 1})
	c.Complete(KindTask, "t-2", Outcome{Value: 2}) // no-op, already completed/removed

	o := <-ch
	if o.Value != 1 {
		t.Fatalf("expected first completion to win, got %+v", o)
	}
}

func TestTimeoutFiresAndIsTerminal(t *testing.T) {
	c := New(nil)
	defer c.Close()

	ch, err := c.Register(KindTask, "t-3", "peer-a", time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case o := <-ch:
		berr, ok := o.Err.(*bridgeerr.Error)
		if !ok || berr.Code != bridgeerr.CodeTimeout {
			t.Fatalf("expected timeout error, got %+v", o.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected timeout to fire")
	}

	// A late completion after timeout must be dropped, not delivered again.
	c.Complete(KindTask, "t-3", Outcome{Value: "too late"})
}

// TestTimeoutErrorMentionsConfiguredDuration covers spec.md §8 scenario 3:
// a request that times out must fail with an error naming the timeout that
// was actually configured, not a generic message.
func TestTimeoutErrorMentionsConfiguredDuration(t *testing.T) {
	c := New(nil)
	defer c.Close()

	timeout := 200 * time.Millisecond
	ch, err := c.Register(KindTask, "t-200ms", "peer-a", time.Now().Add(timeout))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case o := <-ch:
		berr, ok := o.Err.(*bridgeerr.Error)
		if !ok || berr.Code != bridgeerr.CodeTimeout {
			t.Fatalf("expected timeout error, got %+v", o.Err)
		}
		if !strings.Contains(berr.Error(), "200ms") {
			t.Fatalf("expected timeout error to mention 200ms, got %q", berr.Error())
		}
		if berr.Context["timeoutMs"] != int64(200) {
			t.Fatalf("expected timeoutMs context of 200, got %+v", berr.Context["timeoutMs"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected timeout to fire")
	}
}

func TestFailByPeerOnlyAffectsThatPeer(t *testing.T) {
	c := New(nil)
	defer c.Close()

	chA, _ := c.Register(KindTask, "a-1", "peer-a", time.Now().Add(time.Second))
	chB, _ := c.Register(KindTask, "b-1", "peer-b", time.Now().Add(time.Second))

	c.FailByPeer("peer-a", bridgeerr.New(bridgeerr.Peer, bridgeerr.CodePeerDisconnected, "disconnected"))

	select {
	case o := <-chA:
		if o.Err == nil {
			t.Fatal("expected peer-a's entry to fail")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	select {
	case <-chB:
		t.Fatal("peer-b's entry should not have completed")
	case <-time.After(50 * time.Millisecond):
	}

	c.Complete(KindTask, "b-1", Outcome{Value: "still pending"})
	o := <-chB
	if o.Value != "still pending" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestFailAllCompletesEverythingAndBlocksFurtherRegister(t *testing.T) {
	c := New(nil)
	defer c.Close()

	ch, _ := c.Register(KindContext, "ctx-1", "peer-a", time.Now().Add(time.Second))
	c.FailAll(bridgeerr.New(bridgeerr.Lifecycle, bridgeerr.CodeBridgeShuttingDown, "shutting down"))

	o := <-ch
	if o.Err == nil {
		t.Fatal("expected shutdown error")
	}

	if _, err := c.Register(KindTask, "t-after-shutdown", "peer-a", time.Now().Add(time.Second)); err == nil {
		t.Fatal("expected register to fail after FailAll")
	}
}

func TestPendingCountTracksPerPeer(t *testing.T) {
	c := New(nil)
	defer c.Close()

	c.Register(KindTask, "t-1", "peer-a", time.Now().Add(time.Second))
	c.Register(KindContext, "c-1", "peer-a", time.Now().Add(time.Second))
	c.Register(KindTask, "t-2", "peer-b", time.Now().Add(time.Second))

	if got := c.PendingCount("peer-a"); got != 2 {
		t.Fatalf("expected 2 pending for peer-a, got %d", got)
	}
	if got := c.PendingCount("peer-b"); got != 1 {
		t.Fatalf("expected 1 pending for peer-b, got %d", got)
	}
}
