// Package sessionhosttest holds the behavioural checks every
// sessions.SessionHost implementation must pass.
package sessionhosttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/internal/jsonrpc"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
)

// HostFactory creates a new SessionHost instance for testing. Each call must
// return a host with an empty slot.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Slot_ClaimReturnsPrevious", func(t *testing.T) { testClaimReturnsPrevious(t, factory) })
	t.Run("Slot_ReleaseIsCompareAndClear", func(t *testing.T) { testReleaseIsCompareAndClear(t, factory) })
	t.Run("Slot_ConcurrentClaimsFormAChain", func(t *testing.T) { testConcurrentClaims(t, factory) })

	t.Run("Messaging_BufferedBeforeSubscribe", func(t *testing.T) { testBufferedBeforeSubscribe(t, factory) })
	t.Run("Messaging_OrderPreserved", func(t *testing.T) { testOrderPreserved(t, factory) })
	t.Run("Messaging_IsolationBetweenSessions", func(t *testing.T) { testSessionIsolation(t, factory) })
	t.Run("Messaging_PublishToUnknownSession", func(t *testing.T) { testPublishUnknownSession(t, factory) })
	t.Run("Messaging_SubscriptionContextCancellation", func(t *testing.T) { testSubscriptionContextCancellation(t, factory) })
	t.Run("Messaging_HandlerErrorStopsSubscription", func(t *testing.T) { testHandlerErrorStopsSubscription(t, factory) })
	t.Run("Messaging_CleanupStopsSubscription", func(t *testing.T) { testCleanupStopsSubscription(t, factory) })
}

func request(method string, id int) []byte {
	b, _ := json.Marshal(&jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method, ID: jsonrpc.NewRequestID(id)})
	return b
}

func methodOf(t *testing.T, data []byte) string {
	t.Helper()
	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
	return req.Method
}

// --- Slot tests ---

func testClaimReturnsPrevious(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	cur, err := h.CurrentSlot(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur != "" {
		t.Fatalf("expected empty slot, got %q", cur)
	}

	prev, err := h.ClaimSlot(ctx, "sess-a")
	if err != nil {
		t.Fatalf("claim a: %v", err)
	}
	if prev != "" {
		t.Fatalf("expected no previous session, got %q", prev)
	}

	prev, err = h.ClaimSlot(ctx, "sess-b")
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if prev != "sess-a" {
		t.Fatalf("expected previous sess-a, got %q", prev)
	}

	cur, _ = h.CurrentSlot(ctx)
	if cur != "sess-b" {
		t.Fatalf("expected sess-b active, got %q", cur)
	}
}

func testReleaseIsCompareAndClear(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	if _, err := h.ClaimSlot(ctx, "sess-a"); err != nil {
		t.Fatalf("claim a: %v", err)
	}
	if _, err := h.ClaimSlot(ctx, "sess-b"); err != nil {
		t.Fatalf("claim b: %v", err)
	}

	released, err := h.ReleaseSlot(ctx, "sess-a")
	if err != nil {
		t.Fatalf("release a: %v", err)
	}
	if released {
		t.Fatalf("releasing a replaced session must not clear the slot")
	}
	if cur, _ := h.CurrentSlot(ctx); cur != "sess-b" {
		t.Fatalf("expected sess-b to stay active, got %q", cur)
	}

	released, err = h.ReleaseSlot(ctx, "sess-b")
	if err != nil {
		t.Fatalf("release b: %v", err)
	}
	if !released {
		t.Fatalf("expected release of the active session to succeed")
	}
	if cur, _ := h.CurrentSlot(ctx); cur != "" {
		t.Fatalf("expected empty slot, got %q", cur)
	}

	released, _ = h.ReleaseSlot(ctx, "sess-b")
	if released {
		t.Fatalf("second release must be a no-op")
	}
}

// Every claim observes exactly one predecessor, so the previous ids plus the
// final holder cover every claimant and the initial empty slot exactly once.
func testConcurrentClaims(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		prevs []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prev, err := h.ClaimSlot(ctx, fmt.Sprintf("sess-%02d", i))
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			mu.Lock()
			prevs = append(prevs, prev)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	final, err := h.CurrentSlot(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	got := append(prevs, final)
	sort.Strings(got)
	want := []string{""}
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("sess-%02d", i))
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claims do not form a chain: %v", got)
		}
	}
}

// --- Messaging tests ---

func testBufferedBeforeSubscribe(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID := "sess-buffered"
	if _, err := h.ClaimSlot(ctx, sessionID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	ev1, err := h.PublishSession(ctx, sessionID, request("test/m1", 1))
	if err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if ev1 == "" {
		t.Fatalf("expected non-empty event id")
	}
	if _, err := h.PublishSession(ctx, sessionID, request("test/m2", 2)); err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	var got []string
	var firstID string
	err = h.SubscribeSession(ctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error {
		if firstID == "" {
			firstID = msgID
		}
		got = append(got, methodOf(t, msg))
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("subscribe returned: %v", err)
	}
	if len(got) != 2 || got[0] != "test/m1" || got[1] != "test/m2" {
		t.Fatalf("expected [test/m1 test/m2], got %v", got)
	}
	if firstID != ev1 {
		t.Fatalf("expected first event id %s, got %s", ev1, firstID)
	}
}

func testOrderPreserved(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionID := "sess-order"
	if _, err := h.ClaimSlot(ctx, sessionID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	const n = 25
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error {
			mu.Lock()
			got = append(got, methodOf(t, msg))
			finished := len(got) == n
			mu.Unlock()
			if finished {
				cancel()
			}
			return nil
		})
	}()

	for i := 0; i < n; i++ {
		if _, err := h.PublishSession(ctx, sessionID, request(fmt.Sprintf("test/%02d", i), i)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("subscribe timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Fatalf("expected %d messages, got %d", n, len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("test/%02d", i); m != want {
			t.Fatalf("message %d: want %s got %s", i, want, m)
		}
	}
}

func testSessionIsolation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s1, s2 := "sess-iso-a", "sess-iso-b"
	for _, id := range []string{s1, s2} {
		if _, err := h.ClaimSlot(ctx, id); err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
	}

	if _, err := h.PublishSession(ctx, s1, request("test/a", 1)); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if _, err := h.PublishSession(ctx, s2, request("test/b", 2)); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	collect := func(sessionID string) []string {
		sctx, scancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer scancel()
		var got []string
		_ = h.SubscribeSession(sctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error {
			got = append(got, methodOf(t, msg))
			return nil
		})
		return got
	}

	if got := collect(s1); len(got) != 1 || got[0] != "test/a" {
		t.Fatalf("session a: expected [test/a], got %v", got)
	}
	if got := collect(s2); len(got) != 1 || got[0] != "test/b" {
		t.Fatalf("session b: expected [test/b], got %v", got)
	}
}

func testPublishUnknownSession(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	if _, err := h.PublishSession(ctx, "sess-missing", request("test/x", 1)); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := h.ClaimSlot(ctx, "sess-gone"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := h.CleanupSession(ctx, "sess-gone"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := h.PublishSession(ctx, "sess-gone", request("test/x", 1)); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after cleanup, got %v", err)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithCancel(context.Background())
	sessionID := "sess-cancel"
	if _, err := h.ClaimSlot(ctx, sessionID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error { return nil })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not stop after cancellation")
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID := "sess-handler-err"
	if _, err := h.ClaimSlot(ctx, sessionID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := h.PublishSession(ctx, sessionID, request("test/err", 1)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	boom := errors.New("boom")
	err := h.SubscribeSession(ctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func testCleanupStopsSubscription(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID := "sess-cleanup"
	if _, err := h.ClaimSlot(ctx, sessionID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sessionID, func(ctx context.Context, msgID string, msg []byte) error { return nil })
	}()

	time.Sleep(50 * time.Millisecond)
	if err := h.CleanupSession(ctx, sessionID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
			t.Fatalf("unexpected error after cleanup: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not stop after cleanup")
	}
}
