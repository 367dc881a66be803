// ABOUTME: Tests for the backend connection against a re-executed fake child process
// ABOUTME: Correlation under concurrency, error mapping, junk tolerance, timeouts, streams, crashes

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestBackend_StartFailureThenNotStarted(t *testing.T) {
	t.Parallel()

	b := New(Options{Command: "/nonexistent/openagent-backend", Stderr: io.Discard})
	err := b.Start()
	if KindOf(err) != KindIO {
		t.Fatalf("Start err = %v; want io error", err)
	}
	if b.IsRunning() {
		t.Error("IsRunning = true after failed start")
	}

	_, err = b.Call(context.Background(), "echo", nil)
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("Call err = %v; want ErrNotStarted", err)
	}
}

func TestBackend_CallBeforeStart(t *testing.T) {
	t.Parallel()

	b := New(fakeOptions())
	if _, err := b.Call(context.Background(), "echo", nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v; want ErrNotStarted", err)
	}
	if _, err := b.CallStreaming(context.Background(), "stream", nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("streaming err = %v; want ErrNotStarted", err)
	}
	if b.State() != StateNotStarted {
		t.Errorf("State = %v; want not started", b.State())
	}
}

func TestBackend_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	params := map[string]any{"message": "hello", "n": 3}
	raw, err := b.Call(context.Background(), "echo", params)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["message"] != "hello" || got["n"] != float64(3) {
		t.Errorf("got %v", got)
	}
}

func TestBackend_NullResult(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	raw, err := b.Call(context.Background(), "null", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("raw = %s; want null", raw)
	}
}

func TestBackend_RPCError(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	_, err := b.Call(context.Background(), "fail", nil)

	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("err = %v; want *Error", err)
	}
	if be.Kind != KindRPC || be.Code != -32601 || be.Message != "method not found" {
		t.Errorf("err = %+v", be)
	}
	if be.Error() != "rpc error -32601: method not found" {
		t.Errorf("Error() = %q", be.Error())
	}
}

func TestBackend_ConcurrentCallsCorrelate(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	const n = 50

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			// Later calls answer sooner, so arrival order differs from send order.
			params := map[string]any{"ms": (n - i) % 10 * 5, "v": i}
			raw, err := b.Call(context.Background(), "delay", params)
			if err != nil {
				return err
			}
			var got int
			if err := json.Unmarshal(raw, &got); err != nil {
				return err
			}
			if got != i {
				return fmt.Errorf("call %d received %d", i, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestBackend_JunkLinesAreSkipped(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	for i := 0; i < 2; i++ {
		raw, err := b.Call(context.Background(), "junk", nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if string(raw) != `{"ok":true}` {
			t.Errorf("call %d raw = %s", i, raw)
		}
	}
	if !b.IsRunning() {
		t.Error("backend stopped after junk output")
	}
}

func TestBackend_OversizedLineIsSkipped(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	raw, err := b.Call(context.Background(), "oversized", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"after"` {
		t.Errorf("raw = %s; want \"after\"", raw)
	}
	if !b.IsRunning() {
		t.Fatal("backend stopped after an oversized line")
	}
	if _, err := b.Call(context.Background(), "echo", map[string]int{"n": 1}); err != nil {
		t.Errorf("call after oversized line: %v", err)
	}
}

func TestBackend_InvalidRawParamsFailFast(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	start := time.Now()
	_, err := b.Call(context.Background(), "echo", json.RawMessage(`{"a":`))
	if KindOf(err) != KindParse {
		t.Fatalf("err = %v; want parse error", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Call took %s; want an immediate failure", elapsed)
	}
	if _, err := b.CallStreaming(context.Background(), "stream", json.RawMessage(`nope`)); KindOf(err) != KindParse {
		t.Errorf("streaming err = %v; want parse error", err)
	}

	b.mu.RLock()
	n := b.conn.pending.len()
	b.mu.RUnlock()
	if n != 0 {
		t.Errorf("pending = %d; want 0", n)
	}

	raw, err := b.Call(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil || string(raw) != `{"a":1}` {
		t.Errorf("valid raw params: raw = %s, err = %v", raw, err)
	}
}

func TestBackend_StaleIDDoesNotResolveOtherCall(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	raw, err := b.Call(context.Background(), "stale", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"right"` {
		t.Errorf("raw = %s; want \"right\"", raw)
	}
}

func TestBackend_TimeoutIsProcessDiedAndBounded(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	for i := 0; i < 20; i++ {
		_, err := b.CallTimeout(context.Background(), "hang", nil, 10*time.Millisecond)
		if !errors.Is(err, ErrProcessDied) {
			t.Fatalf("err = %v; want ErrProcessDied", err)
		}
	}

	b.mu.RLock()
	n := b.conn.pending.len()
	b.mu.RUnlock()
	if n != 0 {
		t.Errorf("pending entries after timeouts = %d; want 0", n)
	}

	// The connection itself is still usable.
	if _, err := b.Call(context.Background(), "echo", map[string]int{"x": 1}); err != nil {
		t.Errorf("Call after timeouts: %v", err)
	}
}

func TestBackend_ContextCancel(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Call(ctx, "hang", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v; want deadline exceeded", err)
	}
}

func TestBackend_StreamingOrder(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	s, err := b.CallStreaming(context.Background(), "stream", map[string]any{"chunks": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("CallStreaming: %v", err)
	}
	defer b.ClearStream()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got []StreamEvent
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != 3 {
		t.Fatalf("got %d events (%+v); want 3", len(got), got)
	}
	if got[0].Kind != EventChunk || got[0].Text != "a" || got[1].Kind != EventChunk || got[1].Text != "b" {
		t.Errorf("chunks = %+v", got[:2])
	}
	if got[2].Kind != EventDone || got[2].Tokens == nil || got[2].Tokens.TotalTokens != 42 {
		t.Errorf("done = %+v", got[2])
	}
}

func TestBackend_SecondStreamRejectedUntilCleared(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	if _, err := b.CallStreaming(context.Background(), "hang", nil); err != nil {
		t.Fatalf("first CallStreaming: %v", err)
	}
	if _, err := b.CallStreaming(context.Background(), "hang", nil); !errors.Is(err, ErrStreamActive) {
		t.Fatalf("second CallStreaming err = %v; want ErrStreamActive", err)
	}

	b.ClearStream()
	s, err := b.CallStreaming(context.Background(), "stream", map[string]any{"chunks": []string{"z"}})
	if err != nil {
		t.Fatalf("CallStreaming after clear: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	if err != nil || ev.Text != "z" {
		t.Errorf("first event = %+v, %v", ev, err)
	}
	b.ClearStream()

	b.mu.RLock()
	n := b.conn.pending.len()
	b.mu.RUnlock()
	if n != 0 {
		t.Errorf("pending entries after clears = %d; want 0", n)
	}
}

func TestBackend_StreamRequestErrorClosesStream(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	s, err := b.CallStreaming(context.Background(), "stream_fail", nil)
	if err != nil {
		t.Fatalf("CallStreaming: %v", err)
	}
	defer b.ClearStream()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = s.Next(ctx)
	if KindOf(err) != KindRPC {
		t.Errorf("err = %v; want rpc error", err)
	}
}

func TestBackend_CrashFailsInFlightCalls(t *testing.T) {
	t.Parallel()

	b := startFake(t)

	hung := make(chan error, 1)
	go func() {
		_, err := b.CallTimeout(context.Background(), "hang", nil, 30*time.Second)
		hung <- err
	}()
	s, err := b.CallStreaming(context.Background(), "hang", nil)
	if err != nil {
		t.Fatalf("CallStreaming: %v", err)
	}

	// Give the hang call time to be written before the crash.
	time.Sleep(50 * time.Millisecond)
	if _, err := b.Call(context.Background(), "crash", nil); !errors.Is(err, ErrProcessDied) {
		t.Errorf("crash call err = %v; want ErrProcessDied", err)
	}

	select {
	case err := <-hung:
		if !errors.Is(err, ErrProcessDied) {
			t.Errorf("in-flight err = %v; want ErrProcessDied", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("in-flight call not failed after child exit")
	}

	select {
	case <-b.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Exited not closed")
	}
	if b.IsRunning() {
		t.Error("IsRunning = true after crash")
	}
	if _, err := b.Call(context.Background(), "echo", nil); !errors.Is(err, ErrProcessDied) {
		t.Errorf("call after crash err = %v; want ErrProcessDied", err)
	}
	if _, _, err := s.TryNext(); !errors.Is(err, ErrProcessDied) {
		t.Errorf("stream err after crash = %v; want ErrProcessDied", err)
	}
}

func TestBackend_ReadyNotification(t *testing.T) {
	t.Parallel()

	b := startFake(t)
	select {
	case <-b.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("server.ready not observed")
	}
	if v := b.ServerVersion(); v != "test" {
		t.Errorf("ServerVersion = %q; want test", v)
	}
}

func TestBackend_StopIsIdempotentAndRestartable(t *testing.T) {
	t.Parallel()

	b := New(fakeOptions())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Start(); err == nil {
		t.Error("second Start succeeded while running")
	}

	if err := b.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if b.IsRunning() || b.State() != StateStopped {
		t.Errorf("after Stop: running=%v state=%v", b.IsRunning(), b.State())
	}
	if _, err := b.Call(context.Background(), "echo", nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Call after Stop err = %v; want ErrNotStarted", err)
	}
	b.ClearStream()

	if err := b.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer b.Stop()
	if _, err := b.Call(context.Background(), "echo", map[string]int{"a": 1}); err != nil {
		t.Errorf("Call after restart: %v", err)
	}
}

func TestBackend_StopFailsInFlightCalls(t *testing.T) {
	t.Parallel()

	b := New(fakeOptions())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	hung := make(chan error, 1)
	go func() {
		_, err := b.CallTimeout(context.Background(), "hang", nil, 30*time.Second)
		hung <- err
	}()
	time.Sleep(50 * time.Millisecond)
	_ = b.Stop()

	select {
	case err := <-hung:
		if !errors.Is(err, ErrProcessDied) {
			t.Errorf("err = %v; want ErrProcessDied", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("in-flight call not released by Stop")
	}
}
