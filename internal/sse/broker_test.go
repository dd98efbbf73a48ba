package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "mutation.failed", Data: map[string]string{"op": "create"}})

	s := recv(t, ch)
	if !strings.Contains(s, "event: mutation.failed") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"op":"create"`) {
		t.Errorf("missing data in %q", s)
	}
}

func TestSnapshotReplayedToNewSubscribers(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	b.PublishSnapshot(3, map[string]int{"version": 3})
	// Give the loop time to record the snapshot.
	time.Sleep(50 * time.Millisecond)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	s := recv(t, ch)
	if !strings.Contains(s, "event: "+SnapshotEvent) || !strings.Contains(s, `"version":3`) {
		t.Errorf("replayed snapshot = %q", s)
	}
}

func TestSnapshotDropsOlderVersions(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshot(5, map[string]int{"version": 5})
	b.PublishSnapshot(4, map[string]int{"version": 4})
	b.PublishSnapshot(5, map[string]int{"version": 5})
	b.PublishSnapshot(6, map[string]int{"version": 6})
	time.Sleep(50 * time.Millisecond)

	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("messages = %q, want versions 5 and 6 only", got)
	}
	if !strings.Contains(got[0], `"version":5`) || !strings.Contains(got[1], `"version":6`) {
		t.Errorf("messages = %q", got)
	}

	late := b.Subscribe()
	defer b.Unsubscribe(late)
	if s := recv(t, late); !strings.Contains(s, `"version":6`) {
		t.Errorf("late subscriber got %q, want newest snapshot", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishSnapshot(1, map[string]string{"state": "idle"})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: session.updated") || !strings.Contains(body, `"state":"idle"`) {
		t.Errorf("handler output missing snapshot: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerKeepAlive(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": keep-alive") {
		t.Errorf("expected keep-alive comment, got %q", w.Body.String())
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.PublishSnapshot(uint64(i+1), map[string]int{"i": i})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "mutation.failed"})
	b.PublishSnapshot(9, nil)
}
