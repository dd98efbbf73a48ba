package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for state")
		return State{}
	}
}

func TestValidateAccount(t *testing.T) {
	if err := ValidateAccount(alice); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	for _, bad := range []string{"", "0x123", "1111111111111111111111111111111111111111", "0xZZ11111111111111111111111111111111111111"} {
		if err := ValidateAccount(bad); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("ValidateAccount(%q) = %v, want ErrInvalidAccount", bad, err)
		}
	}
}

func TestStatic_Transitions(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()
	if s.Current().Connected {
		t.Fatal("new provider should start disconnected")
	}

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	if err := s.Connect(ctx, alice); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st := recv(t, ch)
	if !st.Connected || st.Account != alice {
		t.Errorf("state = %+v", st)
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	st = recv(t, ch)
	if st.Connected || st.Account != "" {
		t.Errorf("state after disconnect = %+v", st)
	}
}

func TestStatic_ConnectInvalid(t *testing.T) {
	s := NewStatic()
	if err := s.Connect(context.Background(), "nope"); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("err = %v", err)
	}
	if s.Current().Connected {
		t.Error("invalid connect must not change state")
	}
}

func TestHub_KeepsLatestOnly(t *testing.T) {
	s := NewStatic()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)
	ctx := context.Background()

	_ = s.Connect(ctx, alice)
	_ = s.Connect(ctx, bob)

	st := recv(t, ch)
	if st.Account != bob {
		t.Errorf("buffered state = %+v, want bob", st)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra state %+v", extra)
	default:
	}
}

func TestHub_NoEventForSameState(t *testing.T) {
	s := NewStatic()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	_ = s.Disconnect(context.Background())
	select {
	case st := <-ch:
		t.Errorf("unexpected transition %+v", st)
	default:
	}
}

func TestFileProvider_ConnectDisconnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet", "account")
	p, err := NewFileProvider(path, quietLogger())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	if p.Current().Connected {
		t.Fatal("missing file should mean disconnected")
	}

	ctx := context.Background()
	if err := p.Connect(ctx, alice); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if st := p.Current(); !st.Connected || st.Account != alice {
		t.Errorf("state = %+v", st)
	}
	data, _ := os.ReadFile(path)
	if string(data) != alice+"\n" {
		t.Errorf("file content = %q", data)
	}

	if err := p.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if p.Current().Connected {
		t.Error("expected disconnected")
	}
	// Disconnecting twice is fine.
	if err := p.Disconnect(ctx); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
}

func TestFileProvider_InitialStateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account")
	if err := os.WriteFile(path, []byte("  "+bob+"  \nignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if st := p.Current(); !st.Connected || st.Account != bob {
		t.Errorf("state = %+v, want bob", st)
	}
}

func TestFileProvider_InvalidContentIsDisconnected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account")
	if err := os.WriteFile(path, []byte("not-an-address\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.Current().Connected {
		t.Error("invalid account should not connect")
	}
}

func TestFileProvider_WatchExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account")
	p, err := NewFileProvider(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(alice+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	st := recv(t, ch)
	if !st.Connected || st.Account != alice {
		t.Errorf("after write = %+v", st)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	st = recv(t, ch)
	if st.Connected {
		t.Errorf("after remove = %+v", st)
	}
}
