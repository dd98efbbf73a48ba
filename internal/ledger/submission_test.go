package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPending_SettlesOnce(t *testing.T) {
	p := NewPending()
	if p.Err() != nil {
		t.Fatal("unsettled submission should report nil")
	}
	first := errors.New("reverted")
	p.Settle(first)
	p.Settle(nil)

	if err := p.Wait(context.Background()); !errors.Is(err, first) {
		t.Errorf("Wait = %v, want first settlement", err)
	}
	if !errors.Is(p.Err(), first) {
		t.Errorf("Err = %v, want first settlement", p.Err())
	}
}

func TestPending_WaitHonoursContext(t *testing.T) {
	p := NewPending()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
	select {
	case <-p.Done():
		t.Error("giving up on Wait must not settle the submission")
	default:
	}
}

func TestPending_UniqueIDs(t *testing.T) {
	a, b := NewPending(), NewPending()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("ids %q and %q should be distinct and non-empty", a.ID(), b.ID())
	}
}

func TestSettled(t *testing.T) {
	p := Settled(nil)
	select {
	case <-p.Done():
	default:
		t.Fatal("Settled should return a settled submission")
	}
}
