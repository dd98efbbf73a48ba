package ledger

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Pending is a Submission settled by whoever owns it.
type Pending struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

// NewPending returns an unsettled submission with a fresh ULID.
func NewPending() *Pending {
	return &Pending{
		id:   ulid.Make().String(),
		done: make(chan struct{}),
	}
}

// Settled returns a submission that has already settled with err.
func Settled(err error) *Pending {
	p := NewPending()
	p.Settle(err)
	return p
}

// Settle records the outcome. Only the first call has any effect.
func (p *Pending) Settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// ID implements Submission.
func (p *Pending) ID() string { return p.id }

// Done implements Submission.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err implements Submission.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait implements Submission.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Submission = (*Pending)(nil)
