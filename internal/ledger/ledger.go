// Package ledger defines the contract of the index-addressed note store and
// provides a SQLite-backed emulator of it.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mock_store.go -package=mocks

import "context"

// NoPosition is the index of a search hit whose list position is unknown.
const NoPosition = -1

// Record is the raw shape returned by the store.
//
// Position is set by stores that report where a search hit lives in the
// account's full list and is nil otherwise. List results are positioned by
// their order alone.
type Record struct {
	Content   string `json:"content"`
	Tag       string `json:"tag,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Position  *int   `json:"position,omitempty"`
}

// At returns a pointer to position i, for filling Record.Position.
func At(i int) *int { return &i }

// Store is the per-account, index-addressed note store.
//
// Mutations return a Submission that settles exactly once. An error returned
// directly from a mutation means nothing was submitted.
type Store interface {
	GetNotes(ctx context.Context, account string) ([]Record, error)
	SearchNotes(ctx context.Context, account, keyword string) ([]Record, error)
	CreateNote(ctx context.Context, account, content, tag string) (Submission, error)
	UpdateNote(ctx context.Context, account string, index int, content, tag string) (Submission, error)
	DeleteNote(ctx context.Context, account string, index int) (Submission, error)
}

// Submission is a submitted, not yet necessarily settled, mutation.
type Submission interface {
	// ID identifies the submission (a transaction hash on a real chain).
	ID() string
	// Done is closed once the submission settles.
	Done() <-chan struct{}
	// Err returns the settlement error; it is only meaningful after Done is closed.
	Err() error
	// Wait blocks until settlement or until ctx is done. Giving up on the wait
	// does not retract the submission.
	Wait(ctx context.Context) error
}
