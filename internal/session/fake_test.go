package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/starford/chainpad/internal/apperr"
	"github.com/starford/chainpad/internal/models"
)

// fakeRecords is an in-memory access layer with call counters. When hold is
// set, mutations announce themselves on started and block until a result is
// sent on hold.
type fakeRecords struct {
	mu    sync.Mutex
	notes []models.Note
	clock int64

	listCalls   int
	searchCalls int
	createCalls int
	updateCalls int
	deleteCalls int

	listErr, searchErr, mutateErr error

	// unpositioned makes search hits come back without an index.
	unpositioned bool
	// searchHits, when set, is returned by every search as is.
	searchHits []models.Note

	// stallList makes the next list call signal listEntered, wait for it to
	// be closed and then fail.
	stallList   chan struct{}
	listEntered chan struct{}

	hold    chan error
	started chan string
}

func newFake(contents ...string) *fakeRecords {
	f := &fakeRecords{clock: 1_700_000_000}
	for _, c := range contents {
		f.clock++
		f.notes = append(f.notes, models.Note{Content: c, Timestamp: f.clock})
	}
	return f
}

func (f *fakeRecords) holdMutations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan error)
	f.started = make(chan string, 1)
}

func (f *fakeRecords) set(fn func(f *fakeRecords)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRecords) calls() (list, search, create, update, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.searchCalls, f.createCalls, f.updateCalls, f.deleteCalls
}

func (f *fakeRecords) snapshotLocked() []models.Note {
	out := make([]models.Note, len(f.notes))
	for i, n := range f.notes {
		n.Index = i
		out[i] = n
	}
	return out
}

// stallNextList arms a one-shot failing list call and returns a channel that
// receives once the call has started. Closing the returned release channel
// lets it fail.
func (f *fakeRecords) stallNextList() (entered <-chan struct{}, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallList = make(chan struct{})
	f.listEntered = make(chan struct{}, 1)
	return f.listEntered, f.stallList
}

func (f *fakeRecords) ListNotes(_ context.Context) ([]models.Note, error) {
	f.mu.Lock()
	f.listCalls++
	if stall := f.stallList; stall != nil {
		f.stallList = nil
		entered := f.listEntered
		f.mu.Unlock()
		entered <- struct{}{}
		<-stall
		return nil, &apperr.FetchError{Op: "list", Err: errors.New("node timeout")}
	}
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, &apperr.FetchError{Op: "list", Err: f.listErr}
	}
	return f.snapshotLocked(), nil
}

func (f *fakeRecords) SearchNotes(_ context.Context, keyword string) ([]models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, &apperr.FetchError{Op: "search", Err: f.searchErr}
	}
	if f.searchHits != nil {
		return append([]models.Note{}, f.searchHits...), nil
	}
	out := []models.Note{}
	for _, n := range f.snapshotLocked() {
		if strings.Contains(strings.ToLower(n.Content), strings.ToLower(keyword)) {
			if f.unpositioned {
				n.Index = -1
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// mutate waits for the held result (if any) and applies fn on success.
func (f *fakeRecords) mutate(op string, counter *int, fn func() error) error {
	f.mu.Lock()
	*counter++
	hold, started := f.hold, f.started
	err := f.mutateErr
	f.mu.Unlock()

	if hold != nil {
		started <- op
		err = <-hold
	}
	if err != nil {
		return &apperr.SubmissionError{Op: op, Index: -1, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return fn()
}

func (f *fakeRecords) CreateNote(_ context.Context, content, tag string) error {
	return f.mutate("create", &f.createCalls, func() error {
		f.clock++
		f.notes = append(f.notes, models.Note{Content: content, Tag: tag, Timestamp: f.clock})
		return nil
	})
}

func (f *fakeRecords) UpdateNote(_ context.Context, index int, content, tag string) error {
	return f.mutate("update", &f.updateCalls, func() error {
		if index < 0 || index >= len(f.notes) {
			return apperr.ErrNotFound
		}
		f.clock++
		f.notes[index] = models.Note{Content: content, Tag: tag, Timestamp: f.clock}
		return nil
	})
}

func (f *fakeRecords) DeleteNote(_ context.Context, index int) error {
	return f.mutate("delete", &f.deleteCalls, func() error {
		if index < 0 || index >= len(f.notes) {
			return apperr.ErrNotFound
		}
		f.notes = append(f.notes[:index], f.notes[index+1:]...)
		return nil
	})
}
