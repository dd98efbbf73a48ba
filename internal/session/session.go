// Package session implements the note session state machine: it owns the
// rendered note list, the edit draft, the search keyword and the create
// composer, and keeps them consistent with the ledger store across
// asynchronous, possibly failing reads and mutations.
//
// Every public method is a blocking call; remote calls are its suspension
// points. State is guarded by a mutex that is never held across a remote call.
// At most one mutation is in flight per session, because index addressing
// makes concurrent mutations unsafe: a delete changes the meaning of every
// higher index.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/starford/chainpad/internal/apperr"
	"github.com/starford/chainpad/internal/identity"
	"github.com/starford/chainpad/internal/models"
)

// Records is the access layer the session drives.
type Records interface {
	ListNotes(ctx context.Context) ([]models.Note, error)
	SearchNotes(ctx context.Context, keyword string) ([]models.Note, error)
	CreateNote(ctx context.Context, content, tag string) error
	UpdateNote(ctx context.Context, index int, content, tag string) error
	DeleteNote(ctx context.Context, index int) error
}

type op string

const (
	opNone   op = ""
	opCreate op = "create"
	opUpdate op = "update"
	opDelete op = "delete"
)

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCapabilities sets which optional features the session exposes.
// It must match the capabilities of the Records implementation.
func WithCapabilities(c models.Capabilities) Option {
	return func(s *Session) { s.caps = c }
}

// Session is the per-account note session.
type Session struct {
	records Records
	caps    models.Capabilities
	logger  *slog.Logger
	// gate admits one mutation at a time.
	gate *semaphore.Weighted

	mu        sync.Mutex
	version   uint64
	connected bool
	account   string
	// epoch changes on every connection transition; results fetched under an
	// older epoch are dropped.
	epoch uint64

	notes       []models.Note
	listIssued  uint64
	listApplied uint64
	stale       bool

	keyword       string
	results       []models.Note
	searchIssued  uint64
	searchApplied uint64

	edit     *Edit
	composer Composer
	op       op
	lastErr  error

	watchMu   sync.Mutex
	watchers  map[int]func(View)
	nextWatch int

	wg sync.WaitGroup
}

// New creates a disconnected session.
func New(records Records, opts ...Option) *Session {
	s := &Session{
		records:  records,
		caps:     models.FullCapabilities(),
		logger:   slog.Default(),
		gate:     semaphore.NewWeighted(1),
		watchers: make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run follows prov until ctx is cancelled, applying every connection
// transition. Fetches triggered by a connect run in the background so that a
// disconnect is never queued behind a slow read.
func (s *Session) Run(ctx context.Context, prov identity.Provider) error {
	ch := prov.Subscribe()
	defer prov.Unsubscribe(ch)

	handle := func(st identity.State) {
		kw, ok := s.transition(st)
		if !ok {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.refresh(ctx, kw, false); err != nil {
				s.logger.Warn("session: initial fetch failed", slog.String("error", err.Error()))
			}
		}()
	}

	handle(prov.Current())
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case st := <-ch:
			handle(st)
		}
	}
}

// HandleIdentity applies a connection transition and, on connect, waits for
// the initial list (and search, when a keyword is set) to load.
func (s *Session) HandleIdentity(ctx context.Context, st identity.State) error {
	kw, ok := s.transition(st)
	if !ok {
		return nil
	}
	return s.refresh(ctx, kw, false)
}

// transition updates connection state. It reports whether the session became
// connected (to a new account) and the keyword to search for.
func (s *Session) transition(st identity.State) (string, bool) {
	s.mu.Lock()
	same := st.Connected == s.connected && (!st.Connected || st.Account == s.account)
	if same {
		s.mu.Unlock()
		return "", false
	}

	if s.connected {
		s.logger.Info("session: disconnected", slog.String("account", s.account))
		s.resetLocked()
	}
	if !st.Connected {
		v := s.changedLocked()
		s.mu.Unlock()
		s.publish(v)
		return "", false
	}

	s.connected = true
	s.account = st.Account
	s.epoch++
	kw := s.keyword
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	s.logger.Info("session: connected", slog.String("account", st.Account))
	return kw, true
}

// resetLocked discards everything scoped to the current account. An
// in-flight mutation is not retracted; its settlement is dropped.
func (s *Session) resetLocked() {
	s.connected = false
	s.account = ""
	s.epoch++
	s.notes = nil
	s.stale = false
	s.keyword = ""
	s.results = nil
	s.edit = nil
	s.lastErr = nil
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Watch registers fn to receive every new view. The returned func removes it.
// fn runs on the goroutine that made the change and must not block.
func (s *Session) Watch(fn func(View)) func() {
	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Refresh reloads the list, and the search results when a keyword is set.
// A successful list load clears the stale flag.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	s.lastErr = nil
	kw := s.keyword
	s.mu.Unlock()
	return s.refresh(ctx, kw, false)
}

// SetComposer stores the create-note input fields.
func (s *Session) SetComposer(content, tag string) {
	s.mu.Lock()
	s.composer = Composer{Content: content, Tag: s.tagLocked(tag)}
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)
}

// BeginEdit opens a draft of the rendered note at index. It needs an idle
// session and an up-to-date list; it makes no remote call.
func (s *Session) BeginEdit(index int) error {
	s.mu.Lock()
	if err := s.checkIdleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.renderedLocked(index) || index >= len(s.notes) {
		s.mu.Unlock()
		return fmt.Errorf("session: no rendered note at index %d: %w", index, apperr.ErrNotFound)
	}
	note := s.notes[index]
	s.edit = &Edit{
		TargetIndex:  index,
		DraftContent: note.Content,
		DraftTag:     note.Tag,
		fingerprint:  note.Fingerprint(),
	}
	s.lastErr = nil
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	s.logger.Debug("session: edit started", slog.Int("index", index))
	return nil
}

// SetDraft replaces the open draft's content and tag.
func (s *Session) SetDraft(content, tag string) error {
	s.mu.Lock()
	if s.edit == nil {
		s.mu.Unlock()
		return apperr.ErrNoEdit
	}
	if s.op == opUpdate {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	s.edit.DraftContent = content
	s.edit.DraftTag = s.tagLocked(tag)
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)
	return nil
}

// CancelEdit discards the open draft. No remote call is made.
func (s *Session) CancelEdit() error {
	s.mu.Lock()
	if s.edit == nil {
		s.mu.Unlock()
		return apperr.ErrNoEdit
	}
	if s.op == opUpdate {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	s.edit = nil
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)
	return nil
}

// SubmitCreate creates a note. Empty content is refused before any remote
// call. On success the composer is cleared and the list refetched; on failure
// the composer keeps the text so the user can retry.
func (s *Session) SubmitCreate(ctx context.Context, content, tag string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	if content == "" {
		s.mu.Unlock()
		return &apperr.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if !s.gate.TryAcquire(1) {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	tag = s.tagLocked(tag)
	s.op = opCreate
	s.composer = Composer{Content: content, Tag: tag}
	s.lastErr = nil
	epoch := s.epoch
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	bg := context.WithoutCancel(ctx)
	err := s.records.CreateNote(bg, content, tag)
	return s.settle(bg, epoch, opCreate, err, func() {
		s.composer = Composer{}
	})
}

// SubmitUpdate saves the open draft of the note at index. On success the
// draft is closed and the list refetched; on failure the draft stays open.
func (s *Session) SubmitUpdate(ctx context.Context, index int, content, tag string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	if content == "" {
		s.mu.Unlock()
		return &apperr.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if s.edit == nil {
		s.mu.Unlock()
		return apperr.ErrNoEdit
	}
	if s.edit.TargetIndex != index {
		target := s.edit.TargetIndex
		s.mu.Unlock()
		return fmt.Errorf("session: draft is open for index %d, not %d: %w", target, index, apperr.ErrStaleIndex)
	}
	if s.stale {
		s.mu.Unlock()
		return apperr.ErrStaleIndex
	}
	if !s.gate.TryAcquire(1) {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	tag = s.tagLocked(tag)
	s.op = opUpdate
	s.edit.DraftContent = content
	s.edit.DraftTag = tag
	s.lastErr = nil
	epoch := s.epoch
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	bg := context.WithoutCancel(ctx)
	err := s.records.UpdateNote(bg, index, content, tag)
	return s.settle(bg, epoch, opUpdate, err, func() {
		s.edit = nil
	})
}

// SubmitDelete deletes the note at index of the latest list. On success any
// draft the delete shifts or removes is discarded, never repointed.
func (s *Session) SubmitDelete(ctx context.Context, index int) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	if s.stale {
		s.mu.Unlock()
		return apperr.ErrStaleIndex
	}
	if index < 0 || index >= len(s.notes) {
		n := len(s.notes)
		s.mu.Unlock()
		return fmt.Errorf("session: index %d outside list of %d: %w", index, n, apperr.ErrStaleIndex)
	}
	if !s.gate.TryAcquire(1) {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	s.op = opDelete
	s.lastErr = nil
	epoch := s.epoch
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	bg := context.WithoutCancel(ctx)
	err := s.records.DeleteNote(bg, index)
	return s.settle(bg, epoch, opDelete, err, func() {
		if s.edit != nil && s.edit.TargetIndex >= index {
			s.logger.Info("session: edit invalidated by delete",
				slog.Int("edit_index", s.edit.TargetIndex), slog.Int("deleted_index", index))
			s.edit = nil
		}
	})
}

// SetKeyword sets the search keyword. An empty keyword deactivates search; a
// non-empty one runs a search whose results replace the rendered list. While
// disconnected the keyword is kept and searched on the next connect.
func (s *Session) SetKeyword(ctx context.Context, keyword string) error {
	s.mu.Lock()
	if keyword != "" && !s.caps.Search {
		s.mu.Unlock()
		return apperr.ErrUnsupported
	}
	if keyword != s.keyword {
		// Results of another keyword are never shown under this one.
		s.results = nil
	}
	s.keyword = keyword
	s.lastErr = nil
	connected := s.connected
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	if keyword == "" || !connected {
		return nil
	}
	return s.fetchSearch(ctx, keyword)
}

// settle finishes a mutation. The session stays Mutating until the refetch
// that follows a success has completed.
func (s *Session) settle(ctx context.Context, epoch uint64, o op, err error, onSuccess func()) error {
	defer s.release()

	if err != nil {
		s.logger.Warn("session: mutation failed", slog.String("op", string(o)), slog.String("error", err.Error()))
		s.mu.Lock()
		if epoch == s.epoch {
			s.lastErr = err
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch {
		// Disconnected while in flight: nothing to render.
		s.mu.Unlock()
		s.logger.Info("session: dropped settlement after disconnect", slog.String("op", string(o)))
		return nil
	}
	onSuccess()
	kw := s.keyword
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)

	s.logger.Info("session: mutation confirmed", slog.String("op", string(o)))
	if ferr := s.refresh(ctx, kw, true); ferr != nil {
		s.logger.Warn("session: refetch after mutation failed", slog.String("error", ferr.Error()))
	}
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.op = opNone
	v := s.changedLocked()
	s.mu.Unlock()
	s.gate.Release(1)
	s.publish(v)
}

// refresh loads the list and, when kw is set, the search results in
// parallel. A list failure after a mutation marks the list stale.
func (s *Session) refresh(ctx context.Context, kw string, afterMutation bool) error {
	var g errgroup.Group
	g.Go(func() error { return s.fetchList(ctx, afterMutation) })
	if kw != "" && s.caps.Search {
		g.Go(func() error { return s.fetchSearch(ctx, kw) })
	}
	return g.Wait()
}

func (s *Session) fetchList(ctx context.Context, afterMutation bool) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	epoch := s.epoch
	s.listIssued++
	seq := s.listIssued
	s.mu.Unlock()

	notes, err := s.records.ListNotes(ctx)

	s.mu.Lock()
	// A newer fetch already rendered its outcome.
	if epoch != s.epoch || seq < s.listApplied {
		s.mu.Unlock()
		return nil
	}
	s.listApplied = seq
	if err != nil {
		// Leave the previous list visible.
		s.lastErr = err
		if afterMutation {
			s.stale = true
		}
		v := s.changedLocked()
		s.mu.Unlock()
		s.publish(v)
		return err
	}
	s.notes = notes
	s.stale = false
	s.reconcileEditLocked()
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)
	return nil
}

func (s *Session) fetchSearch(ctx context.Context, kw string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return apperr.ErrNotConnected
	}
	epoch := s.epoch
	s.searchIssued++
	seq := s.searchIssued
	s.mu.Unlock()

	results, err := s.records.SearchNotes(ctx, kw)

	s.mu.Lock()
	if epoch != s.epoch || s.keyword != kw || seq < s.searchApplied {
		s.mu.Unlock()
		return nil
	}
	s.searchApplied = seq
	if err != nil {
		s.lastErr = err
		v := s.changedLocked()
		s.mu.Unlock()
		s.publish(v)
		return err
	}
	s.results = results
	v := s.changedLocked()
	s.mu.Unlock()
	s.publish(v)
	return nil
}

// reconcileEditLocked drops a draft whose note moved or changed. A draft
// whose own save is in flight is left alone.
func (s *Session) reconcileEditLocked() {
	if s.edit == nil || s.op == opUpdate {
		return
	}
	i := s.edit.TargetIndex
	if i < len(s.notes) && s.notes[i].Fingerprint() == s.edit.fingerprint {
		return
	}
	s.logger.Info("session: edit invalidated by refresh", slog.Int("index", i))
	s.edit = nil
}

func (s *Session) checkIdleLocked() error {
	switch {
	case !s.connected:
		return apperr.ErrNotConnected
	case s.op != opNone:
		return apperr.ErrBusy
	case s.stale:
		return apperr.ErrStaleIndex
	}
	return nil
}

func (s *Session) searchActiveLocked() bool {
	return s.keyword != "" && s.caps.Search
}

// renderedLocked reports whether a note with index is currently rendered.
func (s *Session) renderedLocked(index int) bool {
	if index < 0 {
		return false
	}
	for _, n := range s.renderLocked() {
		if n.Index == index {
			return true
		}
	}
	return false
}

// renderLocked returns the notes to render. A search hit keeps its reported
// position only if the full list holds the same note there; other hits are
// matched to the full list by fingerprint, each list entry claimed at most
// once. Unmatched hits get Index -1 and cannot be edited.
func (s *Session) renderLocked() []models.Note {
	if !s.searchActiveLocked() {
		return append([]models.Note{}, s.notes...)
	}

	out := append([]models.Note{}, s.results...)
	claimed := make(map[int]bool, len(out))
	for i, n := range out {
		j := n.Index
		if j >= 0 && j < len(s.notes) && !claimed[j] && s.notes[j].Fingerprint() == n.Fingerprint() {
			claimed[j] = true
			continue
		}
		out[i].Index = -1
	}
	for i := range out {
		if out[i].Index >= 0 {
			continue
		}
		fp := out[i].Fingerprint()
		for j, n := range s.notes {
			if !claimed[j] && n.Fingerprint() == fp {
				out[i].Index = j
				claimed[j] = true
				break
			}
		}
	}
	return out
}

func (s *Session) tagLocked(tag string) string {
	if !s.caps.Tags {
		return ""
	}
	return tag
}

func (s *Session) stateLocked() State {
	switch {
	case !s.connected:
		return Disconnected
	case s.op != opNone:
		return Mutating
	default:
		return Idle
	}
}

func (s *Session) changedLocked() View {
	s.version++
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		Version:      s.version,
		State:        s.stateLocked(),
		Account:      s.account,
		Notes:        s.renderLocked(),
		Total:        len(s.notes),
		Keyword:      s.keyword,
		Searching:    s.searchActiveLocked(),
		Editing:      s.edit != nil,
		Composer:     s.composer,
		Stale:        s.stale,
		Capabilities: s.caps,
	}
	if s.edit != nil {
		e := *s.edit
		v.Edit = &e
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	return v
}

func (s *Session) publish(v View) {
	s.watchMu.Lock()
	fns := make([]func(View), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
