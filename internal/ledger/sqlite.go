package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/chainpad/internal/apperr"
)

var (
	// ErrClosed is returned for submissions made after Close, and settles
	// submissions still waiting for confirmation when the store closes.
	ErrClosed = errors.New("ledger: store closed")
	// ErrEmptyContent is the store-side rejection of an empty note.
	ErrEmptyContent = errors.New("ledger: content is empty")
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	network    TEXT    NOT NULL,
	contract   TEXT    NOT NULL,
	account    TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	tag        TEXT    NOT NULL DEFAULT '',
	written_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(network, contract, account, id);
`

// Options configures the SQLite emulator.
type Options struct {
	// Network and Contract scope every row, so switching either never mixes data.
	Network  string
	Contract string
	// ConfirmationDelay is how long a submission waits before it is applied.
	ConfirmationDelay time.Duration
	// RejectEmpty makes the store reject empty content on its own.
	RejectEmpty bool
	Logger      *slog.Logger
	// Now overrides the block clock in tests.
	Now func() time.Time
}

// SQLite emulates the on-chain notepad contract on top of a local database.
// Deleting a note compacts the list: every note above it moves down one index.
type SQLite struct {
	conn *sql.DB
	opts Options

	// applyMu serializes applied mutations the way blocks order transactions.
	applyMu sync.Mutex

	lifeMu  sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

var _ Store = (*SQLite)(nil)

type owner struct {
	network, contract, account string
}

// OpenSQLite opens (or creates) the emulator database and applies the schema.
func OpenSQLite(dsn string, opts Options) (*SQLite, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &SQLite{
		conn:    conn,
		opts:    opts,
		closing: make(chan struct{}),
	}, nil
}

// Close settles pending submissions with ErrClosed and closes the database.
func (s *SQLite) Close() error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.lifeMu.Unlock()

	s.wg.Wait()
	return s.conn.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger: ping: %w", err)
	}
	return nil
}

func (s *SQLite) owner(account string) owner {
	return owner{
		network:  s.opts.Network,
		contract: strings.ToLower(s.opts.Contract),
		account:  strings.ToLower(strings.TrimSpace(account)),
	}
}

// GetNotes returns every note of account in list order.
func (s *SQLite) GetNotes(ctx context.Context, account string) ([]Record, error) {
	o := s.owner(account)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT content, tag, written_at
		FROM notes
		WHERE network = ? AND contract = ? AND account = ?
		ORDER BY id
	`, o.network, o.contract, o.account)
	if err != nil {
		return nil, fmt.Errorf("ledger: get notes: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Content, &r.Tag, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("ledger: scan note: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchNotes returns notes whose content or tag contains keyword,
// case-insensitively for ASCII, each carrying its position in the full list.
func (s *SQLite) SearchNotes(ctx context.Context, account, keyword string) ([]Record, error) {
	o := s.owner(account)
	like := "%" + escapeLike(keyword) + "%"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT position, content, tag, written_at FROM (
			SELECT ROW_NUMBER() OVER (ORDER BY id) - 1 AS position, content, tag, written_at
			FROM notes
			WHERE network = ? AND contract = ? AND account = ?
		)
		WHERE content LIKE ? ESCAPE '\' OR tag LIKE ? ESCAPE '\'
		ORDER BY position
	`, o.network, o.contract, o.account, like, like)
	if err != nil {
		return nil, fmt.Errorf("ledger: search notes: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r   Record
			pos int
		)
		if err := rows.Scan(&pos, &r.Content, &r.Tag, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("ledger: scan note: %w", err)
		}
		r.Position = At(pos)
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CreateNote submits a note appended at the end of account's list.
func (s *SQLite) CreateNote(_ context.Context, account, content, tag string) (Submission, error) {
	o := s.owner(account)
	return s.submit("create", o, -1, func(tx *sql.Tx, now int64) error {
		if s.opts.RejectEmpty && content == "" {
			return ErrEmptyContent
		}
		_, err := tx.Exec(`
			INSERT INTO notes (network, contract, account, content, tag, written_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, o.network, o.contract, o.account, content, tag, now)
		return err
	})
}

// UpdateNote submits new content for the note at index.
func (s *SQLite) UpdateNote(_ context.Context, account string, index int, content, tag string) (Submission, error) {
	o := s.owner(account)
	return s.submit("update", o, index, func(tx *sql.Tx, now int64) error {
		if s.opts.RejectEmpty && content == "" {
			return ErrEmptyContent
		}
		id, err := rowID(tx, o, index)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE notes SET content = ?, tag = ?, written_at = ? WHERE id = ?`,
			content, tag, now, id)
		return err
	})
}

// DeleteNote submits removal of the note at index.
func (s *SQLite) DeleteNote(_ context.Context, account string, index int) (Submission, error) {
	o := s.owner(account)
	return s.submit("delete", o, index, func(tx *sql.Tx, _ int64) error {
		id, err := rowID(tx, o, index)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM notes WHERE id = ?`, id)
		return err
	})
}

// rowID resolves a list index to its row. Positions are implied by id order,
// so removing a row compacts the indices above it.
func rowID(tx *sql.Tx, o owner, index int) (int64, error) {
	if index < 0 {
		return 0, fmt.Errorf("ledger: index %d: %w", index, apperr.ErrNotFound)
	}
	var id int64
	err := tx.QueryRow(`
		SELECT id FROM notes
		WHERE network = ? AND contract = ? AND account = ?
		ORDER BY id
		LIMIT 1 OFFSET ?
	`, o.network, o.contract, o.account, index).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("ledger: index %d: %w", index, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: resolve index %d: %w", index, err)
	}
	return id, nil
}

func (s *SQLite) submit(op string, o owner, index int, apply func(tx *sql.Tx, now int64) error) (Submission, error) {
	if o.account == "" {
		return nil, fmt.Errorf("ledger: %s: %w", op, apperr.ErrNotConnected)
	}

	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.lifeMu.Unlock()

	p := NewPending()
	logger := s.opts.Logger.With(
		slog.String("submission", p.ID()),
		slog.String("op", op),
		slog.Int("index", index))
	logger.Debug("ledger: submitted")

	go func() {
		defer s.wg.Done()

		if d := s.opts.ConfirmationDelay; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-s.closing:
				t.Stop()
				p.Settle(ErrClosed)
				return
			}
		}

		err := s.apply(apply)
		if err != nil {
			logger.Warn("ledger: submission failed", slog.String("error", err.Error()))
		} else {
			logger.Debug("ledger: submission confirmed")
		}
		p.Settle(err)
	}()

	return p, nil
}

func (s *SQLite) apply(fn func(tx *sql.Tx, now int64) error) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(tx, s.opts.Now().Unix()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}
