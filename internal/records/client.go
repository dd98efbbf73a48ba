// Package records is the typed access layer over the ledger note store. It
// scopes every call to the connected account, normalizes raw records into
// models.Note and reports failures as apperr types.
package records

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/chainpad/internal/apperr"
	"github.com/starford/chainpad/internal/identity"
	"github.com/starford/chainpad/internal/ledger"
	"github.com/starford/chainpad/internal/models"
)

// Client calls the ledger store on behalf of the connected account.
// Mutations are fire-once: the client never retries.
type Client struct {
	store  ledger.Store
	ident  identity.Provider
	caps   models.Capabilities
	logger *slog.Logger
}

// NewClient creates a new access-layer client.
func NewClient(store ledger.Store, ident identity.Provider, caps models.Capabilities, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{store: store, ident: ident, caps: caps, logger: logger}
}

// Capabilities reports which optional fields the client supports.
func (c *Client) Capabilities() models.Capabilities { return c.caps }

func (c *Client) account() (string, error) {
	st := c.ident.Current()
	if !st.Connected || st.Account == "" {
		return "", apperr.ErrNotConnected
	}
	return st.Account, nil
}

// ListNotes fetches the account's full list.
func (c *Client) ListNotes(ctx context.Context) ([]models.Note, error) {
	account, err := c.account()
	if err != nil {
		return nil, err
	}
	recs, err := c.store.GetNotes(ctx, account)
	if err != nil {
		return nil, &apperr.FetchError{Op: "list", Err: err}
	}
	notes := make([]models.Note, len(recs))
	for i, r := range recs {
		notes[i] = c.normalize(r, i)
	}
	return notes, nil
}

// SearchNotes fetches the notes matching keyword. Matching is up to the store.
func (c *Client) SearchNotes(ctx context.Context, keyword string) ([]models.Note, error) {
	if !c.caps.Search {
		return nil, apperr.ErrUnsupported
	}
	if keyword == "" {
		return nil, &apperr.ValidationError{Field: "keyword", Message: "must not be empty"}
	}
	account, err := c.account()
	if err != nil {
		return nil, err
	}
	recs, err := c.store.SearchNotes(ctx, account, keyword)
	if err != nil {
		return nil, &apperr.FetchError{Op: "search", Err: err}
	}
	notes := make([]models.Note, len(recs))
	for i, r := range recs {
		index := ledger.NoPosition
		if r.Position != nil {
			index = *r.Position
		}
		notes[i] = c.normalize(r, index)
	}
	return notes, nil
}

// CreateNote submits a new note and waits for it to settle.
func (c *Client) CreateNote(ctx context.Context, content, tag string) error {
	account, err := c.account()
	if err != nil {
		return err
	}
	sub, err := c.store.CreateNote(ctx, account, content, c.tag(tag))
	return c.settle(ctx, "create", -1, sub, err)
}

// UpdateNote submits new content for the note at index and waits for it to settle.
func (c *Client) UpdateNote(ctx context.Context, index int, content, tag string) error {
	account, err := c.account()
	if err != nil {
		return err
	}
	sub, err := c.store.UpdateNote(ctx, account, index, content, c.tag(tag))
	return c.settle(ctx, "update", index, sub, err)
}

// DeleteNote submits removal of the note at index and waits for it to settle.
func (c *Client) DeleteNote(ctx context.Context, index int) error {
	account, err := c.account()
	if err != nil {
		return err
	}
	sub, err := c.store.DeleteNote(ctx, account, index)
	return c.settle(ctx, "delete", index, sub, err)
}

func (c *Client) settle(ctx context.Context, op string, index int, sub ledger.Submission, err error) error {
	logger := c.logger.With(slog.String("op", op), slog.Int("index", index))
	if err != nil {
		logger.Warn("records: submission rejected", slog.String("error", err.Error()))
		return &apperr.SubmissionError{Op: op, Index: index, Err: err}
	}
	if sub == nil {
		return &apperr.SubmissionError{Op: op, Index: index, Err: errors.New("store returned no submission")}
	}

	logger = logger.With(slog.String("submission", sub.ID()))
	logger.Debug("records: awaiting settlement")
	if err := sub.Wait(ctx); err != nil {
		logger.Warn("records: submission failed", slog.String("error", err.Error()))
		return &apperr.SubmissionError{Op: op, Index: index, SubmissionID: sub.ID(), Err: err}
	}
	logger.Info("records: submission confirmed")
	return nil
}

func (c *Client) normalize(r ledger.Record, index int) models.Note {
	n := models.Note{
		Index:     index,
		Content:   r.Content,
		Timestamp: r.Timestamp,
	}
	if index < 0 {
		n.Index = ledger.NoPosition
	}
	if c.caps.Tags {
		n.Tag = r.Tag
	}
	return n
}

func (c *Client) tag(tag string) string {
	if !c.caps.Tags {
		return ""
	}
	return tag
}

