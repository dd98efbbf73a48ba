// Package testutil provides shared test helpers for wiring a ledger-backed
// note session.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/chainpad/internal/identity"
	"github.com/starford/chainpad/internal/ledger"
	"github.com/starford/chainpad/internal/models"
	"github.com/starford/chainpad/internal/records"
	"github.com/starford/chainpad/internal/session"
)

// Account is a well-formed address for tests.
const Account = "0x2222222222222222222222222222222222222222"

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLedger creates a temporary SQLite ledger that is automatically cleaned up.
// Submissions confirm immediately.
func TestLedger(t *testing.T) *ledger.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "chainpad-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := ledger.OpenSQLite(dbFile.Name(), ledger.Options{
		Network:     "base-sepolia",
		Contract:    "0x06549fC8614530A91d219fac7baA93e8ef3BF8F2",
		RejectEmpty: true,
		Logger:      Logger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Stack is a fully wired session over a temporary ledger.
type Stack struct {
	Ledger   *ledger.SQLite
	Identity *identity.Static
	Records  *records.Client
	Session  *session.Session
}

// NewStack wires a disconnected session with the given capabilities.
func NewStack(t *testing.T, caps models.Capabilities) *Stack {
	t.Helper()
	store := TestLedger(t)
	ident := identity.NewStatic()
	rec := records.NewClient(store, ident, caps, Logger())
	sess := session.New(rec, session.WithLogger(Logger()), session.WithCapabilities(caps))
	return &Stack{Ledger: store, Identity: ident, Records: rec, Session: sess}
}

// Connect connects Account and waits for the initial list.
func (s *Stack) Connect(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := s.Identity.Connect(ctx, Account); err != nil {
		t.Fatal(err)
	}
	if err := s.Session.HandleIdentity(ctx, s.Identity.Current()); err != nil {
		t.Fatal(err)
	}
}

// Seed writes notes straight to the ledger and waits for each to confirm.
func (s *Stack) Seed(t *testing.T, contents ...string) {
	t.Helper()
	ctx := context.Background()
	for _, c := range contents {
		sub, err := s.Ledger.CreateNote(ctx, Account, c, "")
		if err != nil {
			t.Fatal(err)
		}
		if err := sub.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
}
