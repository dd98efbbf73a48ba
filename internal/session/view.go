package session

import (
	"fmt"

	"github.com/starford/chainpad/internal/models"
)

// State is the session's coarse state. Editing is tracked separately: a draft
// can be open while Idle or while its own save is Mutating.
type State int

const (
	Disconnected State = iota
	Idle
	Mutating
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Idle:         "idle",
	Mutating:     "mutating",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// Edit is the open draft of one note.
type Edit struct {
	TargetIndex  int    `json:"target_index"`
	DraftContent string `json:"draft_content"`
	DraftTag     string `json:"draft_tag,omitempty"`

	// fingerprint of the note the draft was seeded from.
	fingerprint string
}

// Composer holds the create-note input fields.
type Composer struct {
	Content string `json:"content"`
	Tag     string `json:"tag,omitempty"`
}

// View is an immutable snapshot of the session for rendering.
type View struct {
	// Version increases with every change; listeners may drop older views.
	Version uint64 `json:"version"`
	State   State  `json:"state"`
	Account string `json:"account,omitempty"`

	// Notes is what should be rendered: search results while a keyword is
	// active, the full list otherwise.
	Notes []models.Note `json:"notes"`
	// Total is the size of the full list.
	Total int `json:"total"`

	Keyword   string `json:"keyword,omitempty"`
	Searching bool   `json:"searching"`

	Editing  bool     `json:"editing"`
	Edit     *Edit    `json:"edit,omitempty"`
	Composer Composer `json:"composer"`

	// Stale is set when a refetch after a confirmed mutation failed; indices
	// in Notes may then be outdated and update/delete are refused.
	Stale     bool   `json:"stale"`
	LastError string `json:"last_error,omitempty"`

	Capabilities models.Capabilities `json:"capabilities"`
}

// Empty reports whether there is nothing to render.
func (v View) Empty() bool {
	return len(v.Notes) == 0
}
