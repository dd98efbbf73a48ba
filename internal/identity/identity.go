// Package identity supplies the connected account and notifies subscribers
// when the connection state changes.
package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidAccount is returned when an account is not a 0x-prefixed 20-byte hex address.
var ErrInvalidAccount = errors.New("identity: invalid account address")

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// State is a snapshot of the connection.
type State struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
}

// Provider exposes the current connection and its transitions.
type Provider interface {
	Current() State
	// Subscribe returns a channel that always holds the latest state not yet
	// received. Intermediate states may be skipped.
	Subscribe() <-chan State
	Unsubscribe(ch <-chan State)
}

// Connector lets the user connect or disconnect an account.
type Connector interface {
	Connect(ctx context.Context, account string) error
	Disconnect(ctx context.Context) error
}

// ValidateAccount checks that account looks like an EVM address.
func ValidateAccount(account string) error {
	err := validation.Validate(account,
		validation.Required,
		validation.Match(addressRe),
	)
	if err != nil {
		return errors.Join(ErrInvalidAccount, err)
	}
	return nil
}

// hub holds the current state and fans transitions out to subscribers.
type hub struct {
	mu    sync.Mutex
	state State
	subs  map[<-chan State]chan State
}

func (h *hub) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *hub) Subscribe() <-chan State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[<-chan State]chan State)
	}
	ch := make(chan State, 1)
	h.subs[ch] = ch
	return ch
}

func (h *hub) Unsubscribe(ch <-chan State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, ch)
}

// set stores st and reports whether it differed from the previous state.
func (h *hub) set(st State) bool {
	st.Account = strings.TrimSpace(st.Account)
	if !st.Connected {
		st.Account = ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == st {
		return false
	}
	h.state = st
	for _, ch := range h.subs {
		// Keep only the newest state in the buffer.
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
	return true
}
