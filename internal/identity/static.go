package identity

import "context"

// Static is an in-process provider connected and disconnected through its
// Connector methods.
type Static struct {
	hub
}

var (
	_ Provider  = (*Static)(nil)
	_ Connector = (*Static)(nil)
)

// NewStatic returns a disconnected provider.
func NewStatic() *Static {
	return &Static{}
}

// Connect switches to account. Connecting a different account while connected
// is a single transition to the new account.
func (s *Static) Connect(_ context.Context, account string) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	s.set(State{Connected: true, Account: account})
	return nil
}

// Disconnect drops the current account.
func (s *Static) Disconnect(_ context.Context) error {
	s.set(State{})
	return nil
}
