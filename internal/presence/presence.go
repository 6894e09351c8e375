// Package presence tracks which usernames are currently in the room.
//
// Membership changes only through Join, Leave and AddImplicit. There is no
// expiry: a client that disappears without leaving stays listed until it
// leaves or the room is cleared.
package presence

import (
	"context"

	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/eventstore"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Manager maintains the presence set in an eventstore.Store.
type Manager struct {
	store  eventstore.Store
	logger logpkg.Logger
}

// New builds a Manager.
func New(store eventstore.Store, logger logpkg.Logger) *Manager {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Manager{store: store, logger: logger}
}

// Join adds name, failing with errs.ErrUsernameTaken when it is already
// present. The check and the insert are one atomic store step.
func (m *Manager) Join(ctx context.Context, name string) error {
	added, err := m.store.AddMember(ctx, name)
	if err != nil {
		return errs.Transient("join", err)
	}
	if !added {
		return errs.ErrUsernameTaken
	}
	m.logger.Debug("user joined", logpkg.Str("user", name))
	return nil
}

// Leave removes name. Leaving twice is not an error; the result reports
// whether name was present.
func (m *Manager) Leave(ctx context.Context, name string) (bool, error) {
	removed, err := m.store.RemoveMember(ctx, name)
	if err != nil {
		return false, errs.Transient("leave", err)
	}
	if removed {
		m.logger.Debug("user left", logpkg.Str("user", name))
	}
	return removed, nil
}

// AddImplicit registers name as present without conflict checking. Used
// when a message arrives from a user who never joined.
func (m *Manager) AddImplicit(ctx context.Context, name string) error {
	if _, err := m.store.AddMember(ctx, name); err != nil {
		return errs.Transient("add member", err)
	}
	return nil
}

// List returns the present usernames in ascending order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	users, err := m.store.Members(ctx)
	if err != nil {
		return nil, errs.Transient("list members", err)
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// Count returns the number of present usernames.
func (m *Manager) Count(ctx context.Context) (int, error) {
	users, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}
