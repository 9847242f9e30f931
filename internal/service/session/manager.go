// Package session owns the authentication state of the chat client.
package session

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
	"github.com/zhouzirui/private-chat/internal/service/credential"
)

// State is the authentication state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// ErrAlreadyAuthenticated is returned by Login when a different user is
// already signed in. The session is left untouched.
var ErrAlreadyAuthenticated = errors.New("another user is already authenticated")

// Channel is the subset of the channel manager the session drives. Only the
// session requests channel open and close.
type Channel interface {
	Open(identity chat.UserIdentity)
	Close()
}

// Manager holds the current identity and couples login to channel open.
type Manager struct {
	channel  Channel
	logger   *zap.Logger
	onChange func()

	mu       sync.RWMutex
	state    State
	identity chat.UserIdentity
	lastErr  error
}

// NewManager returns an unauthenticated session driving channel. onChange
// may be nil.
func NewManager(channel Channel, logger *zap.Logger, onChange func()) *Manager {
	return &Manager{
		channel:  channel,
		logger:   observability.Named(logger, "session"),
		onChange: onChange,
	}
}

// Login stores identity, marks the session authenticated and initiates the
// channel open in the same step. Logging in again as the signed-in user
// re-opens the channel; logging in as anyone else requires a logout first.
func (m *Manager) Login(identity chat.UserIdentity) error {
	if !identity.Complete() {
		err := fmt.Errorf("%w: name and email are required", credential.ErrInvalidCredential)
		m.LoginFailed(err)
		return err
	}

	m.mu.Lock()
	if m.state == Authenticated && !m.identity.SameUser(identity) {
		current := m.identity.Email
		m.mu.Unlock()
		m.logger.Info("ignoring login while another user is signed in", zap.String("current", current), zap.String("requested", identity.Email))
		return ErrAlreadyAuthenticated
	}
	relogin := m.state == Authenticated
	m.state = Authenticated
	m.identity = identity
	m.lastErr = nil
	m.channel.Open(identity)
	m.mu.Unlock()

	if relogin {
		m.logger.Info("re-login, reopening channel", zap.String("email", identity.Email))
	} else {
		m.logger.Info("login", zap.String("email", identity.Email), zap.String("name", identity.DisplayName))
	}
	m.changed()
	return nil
}

// Logout closes the channel, clears the identity and returns to
// Unauthenticated. The channel always ends Closed; the session itself is
// left untouched when nobody is signed in.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.channel.Close()
	if m.state == Unauthenticated {
		m.mu.Unlock()
		return
	}
	email := m.identity.Email
	m.identity = chat.UserIdentity{}
	m.state = Unauthenticated
	m.mu.Unlock()

	m.logger.Info("logout", zap.String("email", email))
	m.changed()
}

// LoginFailed records an authentication failure reported by the identity
// provider. State and channel are left as they are.
func (m *Manager) LoginFailed(err error) {
	if err == nil {
		err = credential.ErrInvalidCredential
	}

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	m.logger.Warn("login failed", zap.Error(err))
	m.changed()
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the signed-in user, if any.
func (m *Manager) Identity() (chat.UserIdentity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity, m.state == Authenticated
}

// LastError returns the most recent authentication failure, cleared by a
// successful login.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
