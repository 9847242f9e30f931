// Package client composes the session, channel and message log into the
// surface consumed by a presentation layer.
package client

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
	"github.com/zhouzirui/private-chat/internal/service/channel"
	chatservice "github.com/zhouzirui/private-chat/internal/service/chat"
	"github.com/zhouzirui/private-chat/internal/service/credential"
	"github.com/zhouzirui/private-chat/internal/service/session"
)

// Options configures a Client.
type Options struct {
	Config config.ClientConfig
	// Dialer overrides the websocket transport built from Config.
	Dialer channel.Dialer
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a read-only view of everything a presentation layer renders.
type Snapshot struct {
	Session    session.State
	Identity   *chat.UserIdentity
	Channel    channel.State
	Connected  bool
	Messages   []chat.Message
	AuthErr    error
	ChannelErr error
}

// Client is the chat client core.
type Client struct {
	log     *chatservice.Log
	channel *channel.Manager
	session *session.Manager
	ids     *idGenerator
	now     func() time.Time
	changes chan struct{}
	logger  *zap.Logger
}

// New wires a client from opts. Nothing is dialed until Login.
func New(opts Options) (*Client, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		log:     chatservice.NewLog(),
		ids:     &idGenerator{},
		now:     now,
		changes: make(chan struct{}, 1),
		logger:  observability.Named(opts.Logger, "client"),
	}

	dialer := opts.Dialer
	if dialer == nil {
		wsOpts := channel.DefaultWSOptions()
		wsOpts.HandshakeTimeout = opts.Config.HandshakeTimeout
		wsOpts.PingInterval = opts.Config.PingInterval
		wsOpts.ReadTimeout = opts.Config.ReadTimeout
		dialer = channel.NewWSDialer(wsOpts)
	}

	ch, err := channel.NewManager(channel.Options{
		BaseURL:    opts.Config.BackendURL,
		Path:       opts.Config.WSPath,
		Dialer:     dialer,
		Sink:       c.log,
		OutboxSize: opts.Config.OutboxSize,
		Logger:     opts.Logger,
		OnChange:   c.notify,
	})
	if err != nil {
		return nil, err
	}
	c.channel = ch
	c.session = session.NewManager(ch, opts.Logger, c.notify)
	return c, nil
}

// Login signs identity in and starts connecting.
func (c *Client) Login(identity chat.UserIdentity) error {
	return c.session.Login(identity)
}

// LoginWithCredential verifies raw and logs the decoded identity in. A
// credential that cannot be verified is recorded as a login failure.
func (c *Client) LoginWithCredential(raw string) error {
	identity, err := credential.Verify(raw)
	if err != nil {
		c.session.LoginFailed(err)
		return err
	}
	return c.session.Login(identity)
}

// LoginFailed records a failure reported by the identity provider.
func (c *Client) LoginFailed(err error) {
	c.session.LoginFailed(err)
}

// Logout signs out and closes the channel.
func (c *Client) Logout() {
	c.session.Logout()
}

// SendText builds a message from free text and transmits it. Blank text is
// ignored. The message is not added to the log here; it appears once the
// backend echoes it.
func (c *Client) SendText(body string) error {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil
	}

	identity, ok := c.session.Identity()
	if !ok || !c.channel.Connected() {
		return channel.ErrNotOpen
	}

	now := c.now()
	msg := chat.Message{
		ID:        c.ids.next(now),
		Author:    identity.DisplayName,
		Body:      text,
		CreatedAt: now.UnixMilli(),
	}
	if err := c.channel.Send(msg); err != nil {
		c.logger.Warn("send failed", zap.String("id", msg.ID), zap.Error(err))
		return err
	}
	return nil
}

// Snapshot returns the current state.
func (c *Client) Snapshot() Snapshot {
	snap := Snapshot{
		Session:    c.session.State(),
		Channel:    c.channel.State(),
		Messages:   c.log.All(),
		AuthErr:    c.session.LastError(),
		ChannelErr: c.channel.Err(),
	}
	snap.Connected = snap.Channel == channel.Open
	if identity, ok := c.session.Identity(); ok {
		snap.Identity = &identity
	}
	return snap
}

// Messages returns the log entries from index n onwards.
func (c *Client) Messages(n int) []chat.Message {
	return c.log.Since(n)
}

// Changes signals that the snapshot may have changed. Signals coalesce; read
// the snapshot after each one.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

// Close logs out and releases the channel.
func (c *Client) Close() {
	c.session.Logout()
	c.channel.Close()
}

func (c *Client) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// idGenerator derives message ids from the clock in milliseconds, bumping
// past the previous id so ids never repeat within one client.
type idGenerator struct {
	mu   sync.Mutex
	last int64
}

func (g *idGenerator) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}
