// Package channel owns the realtime duplex channel between the chat client
// and the backend.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
)

var (
	// ErrConnect reports that the transport failed to establish the channel
	// or the backend rejected it.
	ErrConnect = errors.New("channel connect failed")
	// ErrProtocol reports an inbound payload that is not a chat record. It is
	// never fatal to the channel.
	ErrProtocol = errors.New("channel protocol error")
	// ErrDisconnect reports a remote or transport initiated closure of an
	// open channel.
	ErrDisconnect = errors.New("channel disconnected")
	// ErrNotOpen is returned by Send when no channel is open.
	ErrNotOpen = errors.New("channel not open")
	// ErrOutboxFull is returned by Send when the send queue is at capacity.
	ErrOutboxFull = errors.New("channel outbox full")
)

const defaultOutboxSize = 16

// Sink receives decoded inbound messages in arrival order.
type Sink interface {
	Append(msg chat.Message)
}

// Options configures a Manager.
type Options struct {
	// BaseURL is the ws:// or wss:// origin of the backend.
	BaseURL string
	// Path is appended to BaseURL, "/ws" when empty.
	Path   string
	Dialer Dialer
	Sink   Sink
	// OutboxSize bounds the per-connection send queue.
	OutboxSize int
	Logger     *zap.Logger
	// OnChange is called after every state transition and every append,
	// outside of any lock.
	OnChange func()
}

// Manager owns at most one live channel instance. Each instance is tagged
// with a generation; callbacks from an instance that is no longer live are
// discarded, so a superseded connection never touches the state of its
// replacement.
type Manager struct {
	base       *url.URL
	dialer     Dialer
	sink       Sink
	outboxSize int
	logger     *zap.Logger
	onChange   func()

	mu    sync.Mutex
	gen   uint64
	state State
	err   error
	live  *instance
}

type instance struct {
	gen    uint64
	cancel context.CancelFunc
	conn   Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

// release stops the instance's goroutines and frees its connection. Safe to
// call more than once.
func (inst *instance) release() {
	inst.once.Do(func() {
		inst.cancel()
		close(inst.done)
		if inst.conn != nil {
			go inst.conn.Close()
		}
	})
}

// NewManager validates opts and returns an idle Manager.
func NewManager(opts Options) (*Manager, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be ws or wss", opts.BaseURL)
	}
	if opts.Sink == nil {
		return nil, errors.New("channel sink is required")
	}

	path := opts.Path
	if path == "" {
		path = "/ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	base.RawQuery = ""

	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewWSDialer(DefaultWSOptions())
	}

	outbox := opts.OutboxSize
	if outbox < 1 {
		outbox = defaultOutboxSize
	}

	return &Manager{
		base:       base,
		dialer:     dialer,
		sink:       opts.Sink,
		outboxSize: outbox,
		logger:     observability.Named(opts.Logger, "channel"),
		onChange:   opts.OnChange,
		state:      Idle,
	}, nil
}

// Target returns the connection URL asserting identity. The backend
// authorizes the whole channel based on these parameters.
func (m *Manager) Target(identity chat.UserIdentity) string {
	u := *m.base
	q := url.Values{}
	q.Set("username", identity.DisplayName)
	q.Set("email", identity.Email)
	u.RawQuery = q.Encode()
	return u.String()
}

// Open supersedes any live instance and starts connecting a new one. It
// returns immediately; the outcome is observed through State.
func (m *Manager) Open(identity chat.UserIdentity) {
	target := m.Target(identity)

	m.mu.Lock()
	if m.live != nil {
		m.logger.Debug("superseding channel", zap.Uint64("generation", m.live.gen))
		m.live.release()
	}
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{gen: m.gen, cancel: cancel, done: make(chan struct{})}
	m.live = inst
	m.state = Connecting
	m.err = nil
	m.mu.Unlock()

	m.logger.Info("connecting", zap.Uint64("generation", inst.gen), zap.String("email", identity.Email))
	m.changed()

	go m.dial(ctx, inst, target)
}

// Close moves the channel to Closed from any state and releases the live
// instance, suppressing any pending outcome of a connection attempt.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.live != nil {
		m.logger.Info("closing", zap.Uint64("generation", m.live.gen))
		m.live.release()
		m.live = nil
	}
	prev := m.state
	m.state = Closed
	m.err = nil
	m.mu.Unlock()

	if prev != Closed {
		m.changed()
	}
}

// Send transmits msg on the open channel. The session id is always cleared;
// session correlation belongs to the backend. Messages are never buffered
// across disconnects.
func (m *Manager) Send(msg chat.Message) error {
	msg.SessionID = ""
	payload, err := chat.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Open || m.live == nil {
		return ErrNotOpen
	}
	select {
	case m.live.outbox <- payload:
		return nil
	default:
		return ErrOutboxFull
	}
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the channel is open.
func (m *Manager) Connected() bool {
	return m.State() == Open
}

// Err returns the error behind the last Errored or remote Closed transition.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Generation returns the tag of the most recently opened instance.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// current returns the live instance when it carries gen. Callers hold mu.
func (m *Manager) current(gen uint64) *instance {
	if m.live == nil || m.live.gen != gen {
		return nil
	}
	return m.live
}

func (m *Manager) dial(ctx context.Context, inst *instance, target string) {
	conn, err := m.dialer.Dial(ctx, target)

	m.mu.Lock()
	if m.current(inst.gen) == nil {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug("discarding stale connection attempt", zap.Uint64("generation", inst.gen))
		return
	}
	if err != nil {
		m.live = nil
		inst.release()
		m.state = Errored
		m.err = fmt.Errorf("%w: %v", ErrConnect, err)
		m.mu.Unlock()

		m.logger.Warn("connect failed", zap.Uint64("generation", inst.gen), zap.Error(err))
		m.changed()
		return
	}
	inst.conn = conn
	inst.outbox = make(chan []byte, m.outboxSize)
	m.state = Open
	m.mu.Unlock()

	m.logger.Info("connected", zap.Uint64("generation", inst.gen))
	m.changed()

	go m.writeLoop(inst)
	m.readLoop(inst)
}

func (m *Manager) readLoop(inst *instance) {
	for {
		data, err := inst.conn.ReadMessage()
		if err != nil {
			m.disconnect(inst.gen, err)
			return
		}
		m.deliver(inst.gen, data)
	}
}

func (m *Manager) writeLoop(inst *instance) {
	for {
		select {
		case <-inst.done:
			return
		case payload := <-inst.outbox:
			if err := inst.conn.WriteMessage(payload); err != nil {
				m.disconnect(inst.gen, err)
				return
			}
		}
	}
}

// deliver appends one inbound payload produced by instance gen.
func (m *Manager) deliver(gen uint64, data []byte) {
	msg, decodeErr := chat.Decode(data)

	m.mu.Lock()
	if m.current(gen) == nil {
		m.mu.Unlock()
		return
	}
	if decodeErr != nil {
		m.mu.Unlock()
		m.logger.Debug("dropping inbound payload", zap.Uint64("generation", gen), zap.Error(fmt.Errorf("%w: %v", ErrProtocol, decodeErr)))
		return
	}
	m.sink.Append(msg)
	m.mu.Unlock()

	m.changed()
}

// disconnect handles a read or write failure of instance gen. A close frame
// from the peer ends in Closed, anything else in Errored.
func (m *Manager) disconnect(gen uint64, cause error) {
	m.mu.Lock()
	inst := m.current(gen)
	if inst == nil {
		m.mu.Unlock()
		return
	}
	m.live = nil
	inst.release()
	if isRemoteClose(cause) {
		m.state = Closed
	} else {
		m.state = Errored
	}
	m.err = fmt.Errorf("%w: %v", ErrDisconnect, cause)
	state := m.state
	m.mu.Unlock()

	m.logger.Warn("disconnected", zap.Uint64("generation", gen), zap.Stringer("state", state), zap.Error(cause))
	m.changed()
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
