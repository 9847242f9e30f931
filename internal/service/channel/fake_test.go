package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/private-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/private-chat/internal/service/chat"
)

// attempt is one pending Dial call of fakeDialer.
type attempt struct {
	target string
	ctx    context.Context
	reply  chan dialReply
}

type dialReply struct {
	conn Conn
	err  error
}

// fakeDialer hands every connection attempt to the test, which decides the
// outcome.
type fakeDialer struct {
	attempts chan *attempt
	// ignoreCancel lets an attempt succeed after its context was cancelled.
	ignoreCancel bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{attempts: make(chan *attempt, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (Conn, error) {
	a := &attempt{target: target, ctx: ctx, reply: make(chan dialReply, 1)}
	d.attempts <- a

	if d.ignoreCancel {
		r := <-a.reply
		return r.conn, r.err
	}
	select {
	case r := <-a.reply:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *attempt {
	t.Helper()
	select {
	case a := <-d.attempts:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("expected a connection attempt")
		return nil
	}
}

// fakeConn is a scripted connection. Reads keep flowing after Close so tests
// can emulate late callbacks from a superseded instance.
type fakeConn struct {
	inbound chan []byte
	errs    chan error

	mu      sync.Mutex
	written [][]byte
	closed  bool

	// gate, when set, blocks WriteMessage until closed; writing is signalled
	// on entry.
	gate    chan struct{}
	writing chan struct{}

	endOnce sync.Once
}

func newFakeConn(t *testing.T) *fakeConn {
	c := &fakeConn{
		inbound: make(chan []byte),
		errs:    make(chan error, 1),
	}
	t.Cleanup(c.end)
	return c
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case err := <-c.errs:
		return nil, err
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	if c.gate != nil {
		c.writing <- struct{}{}
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// push delivers one inbound frame; it returns once the reader took it.
func (c *fakeConn) push(t *testing.T, data string) {
	t.Helper()
	select {
	case c.inbound <- []byte(data):
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not accept inbound frame")
	}
}

// end terminates the reader goroutine.
func (c *fakeConn) end() {
	c.endOnce.Do(func() {
		close(c.inbound)
		if c.gate != nil {
			close(c.gate)
		}
	})
}

var ana = chat.UserIdentity{DisplayName: "Ana", Email: "a@x.com"}

func newTestManager(t *testing.T, dialer Dialer) (*Manager, *chatservice.Log) {
	t.Helper()
	log := chatservice.NewLog()
	m, err := NewManager(Options{BaseURL: "ws://chat.test", Dialer: dialer, Sink: log})
	if err != nil {
		t.Fatalf("NewManager err: %v", err)
	}
	t.Cleanup(m.Close)
	return m, log
}
