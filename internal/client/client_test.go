package client

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/service/channel"
	"github.com/zhouzirui/private-chat/internal/service/credential"
	"github.com/zhouzirui/private-chat/internal/service/session"
)

func TestMain(m *testing.M) {
	// opencensus, linked through the genai client, starts its view worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// scripted is a backend whose every frame is driven by the test.
type scripted struct {
	url      string
	conns    chan *websocket.Conn
	received chan chat.Message
}

func newScripted(t *testing.T) *scripted {
	t.Helper()
	s := &scripted{conns: make(chan *websocket.Conn, 4), received: make(chan chat.Message, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.URL.Query().Get("email") == "" {
			http.Error(w, "rejected", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.conns <- conn
		for {
			var msg chat.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			s.received <- msg
		}
	}))
	t.Cleanup(srv.Close)
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return s
}

func (s *scripted) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(waitFor):
		t.Fatal("client did not connect")
		return nil
	}
}

func (s *scripted) next(t *testing.T) chat.Message {
	t.Helper()
	select {
	case msg := <-s.received:
		return msg
	case <-time.After(waitFor):
		t.Fatal("backend did not receive a message")
		return chat.Message{}
	}
}

func newTestClient(t *testing.T, backendURL string) *Client {
	t.Helper()
	c, err := New(Options{Config: config.ClientConfig{BackendURL: backendURL, WSPath: "/ws"}})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func requireConnected(t *testing.T, c *Client, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Snapshot().Connected == want }, waitFor, tick)
}

var ana = chat.UserIdentity{DisplayName: "Ana", Email: "a@x.com"}

func TestConversationScenario(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)

	require.NoError(t, c.Login(ana))
	assert.Equal(t, session.Authenticated, c.Snapshot().Session)
	server := backend.accept(t)
	requireConnected(t, c, true)

	first := chat.Message{ID: "1", Author: "Ana", Body: "hi", CreatedAt: 1000, SessionID: "s1"}
	require.NoError(t, server.WriteJSON(first))
	require.Eventually(t, func() bool { return len(c.Snapshot().Messages) == 1 }, waitFor, tick)
	assert.Equal(t, []chat.Message{first}, c.Snapshot().Messages)

	require.NoError(t, c.SendText("  hello  "))
	sent := backend.next(t)
	assert.Equal(t, "hello", sent.Body)
	assert.Equal(t, "Ana", sent.Author)
	assert.False(t, sent.IsAutomated)
	assert.Empty(t, sent.SessionID)
	assert.NotEmpty(t, sent.ID)
	assert.Len(t, c.Snapshot().Messages, 1, "outbound message must wait for the echo")

	echo := chat.Message{ID: "2", Author: "Ana", Body: "hello", CreatedAt: sent.CreatedAt, SessionID: "s1"}
	require.NoError(t, server.WriteJSON(echo))
	require.Eventually(t, func() bool { return len(c.Snapshot().Messages) == 2 }, waitFor, tick)
	assert.Equal(t, []chat.Message{first, echo}, c.Snapshot().Messages)

	c.Logout()
	snap := c.Snapshot()
	assert.Equal(t, session.Unauthenticated, snap.Session)
	assert.Equal(t, channel.Closed, snap.Channel)
	assert.Nil(t, snap.Identity)
	assert.False(t, snap.Connected)
}

func TestSendTextNoops(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)

	assert.ErrorIs(t, c.SendText("hello"), channel.ErrNotOpen, "not logged in")

	require.NoError(t, c.Login(ana))
	backend.accept(t)
	requireConnected(t, c, true)

	assert.NoError(t, c.SendText("   "))
	select {
	case msg := <-backend.received:
		t.Fatalf("blank text must not be sent, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, c.Snapshot().Messages)
}

func TestLogoutBeforeLoginClosesChannel(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)
	require.Equal(t, channel.Idle, c.Snapshot().Channel)

	c.Logout()

	snap := c.Snapshot()
	assert.Equal(t, session.Unauthenticated, snap.Session)
	assert.Equal(t, channel.Closed, snap.Channel)
	assert.Nil(t, snap.Identity)
}

func TestRemoteDisconnectRequiresRelogin(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)

	require.NoError(t, c.Login(ana))
	server := backend.accept(t)
	requireConnected(t, c, true)

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")
	require.NoError(t, server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	requireConnected(t, c, false)
	snap := c.Snapshot()
	assert.Equal(t, session.Authenticated, snap.Session, "disconnect does not sign the user out")
	assert.ErrorIs(t, snap.ChannelErr, channel.ErrDisconnect)
	assert.ErrorIs(t, c.SendText("anyone?"), channel.ErrNotOpen)

	require.NoError(t, c.Login(ana))
	backend.accept(t)
	requireConnected(t, c, true)
}

func TestLoginWithCredential(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)

	err := c.LoginWithCredential("not-a-token")
	require.ErrorIs(t, err, credential.ErrInvalidCredential)
	snap := c.Snapshot()
	assert.Equal(t, session.Unauthenticated, snap.Session)
	assert.ErrorIs(t, snap.AuthErr, credential.ErrInvalidCredential)
	assert.Equal(t, channel.Idle, snap.Channel)

	require.NoError(t, c.LoginWithCredential(unsignedToken(t, map[string]string{"name": "Ana", "email": "a@x.com", "picture": "https://example.com/a.png"})))
	backend.accept(t)
	requireConnected(t, c, true)

	snap = c.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "https://example.com/a.png", snap.Identity.AvatarURL)
	assert.NoError(t, snap.AuthErr)
}

func TestChangesSignal(t *testing.T) {
	backend := newScripted(t)
	c := newTestClient(t, backend.url)

	require.NoError(t, c.Login(ana))
	select {
	case <-c.Changes():
	case <-time.After(waitFor):
		t.Fatal("expected a change signal after login")
	}
	backend.accept(t)
	requireConnected(t, c, true)
}

func TestIDGeneratorIsMonotonic(t *testing.T) {
	g := &idGenerator{}
	at := time.UnixMilli(5000)

	assert.Equal(t, "5000", g.next(at))
	assert.Equal(t, "5001", g.next(at))
	assert.Equal(t, "5002", g.next(time.UnixMilli(4000)))
	assert.Equal(t, "9000", g.next(time.UnixMilli(9000)))
}

func unsignedToken(t *testing.T, claims map[string]string) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"none","typ":"JWT"}`)) + "." + enc(payload) + "."
}
