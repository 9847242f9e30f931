package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one established duplex connection. ReadMessage is called from a
// single goroutine and WriteMessage from another; Close may be called
// concurrently with both.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes connections. Dial must return promptly once ctx is
// cancelled.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// CloseError is returned by Conn.ReadMessage when the peer sent a close
// frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("closed by peer (code %d)", e.Code)
	}
	return fmt.Sprintf("closed by peer (code %d): %s", e.Code, e.Reason)
}

// isRemoteClose reports whether err is an orderly closure by the peer.
func isRemoteClose(err error) bool {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code != websocket.CloseAbnormalClosure
	}
	return false
}

// WSOptions WebSocket 传输配置选项
type WSOptions struct {
	HandshakeTimeout time.Duration // 握手超时，0 表示不限制
	PingInterval     time.Duration // Ping间隔，0 表示关闭心跳
	ReadTimeout      time.Duration // 心跳开启时的读取超时
	WriteTimeout     time.Duration // 写入超时
	Header           http.Header
}

// DefaultWSOptions 默认传输选项
func DefaultWSOptions() WSOptions {
	return WSOptions{
		PingInterval: 54 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSDialer dials gorilla websocket connections.
type WSDialer struct {
	dialer *websocket.Dialer
	opts   WSOptions
}

// NewWSDialer 创建 WebSocket 拨号器
func NewWSDialer(opts WSOptions) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		opts: opts,
	}
}

// Dial 建立单次连接，不做重试
func (d *WSDialer) Dial(ctx context.Context, target string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, target, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &wsConn{conn: conn, opts: d.opts, stop: make(chan struct{})}

	if d.opts.PingInterval > 0 {
		if d.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout))
			// 设置pong处理器
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout))
			})
		}
		go c.pingLoop()
	}

	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	opts WSOptions
	stop chan struct{}
	once sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &CloseError{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
		}
		return nil, err
	}
	if c.opts.PingInterval > 0 && c.opts.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure frame and releases the socket.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// pingLoop 定期发送ping消息
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if c.opts.WriteTimeout > 0 {
				deadline = time.Now().Add(c.opts.WriteTimeout)
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// 连接出错，读取端会随之失败
				return
			}
		}
	}
}
