package chat

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatmodel "github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
	"github.com/zhouzirui/private-chat/internal/service/ai"
	chatservice "github.com/zhouzirui/private-chat/internal/service/chat"
	"github.com/zhouzirui/private-chat/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	historyDepth = 5
	outboxSize   = 16
)

// Options 控制自动回复的表现。
type Options struct {
	AssistantName string
	ReplyDelay    time.Duration
}

// WebSocketHandler 聊天 WebSocket 处理器
type WebSocketHandler struct {
	chatSvc   *chatservice.Service
	responder ai.Responder
	opts      Options
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器；responder 为空时不产生自动回复。
func NewWebSocketHandler(chatSvc *chatservice.Service, responder ai.Responder, opts Options, logger *zap.Logger) *WebSocketHandler {
	if opts.AssistantName == "" {
		opts.AssistantName = "AI Assistant"
	}
	return &WebSocketHandler{
		chatSvc:   chatSvc,
		responder: responder,
		opts:      opts,
		logger:    observability.Named(logger, "websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// connection 单个连接的会话与写出队列
type connection struct {
	session chatmodel.Session
	outbox  chan chatmodel.Message
	replies sync.WaitGroup
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	username := strings.TrimSpace(query.Get("username"))
	email := strings.TrimSpace(query.Get("email"))
	if username == "" || email == "" {
		utils.RespondError(w, http.StatusBadRequest, "username and email are required")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), username, email)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.chatSvc.EndSession(r.Context(), session.ID)
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", session.ID), zap.String("username", username))
	logger.Info("new connection")

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{session: session, outbox: make(chan chatmodel.Message, outboxSize)}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, conn, c.outbox, logger)
	}()

	defer func() {
		cancel()
		c.replies.Wait()
		<-writerDone
		h.chatSvc.EndSession(context.Background(), session.ID)
		logger.Info("connection closed")
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := chatmodel.Decode(data)
		if err != nil {
			logger.Debug("ignoring inbound record", zap.Error(err))
			continue
		}

		h.handleMessage(ctx, c, msg, logger)
	}
}

// handleMessage 保存并回显用户消息，必要时安排自动回复。
func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, msg chatmodel.Message, logger *zap.Logger) {
	history, err := h.chatSvc.LoadTranscript(ctx, c.session.ID, historyDepth)
	if err != nil {
		logger.Warn("failed to load transcript", zap.Error(err))
		return
	}

	msg.Author = c.session.Username
	msg.IsAutomated = false
	msg.SessionID = c.session.ID

	saved, err := h.chatSvc.SaveMessage(ctx, msg)
	if err != nil {
		logger.Warn("failed to save message", zap.Error(err))
		return
	}

	if !enqueue(ctx, c.outbox, saved) {
		return
	}

	if h.responder == nil || !ai.ShouldRespond(saved.Body) {
		return
	}

	c.replies.Add(1)
	go func() {
		defer c.replies.Done()
		h.reply(ctx, c, history, saved, logger)
	}()
}

func (h *WebSocketHandler) reply(ctx context.Context, c *connection, history []chatmodel.Message, msg chatmodel.Message, logger *zap.Logger) {
	text, err := h.responder.Reply(ctx, c.session.Username, history, msg.Body)
	if err != nil {
		logger.Warn("failed to generate reply", zap.Error(err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	saved, err := h.chatSvc.SaveMessage(ctx, chatmodel.Message{
		ID:          uuid.NewString(),
		Author:      h.opts.AssistantName,
		Body:        text,
		CreatedAt:   time.Now().UnixMilli(),
		IsAutomated: true,
		SessionID:   c.session.ID,
	})
	if err != nil {
		logger.Warn("failed to save reply", zap.Error(err))
		return
	}

	if h.opts.ReplyDelay > 0 {
		timer := time.NewTimer(h.opts.ReplyDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	enqueue(ctx, c.outbox, saved)
}

func enqueue(ctx context.Context, outbox chan<- chatmodel.Message, msg chatmodel.Message) bool {
	select {
	case outbox <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeLoop 是连接上唯一的写入者，负责消息与心跳。
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan chatmodel.Message, logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbox:
			data, err := chatmodel.Encode(msg)
			if err != nil {
				logger.Warn("failed to encode message", zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
