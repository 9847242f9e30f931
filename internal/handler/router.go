package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/private-chat/internal/middleware"
	aiService "github.com/zhouzirui/private-chat/internal/service/ai"
	chatService "github.com/zhouzirui/private-chat/internal/service/chat"
	"github.com/zhouzirui/private-chat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, responder aiService.Responder, opts chat.Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chat.NewWebSocketHandler(chatSvc, responder, opts, logger).RegisterRoutes(r)

	return r
}
