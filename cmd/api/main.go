package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/handler"
	handlerchat "github.com/zhouzirui/private-chat/internal/handler/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
	"github.com/zhouzirui/private-chat/internal/service/ai"
	"github.com/zhouzirui/private-chat/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	chatService := chat.NewService()

	responder := newResponder(ctx, cfg, logger)

	router := handler.NewRouter(chatService, responder, handlerchat.Options{
		AssistantName: cfg.AI.AssistantName,
		ReplyDelay:    cfg.AI.ReplyDelay,
	}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// newResponder prefers Ark, then Gemini, and falls back to canned replies.
func newResponder(ctx context.Context, cfg *config.Config, logger *zap.Logger) ai.Responder {
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger)
		if err == nil {
			logger.Info("AI service initialized successfully", zap.String("model", cfg.AI.Model))
			return aiService
		}
		logger.Warn("failed to initialize AI service - 请检查 Ark 模型相关环境变量", zap.Error(err))
	}

	if cfg.Gemini.Enabled() {
		gemini, err := ai.NewGeminiService(ctx, cfg.Gemini, logger)
		if err == nil {
			logger.Info("Gemini service initialized successfully", zap.String("model", cfg.Gemini.Model))
			return gemini
		}
		logger.Warn("failed to initialize Gemini service", zap.Error(err))
	}

	logger.Info("模型凭证未配置，使用固定回复")
	return ai.CannedResponder{}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
