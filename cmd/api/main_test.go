package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/service/ai"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServerReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String(), ReadHeaderTimeout: time.Second}
	require.Error(t, runServer(context.Background(), srv))
}

func TestNewResponderFallsBackToCanned(t *testing.T) {
	responder := newResponder(context.Background(), &config.Config{}, zap.NewNop())
	assert.IsType(t, ai.CannedResponder{}, responder)
}

func TestNewResponderUsesGemini(t *testing.T) {
	cfg := &config.Config{Gemini: config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.0-flash"}}
	responder := newResponder(context.Background(), cfg, zap.NewNop())
	assert.IsType(t, &ai.GeminiService{}, responder)
}
