package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合客户端与开发后端的全部配置项。
type Config struct {
	Server ServerConfig
	Client ClientConfig
	AI     AIConfig
	Gemini GeminiConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Client: client, AI: ai, Gemini: loadGeminiConfig(), Log: loadLogConfig()}, nil
}

// ServerConfig 描述开发后端的 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3001"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3001" 或 "127.0.0.1:3001"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ClientConfig 描述实时聊天客户端的连接参数。
type ClientConfig struct {
	BackendURL       string
	WSPath           string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	OutboxSize       int
	IDToken          string
}

func loadClientConfig() (ClientConfig, error) {
	backend := getEnvOrDefault("CHAT_BACKEND_URL", "ws://localhost:3001")
	u, err := url.Parse(backend)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("invalid CHAT_BACKEND_URL value %q: %w", backend, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ClientConfig{}, fmt.Errorf("invalid CHAT_BACKEND_URL value %q: scheme must be ws or wss", backend)
	}

	handshake, err := parseDurationEnv("CHAT_HANDSHAKE_TIMEOUT", 0)
	if err != nil {
		return ClientConfig{}, err
	}

	ping, err := parseDurationEnv("CHAT_PING_INTERVAL", 54*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	read, err := parseDurationEnv("CHAT_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	if ping > 0 && read > 0 && read <= ping {
		return ClientConfig{}, fmt.Errorf("CHAT_READ_TIMEOUT (%s) must exceed CHAT_PING_INTERVAL (%s)", read, ping)
	}

	outbox := 16
	if override, err := parseOptionalIntEnv("CHAT_OUTBOX_SIZE"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 1 {
			outbox = 1
		} else {
			outbox = *override
		}
	}

	path := getEnvOrDefault("CHAT_WS_PATH", "/ws")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return ClientConfig{
		BackendURL:       backend,
		WSPath:           path,
		HandshakeTimeout: handshake,
		PingInterval:     ping,
		ReadTimeout:      read,
		OutboxSize:       outbox,
		IDToken:          strings.TrimSpace(os.Getenv("CHAT_ID_TOKEN")),
	}, nil
}

// AIConfig 描述开发后端自动回复所用的大模型配置。
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	ReplyDelay    time.Duration
	AssistantName string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	delay, err := parseDurationEnv("AI_REPLY_DELAY", time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		ReplyDelay:    delay,
		AssistantName: getEnvOrDefault("AI_ASSISTANT_NAME", "AI Assistant"),
	}, nil
}

// GeminiConfig 描述备用的 Gemini 模型配置，仅在 Ark 未配置时使用。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 表示是否提供了 Gemini 密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadGeminiConfig() GeminiConfig {
	return GeminiConfig{
		APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
	}
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
