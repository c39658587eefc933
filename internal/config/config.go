package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/service/vision"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Vision    VisionConfig
	Telemetry TelemetryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	vision, err := loadVisionConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Vision: vision, Telemetry: telemetry}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr     string
	Env      string
	LogLevel string
}

// IsDevelopment reports whether human-readable logs are wanted.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		Env:      strings.ToLower(getEnvOrDefault("APP_ENV", "development")),
		LogLevel: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}

	port := getEnvOrDefault("PORT", "8080")
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		cfg.Addr = ":" + port
	}
	return cfg, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
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

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
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

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// VisionConfig 描述图像分类相关配置。
type VisionConfig struct {
	URL           string
	Model         string
	InputSize     int
	Normalization string
	IndexPolicy   string
	Labels        []string
	Timeout       time.Duration
	CacheSize     int
	MaxUploadMB   int
	MaxPixels     int
}

// Enabled 表示是否配置了推理服务。
func (c VisionConfig) Enabled() bool {
	return c.URL != ""
}

// MaxUploadBytes is the accepted multipart body size.
func (c VisionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// NewClassifier 根据配置创建图像分类器，模型在首次使用时加载。
func (c VisionConfig) NewClassifier(ctx context.Context, logger zerolog.Logger) (*vision.Classifier, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("CLASSIFIER_URL 未配置")
	}

	norm, err := vision.ParseNormalization(c.Normalization)
	if err != nil {
		return nil, err
	}
	policy, err := vision.ParseIndexPolicy(c.IndexPolicy)
	if err != nil {
		return nil, err
	}

	engine := vision.NewRESTEngine(c.URL, c.Model, &http.Client{Timeout: c.Timeout})
	loader := vision.NewLoader(engine, c.Timeout, logger)
	return vision.NewClassifier(ctx, loader, vision.Config{
		InputSize:     c.InputSize,
		Normalization: norm,
		IndexPolicy:   policy,
		Labels:        c.Labels,
		CacheSize:     c.CacheSize,
	}, logger)
}

func loadVisionConfig() (VisionConfig, error) {
	inputSize, err := parseIntEnvOrDefault("CLASSIFIER_INPUT_SIZE", 224)
	if err != nil {
		return VisionConfig{}, err
	}
	if inputSize < 1 {
		return VisionConfig{}, fmt.Errorf("invalid CLASSIFIER_INPUT_SIZE value %d", inputSize)
	}

	timeout, err := parseIntEnvOrDefault("CLASSIFIER_TIMEOUT", 30)
	if err != nil {
		return VisionConfig{}, err
	}

	cacheSize, err := parseIntEnvOrDefault("CLASSIFIER_CACHE_SIZE", 128)
	if err != nil {
		return VisionConfig{}, err
	}

	maxUpload, err := parseIntEnvOrDefault("CLASSIFIER_MAX_UPLOAD_MB", 10)
	if err != nil {
		return VisionConfig{}, err
	}
	if maxUpload < 1 {
		maxUpload = 1
	}

	maxPixels, err := parseIntEnvOrDefault("CLASSIFIER_MAX_PIXELS", vision.DefaultMaxPixels)
	if err != nil {
		return VisionConfig{}, err
	}
	if maxPixels < 1 {
		return VisionConfig{}, fmt.Errorf("invalid CLASSIFIER_MAX_PIXELS value %d", maxPixels)
	}

	return VisionConfig{
		URL:           strings.TrimSpace(os.Getenv("CLASSIFIER_URL")),
		Model:         getEnvOrDefault("CLASSIFIER_MODEL", "plant_disease"),
		InputSize:     inputSize,
		Normalization: getEnvOrDefault("CLASSIFIER_NORMALIZATION", "unit"),
		IndexPolicy:   getEnvOrDefault("CLASSIFIER_INDEX_POLICY", "strict"),
		Labels:        splitList(os.Getenv("CLASSIFIER_LABELS")),
		Timeout:       time.Duration(timeout) * time.Second,
		CacheSize:     cacheSize,
		MaxUploadMB:   maxUpload,
		MaxPixels:     maxPixels,
	}, nil
}

// Sensor feed kinds.
const (
	FeedStatic    = "static"
	FeedSimulated = "simulated"
	FeedHTTP      = "http"
)

// TelemetryConfig 描述遥测模拟与传感器数据源。
type TelemetryConfig struct {
	Interval time.Duration
	Feed     string
	FeedURL  string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	interval, err := parseIntEnvOrDefault("TELEMETRY_INTERVAL", 5)
	if err != nil {
		return TelemetryConfig{}, err
	}
	if interval < 1 {
		return TelemetryConfig{}, fmt.Errorf("invalid TELEMETRY_INTERVAL value %d", interval)
	}

	cfg := TelemetryConfig{
		Interval: time.Duration(interval) * time.Second,
		Feed:     strings.ToLower(getEnvOrDefault("SENSOR_FEED", FeedStatic)),
		FeedURL:  strings.TrimSpace(os.Getenv("SENSOR_FEED_URL")),
	}

	switch cfg.Feed {
	case FeedStatic, FeedSimulated:
	case FeedHTTP:
		if cfg.FeedURL == "" {
			return TelemetryConfig{}, fmt.Errorf("SENSOR_FEED=http requires SENSOR_FEED_URL")
		}
	default:
		return TelemetryConfig{}, fmt.Errorf("invalid SENSOR_FEED value %q", cfg.Feed)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}
