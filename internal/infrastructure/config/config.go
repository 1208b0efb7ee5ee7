package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Shadow    ShadowConfig    `mapstructure:"shadow"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sender    SenderConfig    `mapstructure:"sender"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EmbeddingConfig 嵌入服务配置
// Dim 是全局唯一的向量维度来源, 两侧存储与健康检查都从这里取
type EmbeddingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Dim     int    `mapstructure:"dim"`
}

// VectorConfig 托管向量库配置
type VectorConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// ShadowConfig 本地影子向量库配置
type ShadowConfig struct {
	DBPath    string `mapstructure:"db_path"`
	TableName string `mapstructure:"table_name"`
}

// CacheConfig 缓存层配置（队列 + 限流计数）
type CacheConfig struct {
	URL string `mapstructure:"url"`
}

// SenderConfig 上游消息后端配置
type SenderConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MediaToken string `mapstructure:"media_token"`
	MediaQuery string `mapstructure:"media_query"`
}

// ProvidersConfig 各 AI 提供商凭证
type ProvidersConfig struct {
	GroqAPIKey       string `mapstructure:"groq_api_key"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"`
	DeepgramAPIKey   string `mapstructure:"deepgram_api_key"`
	AssemblyAIAPIKey string `mapstructure:"assemblyai_api_key"`
}

// Configured 返回已配置凭证的提供商数
func (p ProvidersConfig) Configured() int {
	n := 0
	for _, key := range []string{p.GroqAPIKey, p.GeminiAPIKey, p.DeepgramAPIKey, p.AssemblyAIAPIKey} {
		if key != "" {
			n++
		}
	}
	return n
}

// WorkerConfig 调度工作池配置
type WorkerConfig struct {
	// Embedded 为 true 时 serve 进程内同时运行工作池（单机部署）
	Embedded bool `mapstructure:"embedded"`
}

// Load 加载配置
// 优先级 (低 → 高): 默认值 → ./config.yaml → 环境变量
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "multilingual-e5-small")
	v.SetDefault("embedding.dim", 384)

	v.SetDefault("vector.url", "http://localhost:6334")

	v.SetDefault("shadow.db_path", "./data/lancedb")
	v.SetDefault("shadow.table_name", "messages")

	v.SetDefault("cache.url", "redis://localhost:6379")

	v.SetDefault("worker.embedded", false)
}

// bindEnv 绑定约定的环境变量名（与上游部署保持一致, 不加前缀）
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"server.port":                  "PORT",
		"log.level":                    "LOG_LEVEL",
		"log.format":                   "LOG_FORMAT",
		"embedding.base_url":           "EMBEDDING_BASE_URL",
		"embedding.api_key":            "EMBEDDING_API_KEY",
		"embedding.model":              "EMBEDDING_MODEL",
		"embedding.dim":                "EMBEDDING_DIM",
		"vector.url":                   "AUTHORITATIVE_VECTOR_URL",
		"vector.api_key":               "AUTHORITATIVE_VECTOR_API_KEY",
		"shadow.db_path":               "DB_PATH",
		"shadow.table_name":            "TABLE_NAME",
		"cache.url":                    "CACHE_STORE_URL",
		"sender.base_url":              "SENDER_BACKEND_URL",
		"sender.media_token":           "SENDER_BACKEND_MEDIA_EXCEPTION_TOKEN",
		"sender.media_query":           "SENDER_BACKEND_MEDIA_EXCEPTION_QUERY",
		"providers.groq_api_key":       "GROQ_API_KEY",
		"providers.gemini_api_key":     "GEMINI_API_KEY",
		"providers.deepgram_api_key":   "DEEPGRAM_API_KEY",
		"providers.assemblyai_api_key": "ASSEMBLYAI_API_KEY",
		"worker.embedded":              "WORKER_EMBEDDED",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}
