// Package config 统一配置管理
//
// 配置文件格式统一：api-server、worker、summaryctl 共用同一 YAML schema，
// 通过不同章节（section）区分各组件的配置。
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. common.yaml
//  4. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在环境变量中（YAML 中不存储任何密码）。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/summary-engine/prod.yaml
package config

import (
	"time"

	"summary-engine/pkg/logging"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig 统一 YAML 配置文件结构
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`    // HTTP API
	Database  DatabaseConfig  `yaml:"database"`  // 记录存储
	Redis     RedisConfig     `yaml:"redis"`     // 队列 + 限流窗口（共享）
	MinIO     MinIOConfig     `yaml:"minio"`     // 文档对象存储
	Documents DocumentsConfig `yaml:"documents"` // 文档来源
	Model     ModelConfig     `yaml:"model"`     // 生成模型
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Worker    WorkerConfig    `yaml:"worker"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Billing   BillingConfig   `yaml:"billing"`
	Logging   logging.Config  `yaml:"logging"`
}

// ServerConfig API Server 配置
// 注意：InternalSecret 只从 INTERNAL_SECRET 环境变量读取
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	InternalSecret  string        `yaml:"-"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_SECRET_KEY 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// DocumentsConfig 文档来源
type DocumentsConfig struct {
	Source string `yaml:"source"` // "database"（默认）或 "minio"
	Prefix string `yaml:"prefix"` // MinIO 对象前缀，默认 documents/
}

// ModelConfig 生成模型配置
type ModelConfig struct {
	Provider         string        `yaml:"provider"` // "openai" 或 "mock"
	Name             string        `yaml:"name"`
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"-"` // 只从 OPENAI_API_KEY 环境变量读取
	ContextWindow    int           `yaml:"context_window"`
	ReplyTokens      int           `yaml:"reply_tokens"`
	SafetyMargin     int           `yaml:"safety_margin"`
	Tokenizer        string        `yaml:"tokenizer"` // tiktoken 编码名，或 "estimate"
	BytesPerToken    float64       `yaml:"bytes_per_token"`
	InputPricePer1K  float64       `yaml:"input_price_per_1k"`
	OutputPricePer1K float64       `yaml:"output_price_per_1k"`
	Temperature      float32       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
	DetectLanguage   bool          `yaml:"detect_language"`
}

// RateLimitConfig 全局 token 限流配置
type RateLimitConfig struct {
	TokensPerWindow int64         `yaml:"tokens_per_window"` // 每个时间窗口允许的 token 上限
	KeyPrefix       string        `yaml:"key_prefix"`
	RetryInterval   time.Duration `yaml:"retry_interval"` // 未获准时的等待间隔
	StoreRetry      time.Duration `yaml:"store_retry"`    // 共享存储出错时的等待间隔
	WindowTTL       time.Duration `yaml:"window_ttl"`
}

// WorkerConfig 队列消费者配置
type WorkerConfig struct {
	ConsumerID      string        `yaml:"consumer_id"`
	ReadCount       int           `yaml:"read_count"`
	BlockTimeout    time.Duration `yaml:"block_timeout"`
	MaxConcurrency  int           `yaml:"max_concurrency"` // 单批次并发上限，0 表示不限
	ReclaimIdle     time.Duration `yaml:"reclaim_idle"`
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`
	MetricsPort     string        `yaml:"metrics_port"` // /metrics 与 /health 监听端口
}

// ReconcileConfig 孤儿 Job 巡检配置（默认关闭）
type ReconcileConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Requeue        bool          `yaml:"requeue"` // false 时只检测与告警
	Interval       time.Duration `yaml:"interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	BatchSize      int           `yaml:"batch_size"`
}

// BillingConfig 额度换算
type BillingConfig struct {
	CreditsPer1KTokens int64 `yaml:"credits_per_1k_tokens"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string
	RedisURL       string
	Server         ServerConfig
	MinIO          MinIOConfig
	Documents      DocumentsConfig
	Model          ModelConfig
	RateLimit      RateLimitConfig
	Worker         WorkerConfig
	Reconcile      ReconcileConfig
	Billing        BillingConfig
	Logging        logging.Config
	ConfigFilePath string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
