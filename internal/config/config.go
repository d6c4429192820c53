package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
// 1. 加载 .env.{env}（敏感信息）
// 2. 依次加载 configs/common.yaml 与 configs/{env}.yaml
// 3. 环境变量覆盖
// 4. 填充默认值
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)
	applyEnvOverrides(&yamlCfg.YAMLConfig)

	cfg := &Config{
		Env:            env,
		DatabaseDriver: detectDatabaseDriver(yamlCfg.Database.Driver, os.Getenv("DATABASE_URL")),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       buildRedisURL(yamlCfg.Redis),
		Server:         yamlCfg.Server,
		MinIO:          yamlCfg.MinIO,
		Documents:      yamlCfg.Documents,
		Model:          yamlCfg.Model,
		RateLimit:      yamlCfg.RateLimit,
		Worker:         yamlCfg.Worker,
		Reconcile:      yamlCfg.Reconcile,
		Billing:        yamlCfg.Billing,
		Logging:        yamlCfg.Logging,
		ConfigFilePath: yamlCfg.loadedFrom,
	}
	if cfg.DatabaseURL == "" {
		yamlCfg.Database.Driver = cfg.DatabaseDriver
		cfg.DatabaseURL = buildDatabaseURL(yamlCfg.Database, yamlCfg.Database.Password)
	}

	cfg.validate()
	return cfg
}

// defaultYAMLConfig 代码内置默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		Server:    ServerConfig{Port: "8080", ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second, ShutdownTimeout: 30 * time.Second},
		Database:  DatabaseConfig{Driver: "sqlite", Host: "localhost", Port: 5432, User: "summary", Name: "summary_engine", SSLMode: "disable"},
		Redis:     RedisConfig{Host: "localhost", Port: 6380, DB: 0},
		MinIO:     MinIOConfig{Endpoint: "localhost:9000", Bucket: "summary-engine"},
		Documents: DocumentsConfig{Source: "database", Prefix: "documents/"},
		Model: ModelConfig{
			Provider:         "openai",
			Name:             "gpt-4o-mini",
			ContextWindow:    16000,
			ReplyTokens:      2000,
			SafetyMargin:     200,
			Tokenizer:        "cl100k_base",
			BytesPerToken:    4,
			InputPricePer1K:  0.00015,
			OutputPricePer1K: 0.0006,
			Timeout:          2 * time.Minute,
			DetectLanguage:   true,
		},
		RateLimit: RateLimitConfig{
			TokensPerWindow: 200000,
			KeyPrefix:       "summary:ratelimit",
			RetryInterval:   60 * time.Second,
			StoreRetry:      3 * time.Second,
			WindowTTL:       2 * time.Minute,
		},
		Worker: WorkerConfig{
			ReadCount:       10,
			BlockTimeout:    5 * time.Second,
			ReclaimIdle:     10 * time.Minute,
			ReclaimInterval: time.Minute,
			MetricsPort:     "9091",
		},
		Reconcile: ReconcileConfig{Interval: 5 * time.Minute, StaleThreshold: 15 * time.Minute, BatchSize: 100},
		Billing:   BillingConfig{CreditsPer1KTokens: 1},
		Logging:   loggingDefaults(),
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	paths := effectiveConfigPaths()
	for _, name := range []string{"common.yaml", fmt.Sprintf("%s.yaml", env)} {
		for _, base := range paths {
			path := filepath.Join(base, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
				fmt.Fprintf(os.Stderr, "[config] ignore invalid %s: %v\n", path, err)
				break
			}
			cfg.loadedFrom = path
			break
		}
	}
	return cfg
}

// applyEnvOverrides 环境变量覆盖（密钥只从这里进入配置）
func applyEnvOverrides(c *YAMLConfig) {
	c.Server.InternalSecret = os.Getenv("INTERNAL_SECRET")
	c.Database.Password = getEnv("DB_PASSWORD", "summary_dev_password")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.MinIO.AccessKey = firstEnv("MINIO_ACCESS_KEY", "MINIO_ROOT_USER")
	c.MinIO.SecretKey = firstEnv("MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	c.Model.APIKey = os.Getenv("OPENAI_API_KEY")

	if v := firstEnv("API_PORT", "PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("WORKER_METRICS_PORT"); v != "" {
		c.Worker.MetricsPort = v
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		c.Worker.ConsumerID = v
	}
	if v := os.Getenv("RATE_LIMIT_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.TokensPerWindow = n
		}
	}
	if v := os.Getenv("RECONCILE_ENABLED"); v != "" {
		c.Reconcile.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// validate 验证并填充默认值（YAML 中显式写 0 或空字符串时回退）
func (c *Config) validate() {
	d := defaultYAMLConfig()

	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Documents.Source == "" {
		c.Documents.Source = d.Documents.Source
	}
	if c.Documents.Prefix == "" {
		c.Documents.Prefix = d.Documents.Prefix
	}

	m := &c.Model
	if m.Provider == "" {
		m.Provider = d.Model.Provider
	}
	if m.Name == "" {
		m.Name = d.Model.Name
	}
	if m.ContextWindow <= 0 {
		m.ContextWindow = d.Model.ContextWindow
	}
	if m.ReplyTokens < 0 {
		m.ReplyTokens = d.Model.ReplyTokens
	}
	if m.SafetyMargin < 0 {
		m.SafetyMargin = 0
	}
	if m.Tokenizer == "" {
		m.Tokenizer = d.Model.Tokenizer
	}
	if m.BytesPerToken <= 0 {
		m.BytesPerToken = d.Model.BytesPerToken
	}
	if m.Timeout <= 0 {
		m.Timeout = d.Model.Timeout
	}

	r := &c.RateLimit
	if r.TokensPerWindow <= 0 {
		r.TokensPerWindow = d.RateLimit.TokensPerWindow
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = d.RateLimit.KeyPrefix
	}
	if r.RetryInterval <= 0 {
		r.RetryInterval = d.RateLimit.RetryInterval
	}
	if r.StoreRetry <= 0 {
		r.StoreRetry = d.RateLimit.StoreRetry
	}
	if r.WindowTTL <= 0 {
		r.WindowTTL = d.RateLimit.WindowTTL
	}

	w := &c.Worker
	if w.ConsumerID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		w.ConsumerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if w.ReadCount <= 0 {
		w.ReadCount = d.Worker.ReadCount
	}
	if w.BlockTimeout <= 0 {
		w.BlockTimeout = d.Worker.BlockTimeout
	}
	if w.MaxConcurrency < 0 {
		w.MaxConcurrency = 0
	}
	if w.ReclaimIdle <= 0 {
		w.ReclaimIdle = d.Worker.ReclaimIdle
	}
	if w.ReclaimInterval <= 0 {
		w.ReclaimInterval = d.Worker.ReclaimInterval
	}
	if w.MetricsPort == "" {
		w.MetricsPort = d.Worker.MetricsPort
	}

	rc := &c.Reconcile
	if rc.Interval <= 0 {
		rc.Interval = d.Reconcile.Interval
	}
	if rc.StaleThreshold <= 0 {
		rc.StaleThreshold = d.Reconcile.StaleThreshold
	}
	if rc.BatchSize <= 0 {
		rc.BatchSize = d.Reconcile.BatchSize
	}

	if c.Billing.CreditsPer1KTokens <= 0 {
		c.Billing.CreditsPer1KTokens = d.Billing.CreditsPer1KTokens
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}
