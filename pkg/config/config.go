package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config 应用配置
// 进程启动时解析一次，之后只读
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Queue    QueueConfig    `yaml:"queue"`
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// WhisperConfig ASR 模型配置
type WhisperConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`    // whisper-1 等
	Language string `yaml:"language"` // 留空则自动检测
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	Align          bool   `yaml:"align"`           // 是否做词级时间戳对齐
	Diarize        bool   `yaml:"diarize"`         // 是否做说话人分离
	HFToken        string `yaml:"hf_token"`        // 说话人分离后端的访问凭证
	DiarizeURL     string `yaml:"diarize_url"`     // 说话人分离服务地址
	SerializeModel bool   `yaml:"serialize_model"` // 模型不支持并发调用时串行化访问
	WorkerCount    int    `yaml:"worker_count"`    // Worker 数量（同时处理多少个任务）
	TaskTimeout    int    `yaml:"task_timeout"`    // 单个任务超时（分钟）
	MaxRetries     int    `yaml:"max_retries"`     // 模型调用重试次数
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory 或 rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
}

// StoreConfig 任务元数据存储配置
type StoreConfig struct {
	Type     string         `yaml:"type"` // memory / redis / postgres / hybrid
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	ConnStr string `yaml:"conn_str"`
}

// RegistryConfig 任务注册表配置
type RegistryConfig struct {
	InputDir         string `yaml:"input_dir"`
	OutputDir        string `yaml:"output_dir"`
	ReconcileOnStart *bool  `yaml:"reconcile_on_start"` // 默认 true
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	// 解析 YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	// 敏感信息允许用环境变量覆盖（方便容器部署）
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Whisper.APIKey = v
	}
	if v := os.Getenv("HF_TOKEN"); v != "" {
		config.Pipeline.HFToken = v
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		config.Whisper.Model = v
	}

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &config, nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.Whisper.APIKey == "" || c.Whisper.APIKey == "your-openai-api-key-here" {
		return fmt.Errorf("请在配置文件中设置有效的 OpenAI API Key")
	}

	if c.Whisper.Model == "" {
		c.Whisper.Model = "whisper-1"
	}

	// 开启说话人分离必须提供凭证（提前检查，避免任务跑到一半才失败）
	if c.Pipeline.Diarize && c.Pipeline.HFToken == "" {
		return fmt.Errorf("开启说话人分离必须设置 hf_token（pyannote 访问凭证）")
	}

	if c.Pipeline.DiarizeURL == "" {
		c.Pipeline.DiarizeURL = "http://localhost:8000"
	}

	if c.Pipeline.WorkerCount <= 0 {
		c.Pipeline.WorkerCount = 2
	}

	if c.Pipeline.TaskTimeout <= 0 {
		c.Pipeline.TaskTimeout = 30 // 默认 30 分钟
	}

	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}

	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 512 * 1024 * 1024 // 默认 512 MB
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}

	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}

	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}

	if c.Store.Redis.TTLHours <= 0 {
		c.Store.Redis.TTLHours = 24 * 7
	}

	if c.Registry.InputDir == "" {
		c.Registry.InputDir = "assets/inputs"
	}

	if c.Registry.OutputDir == "" {
		c.Registry.OutputDir = "assets/outputs"
	}

	return nil
}

// ReconcileOnStart 启动时是否修复遗留的 processing 任务（默认开启）
func (c *Config) ReconcileOnStart() bool {
	if c.Registry.ReconcileOnStart == nil {
		return true
	}
	return *c.Registry.ReconcileOnStart
}
