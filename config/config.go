// Package config 加载服务配置：默认值 → 配置文件（JSON/TOML）→ .env 与环境变量。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// 默认值，对应原始部署中的本地地址。
const (
	DefaultServerAddr  = ":3000"
	DefaultProvider    = "openai"
	DefaultModel       = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultBackendURL  = "http://localhost:8000"
	DefaultVoice       = "xiaoxiao"
	DefaultRate        = "+0%"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultEventPrefix = "blogauto"
)

// Config 服务配置
type Config struct {
	ServerAddr         string        `json:"server_addr,omitempty" toml:"server_addr"`
	HTTPTimeoutSeconds int           `json:"http_timeout_seconds,omitempty" toml:"http_timeout_seconds"`
	LLM                LLMConfig     `json:"llm" toml:"llm"`
	TTS                TTSConfig     `json:"tts" toml:"tts"`
	Storage            StorageConfig `json:"storage" toml:"storage"`
	Events             EventsConfig  `json:"events" toml:"events"`
	Log                LogConfig     `json:"log" toml:"log"`

	// Defaulted 记录回落到默认值的关键配置项，启动时打印警告。
	Defaulted []string `json:"-" toml:"-"`
}

// LLMConfig 补全服务配置
type LLMConfig struct {
	Provider string `json:"provider,omitempty" toml:"provider"`
	Model    string `json:"model,omitempty" toml:"model"`
	APIKey   string `json:"api_key,omitempty" toml:"api_key"`
	BaseURL  string `json:"base_url,omitempty" toml:"base_url"`
}

// TTSConfig 语音合成服务配置
type TTSConfig struct {
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
	Voice   string `json:"voice,omitempty" toml:"voice"`
	Rate    string `json:"rate,omitempty" toml:"rate"`
	// BreakerFailures 连续失败多少次后熔断；0 使用默认值 5。
	BreakerFailures int `json:"breaker_failures,omitempty" toml:"breaker_failures"`
	// BreakerCooldownSeconds 熔断后多久再放行试探请求；0 使用默认值 30。
	BreakerCooldownSeconds int `json:"breaker_cooldown_seconds,omitempty" toml:"breaker_cooldown_seconds"`
}

// StorageConfig 文章存储/RSS 服务配置
type StorageConfig struct {
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
	FeedURL string `json:"feed_url,omitempty" toml:"feed_url"`
}

// EventsConfig 运行事件的可选投递目标，URL 为空即关闭。
type EventsConfig struct {
	RedisURL string `json:"redis_url,omitempty" toml:"redis_url"`
	NATSURL  string `json:"nats_url,omitempty" toml:"nats_url"`
	Prefix   string `json:"prefix,omitempty" toml:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level,omitempty" toml:"level"`
	Format string `json:"format,omitempty" toml:"format"`
	File   string `json:"file,omitempty" toml:"file"`
}

// Load 读取配置。path 为空或文件不存在时只用默认值和环境变量。
func Load(path string) (Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse json config %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv 环境变量覆盖配置文件。变量名沿用原 Next.js 部署。
func applyEnv(cfg *Config) error {
	setString(&cfg.LLM.APIKey, "API_KEY")
	setString(&cfg.LLM.BaseURL, "BASE_URL")
	setString(&cfg.LLM.Model, "MODEL_NAME")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.TTS.BaseURL, "TTS_BACKEND_URL")
	setString(&cfg.TTS.Voice, "TTS_VOICE")
	setString(&cfg.TTS.Rate, "TTS_RATE")
	setString(&cfg.Storage.BaseURL, "STORAGE_URL")
	setString(&cfg.Storage.FeedURL, "FEED_URL")
	setString(&cfg.Events.RedisURL, "REDIS_URL")
	setString(&cfg.Events.NATSURL, "NATS_URL")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")
	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerAddr = ":" + port
	}
	setString(&cfg.ServerAddr, "SERVER_ADDR")
	return setInt(&cfg.HTTPTimeoutSeconds, "HTTP_TIMEOUT_SECONDS")
}

func applyDefaults(cfg *Config) {
	def := func(field *string, name, value string) {
		if *field == "" {
			*field = value
			if name != "" {
				cfg.Defaulted = append(cfg.Defaulted, name)
			}
		}
	}
	def(&cfg.ServerAddr, "", DefaultServerAddr)
	def(&cfg.LLM.Provider, "", DefaultProvider)
	if cfg.LLM.Provider == "gemini" {
		def(&cfg.LLM.Model, "", DefaultGeminiModel)
	}
	def(&cfg.LLM.Model, "", DefaultModel)
	def(&cfg.TTS.BaseURL, "TTS_BACKEND_URL", DefaultBackendURL)
	// 存储服务与 TTS 后端在原部署中是同一个进程
	def(&cfg.Storage.BaseURL, "STORAGE_URL", cfg.TTS.BaseURL)
	def(&cfg.Storage.FeedURL, "", strings.TrimRight(cfg.Storage.BaseURL, "/")+"/rss")
	def(&cfg.TTS.Voice, "", DefaultVoice)
	def(&cfg.TTS.Rate, "", DefaultRate)
	def(&cfg.Events.Prefix, "", DefaultEventPrefix)
	def(&cfg.Log.Level, "", DefaultLogLevel)
	def(&cfg.Log.Format, "", DefaultLogFormat)
	if cfg.TTS.BreakerFailures <= 0 {
		cfg.TTS.BreakerFailures = 5
	}
	if cfg.TTS.BreakerCooldownSeconds <= 0 {
		cfg.TTS.BreakerCooldownSeconds = 30
	}
	if cfg.LLM.Provider != "mock" && cfg.LLM.APIKey == "" {
		cfg.Defaulted = append(cfg.Defaulted, "API_KEY")
	}
}

// Validate 只检查无法回落的取值。
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "deepseek", "gemini", "mock":
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url
		return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return errors.New("llm provider gemini requires api_key")
	}
	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("http_timeout_seconds must not be negative, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}

func setString(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

func setInt(field *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*field = n
	return nil
}
