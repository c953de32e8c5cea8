package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EnvPrefix 环境变量前缀，例如 MSGCTL_ANTHROPIC_API_KEY
const EnvPrefix = "MSGCTL"

// 后端名称
const (
	BackendAnthropic = "anthropic"
	BackendVertex    = "vertex"
	BackendBedrock   = "bedrock"
)

// Settings 是 msgctl 的完整配置
type Settings struct {
	Backend   string            `mapstructure:"backend" json:"backend"`
	Model     string            `mapstructure:"model" json:"model"`
	MaxTokens int               `mapstructure:"max_tokens" json:"max_tokens"`
	Anthropic AnthropicSettings `mapstructure:"anthropic" json:"anthropic"`
	Vertex    VertexSettings    `mapstructure:"vertex" json:"vertex"`
	Bedrock   BedrockSettings   `mapstructure:"bedrock" json:"bedrock"`
	HTTP      HTTPSettings      `mapstructure:"http" json:"http"`
	Log       LogSettings       `mapstructure:"log" json:"log"`
}

type AnthropicSettings struct {
	APIKey  string   `mapstructure:"api_key" json:"api_key"`
	BaseURL string   `mapstructure:"base_url" json:"base_url"`
	Betas   []string `mapstructure:"betas" json:"betas"`
}

type VertexSettings struct {
	Project string `mapstructure:"project" json:"project"`
	Region  string `mapstructure:"region" json:"region"`
}

type BedrockSettings struct {
	Region  string `mapstructure:"region" json:"region"`
	Profile string `mapstructure:"profile" json:"profile"`
}

// HTTPSettings 只作用于 anthropic 与 vertex，bedrock 使用 AWS SDK 自己的传输层
type HTTPSettings struct {
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
}

type LogSettings struct {
	Level string `mapstructure:"level" json:"level"`
}

// SlogLevel 解析日志级别，无法识别时返回 Info
func (l LogSettings) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// DefaultSettings 默认配置
func DefaultSettings() map[string]any {
	return map[string]any{
		"backend":            BackendAnthropic,
		"model":              "claude-3-5-sonnet-latest",
		"max_tokens":         1024,
		"anthropic.api_key":  "",
		"anthropic.base_url": "",
		"anthropic.betas":    []string{},
		"vertex.project":     "",
		"vertex.region":      "us-east5",
		"bedrock.region":     "",
		"bedrock.profile":    "",
		"http.timeout":       "10m",
		"http.max_attempts":  1,
		"log.level":          "info",
	}
}

// Validate 校验配置
func (s Settings) Validate() error {
	var errs []error
	switch s.Backend {
	case BackendAnthropic, BackendBedrock:
	case BackendVertex:
		if s.Vertex.Project == "" {
			errs = append(errs, errors.New("vertex.project is required for the vertex backend"))
		}
		if s.Vertex.Region == "" {
			errs = append(errs, errors.New("vertex.region is required for the vertex backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", s.Backend))
	}
	if s.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", s.MaxTokens))
	}
	if s.HTTP.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("http.max_attempts must be at least 1, got %d", s.HTTP.MaxAttempts))
	}
	if s.HTTP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("http.timeout must not be negative, got %s", s.HTTP.Timeout))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid settings: %w", err)
	}
	return nil
}

// LoadSettings 按 默认值 < 配置文件 < 环境变量 的优先级加载 Settings
func LoadSettings(path string, opts ...Option[Settings]) (*Config[Settings], error) {
	base := []Option[Settings]{
		WithDefaults[Settings](DefaultSettings()),
		WithEnv[Settings](EnvPrefix),
		WithValidator(Settings.Validate),
	}
	return Load(path, append(base, opts...)...)
}
