package config

import (
	"errors"
	"fmt"
	"time"
)

// ProviderType names a synthesis backend.
type ProviderType string

const (
	// ProviderCommand runs an external text-to-speech CLI.
	ProviderCommand ProviderType = "command"

	// ProviderOpenAI calls the OpenAI speech endpoint.
	ProviderOpenAI ProviderType = "openai"
)

// Config holds the main configuration for the application.
type Config struct {
	Version   string          `json:"version"   yaml:"version"`
	Server    ServerConfig    `json:"server"    yaml:"server"    envPrefix:"SERVER_"`
	Log       LogConfig       `json:"log"       yaml:"log"       envPrefix:"LOG_"`
	Cache     CacheConfig     `json:"cache"     yaml:"cache"     envPrefix:"CACHE_"`
	Segmenter SegmenterConfig `json:"segmenter" yaml:"segmenter" envPrefix:"SEGMENTER_"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis" envPrefix:"SYNTHESIS_"`
	Export    ExportConfig    `json:"export"    yaml:"export"    envPrefix:"EXPORT_"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig holds the listeners.
type ServerConfig struct {
	Bind     string `json:"bind"      yaml:"bind"      env:"BIND"`
	HTTPPort int    `json:"http_port" yaml:"http_port" env:"HTTP_PORT"`
	GRPCPort int    `json:"grpc_port" yaml:"grpc_port" env:"GRPC_PORT"`
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level  string `json:"level"   yaml:"level"   env:"LEVEL"`
	ToFile bool   `json:"to_file" yaml:"to_file" env:"TO_FILE"`
	File   string `json:"file"    yaml:"file"    env:"FILE"`
}

// CacheConfig holds the audio cache settings.
type CacheConfig struct {
	Dir      string        `json:"dir"       yaml:"dir"       env:"DIR"`
	MaxAge   time.Duration `json:"max_age"   yaml:"max_age"   env:"MAX_AGE"`
	MinBytes int64         `json:"min_bytes" yaml:"min_bytes" env:"MIN_BYTES"`
}

// SegmenterConfig holds text segmentation settings.
type SegmenterConfig struct {
	MinLength int `json:"min_length" yaml:"min_length" env:"MIN_LENGTH"`
}

// SynthesisConfig holds provider selection and worker bounds.
type SynthesisConfig struct {
	Provider       ProviderType   `json:"provider"        yaml:"provider"        env:"PROVIDER"`
	Voice          string         `json:"voice"           yaml:"voice"           env:"VOICE"`
	MaxConcurrency int            `json:"max_concurrency" yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	Timeout        time.Duration  `json:"timeout"         yaml:"timeout"         env:"TIMEOUT"`
	Parameters     map[string]any `json:"parameters"      yaml:"parameters"`
	Command        CommandConfig  `json:"command"         yaml:"command"         envPrefix:"COMMAND_"`
	OpenAI         OpenAIConfig   `json:"openai"          yaml:"openai"          envPrefix:"OPENAI_"`
}

// CommandConfig configures the command-line provider.
type CommandConfig struct {
	// Template is parsed with shell quoting rules; {voice}, {text},
	// {text_file} and {output} are substituted per call.
	Template string `json:"template" yaml:"template" env:"TEMPLATE"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string `json:"api_key,omitempty"  yaml:"api_key,omitempty"  env:"API_KEY"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" env:"BASE_URL"`
	Model   string `json:"model"              yaml:"model"              env:"MODEL"`
}

// ExportConfig holds merge settings.
type ExportConfig struct {
	WaitTimeout time.Duration `json:"wait_timeout" yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
}

// TelemetryConfig holds metrics and tracing settings.
type TelemetryConfig struct {
	ServiceName  string `json:"service_name"  yaml:"service_name"  env:"SERVICE_NAME"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPInsecure bool   `json:"otlp_insecure" yaml:"otlp_insecure" env:"OTLP_INSECURE"`
	TraceStdout  bool   `json:"trace_stdout"  yaml:"trace_stdout"  env:"TRACE_STDOUT"`
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return errors.New("server.http_port must be between 1 and 65535")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return errors.New("server.grpc_port must be between 0 and 65535")
	}
	if c.Cache.Dir == "" {
		return errors.New("cache.dir must not be empty")
	}
	if c.Cache.MaxAge <= 0 {
		return errors.New("cache.max_age must be positive")
	}
	if c.Cache.MinBytes < 0 {
		return errors.New("cache.min_bytes must be >= 0")
	}
	if c.Segmenter.MinLength < 0 {
		return errors.New("segmenter.min_length must be >= 0")
	}
	if c.Synthesis.MaxConcurrency <= 0 {
		return errors.New("synthesis.max_concurrency must be >= 1")
	}
	if c.Synthesis.Timeout <= 0 {
		return errors.New("synthesis.timeout must be positive")
	}
	if c.Export.WaitTimeout < 0 {
		return errors.New("export.wait_timeout must be >= 0")
	}

	switch c.Synthesis.Provider {
	case ProviderCommand:
		if c.Synthesis.Command.Template == "" {
			return errors.New("synthesis.command.template must be set when provider=command")
		}
	case ProviderOpenAI:
		if c.Synthesis.OpenAI.Model == "" {
			return errors.New("synthesis.openai.model must be set when provider=openai")
		}
	default:
		return fmt.Errorf("synthesis.provider must be one of command|openai, got %q", c.Synthesis.Provider)
	}

	return nil
}
