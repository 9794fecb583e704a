package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	defaultVoice           = "es-ES-AlvaroNeural"
	defaultCommandTemplate = "edge-tts --voice {voice} --file {text_file} --write-media {output}"
)

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Version: "1",
		Server: ServerConfig{
			Bind:     "0.0.0.0",
			HTTPPort: DefaultHTTPPort(),
			GRPCPort: DefaultGRPCPort(),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join("logs", "lector.log"),
		},
		Cache: CacheConfig{
			Dir:      "audio_cache",
			MaxAge:   time.Hour,
			MinBytes: 1024,
		},
		Segmenter: SegmenterConfig{
			MinLength: 5,
		},
		Synthesis: SynthesisConfig{
			Provider:       ProviderCommand,
			Voice:          defaultVoice,
			MaxConcurrency: 4,
			Timeout:        45 * time.Second,
			Command: CommandConfig{
				Template: defaultCommandTemplate,
			},
			OpenAI: OpenAIConfig{
				Model: "tts-1",
			},
		},
		Export: ExportConfig{
			WaitTimeout: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "lector",
			OTLPInsecure: true,
		},
	}
}

// DefaultHTTPPort returns the default HTTP port.
func DefaultHTTPPort() int {
	return 5000
}

// DefaultGRPCPort returns the default gRPC port.
func DefaultGRPCPort() int {
	return 50051
}

// DefaultConfigPath returns the default path for the lector config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lector", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "lector")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "lector")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "lector")
		}
		return filepath.Join(home, ".config", "lector")
	}
}
