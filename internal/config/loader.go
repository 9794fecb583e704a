package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/ekisa-team/lector/internal/envvar"
	"github.com/ekisa-team/lector/internal/xfs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed schema.json
var embeddedSchema []byte

const embeddedSchemaURL = "lector.v1.schema.json"

// LoadAndValidate loads the configuration.
// Defaults are applied first, then the YAML file at path (validated against
// the schema), then LECTOR_* environment overrides. A missing file is not an
// error: the defaults plus overrides are returned. An empty schemaPath uses
// the embedded schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("config: failed to read config: %w", err)
		default:
			if err := decode(data, schemaPath, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envvar.Prefix}); err != nil {
		return nil, fmt.Errorf("config: failed to apply environment overrides: %w", err)
	}

	if cfg.Synthesis.OpenAI.APIKey == "" {
		cfg.Synthesis.OpenAI.APIKey = os.Getenv(envvar.LectorOpenAIKey)
	}
	cfg.Cache.Dir = xfs.ExpandTilde(cfg.Cache.Dir)
	cfg.Log.File = xfs.ExpandTilde(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// decode validates data against the schema and unmarshals it onto cfg.
func decode(data []byte, schemaPath string, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return fmt.Errorf("config: failed to compile schema: %w", err)
	}

	// An empty document decodes to nil; nothing to validate.
	if raw != nil {
		if err := schema.Validate(raw); err != nil {
			return fmt.Errorf("config: config validation failed: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(embeddedSchemaURL, bytes.NewReader(embeddedSchema)); err != nil {
		return nil, err
	}

	return compiler.Compile(embeddedSchemaURL)
}
