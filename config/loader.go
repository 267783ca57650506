package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "NIMMEM_"
)

// legacyEnv maps the environment variables older deployments set to
// configuration keys. They rank below NIMMEM_ variables.
var legacyEnv = map[string]string{
	"MONGO_URI":         "mongo.uri",
	"MONGO_DB":          "mongo.database",
	"SHORT_TERM_WINDOW": "memory.short_term_window",
	"EMBEDDING_MODEL":   "embedding.model",
	"CHROMA_DB_DIR":     "index.path",
	"ANTHROPIC_API_KEY": "anthropic.api_key",
	"DATABASE_URL":      "postgres.url",
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. NIMMEM_ environment variables (NIMMEM_MEMORY_SHORT_TERM_WINDOW -> memory.short_term_window)
//  2. Legacy environment variables (MONGO_URI, SHORT_TERM_WINDOW, ...)
//  3. The YAML file at path, when path is not empty
//  4. Default()
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := loadLegacyEnv(k); err != nil {
		return nil, err
	}

	// Split on the first underscore after the prefix: section.field_name
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so unset keys keep their default values.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func loadLegacyEnv(k *koanf.Koanf) error {
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return fmt.Errorf("set %s from %s: %w", key, name, err)
			}
		}
	}

	// QDRANT_URL is a REST URL; only its host carries over to the gRPC client.
	if raw := os.Getenv("QDRANT_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return fmt.Errorf("invalid QDRANT_URL %q", raw)
		}
		if err := k.Set("index.qdrant_host", u.Hostname()); err != nil {
			return fmt.Errorf("set index.qdrant_host from QDRANT_URL: %w", err)
		}
	}
	return nil
}
